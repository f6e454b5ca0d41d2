package compiler

import (
	"math/rand"

	"github.com/neurofab/z1cluster/pkg/layout"
)

// synthesizeConnections walks every connection rule in the topology
// document, appending generated synapses onto the target neuron's config.
// Overflowing a target's 60-synapse capacity silently drops the synapse.
//
// A connection naming both source_neuron and target_neuron is always
// routed to the explicit path, regardless of its connection_type — field
// presence is checked before connection_type is read, matching the
// reference compiler's dispatch order.
func synthesizeConnections(doc TopologyDoc, configs map[int]*NeuronConfig, rng *rand.Rand) error {
	for _, conn := range doc.Connections {
		if conn.SourceNeuron != nil && conn.TargetNeuron != nil {
			if err := synthesizeExplicit(doc, configs, conn); err != nil {
				return err
			}
			continue
		}

		switch conn.ConnectionType {
		case ConnFullyConnected:
			if err := synthesizeFullyConnected(doc, configs, conn, rng); err != nil {
				return err
			}
		case ConnSparseRandom, ConnRandom:
			if err := synthesizeSparse(doc, configs, conn, rng); err != nil {
				return err
			}
		default:
			return newError(KindInvalidTopology, "unknown connection_type %q", conn.ConnectionType)
		}
	}
	return nil
}

func layerNeuronIDs(doc TopologyDoc, layerID *int) ([]int, error) {
	if layerID == nil {
		return nil, newError(KindUnknownLayer, "connection missing required layer reference")
	}
	for _, l := range doc.Layers {
		if l.LayerID == *layerID {
			ids := make([]int, 0, l.NeuronIDs[1]-l.NeuronIDs[0]+1)
			for id := l.NeuronIDs[0]; id <= l.NeuronIDs[1]; id++ {
				ids = append(ids, id)
			}
			return ids, nil
		}
	}
	return nil, newError(KindUnknownLayer, "unknown layer reference %d", *layerID)
}

func addSynapse(configs map[int]*NeuronConfig, targetID int, s Synapse) {
	target, ok := configs[targetID]
	if !ok {
		return
	}
	if len(target.Synapses) >= layout.MaxSynapses {
		return // capacity-preserving drop
	}
	target.Synapses = append(target.Synapses, s)
}

func synthesizeFullyConnected(doc TopologyDoc, configs map[int]*NeuronConfig, conn Connection, rng *rand.Rand) error {
	sources, err := layerNeuronIDs(doc, conn.SourceLayer)
	if err != nil {
		return err
	}
	targets, err := layerNeuronIDs(doc, conn.TargetLayer)
	if err != nil {
		return err
	}

	for _, src := range sources {
		srcCfg, ok := configs[src]
		if !ok {
			return newError(KindUnmappedNeuron, "source neuron %d not mapped to any node", src)
		}
		for _, tgt := range targets {
			w := sampleWeight(conn, rng)
			addSynapse(configs, tgt, Synapse{
				SourceNode:  uint8(srcCfg.Node.NodeID),
				SourceLocal: srcCfg.LocalID,
				Weight:      w,
				Signed:      false,
			})
		}
	}
	return nil
}

func synthesizeSparse(doc TopologyDoc, configs map[int]*NeuronConfig, conn Connection, rng *rand.Rand) error {
	sources, err := layerNeuronIDs(doc, conn.SourceLayer)
	if err != nil {
		return err
	}
	targets, err := layerNeuronIDs(doc, conn.TargetLayer)
	if err != nil {
		return err
	}

	prob := conn.probability()
	for _, src := range sources {
		srcCfg, ok := configs[src]
		if !ok {
			return newError(KindUnmappedNeuron, "source neuron %d not mapped to any node", src)
		}
		for _, tgt := range targets {
			if rng.Float64() >= prob {
				continue
			}
			w := sampleSparseWeight(conn, rng)
			addSynapse(configs, tgt, Synapse{
				SourceNode:  uint8(srcCfg.Node.NodeID),
				SourceLocal: srcCfg.LocalID,
				Weight:      w,
				Signed:      false,
			})
		}
	}
	return nil
}

// synthesizeExplicit requires the caller to have already confirmed both
// conn.SourceNeuron and conn.TargetNeuron are non-nil.
func synthesizeExplicit(doc TopologyDoc, configs map[int]*NeuronConfig, conn Connection) error {
	src := *conn.SourceNeuron
	tgt := *conn.TargetNeuron

	srcCfg, ok := configs[src]
	if !ok {
		return newError(KindUnmappedNeuron, "source neuron %d not mapped to any node", src)
	}
	if _, ok := configs[tgt]; !ok {
		return newError(KindUnmappedNeuron, "target neuron %d not mapped to any node", tgt)
	}

	weight := 0.0
	if conn.Weight != nil {
		weight = *conn.Weight
	}

	addSynapse(configs, tgt, Synapse{
		SourceNode:  uint8(srcCfg.Node.NodeID),
		SourceLocal: srcCfg.LocalID,
		Weight:      weight,
		Signed:      true,
	})
	return nil
}
