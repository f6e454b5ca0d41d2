package compiler

import (
	"math/rand"
	"sort"

	"github.com/neurofab/z1cluster/pkg/layout"
)

const (
	defaultThreshold    = 1.0
	defaultLeakRate     = 0.95
	defaultRefractoryUs = 1000
)

// Compiler maps a TopologyDoc (plus optional ClusterDescriptor) to a Plan.
// It is pure and stateless except for its RNG seed: given a fixed seed and
// identical inputs, Compile produces byte-identical tables.
type Compiler struct {
	Seed int64
}

// NewCompiler returns a Compiler seeded for deterministic weight sampling.
func NewCompiler(seed int64) *Compiler {
	return &Compiler{Seed: seed}
}

// Compile runs the full pipeline: node assignment, neuron build-out,
// connection synthesis, serialization, and deployment plan assembly.
func (c *Compiler) Compile(doc TopologyDoc, cd *ClusterDescriptor) (*Plan, error) {
	if err := validateTopology(doc); err != nil {
		return nil, err
	}
	if cd != nil {
		if err := cd.validate(); err != nil {
			return nil, err
		}
	}

	assignment, err := assignNodes(doc, cd)
	if err != nil {
		return nil, err
	}

	configs, err := buildNeurons(doc, assignment)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(c.Seed))
	if err := synthesizeConnections(doc, configs, rng); err != nil {
		return nil, err
	}

	nodes := availableNodes(cd, doc.NeuronCount)
	return assemblePlan(nodes, configs), nil
}

// validateTopology checks that layer spans are disjoint and cover exactly
// [0, neuron_count), so every neuron belongs to one and only one layer.
func validateTopology(doc TopologyDoc) error {
	if doc.NeuronCount < 0 {
		return newError(KindInvalidTopology, "neuron_count must be >= 0")
	}

	covered := make([]bool, doc.NeuronCount)
	total := 0
	for _, l := range doc.Layers {
		start, end := l.NeuronIDs[0], l.NeuronIDs[1]
		if start < 0 || end < start || end >= doc.NeuronCount {
			return newError(KindNonContiguous, "layer %d span [%d,%d] out of bounds for neuron_count %d", l.LayerID, start, end, doc.NeuronCount)
		}
		for id := start; id <= end; id++ {
			if covered[id] {
				return newError(KindNonContiguous, "neuron %d covered by more than one layer", id)
			}
			covered[id] = true
			total++
		}
	}
	if total != doc.NeuronCount {
		return newError(KindNonContiguous, "layer spans cover %d of %d neurons", total, doc.NeuronCount)
	}
	return nil
}

// layerForNeuron returns the layer containing global neuron id, or nil.
func layerForNeuron(doc TopologyDoc, id int) *Layer {
	for i := range doc.Layers {
		l := &doc.Layers[i]
		if id >= l.NeuronIDs[0] && id <= l.NeuronIDs[1] {
			return l
		}
	}
	return nil
}

// buildNeurons derives each neuron's physical location, flags, and LIF
// parameters, then assigns node-local ids in ascending global-id order.
func buildNeurons(doc TopologyDoc, assignment map[int]PhysicalNode) (map[int]*NeuronConfig, error) {
	byNode := make(map[PhysicalNode][]int)
	for id := 0; id < doc.NeuronCount; id++ {
		node, ok := assignment[id]
		if !ok {
			return nil, newError(KindUnmappedNeuron, "neuron %d not mapped to any node", id)
		}
		byNode[node] = append(byNode[node], id)
	}

	configs := make(map[int]*NeuronConfig, doc.NeuronCount)
	for node, ids := range byNode {
		sort.Ints(ids)
		for localID, globalID := range ids {
			layer := layerForNeuron(doc, globalID)
			if layer == nil {
				return nil, newError(KindUnknownLayer, "neuron %d not covered by any layer", globalID)
			}

			flags := layout.FlagActive
			switch layer.LayerType {
			case LayerInput:
				flags |= layout.FlagInput
			case LayerOutput:
				flags |= layout.FlagOutput
			case LayerHidden:
				// no additional flag
			default:
				return nil, newError(KindUnknownLayer, "layer %d has unknown layer_type %q", layer.LayerID, layer.LayerType)
			}

			threshold := defaultThreshold
			if layer.Threshold != nil {
				threshold = *layer.Threshold
			}
			leak := defaultLeakRate
			if layer.LeakRate != nil {
				leak = *layer.LeakRate
			}
			refractory := uint32(defaultRefractoryUs)
			if layer.RefractoryPeriodUs != nil {
				refractory = *layer.RefractoryPeriodUs
			}

			configs[globalID] = &NeuronConfig{
				GlobalID:     uint32(globalID),
				LocalID:      uint16(localID),
				Node:         node,
				Flags:        flags,
				Threshold:    threshold,
				LeakRate:     leak,
				RefractoryUs: refractory,
			}
		}
	}

	return configs, nil
}
