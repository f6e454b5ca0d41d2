package compiler

import (
	"sort"

	"github.com/google/uuid"
	"github.com/neurofab/z1cluster/pkg/layout"
)

// assemblePlan builds the neuron_map, per-backplane node list, totals, and
// the per-node byte blobs. Every physical node in nodes gets a table entry
// even if it holds zero neurons, so that a zero-neuron compile still yields
// a single end-marker block per node.
func assemblePlan(nodes []PhysicalNode, configs map[int]*NeuronConfig) *Plan {
	byNode := make(map[NodeKey][]*NeuronConfig)
	backplaneNodeSet := make(map[string]map[int]bool)

	for _, n := range nodes {
		key := NodeKey{Backplane: n.Backplane, NodeID: n.NodeID}
		if _, ok := byNode[key]; !ok {
			byNode[key] = nil
		}
		if backplaneNodeSet[n.Backplane] == nil {
			backplaneNodeSet[n.Backplane] = make(map[int]bool)
		}
		backplaneNodeSet[n.Backplane][n.NodeID] = true
	}

	for _, cfg := range configs {
		key := NodeKey{Backplane: cfg.Node.Backplane, NodeID: cfg.Node.NodeID}
		byNode[key] = append(byNode[key], cfg)

		if backplaneNodeSet[cfg.Node.Backplane] == nil {
			backplaneNodeSet[cfg.Node.Backplane] = make(map[int]bool)
		}
		backplaneNodeSet[cfg.Node.Backplane][cfg.Node.NodeID] = true
	}

	plan := &Plan{
		ID:             uuid.NewString(),
		Tables:         make(map[NodeKey][]byte),
		NeuronMap:      make(map[uint32]NeuronMapEntry, len(configs)),
		BackplaneNodes: make(map[string][]int),
		TotalNeurons:   len(configs),
	}

	for key, neurons := range byNode {
		sort.Slice(neurons, func(i, j int) bool { return neurons[i].LocalID < neurons[j].LocalID })

		buf := make([]byte, 0, (len(neurons)+1)*layout.EntrySize)
		for _, cfg := range neurons {
			buf = append(buf, encodeEntry(*cfg)...)
			plan.TotalSynapses += len(cfg.Synapses)
			plan.NeuronMap[cfg.GlobalID] = NeuronMapEntry{
				Backplane: cfg.Node.Backplane,
				NodeID:    cfg.Node.NodeID,
				LocalID:   cfg.LocalID,
			}
		}
		buf = append(buf, layout.EndMarkerEntry()...)
		plan.Tables[key] = buf
	}

	for bp, nodeSet := range backplaneNodeSet {
		ids := make([]int, 0, len(nodeSet))
		for id := range nodeSet {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		plan.BackplaneNodes[bp] = ids
	}

	return plan
}
