package compiler

import "sort"

// PhysicalNode identifies one node slot on one backplane.
type PhysicalNode struct {
	Backplane string
	NodeID    int
}

// availableNodes enumerates physical nodes from a cluster descriptor, or
// falls back to a single default backplane sized to cover every neuron.
func availableNodes(cd *ClusterDescriptor, neuronCount int) []PhysicalNode {
	if cd == nil || len(cd.Backplanes) == 0 {
		nodeCount := neuronCount
		if nodeCount < 1 {
			nodeCount = 1
		}
		if nodeCount > maxNodesPerBackplane {
			nodeCount = maxNodesPerBackplane
		}
		nodes := make([]PhysicalNode, nodeCount)
		for i := 0; i < nodeCount; i++ {
			nodes[i] = PhysicalNode{Backplane: "default", NodeID: i}
		}
		return nodes
	}

	var nodes []PhysicalNode
	for _, bp := range cd.Backplanes {
		for id := 0; id < bp.NodeCount; id++ {
			nodes = append(nodes, PhysicalNode{Backplane: bp.Name, NodeID: id})
		}
	}
	return nodes
}

// assignBalanced implements the "balanced" strategy: each of K nodes ends up
// with floor(N/K) neurons (one more for the first N%K nodes), achieved by
// round-robin assignment of each global neuron id to nodes[id%K] — so a
// node's neurons are evenly spread across the id space rather than
// contiguous.
func assignBalanced(neuronCount int, nodes []PhysicalNode) (map[int]PhysicalNode, error) {
	if len(nodes) == 0 {
		return nil, newError(KindInvalidCluster, "no available nodes for balanced assignment")
	}

	k := len(nodes)
	assignment := make(map[int]PhysicalNode, neuronCount)
	for id := 0; id < neuronCount; id++ {
		assignment[id] = nodes[id%k]
	}
	return assignment, nil
}

// assignLayerBased implements the "layer_based" strategy: each layer fills
// exactly one node, assigned round-robin across available nodes.
func assignLayerBased(layers []Layer, nodes []PhysicalNode) (map[int]PhysicalNode, error) {
	if len(nodes) == 0 {
		return nil, newError(KindInvalidCluster, "no available nodes for layer_based assignment")
	}

	sorted := make([]Layer, len(layers))
	copy(sorted, layers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LayerID < sorted[j].LayerID })

	assignment := make(map[int]PhysicalNode)
	for i, layer := range sorted {
		node := nodes[i%len(nodes)]
		for id := layer.NeuronIDs[0]; id <= layer.NeuronIDs[1]; id++ {
			assignment[id] = node
		}
	}
	return assignment, nil
}

// assignNodes dispatches to the requested strategy (default "balanced") and
// validates that the result is total-covering and disjoint over
// [0, neuronCount) — disjoint is guaranteed by construction for both
// strategies, so only coverage is checked here.
func assignNodes(doc TopologyDoc, cd *ClusterDescriptor) (map[int]PhysicalNode, error) {
	strategy := doc.NodeAssignment.Strategy
	if strategy == "" {
		strategy = "balanced"
	}

	nodes := availableNodes(cd, doc.NeuronCount)
	if len(doc.NodeAssignment.Nodes) > 0 {
		restricted := make([]PhysicalNode, 0, len(doc.NodeAssignment.Nodes))
		bpFilter := doc.NodeAssignment.Backplane
		for _, n := range nodes {
			if bpFilter != "" && n.Backplane != bpFilter {
				continue
			}
			for _, id := range doc.NodeAssignment.Nodes {
				if n.NodeID == id {
					restricted = append(restricted, n)
					break
				}
			}
		}
		if len(restricted) > 0 {
			nodes = restricted
		}
	} else if doc.NodeAssignment.Backplane != "" {
		restricted := make([]PhysicalNode, 0, len(nodes))
		for _, n := range nodes {
			if n.Backplane == doc.NodeAssignment.Backplane {
				restricted = append(restricted, n)
			}
		}
		if len(restricted) > 0 {
			nodes = restricted
		}
	}

	var assignment map[int]PhysicalNode
	var err error
	switch strategy {
	case "layer_based":
		assignment, err = assignLayerBased(doc.Layers, nodes)
	default:
		assignment, err = assignBalanced(doc.NeuronCount, nodes)
	}
	if err != nil {
		return nil, err
	}

	for id := 0; id < doc.NeuronCount; id++ {
		if _, ok := assignment[id]; !ok {
			return nil, newError(KindUnmappedNeuron, "neuron %d not mapped to any node", id)
		}
	}

	return assignment, nil
}
