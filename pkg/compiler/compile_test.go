package compiler

import (
	"testing"

	"github.com/neurofab/z1cluster/pkg/layout"
)

func f64(v float64) *float64 { return &v }
func i(v int) *int           { return &v }

func xorTopology() TopologyDoc {
	threshold := 1.0
	return TopologyDoc{
		NetworkName: "xor",
		NeuronCount: 4,
		Layers: []Layer{
			{LayerID: 0, LayerType: LayerInput, NeuronIDs: [2]int{0, 1}, Threshold: &threshold},
			{LayerID: 1, LayerType: LayerHidden, NeuronIDs: [2]int{2, 2}, Threshold: &threshold},
			{LayerID: 2, LayerType: LayerOutput, NeuronIDs: [2]int{3, 3}, Threshold: &threshold},
		},
		// connection_type is "fully_connected" here even though each rule names
		// an explicit source_neuron/target_neuron pair: presence of both fields
		// routes these to the explicit synthesis path regardless of
		// connection_type.
		Connections: []Connection{
			{SourceNeuron: i(0), TargetNeuron: i(2), ConnectionType: ConnFullyConnected, Weight: f64(0.7)},
			{SourceNeuron: i(1), TargetNeuron: i(2), ConnectionType: ConnFullyConnected, Weight: f64(0.7)},
			{SourceNeuron: i(2), TargetNeuron: i(3), ConnectionType: ConnFullyConnected, Weight: f64(1.0)},
		},
		NodeAssignment: NodeAssignment{Strategy: "balanced"},
	}
}

func TestCompileXORMinimal(t *testing.T) {
	cd := &ClusterDescriptor{Backplanes: []BackplaneDescriptor{{Name: "bp0", NodeCount: 2}}}
	c := NewCompiler(1)
	plan, err := c.Compile(xorTopology(), cd)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	if len(plan.NeuronMap) != 4 {
		t.Fatalf("neuron_map has %d entries, want 4", len(plan.NeuronMap))
	}

	node0 := NodeKey{Backplane: "bp0", NodeID: 0}
	node1 := NodeKey{Backplane: "bp0", NodeID: 1}

	table0, ok := plan.Tables[node0]
	if !ok {
		t.Fatalf("no table for node 0")
	}
	table1, ok := plan.Tables[node1]
	if !ok {
		t.Fatalf("no table for node 1")
	}

	// balanced(4 neurons, 2 nodes) round-robins by global id: node 0 holds
	// globals {0,2}, node 1 holds globals {1,3}.
	wantLen := 3 * layout.EntrySize // 2 entries + end marker
	if len(table0) != wantLen || len(table1) != wantLen {
		t.Fatalf("table sizes = %d, %d; want %d each", len(table0), len(table1), wantLen)
	}

	for _, id := range []uint32{0, 1, 2, 3} {
		if _, ok := plan.NeuronMap[id]; !ok {
			t.Errorf("neuron_map missing global id %d", id)
		}
	}

	for _, global := range []uint32{0, 2} {
		entry := plan.NeuronMap[global]
		if entry.NodeID != 0 {
			t.Errorf("global %d assigned to node %d, want node 0", global, entry.NodeID)
		}
	}
	for _, global := range []uint32{1, 3} {
		entry := plan.NeuronMap[global]
		if entry.NodeID != 1 {
			t.Errorf("global %d assigned to node %d, want node 1", global, entry.NodeID)
		}
	}
}

func TestCompileDeterministic(t *testing.T) {
	doc := TopologyDoc{
		NeuronCount: 6,
		Layers: []Layer{
			{LayerID: 0, LayerType: LayerInput, NeuronIDs: [2]int{0, 2}},
			{LayerID: 1, LayerType: LayerOutput, NeuronIDs: [2]int{3, 5}},
		},
		Connections: []Connection{
			{SourceLayer: i(0), TargetLayer: i(1), ConnectionType: ConnFullyConnected, WeightInit: WeightRandomUniform, WeightMin: f64(0), WeightMax: f64(1)},
		},
		NodeAssignment: NodeAssignment{Strategy: "balanced"},
	}

	c := NewCompiler(42)
	p1, err := c.Compile(doc, nil)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	p2, err := NewCompiler(42).Compile(doc, nil)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	if len(p1.Tables) != len(p2.Tables) {
		t.Fatalf("table count mismatch: %d vs %d", len(p1.Tables), len(p2.Tables))
	}
	for key, b1 := range p1.Tables {
		b2, ok := p2.Tables[key]
		if !ok {
			t.Fatalf("missing table for %+v in second compile", key)
		}
		if string(b1) != string(b2) {
			t.Errorf("table for %+v differs between identically-seeded compiles", key)
		}
	}
}

func TestCompileZeroNeurons(t *testing.T) {
	c := NewCompiler(1)
	plan, err := c.Compile(TopologyDoc{NeuronCount: 0}, nil)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(plan.Tables) != 1 {
		t.Fatalf("expected exactly one node table for zero-neuron topology, got %d", len(plan.Tables))
	}
	for _, buf := range plan.Tables {
		if len(buf) != layout.EntrySize {
			t.Fatalf("zero-neuron table size = %d, want %d", len(buf), layout.EntrySize)
		}
		if !layout.IsEndMarker(buf) {
			t.Error("zero-neuron table should be a single end-marker block")
		}
	}
}

func TestCompileSynapseCapacityDrop(t *testing.T) {
	doc := TopologyDoc{
		NeuronCount: 62,
	}
	layers := []Layer{{LayerID: 0, LayerType: LayerInput, NeuronIDs: [2]int{0, 60}}, {LayerID: 1, LayerType: LayerOutput, NeuronIDs: [2]int{61, 61}}}
	doc.Layers = layers
	doc.Connections = []Connection{
		{SourceLayer: i(0), TargetLayer: i(1), ConnectionType: ConnFullyConnected, WeightInit: WeightConstant, Weight: f64(0.5)},
	}
	doc.NodeAssignment = NodeAssignment{Strategy: "balanced", Nodes: []int{0}}

	cd := &ClusterDescriptor{Backplanes: []BackplaneDescriptor{{Name: "bp0", NodeCount: 1}}}
	c := NewCompiler(7)
	plan, err := c.Compile(doc, cd)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	entry, err := layout.DecodeNeuronEntry(plan.Tables[NodeKey{Backplane: "bp0", NodeID: 0}][61*layout.EntrySize:])
	if err != nil {
		t.Fatalf("DecodeNeuronEntry: %v", err)
	}
	if len(entry.Synapses) != layout.MaxSynapses {
		t.Fatalf("target synapse count = %d, want %d (61st dropped)", len(entry.Synapses), layout.MaxSynapses)
	}
}

func TestCompileRejectsNonContiguousLayers(t *testing.T) {
	doc := TopologyDoc{
		NeuronCount: 4,
		Layers: []Layer{
			{LayerID: 0, LayerType: LayerInput, NeuronIDs: [2]int{0, 1}},
			{LayerID: 1, LayerType: LayerOutput, NeuronIDs: [2]int{3, 3}},
		},
	}
	if _, err := NewCompiler(1).Compile(doc, nil); err == nil {
		t.Fatal("expected error for non-contiguous layer coverage (neuron 2 uncovered)")
	}
}

func TestCompileRejectsUnknownLayerReference(t *testing.T) {
	doc := TopologyDoc{
		NeuronCount: 2,
		Layers: []Layer{
			{LayerID: 0, LayerType: LayerInput, NeuronIDs: [2]int{0, 1}},
		},
		Connections: []Connection{
			{SourceLayer: i(0), TargetLayer: i(99), ConnectionType: ConnFullyConnected},
		},
	}
	if _, err := NewCompiler(1).Compile(doc, nil); err == nil {
		t.Fatal("expected error for unknown layer reference")
	}
}
