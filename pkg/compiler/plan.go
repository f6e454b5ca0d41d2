package compiler

import "github.com/neurofab/z1cluster/pkg/layout"

// NodeKey addresses one physical node inside a DeploymentPlan.
type NodeKey struct {
	Backplane string
	NodeID    int
}

// NeuronMapEntry resolves a global neuron id to its physical location.
type NeuronMapEntry struct {
	Backplane string
	NodeID    int
	LocalID   uint16
}

// Synapse is the compiler's in-memory synapse representation before
// quantization: a same-backplane (node, local) source reference — the only
// addressing the 24-bit wire encoding supports — and a weight together with
// the quantization kind actually applied to it.
type Synapse struct {
	SourceNode  uint8
	SourceLocal uint16
	Weight      float64
	Signed      bool
}

// NeuronConfig is the compiler's per-neuron intermediate representation,
// built during node assignment and later serialized to its wire form.
type NeuronConfig struct {
	GlobalID     uint32
	LocalID      uint16
	Node         PhysicalNode
	Flags        uint16
	Threshold    float64
	LeakRate     float64
	RefractoryUs uint32
	Synapses     []Synapse
}

// Plan is the compiler's output: per-node byte blobs plus the bookkeeping
// the runtime and HTTP surface need to address them.
type Plan struct {
	ID             string
	Tables         map[NodeKey][]byte
	NeuronMap      map[uint32]NeuronMapEntry
	BackplaneNodes map[string][]int
	TotalNeurons   int
	TotalSynapses  int
}

// encodeEntry converts one NeuronConfig into its 256-byte wire form.
func encodeEntry(cfg NeuronConfig) []byte {
	words := make([]layout.SynapseWord, 0, len(cfg.Synapses))
	for _, s := range cfg.Synapses {
		var w8 uint8
		if s.Signed {
			w8 = layout.QuantizeSigned(s.Weight)
		} else {
			w8 = layout.QuantizeUnsigned(s.Weight)
		}
		words = append(words, layout.SynapseWord{
			SourceEncoded: layout.EncodeSourceID(s.SourceNode, s.SourceLocal),
			Weight:        w8,
		})
	}

	return layout.EncodeNeuronEntry(layout.NeuronEntry{
		LocalID:          cfg.LocalID,
		Flags:            cfg.Flags,
		Potential:        0.0,
		Threshold:        float32(cfg.Threshold),
		LastSpikeTimeUs:  0,
		LeakRate:         float32(cfg.LeakRate),
		RefractoryPeriod: cfg.RefractoryUs,
		Synapses:         words,
	})
}
