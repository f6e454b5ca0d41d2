package snn

import (
	"testing"

	"github.com/neurofab/z1cluster/pkg/layout"
	"github.com/neurofab/z1cluster/pkg/memory"
)

func parsedNeuron(localID uint16, threshold, leak float32, synapses ...layout.SynapseWord) memory.ParsedNeuron {
	entry := layout.NeuronEntry{
		LocalID:   localID,
		Threshold: threshold,
		LeakRate:  leak,
		Synapses:  synapses,
	}
	return memory.ParsedNeuron{Entry: entry}
}

func TestInjectSpikeOnInputNeuronFiresUnconditionally(t *testing.T) {
	e := New("bp-a", 0)
	e.LoadFromParsed([]memory.ParsedNeuron{parsedNeuron(1, 1.0, 0.9)})

	if err := e.InjectSpike(1, 0.0); err != nil {
		t.Fatalf("InjectSpike: %v", err)
	}
	if got := e.Stats().SpikesFired; got != 1 {
		t.Fatalf("SpikesFired = %d, want 1", got)
	}
	out := e.DrainOutgoing()
	if len(out) != 1 || out[0].NeuronID != 1 {
		t.Fatalf("DrainOutgoing = %+v", out)
	}
}

func TestInjectSpikeUnknownNeuron(t *testing.T) {
	e := New("bp-a", 0)
	e.LoadFromParsed(nil)

	if err := e.InjectSpike(5, 1.0); err != ErrNeuronNotFound {
		t.Fatalf("err = %v, want ErrNeuronNotFound", err)
	}
}

func TestTickIntegratesMatchingSynapseAndFires(t *testing.T) {
	source := layout.EncodeSourceID(0, 7)
	target := parsedNeuron(2, 1.0, 1.0, layout.SynapseWord{SourceEncoded: source, Weight: 255})

	e := New("bp-a", 1)
	e.LoadFromParsed([]memory.ParsedNeuron{target})

	e.Enqueue(Spike{SourceBackplane: "bp-a", SourceNode: 0, NeuronID: 7, Value: 1.0})
	e.Tick(1000)

	if got := e.Stats().SpikesFired; got != 1 {
		t.Fatalf("SpikesFired = %d, want 1", got)
	}
}

func TestTickIgnoresCrossBackplaneSpike(t *testing.T) {
	source := layout.EncodeSourceID(0, 7)
	target := parsedNeuron(2, 0.01, 1.0, layout.SynapseWord{SourceEncoded: source, Weight: 255})

	e := New("bp-a", 1)
	e.LoadFromParsed([]memory.ParsedNeuron{target})

	e.Enqueue(Spike{SourceBackplane: "bp-other", SourceNode: 0, NeuronID: 7, Value: 1.0})
	e.Tick(1000)

	if got := e.Stats().SpikesFired; got != 0 {
		t.Fatalf("SpikesFired = %d, want 0 (cross-backplane spike should not match)", got)
	}
}

func TestTickAppliesLeakToPositivePotential(t *testing.T) {
	e := New("bp-a", 0)
	e.LoadFromParsed([]memory.ParsedNeuron{parsedNeuron(3, 100.0, 0.5)})

	// Set the potential directly, below threshold: this neuron has no
	// synapses, so InjectSpike would fire it unconditionally.
	e.mu.Lock()
	e.neurons[3].V = 10.0
	e.mu.Unlock()

	e.Tick(1000)

	e.mu.Lock()
	v := e.neurons[3].V
	e.mu.Unlock()
	if v != 5.0 {
		t.Fatalf("V after leak = %v, want 5.0", v)
	}
}

func TestTickRespectsRefractoryWindow(t *testing.T) {
	source := layout.EncodeSourceID(0, 7)
	entry := layout.NeuronEntry{
		LocalID:          9,
		Threshold:        0.5,
		LeakRate:         1.0,
		RefractoryPeriod: 5000,
		LastSpikeTimeUs:  0,
		Synapses:         []layout.SynapseWord{{SourceEncoded: source, Weight: 255}},
	}
	e := New("bp-a", 1)
	e.LoadFromParsed([]memory.ParsedNeuron{{Entry: entry}})

	e.Enqueue(Spike{SourceBackplane: "bp-a", SourceNode: 0, NeuronID: 7, Value: 1.0})
	e.Tick(1000)

	if got := e.Stats().SpikesFired; got != 0 {
		t.Fatalf("SpikesFired = %d, want 0 (still within refractory window)", got)
	}
}
