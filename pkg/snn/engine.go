// Package snn implements the per-node leaky integrate-and-fire executor and
// the cluster-wide spike router that connects engines together.
package snn

import (
	"context"
	"sync"
	"time"

	"github.com/neurofab/z1cluster/pkg/layout"
	"github.com/neurofab/z1cluster/pkg/memory"
)

const joinTimeout = 1 * time.Second

// neuronState is one loaded neuron's runtime LIF state.
type neuronState struct {
	V            float32
	Vth          float32
	Leak         float32
	RefractoryUs uint32
	LastSpikeUs  uint32
	Flags        uint16
}

// synapseRef is one loaded synapse: a within-backplane 24-bit source
// reference and its dequantized weight.
type synapseRef struct {
	SourceEncoded uint32
	Weight        float64
}

// Stats are an engine's cumulative counters.
type Stats struct {
	SpikesProcessed uint64
	SpikesFired     uint64
	Injections      uint64
}

// Engine is one node's real-time LIF executor: integrates incoming spikes,
// applies leak, fires outgoing spikes, and enforces refractory windows.
type Engine struct {
	Backplane string
	NodeID    int

	mu       sync.Mutex
	neurons  map[uint16]*neuronState
	synapses map[uint16][]synapseRef
	incoming []Spike
	outgoing []Spike
	now      uint32
	stats    Stats
	onFire   func(Spike)

	runMu  sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an empty engine for the given (backplane, node).
func New(backplane string, nodeID int) *Engine {
	return &Engine{
		Backplane: backplane,
		NodeID:    nodeID,
		neurons:   make(map[uint16]*neuronState),
		synapses:  make(map[uint16][]synapseRef),
	}
}

// SetFireCallback installs the function invoked whenever a neuron fires.
// The Coordinator does not install one; it picks up fired spikes by
// draining the outgoing queue on each routing pass.
func (e *Engine) SetFireCallback(fn func(Spike)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onFire = fn
}

// LoadFromParsed replaces the engine's neuron and synapse maps with state
// built from a node's parsed PSRAM neuron table, and resets simulation time.
func (e *Engine) LoadFromParsed(parsed []memory.ParsedNeuron) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.neurons = make(map[uint16]*neuronState, len(parsed))
	e.synapses = make(map[uint16][]synapseRef, len(parsed))
	e.now = 0
	e.incoming = nil
	e.outgoing = nil

	for _, p := range parsed {
		entry := p.Entry
		e.neurons[entry.LocalID] = &neuronState{
			V:            entry.Potential,
			Vth:          entry.Threshold,
			Leak:         entry.LeakRate,
			RefractoryUs: entry.RefractoryPeriod,
			LastSpikeUs:  entry.LastSpikeTimeUs,
			Flags:        entry.Flags,
		}

		refs := make([]synapseRef, 0, len(entry.Synapses))
		for _, w := range entry.Synapses {
			refs = append(refs, synapseRef{
				SourceEncoded: w.SourceEncoded,
				Weight:        layout.Dequantize(w.Weight),
			})
		}
		e.synapses[entry.LocalID] = refs
	}
}

// Enqueue adds an inbound spike to the engine's incoming queue. Safe to call
// from any goroutine (the Coordinator's routing loop calls this for every
// registered engine).
func (e *Engine) Enqueue(s Spike) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.incoming = append(e.incoming, s)
}

// DrainOutgoing removes and returns every spike fired since the last drain.
// Called by the Coordinator's routing pass.
func (e *Engine) DrainOutgoing() []Spike {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.outgoing
	e.outgoing = nil
	return out
}

// Stats returns a snapshot of the engine's counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Tick advances simulation time by timestepUs, drains and processes every
// incoming spike, then applies leak to every neuron with positive potential.
func (e *Engine) Tick(timestepUs uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.now += timestepUs

	pending := e.incoming
	e.incoming = nil

	for _, spike := range pending {
		e.stats.SpikesProcessed++
		if spike.SourceBackplane != e.Backplane {
			// The 24-bit source encoding only addresses nodes within one
			// backplane; a cross-backplane spike cannot match any synapse.
			continue
		}
		sourceEncoded := layout.EncodeSourceID(uint8(spike.SourceNode), spike.NeuronID)
		e.applySpike(sourceEncoded, spike.Value)
	}

	for _, n := range e.neurons {
		if n.V > 0 {
			n.V *= n.Leak
		}
	}
}

// applySpike scans every target neuron's synapse list for one matching
// sourceEncoded, integrating weight*value and firing on threshold crossing.
// Must be called with e.mu held.
func (e *Engine) applySpike(sourceEncoded uint32, value float32) {
	for localID, refs := range e.synapses {
		target, ok := e.neurons[localID]
		if !ok {
			continue
		}
		for _, syn := range refs {
			if syn.SourceEncoded != sourceEncoded {
				continue
			}
			if e.now-target.LastSpikeUs < target.RefractoryUs {
				continue
			}
			target.V += float32(syn.Weight) * value
			if target.V >= target.Vth {
				e.fireLocked(localID, target)
				break
			}
		}
	}
}

// InjectSpike drives a neuron directly. A neuron with no incoming synapses
// is treated as an input and fires unconditionally; otherwise value is
// added to its potential and it fires if that crosses threshold.
func (e *Engine) InjectSpike(localID uint16, value float32) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	target, ok := e.neurons[localID]
	if !ok {
		return ErrNeuronNotFound
	}
	e.stats.Injections++

	if len(e.synapses[localID]) == 0 {
		e.fireLocked(localID, target)
		return nil
	}

	target.V += value
	if target.V >= target.Vth {
		e.fireLocked(localID, target)
	}
	return nil
}

// fireLocked resets the neuron, records the spike, and notifies the
// callback. Must be called with e.mu held.
func (e *Engine) fireLocked(localID uint16, n *neuronState) {
	n.V = 0
	n.LastSpikeUs = e.now
	e.stats.SpikesFired++

	spike := Spike{
		SourceBackplane: e.Backplane,
		SourceNode:      e.NodeID,
		NeuronID:        localID,
		TimestampUs:     e.now,
		Value:           1.0,
	}
	e.outgoing = append(e.outgoing, spike)

	if e.onFire != nil {
		e.onFire(spike)
	}
}

// Start spawns a dedicated goroutine that ticks the engine at wall-clock
// pace, sleeping timestepUs between ticks.
func (e *Engine) Start(timestepUs uint32) {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.ctx != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.ctx = ctx
	e.cancel = cancel
	e.done = make(chan struct{})

	go e.runLoop(ctx, e.done, timestepUs)
}

func (e *Engine) runLoop(ctx context.Context, done chan struct{}, timestepUs uint32) {
	defer close(done)

	ticker := time.NewTicker(time.Duration(timestepUs) * time.Microsecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Tick(timestepUs)
		}
	}
}

// Stop halts the engine's tick goroutine, joining with a bounded timeout.
func (e *Engine) Stop() {
	e.runMu.Lock()
	if e.ctx == nil {
		e.runMu.Unlock()
		return
	}
	cancel := e.cancel
	done := e.done
	e.ctx = nil
	e.cancel = nil
	e.runMu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(joinTimeout):
	}
}
