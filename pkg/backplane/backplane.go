// Package backplane models one physical carrier of up to 16 compute nodes
// sharing a simulated bus with configurable delivery latency.
package backplane

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/neurofab/z1cluster/pkg/node"
)

// MaxNodes is the hardware limit on nodes per backplane.
const MaxNodes = 16

// BroadcastTarget is the sentinel Target value meaning "every other node".
const BroadcastTarget = 255

// BusMessage is one unicast or broadcast message in flight on the bus.
type BusMessage struct {
	Source int
	Target int
	Cmd    string
	Data   []byte
	Ts     time.Time
}

// Stats are the backplane's cumulative bus counters.
type Stats struct {
	MessagesSent      uint64
	MessagesDelivered uint64
}

// Backplane owns a fixed set of nodes and a pending-message queue. Messages
// are delivered once they have aged at least BusLatency; undelivered
// messages keep their queue position, so the bus never reorders traffic.
type Backplane struct {
	Name       string
	BusLatency time.Duration

	mu      sync.Mutex
	nodes   map[int]*node.Node
	ids     []int
	pending []BusMessage
	stats   Stats
}

// New creates a backplane with nodeCount freshly-initialized nodes.
func New(name string, nodeCount int, busLatency time.Duration) (*Backplane, error) {
	if nodeCount < 0 || nodeCount > MaxNodes {
		return nil, fmt.Errorf("%w: requested %d", ErrTooManyNodes, nodeCount)
	}

	bp := &Backplane{
		Name:       name,
		BusLatency: busLatency,
		nodes:      make(map[int]*node.Node, nodeCount),
		ids:        make([]int, nodeCount),
	}
	for i := 0; i < nodeCount; i++ {
		bp.nodes[i] = node.New(i, name)
		bp.ids[i] = i
	}
	sort.Ints(bp.ids)
	return bp, nil
}

// NodeCount returns the number of nodes on the backplane.
func (bp *Backplane) NodeCount() int {
	return len(bp.ids)
}

// NodeIDs returns the backplane's node ids in ascending order.
func (bp *Backplane) NodeIDs() []int {
	out := make([]int, len(bp.ids))
	copy(out, bp.ids)
	return out
}

// GetNode returns the node with the given id.
func (bp *Backplane) GetNode(id int) (*node.Node, error) {
	n, ok := bp.nodes[id]
	if !ok {
		return nil, ErrNodeNotFound
	}
	return n, nil
}

// Send enqueues msg with its timestamp set to now if not already set.
// Concurrent senders are safely serialized by a single mutex on the queue.
func (bp *Backplane) Send(msg BusMessage, now time.Time) {
	if msg.Ts.IsZero() {
		msg.Ts = now
	}
	bp.mu.Lock()
	defer bp.mu.Unlock()
	bp.pending = append(bp.pending, msg)
	bp.stats.MessagesSent++
}

// Tick examines every pending message and delivers any that have aged at
// least BusLatency, preserving the queue order of everything left behind.
// It returns the number of messages delivered this tick.
func (bp *Backplane) Tick(now time.Time) int {
	bp.mu.Lock()
	due := make([]BusMessage, 0, len(bp.pending))
	remaining := bp.pending[:0:0]
	for _, msg := range bp.pending {
		if now.Sub(msg.Ts) >= bp.BusLatency {
			due = append(due, msg)
		} else {
			remaining = append(remaining, msg)
		}
	}
	bp.pending = remaining
	bp.mu.Unlock()

	for _, msg := range due {
		bp.deliver(msg)
	}

	bp.mu.Lock()
	bp.stats.MessagesDelivered += uint64(len(due))
	bp.mu.Unlock()

	return len(due)
}

// deliver routes a due message to its target(s). Broadcast visits every
// node except the source; unicast visits the single target if present.
func (bp *Backplane) deliver(msg BusMessage) {
	if msg.Target == BroadcastTarget {
		for _, id := range bp.ids {
			if id == msg.Source {
				continue
			}
			bp.nodes[id].ReceiveMessage(msg.Cmd, msg.Data)
		}
		return
	}
	if n, ok := bp.nodes[msg.Target]; ok {
		n.ReceiveMessage(msg.Cmd, msg.Data)
	}
}

// PendingCount returns the number of messages still awaiting delivery.
func (bp *Backplane) PendingCount() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return len(bp.pending)
}

// Stats returns a snapshot of the backplane's bus counters.
func (bp *Backplane) Stats() Stats {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return bp.stats
}
