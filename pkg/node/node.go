// Package node models a single embedded compute node: its flash/PSRAM
// memory, status, LED, statistics, and the operations the HTTP surface and
// SNN engine perform against it.
package node

import (
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/neurofab/z1cluster/pkg/layout"
	"github.com/neurofab/z1cluster/pkg/memory"
)

// Status is a node's lifecycle state.
type Status int

const (
	StatusInactive Status = iota
	StatusActive
	StatusError
	StatusBootloader
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusError:
		return "error"
	case StatusBootloader:
		return "bootloader"
	default:
		return "inactive"
	}
}

// LED holds the node's RGB indicator state.
type LED struct {
	R, G, B uint8
}

// Stats are the node's cumulative operational counters.
type Stats struct {
	ResetCount          uint64 `json:"reset_count"`
	MessagesReceived    uint64 `json:"messages_received"`
	BusMessagesReceived uint64 `json:"bus_messages_received"`
	MemoryReadOps       uint64 `json:"memory_reads"`
	MemoryWriteOps      uint64 `json:"memory_writes"`
	FirmwareLoadCount   uint64 `json:"firmware_loads"`
}

// Message is an item enqueued by ReceiveMessage, awaiting processing.
type Message struct {
	Cmd  string
	Data []byte
}

// Node is one compute unit: its memory, status, LED, stats, inbound message
// queue, and the cache of neurons parsed from its last firmware/table load.
type Node struct {
	ID          int
	BackplaneID string

	Memory *memory.Memory

	bootTime time.Time

	mu             sync.RWMutex
	status         Status
	led            LED
	stats          Stats
	statsSnapshot  []byte
	messageQueue   []Message
	parsedNeurons  []memory.ParsedNeuron
	firmwareHeader *layout.FirmwareHeader
}

// New creates a node in the ACTIVE state with freshly allocated memory.
func New(id int, backplaneID string) *Node {
	return &Node{
		ID:          id,
		BackplaneID: backplaneID,
		Memory:      memory.New(),
		bootTime:    time.Now(),
		status:      StatusActive,
	}
}

// Status returns the node's current lifecycle state.
func (n *Node) Status() Status {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.status
}

// SetStatus updates the node's lifecycle state.
func (n *Node) SetStatus(s Status) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.status = s
}

// LED returns the node's current indicator color.
func (n *Node) LED() LED {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.led
}

// SetLED updates the node's indicator color.
func (n *Node) SetLED(led LED) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.led = led
}

// Stats returns a snapshot of the node's counters.
func (n *Node) Stats() Stats {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.stats
}

// ReadMemory reads length bytes starting at addr.
func (n *Node) ReadMemory(addr uint32, length int) ([]byte, error) {
	data, err := n.Memory.Read(addr, length)
	n.mu.Lock()
	n.stats.MemoryReadOps++
	n.mu.Unlock()
	return data, err
}

// WriteMemory writes data starting at addr.
func (n *Node) WriteMemory(addr uint32, data []byte) (int, error) {
	written, err := n.Memory.Write(addr, data)
	n.mu.Lock()
	n.stats.MemoryWriteOps++
	n.mu.Unlock()
	return written, err
}

// LoadFirmware parses and stores blob's header and writes the blob to flash.
func (n *Node) LoadFirmware(blob []byte) (layout.FirmwareHeader, error) {
	hdr, err := n.Memory.LoadFirmware(blob)
	if err != nil {
		return hdr, err
	}
	n.mu.Lock()
	n.firmwareHeader = &hdr
	n.stats.FirmwareLoadCount++
	n.mu.Unlock()
	return hdr, nil
}

// FirmwareHeader returns the most recently loaded header, if any.
func (n *Node) FirmwareHeader() (layout.FirmwareHeader, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.firmwareHeader == nil {
		return layout.FirmwareHeader{}, false
	}
	return *n.firmwareHeader, true
}

// ParseNeuronTable scans the node's PSRAM neuron table and caches the result.
func (n *Node) ParseNeuronTable() ([]memory.ParsedNeuron, error) {
	parsed, err := n.Memory.ParseNeuronTable()
	if err != nil {
		return nil, err
	}
	n.mu.Lock()
	n.parsedNeurons = parsed
	n.mu.Unlock()
	return parsed, nil
}

// ParsedNeurons returns the cached result of the last ParseNeuronTable call.
func (n *Node) ParsedNeurons() []memory.ParsedNeuron {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.parsedNeurons
}

// ReceiveMessage enqueues an inbound bus message and increments counters.
func (n *Node) ReceiveMessage(cmd string, data []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messageQueue = append(n.messageQueue, Message{Cmd: cmd, Data: data})
	n.stats.MessagesReceived++
	n.stats.BusMessagesReceived++
}

// DrainMessages removes and returns all queued inbound messages.
func (n *Node) DrainMessages() []Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	msgs := n.messageQueue
	n.messageQueue = nil
	return msgs
}

// Reset clears status, LED, queues, and the parsed-neuron cache, then
// increments the reset counter and resets boot time.
func (n *Node) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.status = StatusActive
	n.led = LED{}
	n.messageQueue = nil
	n.parsedNeurons = nil
	n.stats.ResetCount++
	n.bootTime = time.Now()
}

// Info is the externally visible snapshot of a node's state.
type Info struct {
	ID          int
	BackplaneID string
	Status      string
	UptimeMs    int64
	MemoryFree  int
	LED         LED
	Stats       Stats
	NeuronCount int
}

// GetInfo builds the NodeInfo snapshot used by the HTTP surface.
func (n *Node) GetInfo() Info {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return Info{
		ID:          n.ID,
		BackplaneID: n.BackplaneID,
		Status:      n.status.String(),
		UptimeMs:    time.Since(n.bootTime).Milliseconds(),
		MemoryFree:  len(n.Memory.Psram) + len(n.Memory.Flash),
		LED:         n.led,
		Stats:       n.stats,
		NeuronCount: len(n.parsedNeurons),
	}
}

// StatsSnapshot msgpack-encodes the node's current stats counters, keeps
// the latest encoding in statsSnapshot, and returns the encoded bytes. Each
// call re-encodes the counters. Used by the HTTP surface's compact stats introspection
// route, which serves the wire encoding directly rather than re-marshaling
// through JSON.
func (n *Node) StatsSnapshot() ([]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	blob, err := msgpack.Marshal(n.stats)
	if err != nil {
		return nil, err
	}
	n.statsSnapshot = blob
	return n.statsSnapshot, nil
}
