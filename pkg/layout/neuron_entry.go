// Package layout implements the fixed-offset binary ABI shared by the
// compiler, the node model's PSRAM scanner, and the SNN engine: the 256-byte
// neuron entry, the 4-byte synapse word, the 256-byte firmware header, and
// the logical spike packet. Every encoder here is pure and stateless — it
// never touches node, cluster, or engine state.
package layout

import (
	"encoding/binary"
	"math"
)

const (
	// EntrySize is the fixed width of one neuron-table row, in bytes.
	EntrySize = 256

	// MaxSynapses is the hard per-neuron synapse capacity enforced both by
	// the compiler (drops overflow silently) and the entry codec (truncates
	// to this many).
	MaxSynapses = 60

	// synapseCapacityField is the constant written to the synapse_capacity
	// field of every entry; it never varies per neuron.
	synapseCapacityField = MaxSynapses

	// EndMarkerID is the local neuron_id value that terminates a table.
	EndMarkerID = 0xFFFF

	synapseWordSize  = 4
	synapseTableSize = MaxSynapses * synapseWordSize // 240
)

// Flag bits for NeuronEntry.Flags.
const (
	FlagActive uint16 = 1 << 0
	FlagInput  uint16 = 1 << 2
	FlagOutput uint16 = 1 << 3
)

// SynapseWord is one packed 4-byte synapse reference: a 24-bit same-backplane
// source encoding `(node_id<<16)|local_id` and an 8-bit quantized weight.
type SynapseWord struct {
	SourceEncoded uint32 // low 24 bits significant
	Weight        uint8
}

// EncodeSourceID packs a same-backplane node/local pair into the 24-bit
// source encoding used inside a synapse word.
func EncodeSourceID(nodeID uint8, localID uint16) uint32 {
	return (uint32(nodeID) << 16) | uint32(localID)
}

// DecodeSourceID unpacks the 24-bit source encoding back into node/local.
func DecodeSourceID(encoded uint32) (nodeID uint8, localID uint16) {
	encoded &= 0x00FFFFFF
	return uint8(encoded >> 16), uint16(encoded & 0xFFFF)
}

func encodeSynapseWord(w SynapseWord) uint32 {
	return ((w.SourceEncoded & 0x00FFFFFF) << 8) | uint32(w.Weight)
}

func decodeSynapseWord(raw uint32) SynapseWord {
	return SynapseWord{
		SourceEncoded: (raw >> 8) & 0x00FFFFFF,
		Weight:        uint8(raw & 0xFF),
	}
}

// NeuronEntry is the decoded form of one 256-byte neuron-table row.
type NeuronEntry struct {
	LocalID           uint16
	Flags             uint16
	Potential         float32
	Threshold         float32
	LastSpikeTimeUs   uint32
	SynapseCount      uint16
	LeakRate          float32
	RefractoryPeriod  uint32
	Synapses          []SynapseWord
}

// EncodeNeuronEntry packs e into a 256-byte row. The caller must ensure
// len(e.Synapses) <= MaxSynapses; EncodeNeuronEntry truncates silently to
// mirror the compiler's capacity-preserving drop behavior when handed more
// than that — callers that need a hard failure should check
// len(e.Synapses) themselves before calling.
func EncodeNeuronEntry(e NeuronEntry) []byte {
	buf := make([]byte, EntrySize)

	binary.LittleEndian.PutUint16(buf[0:2], e.LocalID)
	binary.LittleEndian.PutUint16(buf[2:4], e.Flags)
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(e.Potential))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(e.Threshold))
	binary.LittleEndian.PutUint32(buf[12:16], e.LastSpikeTimeUs)

	synapses := e.Synapses
	if len(synapses) > MaxSynapses {
		synapses = synapses[:MaxSynapses]
	}
	binary.LittleEndian.PutUint16(buf[16:18], uint16(len(synapses)))
	binary.LittleEndian.PutUint16(buf[18:20], synapseCapacityField)
	// bytes 20:24 reserved, left zero.
	binary.LittleEndian.PutUint32(buf[24:28], math.Float32bits(e.LeakRate))
	binary.LittleEndian.PutUint32(buf[28:32], e.RefractoryPeriod)
	// bytes 32:40 reserved, left zero.

	off := 40
	for _, s := range synapses {
		binary.LittleEndian.PutUint32(buf[off:off+synapseWordSize], encodeSynapseWord(s))
		off += synapseWordSize
	}
	// Remaining synapse slots stay zeroed — they are never read because
	// SynapseCount bounds the scan.

	return buf
}

// DecodeNeuronEntry unpacks a 256-byte row produced by EncodeNeuronEntry.
func DecodeNeuronEntry(b []byte) (NeuronEntry, error) {
	if len(b) < EntrySize {
		return NeuronEntry{}, ErrEntryTooShort
	}

	e := NeuronEntry{
		LocalID:          binary.LittleEndian.Uint16(b[0:2]),
		Flags:            binary.LittleEndian.Uint16(b[2:4]),
		Potential:        math.Float32frombits(binary.LittleEndian.Uint32(b[4:8])),
		Threshold:        math.Float32frombits(binary.LittleEndian.Uint32(b[8:12])),
		LastSpikeTimeUs:  binary.LittleEndian.Uint32(b[12:16]),
		SynapseCount:     binary.LittleEndian.Uint16(b[16:18]),
		LeakRate:         math.Float32frombits(binary.LittleEndian.Uint32(b[24:28])),
		RefractoryPeriod: binary.LittleEndian.Uint32(b[28:32]),
	}

	count := int(e.SynapseCount)
	if count > MaxSynapses {
		count = MaxSynapses
	}
	e.Synapses = make([]SynapseWord, 0, count)
	off := 40
	for i := 0; i < count; i++ {
		raw := binary.LittleEndian.Uint32(b[off : off+synapseWordSize])
		e.Synapses = append(e.Synapses, decodeSynapseWord(raw))
		off += synapseWordSize
	}

	return e, nil
}

// EndMarkerEntry returns the 256-byte sentinel row firmware uses to
// terminate a table scan: first u16 is EndMarkerID, remainder zero.
func EndMarkerEntry() []byte {
	buf := make([]byte, EntrySize)
	binary.LittleEndian.PutUint16(buf[0:2], EndMarkerID)
	return buf
}

// IsEndMarker reports whether a 256-byte row is the end-of-table sentinel.
func IsEndMarker(b []byte) bool {
	return len(b) >= 2 && binary.LittleEndian.Uint16(b[0:2]) == EndMarkerID
}

// IsEmptyEntry reports whether a row is all-zero, the other table-scan
// terminator condition alongside the explicit end marker.
func IsEmptyEntry(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
