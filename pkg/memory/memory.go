// Package memory models one node's flash and PSRAM address spaces: the
// bounds-checked byte regions the compiler's tables get written into and
// the firmware loader reads its header from.
package memory

import (
	"fmt"

	"github.com/neurofab/z1cluster/pkg/layout"
)

const (
	// FlashBase is the first address of the flash region.
	FlashBase uint32 = 0x10000000
	// FlashSize is the flash region's width in bytes (2 MiB).
	FlashSize uint32 = 2 * 1024 * 1024
	// PsramBase is the first address of the PSRAM region.
	PsramBase uint32 = 0x20000000
	// PsramSize is the PSRAM region's width in bytes (8 MiB).
	PsramSize uint32 = 8 * 1024 * 1024

	// NeuronTableOffset locates the neuron table within PSRAM.
	NeuronTableOffset uint32 = 0x00100000
	// NeuronTableBase is the absolute address of the neuron table.
	NeuronTableBase = PsramBase + NeuronTableOffset

	maxParsedEntries = 1024
	scanWindowBytes  = 1024 * 1024
)

// region identifies which byte slice an address resolves into.
type region int

const (
	regionNone region = iota
	regionFlash
	regionPsram
)

// Memory is one node's byte-addressable flash and PSRAM. Both regions are
// writable here even though real flash is immutable at runtime — the model
// relaxes that for test injection.
type Memory struct {
	Flash []byte
	Psram []byte
}

// New allocates a zeroed Memory with the standard flash/PSRAM sizes.
func New() *Memory {
	return &Memory{
		Flash: make([]byte, FlashSize),
		Psram: make([]byte, PsramSize),
	}
}

func classify(addr uint32) region {
	if addr >= PsramBase {
		return regionPsram
	}
	if addr >= FlashBase {
		return regionFlash
	}
	return regionNone
}

func (m *Memory) resolve(addr uint32, length int) ([]byte, int, error) {
	if length < 0 {
		return nil, 0, fmt.Errorf("%w: negative length", ErrOutOfBounds)
	}
	switch classify(addr) {
	case regionFlash:
		off := addr - FlashBase
		if uint64(off)+uint64(length) > uint64(len(m.Flash)) {
			return nil, 0, ErrOutOfBounds
		}
		return m.Flash, int(off), nil
	case regionPsram:
		off := addr - PsramBase
		if uint64(off)+uint64(length) > uint64(len(m.Psram)) {
			return nil, 0, ErrOutOfBounds
		}
		return m.Psram, int(off), nil
	default:
		return nil, 0, ErrOutOfBounds
	}
}

// Read returns a copy of length bytes starting at addr.
func (m *Memory) Read(addr uint32, length int) ([]byte, error) {
	buf, off, err := m.resolve(addr, length)
	if err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, buf[off:off+length])
	return out, nil
}

// Write copies data into memory starting at addr, returning the number of
// bytes written.
func (m *Memory) Write(addr uint32, data []byte) (int, error) {
	buf, off, err := m.resolve(addr, len(data))
	if err != nil {
		return 0, err
	}
	n := copy(buf[off:off+len(data)], data)
	return n, nil
}

// LoadFirmware parses the first 256 bytes of blob as a firmware header and,
// on success, writes the whole blob into flash starting at FlashBase.
func (m *Memory) LoadFirmware(blob []byte) (layout.FirmwareHeader, error) {
	if len(blob) < layout.FirmwareHeaderSize {
		return layout.FirmwareHeader{}, ErrFirmwareTooShort
	}
	hdr, err := layout.DecodeFirmwareHeader(blob[:layout.FirmwareHeaderSize])
	if err != nil {
		return layout.FirmwareHeader{}, fmt.Errorf("%w: %v", ErrFirmwareMagicMismatch, err)
	}
	if _, err := m.Write(FlashBase, blob); err != nil {
		return layout.FirmwareHeader{}, err
	}
	return hdr, nil
}

// ParsedNeuron is one row recovered from a node's neuron table scan.
type ParsedNeuron struct {
	Entry layout.NeuronEntry
}

// ParseNeuronTable scans PSRAM starting at NeuronTableBase, decoding 256-byte
// rows until it finds the end marker, an all-zero row (past the first
// entry), a hard cap of 1024 entries, or a 1 MiB scan window is exhausted.
func (m *Memory) ParseNeuronTable() ([]ParsedNeuron, error) {
	var out []ParsedNeuron

	for i := 0; i < maxParsedEntries; i++ {
		addr := NeuronTableBase + uint32(i*layout.EntrySize)
		if uint32(i+1)*uint32(layout.EntrySize) > scanWindowBytes {
			break
		}
		row, err := m.Read(addr, layout.EntrySize)
		if err != nil {
			break
		}
		if layout.IsEndMarker(row) {
			break
		}
		if i > 0 && layout.IsEmptyEntry(row) {
			break
		}
		entry, err := layout.DecodeNeuronEntry(row)
		if err != nil {
			break
		}
		out = append(out, ParsedNeuron{Entry: entry})
	}

	return out, nil
}
