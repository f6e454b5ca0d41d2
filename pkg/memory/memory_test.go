package memory

import (
	"testing"

	"github.com/neurofab/z1cluster/pkg/layout"
)

func TestReadWriteRoundTrip(t *testing.T) {
	m := New()
	data := []byte{1, 2, 3, 4}
	n, err := m.Write(PsramBase+16, data)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != len(data) {
		t.Fatalf("wrote %d bytes, want %d", n, len(data))
	}

	got, err := m.Read(PsramBase+16, len(data))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("got %v, want %v", got, data)
	}
}

func TestReadWriteFlashRegion(t *testing.T) {
	m := New()
	if _, err := m.Write(FlashBase, []byte{0xAA}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := m.Read(FlashBase, 1)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got[0] != 0xAA {
		t.Errorf("got %x, want 0xAA", got[0])
	}
}

func TestOutOfBoundsBelowFlash(t *testing.T) {
	m := New()
	if _, err := m.Read(0x100, 4); err != ErrOutOfBounds {
		t.Fatalf("err = %v, want ErrOutOfBounds", err)
	}
}

func TestOutOfBoundsPastRegionEnd(t *testing.T) {
	m := New()
	if _, err := m.Read(FlashBase+FlashSize-2, 4); err != ErrOutOfBounds {
		t.Fatalf("err = %v, want ErrOutOfBounds", err)
	}
}

func TestOutOfBoundsGapBetweenRegions(t *testing.T) {
	m := New()
	addr := FlashBase + FlashSize + 1
	if addr >= PsramBase {
		t.Skip("flash/psram regions are adjacent in this configuration")
	}
	if _, err := m.Read(addr, 4); err != ErrOutOfBounds {
		t.Fatalf("err = %v, want ErrOutOfBounds", err)
	}
}

func TestLoadFirmwareRejectsShortBlob(t *testing.T) {
	m := New()
	if _, err := m.LoadFirmware(make([]byte, 10)); err != ErrFirmwareTooShort {
		t.Fatalf("err = %v, want ErrFirmwareTooShort", err)
	}
}

func TestLoadFirmwareRejectsBadMagic(t *testing.T) {
	m := New()
	blob := make([]byte, layout.FirmwareHeaderSize+16)
	if _, err := m.LoadFirmware(blob); err == nil {
		t.Fatal("expected error for zeroed header (bad magic)")
	}
}

func TestLoadFirmwareWritesBlobToFlash(t *testing.T) {
	m := New()
	hdr := layout.FirmwareHeader{
		Magic:        layout.FirmwareMagic,
		Version:      1,
		FirmwareSize: 300,
		Name:         "app",
	}
	payload := make([]byte, 44)
	for i := range payload {
		payload[i] = byte(i)
	}
	blob := append(layout.EncodeFirmwareHeader(hdr), payload...)

	got, err := m.LoadFirmware(blob)
	if err != nil {
		t.Fatalf("LoadFirmware: %v", err)
	}
	if got.Magic != layout.FirmwareMagic || got.Name != "app" {
		t.Errorf("decoded header = %+v", got)
	}

	readBack, err := m.Read(FlashBase, len(blob))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(readBack) != string(blob) {
		t.Error("flash does not contain the written blob")
	}
}

func TestParseNeuronTableStopsAtEndMarker(t *testing.T) {
	m := New()
	e0 := layout.EncodeNeuronEntry(layout.NeuronEntry{LocalID: 0, Flags: layout.FlagActive})
	e1 := layout.EncodeNeuronEntry(layout.NeuronEntry{LocalID: 1, Flags: layout.FlagActive})
	buf := append(append([]byte{}, e0...), e1...)
	buf = append(buf, layout.EndMarkerEntry()...)

	if _, err := m.Write(NeuronTableBase, buf); err != nil {
		t.Fatalf("Write: %v", err)
	}

	parsed, err := m.ParseNeuronTable()
	if err != nil {
		t.Fatalf("ParseNeuronTable: %v", err)
	}
	if len(parsed) != 2 {
		t.Fatalf("parsed %d entries, want 2", len(parsed))
	}
	if parsed[0].Entry.LocalID != 0 || parsed[1].Entry.LocalID != 1 {
		t.Errorf("unexpected local ids: %+v", parsed)
	}
}

func TestParseNeuronTableAllZeroKeepsOnlyFirstRow(t *testing.T) {
	m := New()
	parsed, err := m.ParseNeuronTable()
	if err != nil {
		t.Fatalf("ParseNeuronTable: %v", err)
	}
	// The all-zero stop condition only applies past the first row, so the
	// first zero row is decoded and the scan stops at the second.
	if len(parsed) != 1 {
		t.Fatalf("parsed %d entries, want 1 for an all-zero table", len(parsed))
	}
}
