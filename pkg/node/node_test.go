package node

import (
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/neurofab/z1cluster/pkg/layout"
	"github.com/neurofab/z1cluster/pkg/memory"
)

func TestNewNodeIsActive(t *testing.T) {
	n := New(0, "bp0")
	if n.Status() != StatusActive {
		t.Errorf("status = %v, want active", n.Status())
	}
	if n.GetInfo().NeuronCount != 0 {
		t.Errorf("fresh node should report zero neurons")
	}
}

func TestResetClearsStateAndCountsUp(t *testing.T) {
	n := New(0, "bp0")
	n.SetStatus(StatusError)
	n.SetLED(LED{R: 1, G: 2, B: 3})
	n.ReceiveMessage("ping", nil)

	n.Reset()

	if n.Status() != StatusActive {
		t.Errorf("status after reset = %v, want active", n.Status())
	}
	if n.LED() != (LED{}) {
		t.Errorf("LED after reset = %+v, want zero", n.LED())
	}
	if n.Stats().ResetCount != 1 {
		t.Errorf("reset_count = %d, want 1", n.Stats().ResetCount)
	}
	if len(n.DrainMessages()) != 0 {
		t.Error("message queue should be empty after reset")
	}
}

func TestLoadAndParseNeuronTable(t *testing.T) {
	n := New(0, "bp0")
	hdr := layout.FirmwareHeader{Magic: layout.FirmwareMagic, Name: "fw"}
	blob := layout.EncodeFirmwareHeader(hdr)
	if _, err := n.LoadFirmware(blob); err != nil {
		t.Fatalf("LoadFirmware: %v", err)
	}
	got, ok := n.FirmwareHeader()
	if !ok || got.Name != "fw" {
		t.Errorf("FirmwareHeader = %+v, ok=%v", got, ok)
	}

	entry := layout.EncodeNeuronEntry(layout.NeuronEntry{LocalID: 0, Flags: layout.FlagActive})
	table := append(append([]byte{}, entry...), layout.EndMarkerEntry()...)
	if _, err := n.WriteMemory(memory.NeuronTableBase, table); err != nil {
		t.Fatalf("WriteMemory: %v", err)
	}

	parsed, err := n.ParseNeuronTable()
	if err != nil {
		t.Fatalf("ParseNeuronTable: %v", err)
	}
	if len(parsed) != 1 {
		t.Fatalf("parsed %d entries, want 1", len(parsed))
	}
	if n.GetInfo().NeuronCount != 1 {
		t.Error("GetInfo().NeuronCount should reflect the cached parse")
	}
}

func TestReceiveMessageIncrementsStats(t *testing.T) {
	n := New(0, "bp0")
	n.ReceiveMessage("cmd", []byte("data"))
	stats := n.Stats()
	if stats.MessagesReceived != 1 || stats.BusMessagesReceived != 1 {
		t.Errorf("stats = %+v, want both counters at 1", stats)
	}
	msgs := n.DrainMessages()
	if len(msgs) != 1 || msgs[0].Cmd != "cmd" {
		t.Errorf("drained messages = %+v", msgs)
	}
	if len(n.DrainMessages()) != 0 {
		t.Error("second drain should be empty")
	}
}

func TestStatsSnapshotRoundTrips(t *testing.T) {
	n := New(0, "bp0")
	n.ReceiveMessage("cmd", nil)
	n.ReceiveMessage("cmd", nil)

	blob, err := n.StatsSnapshot()
	if err != nil {
		t.Fatalf("StatsSnapshot: %v", err)
	}

	var decoded Stats
	if err := msgpack.Unmarshal(blob, &decoded); err != nil {
		t.Fatalf("msgpack.Unmarshal: %v", err)
	}
	if decoded != n.Stats() {
		t.Errorf("decoded snapshot = %+v, want %+v", decoded, n.Stats())
	}
}
