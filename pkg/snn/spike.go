package snn

// Spike is the intra-process message an Engine produces on firing and
// consumes on routing. Unlike layout.Spike's wire-level uint8 backplane
// index, a Spike here addresses its source backplane by name to match how
// backplane.Backplane and cluster.Cluster name their components; the
// packed uint8/24-bit encodings in pkg/layout remain the wire ABI, applied
// only when a spike's source is resolved against a synapse's source_id.
type Spike struct {
	SourceBackplane string
	SourceNode      int
	NeuronID        uint16
	TimestampUs     uint32
	Value           float32
}
