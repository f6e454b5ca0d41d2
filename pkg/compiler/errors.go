package compiler

import "fmt"

// Error is a CompileError: the compiler is pure and fails loud, surfacing
// the caller's mistake with no partial deployment produced.
type Error struct {
	Kind    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("compile error [%s]: %s", e.Kind, e.Message)
}

func newError(kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

const (
	KindUnknownLayer     = "unknown_layer"
	KindUnmappedNeuron   = "unmapped_neuron"
	KindNonContiguous    = "non_contiguous_span"
	KindInvalidTopology  = "invalid_topology"
	KindInvalidCluster   = "invalid_cluster"
	KindCapacityExceeded = "capacity_exceeded"
)
