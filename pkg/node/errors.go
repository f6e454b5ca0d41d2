package node

import "errors"

var (
	// ErrNotFound is returned when a node id is absent from a backplane.
	ErrNotFound = errors.New("node not found")
)
