package backplane

import "errors"

var (
	// ErrNodeNotFound is returned when a node id does not exist on the backplane.
	ErrNodeNotFound = errors.New("node not found on backplane")

	// ErrTooManyNodes is returned when a backplane would exceed its 16-node capacity.
	ErrTooManyNodes = errors.New("backplane cannot hold more than 16 nodes")
)
