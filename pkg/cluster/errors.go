package cluster

import "errors"

var (
	// ErrBackplaneNotFound is returned when a backplane name is unknown to the cluster.
	ErrBackplaneNotFound = errors.New("backplane not found")

	// ErrDuplicateBackplane is returned when adding a backplane whose name is already taken.
	ErrDuplicateBackplane = errors.New("duplicate backplane name")
)
