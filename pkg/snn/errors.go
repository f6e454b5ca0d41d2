package snn

import "errors"

var (
	// ErrNeuronNotFound is returned by InjectSpike for an unknown local neuron id.
	ErrNeuronNotFound = errors.New("neuron not found on engine")
)
