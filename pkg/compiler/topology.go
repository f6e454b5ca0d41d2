package compiler

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Layer types recognized in a topology document.
const (
	LayerInput  = "input"
	LayerHidden = "hidden"
	LayerOutput = "output"
)

// Connection kinds recognized in a topology document's connection_type
// field. A connection naming both source_neuron and target_neuron is
// routed to the explicit path regardless of connection_type; see
// synthesizeConnections.
const (
	ConnFullyConnected = "fully_connected"
	ConnSparseRandom   = "sparse_random"
	ConnRandom         = "random"
)

// Weight initializers recognized in a topology document.
const (
	WeightRandomNormal  = "random_normal"
	WeightRandomUniform = "random_uniform"
	WeightConstant      = "constant"
)

// Layer describes one contiguous span of global neuron ids and the LIF
// parameters every neuron in that span inherits unless overridden.
type Layer struct {
	LayerID           int      `json:"layer_id"`
	LayerType         string   `json:"layer_type"`
	NeuronIDs         [2]int   `json:"neuron_ids"` // [start, end_inclusive]
	Threshold         *float64 `json:"threshold,omitempty"`
	LeakRate          *float64 `json:"leak_rate,omitempty"`
	RefractoryPeriodUs *uint32 `json:"refractory_period_us,omitempty"`
}

// Connection describes one synapse-generating rule between layers or
// individual neurons.
type Connection struct {
	SourceLayer            *int     `json:"source_layer,omitempty"`
	TargetLayer            *int     `json:"target_layer,omitempty"`
	SourceNeuron           *int     `json:"source_neuron,omitempty"`
	TargetNeuron           *int     `json:"target_neuron,omitempty"`
	ConnectionType         string   `json:"connection_type"`
	Weight                 *float64 `json:"weight,omitempty"`
	WeightInit             string   `json:"weight_init,omitempty"`
	WeightMean             *float64 `json:"weight_mean,omitempty"`
	WeightStddev           *float64 `json:"weight_stddev,omitempty"`
	WeightMin              *float64 `json:"weight_min,omitempty"`
	WeightMax              *float64 `json:"weight_max,omitempty"`
	WeightRange            *[2]float64 `json:"weight_range,omitempty"`
	Probability            *float64 `json:"probability,omitempty"`
	ConnectionProbability  *float64 `json:"connection_probability,omitempty"`
}

// probability returns the connection's inclusion probability, accepting
// either "probability" or "connection_probability" as the field name.
func (c Connection) probability() float64 {
	if c.ConnectionProbability != nil {
		return *c.ConnectionProbability
	}
	if c.Probability != nil {
		return *c.Probability
	}
	return 0
}

// NodeAssignment selects the partitioning strategy and optionally restricts
// it, whichever strategy is chosen, to an explicit node list or backplane.
type NodeAssignment struct {
	Strategy  string `json:"strategy"`
	Nodes     []int  `json:"nodes,omitempty"`
	Backplane string `json:"backplane,omitempty"`
}

// TopologyDoc is the typed form of the compiler's input document: an
// explicit-option record rather than a free-form dictionary, so unknown
// fields are rejected at decode time instead of silently ignored.
type TopologyDoc struct {
	NetworkName     string          `json:"network_name"`
	NeuronCount     int             `json:"neuron_count"`
	Layers          []Layer         `json:"layers"`
	Connections     []Connection    `json:"connections"`
	NodeAssignment  NodeAssignment  `json:"node_assignment"`
}

// DecodeTopologyDoc parses a JSON topology document, rejecting any field not
// present in TopologyDoc.
func DecodeTopologyDoc(data []byte) (TopologyDoc, error) {
	var doc TopologyDoc
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return TopologyDoc{}, fmt.Errorf("decoding topology document: %w", err)
	}
	return doc, nil
}

// BackplaneDescriptor names one physical backplane and its node capacity.
type BackplaneDescriptor struct {
	Name      string `json:"name"`
	NodeCount int    `json:"node_count"`
}

// ClusterDescriptor is the optional input describing available hardware.
// A nil *ClusterDescriptor means "default to a single-backplane assignment
// list".
type ClusterDescriptor struct {
	Backplanes []BackplaneDescriptor `json:"backplanes"`
}

// DecodeClusterDescriptor parses a JSON cluster descriptor document,
// rejecting unknown fields.
func DecodeClusterDescriptor(data []byte) (ClusterDescriptor, error) {
	var cd ClusterDescriptor
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cd); err != nil {
		return ClusterDescriptor{}, fmt.Errorf("decoding cluster descriptor: %w", err)
	}
	return cd, nil
}

const maxNodesPerBackplane = 16

func (cd ClusterDescriptor) validate() error {
	seen := make(map[string]bool, len(cd.Backplanes))
	for _, bp := range cd.Backplanes {
		if seen[bp.Name] {
			return newError(KindInvalidCluster, "duplicate backplane name %q", bp.Name)
		}
		seen[bp.Name] = true
		if bp.NodeCount <= 0 || bp.NodeCount > maxNodesPerBackplane {
			return newError(KindInvalidCluster, "backplane %q node_count %d out of range (1..%d)", bp.Name, bp.NodeCount, maxNodesPerBackplane)
		}
	}
	return nil
}
