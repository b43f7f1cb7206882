// Package network implements neural network function approximators as
// Gorgonia expression graphs.
package network

import (
	G "gorgonia.org/gorgonia"
)

// NeuralNet implements a neural network whose forward pass has been
// added to a Gorgonia expression graph. A NeuralNet does not own a
// virtual machine: callers construct a VM over the net's graph and run
// it to produce the net's Output().
type NeuralNet interface {
	// Graph returns the computational graph holding the network
	Graph() *G.ExprGraph

	// Clone clones the network into a new graph with the same input
	// batch size
	Clone() (NeuralNet, error)

	// CloneWithBatch clones the network into a new graph with a new
	// input batch size
	CloneWithBatch(int) (NeuralNet, error)

	// CloneWithInputsTo clones the network into an existing graph,
	// using the argument nodes as the network input. Multiple inputs
	// are concatenated along the given axis. This is how a copy of one
	// network is embedded into another network's training graph, e.g.
	// a critic evaluated on a policy's output node.
	CloneWithInputsTo(axis int, inputs []*G.Node,
		g *G.ExprGraph) (NeuralNet, error)

	BatchSize() int
	Features() int
	Outputs() int

	// SetInput sets the value of the network's input node
	SetInput([]float64) error

	// Set sets the weights of the network to those of another network
	Set(NeuralNet) error

	// Polyak sets the weights of the network to an exponential moving
	// average between its existing weights and those of another
	// network: dest ← tau*source + (1-tau)*dest
	Polyak(NeuralNet, float64) error

	Learnables() G.Nodes
	Model() []G.ValueGrad

	// Output returns the value of the network's prediction after a VM
	// has run the graph
	Output() G.Value

	// Prediction returns the node of the computational graph that
	// stores the network's prediction
	Prediction() *G.Node
}

// Set sets the weights of dest to be equal to the weights of source
func Set(dest, source NeuralNet) error {
	return dest.Set(source)
}

// Polyak sets the weights of dest to a polyak average between its
// existing weights and the weights of source with rate tau
func Polyak(dest, source NeuralNet, tau float64) error {
	return dest.Polyak(source, tau)
}
