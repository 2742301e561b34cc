package model

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/chewxy/math32"
)

// InputSize is the edge length of the square grayscale input.
const InputSize = 48

// Network is the stress regression CNN:
//
//	conv3x3(32) relu, maxpool2
//	conv3x3(64) relu, maxpool2
//	conv3x3(128) relu, maxpool2
//	flatten, dense(256) relu, dropout .5, dense(64) relu, dropout .3, dense(1) sigmoid
//
// A Network is not safe for concurrent Forward calls on the same instance
// when parameters are being replaced; callers serialize access.
type Network struct {
	layers  []Layer
	trained bool
}

// New builds the network with deterministic Glorot-uniform initial parameters.
func New() *Network {
	n := &Network{layers: []Layer{
		NewConv2D("conv2d_1", 3, 3, 1, 32, ReLU),
		NewMaxPool2D("max_pooling2d_1", 2),
		NewConv2D("conv2d_2", 3, 3, 32, 64, ReLU),
		NewMaxPool2D("max_pooling2d_2", 2),
		NewConv2D("conv2d_3", 3, 3, 64, 128, ReLU),
		NewMaxPool2D("max_pooling2d_3", 2),
		NewFlatten("flatten"),
		NewDense("dense_1", 4*4*128, 256, ReLU),
		NewDropout("dropout_1", 0.5),
		NewDense("dense_2", 256, 64, ReLU),
		NewDropout("dropout_2", 0.3),
		NewDense("dense_3", 64, 1, Sigmoid),
	}}
	n.Initialize(1)
	return n
}

// Layers returns the ordered layers.
func (n *Network) Layers() []Layer {
	return n.layers
}

// Params returns all parameters in layer order.
func (n *Network) Params() []*Param {
	var params []*Param
	for _, l := range n.layers {
		params = append(params, l.Params()...)
	}
	return params
}

// ParamCount is the number of scalar parameters.
func (n *Network) ParamCount() int {
	total := 0
	for _, p := range n.Params() {
		total += len(p.Data)
	}
	return total
}

// Trained reports whether the parameters come from a trained artifact.
func (n *Network) Trained() bool {
	return n.trained
}

// MarkTrained flags the current parameters as trained, e.g. after importing
// weights exported from a training run. SaveWeights then writes "SDW1".
func (n *Network) MarkTrained() {
	n.trained = true
}

// Initialize resets weights to Glorot-uniform values drawn from seed and biases to zero.
// The network counts as untrained afterwards.
func (n *Network) Initialize(seed uint64) {
	n.trained = false
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	for _, l := range n.layers {
		var kernel, bias *Param
		var fanIn, fanOut int
		switch t := l.(type) {
		case *Conv2D:
			kernel, bias = t.Kernel, t.Bias
			fanIn, fanOut = t.KH*t.KW*t.In, t.KH*t.KW*t.Out
		case *Dense:
			kernel, bias = t.Weights, t.Bias
			fanIn, fanOut = t.In, t.Out
		default:
			continue
		}
		limit := math32.Sqrt(6 / float32(fanIn+fanOut))
		for i := range kernel.Data {
			kernel.Data[i] = (rng.Float32()*2 - 1) * limit
		}
		clear(bias.Data)
	}
}

// Forward runs a 48x48x1 input through the network and returns the sigmoid output.
func (n *Network) Forward(input []float32) (float32, error) {
	t, err := NewTensor(InputSize, InputSize, 1, input)
	if err != nil {
		return 0, err
	}
	for _, l := range n.layers {
		t, err = l.Forward(t)
		if err != nil {
			return 0, err
		}
	}
	if t.Len() != 1 {
		return 0, fmt.Errorf("model: expected single output, got %d", t.Len())
	}
	out := t.Data[0]
	if math32.IsNaN(out) || math32.IsInf(out, 0) {
		return 0, fmt.Errorf("model: non-finite output %v", out)
	}
	return out, nil
}

// Summary lists layers and parameter shapes.
func (n *Network) Summary() string {
	var sb strings.Builder
	for _, l := range n.layers {
		fmt.Fprintf(&sb, "%-18s", l.Name())
		for _, p := range l.Params() {
			fmt.Fprintf(&sb, " %v", p.Shape)
		}
		sb.WriteByte('\n')
	}
	fmt.Fprintf(&sb, "total params: %d\n", n.ParamCount())
	if n.trained {
		sb.WriteString("weights: trained\n")
	} else {
		sb.WriteString("weights: untrained\n")
	}
	return sb.String()
}
