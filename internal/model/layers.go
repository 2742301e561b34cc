package model

import (
	"fmt"

	"github.com/chewxy/math32"
)

// Layer is one stage of the network.
type Layer interface {
	Name() string
	Forward(in *Tensor) (*Tensor, error)
	Params() []*Param
}

// Activation applied element-wise after a layer.
type Activation int

const (
	Linear Activation = iota
	ReLU
	Sigmoid
)

func (a Activation) apply(v float32) float32 {
	switch a {
	case ReLU:
		if v < 0 {
			return 0
		}
		return v
	case Sigmoid:
		return 1 / (1 + math32.Exp(-v))
	}
	return v
}

// Conv2D is a stride-1 convolution with valid padding.
// Kernel layout is (kh, kw, in, out).
type Conv2D struct {
	name    string
	KH, KW  int
	In, Out int
	Act     Activation
	Kernel  *Param
	Bias    *Param
}

// NewConv2D allocates a zeroed convolution layer.
func NewConv2D(name string, kh, kw, in, out int, act Activation) *Conv2D {
	return &Conv2D{
		name: name, KH: kh, KW: kw, In: in, Out: out, Act: act,
		Kernel: newParam(name+"/kernel", kh, kw, in, out),
		Bias:   newParam(name+"/bias", out),
	}
}

func (l *Conv2D) Name() string     { return l.name }
func (l *Conv2D) Params() []*Param { return []*Param{l.Kernel, l.Bias} }

func (l *Conv2D) Forward(in *Tensor) (*Tensor, error) {
	if in.C != l.In {
		return nil, fmt.Errorf("%s: expected %d input channels, got %d", l.name, l.In, in.C)
	}
	oh, ow := in.H-l.KH+1, in.W-l.KW+1
	if oh <= 0 || ow <= 0 {
		return nil, fmt.Errorf("%s: input %dx%d smaller than kernel", l.name, in.H, in.W)
	}

	out := zeros(oh, ow, l.Out)
	k, bias := l.Kernel.Data, l.Bias.Data
	acc := make([]float32, l.Out)
	for y := 0; y < oh; y++ {
		for x := 0; x < ow; x++ {
			copy(acc, bias)
			for ky := 0; ky < l.KH; ky++ {
				for kx := 0; kx < l.KW; kx++ {
					src := ((y+ky)*in.W + (x + kx)) * in.C
					kbase := (ky*l.KW + kx) * l.In * l.Out
					for ci := 0; ci < l.In; ci++ {
						v := in.Data[src+ci]
						if v == 0 {
							continue
						}
						row := k[kbase+ci*l.Out : kbase+(ci+1)*l.Out]
						for co, w := range row {
							acc[co] += v * w
						}
					}
				}
			}
			dst := (y*ow + x) * l.Out
			for co, v := range acc {
				out.Data[dst+co] = l.Act.apply(v)
			}
		}
	}
	return out, nil
}

// MaxPool2D pools non-overlapping windows; trailing rows/columns are dropped.
type MaxPool2D struct {
	name string
	Size int
}

func NewMaxPool2D(name string, size int) *MaxPool2D {
	return &MaxPool2D{name: name, Size: size}
}

func (l *MaxPool2D) Name() string     { return l.name }
func (l *MaxPool2D) Params() []*Param { return nil }

func (l *MaxPool2D) Forward(in *Tensor) (*Tensor, error) {
	oh, ow := in.H/l.Size, in.W/l.Size
	if oh == 0 || ow == 0 {
		return nil, fmt.Errorf("%s: input %dx%d smaller than pool", l.name, in.H, in.W)
	}
	out := zeros(oh, ow, in.C)
	for y := 0; y < oh; y++ {
		for x := 0; x < ow; x++ {
			for c := 0; c < in.C; c++ {
				best := math32.Inf(-1)
				for dy := 0; dy < l.Size; dy++ {
					for dx := 0; dx < l.Size; dx++ {
						best = math32.Max(best, in.at(y*l.Size+dy, x*l.Size+dx, c))
					}
				}
				out.Data[(y*ow+x)*in.C+c] = best
			}
		}
	}
	return out, nil
}

// Flatten reshapes to 1x1xN keeping HWC order.
type Flatten struct{ name string }

func NewFlatten(name string) *Flatten { return &Flatten{name: name} }

func (l *Flatten) Name() string     { return l.name }
func (l *Flatten) Params() []*Param { return nil }

func (l *Flatten) Forward(in *Tensor) (*Tensor, error) {
	return &Tensor{H: 1, W: 1, C: in.Len(), Data: in.Data}, nil
}

// Dense is a fully connected layer with weight layout (in, out).
type Dense struct {
	name    string
	In, Out int
	Act     Activation
	Weights *Param
	Bias    *Param
}

func NewDense(name string, in, out int, act Activation) *Dense {
	return &Dense{
		name: name, In: in, Out: out, Act: act,
		Weights: newParam(name+"/kernel", in, out),
		Bias:    newParam(name+"/bias", out),
	}
}

func (l *Dense) Name() string     { return l.name }
func (l *Dense) Params() []*Param { return []*Param{l.Weights, l.Bias} }

func (l *Dense) Forward(in *Tensor) (*Tensor, error) {
	if in.Len() != l.In {
		return nil, fmt.Errorf("%s: expected %d inputs, got %d", l.name, l.In, in.Len())
	}
	out := zeros(1, 1, l.Out)
	copy(out.Data, l.Bias.Data)
	w := l.Weights.Data
	for i, v := range in.Data {
		if v == 0 {
			continue
		}
		row := w[i*l.Out : (i+1)*l.Out]
		for j, wj := range row {
			out.Data[j] += v * wj
		}
	}
	for j, v := range out.Data {
		out.Data[j] = l.Act.apply(v)
	}
	return out, nil
}

// Dropout is the identity at inference time; Rate is kept for the summary.
type Dropout struct {
	name string
	Rate float32
}

func NewDropout(name string, rate float32) *Dropout { return &Dropout{name: name, Rate: rate} }

func (l *Dropout) Name() string                        { return l.name }
func (l *Dropout) Params() []*Param                    { return nil }
func (l *Dropout) Forward(in *Tensor) (*Tensor, error) { return in, nil }
