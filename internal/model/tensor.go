// Package model implements the stress regression CNN as a pure-Go forward pass.
package model

import "fmt"

// Tensor is a single HWC activation volume (batch size 1).
type Tensor struct {
	H, W, C int
	Data    []float32
}

// NewTensor wraps data; len(data) must equal h*w*c.
func NewTensor(h, w, c int, data []float32) (*Tensor, error) {
	if h <= 0 || w <= 0 || c <= 0 {
		return nil, fmt.Errorf("tensor: invalid shape %dx%dx%d", h, w, c)
	}
	if len(data) != h*w*c {
		return nil, fmt.Errorf("tensor: %d values do not fit shape %dx%dx%d", len(data), h, w, c)
	}
	return &Tensor{H: h, W: w, C: c, Data: data}, nil
}

func zeros(h, w, c int) *Tensor {
	return &Tensor{H: h, W: w, C: c, Data: make([]float32, h*w*c)}
}

func (t *Tensor) at(y, x, c int) float32 {
	return t.Data[(y*t.W+x)*t.C+c]
}

// Len is the number of values.
func (t *Tensor) Len() int {
	return len(t.Data)
}

// Param is a named, shaped block of trainable values.
type Param struct {
	Name  string
	Shape []int
	Data  []float32
}

func newParam(name string, shape ...int) *Param {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return &Param{Name: name, Shape: shape, Data: make([]float32, n)}
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
