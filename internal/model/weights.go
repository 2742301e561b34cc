package model

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// Weight file layout (little endian):
//
//	magic   [4]byte "SDW1" (trained) or "SDW0" (initial parameters only)
//	count   uint32
//	count x { nameLen uint16, name, rank uint8, dims rank x uint32, data prod(dims) x float32 }
var (
	weightsMagic   = [4]byte{'S', 'D', 'W', '1'}
	untrainedMagic = [4]byte{'S', 'D', 'W', '0'}
)

const maxNameLen = 256

var (
	// ErrWeightsNotFound is returned when the artifact does not exist.
	ErrWeightsNotFound = errors.New("weights file not found")
	// ErrCorruptWeights is returned for truncated files or architecture mismatches.
	ErrCorruptWeights = errors.New("corrupt weights file")
	// ErrUntrainedWeights marks an artifact holding only initial parameters.
	ErrUntrainedWeights = errors.New("weights are untrained")
)

// LoadFile reads weights from path into n.
func (n *Network) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrWeightsNotFound, path)
		}
		return err
	}
	defer f.Close()
	return n.LoadWeights(bufio.NewReader(f))
}

// SaveFile writes n's parameters to path.
func (n *Network) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := n.SaveWeights(w); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadWeights reads a complete parameter set. Parameters are only replaced when
// the whole file matches the architecture, so a failed load leaves n unchanged.
// Trained reflects the artifact's magic afterwards.
func (n *Network) LoadWeights(r io.Reader) error {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return fmt.Errorf("%w: reading header: %v", ErrCorruptWeights, err)
	}
	if magic != weightsMagic && magic != untrainedMagic {
		return fmt.Errorf("%w: bad magic %q", ErrCorruptWeights, magic[:])
	}

	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return fmt.Errorf("%w: reading count: %v", ErrCorruptWeights, err)
	}
	params := n.Params()
	if int(count) != len(params) {
		return fmt.Errorf("%w: %d tensors, architecture has %d", ErrCorruptWeights, count, len(params))
	}

	staged := make([][]float32, len(params))
	for i, p := range params {
		name, shape, err := readHeader(r)
		if err != nil {
			return fmt.Errorf("%w: tensor %d: %v", ErrCorruptWeights, i, err)
		}
		if name != p.Name || !sameShape(shape, p.Shape) {
			return fmt.Errorf("%w: tensor %d is %s%v, want %s%v", ErrCorruptWeights, i, name, shape, p.Name, p.Shape)
		}
		data := make([]float32, len(p.Data))
		if err := binary.Read(r, binary.LittleEndian, data); err != nil {
			return fmt.Errorf("%w: tensor %s data: %v", ErrCorruptWeights, name, err)
		}
		for _, v := range data {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				return fmt.Errorf("%w: tensor %s holds non-finite values", ErrCorruptWeights, name)
			}
		}
		staged[i] = data
	}

	for i, p := range params {
		copy(p.Data, staged[i])
	}
	n.trained = magic == weightsMagic
	return nil
}

func readHeader(r io.Reader) (string, []int, error) {
	var nameLen uint16
	if err := binary.Read(r, binary.LittleEndian, &nameLen); err != nil {
		return "", nil, err
	}
	if nameLen == 0 || nameLen > maxNameLen {
		return "", nil, fmt.Errorf("invalid name length %d", nameLen)
	}
	name := make([]byte, nameLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return "", nil, err
	}
	var rank uint8
	if err := binary.Read(r, binary.LittleEndian, &rank); err != nil {
		return "", nil, err
	}
	dims := make([]uint32, rank)
	if err := binary.Read(r, binary.LittleEndian, dims); err != nil {
		return "", nil, err
	}
	shape := make([]int, rank)
	for i, d := range dims {
		shape[i] = int(d)
	}
	return string(name), shape, nil
}

// SaveWeights writes all parameters in the artifact format. Untrained networks
// are written with the "SDW0" magic.
func (n *Network) SaveWeights(w io.Writer) error {
	params := n.Params()
	magic := untrainedMagic
	if n.trained {
		magic = weightsMagic
	}
	if _, err := w.Write(magic[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(params))); err != nil {
		return err
	}
	for _, p := range params {
		if err := binary.Write(w, binary.LittleEndian, uint16(len(p.Name))); err != nil {
			return err
		}
		if _, err := io.WriteString(w, p.Name); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint8(len(p.Shape))); err != nil {
			return err
		}
		dims := make([]uint32, len(p.Shape))
		for i, d := range p.Shape {
			dims[i] = uint32(d)
		}
		if err := binary.Write(w, binary.LittleEndian, dims); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, p.Data); err != nil {
			return err
		}
	}
	return nil
}
