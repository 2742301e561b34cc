// Package preprocess turns a face region into the fixed-size model input.
package preprocess

import (
	"errors"
	"fmt"
	"image"

	"stress-detect-go/internal/core/models"

	"github.com/nfnt/resize"
)

// Size is the edge length of the model input.
const Size = 48

// ErrRegionOutOfBounds marks a region that is not fully inside the image.
var ErrRegionOutOfBounds = errors.New("face region outside image bounds")

// NormalizedFace is a 48x48 single channel tensor with values in [0,1],
// stored row-major. Logical shape is (1, 48, 48, 1).
type NormalizedFace struct {
	Data []float32
}

// Shape returns the logical tensor shape (batch, height, width, channels).
func (NormalizedFace) Shape() [4]int {
	return [4]int{1, Size, Size, 1}
}

// At returns the value at row y, column x.
func (f NormalizedFace) At(x, y int) float32 {
	return f.Data[y*Size+x]
}

// Normalize crops r out of gray, resamples it to 48x48 and scales intensities to [0,1].
// r is relative to the image origin (gray.Bounds().Min).
func Normalize(gray *image.Gray, r models.Region) (NormalizedFace, error) {
	if gray == nil {
		return NormalizedFace{}, fmt.Errorf("%w: nil image", ErrRegionOutOfBounds)
	}
	b := gray.Bounds()
	rect := r.Rect().Add(b.Min)
	if !r.Valid() || !rect.In(b) {
		return NormalizedFace{}, fmt.Errorf("%w: %v not in %v", ErrRegionOutOfBounds, rect, b)
	}

	crop := gray.SubImage(rect)
	scaled := resize.Resize(Size, Size, crop, resize.Bilinear)

	face := NormalizedFace{Data: make([]float32, Size*Size)}
	sb := scaled.Bounds()
	for y := 0; y < Size; y++ {
		for x := 0; x < Size; x++ {
			face.Data[y*Size+x] = float32(intensity(scaled, sb.Min.X+x, sb.Min.Y+y)) / 255.0
		}
	}
	return face, nil
}

func intensity(img image.Image, x, y int) uint8 {
	if g, ok := img.(*image.Gray); ok {
		return g.GrayAt(x, y).Y
	}
	r, gg, b, _ := img.At(x, y).RGBA()
	// same weights as color.GrayModel
	return uint8((19595*r + 38470*gg + 7471*b + 1<<15) >> 24)
}
