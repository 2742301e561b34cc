package annotator

import (
	"image"
	"image/color"
	"testing"

	"stress-detect-go/internal/core/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gray(w, h int, v uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = v, v, v, 255
	}
	return img
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "HIGH: 82.3%", Label(models.CategoryHigh, 82.345))
	assert.Equal(t, "LOW: 5.0%", Label(models.CategoryLow, 5))
}

func TestColorFor(t *testing.T) {
	assert.Equal(t, ColorLow, ColorFor(models.CategoryLow))
	assert.Equal(t, ColorMedium, ColorFor(models.CategoryMedium))
	assert.Equal(t, ColorHigh, ColorFor(models.CategoryHigh))
}

func TestAnnotateDoesNotMutateSource(t *testing.T) {
	src := gray(120, 120, 128)
	before := append([]uint8(nil), src.Pix...)

	out := New(2).Annotate(src, models.Region{X: 30, Y: 40, W: 50, H: 50}, models.CategoryHigh, 88.8)

	assert.Equal(t, before, src.Pix)
	require.Equal(t, src.Bounds(), out.Bounds())

	// die linke Rahmenkante liegt auf x=30 und ist rot
	r, g, b, _ := out.At(30, 65).RGBA()
	assert.Greater(t, r>>8, uint32(200))
	assert.Less(t, g>>8, uint32(60))
	assert.Less(t, b>>8, uint32(60))

	// Bildmitte der Region bleibt unberührt
	assert.Equal(t, color.RGBAModel.Convert(color.RGBA{128, 128, 128, 255}), color.RGBAModel.Convert(out.At(55, 70)))
}

func TestAnnotateAllFoldsFaces(t *testing.T) {
	src := gray(200, 100, 0)
	out := New(0).AnnotateAll(src, []Face{
		{Region: models.Region{X: 10, Y: 20, W: 40, H: 40}, Category: models.CategoryLow, Score: 12},
		{Region: models.Region{X: 120, Y: 20, W: 40, H: 40}, Category: models.CategoryMedium, Score: 55},
	})

	_, g, _, _ := out.At(10, 45).RGBA()
	assert.Greater(t, g>>8, uint32(200), "green box on the left face")

	r, g2, _, _ := out.At(120, 45).RGBA()
	assert.Greater(t, r>>8, uint32(200))
	assert.Greater(t, g2>>8, uint32(120), "amber box on the right face")
}

func TestAnnotateSubImageOrigin(t *testing.T) {
	parent := gray(100, 100, 50)
	sub := parent.SubImage(image.Rect(20, 20, 80, 80))

	out := New(2).Annotate(sub, models.Region{X: 5, Y: 30, W: 20, H: 20}, models.CategoryLow, 1)
	assert.Equal(t, image.Rect(0, 0, 60, 60), out.Bounds())

	_, g, _, _ := out.At(5, 40).RGBA()
	assert.Greater(t, g>>8, uint32(200))
}

func TestAnnotateWithoutFacesCopies(t *testing.T) {
	src := gray(10, 10, 77)
	out := New(2).AnnotateAll(src, nil)
	rgba, ok := out.(*image.RGBA)
	require.True(t, ok)
	assert.Equal(t, src.Pix, rgba.Pix)
	assert.NotSame(t, src, rgba)
}
