package processor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"stress-detect-go/internal/classifier"
	"stress-detect-go/internal/core/models"
	"stress-detect-go/internal/detector"
	"stress-detect-go/internal/imageio"
	"stress-detect-go/internal/inference"
	"stress-detect-go/internal/preprocess"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedLocator liefert immer dieselben Regionen
type fixedLocator struct {
	regions []models.Region
	err     error
}

func (f fixedLocator) Detect(*image.Gray) ([]models.Region, error) {
	return f.regions, f.err
}

// meanPredictor bildet die mittlere Helligkeit des Gesichts auf den Score ab
type meanPredictor struct{ synthetic bool }

func (m meanPredictor) Predict(face preprocess.NormalizedFace, _ string) inference.Prediction {
	var sum float64
	for _, v := range face.Data {
		sum += float64(v)
	}
	return inference.Prediction{Score: sum / float64(len(face.Data)) * 100, Synthetic: m.synthetic}
}

// patchCascade meldet den Bereich, der sich vom Hintergrund abhebt
type patchCascade struct{}

func (patchCascade) DetectMultiScale(gray *image.Gray, p detector.Params) ([]image.Rectangle, error) {
	b := gray.Bounds()
	bg := gray.GrayAt(b.Min.X, b.Min.Y).Y
	found := image.Rectangle{}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if gray.GrayAt(x, y).Y != bg {
				found = found.Union(image.Rect(x, y, x+1, y+1))
			}
		}
	}
	if found.Dx() < p.MinSize || found.Dy() < p.MinSize {
		return nil, nil
	}
	return []image.Rectangle{found}, nil
}

func newProcessor(t *testing.T, loc FaceLocator, pred Predictor) *StressProcessor {
	t.Helper()
	cls, err := classifier.New(classifier.DefaultThresholds)
	require.NoError(t, err)
	p, err := NewStressProcessor(loc, pred, cls, ProcessingOptions{FaceWorkers: 2, JPEGQuality: 85})
	require.NoError(t, err)
	return p
}

func canvas(w, h int, bg uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = bg, bg, bg, 255
	}
	return img
}

func fill(img *image.RGBA, r image.Rectangle, v uint8) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestProcessUniformImageHasNoFace(t *testing.T) {
	loc, err := detector.NewLocator(patchCascade{}, nil, 0)
	require.NoError(t, err)
	p := newProcessor(t, loc, meanPredictor{})

	res, err := p.ProcessBytes(context.Background(), encodePNG(t, canvas(48, 48, 128)), "s1")
	require.Error(t, err)
	assert.ErrorIs(t, err, detector.ErrNoFaceDetected)
	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.Equal(t, CodeNoFace, res.ErrorCode)
	assert.Zero(t, res.FacesDetected)
	assert.Nil(t, res.AnnotatedImage)
	assert.NotEmpty(t, res.Error)
}

func TestProcessDecodeError(t *testing.T) {
	p := newProcessor(t, fixedLocator{}, meanPredictor{})
	res, err := p.ProcessBytes(context.Background(), []byte{0xde, 0xad, 0xbe, 0xef}, "")
	assert.ErrorIs(t, err, imageio.ErrDecode)
	assert.False(t, res.Success)
	assert.Equal(t, CodeDecode, res.ErrorCode)
}

func TestProcessSingleFace(t *testing.T) {
	img := canvas(120, 100, 200)
	fill(img, image.Rect(10, 10, 50, 50), 230)

	loc, err := detector.NewLocator(patchCascade{}, nil, 0)
	require.NoError(t, err)
	p := newProcessor(t, loc, meanPredictor{})

	res, err := p.ProcessBytes(context.Background(), encodePNG(t, img), "alice")
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, 1, res.FacesDetected)

	face := res.Faces[0]
	assert.Equal(t, models.Region{X: 10, Y: 10, W: 40, H: 40}, face.Region)
	assert.InDelta(t, 230.0/255*100, face.Score, 0.5)
	assert.Equal(t, models.CategoryHigh, face.Category)
	assert.False(t, face.Synthetic)
	assert.False(t, res.Synthetic)
	assert.GreaterOrEqual(t, res.ProcessingTimeMs, 0.0)

	require.NotNil(t, res.AnnotatedImage)
	back, err := imageio.DecodeEncoded(*res.AnnotatedImage)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(120, 100), back.Bounds().Size())
}

func TestProcessKeepsDetectionOrder(t *testing.T) {
	img := canvas(200, 100, 0)
	fill(img, image.Rect(0, 0, 50, 50), 25)      // ~10
	fill(img, image.Rect(60, 0, 110, 50), 140)   // ~55
	fill(img, image.Rect(120, 40, 170, 90), 230) // ~90
	regions := []models.Region{
		{X: 120, Y: 40, W: 50, H: 50},
		{X: 0, Y: 0, W: 50, H: 50},
		{X: 60, Y: 0, W: 50, H: 50},
	}
	p := newProcessor(t, fixedLocator{regions: regions}, meanPredictor{})

	for i := 0; i < 5; i++ {
		res, err := p.ProcessImage(context.Background(), img, "")
		require.NoError(t, err)
		require.Len(t, res.Faces, 3)
		for j, f := range res.Faces {
			assert.Equal(t, regions[j], f.Region)
		}
		assert.Equal(t, models.CategoryHigh, res.Faces[0].Category)
		assert.Equal(t, models.CategoryLow, res.Faces[1].Category)
		assert.Equal(t, models.CategoryMedium, res.Faces[2].Category)
	}
}

func TestProcessImageDoesNotMutateInput(t *testing.T) {
	img := canvas(80, 80, 90)
	fill(img, image.Rect(20, 20, 60, 60), 180)
	before := append([]uint8(nil), img.Pix...)

	p := newProcessor(t, fixedLocator{regions: []models.Region{{X: 20, Y: 20, W: 40, H: 40}}}, meanPredictor{})
	_, err := p.ProcessImage(context.Background(), img, "")
	require.NoError(t, err)
	assert.Equal(t, before, img.Pix)
}

func TestProcessFlagsSyntheticScores(t *testing.T) {
	p := newProcessor(t, fixedLocator{regions: []models.Region{{X: 0, Y: 0, W: 32, H: 32}}}, meanPredictor{synthetic: true})
	res, err := p.ProcessImage(context.Background(), canvas(64, 64, 100), "bob")
	require.NoError(t, err)
	assert.True(t, res.Synthetic)
	assert.True(t, res.Faces[0].Synthetic)
}

func TestProcessWithFallbackEngine(t *testing.T) {
	engine := inference.NewEngine(inference.Config{Fallback: inference.FallbackConfig{Min: 40, Max: 95, Spread: 5, Seed: 1}})
	p := newProcessor(t, fixedLocator{regions: []models.Region{{X: 4, Y: 4, W: 40, H: 40}}}, engine)

	res, err := p.ProcessImage(context.Background(), canvas(48, 48, 60), "carol")
	require.NoError(t, err)
	require.Len(t, res.Faces, 1)
	assert.True(t, res.Synthetic)
	assert.GreaterOrEqual(t, res.Faces[0].Score, 40.0)
	assert.LessOrEqual(t, res.Faces[0].Score, 95.0)
	assert.Equal(t, p.Classifier().Classify(res.Faces[0].Score), res.Faces[0].Category)
}

func TestProcessSkipsRegionsOutsideBounds(t *testing.T) {
	p := newProcessor(t, fixedLocator{regions: []models.Region{{X: 40, Y: 40, W: 40, H: 40}}}, meanPredictor{})
	res, err := p.ProcessImage(context.Background(), canvas(48, 48, 10), "")
	assert.ErrorIs(t, err, detector.ErrNoFaceDetected)
	assert.False(t, res.Success)
}

func TestProcessLocatorFailure(t *testing.T) {
	boom := errors.New("cascade exploded")
	p := newProcessor(t, fixedLocator{err: boom}, meanPredictor{})
	res, err := p.ProcessImage(context.Background(), canvas(48, 48, 10), "")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, CodeInternal, res.ErrorCode)
}

func TestNewStressProcessorRequiresCollaborators(t *testing.T) {
	_, err := NewStressProcessor(nil, meanPredictor{}, nil, ProcessingOptions{})
	assert.Error(t, err)
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "", ErrorCode(nil))
	assert.Equal(t, CodeEncoding, ErrorCode(imageio.ErrEncoding))
	assert.Equal(t, CodeCancelled, ErrorCode(context.Canceled))
	assert.Equal(t, CodeCancelled, ErrorCode(ErrPoolClosed))
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	assert.Equal(t, "req-1", RequestID(ctx))
	assert.Empty(t, RequestID(context.Background()))
}
