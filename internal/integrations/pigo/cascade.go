// Package pigo adapts the pure-Go pico cascade to the detector.Cascade interface.
package pigo

import (
	"fmt"
	"image"
	"os"

	"stress-detect-go/config"
	"stress-detect-go/internal/detector"

	pigo "github.com/esimov/pigo/core"
	log "github.com/sirupsen/logrus"
)

// Cascade wraps an unpacked pico classifier. The classifier is read-only after
// unpacking, so concurrent DetectMultiScale calls are fine.
type Cascade struct {
	classifier *pigo.Pigo
	cfg        config.PigoConfig
}

// Load reads and unpacks a pico cascade file (e.g. "facefinder").
func Load(path string, cfg config.PigoConfig) (*Cascade, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pigo cascade %s: %w", path, err)
	}
	return New(data, cfg)
}

// New unpacks a cascade from memory.
func New(data []byte, cfg config.PigoConfig) (*Cascade, error) {
	classifier, err := pigo.NewPigo().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack pigo cascade: %w", err)
	}
	if cfg.ShiftFactor <= 0 {
		cfg.ShiftFactor = 0.1
	}
	if cfg.IoUThreshold <= 0 {
		cfg.IoUThreshold = 0.2
	}
	if cfg.QualityPerNeighbor <= 0 {
		cfg.QualityPerNeighbor = 1.0
	}
	log.Infof("pigo cascade loaded (shift %.2f, iou %.2f)", cfg.ShiftFactor, cfg.IoUThreshold)
	return &Cascade{classifier: classifier, cfg: cfg}, nil
}

// DetectMultiScale runs the cascade over the image pyramid. pico has no neighbour
// count, so MinNeighbors becomes a floor on the clustered detection quality.
func (c *Cascade) DetectMultiScale(gray *image.Gray, p detector.Params) ([]image.Rectangle, error) {
	b := gray.Bounds()
	rows, cols := b.Dy(), b.Dx()
	if rows == 0 || cols == 0 {
		return nil, nil
	}

	maxSize := c.cfg.MaxSize
	if maxSize <= 0 || maxSize > min(rows, cols) {
		maxSize = min(rows, cols)
	}
	if p.MinSize > maxSize {
		return nil, nil
	}

	params := pigo.CascadeParams{
		MinSize:     p.MinSize,
		MaxSize:     maxSize,
		ShiftFactor: c.cfg.ShiftFactor,
		ScaleFactor: p.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: gray.Pix,
			Rows:   rows,
			Cols:   cols,
			Dim:    gray.Stride,
		},
	}

	dets := c.classifier.RunCascade(params, 0)
	dets = c.classifier.ClusterDetections(dets, c.cfg.IoUThreshold)

	return toRects(dets, qualityFloor(p.MinNeighbors, c.cfg.QualityPerNeighbor), b.Min), nil
}

func qualityFloor(minNeighbors int, perNeighbor float64) float32 {
	return float32(float64(minNeighbors) * perNeighbor)
}

// toRects converts centre/scale detections to rectangles in image coordinates.
func toRects(dets []pigo.Detection, minQ float32, origin image.Point) []image.Rectangle {
	var rects []image.Rectangle
	for _, d := range dets {
		if d.Q < minQ {
			continue
		}
		half := d.Scale / 2
		r := image.Rect(d.Col-half, d.Row-half, d.Col+half, d.Row+half)
		rects = append(rects, r.Add(origin))
	}
	return rects
}
