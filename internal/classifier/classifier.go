// Package classifier maps stress scores onto the low/medium/high categories.
package classifier

import (
	"fmt"
	"math"

	"stress-detect-go/internal/core/models"
)

// Thresholds partitions [0,100]: score < Low is low, score < High is medium, the rest is high.
type Thresholds struct {
	Low  float64
	High float64
}

var (
	// DefaultThresholds is the canonical policy.
	DefaultThresholds = Thresholds{Low: 40, High: 70}
	// LegacyThresholds reproduces the stricter 60/80 table.
	LegacyThresholds = Thresholds{Low: 60, High: 80}
)

// Validate checks 0 <= Low <= High <= 100.
func (t Thresholds) Validate() error {
	if math.IsNaN(t.Low) || math.IsNaN(t.High) {
		return fmt.Errorf("thresholds must be numbers")
	}
	if t.Low < models.MinScore || t.High > models.MaxScore || t.Low > t.High {
		return fmt.Errorf("thresholds must satisfy 0 <= low (%.1f) <= high (%.1f) <= 100", t.Low, t.High)
	}
	return nil
}

// Classifier is immutable and safe for concurrent use.
type Classifier struct {
	thresholds Thresholds
}

// New returns a Classifier for the given thresholds.
func New(t Thresholds) (*Classifier, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{thresholds: t}, nil
}

// Thresholds returns the active table.
func (c *Classifier) Thresholds() Thresholds {
	return c.thresholds
}

// Classify is total over float64: NaN and out-of-range scores are clamped first.
func (c *Classifier) Classify(score float64) models.Category {
	score = models.ClampScore(score)
	switch {
	case score < c.thresholds.Low:
		return models.CategoryLow
	case score < c.thresholds.High:
		return models.CategoryMedium
	default:
		return models.CategoryHigh
	}
}
