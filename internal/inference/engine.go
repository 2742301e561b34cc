// Package inference owns the stress model and its degraded-mode fallback.
package inference

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"stress-detect-go/internal/core/models"
	"stress-detect-go/internal/model"
	"stress-detect-go/internal/preprocess"

	log "github.com/sirupsen/logrus"
)

var (
	// ErrModelUnavailable means no usable trained weights were loaded.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrInferenceFailure means the forward pass failed or produced garbage.
	ErrInferenceFailure = errors.New("inference failure")
)

// Mode reports whether predictions come from the model or the fallback generator.
type Mode string

const (
	ModeModel    Mode = "model"
	ModeFallback Mode = "fallback"
)

// Predictor maps a flattened 48x48 face to a raw score in [0,1].
// *model.Network satisfies it.
type Predictor interface {
	Forward(input []float32) (float32, error)
}

// Prediction is the outcome of one Predict call. Reason is nil for genuine
// model output and wraps ErrModelUnavailable or ErrInferenceFailure otherwise.
type Prediction struct {
	Score     float64
	Synthetic bool
	Reason    error
}

// Stats counts predictions by origin.
type Stats struct {
	Mode       Mode   `json:"mode"`
	Model      int64  `json:"model_predictions"`
	Synthetic  int64  `json:"synthetic_predictions"`
	Failures   int64  `json:"inference_failures"`
	WeightsErr string `json:"weights_error,omitempty"`
}

// Config configures an Engine.
type Config struct {
	WeightsPath string
	Fallback    FallbackConfig
}

// Option customises an Engine.
type Option func(*Engine)

// WithPredictor replaces the network with p and treats it as trained.
func WithPredictor(p Predictor) Option {
	return func(e *Engine) {
		e.predictor = p
		e.trained = true
		e.weightsErr = nil
	}
}

// Engine serialises all predictions behind one mutex; one Engine is shared by
// every pipeline invocation of the process.
type Engine struct {
	mu        sync.Mutex // guards predictor and fallback
	predictor Predictor
	fallback  *fallback

	// fest nach NewEngine, Lesen ohne mu
	trained    bool
	weightsErr error

	modelCount     atomic.Int64
	syntheticCount atomic.Int64
	failureCount   atomic.Int64
}

// NewEngine builds the network and tries to load the weights artifact. A missing
// or corrupt artifact leaves the engine usable in fallback mode.
func NewEngine(cfg Config, opts ...Option) *Engine {
	fb := cfg.Fallback
	if fb == (FallbackConfig{}) {
		fb = DefaultFallback
	}
	e := &Engine{fallback: newFallback(fb)}

	net := model.New()
	e.predictor = net
	if cfg.WeightsPath == "" {
		e.weightsErr = fmt.Errorf("%w: no weights path configured", ErrModelUnavailable)
	} else if err := net.LoadFile(cfg.WeightsPath); err != nil {
		e.weightsErr = fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	} else if !net.Trained() {
		e.weightsErr = fmt.Errorf("%w: %w (%s)", ErrModelUnavailable, model.ErrUntrainedWeights, cfg.WeightsPath)
	} else {
		e.trained = true
		log.Infof("Stress model loaded from %s (%d parameters)", cfg.WeightsPath, net.ParamCount())
	}

	for _, opt := range opts {
		opt(e)
	}

	if !e.trained {
		log.WithError(e.weightsErr).Warnf("Inference running in degraded mode: scores are synthetic in [%.0f, %.0f]",
			e.fallback.cfg.Min, e.fallback.cfg.Max)
	}
	return e
}

// Mode reports the current prediction source.
func (e *Engine) Mode() Mode {
	if e.trained {
		return ModeModel
	}
	return ModeFallback
}

// Stats returns counters without waiting for running predictions.
func (e *Engine) Stats() Stats {
	s := Stats{
		Mode:      ModeFallback,
		Model:     e.modelCount.Load(),
		Synthetic: e.syntheticCount.Load(),
		Failures:  e.failureCount.Load(),
	}
	if e.trained {
		s.Mode = ModeModel
	}
	if e.weightsErr != nil {
		s.WeightsErr = e.weightsErr.Error()
	}
	return s
}

// Predict never fails: problems in the model layer are absorbed into a flagged
// synthetic score. subject only stabilises fallback scores.
func (e *Engine) Predict(face preprocess.NormalizedFace, subject string) Prediction {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.trained {
		return e.synthetic(subject, e.weightsErr)
	}

	raw, err := e.forward(face.Data)
	if err != nil {
		e.failureCount.Add(1)
		reason := fmt.Errorf("%w: %v", ErrInferenceFailure, err)
		log.WithFields(log.Fields{"subject": subject}).WithError(err).Warn("Inference failed, returning synthetic score")
		return e.synthetic(subject, reason)
	}

	e.modelCount.Add(1)
	return Prediction{Score: models.ClampScore(raw * 100)}
}

func (e *Engine) forward(input []float32) (raw float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in forward pass: %v", r)
		}
	}()
	out, err := e.predictor.Forward(input)
	if err != nil {
		return 0, err
	}
	raw = float64(out)
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 0, fmt.Errorf("non-finite output %v", out)
	}
	return math.Min(math.Max(raw, 0), 1), nil
}

func (e *Engine) synthetic(subject string, reason error) Prediction {
	if reason == nil {
		reason = ErrModelUnavailable
	}
	e.syntheticCount.Add(1)
	score := models.ClampScore(e.fallback.score(subject))
	log.WithFields(log.Fields{
		"subject": subject,
		"score":   score,
	}).Debugf("Synthetic stress score (%v)", reason)
	return Prediction{Score: score, Synthetic: true, Reason: reason}
}
