// Package app assembles the stress pipeline from the configuration.
package app

import (
	"fmt"
	"io"

	"stress-detect-go/config"
	"stress-detect-go/internal/classifier"
	"stress-detect-go/internal/core/processor"
	"stress-detect-go/internal/inference"
	"stress-detect-go/internal/integrations/provider"

	log "github.com/sirupsen/logrus"
)

// Pipeline bündelt den Prozessor mit seinen langlebigen Abhängigkeiten
type Pipeline struct {
	Processor *processor.StressProcessor
	Engine    *inference.Engine
	detector  io.Closer
}

// NewPipeline lädt Detektor und Modell. Fehlende Gewichte sind kein Fehler (Fallback-Modus),
// ein fehlender Detektor dagegen schon.
func NewPipeline(cfg *config.Config) (*Pipeline, error) {
	locator, closer, err := provider.NewLocator(cfg.Detector)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize face locator: %w", err)
	}

	engine := inference.NewEngine(EngineConfig(cfg))

	cls, err := classifier.New(classifier.Thresholds{Low: cfg.Classifier.Low, High: cfg.Classifier.High})
	if err != nil {
		_ = closer.Close()
		return nil, fmt.Errorf("invalid classifier thresholds: %w", err)
	}

	proc, err := processor.NewStressProcessor(locator, engine, cls, ProcessingOptions(cfg))
	if err != nil {
		_ = closer.Close()
		return nil, err
	}

	log.WithFields(log.Fields{
		"mode":     engine.Mode(),
		"low":      cfg.Classifier.Low,
		"high":     cfg.Classifier.High,
		"detector": cfg.Detector.Backend,
		"min_size": cfg.Detector.MinSize,
		"ladder":   len(cfg.Detector.Ladder),
	}).Info("Stress pipeline ready")

	return &Pipeline{Processor: proc, Engine: engine, detector: closer}, nil
}

// Close gibt die nativen Ressourcen des Detektors frei
func (p *Pipeline) Close() error {
	if p == nil || p.detector == nil {
		return nil
	}
	return p.detector.Close()
}

// EngineConfig überträgt Modell- und Fallback-Einstellungen
func EngineConfig(cfg *config.Config) inference.Config {
	return inference.Config{
		WeightsPath: cfg.Model.WeightsPath,
		Fallback: inference.FallbackConfig{
			Min:    cfg.Fallback.Min,
			Max:    cfg.Fallback.Max,
			Spread: cfg.Fallback.Spread,
			Seed:   cfg.Fallback.Seed,
		},
	}
}

// ProcessingOptions überträgt die Pipeline- und Annotator-Einstellungen
func ProcessingOptions(cfg *config.Config) processor.ProcessingOptions {
	return processor.ProcessingOptions{
		FaceWorkers: cfg.Pipeline.FaceWorkers,
		JPEGQuality: cfg.Annotator.JPEGQuality,
		LineWidth:   cfg.Annotator.LineWidth,
	}
}
