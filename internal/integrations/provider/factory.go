package provider

import (
	"errors"
	"fmt"
	"io"

	"stress-detect-go/config"
	"stress-detect-go/internal/detector"
	"stress-detect-go/internal/integrations/opencv"
	"stress-detect-go/internal/integrations/pigo"

	log "github.com/sirupsen/logrus"
)

// Backend-Namen für detector.backend
const (
	BackendOpenCV = "opencv"
	BackendPigo   = "pigo"
)

// Loader erzeugt ein Kaskaden-Backend; Close gibt native Ressourcen frei
type Loader func(cfg config.DetectorConfig) (detector.Cascade, io.Closer, error)

// loaders ist als Variable ausgelegt, damit Tests Backends ersetzen können
var loaders = map[string]Loader{
	BackendOpenCV: func(cfg config.DetectorConfig) (detector.Cascade, io.Closer, error) {
		svc, err := opencv.NewService(cfg.CascadePath)
		if err != nil {
			return nil, nil, err
		}
		return svc, svc, nil
	},
	BackendPigo: func(cfg config.DetectorConfig) (detector.Cascade, io.Closer, error) {
		c, err := pigo.Load(cfg.PigoCascadePath, cfg.Pigo)
		if err != nil {
			return nil, nil, err
		}
		return c, io.NopCloser(nil), nil
	},
}

// NewCascade erstellt das konfigurierte Backend. Schlägt es fehl, wird das jeweils
// andere Backend versucht, analog zum HOG-Fallback bei fehlenden DNN-Modellen.
func NewCascade(cfg config.DetectorConfig) (detector.Cascade, io.Closer, string, error) {
	preferred := cfg.Backend
	if preferred == "" {
		preferred = BackendOpenCV
	}

	order := []string{preferred}
	for _, name := range []string{BackendOpenCV, BackendPigo} {
		if name != preferred {
			order = append(order, name)
		}
	}

	var errs []error
	for _, name := range order {
		load, ok := loaders[name]
		if !ok {
			errs = append(errs, fmt.Errorf("unknown detector backend %q", name))
			continue
		}
		cascade, closer, err := load(cfg)
		if err != nil {
			log.Warnf("Detector backend %s unavailable: %v", name, err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		if name != preferred {
			log.Warnf("Falling back to detector backend %s", name)
		} else {
			log.Infof("Detector backend: %s", name)
		}
		return cascade, closer, name, nil
	}

	return nil, nil, "", fmt.Errorf("no face detector backend could be loaded: %w", errors.Join(errs...))
}

// NewLocator verbindet Backend, Leiter und Mindestgröße zu einem Locator
func NewLocator(cfg config.DetectorConfig) (*detector.Locator, io.Closer, error) {
	cascade, closer, _, err := NewCascade(cfg)
	if err != nil {
		return nil, nil, err
	}
	loc, err := detector.NewLocator(cascade, detector.LadderFromConfig(cfg.Ladder), cfg.MinSize)
	if err != nil {
		_ = closer.Close()
		return nil, nil, err
	}
	return loc, closer, nil
}
