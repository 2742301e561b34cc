package opencv

import (
	"fmt"
	"image"
	"os"
	"sync"

	"stress-detect-go/internal/detector"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// Service kapselt einen OpenCV Haar-Kaskadenklassifikator.
// gocv.CascadeClassifier ist nicht threadsicher, daher werden Aufrufe serialisiert.
type Service struct {
	path        string
	classifier  gocv.CascadeClassifier
	mutex       sync.Mutex
	initialized bool
}

// NewService lädt die Haar-Kaskade (z.B. haarcascade_frontalface_default.xml)
func NewService(cascadePath string) (*Service, error) {
	if !fileExists(cascadePath) {
		return nil, fmt.Errorf("haar cascade not found: %s: %w", cascadePath, os.ErrNotExist)
	}

	s := &Service{path: cascadePath}
	if err := s.initialize(); err != nil {
		return nil, fmt.Errorf("fehler beim Initialisieren des OpenCV-Service: %w", err)
	}
	return s, nil
}

// initialize lädt den Klassifikator
func (s *Service) initialize() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.initialized {
		return nil
	}

	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(s.path) {
		classifier.Close()
		return fmt.Errorf("konnte Haar-Kaskade nicht laden: %s", s.path)
	}
	s.classifier = classifier
	s.initialized = true

	log.Infof("OpenCV Haar-Kaskade geladen: %s", s.path)
	return nil
}

// DetectMultiScale implementiert detector.Cascade
func (s *Service) DetectMultiScale(gray *image.Gray, p detector.Params) ([]image.Rectangle, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.initialized {
		return nil, fmt.Errorf("OpenCV-Service ist nicht initialisiert")
	}

	rects, err := detectFaces(s.classifier, gray, p)
	if err != nil {
		return nil, err
	}
	log.Debugf("OpenCV: %d Kandidaten (scale %.2f, neighbors %d)", len(rects), p.ScaleFactor, p.MinNeighbors)
	return rects, nil
}

// Close gibt die Ressourcen des OpenCV-Service frei
func (s *Service) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.initialized {
		s.classifier.Close()
		s.initialized = false
	}
	return nil
}
