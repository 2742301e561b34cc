package processor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"stress-detect-go/internal/annotator"
	"stress-detect-go/internal/classifier"
	"stress-detect-go/internal/core/models"
	"stress-detect-go/internal/detector"
	"stress-detect-go/internal/imageio"
	"stress-detect-go/internal/inference"
	"stress-detect-go/internal/preprocess"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// FaceLocator findet Gesichtsregionen; *detector.Locator erfüllt das Interface
type FaceLocator interface {
	Detect(gray *image.Gray) ([]models.Region, error)
}

// Predictor liefert einen Stresswert je Gesicht; *inference.Engine erfüllt das Interface
type Predictor interface {
	Predict(face preprocess.NormalizedFace, subject string) inference.Prediction
}

// ProcessingOptions enthält Optionen für die Bildverarbeitung
type ProcessingOptions struct {
	FaceWorkers int     // parallele Gesichter pro Aufruf
	JPEGQuality int     // Qualität des annotierten Bildes
	LineWidth   float64 // Rahmenbreite
}

// StressProcessor führt die komplette Pipeline aus:
// Decode → Detect → [Normalize → Predict → Classify] je Gesicht → Annotate → Encode
type StressProcessor struct {
	locator    FaceLocator
	engine     Predictor
	classifier *classifier.Classifier
	annotator  *annotator.Annotator
	options    ProcessingOptions
}

// NewStressProcessor erstellt einen neuen Prozessor. Die Engine wird geteilt, nie kopiert.
func NewStressProcessor(locator FaceLocator, engine Predictor, cls *classifier.Classifier, options ProcessingOptions) (*StressProcessor, error) {
	if locator == nil || engine == nil || cls == nil {
		return nil, errors.New("processor: locator, engine and classifier are required")
	}
	if options.FaceWorkers <= 0 {
		options.FaceWorkers = 1
	}
	if options.JPEGQuality <= 0 {
		options.JPEGQuality = imageio.DefaultQuality
	}
	return &StressProcessor{
		locator:    locator,
		engine:     engine,
		classifier: cls,
		annotator:  annotator.New(options.LineWidth),
		options:    options,
	}, nil
}

// Classifier liefert die aktive Schwellwert-Policy
func (p *StressProcessor) Classifier() *classifier.Classifier {
	return p.classifier
}

// ProcessBytes dekodiert Bildbytes (oder Base64/Data-URI) und analysiert sie.
// Bei Abbruch liefert die Methode immer ein Ergebnis mit success=false und den Fehler.
func (p *StressProcessor) ProcessBytes(ctx context.Context, data []byte, subject string) (*models.DetectionResult, error) {
	start := time.Now()
	frame, err := imageio.Decode(data)
	if err != nil {
		return p.fail(ctx, start, subject, err), err
	}
	return p.process(ctx, start, frame, subject)
}

// ProcessImage analysiert einen bereits dekodierten Pixelpuffer; img bleibt unverändert
func (p *StressProcessor) ProcessImage(ctx context.Context, img image.Image, subject string) (*models.DetectionResult, error) {
	start := time.Now()
	frame, err := imageio.FromImage(img)
	if err != nil {
		return p.fail(ctx, start, subject, err), err
	}
	return p.process(ctx, start, frame, subject)
}

func (p *StressProcessor) process(ctx context.Context, start time.Time, frame imageio.Frame, subject string) (*models.DetectionResult, error) {
	fields := log.Fields{"request_id": RequestID(ctx), "subject": subject}

	regions, err := p.locator.Detect(frame.Gray)
	if err != nil {
		return p.fail(ctx, start, subject, err), err
	}

	faces, err := p.analyzeFaces(ctx, frame.Gray, regions, subject)
	if err != nil {
		return p.fail(ctx, start, subject, err), err
	}
	if len(faces) == 0 {
		err := fmt.Errorf("%w: all candidate regions rejected", detector.ErrNoFaceDetected)
		return p.fail(ctx, start, subject, err), err
	}

	marks := make([]annotator.Face, len(faces))
	synthetic := false
	for i, f := range faces {
		marks[i] = annotator.Face{Region: f.Region, Category: f.Category, Score: f.Score}
		synthetic = synthetic || f.Synthetic
	}
	annotated := p.annotator.AnnotateAll(frame.Color, marks)

	encoded, err := imageio.EncodeJPEG(annotated, p.options.JPEGQuality)
	if err != nil {
		return p.fail(ctx, start, subject, err), err
	}

	result := &models.DetectionResult{
		Success:          true,
		FacesDetected:    len(faces),
		Faces:            faces,
		AnnotatedImage:   &encoded,
		ProcessingTimeMs: elapsedMs(start),
		Synthetic:        synthetic,
	}

	entry := log.WithFields(fields).WithFields(log.Fields{
		"faces":       result.FacesDetected,
		"duration_ms": result.ProcessingTimeMs,
	})
	if synthetic {
		entry.Warn("Stress analysis finished with synthetic scores (model unavailable or failed)")
	} else {
		entry.Info("Stress analysis finished")
	}
	return result, nil
}

// analyzeFaces verarbeitet die Gesichter parallel und behält die Erkennungsreihenfolge bei
func (p *StressProcessor) analyzeFaces(ctx context.Context, gray *image.Gray, regions []models.Region, subject string) ([]models.FaceResult, error) {
	bounds := image.Rect(0, 0, gray.Bounds().Dx(), gray.Bounds().Dy())
	results := make([]models.FaceResult, len(regions))
	ok := make([]bool, len(regions))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(p.options.FaceWorkers)

	for i, region := range regions {
		// Vorbedingung von Normalize: Region muss vollständig im Bild liegen
		if !region.Valid() || !region.Rect().In(bounds) {
			log.WithFields(log.Fields{"request_id": RequestID(ctx), "region": region}).
				Warn("Skipping face region outside image bounds")
			continue
		}
		g.Go(func() error {
			face, err := preprocess.Normalize(gray, region)
			if err != nil {
				return err
			}
			pred := p.engine.Predict(face, subject)
			score := models.ClampScore(pred.Score)
			results[i] = models.FaceResult{
				Region:    region,
				Score:     score,
				Category:  p.classifier.Classify(score),
				Synthetic: pred.Synthetic,
			}
			ok[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	faces := make([]models.FaceResult, 0, len(regions))
	for i := range results {
		if ok[i] {
			faces = append(faces, results[i])
		}
	}
	return faces, nil
}

func (p *StressProcessor) fail(ctx context.Context, start time.Time, subject string, err error) *models.DetectionResult {
	code := ErrorCode(err)
	entry := log.WithFields(log.Fields{
		"request_id": RequestID(ctx),
		"subject":    subject,
		"error_code": code,
	})
	// kein Gesicht ist ein erwartetes Ergebnis
	if code == CodeNoFace {
		entry.Info("No face detected")
	} else {
		entry.WithError(err).Error("Stress analysis failed")
	}
	return &models.DetectionResult{
		Success:          false,
		Faces:            []models.FaceResult{},
		ProcessingTimeMs: elapsedMs(start),
		Error:            err.Error(),
		ErrorCode:        code,
	}
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
