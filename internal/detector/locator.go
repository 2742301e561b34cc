package detector

import (
	"errors"
	"fmt"
	"image"
	"sort"

	"stress-detect-go/config"
	"stress-detect-go/internal/core/models"

	log "github.com/sirupsen/logrus"
)

// DefaultMinSize ist die kleinste akzeptierte Gesichtsgröße in Pixeln
const DefaultMinSize = 30

// ErrNoFaceDetected wird geliefert, wenn keine Stufe der Leiter ein Gesicht findet
var ErrNoFaceDetected = errors.New("no face detected")

// Params sind die Parameter eines einzelnen Kaskadenlaufs
type Params struct {
	ScaleFactor  float64
	MinNeighbors int
	MinSize      int
}

// Cascade ist ein kaskadenbasierter Detektor (Haar, pico, ...)
type Cascade interface {
	DetectMultiScale(gray *image.Gray, p Params) ([]image.Rectangle, error)
}

// Step ist ein Eintrag der Leiter
type Step struct {
	ScaleFactor  float64
	MinNeighbors int
}

func (s Step) String() string {
	return fmt.Sprintf("scale=%.2f neighbors=%d", s.ScaleFactor, s.MinNeighbors)
}

// Ladder ist die geordnete Strategieliste; frühere Einträge haben Vorrang
type Ladder []Step

// DefaultLadder: Nachbarschwelle 5 vor 3, je Schwelle die Skalierungen 1.05, 1.1, 1.2
func DefaultLadder() Ladder {
	var l Ladder
	for _, n := range []int{5, 3} {
		for _, s := range []float64{1.05, 1.1, 1.2} {
			l = append(l, Step{ScaleFactor: s, MinNeighbors: n})
		}
	}
	return l
}

// LadderFromConfig übernimmt die Leiter aus der Konfiguration
func LadderFromConfig(steps []config.LadderStep) Ladder {
	l := make(Ladder, 0, len(steps))
	for _, s := range steps {
		l = append(l, Step{ScaleFactor: s.ScaleFactor, MinNeighbors: s.MinNeighbors})
	}
	return l
}

// Locator findet Gesichtsregionen in Graustufenbildern
type Locator struct {
	cascade Cascade
	ladder  Ladder
	minSize int
}

// NewLocator erstellt einen Locator; eine leere Leiter wird durch die Standardleiter ersetzt
func NewLocator(cascade Cascade, ladder Ladder, minSize int) (*Locator, error) {
	if cascade == nil {
		return nil, errors.New("detector: cascade is required")
	}
	if len(ladder) == 0 {
		ladder = DefaultLadder()
	}
	for i, s := range ladder {
		if s.ScaleFactor <= 1 {
			return nil, fmt.Errorf("detector: ladder step %d: scale factor must be > 1, got %v", i, s.ScaleFactor)
		}
		if s.MinNeighbors < 0 {
			return nil, fmt.Errorf("detector: ladder step %d: min neighbors must be >= 0", i)
		}
	}
	if minSize <= 0 {
		minSize = DefaultMinSize
	}
	return &Locator{cascade: cascade, ladder: ladder, minSize: minSize}, nil
}

// Ladder liefert eine Kopie der aktiven Leiter
func (l *Locator) Ladder() Ladder {
	return append(Ladder(nil), l.ladder...)
}

// MinSize liefert die Mindestgröße
func (l *Locator) MinSize() int {
	return l.minSize
}

// Detect läuft die Leiter ab und liefert die Regionen der ersten nicht-leeren Stufe.
// Ergebnisse verschiedener Stufen werden nie zusammengeführt.
func (l *Locator) Detect(gray *image.Gray) ([]models.Region, error) {
	if gray == nil || gray.Bounds().Empty() {
		return nil, ErrNoFaceDetected
	}
	bounds := gray.Bounds()

	for i, step := range l.ladder {
		rects, err := l.cascade.DetectMultiScale(gray, Params{
			ScaleFactor:  step.ScaleFactor,
			MinNeighbors: step.MinNeighbors,
			MinSize:      l.minSize,
		})
		if err != nil {
			log.WithError(err).Warnf("Cascade failed on ladder step %d (%s), trying next", i, step)
			continue
		}

		regions := l.filter(rects, bounds)
		if len(regions) > 0 {
			log.WithFields(log.Fields{
				"step":  i,
				"faces": len(regions),
			}).Debugf("Faces found with %s", step)
			return regions, nil
		}
	}

	return nil, ErrNoFaceDetected
}

// filter beschneidet auf die Bildgrenzen, verwirft zu kleine Kandidaten und sortiert
// von oben nach unten, links nach rechts. Koordinaten sind relativ zum Bildursprung.
func (l *Locator) filter(rects []image.Rectangle, bounds image.Rectangle) []models.Region {
	regions := make([]models.Region, 0, len(rects))
	for _, r := range rects {
		r = r.Canon().Intersect(bounds)
		if r.Empty() || r.Dx() < l.minSize || r.Dy() < l.minSize {
			continue
		}
		regions = append(regions, models.RegionFromRect(r.Sub(bounds.Min)))
	}
	sort.SliceStable(regions, func(i, j int) bool {
		if regions[i].Y != regions[j].Y {
			return regions[i].Y < regions[j].Y
		}
		return regions[i].X < regions[j].X
	})
	return regions
}
