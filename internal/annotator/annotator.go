// Package annotator draws face boxes and stress labels onto a copy of an image.
package annotator

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"stress-detect-go/internal/core/models"

	"github.com/fogleman/gg"
)

// Standardfarben je Kategorie
var (
	ColorLow    = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	ColorMedium = color.RGBA{R: 255, G: 165, B: 0, A: 255}
	ColorHigh   = color.RGBA{R: 255, G: 0, B: 0, A: 255}
)

const (
	defaultLineWidth = 2.0
	labelOffset      = 10.0
	labelPadding     = 2.0
)

// Face ist ein zu beschriftendes Gesicht
type Face struct {
	Region   models.Region
	Category models.Category
	Score    float64
}

// Annotator zeichnet Rahmen und Beschriftungen. Das Quellbild wird nie verändert.
type Annotator struct {
	lineWidth float64
}

// New erstellt einen Annotator; lineWidth <= 0 ergibt die Standardbreite 2
func New(lineWidth float64) *Annotator {
	if lineWidth <= 0 {
		lineWidth = defaultLineWidth
	}
	return &Annotator{lineWidth: lineWidth}
}

// Annotate liefert eine neue Bildkopie mit einem beschrifteten Rahmen
func (a *Annotator) Annotate(src image.Image, region models.Region, cat models.Category, score float64) image.Image {
	return a.AnnotateAll(src, []Face{{Region: region, Category: cat, Score: score}})
}

// AnnotateAll kopiert src einmal und zeichnet alle Gesichter auf diese Arbeitskopie.
// Regionen sind relativ zum Bildursprung; das Ergebnis beginnt immer bei (0,0).
func (a *Annotator) AnnotateAll(src image.Image, faces []Face) image.Image {
	dc := gg.NewContextForRGBA(copyRGBA(src))
	for _, f := range faces {
		a.draw(dc, f)
	}
	return dc.Image()
}

// copyRGBA verschiebt den Ursprung auf (0,0), gg rechnet nur in diesem Raum
func copyRGBA(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

func (a *Annotator) draw(dc *gg.Context, f Face) {
	x, y := float64(f.Region.X), float64(f.Region.Y)
	w, h := float64(f.Region.W), float64(f.Region.H)
	c := ColorFor(f.Category)

	dc.SetColor(c)
	dc.SetLineWidth(a.lineWidth)
	dc.DrawRectangle(x, y, w, h)
	dc.Stroke()

	text := Label(f.Category, f.Score)
	tw, th := dc.MeasureString(text)

	// über dem Rahmen, bei zu wenig Platz innen oben
	baseline := y - labelOffset
	if baseline-th < 0 {
		baseline = y + th + labelPadding + a.lineWidth
	}

	dc.SetRGBA(0, 0, 0, 0.6)
	dc.DrawRectangle(x, baseline-th-labelPadding, tw+2*labelPadding, th+2*labelPadding)
	dc.Fill()

	dc.SetColor(c)
	dc.DrawString(text, x+labelPadding, baseline)
}

// Label formatiert die Beschriftung, z.B. "HIGH: 82.3%"
func Label(cat models.Category, score float64) string {
	return fmt.Sprintf("%s: %.1f%%", cat.Label(), score)
}

// ColorFor liefert die Rahmenfarbe einer Kategorie
func ColorFor(cat models.Category) color.RGBA {
	switch cat {
	case models.CategoryHigh:
		return ColorHigh
	case models.CategoryMedium:
		return ColorMedium
	default:
		return ColorLow
	}
}
