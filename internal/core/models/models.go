package models

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"math"
	"strings"
)

// Region repräsentiert ein Gesichtsrechteck in Pixelkoordinaten des Quellbildes
type Region struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// RegionFromRect wandelt ein image.Rectangle in eine Region um
func RegionFromRect(r image.Rectangle) Region {
	return Region{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
}

// Rect liefert die Region als image.Rectangle
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H)
}

// Valid prüft nicht-negative Koordinaten und positive Ausdehnung
func (r Region) Valid() bool {
	return r.X >= 0 && r.Y >= 0 && r.W > 0 && r.H > 0
}

// Category ist die dreistufige Einteilung des Stresswerts
type Category string

const (
	CategoryLow    Category = "low"
	CategoryMedium Category = "medium"
	CategoryHigh   Category = "high"
)

// Rank ordnet Kategorien für Vergleiche (low < medium < high)
func (c Category) Rank() int {
	switch c {
	case CategoryLow:
		return 0
	case CategoryMedium:
		return 1
	case CategoryHigh:
		return 2
	}
	return -1
}

// Label liefert den Kategorienamen in Großbuchstaben für Bildbeschriftungen
func (c Category) Label() string {
	return strings.ToUpper(string(c))
}

// Score bounds
const (
	MinScore = 0.0
	MaxScore = 100.0
)

// ClampScore begrenzt einen Wert auf [0,100]; NaN wird zu 0
func ClampScore(s float64) float64 {
	switch {
	case math.IsNaN(s), s < MinScore:
		return MinScore
	case s > MaxScore:
		return MaxScore
	}
	return s
}

// FaceResult ist das Ergebnis für ein einzelnes Gesicht
type FaceResult struct {
	Region    Region   `json:"region"`
	Score     float64  `json:"score"`
	Category  Category `json:"category"`
	Synthetic bool     `json:"synthetic"` // true, wenn der Wert aus dem Fallback stammt
}

// DetectionResult fasst eine Pipeline-Ausführung zusammen
type DetectionResult struct {
	Success          bool          `json:"success"`
	FacesDetected    int           `json:"faces_detected"`
	Faces            []FaceResult  `json:"faces"`
	AnnotatedImage   *EncodedImage `json:"annotated_image,omitempty"`
	ProcessingTimeMs float64       `json:"processing_time_ms"`
	Synthetic        bool          `json:"synthetic"`
	Error            string        `json:"error,omitempty"`
	ErrorCode        string        `json:"error_code,omitempty"`
}

// Dominant liefert das Gesicht mit dem höchsten Stresswert
func (r *DetectionResult) Dominant() (FaceResult, bool) {
	if r == nil || len(r.Faces) == 0 {
		return FaceResult{}, false
	}
	best := r.Faces[0]
	for _, f := range r.Faces[1:] {
		if f.Score > best.Score {
			best = f
		}
	}
	return best, true
}

// EncodedImage ist ein kodiertes Bild samt MIME-Typ.
// JSON-Form: "data:<mime>;base64,<daten>".
type EncodedImage struct {
	MIME string
	Data []byte
}

// DataURI liefert die textuelle Transportform
func (e EncodedImage) DataURI() string {
	return "data:" + e.MIME + ";base64," + base64.StdEncoding.EncodeToString(e.Data)
}

// MarshalJSON implementiert json.Marshaler
func (e EncodedImage) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.DataURI())
}

// UnmarshalJSON implementiert json.Unmarshaler
func (e *EncodedImage) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	mime, payload, err := ParseDataURI(s)
	if err != nil {
		return err
	}
	e.MIME = mime
	e.Data = payload
	return nil
}

// ParseDataURI zerlegt "data:<mime>;base64,<daten>". Reines Base64 ohne Präfix wird
// ebenfalls akzeptiert; der MIME-Typ bleibt dann leer.
func ParseDataURI(s string) (string, []byte, error) {
	s = strings.TrimSpace(s)
	var mime string
	if strings.HasPrefix(s, "data:") {
		header, body, ok := strings.Cut(s, ",")
		if !ok {
			return "", nil, fmt.Errorf("malformed data uri")
		}
		header = strings.TrimPrefix(header, "data:")
		mime, _, _ = strings.Cut(header, ";")
		s = body
	}
	payload, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		// Webcam-Clients senden gelegentlich ohne Padding
		payload, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
		if err != nil {
			return "", nil, fmt.Errorf("invalid base64 payload: %w", err)
		}
	}
	return mime, payload, nil
}
