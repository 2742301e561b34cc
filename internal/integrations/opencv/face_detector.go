package opencv

import (
	"fmt"
	"image"
	"os"

	"stress-detect-go/internal/detector"

	"gocv.io/x/gocv"
)

// detectFaces führt einen Kaskadenlauf auf einem histogramm-ausgeglichenen Bild aus.
// Die Rechtecke werden in Koordinaten des Eingabebildes zurückgegeben.
func detectFaces(classifier gocv.CascadeClassifier, gray *image.Gray, p detector.Params) ([]image.Rectangle, error) {
	b := gray.Bounds()
	if b.Empty() {
		return nil, nil
	}

	mat, err := gocv.ImageGrayToMatGray(compactGray(gray))
	if err != nil {
		return nil, fmt.Errorf("konnte Bild nicht in Mat umwandeln: %w", err)
	}
	defer mat.Close()

	equalized := gocv.NewMat()
	defer equalized.Close()
	gocv.EqualizeHist(mat, &equalized)

	minSize := image.Pt(p.MinSize, p.MinSize)
	rects := classifier.DetectMultiScaleWithParams(equalized, p.ScaleFactor, p.MinNeighbors, 0, minSize, image.Point{})

	for i := range rects {
		rects[i] = rects[i].Add(b.Min)
	}
	return rects, nil
}

// compactGray liefert ein Bild mit Ursprung (0,0) und Stride == Breite
func compactGray(gray *image.Gray) *image.Gray {
	b := gray.Bounds()
	if b.Min == (image.Point{}) && gray.Stride == b.Dx() {
		return gray
	}
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		src := gray.PixOffset(b.Min.X, b.Min.Y+y)
		copy(out.Pix[y*out.Stride:(y+1)*out.Stride], gray.Pix[src:src+b.Dx()])
	}
	return out
}

// fileExists prüft, ob eine Datei existiert
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
