// Package imageio decodes uploaded images into a color/gray frame pair and
// encodes annotated output for transport.
package imageio

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"strings"
	"unicode"

	"stress-detect-go/internal/core/models"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

var (
	// ErrDecode means the input is not a readable image.
	ErrDecode = errors.New("decode error")
	// ErrEncoding means the annotated image could not be serialised.
	ErrEncoding = errors.New("encoding error")
)

// DefaultQuality is the JPEG quality used when none is configured.
const DefaultQuality = 90

// Frame is a decoded image together with its grayscale companion.
// Both share the same bounds.
type Frame struct {
	Color  image.Image
	Gray   *image.Gray
	Format string
}

// Size returns the frame dimensions.
func (f Frame) Size() image.Point {
	return f.Color.Bounds().Size()
}

// Decode accepts raw image bytes (JPEG, PNG, GIF, BMP, WebP) or text carrying a
// base64 payload, optionally as a data URI.
func Decode(data []byte) (Frame, error) {
	if len(data) == 0 {
		return Frame{}, fmt.Errorf("%w: empty input", ErrDecode)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if !looksLikeText(data) {
			return Frame{}, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		_, payload, perr := models.ParseDataURI(string(data))
		if perr != nil {
			return Frame{}, fmt.Errorf("%w: %v", ErrDecode, perr)
		}
		img, format, err = image.Decode(bytes.NewReader(payload))
		if err != nil {
			return Frame{}, fmt.Errorf("%w: %v", ErrDecode, err)
		}
	}

	frame, err := FromImage(img)
	if err != nil {
		return Frame{}, err
	}
	frame.Format = format
	return frame, nil
}

// DecodeString decodes a base64 or data URI payload.
func DecodeString(s string) (Frame, error) {
	_, payload, err := models.ParseDataURI(s)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return Decode(payload)
}

// FromImage builds a frame around an already decoded pixel buffer.
// img is not modified; the gray companion is a fresh buffer.
func FromImage(img image.Image) (Frame, error) {
	if img == nil {
		return Frame{}, fmt.Errorf("%w: nil image", ErrDecode)
	}
	b := img.Bounds()
	if b.Empty() {
		return Frame{}, fmt.Errorf("%w: empty image %v", ErrDecode, b)
	}
	return Frame{Color: img, Gray: ToGray(img)}, nil
}

// ToGray converts img to an 8-bit grayscale image with the same bounds.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		b := g.Bounds()
		out := image.NewGray(b)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			copy(out.Pix[out.PixOffset(b.Min.X, y):out.PixOffset(b.Max.X, y)], g.Pix[g.PixOffset(b.Min.X, y):])
		}
		return out
	}
	b := img.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.SetGray(x, y, color.GrayModel.Convert(img.At(x, y)).(color.Gray))
		}
	}
	return out
}

// EncodeJPEG serialises img as JPEG. quality outside 1..100 falls back to DefaultQuality.
func EncodeJPEG(img image.Image, quality int) (models.EncodedImage, error) {
	if img == nil {
		return models.EncodedImage{}, fmt.Errorf("%w: nil image", ErrEncoding)
	}
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return models.EncodedImage{}, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return models.EncodedImage{MIME: "image/jpeg", Data: buf.Bytes()}, nil
}

// DecodeEncoded decodes an EncodedImage back into an image.
func DecodeEncoded(e models.EncodedImage) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(e.Data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, nil
}

// looksLikeText prüft, ob die ersten Bytes druckbarer Text sind (Base64 / Data-URI)
func looksLikeText(data []byte) bool {
	head := data
	if len(head) > 64 {
		head = head[:64]
	}
	s := strings.TrimSpace(string(head))
	if s == "" {
		return false
	}
	for _, r := range s {
		if r > unicode.MaxASCII || !(unicode.IsPrint(r) || unicode.IsSpace(r)) {
			return false
		}
	}
	return true
}
