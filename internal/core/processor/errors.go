package processor

import (
	"context"
	"errors"

	"stress-detect-go/internal/detector"
	"stress-detect-go/internal/imageio"
)

// Fehlercodes im DetectionResult
const (
	CodeDecode    = "decode_error"
	CodeNoFace    = "no_face_detected"
	CodeEncoding  = "encoding_error"
	CodeCancelled = "cancelled"
	CodeInternal  = "internal_error"
)

var (
	// ErrPoolClosed wird geliefert, wenn der Worker-Pool bereits heruntergefahren ist
	ErrPoolClosed = errors.New("worker pool closed")
)

// ErrorCode ordnet einen Pipeline-Fehler seinem Code zu
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, imageio.ErrDecode):
		return CodeDecode
	case errors.Is(err, detector.ErrNoFaceDetected):
		return CodeNoFace
	case errors.Is(err, imageio.ErrEncoding):
		return CodeEncoding
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrPoolClosed):
		return CodeCancelled
	}
	return CodeInternal
}

type ctxKey struct{}

// WithRequestID hängt eine Request-ID für Logfelder an den Kontext
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// RequestID liest die Request-ID aus dem Kontext
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
