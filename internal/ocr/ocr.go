// Package ocr wraps external optical character recognition behind a small
// provider contract. The default provider pipes an in-memory PNG to the
// tesseract binary and captures recognized text from its standard output.
package ocr

import (
	"context"
	"errors"
)

// Image is a raw raster handed to a provider. Pixels are tightly packed
// 4-byte RGBA, row-major, length Width*Height*4.
type Image struct {
	Width  int
	Height int
	Pixels []byte
}

// Engine recognizes text in one image. Implementations must be safe for
// concurrent use by multiple goroutines.
type Engine interface {
	// Name identifies the provider, for logging and diagnostics.
	Name() string

	// Recognize extracts text from the image. The context bounds the whole
	// operation, including any spawned subprocess.
	Recognize(ctx context.Context, img Image) (string, error)
}

// ErrTimeout reports that the provider was stopped because the configured
// deadline expired before recognition finished.
var ErrTimeout = errors.New("ocr: recognition timed out")

// ErrMissingBinary reports that the provider's external executable could not
// be found on the system.
var ErrMissingBinary = errors.New("ocr: executable not found")
