package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io/fs"
	"os/exec"
	"strings"
	"time"
)

const (
	// DefaultBinary is the executable looked up on PATH when none is configured.
	DefaultBinary = "tesseract"

	// DefaultLanguage is the trained-data hint passed to tesseract.
	DefaultLanguage = "eng"

	// DefaultTimeout bounds one recognition run. Without it a hung subprocess
	// would block the calling document handle forever.
	DefaultTimeout = 2 * time.Minute
)

// Tesseract runs the tesseract command-line program as a subprocess. The
// image is written to the process's standard input as PNG; recognized text is
// read from standard output and diagnostics from standard error.
type Tesseract struct {
	// Binary is the executable name or path. Defaults to DefaultBinary.
	Binary string

	// Language selects the trained data, e.g. "eng" or "deu".
	Language string

	// Timeout caps one recognition run. Zero means DefaultTimeout.
	Timeout time.Duration
}

// NewTesseract returns a provider with the default binary, language and timeout.
func NewTesseract() *Tesseract {
	return &Tesseract{
		Binary:   DefaultBinary,
		Language: DefaultLanguage,
		Timeout:  DefaultTimeout,
	}
}

// Name implements Engine.
func (t *Tesseract) Name() string { return "tesseract" }

// Recognize encodes the image as an in-memory PNG, pipes it to the tesseract
// subprocess and returns the captured output decoded as text. Invalid byte
// sequences in the output are replaced, not rejected.
func (t *Tesseract) Recognize(ctx context.Context, img Image) (string, error) {
	encoded, err := encodePNG(img)
	if err != nil {
		return "", err
	}

	binary := t.Binary
	if binary == "" {
		binary = DefaultBinary
	}
	language := t.Language
	if language == "" {
		language = DefaultLanguage
	}
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, binary, "stdin", "stdout", "-l", language)
	cmd.Stdin = bytes.NewReader(encoded)
	// After the deadline kill, stop waiting on the output pipes; a grandchild
	// holding them open must not stall the caller past the timeout.
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %q is not installed or not on PATH; install the tesseract-ocr package", ErrMissingBinary, binary)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("ocr: %s exited with status %d: %s",
				binary, exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return "", fmt.Errorf("ocr: running %s: %w", binary, err)
	}

	return strings.ToValidUTF8(stdout.String(), "�"), nil
}

// encodePNG wraps the raw RGBA buffer into an image and encodes it losslessly
// in memory.
func encodePNG(img Image) ([]byte, error) {
	if img.Width <= 0 || img.Height <= 0 {
		return nil, fmt.Errorf("ocr: invalid image dimensions %dx%d", img.Width, img.Height)
	}
	if want := img.Width * img.Height * 4; len(img.Pixels) != want {
		return nil, fmt.Errorf("ocr: pixel buffer length %d does not match %dx%d (want %d)",
			len(img.Pixels), img.Width, img.Height, want)
	}

	rgba := &image.RGBA{
		Pix:    img.Pixels,
		Stride: img.Width * 4,
		Rect:   image.Rect(0, 0, img.Width, img.Height),
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, rgba); err != nil {
		return nil, fmt.Errorf("ocr: encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}
