// Package imaging holds the pure pixel and geometry helpers used by the
// rendering and OCR pipelines. All functions operate in place on
// caller-owned buffers and carry no state.
package imaging

import "github.com/a3tai/mcp-pdf-engine/internal/engine"

// bytesPerPixel is the packed pixel stride of every render buffer.
const bytesPerPixel = 4

// Union returns the smallest rectangle covering all input rectangles:
// running minimum of lefts and bottoms, running maximum of rights and tops.
// The zero Rect is returned for an empty input.
func Union(rects []engine.Rect) engine.Rect {
	if len(rects) == 0 {
		return engine.Rect{}
	}

	u := rects[0]
	for _, r := range rects[1:] {
		if r.Left < u.Left {
			u.Left = r.Left
		}
		if r.Bottom < u.Bottom {
			u.Bottom = r.Bottom
		}
		if r.Right > u.Right {
			u.Right = r.Right
		}
		if r.Top > u.Top {
			u.Top = r.Top
		}
	}
	return u
}

// Invert negates the three color channels of every 4-byte pixel group,
// leaving the fourth (opacity) channel untouched. Trailing bytes that do not
// form a full pixel are ignored.
func Invert(pixels []byte) {
	for i := 0; i+bytesPerPixel <= len(pixels); i += bytesPerPixel {
		pixels[i] = 255 - pixels[i]
		pixels[i+1] = 255 - pixels[i+1]
		pixels[i+2] = 255 - pixels[i+2]
	}
}

// CompositeOverWhite alpha-blends every pixel over a white background and
// forces full opacity. Each color channel moves toward 255 in proportion to
// the pixel's transparency (255-alpha)/255.
func CompositeOverWhite(pixels []byte) {
	for i := 0; i+bytesPerPixel <= len(pixels); i += bytesPerPixel {
		alpha := uint32(pixels[i+3])
		inv := 255 - alpha
		for c := 0; c < 3; c++ {
			v := uint32(pixels[i+c])
			pixels[i+c] = byte((v*alpha + 255*inv + 127) / 255)
		}
		pixels[i+3] = 255
	}
}

// SwapRedBlue exchanges channels 0 and 2 of every pixel group, converting
// between the engine's BGRA order and the RGBA order image encoders expect.
func SwapRedBlue(pixels []byte) {
	for i := 0; i+bytesPerPixel <= len(pixels); i += bytesPerPixel {
		pixels[i], pixels[i+2] = pixels[i+2], pixels[i]
	}
}
