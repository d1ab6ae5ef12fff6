package maxtree

import (
	"math"

	"github.com/cockroachdb/errors"
)

// DefaultMaxPixels is the largest image the builder indexes. Pixel and node
// handles are int32.
const DefaultMaxPixels = math.MaxInt32

// Image is a read-only pixel buffer in row-major order.
//
// The builder never writes to an Image, so one Image may be shared by any
// number of concurrent Build calls.
type Image[T Scalar] struct {
	// Width is the number of columns.
	Width int

	// Height is the number of rows.
	Height int

	// Pix holds Width*Height intensities; pixel (x, y) is Pix[y*Width+x].
	Pix []T

	// Mask optionally excludes pixels: Mask[i] == true removes pixel i from
	// flooding and statistics. A nil mask keeps every pixel.
	Mask []bool
}

// NewImage wraps pix as a width×height image without copying.
func NewImage[T Scalar](width, height int, pix []T) *Image[T] {
	return &Image[T]{Width: width, Height: height, Pix: pix}
}

// Len returns the pixel count.
func (im *Image[T]) Len() int {
	return len(im.Pix)
}

// Index maps (x, y) to a linear pixel index.
func (im *Image[T]) Index(x, y int) int {
	return y*im.Width + x
}

// Coords maps a linear pixel index back to (x, y).
func (im *Image[T]) Coords(i int) (x, y int) {
	return i % im.Width, i / im.Width
}

// Masked reports whether pixel i is excluded.
func (im *Image[T]) Masked(i int) bool {
	return im.Mask != nil && im.Mask[i]
}

// ValidCount returns the number of unmasked pixels.
func (im *Image[T]) ValidCount() int {
	if im.Mask == nil {
		return len(im.Pix)
	}
	n := 0
	for _, m := range im.Mask {
		if !m {
			n++
		}
	}
	return n
}

// Validate checks dimensions, mask shape and finiteness of every unmasked
// value. maxPixels <= 0 means DefaultMaxPixels.
func (im *Image[T]) Validate(maxPixels int) error {
	if im.Width < 0 || im.Height < 0 {
		return invalidInputf("negative dimensions %dx%d", im.Width, im.Height)
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	if im.Width > 0 && im.Height > maxPixels/im.Width {
		return errors.Wrapf(ErrResourceExhausted,
			"image %dx%d exceeds the %d pixel limit", im.Width, im.Height, maxPixels)
	}
	if n := im.Width * im.Height; n != len(im.Pix) {
		return invalidInputf("buffer holds %d values, %dx%d needs %d",
			len(im.Pix), im.Width, im.Height, n)
	}
	if im.Mask != nil && len(im.Mask) != len(im.Pix) {
		return invalidInputf("mask holds %d entries, image has %d pixels",
			len(im.Mask), len(im.Pix))
	}
	for i, v := range im.Pix {
		if !IsFinite(v) && !im.Masked(i) {
			x, y := im.Coords(i)
			return invalidInputf("non-finite value %v at (%d,%d)", v, x, y)
		}
	}
	return nil
}

// Convert copies an image into another precision variant.
func Convert[D, S Scalar](src *Image[S]) *Image[D] {
	pix := make([]D, len(src.Pix))
	for i, v := range src.Pix {
		pix[i] = D(v)
	}
	var mask []bool
	if src.Mask != nil {
		mask = append([]bool(nil), src.Mask...)
	}
	return &Image[D]{Width: src.Width, Height: src.Height, Pix: pix, Mask: mask}
}
