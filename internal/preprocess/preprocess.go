// Package preprocess prepares a pixel buffer for tree construction.
//
// Both operations return a new image and leave their input untouched.
// Masked pixels are carried over unchanged and never contribute to their
// neighbours.
package preprocess

import (
	"math"

	"github.com/cockroachdb/errors"

	"github.com/ironsheep/mtobjects/internal/maxtree"
)

// SubtractBackground returns img with level subtracted from every unmasked
// pixel.
func SubtractBackground[T maxtree.Scalar](img *maxtree.Image[T], level float64) *maxtree.Image[T] {
	out := clone(img)
	l := T(level)
	for i := range out.Pix {
		if !out.Masked(i) {
			out.Pix[i] -= l
		}
	}
	return out
}

// Kernel returns a normalised 1-D Gaussian of the given σ, truncated at 3σ.
func Kernel(sigma float64) []float64 {
	radius := int(math.Ceil(3 * sigma))
	k := make([]float64, 2*radius+1)
	var sum float64
	for i := range k {
		d := float64(i - radius)
		k[i] = math.Exp(-d * d / (2 * sigma * sigma))
		sum += k[i]
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// Smooth convolves img with a Gaussian of standard deviation sigma pixels.
//
// The kernel is separable, so rows and columns are filtered in two passes.
// Borders are extended by clamping coordinates. Masked pixels are skipped
// and the remaining weights renormalised, so a mask does not darken its
// surroundings.
//
// Parameters:
//   - img: The source image.
//   - sigma: Kernel width in pixels. Zero returns a copy of img.
//
// Returns:
//   - *maxtree.Image[T]: The smoothed image.
//   - error: ErrInvalidInput for a negative or non-finite sigma.
func Smooth[T maxtree.Scalar](img *maxtree.Image[T], sigma float64) (*maxtree.Image[T], error) {
	if img == nil {
		return nil, errors.Wrap(maxtree.ErrInvalidInput, "nil image")
	}
	if sigma < 0 || math.IsNaN(sigma) || math.IsInf(sigma, 0) {
		return nil, errors.Wrapf(maxtree.ErrInvalidInput, "smoothing sigma must be finite and non-negative, got %v", sigma)
	}
	if sigma == 0 || img.Len() == 0 {
		return clone(img), nil
	}

	kernel := Kernel(sigma)
	rows := convolve(img, kernel, func(i int) float64 { return float64(img.Pix[i]) }, 1, 0)
	cols := convolve(img, kernel, func(i int) float64 { return rows[i] }, 0, 1)

	out := clone(img)
	for i := range out.Pix {
		if !out.Masked(i) {
			out.Pix[i] = T(cols[i])
		}
	}
	return out, nil
}

// convolve filters along (dx, dy), skipping masked samples.
func convolve[T maxtree.Scalar](img *maxtree.Image[T], kernel []float64, at func(int) float64, dx, dy int) []float64 {
	w, h := img.Width, img.Height
	radius := len(kernel) / 2
	out := make([]float64, len(img.Pix))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if img.Masked(i) {
				continue
			}
			var sum, weight float64
			for k, kv := range kernel {
				off := k - radius
				px := clamp(x+off*dx, 0, w-1)
				py := clamp(y+off*dy, 0, h-1)
				j := py*w + px
				if img.Masked(j) {
					continue
				}
				sum += at(j) * kv
				weight += kv
			}
			out[i] = sum / weight
		}
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clone[T maxtree.Scalar](img *maxtree.Image[T]) *maxtree.Image[T] {
	out := &maxtree.Image[T]{
		Width:  img.Width,
		Height: img.Height,
		Pix:    append([]T(nil), img.Pix...),
	}
	if img.Mask != nil {
		out.Mask = append([]bool(nil), img.Mask...)
	}
	return out
}
