// Package background estimates the sky level and noise of an image.
//
// Astronomical images are mostly sky. Iterative kappa-sigma clipping removes
// sources from the sample until the remaining pixels are consistent with a
// single Gaussian noise distribution, whose centre and width are the
// background level and σ used by the significance tests.
package background

import (
	"math"
	"sort"

	"github.com/cockroachdb/errors"
	"gonum.org/v1/gonum/stat"

	"github.com/ironsheep/mtobjects/internal/maxtree"
)

// Options configures the clipping loop.
type Options struct {
	// Kappa is the clipping half-width in units of σ.
	Kappa float64

	// MaxIterations bounds the number of clipping rounds.
	MaxIterations int

	// Tolerance stops the loop once σ changes by less than this fraction.
	Tolerance float64
}

// DefaultOptions returns 3σ clipping with at most 10 rounds.
func DefaultOptions() Options {
	return Options{Kappa: 3, MaxIterations: 10, Tolerance: 1e-4}
}

// Validate checks the clipping parameters.
func (o Options) Validate() error {
	if !(o.Kappa > 0) || math.IsInf(o.Kappa, 0) {
		return errors.Wrapf(maxtree.ErrInvalidInput, "clip kappa must be positive, got %v", o.Kappa)
	}
	if o.MaxIterations < 1 {
		return errors.Wrapf(maxtree.ErrInvalidInput, "clip iterations must be at least 1, got %d", o.MaxIterations)
	}
	if o.Tolerance < 0 || math.IsNaN(o.Tolerance) {
		return errors.Wrapf(maxtree.ErrInvalidInput, "tolerance must be non-negative, got %v", o.Tolerance)
	}
	return nil
}

// Estimate is a background measurement.
type Estimate struct {
	// Mean is the mean of the retained pixels.
	Mean float64 `json:"mean"`

	// Median is the median of the retained pixels.
	Median float64 `json:"median"`

	// Sigma is the standard deviation of the retained pixels.
	Sigma float64 `json:"sigma"`

	// Iterations is the number of clipping rounds run.
	Iterations int `json:"iterations"`

	// Samples is the number of pixels retained after clipping.
	Samples int `json:"samples"`

	// Converged reports whether σ settled within Tolerance.
	Converged bool `json:"converged"`
}

// Measure estimates the background of img.
//
// Masked and non-finite pixels are ignored. An image without valid pixels
// yields a zero Estimate.
//
// Parameters:
//   - img: The pixel buffer.
//   - opts: Clipping parameters.
//
// Returns:
//   - Estimate: The clipped statistics.
//   - error: ErrInvalidInput for invalid options or a nil image.
func Measure[T maxtree.Scalar](img *maxtree.Image[T], opts Options) (Estimate, error) {
	if img == nil {
		return Estimate{}, errors.Wrap(maxtree.ErrInvalidInput, "nil image")
	}
	if err := opts.Validate(); err != nil {
		return Estimate{}, err
	}

	samples := make([]float64, 0, img.ValidCount())
	for i, v := range img.Pix {
		if img.Masked(i) || !maxtree.IsFinite(v) {
			continue
		}
		samples = append(samples, float64(v))
	}
	return Clip(samples, opts), nil
}

// Clip runs kappa-sigma clipping over samples, which it sorts in place.
func Clip(samples []float64, opts Options) Estimate {
	if len(samples) == 0 {
		return Estimate{}
	}
	sort.Float64s(samples)

	var est Estimate
	kept := samples
	for est.Iterations < opts.MaxIterations {
		est.Iterations++
		median := stat.Quantile(0.5, stat.Empirical, kept, nil)
		mean, std := stat.MeanStdDev(kept, nil)
		if len(kept) < 2 {
			std = 0
		}
		prev := est.Sigma
		est.Mean, est.Median, est.Sigma, est.Samples = mean, median, std, len(kept)

		if std == 0 {
			est.Converged = true
			break
		}
		if est.Iterations > 1 && math.Abs(prev-std) <= opts.Tolerance*std {
			est.Converged = true
			break
		}

		lo := sort.SearchFloat64s(kept, median-opts.Kappa*std)
		hi := sort.Search(len(kept), func(i int) bool { return kept[i] > median+opts.Kappa*std })
		if lo == 0 && hi == len(kept) {
			est.Converged = true
			break
		}
		kept = kept[lo:hi]
	}
	return est
}
