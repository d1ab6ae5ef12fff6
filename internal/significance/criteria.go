package significance

import (
	"math"
	"strings"

	"github.com/cockroachdb/errors"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/ironsheep/mtobjects/internal/maxtree"
)

// Method selects the significance test.
type Method int

const (
	// AreaScaled accepts nodes whose mean excess reaches k·σ·area^(−β).
	AreaScaled Method = iota
	// ChiSquared accepts nodes whose normalised power exceeds the χ²
	// quantile at 1−α with area degrees of freedom.
	ChiSquared
)

func (m Method) String() string {
	switch m {
	case AreaScaled:
		return "area-scaled"
	case ChiSquared:
		return "chi-squared"
	default:
		return "unknown"
	}
}

// ParseMethod accepts "area-scaled" and "chi-squared".
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "area-scaled", "area", "":
		return AreaScaled, nil
	case "chi-squared", "chi2", "power":
		return ChiSquared, nil
	}
	return AreaScaled, errors.Wrapf(maxtree.ErrInvalidInput, "unknown significance test %q", s)
}

// Evidence is the outcome of testing one node.
type Evidence struct {
	// Excess is the mean intensity above (Bright) or below (Dark) the
	// background level.
	Excess float64 `json:"excess"`

	// Score is the test statistic: a z-score for AreaScaled, the
	// normalised power for ChiSquared.
	Score float64 `json:"score"`

	// Threshold is the value Score had to reach.
	Threshold float64 `json:"threshold"`

	// Confidence is the probability that noise alone yields a smaller
	// score, in [0, 1].
	Confidence float64 `json:"confidence"`

	// Significant reports whether the node passed the test and rose
	// beyond the floor.
	Significant bool `json:"significant"`
}

// Criterion tests one node's cumulative statistics against its background.
type Criterion[T maxtree.Scalar] interface {
	Evaluate(s Stats[T], background T) Evidence
}

type areaScaled[T maxtree.Scalar] struct {
	sign     T
	k        T
	exponent float64
	sigma    T
	minArea  int
}

func (c *areaScaled[T]) Evaluate(s Stats[T], background T) Evidence {
	excess := c.sign * (s.Mean - background)
	scale := T(math.Pow(float64(s.Area), c.exponent))
	var score T
	switch {
	case c.sigma > 0:
		score = excess * scale / c.sigma
	case excess > 0:
		score = T(math.Inf(1))
	}
	return Evidence{
		Excess:      float64(excess),
		Score:       float64(score),
		Threshold:   float64(c.k),
		Confidence:  distuv.UnitNormal.CDF(float64(score)),
		Significant: s.Area >= c.minArea && excess > 0 && score >= c.k,
	}
}

type chiSquared[T maxtree.Scalar] struct {
	sign      T
	alpha     float64
	variance  T
	minArea   int
	quantiles map[int]float64
}

func (c *chiSquared[T]) quantile(area int) float64 {
	q, ok := c.quantiles[area]
	if !ok {
		q = distuv.ChiSquared{K: float64(area)}.Quantile(1 - c.alpha)
		c.quantiles[area] = q
	}
	return q
}

func (c *chiSquared[T]) Evaluate(s Stats[T], background T) Evidence {
	excess := c.sign * (s.Mean - background)
	power := s.PowerAbout(background)
	var score T
	switch {
	case c.variance > 0:
		score = power / c.variance
	case power > 0:
		score = T(math.Inf(1))
	}
	threshold := c.quantile(s.Area)
	return Evidence{
		Excess:      float64(excess),
		Score:       float64(score),
		Threshold:   threshold,
		Confidence:  distuv.ChiSquared{K: float64(s.Area)}.CDF(float64(score)),
		Significant: s.Area >= c.minArea && excess > 0 && float64(score) > threshold,
	}
}

// newCriterion instantiates the configured test for one run. The returned
// criterion caches quantiles and must not be shared between goroutines.
func newCriterion[T maxtree.Scalar](p Params, dir maxtree.Direction) Criterion[T] {
	sign := T(1)
	if dir == maxtree.Dark {
		sign = -1
	}
	if p.Method == ChiSquared {
		return &chiSquared[T]{
			sign:      sign,
			alpha:     p.Alpha,
			variance:  T(p.Sigma * p.Sigma),
			minArea:   p.MinArea,
			quantiles: make(map[int]float64),
		}
	}
	return &areaScaled[T]{
		sign:     sign,
		k:        T(p.SigmaMultiplier),
		exponent: p.AreaExponent,
		sigma:    T(p.Sigma),
		minArea:  p.MinArea,
	}
}
