package maxtree

import (
	"math"
	"strings"
	"unsafe"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/constraints"
)

// Scalar is the intensity and statistic type of a precision variant.
type Scalar interface {
	constraints.Float
}

// Precision names one of the two compiled variants.
type Precision int

const (
	// Single is the float32 variant.
	Single Precision = iota
	// Double is the float64 variant.
	Double
)

func (p Precision) String() string {
	switch p {
	case Single:
		return "single"
	case Double:
		return "double"
	default:
		return "unknown"
	}
}

// ParsePrecision accepts "single"/"float32" and "double"/"float64".
func ParsePrecision(s string) (Precision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "single", "float32", "f32":
		return Single, nil
	case "double", "float64", "f64", "":
		return Double, nil
	}
	return Double, errors.Wrapf(ErrInvalidInput, "unknown precision %q", s)
}

// PrecisionOf reports the variant T belongs to.
func PrecisionOf[T Scalar]() Precision {
	var zero T
	if unsafe.Sizeof(zero) == 4 {
		return Single
	}
	return Double
}

// Epsilon is the machine epsilon of T: the gap between 1 and the next
// representable value.
func Epsilon[T Scalar]() T {
	if PrecisionOf[T]() == Single {
		return T(math.Nextafter32(1, 2) - 1)
	}
	return T(math.Nextafter(1, 2) - 1)
}

// IsFinite reports whether v is neither NaN nor infinite.
func IsFinite[T Scalar](v T) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Direction selects which intensities count as "more extreme".
type Direction int

const (
	// Bright floods from the brightest pixels down: a max-tree.
	Bright Direction = iota
	// Dark floods from the darkest pixels up: a min-tree.
	Dark
)

func (d Direction) String() string {
	switch d {
	case Bright:
		return "bright"
	case Dark:
		return "dark"
	default:
		return "unknown"
	}
}

// ParseDirection accepts "bright" and "dark".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bright", "max", "":
		return Bright, nil
	case "dark", "min":
		return Dark, nil
	}
	return Bright, errors.Wrapf(ErrInvalidInput, "unknown direction %q", s)
}

// Beyond reports whether a is strictly more extreme than b in direction d.
func Beyond[T Scalar](d Direction, a, b T) bool {
	if d == Dark {
		return a < b
	}
	return a > b
}
