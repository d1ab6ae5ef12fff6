package imaging

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Region is a pixel rectangle; (X1, Y1) is inclusive and (X2, Y2) exclusive.
type Region struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Dx returns the region width.
func (r Region) Dx() int { return r.X2 - r.X1 }

// Dy returns the region height.
func (r Region) Dy() int { return r.Y2 - r.Y1 }

// Pad grows r by n pixels on every side and clips it to width×height.
func (r Region) Pad(n, width, height int) Region {
	return Region{
		X1: max(r.X1-n, 0),
		Y1: max(r.Y1-n, 0),
		X2: min(r.X2+n, width),
		Y2: min(r.Y2+n, height),
	}
}

// ObjectParams are the photometric and shape parameters of one object.
type ObjectParams struct {
	// ID is the object's label in the segmentation map.
	ID int32 `json:"id"`

	// Area is the number of labelled pixels.
	Area int `json:"area"`

	// BBox bounds the labelled pixels.
	BBox Region `json:"bbox"`

	// X and Y are the flux-weighted centroid.
	X float64 `json:"x"`
	Y float64 `json:"y"`

	// Flux is the summed intensity above the background.
	Flux float64 `json:"flux"`

	// Peak is the most extreme intensity, at (PeakX, PeakY).
	Peak  float64 `json:"peak"`
	PeakX int     `json:"peak_x"`
	PeakY int     `json:"peak_y"`

	// A and B are the semi-major and semi-minor axes (second-moment
	// standard deviations along the principal axes).
	A float64 `json:"a"`
	B float64 `json:"b"`

	// Theta is the major axis angle in degrees from +X towards +Y,
	// in (-90, 90].
	Theta float64 `json:"theta"`

	// R50 is the radius around the centroid enclosing half the flux.
	R50 float64 `json:"r50"`
}

// MeasureObject computes the parameters of one object.
//
// Parameters:
//   - id: The object label.
//   - width: Image width, used to turn pixel indices into coordinates.
//   - pixels: Linear indices of the object's pixels.
//   - values: Intensity of each pixel in pixels, oriented so that larger
//     means more significant (negate for dark objects).
//
// Returns:
//   - ObjectParams: The measured parameters. Negative values carry no
//     weight in the centroid and moments; an object without positive flux
//     is weighted uniformly.
func MeasureObject(id int32, width int, pixels []int32, values []float64) ObjectParams {
	p := ObjectParams{ID: id, Area: len(pixels)}
	if len(pixels) == 0 || width <= 0 {
		return p
	}

	weights := make([]float64, len(pixels))
	var total float64
	p.BBox = Region{X1: math.MaxInt, Y1: math.MaxInt, X2: math.MinInt, Y2: math.MinInt}
	for i, px := range pixels {
		x, y := int(px)%width, int(px)/width
		p.BBox.X1, p.BBox.Y1 = min(p.BBox.X1, x), min(p.BBox.Y1, y)
		p.BBox.X2, p.BBox.Y2 = max(p.BBox.X2, x+1), max(p.BBox.Y2, y+1)

		v := values[i]
		p.Flux += v
		if i == 0 || v > p.Peak {
			p.Peak, p.PeakX, p.PeakY = v, x, y
		}
		weights[i] = math.Max(v, 0)
		total += weights[i]
	}
	if total == 0 {
		for i := range weights {
			weights[i] = 1
		}
		total = float64(len(weights))
	}

	for i, px := range pixels {
		p.X += weights[i] * float64(int(px)%width)
		p.Y += weights[i] * float64(int(px)/width)
	}
	p.X /= total
	p.Y /= total

	var mxx, myy, mxy float64
	for i, px := range pixels {
		dx := float64(int(px)%width) - p.X
		dy := float64(int(px)/width) - p.Y
		mxx += weights[i] * dx * dx
		myy += weights[i] * dy * dy
		mxy += weights[i] * dx * dy
	}
	p.A, p.B, p.Theta = principalAxes(mxx/total, myy/total, mxy/total)
	p.R50 = halfFluxRadius(p.X, p.Y, width, pixels, weights, total)
	return p
}

// principalAxes diagonalises the second-moment matrix. The angle uses the
// closed form so that axis-aligned objects land exactly on 0 or 90.
func principalAxes(mxx, myy, mxy float64) (a, b, theta float64) {
	cov := mat.NewSymDense(2, []float64{mxx, mxy, mxy, myy})
	var eig mat.EigenSym
	if !eig.Factorize(cov, false) {
		return 0, 0, 0
	}
	vals := eig.Values(nil)
	lo, hi := math.Max(vals[0], 0), math.Max(vals[1], 0)
	a, b = math.Sqrt(hi), math.Sqrt(lo)
	if hi-lo <= 1e-12*math.Max(hi, 1) {
		return a, b, 0
	}

	theta = 0.5 * math.Atan2(2*mxy, mxx-myy) * 180 / math.Pi
	return a, b, theta
}

func halfFluxRadius(cx, cy float64, width int, pixels []int32, weights []float64, total float64) float64 {
	type ring struct{ r, w float64 }
	rings := make([]ring, len(pixels))
	for i, px := range pixels {
		dx := float64(int(px)%width) - cx
		dy := float64(int(px)/width) - cy
		rings[i] = ring{math.Hypot(dx, dy), weights[i]}
	}
	sort.Slice(rings, func(i, j int) bool { return rings[i].r < rings[j].r })
	var acc float64
	for _, r := range rings {
		acc += r.w
		if acc >= total/2 {
			return r.r
		}
	}
	return rings[len(rings)-1].r
}
