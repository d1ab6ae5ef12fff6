package imaging

import (
	"image/color"
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// goldenAngle spreads consecutive hues as far apart as possible.
const goldenAngle = 180 * (3 - 2.236067977499790) // 180·(3 − √5) degrees

// LabelColor returns the display colour of object id. Colours are
// deterministic, so the same label keeps its colour across renderings.
// Label 0 (background) is transparent.
func LabelColor(id int32) color.NRGBA {
	if id <= 0 {
		return color.NRGBA{}
	}
	hue := math.Mod(float64(id-1)*goldenAngle, 360)
	// Alternate value so that neighbouring hues stay distinguishable.
	v := 0.95
	if id%2 == 0 {
		v = 0.75
	}
	r, g, b := colorful.Hsv(hue, 0.8, v).RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}

// Palette returns the colours of labels 1..n.
func Palette(n int) []color.NRGBA {
	p := make([]color.NRGBA, n)
	for i := range p {
		p[i] = LabelColor(int32(i + 1))
	}
	return p
}

// HexColor formats c as "#RRGGBB".
func HexColor(c color.Color) string {
	cf, ok := colorful.MakeColor(c)
	if !ok {
		return "#000000"
	}
	return cf.Hex()
}
