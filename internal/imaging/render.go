package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"sort"
	"strconv"

	"github.com/anthonynsimon/bild/blend"
	"github.com/cockroachdb/errors"
	"gonum.org/v1/gonum/stat"
)

// RenderResult is a rendered PNG.
type RenderResult struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// EncodePNG encodes img as a base64 PNG result.
func EncodePNG(img image.Image) (*RenderResult, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, errors.Wrap(err, "failed to encode image")
	}
	return &RenderResult{
		Width:       img.Bounds().Dx(),
		Height:      img.Bounds().Dy(),
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    "image/png",
	}, nil
}

// Stretch maps intensities to an 8-bit preview with an asinh stretch
// between the lowPct and highPct percentiles of the unmasked pixels.
//
// Parameters:
//   - width, height: Image size.
//   - pix: Row-major intensities.
//   - mask: Optional; masked pixels are drawn black.
//   - lowPct, highPct: Percentiles in [0, 100] mapped to black and white.
//
// Returns:
//   - *image.Gray: The preview. A constant image renders mid-gray.
func Stretch(width, height int, pix []float64, mask []bool, lowPct, highPct float64) *image.Gray {
	out := image.NewGray(image.Rect(0, 0, width, height))
	valid := make([]float64, 0, len(pix))
	for i, v := range pix {
		if (mask == nil || !mask[i]) && !math.IsNaN(v) && !math.IsInf(v, 0) {
			valid = append(valid, v)
		}
	}
	if len(valid) == 0 {
		return out
	}
	sort.Float64s(valid)
	lo := stat.Quantile(clampUnit(lowPct/100), stat.Empirical, valid, nil)
	hi := stat.Quantile(clampUnit(highPct/100), stat.Empirical, valid, nil)

	for i, v := range pix {
		if (mask != nil && mask[i]) || math.IsNaN(v) {
			continue
		}
		var g float64
		switch {
		case hi <= lo:
			g = 0.5
		default:
			// asinh(10t)/asinh(10) lifts faint structure while keeping 0→0 and 1→1.
			t := math.Min(math.Max((v-lo)/(hi-lo), 0), 1)
			g = math.Asinh(10*t) / math.Asinh(10)
		}
		out.Pix[i] = uint8(math.Round(g * 255))
	}
	return out
}

func clampUnit(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}

// SegmentationImage paints every labelled pixel with its label colour on a
// transparent background.
func SegmentationImage(width, height int, labels []int32) *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, width, height))
	cache := make(map[int32]color.NRGBA)
	for i, id := range labels {
		if id == 0 {
			continue
		}
		c, ok := cache[id]
		if !ok {
			c = LabelColor(id)
			cache[id] = c
		}
		out.SetNRGBA(i%width, i/width, c)
	}
	return out
}

// OverlayOptions controls Overlay.
type OverlayOptions struct {
	// Opacity of the label colours in [0, 1].
	Opacity float64

	// ShowIDs draws each object's ID at its anchor.
	ShowIDs bool

	// LabelColor is the ID text colour as "#RRGGBB" or "#RRGGBBAA";
	// defaults to white.
	LabelColor string
}

// Overlay blends the segmentation colours over a grayscale preview.
//
// Parameters:
//   - preview: The stretched image, e.g. from Stretch.
//   - labels: Per-pixel object IDs of the same size, 0 for background.
//   - anchors: Optional ID → position map used when ShowIDs is set.
//   - opts: Opacity and label drawing.
//
// Returns:
//   - *image.RGBA: The blended image. Background pixels keep the preview.
//   - error: Non-nil if labels does not match the preview size.
func Overlay(preview image.Image, labels []int32, anchors map[int32]image.Point, opts OverlayOptions) (*image.RGBA, error) {
	b := preview.Bounds()
	w, h := b.Dx(), b.Dy()
	if len(labels) != w*h {
		return nil, errors.Newf("label map has %d entries, image has %d pixels", len(labels), w*h)
	}

	fg := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i, id := range labels {
		x, y := i%w, i/w
		if id == 0 {
			fg.Set(x, y, preview.At(b.Min.X+x, b.Min.Y+y))
			continue
		}
		fg.SetNRGBA(x, y, LabelColor(id))
	}
	out := blend.Opacity(preview, fg, clampUnit(opts.Opacity))

	if opts.ShowIDs {
		text, err := parseHexColor(opts.LabelColor)
		if err != nil {
			text = color.RGBA{255, 255, 255, 255}
		}
		bg := color.RGBA{0, 0, 0, 160}
		for id, at := range anchors {
			drawLabel(out, at.X+2, at.Y+2, strconv.Itoa(int(id)), text, bg)
		}
	}
	return out, nil
}

// parseHexColor parses "#RRGGBB" or "#RRGGBBAA".
func parseHexColor(hex string) (color.RGBA, error) {
	if len(hex) == 0 {
		return color.RGBA{}, fmt.Errorf("empty color string")
	}
	if hex[0] == '#' {
		hex = hex[1:]
	}

	var r, g, b, a uint8 = 0, 0, 0, 255

	switch len(hex) {
	case 6:
		val, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return color.RGBA{}, err
		}
		r = uint8(val >> 16)
		g = uint8(val >> 8)
		b = uint8(val)
	case 8:
		val, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return color.RGBA{}, err
		}
		r = uint8(val >> 24)
		g = uint8(val >> 16)
		b = uint8(val >> 8)
		a = uint8(val)
	default:
		return color.RGBA{}, fmt.Errorf("invalid hex color length")
	}

	return color.RGBA{R: r, G: g, B: b, A: a}, nil
}

// digits is a 3x5 pixel font for object IDs.
var digits = map[rune][]string{
	'0': {"111", "101", "101", "101", "111"},
	'1': {"010", "110", "010", "010", "111"},
	'2': {"111", "001", "111", "100", "111"},
	'3': {"111", "001", "111", "001", "111"},
	'4': {"101", "101", "111", "001", "001"},
	'5': {"111", "100", "111", "001", "111"},
	'6': {"111", "100", "111", "101", "111"},
	'7': {"111", "001", "001", "001", "001"},
	'8': {"111", "101", "111", "101", "111"},
	'9': {"111", "101", "111", "001", "111"},
}

// drawLabel draws text in the digit font on a filled box at (x, y).
// Characters outside the font leave a gap.
func drawLabel(img *image.RGBA, x, y int, text string, fg, bg color.RGBA) {
	const charWidth, labelHeight = 4, 7
	bounds := img.Bounds()
	inside := func(px, py int) bool {
		return px >= bounds.Min.X && px < bounds.Max.X && py >= bounds.Min.Y && py < bounds.Max.Y
	}

	for dy := -1; dy < labelHeight; dy++ {
		for dx := -1; dx < len(text)*charWidth; dx++ {
			if inside(x+dx, y+dy) {
				img.Set(x+dx, y+dy, bg)
			}
		}
	}

	cx := x
	for _, ch := range text {
		for row, line := range digits[ch] {
			for col, pixel := range line {
				if pixel == '1' && inside(cx+col, y+row) {
					img.Set(cx+col, y+row, fg)
				}
			}
		}
		cx += charWidth
	}
}
