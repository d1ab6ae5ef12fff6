package imaging

import (
	"image"

	"github.com/cockroachdb/errors"
	"github.com/disintegration/imaging"
)

// MaxCutoutSide bounds the scaled size of a cutout.
const MaxCutoutSide = 4096

// Crop extracts region r from img and optionally rescales it.
//
// Parameters:
//   - img: Source image.
//   - r: The region; it must lie inside the image bounds and be non-empty.
//   - scale: Resize factor. Values other than 1 resample with Lanczos; the
//     nearest-neighbour filter is used when upscaling by 2 or more so that
//     individual pixels stay visible.
//
// Returns:
//   - *image.NRGBA: The cutout.
//   - error: Non-nil for an invalid region or scale.
func Crop(img image.Image, r Region, scale float64) (*image.NRGBA, error) {
	bounds := img.Bounds()
	if r.X1 < bounds.Min.X || r.Y1 < bounds.Min.Y || r.X2 > bounds.Max.X || r.Y2 > bounds.Max.Y {
		return nil, errors.Newf("crop region (%d,%d)-(%d,%d) outside image bounds (%d,%d)-(%d,%d)",
			r.X1, r.Y1, r.X2, r.Y2, bounds.Min.X, bounds.Min.Y, bounds.Max.X, bounds.Max.Y)
	}
	if r.X1 >= r.X2 || r.Y1 >= r.Y2 {
		return nil, errors.New("invalid crop region: x1 must be < x2, y1 must be < y2")
	}
	if !(scale > 0) {
		return nil, errors.Newf("scale must be positive, got %v", scale)
	}

	cropped := imaging.Crop(img, image.Rect(r.X1, r.Y1, r.X2, r.Y2))
	if scale == 1 {
		return cropped, nil
	}

	w := int(float64(r.Dx())*scale + 0.5)
	h := int(float64(r.Dy())*scale + 0.5)
	if w < 1 || h < 1 || w > MaxCutoutSide || h > MaxCutoutSide {
		return nil, errors.Newf("scaled cutout %dx%d outside 1..%d", w, h, MaxCutoutSide)
	}
	filter := imaging.Lanczos
	if scale >= 2 {
		filter = imaging.NearestNeighbor
	}
	return imaging.Resize(cropped, w, h, filter), nil
}

// CropObject cuts an object's bounding box, grown by pad pixels, out of a
// preview image.
func CropObject(preview image.Image, bbox Region, pad int, scale float64) (*RenderResult, error) {
	b := preview.Bounds()
	r := bbox.Pad(pad, b.Dx(), b.Dy())
	cut, err := Crop(preview, r, scale)
	if err != nil {
		return nil, errors.Wrap(err, "object cutout")
	}
	return EncodePNG(cut)
}
