package detect

import (
	"image"

	"github.com/cockroachdb/errors"

	"github.com/ironsheep/mtobjects/internal/imaging"
)

// Stretch percentiles of the preview.
const (
	previewLow  = 0.5
	previewHigh = 99.5
)

// Preview renders the preprocessed image as 8-bit grayscale.
func (r *Result) Preview() *image.Gray {
	return imaging.Stretch(r.Width, r.Height, r.Pixels, r.Mask, previewLow, previewHigh)
}

// Segmentation renders the label map in label colours.
func (r *Result) Segmentation() *image.NRGBA {
	return imaging.SegmentationImage(r.Width, r.Height, r.Labels)
}

// Overlay blends the label colours over the preview. With showIDs each
// object's ID is drawn at its peak.
func (r *Result) Overlay(opacity float64, showIDs bool) (*image.RGBA, error) {
	anchors := make(map[int32]image.Point, len(r.Objects))
	for _, o := range r.Objects {
		anchors[o.ID] = image.Point{X: o.PeakX, Y: o.PeakY}
	}
	return imaging.Overlay(r.Preview(), r.Labels, anchors, imaging.OverlayOptions{
		Opacity: opacity,
		ShowIDs: showIDs,
	})
}

// Cutout renders object id's bounding box from the preview, grown by pad
// pixels and rescaled by scale.
func (r *Result) Cutout(id int32, pad int, scale float64) (*imaging.RenderResult, error) {
	o := r.Object(id)
	if o == nil {
		return nil, errors.Newf("no object with id %d (have %d)", id, len(r.Objects))
	}
	return imaging.CropObject(r.Preview(), o.BBox, pad, scale)
}
