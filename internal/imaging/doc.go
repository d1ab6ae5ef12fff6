// Package imaging moves pixels between image files and detection buffers.
//
// It loads exposures (PNG, JPEG, GIF and 8/16-bit TIFF) into a shared
// cache, converts them to float pixel buffers, measures detected objects
// and renders the results: stretched previews, segmentation maps, label
// overlays and per-object cutouts.
//
// # Coordinate System
//
// All pixel coordinates are 0-based with (0,0) at the top-left corner,
// X increasing rightward and Y downward. A Region's (X1, Y1) corner is
// inclusive and its (X2, Y2) corner exclusive. Linear pixel indices are
// row-major: i = y*width + x.
//
// # Intensities
//
// ToBuffer maps every format onto [0, 65535]: 16-bit samples are used as-is,
// 8-bit samples are scaled by 257 and colour images are reduced to BT.601
// luminance. Fully transparent pixels become masked pixels.
//
// # Thread Safety
//
// ImageCache is safe for concurrent use. The other functions are stateless.
package imaging
