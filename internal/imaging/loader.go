package imaging

import (
	"image"
	"image/color"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	_ "golang.org/x/image/tiff" // Register TIFF format decoder

	"github.com/ironsheep/mtobjects/internal/maxtree"
)

// ImageCache keeps decoded images keyed by path so that repeated tool calls
// on the same exposure do not re-read it.
//
// ImageCache is safe for concurrent use. Cached images stay in memory until
// Evict or Clear is called.
type ImageCache struct {
	mu     sync.RWMutex
	images map[string]image.Image
}

// NewImageCache creates an empty cache.
func NewImageCache() *ImageCache {
	return &ImageCache{
		images: make(map[string]image.Image),
	}
}

// Load returns the cached image for path, decoding it from disk on first use.
//
// Parameters:
//   - path: File path of a PNG, JPEG, GIF or TIFF image. The exact string is
//     the cache key.
//
// Returns:
//   - image.Image: The decoded image. 16-bit PNG and TIFF files keep their
//     full depth (*image.Gray16, *image.RGBA64, ...).
//   - error: Non-nil if the file cannot be opened or decoded.
func (c *ImageCache) Load(path string) (image.Image, error) {
	c.mu.RLock()
	if img, ok := c.images[path]; ok {
		c.mu.RUnlock()
		return img, nil
	}
	c.mu.RUnlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open image")
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode image %s", filepath.Base(path))
	}

	c.mu.Lock()
	c.images[path] = img
	c.mu.Unlock()

	return img, nil
}

// Len returns the number of cached images.
func (c *ImageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.images)
}

// Clear drops every cached image.
func (c *ImageCache) Clear() {
	c.mu.Lock()
	c.images = make(map[string]image.Image)
	c.mu.Unlock()
}

// Evict drops the image cached for path, if any.
func (c *ImageCache) Evict(path string) {
	c.mu.Lock()
	delete(c.images, path)
	c.mu.Unlock()
}

// ImageInfo describes a loaded exposure.
type ImageInfo struct {
	// Width is the image width in pixels.
	Width int `json:"width"`

	// Height is the image height in pixels.
	Height int `json:"height"`

	// Format is "png", "jpeg", "gif", "tiff" or "unknown", taken from the
	// file extension.
	Format string `json:"format"`

	// ColorDepth is "8-bit" or "16-bit" per channel.
	ColorDepth string `json:"color_depth"`

	// Grayscale reports a single-channel image. Colour images are reduced
	// to luminance before detection.
	Grayscale bool `json:"grayscale"`

	// HasAlpha reports an alpha channel. Fully transparent pixels are
	// masked during detection.
	HasAlpha bool `json:"has_alpha"`

	// FileSizeBytes is the size of the file on disk.
	FileSizeBytes int64 `json:"file_size_bytes"`
}

// LoadImageInfo loads path into cache and describes it.
//
// Parameters:
//   - cache: The image cache. Must not be nil.
//   - path: Path to the image file.
//
// Returns:
//   - *ImageInfo: Dimensions, format and depth.
//   - error: Non-nil if the image cannot be loaded or stat'd.
func LoadImageInfo(cache *ImageCache, path string) (*ImageInfo, error) {
	img, err := cache.Load(path)
	if err != nil {
		return nil, err
	}

	stat, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to stat file")
	}

	format := "unknown"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		format = "png"
	case ".jpg", ".jpeg":
		format = "jpeg"
	case ".gif":
		format = "gif"
	case ".tif", ".tiff":
		format = "tiff"
	}

	info := &ImageInfo{
		Width:         img.Bounds().Dx(),
		Height:        img.Bounds().Dy(),
		Format:        format,
		ColorDepth:    "8-bit",
		FileSizeBytes: stat.Size(),
	}
	switch img.(type) {
	case *image.Gray:
		info.Grayscale = true
	case *image.Gray16:
		info.Grayscale = true
		info.ColorDepth = "16-bit"
	case *image.RGBA, *image.NRGBA:
		info.HasAlpha = true
	case *image.RGBA64, *image.NRGBA64:
		info.HasAlpha = true
		info.ColorDepth = "16-bit"
	}
	return info, nil
}

// DimensionsResult is the width and height of an image.
type DimensionsResult struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// GetDimensions loads path into cache and returns its size.
func GetDimensions(cache *ImageCache, path string) (*DimensionsResult, error) {
	img, err := cache.Load(path)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	return &DimensionsResult{
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}

// ToBuffer converts img into a pixel buffer of intensities in [0, 65535].
//
// Grayscale images map their sample value directly. Colour images are
// reduced to ITU-R BT.601 luminance (0.299R + 0.587G + 0.114B). Pixels with
// zero alpha are masked; when no pixel is transparent the mask is nil.
func ToBuffer[T maxtree.Scalar](img image.Image) *maxtree.Image[T] {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	buf := &maxtree.Image[T]{
		Width:  w,
		Height: h,
		Pix:    make([]T, w*h),
	}
	var mask []bool
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			c := img.At(bounds.Min.X+x, bounds.Min.Y+y)
			switch g := c.(type) {
			case color.Gray16:
				buf.Pix[i] = T(g.Y)
				continue
			case color.Gray:
				buf.Pix[i] = T(uint16(g.Y) * 0x101)
				continue
			}
			r, gr, b, a := c.RGBA()
			if a == 0 {
				if mask == nil {
					mask = make([]bool, w*h)
				}
				mask[i] = true
				continue
			}
			buf.Pix[i] = T(0.299*float64(r) + 0.587*float64(gr) + 0.114*float64(b))
		}
	}
	buf.Mask = mask
	return buf
}
