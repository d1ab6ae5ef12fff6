package imaging

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"golang.org/x/image/tiff"
)

// writePNG encodes img into a file in a per-test directory and returns its path.
func writePNG(t *testing.T, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create file: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	return path
}

// gray16Field returns a width×height 16-bit image with value v everywhere.
func gray16Field(width, height int, v uint16) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetGray16(x, y, color.Gray16{Y: v})
		}
	}
	return img
}

func TestImageCache_Load(t *testing.T) {
	cache := NewImageCache()
	path := writePNG(t, "field.png", gray16Field(100, 80, 1000))

	img1, err := cache.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if b := img1.Bounds(); b.Dx() != 100 || b.Dy() != 80 {
		t.Errorf("unexpected dimensions: got %dx%d, want 100x80", b.Dx(), b.Dy())
	}

	img2, err := cache.Load(path)
	if err != nil {
		t.Fatalf("second Load failed: %v", err)
	}
	if img1 != img2 {
		t.Error("second Load did not return cached image")
	}
	if cache.Len() != 1 {
		t.Errorf("Len: got %d, want 1", cache.Len())
	}
}

func TestImageCache_Load_Errors(t *testing.T) {
	cache := NewImageCache()
	if _, err := cache.Load("/nonexistent/path/to/image.png"); err == nil {
		t.Error("Load should fail for non-existent file")
	}

	path := filepath.Join(t.TempDir(), "junk.png")
	if err := os.WriteFile(path, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := cache.Load(path); err == nil {
		t.Error("Load should fail for invalid image data")
	}
	if cache.Len() != 0 {
		t.Errorf("failed loads were cached: %d", cache.Len())
	}
}

func TestImageCache_ClearAndEvict(t *testing.T) {
	cache := NewImageCache()
	a := writePNG(t, "a.png", gray16Field(4, 4, 1))
	b := writePNG(t, "b.png", gray16Field(4, 4, 2))
	for _, p := range []string{a, b} {
		if _, err := cache.Load(p); err != nil {
			t.Fatalf("Load failed: %v", err)
		}
	}

	cache.Evict(a)
	cache.Evict("/nonexistent/path")
	if cache.Len() != 1 {
		t.Errorf("after Evict: got %d images, want 1", cache.Len())
	}
	cache.Clear()
	if cache.Len() != 0 {
		t.Errorf("after Clear: got %d images, want 0", cache.Len())
	}
}

func TestImageCache_ConcurrentAccess(t *testing.T) {
	cache := NewImageCache()
	path := writePNG(t, "shared.png", gray16Field(50, 50, 7))

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.Load(path); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent Load error: %v", err)
	}
}

func TestLoadImageInfo(t *testing.T) {
	cache := NewImageCache()

	tests := []struct {
		name      string
		img       image.Image
		depth     string
		grayscale bool
		alpha     bool
	}{
		{"gray16.png", gray16Field(20, 10, 5), "16-bit", true, false},
		{"gray8.png", image.NewGray(image.Rect(0, 0, 20, 10)), "8-bit", true, false},
		{"rgba.png", image.NewNRGBA(image.Rect(0, 0, 20, 10)), "8-bit", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := LoadImageInfo(cache, writePNG(t, tt.name, tt.img))
			if err != nil {
				t.Fatalf("LoadImageInfo failed: %v", err)
			}
			if info.Width != 20 || info.Height != 10 {
				t.Errorf("dimensions: got %dx%d, want 20x10", info.Width, info.Height)
			}
			if info.Format != "png" {
				t.Errorf("Format: got %s, want png", info.Format)
			}
			if info.ColorDepth != tt.depth {
				t.Errorf("ColorDepth: got %s, want %s", info.ColorDepth, tt.depth)
			}
			if info.Grayscale != tt.grayscale {
				t.Errorf("Grayscale: got %v, want %v", info.Grayscale, tt.grayscale)
			}
			if info.HasAlpha != tt.alpha {
				t.Errorf("HasAlpha: got %v, want %v", info.HasAlpha, tt.alpha)
			}
			if info.FileSizeBytes <= 0 {
				t.Error("FileSizeBytes should be positive")
			}
		})
	}
}

func TestLoadImageInfo_TIFF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exposure.TIFF")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := tiff.Encode(f, gray16Field(12, 9, 40000), nil); err != nil {
		t.Fatalf("failed to encode tiff: %v", err)
	}
	f.Close()

	cache := NewImageCache()
	info, err := LoadImageInfo(cache, path)
	if err != nil {
		t.Fatalf("LoadImageInfo failed: %v", err)
	}
	if info.Format != "tiff" || info.ColorDepth != "16-bit" || !info.Grayscale {
		t.Errorf("unexpected info: %+v", info)
	}

	img, _ := cache.Load(path)
	buf := ToBuffer[float32](img)
	if buf.Pix[0] != 40000 {
		t.Errorf("TIFF sample: got %v, want 40000", buf.Pix[0])
	}
}

func TestGetDimensions(t *testing.T) {
	cache := NewImageCache()
	dims, err := GetDimensions(cache, writePNG(t, "dims.png", gray16Field(300, 200, 0)))
	if err != nil {
		t.Fatalf("GetDimensions failed: %v", err)
	}
	if dims.Width != 300 || dims.Height != 200 {
		t.Errorf("got %dx%d, want 300x200", dims.Width, dims.Height)
	}

	if _, err := GetDimensions(cache, "/nonexistent/image.png"); err == nil {
		t.Error("GetDimensions should fail for non-existent file")
	}
}

func TestToBuffer(t *testing.T) {
	t.Run("gray16", func(t *testing.T) {
		img := gray16Field(3, 2, 100)
		img.SetGray16(2, 1, color.Gray16{Y: 65535})
		buf := ToBuffer[float64](img)
		if buf.Width != 3 || buf.Height != 2 || len(buf.Pix) != 6 {
			t.Fatalf("unexpected buffer shape %dx%d/%d", buf.Width, buf.Height, len(buf.Pix))
		}
		if buf.Pix[0] != 100 || buf.Pix[5] != 65535 {
			t.Errorf("samples: got %v", buf.Pix)
		}
		if buf.Mask != nil {
			t.Error("opaque image should have no mask")
		}
	})

	t.Run("gray8 scales to 16 bits", func(t *testing.T) {
		img := image.NewGray(image.Rect(0, 0, 1, 1))
		img.SetGray(0, 0, color.Gray{Y: 255})
		if v := ToBuffer[float64](img).Pix[0]; v != 65535 {
			t.Errorf("got %v, want 65535", v)
		}
	})

	t.Run("colour luminance and transparency", func(t *testing.T) {
		img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
		img.SetNRGBA(0, 0, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
		img.SetNRGBA(1, 0, color.NRGBA{R: 255, A: 0})
		buf := ToBuffer[float64](img)
		if buf.Pix[0] < 65534 || buf.Pix[0] > 65536 {
			t.Errorf("white luminance: got %v", buf.Pix[0])
		}
		if buf.Mask == nil || buf.Mask[0] || !buf.Mask[1] {
			t.Errorf("mask: got %v, want [false true]", buf.Mask)
		}
	})

	t.Run("offset bounds", func(t *testing.T) {
		img := gray16Field(4, 4, 0)
		img.SetGray16(2, 3, color.Gray16{Y: 9})
		sub := img.SubImage(image.Rect(2, 2, 4, 4))
		buf := ToBuffer[float64](sub)
		if buf.Width != 2 || buf.Height != 2 || buf.Pix[2] != 9 {
			t.Errorf("sub-image: got %dx%d %v", buf.Width, buf.Height, buf.Pix)
		}
	})
}
