package embedder

import (
	"fmt"
	"image"
	"io"
	"os"

	// Decoders registered for image.Decode.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ImageInfo describes a decodable image on disk.
type ImageInfo struct {
	Format string
	Width  int
	Height int
}

// maxPixels rejects images whose header promises more than this many pixels
// before the body is decoded.
const maxPixels = 64 << 20

// ValidateImage checks that path exists, is a regular readable file and fully
// decodes as a supported image format. Truncated or corrupt bodies fail here
// rather than at the embedding service. Every failure wraps ErrInvalidInput.
func ValidateImage(path string) (*ImageInfo, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidInput, path, err)
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrInvalidInput, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrInvalidInput, path, err)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalidInput, path, err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return nil, fmt.Errorf("%w: %s has empty dimensions", ErrInvalidInput, path)
	}
	if cfg.Width*cfg.Height > maxPixels {
		return nil, fmt.Errorf("%w: %s is %dx%d, too large", ErrInvalidInput, path, cfg.Width, cfg.Height)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: rewind %s: %v", ErrInvalidInput, path, err)
	}
	if _, _, err := image.Decode(f); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalidInput, path, err)
	}
	return &ImageInfo{Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}
