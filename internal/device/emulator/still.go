package emulator

import (
	"image"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

var stillFormats = []string{".jpg", ".jpeg", ".png", ".tiff", ".tif", ".bmp"}

// StillColor serves one image file as every color frame
type StillColor struct {
	image gocv.Mat
	path  string
}

// IsStillImage reports whether path has a supported image extension
func IsStillImage(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range stillFormats {
		if ext == format {
			return true
		}
	}
	return false
}

// LoadStill reads a color image file
func LoadStill(path string) (*StillColor, error) {
	if !IsStillImage(path) {
		return nil, errors.Errorf("unsupported image format: %s", path)
	}
	mat := gocv.IMRead(path, gocv.IMReadColor)
	if mat.Empty() {
		mat.Close()
		return nil, errors.Errorf("failed to load image: %s", path)
	}
	return &StillColor{image: mat, path: path}, nil
}

func (s *StillColor) Frame(size image.Point, _ time.Duration) (gocv.Mat, error) {
	out := gocv.NewMat()
	gocv.Resize(s.image, &out, size, 0, 0, gocv.InterpolationLinear)
	if out.Empty() {
		return out, errors.Errorf("resize %s failed", s.path)
	}
	return out, nil
}

func (s *StillColor) Close() error {
	return s.image.Close()
}
