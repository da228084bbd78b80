// Synthetic stereo scene rendered by the emulated camera
package emulator

import (
	"image"
	"math"
	"time"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Scene is a flat background with one colored box in front of it. The box
// oscillates horizontally so segmentation and ROI following can be observed.
type Scene struct {
	BackgroundDepth uint16 // mm, 0 means no valid depth
	BackgroundColor gocv.Scalar
	ObjectDepth     uint16 // mm
	ObjectColor     gocv.Scalar
	// ObjectSize is the box size as a fraction of frame width and height
	ObjectSize [2]float64
	// Amplitude is the horizontal swing as a fraction of frame width
	Amplitude float64
	Period    time.Duration
	// InvalidBand is the fraction of the left edge with no depth, as seen
	// on a real left-right checked stereo pair
	InvalidBand float64
}

// DefaultScene is a red box at 80 cm in front of a grey wall at 2 m
func DefaultScene() *Scene {
	return &Scene{
		BackgroundDepth: 2000,
		BackgroundColor: gocv.NewScalar(60, 60, 60, 0),
		ObjectDepth:     800,
		ObjectColor:     gocv.NewScalar(0, 0, 255, 0),
		ObjectSize:      [2]float64{0.15, 0.2},
		Amplitude:       0.25,
		Period:          6 * time.Second,
		InvalidBand:     0.05,
	}
}

// ObjectBounds returns where the box is at elapsed time t in a frame of size
func (s *Scene) ObjectBounds(size image.Point, t time.Duration) image.Rectangle {
	w := int(float64(size.X) * s.ObjectSize[0])
	h := int(float64(size.Y) * s.ObjectSize[1])

	offset := 0.0
	if s.Period > 0 {
		phase := 2 * math.Pi * float64(t) / float64(s.Period)
		offset = s.Amplitude * float64(size.X) * math.Sin(phase)
	}
	cx := size.X/2 + int(offset)
	cy := size.Y / 2

	r := image.Rect(cx-w/2, cy-h/2, cx-w/2+w, cy-h/2+h)
	return r.Intersect(image.Rect(0, 0, size.X, size.Y))
}

// RenderDepth draws the CV_16UC1 depth frame in millimetres
func (s *Scene) RenderDepth(size image.Point, t time.Duration) (gocv.Mat, error) {
	depth := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(float64(s.BackgroundDepth), 0, 0, 0), size.Y, size.X, gocv.MatTypeCV16UC1)
	if depth.Empty() {
		return depth, errors.Errorf("failed to allocate %dx%d depth frame", size.X, size.Y)
	}

	fill(&depth, s.ObjectBounds(size, t), gocv.NewScalar(float64(s.ObjectDepth), 0, 0, 0))

	band := int(float64(size.X) * s.InvalidBand)
	if band > 0 {
		fill(&depth, image.Rect(0, 0, band, size.Y), gocv.NewScalar(0, 0, 0, 0))
	}
	return depth, nil
}

// RenderColor draws the CV_8UC3 BGR frame
func (s *Scene) RenderColor(size image.Point, t time.Duration) (gocv.Mat, error) {
	color := gocv.NewMatWithSizeFromScalar(s.BackgroundColor, size.Y, size.X, gocv.MatTypeCV8UC3)
	if color.Empty() {
		return color, errors.Errorf("failed to allocate %dx%d color frame", size.X, size.Y)
	}
	fill(&color, s.ObjectBounds(size, t), s.ObjectColor)
	return color, nil
}

func fill(m *gocv.Mat, r image.Rectangle, value gocv.Scalar) {
	if r.Empty() {
		return
	}
	region := m.Region(r)
	defer region.Close()
	region.SetTo(value)
}
