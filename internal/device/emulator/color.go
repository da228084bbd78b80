package emulator

import (
	"image"
	"time"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// ColorSource supplies BGR frames for the emulated color camera
type ColorSource interface {
	// Frame returns a new frame of the requested size at elapsed time t
	Frame(size image.Point, t time.Duration) (gocv.Mat, error)
	Close() error
}

// sceneColor renders the color view of the synthetic scene
type sceneColor struct {
	scene *Scene
}

func (s sceneColor) Frame(size image.Point, t time.Duration) (gocv.Mat, error) {
	return s.scene.RenderColor(size, t)
}

func (s sceneColor) Close() error { return nil }

// CaptureColor reads color frames from an OpenCV capture source: a webcam
// index or a video file. Frames are resized to the camera video size.
type CaptureColor struct {
	capture *gocv.VideoCapture
	name    string
	loop    bool
}

// OpenCapture opens a device index ("0") or a file path. Files loop at EOF.
func OpenCapture(source string) (*CaptureColor, error) {
	capture, err := gocv.OpenVideoCapture(source)
	if err != nil {
		return nil, errors.Wrapf(err, "open capture %q", source)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, errors.Errorf("capture %q did not open", source)
	}
	return &CaptureColor{capture: capture, name: source, loop: !isDeviceIndex(source)}, nil
}

func (c *CaptureColor) Frame(size image.Point, _ time.Duration) (gocv.Mat, error) {
	raw := gocv.NewMat()
	defer raw.Close()

	if ok := c.capture.Read(&raw); !ok || raw.Empty() {
		if !c.loop {
			return gocv.NewMat(), errors.Errorf("capture %q returned no frame", c.name)
		}
		c.capture.Set(gocv.VideoCapturePosFrames, 0)
		if ok := c.capture.Read(&raw); !ok || raw.Empty() {
			return gocv.NewMat(), errors.Errorf("capture %q returned no frame after rewind", c.name)
		}
	}

	out := gocv.NewMat()
	gocv.Resize(raw, &out, size, 0, 0, gocv.InterpolationLinear)
	return out, nil
}

func (c *CaptureColor) Close() error {
	return c.capture.Close()
}

func isDeviceIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
