package emulator

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// ErrNoIntrinsics is returned when the pinhole parameters are unusable
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// MonoHFOV is the horizontal field of view (degrees) of the stereo pair
const MonoHFOV = 71.86

// Intrinsics holds the parameters of a pinhole projection
type Intrinsics struct {
	Width  int
	Height int
	Fx     float64
	Fy     float64
	Ppx    float64
	Ppy    float64
}

// IntrinsicsFromFOV derives square-pixel intrinsics centered on the frame
func IntrinsicsFromFOV(width, height int, hfovDegrees float64) Intrinsics {
	f := float64(width) / 2 / math.Tan(hfovDegrees*math.Pi/360)
	return Intrinsics{
		Width:  width,
		Height: height,
		Fx:     f,
		Fy:     f,
		Ppx:    float64(width) / 2,
		Ppy:    float64(height) / 2,
	}
}

// CheckValid checks that the parameters describe a real projection
func (in *Intrinsics) CheckValid() error {
	if in == nil {
		return errors.Wrap(ErrNoIntrinsics, "intrinsics do not exist")
	}
	if in.Width <= 0 || in.Height <= 0 {
		return errors.Wrapf(ErrNoIntrinsics, "invalid size (%d, %d)", in.Width, in.Height)
	}
	if in.Fx <= 0 || in.Fy <= 0 {
		return errors.Wrapf(ErrNoIntrinsics, "invalid focal length (%v, %v)", in.Fx, in.Fy)
	}
	if in.Ppx < 0 || in.Ppy < 0 {
		return errors.Wrapf(ErrNoIntrinsics, "invalid principal point (%v, %v)", in.Ppx, in.Ppy)
	}
	return nil
}

// PixelTo3D back-projects a pixel at depth z (mm). X grows right, Y grows up.
func (in *Intrinsics) PixelTo3D(p r2.Point, z float64) r3.Vector {
	return r3.Vector{
		X: (p.X - in.Ppx) * z / in.Fx,
		Y: -(p.Y - in.Ppy) * z / in.Fy,
		Z: z,
	}
}
