// Depth annotation: steers the calculator ROI to the detected object and
// overlays the latest spatial measurement on the depth visualization
package annotate

import (
	"context"
	"fmt"
	"image"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"spatial-object-locator/internal/device"
	"spatial-object-locator/internal/segment"
)

const (
	// ROISize is the side of the square measurement region in pixels
	ROISize = 20

	textIndent = 10
)

// line offsets below the ROI top-left, in pixels
var textOffsets = [3]int{50, 65, 80}

// Measurement is the sample drawn for one frame
type Measurement struct {
	// ROI is the sample's region in depth frame pixels
	ROI         image.Rectangle
	Coordinates r3.Vector
	Sample      device.SpatialLocation
}

// Lines returns the overlay text, coordinates truncated to whole millimetres
func (m *Measurement) Lines() [3]string {
	return [3]string{
		fmt.Sprintf("X: %d mm", int(m.Coordinates.X)),
		fmt.Sprintf("Y: %d mm", int(m.Coordinates.Y)),
		fmt.Sprintf("Z: %d mm", int(m.Coordinates.Z)),
	}
}

// Annotator holds only the logger; every call is a function of its
// arguments and the caller's ROI config
type Annotator struct {
	logger logrus.FieldLogger
}

type Option func(*Annotator)

func WithLogger(l logrus.FieldLogger) Option {
	return func(a *Annotator) { a.logger = l }
}

func New(opts ...Option) *Annotator {
	a := &Annotator{logger: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ROIFor returns the normalized measurement region centered on p for a
// frame of the given size
func ROIFor(p image.Point, size image.Point) device.Rect {
	half := ROISize / 2
	px := device.PixelRect(image.Rect(p.X-half, p.Y-half, p.X+half, p.Y+half))
	return px.Normalize(size.X, size.Y).Clamp()
}

// DepthOfObject moves cfg's ROI onto det and pushes it to the device, then
// draws the first buffered sample on depthColor. With no detection nothing is
// sent or drawn. The returned measurement is nil when nothing was drawn.
//
// Samples come from an earlier request than the one sent here, so the drawn
// rectangle trails the object by at least one frame.
func (a *Annotator) DepthOfObject(
	ctx context.Context,
	depthColor *gocv.Mat,
	samples []device.SpatialLocation,
	det *segment.Detection,
	in device.ConfigSender,
	cfg *device.SpatialConfigData,
) (*Measurement, error) {
	if det == nil {
		return nil, nil
	}
	if depthColor.Empty() {
		return nil, errors.New("depth visualization is empty")
	}

	size := image.Pt(depthColor.Cols(), depthColor.Rows())
	cfg.ROI = ROIFor(det.Center, size)

	msg := &device.SpatialConfig{}
	msg.AddROI(*cfg)
	if err := in.Send(ctx, msg); err != nil {
		return nil, errors.Wrap(err, "send spatial calculator config")
	}

	if len(samples) == 0 {
		a.logger.WithField("center", det.Center).Debug("ANNOTATE: No spatial sample buffered")
		return nil, nil
	}

	sample := samples[0]
	m := &Measurement{
		ROI:         sample.Config.ROI.Denormalize(size.X, size.Y).Image(),
		Coordinates: sample.Coordinates,
		Sample:      sample,
	}

	DrawRectangle(depthColor, m.ROI, LabelColor)
	for i, line := range m.Lines() {
		org := image.Pt(m.ROI.Min.X+textIndent, m.ROI.Min.Y+textOffsets[i])
		DrawText(depthColor, line, org, LabelColor)
	}

	a.logger.WithFields(logrus.Fields{
		"x_mm":         int(m.Coordinates.X),
		"y_mm":         int(m.Coordinates.Y),
		"z_mm":         int(m.Coordinates.Z),
		"valid_pixels": sample.ValidPixels,
	}).Debug("ANNOTATE: Spatial sample")
	return m, nil
}
