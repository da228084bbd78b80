// Color segmentation and localization of a single object in a BGR frame
package segment

import (
	"image"
	"image/color"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"spatial-object-locator/internal/hsv"
)

const (
	// KernelSize is the side of the square structuring element
	KernelSize = 5
	// MinContourArea is the noise threshold in px²; contours must exceed it
	MinContourArea = 2000.0
	// CenterLift moves the reported center above the box midpoint
	CenterLift = 20
)

const markerRadius = 5

var (
	boxColor    = color.RGBA{R: 0, G: 255, B: 0, A: 0}
	markerColor = color.RGBA{R: 0, G: 0, B: 255, A: 0}
)

// Selection decides which detection is reported when several survive
type Selection int

const (
	// SelectLast reports the last rectangle in contour discovery order
	SelectLast Selection = iota
	// SelectLargest reports the rectangle with the largest area, earliest on ties
	SelectLargest
)

func (s Selection) String() string {
	switch s {
	case SelectLast:
		return "last"
	case SelectLargest:
		return "largest"
	}
	return "unknown"
}

// ParseSelection accepts "last" or "largest"
func ParseSelection(s string) (Selection, error) {
	switch s {
	case "last":
		return SelectLast, nil
	case "largest":
		return SelectLargest, nil
	}
	return 0, errors.Errorf("unknown selection policy %q", s)
}

// Detection is the object reported for one frame
type Detection struct {
	Box    image.Rectangle
	Center image.Point
	// Corners are top-left, top-right, bottom-left, bottom-right
	Corners [4]image.Point
}

// Area returns the box area in px²
func (d *Detection) Area() int {
	return d.Box.Dx() * d.Box.Dy()
}

func newDetection(box image.Rectangle) *Detection {
	x, y, w, h := box.Min.X, box.Min.Y, box.Dx(), box.Dy()
	return &Detection{
		Box:    box,
		Center: image.Pt(x+w/2, y+h/2-CenterLift),
		Corners: [4]image.Point{
			{X: x, Y: y},
			{X: x + w, Y: y},
			{X: x, Y: y + h},
			{X: x + w, Y: y + h},
		},
	}
}

// Filtered is the output of the HSV threshold
type Filtered struct {
	// Mask is CV_8UC1, 255 where the pixel is inside the range
	Mask gocv.Mat
	// Result is the color frame with pixels outside the range zeroed
	Result gocv.Mat
}

func (f *Filtered) Close() error {
	f.Mask.Close()
	return f.Result.Close()
}

// Segmenter holds the structuring element and the range provider
type Segmenter struct {
	provider         hsv.Provider
	kernel           gocv.Mat
	selection        Selection
	erodeIterations  int
	dilateIterations int
	logger           logrus.FieldLogger
}

// Option configures a Segmenter
type Option func(*Segmenter)

func WithSelection(s Selection) Option {
	return func(seg *Segmenter) { seg.selection = s }
}

// WithIterations sets the erosion and dilation counts, minimum 1 each
func WithIterations(erode, dilate int) Option {
	return func(seg *Segmenter) {
		if erode >= 1 {
			seg.erodeIterations = erode
		}
		if dilate >= 1 {
			seg.dilateIterations = dilate
		}
	}
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(seg *Segmenter) { seg.logger = l }
}

// New creates a Segmenter reading its range from provider
func New(provider hsv.Provider, opts ...Option) *Segmenter {
	s := &Segmenter{
		provider:         provider,
		kernel:           gocv.GetStructuringElement(gocv.MorphRect, image.Pt(KernelSize, KernelSize)),
		selection:        SelectLast,
		erodeIterations:  1,
		dilateIterations: 1,
		logger:           logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close releases the structuring element
func (s *Segmenter) Close() error {
	return s.kernel.Close()
}

// FilterFrame thresholds a BGR frame against the provider's current range
func (s *Segmenter) FilterFrame(frame gocv.Mat) (Filtered, error) {
	if frame.Empty() {
		return Filtered{Mask: gocv.NewMat(), Result: gocv.NewMat()}, errors.New("input frame is empty")
	}
	if frame.Channels() != 3 {
		return Filtered{Mask: gocv.NewMat(), Result: gocv.NewMat()}, errors.Errorf("expected 3 channel BGR frame, got %d", frame.Channels())
	}

	r := s.provider.Range()

	hsvFrame := gocv.NewMat()
	defer hsvFrame.Close()
	gocv.CvtColor(frame, &hsvFrame, gocv.ColorBGRToHSV)

	mask := gocv.NewMat()
	gocv.InRangeWithScalar(hsvFrame, r.Lower(), r.Upper(), &mask)

	result := gocv.NewMat()
	gocv.BitwiseAndWithMask(frame, frame, &result, mask)

	return Filtered{Mask: mask, Result: result}, nil
}

// Erode applies the 5x5 erosion iterations times
func (s *Segmenter) Erode(mask gocv.Mat, iterations int) gocv.Mat {
	return s.morph(mask, iterations, func(src gocv.Mat, dst *gocv.Mat) {
		gocv.Erode(src, dst, s.kernel)
	})
}

// Dilate applies the 5x5 dilation iterations times
func (s *Segmenter) Dilate(mask gocv.Mat, iterations int) gocv.Mat {
	return s.morph(mask, iterations, func(src gocv.Mat, dst *gocv.Mat) {
		gocv.Dilate(src, dst, s.kernel)
	})
}

// Open erodes then dilates with the configured iteration counts, removing
// blobs smaller than the element before closing gaps in the survivors.
func (s *Segmenter) Open(mask gocv.Mat) gocv.Mat {
	eroded := s.Erode(mask, s.erodeIterations)
	defer eroded.Close()
	return s.Dilate(eroded, s.dilateIterations)
}

func (s *Segmenter) morph(input gocv.Mat, iterations int, op func(gocv.Mat, *gocv.Mat)) gocv.Mat {
	if iterations < 1 {
		iterations = 1
	}
	output := gocv.NewMat()
	op(input, &output)

	for i := 1; i < iterations; i++ {
		temp := gocv.NewMat()
		op(output, &temp)
		output.Close()
		output = temp
	}
	return output
}

// FilterContours returns bounding boxes of external contours whose area
// exceeds MinContourArea, in discovery order
func FilterContours(mask gocv.Mat) ([]image.Rectangle, error) {
	if mask.Empty() {
		return nil, errors.New("mask is empty")
	}
	if mask.Channels() != 1 {
		return nil, errors.Errorf("mask must be single channel, got %d", mask.Channels())
	}

	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	objects := make([]image.Rectangle, 0, contours.Size())
	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)
		if gocv.ContourArea(contour) > MinContourArea {
			objects = append(objects, gocv.BoundingRect(contour))
		}
	}
	return objects, nil
}

// BoundingBox draws every rectangle on frame and a center marker on both
// frames, then returns the detection chosen by the selection policy, or nil
// when rects is empty.
func (s *Segmenter) BoundingBox(frame, depthFrame *gocv.Mat, rects []image.Rectangle) *Detection {
	var chosen *Detection
	for _, r := range rects {
		d := newDetection(r)
		gocv.Rectangle(frame, r, boxColor, 2)
		gocv.Circle(depthFrame, d.Center, markerRadius, markerColor, -1)
		gocv.Circle(frame, d.Center, markerRadius, markerColor, -1)

		switch {
		case chosen == nil:
			chosen = d
		case s.selection == SelectLast:
			chosen = d
		case s.selection == SelectLargest && d.Area() > chosen.Area():
			chosen = d
		}
	}
	return chosen
}

// Result is the segmentation output for one frame
type Result struct {
	Filtered  Filtered
	Objects   []image.Rectangle
	Detection *Detection
}

func (r *Result) Close() error {
	return r.Filtered.Close()
}

// Process runs threshold, opening, contour filtering and box drawing. The
// caller owns the returned Result.
func (s *Segmenter) Process(frame, depthFrame *gocv.Mat) (*Result, error) {
	filtered, err := s.FilterFrame(*frame)
	if err != nil {
		filtered.Close()
		return nil, errors.Wrap(err, "filter frame")
	}

	cleaned := s.Open(filtered.Mask)
	defer cleaned.Close()

	objects, err := FilterContours(cleaned)
	if err != nil {
		filtered.Close()
		return nil, errors.Wrap(err, "filter contours")
	}

	det := s.BoundingBox(frame, depthFrame, objects)
	if len(objects) > 1 {
		s.logger.WithFields(logrus.Fields{
			"objects":   len(objects),
			"selection": s.selection.String(),
		}).Debug("SEGMENT: Multiple objects, reporting one")
	}
	return &Result{Filtered: filtered, Objects: objects, Detection: det}, nil
}
