package stream

import (
	"sort"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/stat"
)

const (
	// SampleStride keeps one depth row in four for percentile estimation
	SampleStride = 4

	lowPercentile  = 0.01
	highPercentile = 0.99
)

// DepthRange holds the remap anchors of one depth frame, in millimetres
type DepthRange struct {
	Min float64
	Max float64
}

// SampleDepth returns every SampleStride-th row of a CV_16UC1 frame as floats
func SampleDepth(depth gocv.Mat) ([]float64, error) {
	if depth.Empty() {
		return nil, errors.New("depth frame is empty")
	}
	if depth.Type() != gocv.MatTypeCV16UC1 {
		return nil, errors.Errorf("depth frame must be CV_16UC1, got %v", depth.Type())
	}
	data, err := depth.DataPtrUint16()
	if err != nil {
		return nil, errors.Wrap(err, "read depth frame")
	}

	cols, rows := depth.Cols(), depth.Rows()
	samples := make([]float64, 0, cols*((rows+SampleStride-1)/SampleStride))
	for y := 0; y < rows; y += SampleStride {
		for _, v := range data[y*cols : (y+1)*cols] {
			samples = append(samples, float64(v))
		}
	}
	return samples, nil
}

// EstimateRange computes the remap anchors from sampled depth. The low anchor
// is the 1st percentile of nonzero samples, the high anchor the 99th
// percentile of all samples. ok is false when every sample is zero, in which
// case only Min (0) is meaningful.
func EstimateRange(samples []float64) (DepthRange, bool) {
	nonzero := make([]float64, 0, len(samples))
	for _, v := range samples {
		if v != 0 {
			nonzero = append(nonzero, v)
		}
	}
	if len(nonzero) == 0 {
		return DepthRange{Min: 0}, false
	}

	all := append([]float64(nil), samples...)
	sort.Float64s(all)
	sort.Float64s(nonzero)

	return DepthRange{
		Min: stat.Quantile(lowPercentile, stat.LinInterp, nonzero, nil),
		Max: stat.Quantile(highPercentile, stat.LinInterp, all, nil),
	}, true
}

// RemapDepth linearly maps depth to 0..255 between the range anchors, values
// outside the anchors saturate. The result is CV_8UC1 and must be closed by
// the caller even when err is non-nil.
func RemapDepth(depth gocv.Mat, r DepthRange) (gocv.Mat, error) {
	if depth.Empty() {
		return gocv.NewMat(), errors.New("depth frame is empty")
	}
	span := r.Max - r.Min
	if span <= 0 {
		span = 1
	}
	alpha := 255 / span
	beta := -r.Min * alpha

	gray := gocv.NewMat()
	depth.ConvertToWithParams(&gray, gocv.MatTypeCV8UC1, float32(alpha), float32(beta))
	if gray.Empty() {
		return gray, errors.New("remap produced an empty frame")
	}
	return gray, nil
}

// ColorizeDepth produces the heat-map visualization of a depth frame. When
// the frame has no valid depth, ok is false and colored is empty. colored is
// always a live Mat the caller must Close, on every return path.
func ColorizeDepth(depth gocv.Mat) (r DepthRange, colored gocv.Mat, ok bool, err error) {
	samples, err := SampleDepth(depth)
	if err != nil {
		return DepthRange{}, gocv.NewMat(), false, err
	}
	r, ok = EstimateRange(samples)
	if !ok {
		return r, gocv.NewMat(), false, nil
	}

	gray, err := RemapDepth(depth, r)
	defer gray.Close()
	if err != nil {
		return r, gocv.NewMat(), false, err
	}

	colored = gocv.NewMat()
	gocv.ApplyColorMap(gray, &colored, gocv.ColormapHot)
	return r, colored, true, nil
}
