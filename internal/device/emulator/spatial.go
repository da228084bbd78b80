package emulator

import (
	"image"
	"sort"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"spatial-object-locator/internal/device"
)

// SpatialCalculator measures the 3D position of depth ROIs, the software
// counterpart of the on-device spatial location calculator block.
type SpatialCalculator struct {
	intrinsics Intrinsics
}

// NewSpatialCalculator creates a calculator for depth frames described by in
func NewSpatialCalculator(in Intrinsics) (*SpatialCalculator, error) {
	if err := in.CheckValid(); err != nil {
		return nil, err
	}
	return &SpatialCalculator{intrinsics: in}, nil
}

// Calculate returns one location per ROI request, in request order
func (sc *SpatialCalculator) Calculate(depth gocv.Mat, configs []device.SpatialConfigData) ([]device.SpatialLocation, error) {
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
	bounds := image.Rect(0, 0, cols, rows)

	locations := make([]device.SpatialLocation, 0, len(configs))
	for _, cfg := range configs {
		roi := cfg.ROI
		if roi.Normalized {
			roi = roi.Clamp().Denormalize(cols, rows)
		}
		px := roi.Image().Intersect(bounds)

		samples := make([]float64, 0, px.Dx()*px.Dy())
		for y := px.Min.Y; y < px.Max.Y; y++ {
			row := data[y*cols : (y+1)*cols]
			for x := px.Min.X; x < px.Max.X; x++ {
				v := row[x]
				if v >= cfg.Thresholds.Lower && v <= cfg.Thresholds.Upper {
					samples = append(samples, float64(v))
				}
			}
		}

		loc := device.SpatialLocation{
			Config:      cfg,
			ValidPixels: len(samples),
		}
		if len(samples) > 0 {
			sort.Float64s(samples)
			z := reduce(cfg.Algorithm, samples)
			loc.DepthAverage = stat.Mean(samples, nil)
			loc.DepthMin = uint16(samples[0])
			loc.DepthMax = uint16(samples[len(samples)-1])
			loc.Coordinates = sc.intrinsics.PixelTo3D(roi.Center(), z)
		}
		locations = append(locations, loc)
	}
	return locations, nil
}

// reduce collapses sorted samples to a single depth
func reduce(algo device.Algorithm, sorted []float64) float64 {
	switch algo {
	case device.AlgorithmMin:
		return floats.Min(sorted)
	case device.AlgorithmMax:
		return floats.Max(sorted)
	case device.AlgorithmMedian:
		return stat.Quantile(0.5, stat.Empirical, sorted, nil)
	case device.AlgorithmMode:
		mode, _ := stat.Mode(sorted, nil)
		return mode
	default:
		return stat.Mean(sorted, nil)
	}
}
