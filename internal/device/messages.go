package device

import (
	"fmt"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Message is anything carried by a device queue. Close releases native memory.
type Message interface {
	Close() error
}

// ImgFrame is a depth or color frame produced by the device
type ImgFrame struct {
	Sequence  int64
	Timestamp time.Time
	Mat       gocv.Mat
}

func (f *ImgFrame) Close() error {
	if f == nil {
		return nil
	}
	return f.Mat.Close()
}

// Algorithm selects how the spatial calculator reduces ROI depth samples
type Algorithm int

const (
	AlgorithmAverage Algorithm = iota
	AlgorithmMin
	AlgorithmMax
	AlgorithmMode
	AlgorithmMedian
)

func (a Algorithm) String() string {
	switch a {
	case AlgorithmAverage:
		return "AVERAGE"
	case AlgorithmMin:
		return "MIN"
	case AlgorithmMax:
		return "MAX"
	case AlgorithmMode:
		return "MODE"
	case AlgorithmMedian:
		return "MEDIAN"
	}
	return fmt.Sprintf("Algorithm(%d)", int(a))
}

// ParseAlgorithm accepts the upper-case names used in the topology
func ParseAlgorithm(s string) (Algorithm, error) {
	for _, a := range []Algorithm{AlgorithmAverage, AlgorithmMin, AlgorithmMax, AlgorithmMode, AlgorithmMedian} {
		if a.String() == s {
			return a, nil
		}
	}
	return 0, errors.Errorf("unknown spatial algorithm %q", s)
}

// DepthThresholds bounds the depth values (mm) a calculator accepts
type DepthThresholds struct {
	Lower uint16
	Upper uint16
}

// SpatialConfigData is one ROI measurement request
type SpatialConfigData struct {
	ROI        Rect
	Thresholds DepthThresholds
	Algorithm  Algorithm
}

// SpatialConfig is the message sent to the calculator's config input
type SpatialConfig struct {
	ROIs []SpatialConfigData
}

// AddROI appends a copy of the request
func (c *SpatialConfig) AddROI(d SpatialConfigData) {
	c.ROIs = append(c.ROIs, d)
}

func (c *SpatialConfig) Close() error { return nil }

// SpatialLocation is one calculator result. Config is the request it was
// measured for, which may be older than the latest request sent.
type SpatialLocation struct {
	Config       SpatialConfigData
	Coordinates  r3.Vector
	DepthAverage float64
	DepthMin     uint16
	DepthMax     uint16
	ValidPixels  int
}

// SpatialLocations is the batch emitted for one depth frame
type SpatialLocations struct {
	Sequence  int64
	Timestamp time.Time
	Locations []SpatialLocation
}

func (s *SpatialLocations) Close() error { return nil }
