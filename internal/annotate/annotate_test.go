package annotate

import (
	"context"
	"image"
	"io"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"spatial-object-locator/internal/device"
	"spatial-object-locator/internal/segment"
)

type recordingSender struct {
	sent []*device.SpatialConfig
	err  error
}

func (r *recordingSender) Send(_ context.Context, cfg *device.SpatialConfig) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, cfg)
	return nil
}

func newAnnotator() *Annotator {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return New(WithLogger(l))
}

func blankDepthColor() gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 400, 640, gocv.MatTypeCV8UC3)
}

func initialConfig() *device.SpatialConfigData {
	return &device.SpatialConfigData{
		ROI:        device.Rect{X: 0.4, Y: 0.4, Width: 0.2, Height: 0.2, Normalized: true},
		Thresholds: device.DepthThresholds{Lower: 100, Upper: 10000},
		Algorithm:  device.AlgorithmMedian,
	}
}

func sample(roi device.Rect, x, y, z float64) device.SpatialLocation {
	return device.SpatialLocation{
		Config:      device.SpatialConfigData{ROI: roi},
		Coordinates: r3.Vector{X: x, Y: y, Z: z},
		ValidPixels: 400,
	}
}

func TestDepthOfObjectWithoutDetectionIsNoop(t *testing.T) {
	frame := blankDepthColor()
	defer frame.Close()
	sender := &recordingSender{}
	cfg := initialConfig()
	before := *cfg

	samples := []device.SpatialLocation{sample(cfg.ROI, 1, 2, 3)}
	m, err := newAnnotator().DepthOfObject(context.Background(), &frame, samples, nil, sender, cfg)
	require.NoError(t, err)

	assert.Nil(t, m)
	assert.Empty(t, sender.sent)
	assert.Equal(t, before, *cfg)
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)
	assert.Zero(t, gocv.CountNonZero(gray))
}

func TestDepthOfObjectSendsCenteredROI(t *testing.T) {
	frame := blankDepthColor()
	defer frame.Close()
	sender := &recordingSender{}
	cfg := initialConfig()
	det := &segment.Detection{Center: image.Pt(320, 200)}

	_, err := newAnnotator().DepthOfObject(context.Background(), &frame, nil, det, sender, cfg)
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	require.Len(t, sender.sent[0].ROIs, 1)
	sent := sender.sent[0].ROIs[0]
	assert.Equal(t, *cfg, sent)

	assert.True(t, cfg.ROI.Normalized)
	assert.InDelta(t, 310.0/640, cfg.ROI.X, 1e-12)
	assert.InDelta(t, 190.0/400, cfg.ROI.Y, 1e-12)
	assert.InDelta(t, 20.0/640, cfg.ROI.Width, 1e-12)
	assert.InDelta(t, 20.0/400, cfg.ROI.Height, 1e-12)
	assert.Equal(t, image.Rect(310, 190, 330, 210), cfg.ROI.Denormalize(640, 400).Image())

	// the request keeps its thresholds and algorithm
	assert.EqualValues(t, 100, sent.Thresholds.Lower)
	assert.Equal(t, device.AlgorithmMedian, sent.Algorithm)
}

func TestDepthOfObjectDrawsFirstSampleOnly(t *testing.T) {
	frame := blankDepthColor()
	defer frame.Close()
	sender := &recordingSender{}
	cfg := initialConfig()
	det := &segment.Detection{Center: image.Pt(100, 100)}

	first := sample(device.Rect{X: 0.4, Y: 0.4, Width: 0.2, Height: 0.2, Normalized: true}, 123.7, -45.2, 800.9)
	second := sample(device.Rect{X: 0, Y: 0, Width: 0.1, Height: 0.1, Normalized: true}, 9, 9, 9)

	m, err := newAnnotator().DepthOfObject(context.Background(), &frame, []device.SpatialLocation{first, second}, det, sender, cfg)
	require.NoError(t, err)
	require.NotNil(t, m)

	assert.Equal(t, image.Rect(256, 160, 384, 240), m.ROI)
	assert.Equal(t, [3]string{"X: 123 mm", "Y: -45 mm", "Z: 800 mm"}, m.Lines())
	assert.Equal(t, first, m.Sample)

	assert.Equal(t, gocv.Vecb{255, 255, 255}, frame.GetVecbAt(160, 300))
	// the second sample's region stays untouched
	assert.Equal(t, gocv.Vecb{0, 0, 0}, frame.GetVecbAt(0, 0))
	assert.Equal(t, gocv.Vecb{0, 0, 0}, frame.GetVecbAt(20, 40))
}

func TestDepthOfObjectClampsAtFrameEdge(t *testing.T) {
	frame := blankDepthColor()
	defer frame.Close()
	sender := &recordingSender{}
	cfg := initialConfig()

	_, err := newAnnotator().DepthOfObject(context.Background(), &frame, nil, &segment.Detection{Center: image.Pt(4, 396)}, sender, cfg)
	require.NoError(t, err)

	assert.Zero(t, cfg.ROI.X)
	assert.InDelta(t, 14.0/640, cfg.ROI.Width, 1e-12)
	assert.InDelta(t, 1.0, cfg.ROI.Y+cfg.ROI.Height, 1e-12)
}

func TestDepthOfObjectSendFailure(t *testing.T) {
	frame := blankDepthColor()
	defer frame.Close()
	sender := &recordingSender{err: device.ErrQueueClosed}

	m, err := newAnnotator().DepthOfObject(context.Background(), &frame, nil, &segment.Detection{Center: image.Pt(50, 50)}, sender, initialConfig())
	assert.Nil(t, m)
	assert.True(t, errors.Is(err, device.ErrQueueClosed))
}
