package emulator

import (
	"context"
	"image"
	"io"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"spatial-object-locator/internal/device"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestEmulator(t *testing.T, clk clock.Clock) *Emulator {
	t.Helper()
	topo, err := device.DefaultTopology()
	require.NoError(t, err)

	em, err := New(topo, Options{FPS: 10, Clock: clk, Logger: quietLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, em.Close()) })
	return em
}

func openQueues(t *testing.T, em *Emulator) (depth, spatial, video *device.Queue) {
	t.Helper()
	var err error
	depth, err = em.OutputQueue("depth", 4, false)
	require.NoError(t, err)
	spatial, err = em.OutputQueue("spatialData", 4, false)
	require.NoError(t, err)
	video, err = em.OutputQueue("video", 4, false)
	require.NoError(t, err)
	return depth, spatial, video
}

func nextLocations(t *testing.T, q *device.Queue) []device.SpatialLocation {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := q.Get(ctx)
	require.NoError(t, err)
	batch, ok := msg.(*device.SpatialLocations)
	require.True(t, ok)
	return batch.Locations
}

func TestStepPublishesAllStreams(t *testing.T) {
	em := newTestEmulator(t, clock.NewMock())
	depthQ, spatialQ, videoQ := openQueues(t, em)

	require.NoError(t, em.Step(context.Background(), time.Unix(0, 0)))

	ctx := context.Background()
	msg, err := depthQ.Get(ctx)
	require.NoError(t, err)
	depth := msg.(*device.ImgFrame)
	defer depth.Close()
	assert.Equal(t, 640, depth.Mat.Cols())
	assert.Equal(t, 400, depth.Mat.Rows())
	assert.Equal(t, gocv.MatTypeCV16UC1, depth.Mat.Type())
	assert.EqualValues(t, 1, depth.Sequence)

	msg, err = videoQ.Get(ctx)
	require.NoError(t, err)
	video := msg.(*device.ImgFrame)
	defer video.Close()
	assert.Equal(t, 1920, video.Mat.Cols())
	assert.Equal(t, 1080, video.Mat.Rows())

	locs := nextLocations(t, spatialQ)
	require.Len(t, locs, 1)
	assert.InDelta(t, 800, locs[0].Coordinates.Z, 1e-9)
	assert.InDelta(t, 0, locs[0].Coordinates.X, 1e-6)
	assert.InDelta(t, 0, locs[0].Coordinates.Y, 1e-6)
	assert.Greater(t, locs[0].ValidPixels, 0)
}

func TestConfigAppliesToLaterFrames(t *testing.T) {
	em := newTestEmulator(t, clock.NewMock())
	_, spatialQ, _ := openQueues(t, em)
	in, err := em.InputQueue("spatialCalcConfig")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, em.Step(ctx, time.Unix(0, 0)))
	first := nextLocations(t, spatialQ)

	wall := device.NewRectFromPoints(r2.Point{X: 0.85, Y: 0.1}, r2.Point{X: 0.9, Y: 0.15}, true)
	cfg := &device.SpatialConfig{}
	cfg.AddROI(device.SpatialConfigData{
		ROI:        wall,
		Thresholds: device.DepthThresholds{Lower: 100, Upper: 10000},
		Algorithm:  device.AlgorithmMedian,
	})
	require.NoError(t, device.ConfigInput{Queue: in}.Send(ctx, cfg))

	// the frame already measured keeps its old ROI
	assert.InDelta(t, 0.4, first[0].Config.ROI.X, 1e-9)

	require.NoError(t, em.Step(ctx, time.Unix(0, 0).Add(100*time.Millisecond)))
	second := nextLocations(t, spatialQ)
	require.Len(t, second, 1)
	assert.Equal(t, wall, second[0].Config.ROI)
	assert.InDelta(t, 2000, second[0].Coordinates.Z, 1e-9)
	assert.Equal(t, wall, em.Config()[0].ROI)
}

func TestStartProducesOnTicks(t *testing.T) {
	mock := clock.NewMock()
	em := newTestEmulator(t, mock)
	depthQ, _, _ := openQueues(t, em)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	em.Start(ctx)

	mock.Add(100 * time.Millisecond)

	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	msg, err := depthQ.Get(waitCtx)
	require.NoError(t, err)
	require.NoError(t, msg.Close())
}

func TestUnopenedStreamsAreDropped(t *testing.T) {
	em := newTestEmulator(t, clock.NewMock())
	require.NoError(t, em.Step(context.Background(), time.Unix(0, 0)))

	q, err := em.OutputQueue("depth", 4, false)
	require.NoError(t, err)
	assert.Equal(t, 0, q.Len())
}

func TestStreamLookupErrors(t *testing.T) {
	em := newTestEmulator(t, clock.NewMock())

	_, err := em.OutputQueue("nope", 4, false)
	assert.True(t, errors.Is(err, device.ErrUnknownStream))
	_, err = em.OutputQueue("spatialCalcConfig", 4, false)
	assert.True(t, errors.Is(err, device.ErrUnknownStream))
	_, err = em.InputQueue("depth")
	assert.True(t, errors.Is(err, device.ErrUnknownStream))

	info := em.Info()
	assert.NotEmpty(t, info.ID)
	assert.Equal(t, "hsv-spatial-locator", info.Topology)
}

func TestSceneObjectMoves(t *testing.T) {
	s := DefaultScene()
	size := image.Pt(640, 400)

	atZero := s.ObjectBounds(size, 0)
	atQuarter := s.ObjectBounds(size, s.Period/4)
	assert.Equal(t, 320, (atZero.Min.X+atZero.Max.X)/2)
	assert.Greater(t, atQuarter.Min.X, atZero.Min.X)

	depth, err := s.RenderDepth(size, 0)
	require.NoError(t, err)
	defer depth.Close()
	assert.EqualValues(t, 0, depth.GetShortAt(200, 5))
	assert.EqualValues(t, 2000, depth.GetShortAt(10, 600))
	assert.EqualValues(t, 800, depth.GetShortAt(200, 320))
}

func depthMat(t *testing.T, rows, cols int, value uint16) gocv.Mat {
	t.Helper()
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(float64(value), 0, 0, 0), rows, cols, gocv.MatTypeCV16UC1)
	require.False(t, m.Empty())
	return m
}

func TestSpatialCalculatorAlgorithms(t *testing.T) {
	depth := depthMat(t, 100, 100, 1000)
	defer depth.Close()
	fill(&depth, image.Rect(0, 0, 50, 100), gocv.NewScalar(3000, 0, 0, 0))
	fill(&depth, image.Rect(0, 0, 10, 10), gocv.NewScalar(50, 0, 0, 0))

	calc, err := NewSpatialCalculator(IntrinsicsFromFOV(100, 100, 90))
	require.NoError(t, err)

	whole := device.Rect{X: 0, Y: 0, Width: 1, Height: 1, Normalized: true}
	thresholds := device.DepthThresholds{Lower: 100, Upper: 10000}
	configs := []device.SpatialConfigData{
		{ROI: whole, Thresholds: thresholds, Algorithm: device.AlgorithmMin},
		{ROI: whole, Thresholds: thresholds, Algorithm: device.AlgorithmMax},
		{ROI: whole, Thresholds: thresholds, Algorithm: device.AlgorithmAverage},
		{ROI: device.Rect{X: 60, Y: 0, Width: 40, Height: 100}, Thresholds: thresholds, Algorithm: device.AlgorithmMedian},
	}

	locs, err := calc.Calculate(depth, configs)
	require.NoError(t, err)
	require.Len(t, locs, 4)

	assert.InDelta(t, 1000, locs[0].Coordinates.Z, 1e-9)
	assert.InDelta(t, 3000, locs[1].Coordinates.Z, 1e-9)
	assert.Equal(t, 100*100-10*10, locs[2].ValidPixels)
	assert.InDelta(t, (4900.0*3000+5000.0*1000)/9900, locs[2].Coordinates.Z, 1e-6)
	assert.EqualValues(t, 1000, locs[2].DepthMin)
	assert.EqualValues(t, 3000, locs[2].DepthMax)

	// ROI centered right of the principal point at z=1000, f=50
	assert.InDelta(t, 1000, locs[3].Coordinates.Z, 1e-9)
	assert.InDelta(t, (80.0-50)*1000/50, locs[3].Coordinates.X, 1e-6)
	assert.InDelta(t, 0, locs[3].Coordinates.Y, 1e-6)
}

func TestSpatialCalculatorNoValidDepth(t *testing.T) {
	depth := depthMat(t, 40, 40, 0)
	defer depth.Close()

	calc, err := NewSpatialCalculator(IntrinsicsFromFOV(40, 40, 72))
	require.NoError(t, err)

	locs, err := calc.Calculate(depth, []device.SpatialConfigData{{
		ROI:        device.Rect{X: 0.25, Y: 0.25, Width: 0.5, Height: 0.5, Normalized: true},
		Thresholds: device.DepthThresholds{Lower: 100, Upper: 10000},
		Algorithm:  device.AlgorithmMedian,
	}})
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Zero(t, locs[0].ValidPixels)
	assert.Zero(t, locs[0].Coordinates.Z)
}

func TestSpatialCalculatorRejectsColorFrames(t *testing.T) {
	color := gocv.NewMatWithSize(10, 10, gocv.MatTypeCV8UC3)
	defer color.Close()

	calc, err := NewSpatialCalculator(IntrinsicsFromFOV(10, 10, 72))
	require.NoError(t, err)
	_, err = calc.Calculate(color, nil)
	assert.Error(t, err)
}

func TestIntrinsicsCheckValid(t *testing.T) {
	in := IntrinsicsFromFOV(640, 400, 90)
	require.NoError(t, in.CheckValid())
	assert.InDelta(t, 320, in.Fx, 1e-9)

	bad := Intrinsics{Width: 640, Height: 400}
	assert.True(t, errors.Is(bad.CheckValid(), ErrNoIntrinsics))
	var missing *Intrinsics
	assert.Error(t, missing.CheckValid())
}
