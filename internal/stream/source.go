// Frame source: pulls synchronized depth, spatial and color data from a device
package stream

import (
	"context"
	"image"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"gocv.io/x/gocv"

	"spatial-object-locator/internal/device"
)

const (
	hostQueueSize = 4
)

// OutputSize is the resolution every emitted color frame is resized to
var OutputSize = image.Pt(640, 400)

// Packet is one emitted frame set. The caller owns it and must Close it.
type Packet struct {
	Sequence   int64
	Timestamp  time.Time
	Color      gocv.Mat
	DepthColor gocv.Mat
	Depth      DepthRange
	Spatial    []device.SpatialLocation
	// ROI is the persistent calculator request, mutated by the annotation stage
	ROI      *device.SpatialConfigData
	ConfigIn device.ConfigSender
}

func (p *Packet) Close() error {
	if p == nil {
		return nil
	}
	return multierr.Combine(p.Color.Close(), p.DepthColor.Close())
}

// Source owns the device queues and the ROI configuration handle
type Source struct {
	depth   *device.Queue
	spatial *device.Queue
	video   *device.Queue
	config  device.ConfigSender
	roi     *device.SpatialConfigData
	logger  logrus.FieldLogger
}

// Option configures a Source
type Option func(*Source)

// WithLogger sets the logger used for skipped-frame diagnostics
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Source) { s.logger = l }
}

// NewSource opens the host side of the topology's streams on dev
func NewSource(dev device.Device, topo *device.Topology, opts ...Option) (*Source, error) {
	calc, err := topo.SpatialCalculator()
	if err != nil {
		return nil, err
	}
	depthStream, err := topo.OutputStream(device.Endpoint{Node: calc.Name, Port: "passthroughDepth"})
	if err != nil {
		return nil, err
	}
	spatialStream, err := topo.OutputStream(device.Endpoint{Node: calc.Name, Port: "out"})
	if err != nil {
		return nil, err
	}
	configStream, err := topo.InputStream(device.Endpoint{Node: calc.Name, Port: "inputConfig"})
	if err != nil {
		return nil, err
	}
	colors := topo.NodesOfKind(device.KindColorCamera)
	if len(colors) == 0 {
		return nil, errors.Wrap(device.ErrInvalidTopology, "no color camera")
	}
	videoStream, err := topo.OutputStream(device.Endpoint{Node: colors[0].Name, Port: "video"})
	if err != nil {
		return nil, err
	}

	s := &Source{logger: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(s)
	}

	if s.depth, err = dev.OutputQueue(depthStream.Name, hostQueueSize, false); err != nil {
		return nil, errors.Wrap(err, "open depth queue")
	}
	if s.spatial, err = dev.OutputQueue(spatialStream.Name, hostQueueSize, false); err != nil {
		return nil, errors.Wrap(err, "open spatial queue")
	}
	if s.video, err = dev.OutputQueue(videoStream.Name, hostQueueSize, false); err != nil {
		return nil, errors.Wrap(err, "open video queue")
	}
	in, err := dev.InputQueue(configStream.Name)
	if err != nil {
		return nil, errors.Wrap(err, "open config queue")
	}
	s.config = device.ConfigInput{Queue: in}

	initial := calc.Spatial.InitialConfig()
	s.roi = &initial
	return s, nil
}

// ROI returns the persistent calculator request
func (s *Source) ROI() *device.SpatialConfigData {
	return s.roi
}

// Next blocks for the next depth frame and returns the matching packet. It
// returns (nil, nil) when the depth frame carries no valid depth at all; the
// caller waits for the next pull.
func (s *Source) Next(ctx context.Context) (*Packet, error) {
	msg, err := s.depth.Get(ctx)
	if err != nil {
		return nil, err
	}
	depth, ok := msg.(*device.ImgFrame)
	if !ok {
		_ = msg.Close()
		return nil, errors.Errorf("unexpected %T on depth stream", msg)
	}
	defer depth.Close()

	r, depthColor, valid, err := ColorizeDepth(depth.Mat)
	if err != nil {
		depthColor.Close()
		return nil, errors.Wrap(err, "colorize depth")
	}
	if !valid {
		depthColor.Close()
		s.logger.WithFields(logrus.Fields{
			"sequence":  depth.Sequence,
			"min_depth": r.Min,
		}).Debug("STREAM: Depth frame has no valid depth, skipping")
		return nil, nil
	}

	pkt := &Packet{
		Sequence:   depth.Sequence,
		Timestamp:  depth.Timestamp,
		DepthColor: depthColor,
		Depth:      r,
		ROI:        s.roi,
		ConfigIn:   s.config,
		Color:      gocv.NewMat(),
	}

	spatialMsg, err := s.spatial.Get(ctx)
	if err != nil {
		pkt.Close()
		return nil, err
	}
	if batch, ok := spatialMsg.(*device.SpatialLocations); ok {
		pkt.Spatial = batch.Locations
	}

	videoMsg, err := s.video.Get(ctx)
	if err != nil {
		pkt.Close()
		return nil, err
	}
	video, ok := videoMsg.(*device.ImgFrame)
	if !ok {
		_ = videoMsg.Close()
		pkt.Close()
		return nil, errors.Errorf("unexpected %T on video stream", videoMsg)
	}
	defer video.Close()

	gocv.Resize(video.Mat, &pkt.Color, OutputSize, 0, 0, gocv.InterpolationLinear)
	return pkt, nil
}
