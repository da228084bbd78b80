// Software emulation of a stereo depth camera running a device.Topology
package emulator

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"spatial-object-locator/internal/device"
)

const defaultInputQueueSize = 4

// Options configures the emulated device
type Options struct {
	FPS   float64
	Clock clock.Clock
	Scene *Scene
	// Color overrides the rendered color view, e.g. with a webcam
	Color  ColorSource
	Logger logrus.FieldLogger
}

// Emulator implements device.Device. One producer goroutine renders a frame
// per tick, runs the spatial calculator and publishes to the host queues.
type Emulator struct {
	id       uuid.UUID
	topology *device.Topology
	clock    clock.Clock
	interval time.Duration
	scene    *Scene
	color    ColorSource
	calc     *SpatialCalculator
	logger   logrus.FieldLogger

	depthSize image.Point
	colorSize image.Point

	depthStream   string
	spatialStream string
	videoStream   string
	configStream  string

	mu      sync.Mutex
	outputs map[string]*device.Queue
	inputs  map[string]*device.Queue
	config  []device.SpatialConfigData
	start   time.Time
	seq     int64

	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

// New builds an emulator for the topology. The topology must contain the
// spatial calculator graph with its depth, spatial and config streams and a
// color camera published to the host.
func New(topo *device.Topology, opts Options) (*Emulator, error) {
	if err := topo.Validate(); err != nil {
		return nil, err
	}
	if opts.FPS <= 0 {
		opts.FPS = 30
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Scene == nil {
		opts.Scene = DefaultScene()
	}
	if opts.Color == nil {
		opts.Color = sceneColor{scene: opts.Scene}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	e := &Emulator{
		id:       uuid.New(),
		topology: topo,
		clock:    opts.Clock,
		interval: time.Duration(float64(time.Second) / opts.FPS),
		scene:    opts.Scene,
		color:    opts.Color,
		outputs:  make(map[string]*device.Queue),
		inputs:   make(map[string]*device.Queue),
	}
	if err := e.resolve(); err != nil {
		return nil, err
	}

	calc, err := NewSpatialCalculator(IntrinsicsFromFOV(e.depthSize.X, e.depthSize.Y, MonoHFOV))
	if err != nil {
		return nil, err
	}
	e.calc = calc

	e.logger = opts.Logger.WithFields(logrus.Fields{
		"device_id": e.id.String(),
		"topology":  topo.Name,
	})
	e.logger.WithFields(logrus.Fields{
		"depth_size": e.depthSize,
		"color_size": e.colorSize,
		"fps":        opts.FPS,
	}).Info("DEVICE: Emulated depth camera ready")
	return e, nil
}

// resolve walks the topology from the spatial calculator to find stream
// names, sensor sizes and the initial ROI.
func (e *Emulator) resolve() error {
	calc, err := e.topology.SpatialCalculator()
	if err != nil {
		return err
	}
	e.config = []device.SpatialConfigData{calc.Spatial.InitialConfig()}

	depthIn, ok := e.topology.Source(device.Endpoint{Node: calc.Name, Port: "inputDepth"})
	if !ok {
		return errors.Wrapf(device.ErrInvalidTopology, "%s.inputDepth is not linked", calc.Name)
	}
	stereo, _ := e.topology.Node(depthIn.Node)
	if stereo.Kind != device.KindStereoDepth {
		return errors.Wrapf(device.ErrInvalidTopology, "%s.inputDepth must come from stereo depth, got %s", calc.Name, stereo.Kind)
	}
	left, ok := e.topology.Source(device.Endpoint{Node: stereo.Name, Port: "left"})
	if !ok {
		return errors.Wrapf(device.ErrInvalidTopology, "%s.left is not linked", stereo.Name)
	}
	mono, _ := e.topology.Node(left.Node)
	if mono.Camera == nil {
		return errors.Wrapf(device.ErrInvalidTopology, "%s is not a camera", left.Node)
	}
	e.depthSize = mono.Camera.Size()

	depth, err := e.topology.OutputStream(device.Endpoint{Node: calc.Name, Port: "passthroughDepth"})
	if err != nil {
		return err
	}
	spatial, err := e.topology.OutputStream(device.Endpoint{Node: calc.Name, Port: "out"})
	if err != nil {
		return err
	}
	cfg, err := e.topology.InputStream(device.Endpoint{Node: calc.Name, Port: "inputConfig"})
	if err != nil {
		return err
	}
	e.depthStream, e.spatialStream, e.configStream = depth.Name, spatial.Name, cfg.Name

	colors := e.topology.NodesOfKind(device.KindColorCamera)
	if len(colors) == 0 {
		return errors.Wrap(device.ErrInvalidTopology, "no color camera")
	}
	video, err := e.topology.OutputStream(device.Endpoint{Node: colors[0].Name, Port: "video"})
	if err != nil {
		return err
	}
	e.videoStream = video.Name
	e.colorSize = colors[0].Camera.VideoFrameSize()

	size := cfg.QueueSize
	if size <= 0 {
		size = defaultInputQueueSize
	}
	e.inputs[cfg.Name] = device.NewQueue(cfg.Name, size, cfg.Blocking)
	return nil
}

func (e *Emulator) Info() device.Info {
	return device.Info{ID: e.id.String(), Name: "emulated-stereo", Topology: e.topology.Name}
}

// OutputQueue opens a host queue. Repeated calls return the same queue.
func (e *Emulator) OutputQueue(name string, maxSize int, blocking bool) (*device.Queue, error) {
	node, err := e.topology.Stream(name)
	if err != nil {
		return nil, err
	}
	if node.Kind != device.KindXLinkOut {
		return nil, errors.Wrapf(device.ErrUnknownStream, "%q is not an output stream", name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if q, ok := e.outputs[name]; ok {
		return q, nil
	}
	q := device.NewQueue(name, maxSize, blocking)
	e.outputs[name] = q
	return q, nil
}

// InputQueue returns the queue feeding a device input stream
func (e *Emulator) InputQueue(name string) (*device.Queue, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	q, ok := e.inputs[name]
	if !ok {
		return nil, errors.Wrapf(device.ErrUnknownStream, "%q is not an input stream", name)
	}
	return q, nil
}

// Start launches the producer. Frames are produced every 1/FPS of the clock.
func (e *Emulator) Start(ctx context.Context) {
	e.mu.Lock()
	if e.done != nil || e.closed {
		e.mu.Unlock()
		return
	}
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	e.start = e.clock.Now()
	e.mu.Unlock()

	ticker := e.clock.Ticker(e.interval)
	go func() {
		defer close(e.done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if err := e.Step(ctx, now); err != nil {
					if ctx.Err() != nil {
						return
					}
					e.logger.WithError(err).Error("DEVICE: Frame production failed")
				}
			}
		}
	}()
}

// Step produces one frame set: it applies the newest pending configuration,
// renders depth and color, measures every ROI and publishes the results.
func (e *Emulator) Step(ctx context.Context, now time.Time) error {
	e.applyPendingConfig()

	e.mu.Lock()
	if e.start.IsZero() {
		e.start = now
	}
	elapsed := now.Sub(e.start)
	e.seq++
	seq := e.seq
	config := append([]device.SpatialConfigData(nil), e.config...)
	e.mu.Unlock()

	depth, err := e.scene.RenderDepth(e.depthSize, elapsed)
	if err != nil {
		return err
	}
	locations, err := e.calc.Calculate(depth, config)
	if err != nil {
		depth.Close()
		return errors.Wrap(err, "spatial calculator")
	}
	color, err := e.color.Frame(e.colorSize, elapsed)
	if err != nil {
		depth.Close()
		return errors.Wrap(err, "color camera")
	}

	return multierr.Combine(
		e.publish(ctx, e.depthStream, &device.ImgFrame{Sequence: seq, Timestamp: now, Mat: depth}),
		e.publish(ctx, e.spatialStream, &device.SpatialLocations{Sequence: seq, Timestamp: now, Locations: locations}),
		e.publish(ctx, e.videoStream, &device.ImgFrame{Sequence: seq, Timestamp: now, Mat: color}),
	)
}

// applyPendingConfig drains the config input, keeping the newest message
func (e *Emulator) applyPendingConfig() {
	e.mu.Lock()
	in := e.inputs[e.configStream]
	e.mu.Unlock()

	var latest *device.SpatialConfig
	for {
		msg, ok := in.TryGet()
		if !ok {
			break
		}
		if cfg, isCfg := msg.(*device.SpatialConfig); isCfg && len(cfg.ROIs) > 0 {
			latest = cfg
		}
	}
	if latest == nil {
		return
	}

	e.mu.Lock()
	e.config = append(e.config[:0], latest.ROIs...)
	e.mu.Unlock()
	e.logger.WithField("rois", len(latest.ROIs)).Debug("DEVICE: Spatial calculator reconfigured")
}

// publish hands msg to the host queue, or drops it if the host never opened one
func (e *Emulator) publish(ctx context.Context, stream string, msg device.Message) error {
	e.mu.Lock()
	q, ok := e.outputs[stream]
	e.mu.Unlock()
	if !ok {
		return msg.Close()
	}
	if err := q.Send(ctx, msg); err != nil {
		_ = msg.Close()
		return err
	}
	return nil
}

// Config returns the calculator configuration currently in effect
func (e *Emulator) Config() []device.SpatialConfigData {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]device.SpatialConfigData(nil), e.config...)
}

// Close stops the producer and releases queues and the color source
func (e *Emulator) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	var err error
	e.mu.Lock()
	for _, q := range e.outputs {
		err = multierr.Append(err, q.Close())
	}
	for _, q := range e.inputs {
		err = multierr.Append(err, q.Close())
	}
	e.mu.Unlock()
	err = multierr.Append(err, e.color.Close())

	e.logger.Info("DEVICE: Emulated depth camera closed")
	return err
}
