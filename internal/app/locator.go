// The acquisition loop: source, segmentation, annotation and display, once
// per frame on a single goroutine
package app

import (
	"context"
	"image"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"spatial-object-locator/internal/annotate"
	"spatial-object-locator/internal/display"
	"spatial-object-locator/internal/segment"
	"spatial-object-locator/internal/stream"
)

// keyWaitMs is the per-frame key poll
const keyWaitMs = 1

// PacketSource yields frame packets; a nil packet with a nil error means the
// frame had no usable depth
type PacketSource interface {
	Next(ctx context.Context) (*stream.Packet, error)
}

// FrameResult summarizes one processed packet
type FrameResult struct {
	Sequence    int64
	Objects     []image.Rectangle
	Detection   *segment.Detection
	Measurement *annotate.Measurement
}

// Locator wires the stages together
type Locator struct {
	source    PacketSource
	segmenter *segment.Segmenter
	annotator *annotate.Annotator
	surface   display.Surface

	stats      *Stats
	clock      clock.Clock
	logger     logrus.FieldLogger
	maxFrames  int
	statsEvery int
}

type Option func(*Locator)

func WithLogger(l logrus.FieldLogger) Option {
	return func(loc *Locator) { loc.logger = l }
}

func WithClock(c clock.Clock) Option {
	return func(loc *Locator) { loc.clock = c }
}

// WithMaxFrames stops Run after n processed frames; 0 means no limit
func WithMaxFrames(n int) Option {
	return func(loc *Locator) { loc.maxFrames = n }
}

// WithStatsEvery logs statistics every n processed frames; 0 logs only at exit
func WithStatsEvery(n int) Option {
	return func(loc *Locator) { loc.statsEvery = n }
}

func New(source PacketSource, seg *segment.Segmenter, ann *annotate.Annotator, surface display.Surface, opts ...Option) *Locator {
	l := &Locator{
		source:    source,
		segmenter: seg,
		annotator: ann,
		surface:   surface,
		stats:     NewStats(),
		clock:     clock.New(),
		logger:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Stats returns the running loop statistics
func (l *Locator) Stats() *Stats {
	return l.stats
}

// Run pulls packets until 'q' is pressed, the frame limit is reached or ctx
// ends. Cancellation is a clean exit; any other error is returned.
func (l *Locator) Run(ctx context.Context) error {
	defer l.stats.Log(l.logger)

	for {
		if ctx.Err() != nil {
			l.logger.Info("LOCATOR: Context done, stopping")
			return nil
		}

		start := l.clock.Now()
		pkt, err := l.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.logger.Info("LOCATOR: Context done, stopping")
				return nil
			}
			return errors.Wrap(err, "next packet")
		}
		l.stats.Observe(StageSource, l.clock.Since(start))
		if pkt == nil {
			l.stats.Skipped++
			continue
		}

		res, err := l.ProcessPacket(ctx, pkt)
		err = multierr.Append(err, pkt.Close())
		if err != nil {
			return errors.Wrapf(err, "process frame %d", pkt.Sequence)
		}

		if res.Detection != nil {
			l.logger.WithFields(logrus.Fields{
				"sequence": res.Sequence,
				"center_x": res.Detection.Center.X,
				"center_y": res.Detection.Center.Y,
				"objects":  len(res.Objects),
			}).Debug("LOCATOR: Object detected")
		}

		if display.IsQuit(l.surface.WaitKey(keyWaitMs)) {
			l.logger.Info("LOCATOR: Quit key pressed")
			return nil
		}
		if l.statsEvery > 0 && l.stats.Frames%l.statsEvery == 0 {
			l.stats.Log(l.logger)
		}
		if l.maxFrames > 0 && l.stats.Frames >= l.maxFrames {
			l.logger.WithField("frames", l.stats.Frames).Info("LOCATOR: Frame limit reached")
			return nil
		}
	}
}

// ProcessPacket runs segmentation, annotation and display on one packet. The
// packet stays owned by the caller.
func (l *Locator) ProcessPacket(ctx context.Context, pkt *stream.Packet) (*FrameResult, error) {
	start := l.clock.Now()
	seg, err := l.segmenter.Process(&pkt.Color, &pkt.DepthColor)
	if err != nil {
		return nil, err
	}
	defer seg.Close()
	l.stats.Observe(StageSegment, l.clock.Since(start))

	start = l.clock.Now()
	m, err := l.annotator.DepthOfObject(ctx, &pkt.DepthColor, pkt.Spatial, seg.Detection, pkt.ConfigIn, pkt.ROI)
	if err != nil {
		return nil, err
	}
	l.stats.Observe(StageAnnotate, l.clock.Since(start))

	start = l.clock.Now()
	if err := multierr.Combine(
		l.surface.Show(display.WindowRGB, pkt.Color),
		l.surface.Show(display.WindowDepth, pkt.DepthColor),
		l.surface.Show(display.WindowFilter, seg.Filtered.Result),
	); err != nil {
		return nil, errors.Wrap(err, "show frames")
	}
	l.stats.Observe(StageDisplay, l.clock.Since(start))

	l.stats.Frames++
	if seg.Detection != nil {
		l.stats.Detections++
		l.stats.ROIPushes++
	}
	if m != nil {
		l.stats.Measurements++
	}
	return &FrameResult{
		Sequence:    pkt.Sequence,
		Objects:     seg.Objects,
		Detection:   seg.Detection,
		Measurement: m,
	}, nil
}
