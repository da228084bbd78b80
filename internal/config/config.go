// Runtime options, bound to command-line flags
package config

import (
	"flag"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"spatial-object-locator/internal/display"
	"spatial-object-locator/internal/hsv"
	"spatial-object-locator/internal/segment"
)

// Color sources for the emulated device
const (
	SourceScene   = "scene"
	SourceCapture = "capture"
	SourceImage   = "image"
)

// Config holds every runtime option. The zero value is not usable; start
// from Default.
type Config struct {
	Debug         bool
	Display       string
	Source        string
	Capture       string
	FPS           float64
	MaxFrames     int
	Selection     string
	Erode         int
	Dilate        int
	HSV           string
	StatsEvery    int
	PrintTopology bool
}

func Default() Config {
	return Config{
		Display:    display.BackendHighGUI,
		Source:     SourceScene,
		Capture:    "0",
		FPS:        30,
		Selection:  segment.SelectLast.String(),
		Erode:      1,
		Dilate:     1,
		HSV:        hsv.Full().String(),
		StatsEvery: 300,
	}
}

// Bind registers the flags on fs with c's current values as defaults
func (c *Config) Bind(fs *flag.FlagSet) {
	fs.BoolVar(&c.Debug, "debug", c.Debug, "Enable debug mode with verbose logging")
	fs.StringVar(&c.Display, "display", c.Display, "Display backend: highgui, fyne or headless")
	fs.StringVar(&c.Source, "source", c.Source, "Color source of the emulated camera: scene, capture or image")
	fs.StringVar(&c.Capture, "capture", c.Capture, "Device index or video file for -source capture, image file for -source image")
	fs.Float64Var(&c.FPS, "fps", c.FPS, "Emulated camera frame rate")
	fs.IntVar(&c.MaxFrames, "max-frames", c.MaxFrames, "Stop after this many processed frames, 0 runs until 'q'")
	fs.StringVar(&c.Selection, "selection", c.Selection, "Reported object when several match: last or largest")
	fs.IntVar(&c.Erode, "erode", c.Erode, "Erosion iterations")
	fs.IntVar(&c.Dilate, "dilate", c.Dilate, "Dilation iterations")
	fs.StringVar(&c.HSV, "hsv", c.HSV, "Initial filter as h_min,h_max,s_min,s_max,v_min,v_max")
	fs.IntVar(&c.StatsEvery, "stats-every", c.StatsEvery, "Log loop statistics every N frames, 0 logs only at exit")
	fs.BoolVar(&c.PrintTopology, "print-topology", c.PrintTopology, "Print the pipeline topology and exit")
}

// Validate checks every option and reports all problems at once
func (c Config) Validate() error {
	var err error
	switch c.Display {
	case display.BackendHighGUI, display.BackendFyne, display.BackendHeadless:
	default:
		err = multierr.Append(err, errors.Errorf("unknown display backend %q", c.Display))
	}
	switch c.Source {
	case SourceScene:
	case SourceCapture, SourceImage:
		if c.Capture == "" {
			err = multierr.Append(err, errors.Errorf("%s source requires -capture", c.Source))
		}
	default:
		err = multierr.Append(err, errors.Errorf("unknown color source %q", c.Source))
	}
	if c.FPS <= 0 {
		err = multierr.Append(err, errors.Errorf("fps must be positive, got %v", c.FPS))
	}
	if c.MaxFrames < 0 {
		err = multierr.Append(err, errors.Errorf("max-frames must not be negative, got %d", c.MaxFrames))
	}
	if c.StatsEvery < 0 {
		err = multierr.Append(err, errors.Errorf("stats-every must not be negative, got %d", c.StatsEvery))
	}
	if _, e := segment.ParseSelection(c.Selection); e != nil {
		err = multierr.Append(err, e)
	}
	if c.Erode < 1 || c.Dilate < 1 {
		err = multierr.Append(err, errors.Errorf("erode and dilate need at least 1 iteration, got %d and %d", c.Erode, c.Dilate))
	}
	if _, e := hsv.Parse(c.HSV); e != nil {
		err = multierr.Append(err, errors.Wrap(e, "hsv"))
	}
	return err
}

// Parsed holds the options that are given as text on the command line
type Parsed struct {
	Range     hsv.Range
	Selection segment.Selection
}

// Parse validates c and returns its parsed values
func (c Config) Parse() (Parsed, error) {
	if err := c.Validate(); err != nil {
		return Parsed{}, err
	}
	r, err := hsv.Parse(c.HSV)
	if err != nil {
		return Parsed{}, errors.Wrap(err, "hsv")
	}
	sel, err := segment.ParseSelection(c.Selection)
	if err != nil {
		return Parsed{}, err
	}
	return Parsed{Range: r, Selection: sel}, nil
}
