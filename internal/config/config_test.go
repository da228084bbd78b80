package config

import (
	"flag"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"spatial-object-locator/internal/hsv"
	"spatial-object-locator/internal/segment"
)

func parse(t *testing.T, args ...string) (Config, error) {
	t.Helper()
	c := Default()
	fs := flag.NewFlagSet("locator", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	c.Bind(fs)
	if err := fs.Parse(args); err != nil {
		return c, err
	}
	return c, c.Validate()
}

func TestDefaultIsValid(t *testing.T) {
	c, err := parse(t)
	require.NoError(t, err)

	p, err := c.Parse()
	require.NoError(t, err)
	assert.Equal(t, hsv.Full(), p.Range)
	assert.Equal(t, segment.SelectLast, p.Selection)
	assert.Equal(t, "highgui", c.Display)
}

func TestFlagsOverrideDefaults(t *testing.T) {
	c, err := parse(t,
		"-debug", "-display", "headless", "-max-frames", "50",
		"-selection", "largest", "-erode", "2", "-hsv", "0,10,100,255,100,255",
	)
	require.NoError(t, err)

	assert.True(t, c.Debug)
	assert.Equal(t, 50, c.MaxFrames)
	assert.Equal(t, 2, c.Erode)
	assert.Equal(t, 1, c.Dilate)
	p, err := c.Parse()
	require.NoError(t, err)
	assert.Equal(t, hsv.Range{HMin: 0, HMax: 10, SMin: 100, SMax: 255, VMin: 100, VMax: 255}, p.Range)
	assert.Equal(t, segment.SelectLargest, p.Selection)
}

func TestValidateReportsEveryProblem(t *testing.T) {
	_, err := parse(t,
		"-display", "x11", "-fps", "0", "-selection", "first", "-dilate", "0", "-hsv", "0,200,0,255,0,255",
	)
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 5)
}

func TestCaptureSourceNeedsCapture(t *testing.T) {
	_, err := parse(t, "-source", "capture", "-capture", "")
	assert.Error(t, err)

	_, err = parse(t, "-source", "capture", "-capture", "clip.mp4")
	assert.NoError(t, err)
}

func TestImageSource(t *testing.T) {
	c, err := parse(t, "-source", "image", "-capture", "object.png")
	require.NoError(t, err)
	assert.Equal(t, SourceImage, c.Source)
}

func TestParseRejectsInvalidConfig(t *testing.T) {
	for _, c := range []Config{
		func() Config { c := Default(); c.HSV = "0,179,0,255"; return c }(),
		func() Config { c := Default(); c.Selection = "first"; return c }(),
		func() Config { c := Default(); c.HSV = "10,5,0,255,0,255"; return c }(),
	} {
		p, err := c.Parse()
		assert.Error(t, err)
		assert.Equal(t, Parsed{}, p)
	}
}
