package display

import (
	"io"
	"testing"

	"fyne.io/fyne/v2/test"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"spatial-object-locator/internal/hsv"
)

func TestIsQuit(t *testing.T) {
	assert.True(t, IsQuit('q'))
	assert.True(t, IsQuit(0x100|'q'))
	assert.False(t, IsQuit('Q'))
	assert.False(t, IsQuit(NoKey))
}

func TestHeadlessCountsFrames(t *testing.T) {
	h := NewHeadless()
	frame := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3)
	defer frame.Close()

	for _, name := range Windows {
		require.NoError(t, h.Show(name, frame))
	}
	require.NoError(t, h.Show(WindowRGB, frame))

	assert.Equal(t, 2, h.Shown(WindowRGB))
	assert.Equal(t, 1, h.Shown(WindowFilter))
	assert.Equal(t, NoKey, h.WaitKey(1))

	err := h.Show("Preview", frame)
	assert.True(t, errors.Is(err, ErrUnknownWindow))

	require.NoError(t, h.Close())
	assert.Error(t, h.Show(WindowRGB, frame))
}

func newTestFyne(t *testing.T) *Fyne {
	t.Helper()
	l := logrus.New()
	l.SetOutput(io.Discard)
	return NewFyne(test.NewApp(), hsv.Full(), l)
}

func TestFyneSlidersDriveRange(t *testing.T) {
	f := newTestFyne(t)
	assert.Equal(t, hsv.Full(), f.Range())
	require.Len(t, f.sliders, 6)

	f.onSlider(hsv.VMin, nil)(42)
	f.onSlider(hsv.HMax, nil)(300)

	r := f.Range()
	assert.Equal(t, 42, r.VMin)
	assert.Equal(t, hsv.MaxHue, r.HMax)
	assert.Equal(t, 255, r.SMax)
}

func TestFyneKeys(t *testing.T) {
	f := newTestFyne(t)
	assert.Equal(t, NoKey, f.WaitKey(1))

	f.onRune('q')
	assert.True(t, IsQuit(f.WaitKey(10)))
}

func TestFyneShowUnknownWindow(t *testing.T) {
	f := newTestFyne(t)
	err := f.Show("Preview", gocv.NewMat())
	assert.True(t, errors.Is(err, ErrUnknownWindow))
}
