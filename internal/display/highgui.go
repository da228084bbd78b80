package display

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gocv.io/x/gocv"

	"spatial-object-locator/internal/hsv"
)

// HighGUI shows frames in OpenCV windows and keeps the HSV range in six
// trackbars on the Filter window
type HighGUI struct {
	windows   map[string]*gocv.Window
	trackbars map[hsv.Channel]*gocv.Trackbar
}

// NewHighGUI opens the windows in Windows order and positions the trackbars
// at initial
func NewHighGUI(initial hsv.Range) *HighGUI {
	g := &HighGUI{
		windows:   make(map[string]*gocv.Window, len(Windows)),
		trackbars: make(map[hsv.Channel]*gocv.Trackbar, 6),
	}
	for _, name := range Windows {
		g.windows[name] = gocv.NewWindow(name)
	}

	filter := g.windows[WindowFilter]
	values := initial.Values()
	for _, ch := range hsv.Channels() {
		tb := filter.CreateTrackbar(ch.String(), ch.Max())
		tb.SetPos(values[ch])
		g.trackbars[ch] = tb
	}
	return g
}

// Range reads the six trackbar positions. Positions are not reordered, so a
// min above its max yields an empty mask.
func (g *HighGUI) Range() hsv.Range {
	return hsv.Range{
		HMin: g.trackbars[hsv.HMin].GetPos(),
		HMax: g.trackbars[hsv.HMax].GetPos(),
		SMin: g.trackbars[hsv.SMin].GetPos(),
		SMax: g.trackbars[hsv.SMax].GetPos(),
		VMin: g.trackbars[hsv.VMin].GetPos(),
		VMax: g.trackbars[hsv.VMax].GetPos(),
	}
}

func (g *HighGUI) Show(name string, mat gocv.Mat) error {
	w, ok := g.windows[name]
	if !ok {
		return errors.Wrap(ErrUnknownWindow, name)
	}
	w.IMShow(mat)
	return nil
}

func (g *HighGUI) WaitKey(ms int) int {
	return g.windows[WindowRGB].WaitKey(ms)
}

func (g *HighGUI) Close() error {
	var err error
	for _, name := range Windows {
		err = multierr.Append(err, g.windows[name].Close())
	}
	return err
}
