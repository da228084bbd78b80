package display

import (
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"spatial-object-locator/internal/hsv"
)

const keyBuffer = 8

// Fyne shows each view in its own fyne window. The Filter window carries six
// sliders backed by hsv.Controls, so Range is safe to call from the
// processing goroutine while the UI thread moves the sliders.
type Fyne struct {
	app      fyne.App
	logger   logrus.FieldLogger
	controls *hsv.Controls

	windows map[string]fyne.Window
	images  map[string]*canvas.Image
	sliders map[hsv.Channel]*widget.Slider
	keys    chan int

	closeOnce sync.Once
}

// NewFyne builds the windows on a and positions the sliders at initial. The
// caller runs a.Run on the main goroutine.
func NewFyne(a fyne.App, initial hsv.Range, logger logrus.FieldLogger) *Fyne {
	f := &Fyne{
		app:      a,
		logger:   logger,
		controls: hsv.NewControls(initial),
		windows:  make(map[string]fyne.Window, len(Windows)),
		images:   make(map[string]*canvas.Image, len(Windows)),
		sliders:  make(map[hsv.Channel]*widget.Slider, 6),
		keys:     make(chan int, keyBuffer),
	}

	for _, name := range Windows {
		img := canvas.NewImageFromImage(placeholder())
		img.FillMode = canvas.ImageFillContain
		img.ScaleMode = canvas.ImageScalePixels
		img.SetMinSize(fyne.NewSize(640, 400))
		f.images[name] = img

		w := a.NewWindow(name)
		w.Canvas().SetOnTypedRune(f.onRune)
		f.windows[name] = w
	}

	for name, w := range f.windows {
		content := fyne.CanvasObject(f.images[name])
		if name == WindowFilter {
			content = container.NewBorder(nil, f.sliderPanel(initial), nil, nil, f.images[name])
		}
		w.SetContent(content)
		w.Show()
	}
	return f
}

func (f *Fyne) sliderPanel(initial hsv.Range) fyne.CanvasObject {
	values := initial.Values()
	form := container.NewGridWithColumns(3)
	for _, ch := range hsv.Channels() {
		slider := widget.NewSlider(0, float64(ch.Max()))
		slider.Step = 1
		slider.SetValue(float64(values[ch]))

		valueLabel := widget.NewLabel(fmt.Sprintf("%d", values[ch]))
		slider.OnChanged = f.onSlider(ch, valueLabel)
		f.sliders[ch] = slider

		form.Add(widget.NewLabel(ch.String()))
		form.Add(slider)
		form.Add(valueLabel)
	}
	return form
}

func (f *Fyne) onSlider(ch hsv.Channel, label *widget.Label) func(float64) {
	return func(value float64) {
		f.controls.Set(ch, int(value))
		if label != nil {
			label.SetText(fmt.Sprintf("%d", f.controls.Get(ch)))
		}
	}
}

func (f *Fyne) onRune(r rune) {
	select {
	case f.keys <- int(r):
	default:
		f.logger.WithField("key", string(r)).Debug("DISPLAY: Key buffer full, dropping key")
	}
}

// Range returns a snapshot of the slider positions
func (f *Fyne) Range() hsv.Range {
	return f.controls.Range()
}

// Show converts mat to an image.Image before handing it to the UI thread,
// so the caller may close mat as soon as Show returns
func (f *Fyne) Show(name string, mat gocv.Mat) error {
	img, ok := f.images[name]
	if !ok {
		return errors.Wrap(ErrUnknownWindow, name)
	}
	if mat.Empty() {
		return nil
	}
	frame, err := mat.ToImage()
	if err != nil {
		return errors.Wrapf(err, "convert frame for %s", name)
	}
	fyne.Do(func() {
		img.Image = frame
		img.Refresh()
	})
	return nil
}

func (f *Fyne) WaitKey(ms int) int {
	if ms <= 0 {
		return <-f.keys
	}
	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()
	select {
	case k := <-f.keys:
		return k
	case <-timer.C:
		return NoKey
	}
}

// Close quits the fyne app, which returns a.Run on the main goroutine
func (f *Fyne) Close() error {
	f.closeOnce.Do(func() {
		fyne.Do(f.app.Quit)
	})
	return nil
}

func placeholder() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 64, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{240, 240, 240, 255})
		}
	}
	return img
}
