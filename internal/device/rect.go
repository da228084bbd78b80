package device

import (
	"image"
	"math"

	"github.com/golang/geo/r2"
)

// Rect is an axis-aligned region, either in pixels or normalized to [0,1]
// fractions of the frame it refers to.
type Rect struct {
	X, Y          float64
	Width, Height float64
	Normalized    bool
}

// NewRectFromPoints builds a rect from two corners
func NewRectFromPoints(topLeft, bottomRight r2.Point, normalized bool) Rect {
	return Rect{
		X:          topLeft.X,
		Y:          topLeft.Y,
		Width:      bottomRight.X - topLeft.X,
		Height:     bottomRight.Y - topLeft.Y,
		Normalized: normalized,
	}
}

// PixelRect converts an image.Rectangle to an unnormalized Rect
func PixelRect(r image.Rectangle) Rect {
	return Rect{
		X:      float64(r.Min.X),
		Y:      float64(r.Min.Y),
		Width:  float64(r.Dx()),
		Height: float64(r.Dy()),
	}
}

func (r Rect) TopLeft() r2.Point {
	return r2.Point{X: r.X, Y: r.Y}
}

func (r Rect) BottomRight() r2.Point {
	return r2.Point{X: r.X + r.Width, Y: r.Y + r.Height}
}

// Center returns the midpoint of the rect
func (r Rect) Center() r2.Point {
	return r2.Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// Normalize maps a pixel rect onto [0,1] fractions of width x height.
// A rect that is already normalized is returned unchanged.
func (r Rect) Normalize(width, height int) Rect {
	if r.Normalized || width <= 0 || height <= 0 {
		return r
	}
	w, h := float64(width), float64(height)
	return Rect{
		X:          r.X / w,
		Y:          r.Y / h,
		Width:      r.Width / w,
		Height:     r.Height / h,
		Normalized: true,
	}
}

// Denormalize maps a normalized rect back to pixels of width x height.
// A pixel rect is returned unchanged.
func (r Rect) Denormalize(width, height int) Rect {
	if !r.Normalized {
		return r
	}
	w, h := float64(width), float64(height)
	return Rect{
		X:      r.X * w,
		Y:      r.Y * h,
		Width:  r.Width * w,
		Height: r.Height * h,
	}
}

// Clamp restricts a normalized rect to the unit square
func (r Rect) Clamp() Rect {
	if !r.Normalized {
		return r
	}
	tl := r.TopLeft()
	br := r.BottomRight()
	tl.X, tl.Y = clamp01(tl.X), clamp01(tl.Y)
	br.X, br.Y = clamp01(br.X), clamp01(br.Y)
	return NewRectFromPoints(tl, br, true)
}

// Image returns the pixel rect as an image.Rectangle rounded to whole pixels
func (r Rect) Image() image.Rectangle {
	tl := r.TopLeft()
	br := r.BottomRight()
	return image.Rect(
		int(math.Round(tl.X)), int(math.Round(tl.Y)),
		int(math.Round(br.X)), int(math.Round(br.Y)),
	)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
