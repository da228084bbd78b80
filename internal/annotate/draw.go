package annotate

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

var (
	// LabelColor is used for the ROI outline and the coordinate text
	LabelColor = color.RGBA{R: 255, G: 255, B: 255, A: 0}

	labelFont = gocv.FontHersheyTriplex
)

const labelScale = 0.5

// DrawRectangle outlines r on frame with a 1 px line
func DrawRectangle(frame *gocv.Mat, r image.Rectangle, c color.RGBA) {
	gocv.Rectangle(frame, r, c, 1)
}

// DrawText writes a single line with its baseline origin at org
func DrawText(frame *gocv.Mat, text string, org image.Point, c color.RGBA) {
	gocv.PutText(frame, text, org, labelFont, labelScale, c, 1)
}
