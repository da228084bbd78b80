// Display surfaces for the three live views and the HSV controls
package display

import (
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Window names
const (
	WindowRGB    = "RGB"
	WindowDepth  = "Depth"
	WindowFilter = "Filter"
)

// Windows lists the views in display order
var Windows = []string{WindowRGB, WindowDepth, WindowFilter}

// NoKey is returned by WaitKey when no key was pressed
const NoKey = -1

// ErrUnknownWindow is returned when showing on a window that was never opened
var ErrUnknownWindow = errors.New("unknown window")

// Surface shows frames and reports key presses. Show must not retain mat
// after it returns.
type Surface interface {
	Show(name string, mat gocv.Mat) error
	// WaitKey waits up to ms milliseconds and returns the key code, or NoKey
	WaitKey(ms int) int
	Close() error
}

// Backend names accepted by the -display flag
const (
	BackendHighGUI  = "highgui"
	BackendFyne     = "fyne"
	BackendHeadless = "headless"
)

// IsQuit reports whether key is 'q', comparing the low byte only
func IsQuit(key int) bool {
	return key != NoKey && key&0xFF == 'q'
}
