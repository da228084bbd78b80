package display

import (
	"sync"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Headless discards frames. It counts what was shown so runs without a
// display can still be checked.
type Headless struct {
	mu     sync.Mutex
	shown  map[string]int
	closed bool
}

func NewHeadless() *Headless {
	return &Headless{shown: make(map[string]int, len(Windows))}
}

func (h *Headless) Show(name string, mat gocv.Mat) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return errors.New("surface closed")
	}
	if !knownWindow(name) {
		return errors.Wrap(ErrUnknownWindow, name)
	}
	h.shown[name]++
	return nil
}

func (h *Headless) WaitKey(int) int { return NoKey }

// Shown returns how many frames went to a window
func (h *Headless) Shown(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.shown[name]
}

func (h *Headless) Close() error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	return nil
}

func knownWindow(name string) bool {
	for _, w := range Windows {
		if w == name {
			return true
		}
	}
	return false
}
