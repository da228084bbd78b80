// HSV threshold range and the providers that supply it to the segmentation stage
package hsv

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// OpenCV stores 8-bit hue as degrees/2.
const (
	MaxHue        = 179
	MaxSaturation = 255
	MaxValue      = 255
)

// ErrInvalidRange is returned when a range falls outside the OpenCV HSV bounds
var ErrInvalidRange = errors.New("invalid hsv range")

// Range is a closed HSV interval used for color thresholding
type Range struct {
	HMin, HMax int
	SMin, SMax int
	VMin, VMax int
}

// Full selects every pixel. These are the slider defaults.
func Full() Range {
	return Range{HMin: 0, HMax: MaxHue, SMin: 0, SMax: MaxSaturation, VMin: 0, VMax: MaxValue}
}

// Validate checks bounds and ordering of all six values
func (r Range) Validate() error {
	checks := []struct {
		name     string
		lo, hi   int
		maxBound int
	}{
		{"hue", r.HMin, r.HMax, MaxHue},
		{"saturation", r.SMin, r.SMax, MaxSaturation},
		{"value", r.VMin, r.VMax, MaxValue},
	}
	for _, c := range checks {
		if c.lo < 0 || c.hi > c.maxBound {
			return errors.Wrapf(ErrInvalidRange, "%s bounds %d..%d outside 0..%d", c.name, c.lo, c.hi, c.maxBound)
		}
		if c.lo > c.hi {
			return errors.Wrapf(ErrInvalidRange, "%s min %d greater than max %d", c.name, c.lo, c.hi)
		}
	}
	return nil
}

// Contains reports whether an HSV triple lies inside the closed range
func (r Range) Contains(h, s, v int) bool {
	return h >= r.HMin && h <= r.HMax &&
		s >= r.SMin && s <= r.SMax &&
		v >= r.VMin && v <= r.VMax
}

// Lower returns the lower bound as a scalar for gocv.InRangeWithScalar
func (r Range) Lower() gocv.Scalar {
	return gocv.NewScalar(float64(r.HMin), float64(r.SMin), float64(r.VMin), 0)
}

// Upper returns the upper bound as a scalar for gocv.InRangeWithScalar
func (r Range) Upper() gocv.Scalar {
	return gocv.NewScalar(float64(r.HMax), float64(r.SMax), float64(r.VMax), 0)
}

// Values returns the range in slider order: h_min, h_max, s_min, s_max, v_min, v_max
func (r Range) Values() [6]int {
	return [6]int{r.HMin, r.HMax, r.SMin, r.SMax, r.VMin, r.VMax}
}

func (r Range) String() string {
	v := r.Values()
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}

// Parse reads "h_min,h_max,s_min,s_max,v_min,v_max"
func Parse(s string) (Range, error) {
	fields := strings.Split(s, ",")
	if len(fields) != 6 {
		return Range{}, errors.Wrapf(ErrInvalidRange, "expected 6 comma separated values, got %d", len(fields))
	}
	var v [6]int
	for i, f := range fields {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return Range{}, errors.Wrapf(ErrInvalidRange, "value %d: %v", i, err)
		}
		v[i] = n
	}
	r := Range{HMin: v[0], HMax: v[1], SMin: v[2], SMax: v[3], VMin: v[4], VMax: v[5]}
	if err := r.Validate(); err != nil {
		return Range{}, err
	}
	return r, nil
}

// Provider supplies the current filter range. It is read once per frame.
type Provider interface {
	Range() Range
}

// Static is a Provider with a fixed range
type Static Range

func (s Static) Range() Range { return Range(s) }

// Channel identifies one of the six slider values
type Channel int

const (
	HMin Channel = iota
	HMax
	SMin
	SMax
	VMin
	VMax
)

var channelNames = [...]string{"H_min", "H_max", "S_min", "S_max", "V_min", "V_max"}

// Channels lists the six controls in slider order
func Channels() []Channel {
	return []Channel{HMin, HMax, SMin, SMax, VMin, VMax}
}

func (c Channel) String() string {
	if c < 0 || int(c) >= len(channelNames) {
		return fmt.Sprintf("Channel(%d)", int(c))
	}
	return channelNames[c]
}

// Max is the upper bound of the control
func (c Channel) Max() int {
	if c == HMin || c == HMax {
		return MaxHue
	}
	return MaxSaturation
}

// Default is the initial slider position for the full range
func (c Channel) Default() int {
	return Full().Values()[c]
}

// Controls holds a live, externally mutated range. A UI event source writes
// single channels while the processing loop reads whole snapshots.
type Controls struct {
	values [6]atomic.Int32
}

// NewControls creates controls positioned at the given range
func NewControls(initial Range) *Controls {
	c := &Controls{}
	for i, v := range initial.Values() {
		c.values[i].Store(int32(v))
	}
	return c
}

// Set stores one channel, clamped to the channel bounds
func (c *Controls) Set(ch Channel, value int) {
	if value < 0 {
		value = 0
	}
	if value > ch.Max() {
		value = ch.Max()
	}
	c.values[ch].Store(int32(value))
}

// Get returns one channel
func (c *Controls) Get(ch Channel) int {
	return int(c.values[ch].Load())
}

// Range returns a snapshot of all six channels
func (c *Controls) Range() Range {
	return Range{
		HMin: c.Get(HMin), HMax: c.Get(HMax),
		SMin: c.Get(SMin), SMax: c.Get(SMax),
		VMin: c.Get(VMin), VMax: c.Get(VMax),
	}
}
