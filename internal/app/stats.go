package app

import (
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stage names used as duration keys
const (
	StageSource   = "source"
	StageSegment  = "segment"
	StageAnnotate = "annotate"
	StageDisplay  = "display"
)

var stages = []string{StageSource, StageSegment, StageAnnotate, StageDisplay}

// Stats tracks loop counters and per-stage timings. Timings are reset after
// every summary; counters run for the whole session.
type Stats struct {
	Frames       int
	Skipped      int
	Detections   int
	ROIPushes    int
	Measurements int

	timings map[string][]float64
}

func NewStats() *Stats {
	s := &Stats{timings: make(map[string][]float64, len(stages))}
	for _, name := range stages {
		s.timings[name] = make([]float64, 0, 64)
	}
	return s
}

// Observe records one stage duration
func (s *Stats) Observe(stage string, d time.Duration) {
	s.timings[stage] = append(s.timings[stage], float64(d.Microseconds())/1000)
}

// StageSummary is the timing of one stage since the last summary, in ms
type StageSummary struct {
	Count int
	Mean  float64
	Max   float64
}

// Summary returns the timing summary per stage; stages without samples are
// left out
func (s *Stats) Summary() map[string]StageSummary {
	out := make(map[string]StageSummary, len(stages))
	for _, name := range stages {
		samples := s.timings[name]
		if len(samples) == 0 {
			continue
		}
		out[name] = StageSummary{
			Count: len(samples),
			Mean:  stat.Mean(samples, nil),
			Max:   floats.Max(samples),
		}
	}
	return out
}

// Log writes the counters and the stage summary, then resets the timings
func (s *Stats) Log(logger logrus.FieldLogger) {
	fields := logrus.Fields{
		"frames":       s.Frames,
		"skipped":      s.Skipped,
		"detections":   s.Detections,
		"roi_pushes":   s.ROIPushes,
		"measurements": s.Measurements,
	}
	for name, sum := range s.Summary() {
		fields[name+"_mean_ms"] = sum.Mean
		fields[name+"_max_ms"] = sum.Max
	}
	logger.WithFields(fields).Info("LOCATOR: Loop statistics")

	for _, name := range stages {
		s.timings[name] = s.timings[name][:0]
	}
}
