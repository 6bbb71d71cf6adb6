// Package pitch implements fundamental-frequency estimation with the YIN
// algorithm: difference function, cumulative-mean normalization, an
// absolute threshold with the first-dip rule, and parabolic interpolation
// for sub-sample period resolution. A short rolling median over recent
// estimates suppresses single-frame octave errors.
package pitch

import (
	"fmt"
	"sort"
)

// Config holds the detector parameters.
type Config struct {
	// SampleRate of the input audio in Hz.
	SampleRate int
	// Threshold on the normalized difference below which a dip is accepted.
	Threshold float64
	// MinFrequency and MaxFrequency bound the search range in Hz.
	MinFrequency float64
	MaxFrequency float64
	// WindowSize is the number of samples analyzed. Longer input is reduced
	// to its centered WindowSize slice.
	WindowSize int
	// HistorySize is the length of the median smoothing window.
	HistorySize int
}

// DefaultConfig returns the standard detector parameters for 16 kHz speech.
func DefaultConfig() Config {
	return Config{
		SampleRate:   16000,
		Threshold:    0.15,
		MinFrequency: 70,
		MaxFrequency: 400,
		WindowSize:   2048,
		HistorySize:  5,
	}
}

// IsValid validates the configuration.
func (c Config) IsValid() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("invalid SampleRate: %d", c.SampleRate)
	}
	if c.Threshold <= 0 || c.Threshold >= 1 {
		return fmt.Errorf("invalid Threshold: %v, must be in (0, 1)", c.Threshold)
	}
	if c.MinFrequency <= 0 || c.MaxFrequency <= c.MinFrequency {
		return fmt.Errorf("invalid frequency range [%v, %v]", c.MinFrequency, c.MaxFrequency)
	}
	if c.WindowSize < 4 {
		return fmt.Errorf("invalid WindowSize: %d", c.WindowSize)
	}
	if c.HistorySize <= 0 {
		return fmt.Errorf("invalid HistorySize: %d", c.HistorySize)
	}
	return nil
}

// relaxedThreshold is the looser confidence gate applied to the global
// minimum when no dip crosses the primary threshold.
const relaxedThreshold = 0.3

// Detect estimates the fundamental frequency of the window in Hz.
// It returns 0 when no pitch is detected (unvoiced or silent input).
// The call is pure: no state is carried between invocations.
func Detect(window []float32, cfg Config) float64 {
	// Use the centered WindowSize slice of longer input.
	if len(window) > cfg.WindowSize {
		start := (len(window) - cfg.WindowSize) / 2
		window = window[start : start+cfg.WindowSize]
	}

	n := len(window)
	half := n / 2
	if half < 2 {
		return 0
	}

	minPeriod := int(float64(cfg.SampleRate) / cfg.MaxFrequency)
	maxPeriod := int(float64(cfg.SampleRate) / cfg.MinFrequency)
	if maxPeriod > half-1 {
		maxPeriod = half - 1
	}
	if minPeriod < 1 {
		minPeriod = 1
	}
	if minPeriod > maxPeriod {
		return 0
	}

	// Difference function d(tau).
	d := make([]float64, half)
	for tau := 1; tau < half; tau++ {
		var sum float64
		for j := 0; j+tau < n && j < half; j++ {
			delta := float64(window[j]) - float64(window[j+tau])
			sum += delta * delta
		}
		d[tau] = sum
	}

	// Cumulative-mean-normalized difference d'(tau).
	nd := make([]float64, half)
	nd[0] = 1
	var runningSum float64
	for tau := 1; tau < half; tau++ {
		runningSum += d[tau]
		if runningSum == 0 {
			nd[tau] = 1
		} else {
			nd[tau] = d[tau] * float64(tau) / runningSum
		}
	}

	// First dip below the threshold wins: once the scan crosses the
	// threshold it walks down to that dip's local minimum and returns,
	// never continuing to later (possibly deeper) dips. The in-range
	// global minimum is tracked as a fallback candidate.
	bestTau := -1
	bestVal := 2.0
	chosen := -1
	for tau := minPeriod; tau <= maxPeriod; tau++ {
		if nd[tau] < bestVal {
			bestVal = nd[tau]
			bestTau = tau
		}
		if nd[tau] < cfg.Threshold {
			for tau+1 <= maxPeriod && nd[tau+1] < nd[tau] {
				tau++
			}
			chosen = tau
			break
		}
	}

	if chosen < 0 {
		// No dip crossed the threshold; accept the global minimum only
		// under the relaxed confidence gate.
		if bestTau < 0 || bestVal >= relaxedThreshold {
			return 0
		}
		chosen = bestTau
	}

	return float64(cfg.SampleRate) / interpolatePeriod(nd, chosen, minPeriod, maxPeriod)
}

// interpolatePeriod refines the period estimate with a parabola through
// the normalized difference at tau-1, tau, tau+1. At either end of the
// scanned range interpolation is skipped.
func interpolatePeriod(nd []float64, tau, minPeriod, maxPeriod int) float64 {
	if tau <= minPeriod || tau >= maxPeriod || tau+1 >= len(nd) {
		return float64(tau)
	}

	y0 := nd[tau-1]
	y1 := nd[tau]
	y2 := nd[tau+1]

	denom := 2 * (2*y1 - y0 - y2)
	if denom == 0 {
		return float64(tau)
	}

	shift := (y2 - y0) / denom
	return float64(tau) - shift
}

// Tracker combines the pure detector with a rolling median smoother.
type Tracker struct {
	cfg     Config
	history []float64
}

// NewTracker creates a tracker with the given configuration.
func NewTracker(cfg Config) (*Tracker, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Tracker{
		cfg:     cfg,
		history: make([]float64, 0, cfg.HistorySize),
	}, nil
}

// Detect runs the raw detector with the tracker's configuration.
func (t *Tracker) Detect(window []float32) float64 {
	return Detect(window, t.cfg)
}

// DetectSmoothed runs the detector, pushes the raw estimate into the
// history, and returns the median of the nonzero entries. Zero entries are
// excluded so brief unvoiced frames do not drag a voiced stretch down; if
// every entry is zero the result is 0.
func (t *Tracker) DetectSmoothed(window []float32) float64 {
	raw := Detect(window, t.cfg)
	t.push(raw)
	return t.Smoothed()
}

// Push adds a raw pitch estimate to the history without running detection.
func (t *Tracker) Push(raw float64) {
	t.push(raw)
}

// Smoothed returns the median of the nonzero history entries, or 0 if none.
func (t *Tracker) Smoothed() float64 {
	voiced := make([]float64, 0, len(t.history))
	for _, v := range t.history {
		if v > 0 {
			voiced = append(voiced, v)
		}
	}
	if len(voiced) == 0 {
		return 0
	}

	sort.Float64s(voiced)
	mid := len(voiced) / 2
	if len(voiced)%2 == 1 {
		return voiced[mid]
	}
	return (voiced[mid-1] + voiced[mid]) / 2
}

// Reset clears the smoothing history.
func (t *Tracker) Reset() {
	t.history = t.history[:0]
}

func (t *Tracker) push(raw float64) {
	if raw < 0 {
		raw = 0
	}
	if len(t.history) == t.cfg.HistorySize {
		copy(t.history, t.history[1:])
		t.history = t.history[:len(t.history)-1]
	}
	t.history = append(t.history, raw)
}
