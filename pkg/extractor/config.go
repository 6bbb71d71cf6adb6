package extractor

import (
	"fmt"
	"time"

	"github.com/tractstream/tractstream/pkg/pitch"
)

// Config holds the coordinator parameters.
type Config struct {
	// TickInterval is the fixed extraction cadence. A new tick is always
	// armed regardless of whether the previous cycle finished.
	TickInterval time.Duration

	// MaxInFlight caps concurrent embedding requests. Ticks arriving at
	// the cap publish fallback frames instead of queuing work.
	MaxInFlight int

	// InferenceTimeout bounds one embedding request. On expiry the request
	// is treated as failed; a late result is discarded.
	InferenceTimeout time.Duration

	// SmoothingAlpha is the exponential smoothing coefficient for
	// articulator coordinates while running live.
	SmoothingAlpha float64

	// DemoAlpha is the smoothing coefficient for the demo source (slower,
	// more watchable motion).
	DemoAlpha float64

	// WindowSize is the audio window length in samples handed to the
	// embedding model.
	WindowSize int

	// SampleRate of the captured audio in Hz.
	SampleRate int

	// BufferCapacity is the ring buffer size in samples.
	BufferCapacity int

	// Pitch configures the YIN tracker.
	Pitch pitch.Config
}

// DefaultConfig returns the standard live-extraction parameters:
// 100 ms ticks over a 1 s window at 16 kHz, one request in flight.
func DefaultConfig() Config {
	return Config{
		TickInterval:     100 * time.Millisecond,
		MaxInFlight:      1,
		InferenceTimeout: 1500 * time.Millisecond,
		SmoothingAlpha:   0.35,
		DemoAlpha:        0.15,
		WindowSize:       16000,
		SampleRate:       16000,
		BufferCapacity:   32000,
		Pitch:            pitch.DefaultConfig(),
	}
}

// IsValid validates the configuration.
func (c Config) IsValid() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("invalid TickInterval: %v", c.TickInterval)
	}
	if c.MaxInFlight < 1 {
		return fmt.Errorf("invalid MaxInFlight: %d, must be at least 1", c.MaxInFlight)
	}
	if c.InferenceTimeout <= 0 {
		return fmt.Errorf("invalid InferenceTimeout: %v", c.InferenceTimeout)
	}
	if c.SmoothingAlpha <= 0 || c.SmoothingAlpha > 1 {
		return fmt.Errorf("invalid SmoothingAlpha: %v, must be in (0, 1]", c.SmoothingAlpha)
	}
	if c.DemoAlpha <= 0 || c.DemoAlpha > 1 {
		return fmt.Errorf("invalid DemoAlpha: %v, must be in (0, 1]", c.DemoAlpha)
	}
	if c.WindowSize <= 0 {
		return fmt.Errorf("invalid WindowSize: %d", c.WindowSize)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("invalid SampleRate: %d", c.SampleRate)
	}
	if c.BufferCapacity < c.WindowSize {
		return fmt.Errorf("BufferCapacity %d is smaller than WindowSize %d", c.BufferCapacity, c.WindowSize)
	}
	if err := c.Pitch.IsValid(); err != nil {
		return fmt.Errorf("invalid Pitch config: %w", err)
	}
	return nil
}
