package pitch

import (
	"math"
	"testing"
)

func sineWindow(freq float64, sampleRate, n int) []float32 {
	w := make([]float32, n)
	for i := range w {
		w[i] = float32(math.Sin(2 * math.Pi * freq * float64(i) / float64(sampleRate)))
	}
	return w
}

func TestDetectPureTone(t *testing.T) {
	cfg := DefaultConfig()

	for _, freq := range []float64{100, 150, 220, 330} {
		got := Detect(sineWindow(freq, cfg.SampleRate, cfg.WindowSize), cfg)
		if math.Abs(got-freq) > 2 {
			t.Errorf("Detect(%v Hz sine) = %v, want within 2 Hz", freq, got)
		}
	}
}

func TestDetectSilence(t *testing.T) {
	cfg := DefaultConfig()

	if got := Detect(make([]float32, cfg.WindowSize), cfg); got != 0 {
		t.Errorf("Detect(silence) = %v, want 0", got)
	}
}

func TestDetectNoise(t *testing.T) {
	cfg := DefaultConfig()

	// Deterministic pseudo-noise with no periodic structure.
	w := make([]float32, cfg.WindowSize)
	seed := uint32(12345)
	for i := range w {
		seed = seed*1664525 + 1013904223
		w[i] = float32(seed%2000)/1000 - 1
	}

	got := Detect(w, cfg)
	if got != 0 {
		// Noise occasionally shows a weak dip; a nonzero estimate must at
		// least stay inside the search band.
		if got < cfg.MinFrequency || got > cfg.MaxFrequency {
			t.Errorf("Detect(noise) = %v, outside [%v, %v]", got, cfg.MinFrequency, cfg.MaxFrequency)
		}
	}
}

func TestDetectOutOfRangeTone(t *testing.T) {
	cfg := DefaultConfig()

	// 1 kHz is far above MaxFrequency. The detector may lock onto a
	// subharmonic inside the band, but must never report the true 1 kHz.
	got := Detect(sineWindow(1000, cfg.SampleRate, cfg.WindowSize), cfg)
	if got > cfg.MaxFrequency+2 {
		t.Errorf("Detect(1 kHz sine) = %v, want at most %v", got, cfg.MaxFrequency)
	}
}

func TestDetectCentersLongInput(t *testing.T) {
	cfg := DefaultConfig()

	// One second of audio: silence everywhere except a 150 Hz tone in the
	// centered analysis window.
	n := cfg.SampleRate
	w := make([]float32, n)
	start := (n - cfg.WindowSize) / 2
	tone := sineWindow(150, cfg.SampleRate, cfg.WindowSize)
	copy(w[start:], tone)

	got := Detect(w, cfg)
	if math.Abs(got-150) > 2 {
		t.Errorf("Detect(centered tone) = %v, want within 2 Hz of 150", got)
	}
}

func TestConfigIsValid(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(c *Config) {}, false},
		{"zero sample rate", func(c *Config) { c.SampleRate = 0 }, true},
		{"threshold at one", func(c *Config) { c.Threshold = 1 }, true},
		{"inverted range", func(c *Config) { c.MinFrequency = 500 }, true},
		{"tiny window", func(c *Config) { c.WindowSize = 2 }, true},
		{"zero history", func(c *Config) { c.HistorySize = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.IsValid(); (err != nil) != tt.wantErr {
				t.Errorf("IsValid() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTrackerMedianIgnoresUnvoiced(t *testing.T) {
	tr, err := NewTracker(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	// Unvoiced gaps inside a voiced stretch must not drag the median down.
	for _, raw := range []float64{0, 140, 0, 160, 150} {
		tr.Push(raw)
	}

	if got := tr.Smoothed(); got != 150 {
		t.Errorf("Smoothed() = %v, want 150", got)
	}
}

func TestTrackerMedianEvenCount(t *testing.T) {
	tr, err := NewTracker(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	for _, raw := range []float64{100, 200, 0, 0, 0} {
		tr.Push(raw)
	}

	if got := tr.Smoothed(); got != 150 {
		t.Errorf("Smoothed() = %v, want 150 (average of two middle values)", got)
	}
}

func TestTrackerAllUnvoiced(t *testing.T) {
	tr, err := NewTracker(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		tr.Push(0)
	}

	if got := tr.Smoothed(); got != 0 {
		t.Errorf("Smoothed() = %v, want 0 for all-unvoiced history", got)
	}
}

func TestTrackerHistoryBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HistorySize = 3
	tr, err := NewTracker(cfg)
	if err != nil {
		t.Fatal(err)
	}

	// Old entries fall off: after pushing 100 three more times, the early
	// 300s are gone.
	for _, raw := range []float64{300, 300, 100, 100, 100} {
		tr.Push(raw)
	}

	if got := tr.Smoothed(); got != 100 {
		t.Errorf("Smoothed() = %v, want 100 after old entries expire", got)
	}
}

func TestTrackerReset(t *testing.T) {
	tr, err := NewTracker(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	tr.Push(200)
	tr.Reset()

	if got := tr.Smoothed(); got != 0 {
		t.Errorf("Smoothed() = %v after reset, want 0", got)
	}
}

func TestNewTrackerRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SampleRate = -1

	if _, err := NewTracker(cfg); err == nil {
		t.Error("Expected error for invalid config")
	}
}

func TestDetectSmoothed(t *testing.T) {
	tr, err := NewTracker(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	tone := sineWindow(150, tr.cfg.SampleRate, tr.cfg.WindowSize)
	var got float64
	for i := 0; i < 5; i++ {
		got = tr.DetectSmoothed(tone)
	}

	if math.Abs(got-150) > 2 {
		t.Errorf("DetectSmoothed = %v, want within 2 Hz of 150", got)
	}
}
