package capture

import (
	"math"
	"testing"
)

func TestConfigIsValid(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(c *Config) {}, false},
		{"zero sample rate", func(c *Config) { c.SampleRate = 0 }, true},
		{"stereo", func(c *Config) { c.Channels = 2 }, true},
		{"zero period", func(c *Config) { c.PeriodMs = 0 }, true},
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

func TestBytesToFloat32(t *testing.T) {
	// int16 LE: 0, 16384, -16384, 32767, -32768
	data := []byte{
		0x00, 0x00,
		0x00, 0x40,
		0x00, 0xC0,
		0xFF, 0x7F,
		0x00, 0x80,
	}

	got := bytesToFloat32(data)
	want := []float32{0, 0.5, -0.5, 32767.0 / 32768, -1}

	if len(got) != len(want) {
		t.Fatalf("Got %d samples, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-7 {
			t.Errorf("Sample %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestBytesToFloat32OddLength(t *testing.T) {
	// A trailing odd byte is dropped rather than read out of bounds.
	got := bytesToFloat32([]byte{0x00, 0x40, 0xFF})
	if len(got) != 1 {
		t.Fatalf("Got %d samples, want 1", len(got))
	}
}

func TestBytesToFloat32Range(t *testing.T) {
	data := make([]byte, 512)
	for i := range data {
		data[i] = byte(i * 37)
	}

	for i, v := range bytesToFloat32(data) {
		if v < -1 || v > 1 {
			t.Errorf("Sample %d out of range: %v", i, v)
		}
	}
}
