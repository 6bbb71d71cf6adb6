// Package dsp provides the temporal smoothing filters applied to embedding
// tensors and published feature vectors.
package dsp

import (
	"fmt"

	"github.com/tractstream/tractstream/pkg/embedding"
)

// Canonical lowpass coefficients: 5th-order Butterworth, 10 Hz cutoff at a
// 50 Hz effective frame rate. The coefficient order and signs are part of
// the numeric contract; altering them destabilizes the recursion.
var (
	lowpassB = []float64{0.0008, 0.0039, 0.0078, 0.0078, 0.0039, 0.0008}
	lowpassA = []float64{1.0000, -3.0756, 3.8289, -2.3954, 0.7475, -0.0930}
)

// LowpassCoefficients returns copies of the canonical filter coefficients
// (b = feed-forward taps, a = feedback taps, a[0] = 1).
func LowpassCoefficients() (b, a []float64) {
	b = append([]float64(nil), lowpassB...)
	a = append([]float64(nil), lowpassA...)
	return b, a
}

// Filter is a direct form I IIR filter. It keeps a history of recent inputs
// and outputs and implements
//
//	y[n] = sum(b[i]*x[n-i]) - sum(a[i]*y[n-i], i >= 1)
type Filter struct {
	b []float64
	a []float64
	x []float64 // input history, x[0] newest
	y []float64 // output history, y[0] newest
}

// NewFilter creates a filter with the given coefficients. a[0] must be 1.
func NewFilter(b, a []float64) (*Filter, error) {
	if len(b) == 0 || len(a) == 0 {
		return nil, fmt.Errorf("empty coefficients")
	}
	if a[0] != 1 {
		return nil, fmt.Errorf("a[0] must be 1, got %v", a[0])
	}
	return &Filter{
		b: append([]float64(nil), b...),
		a: append([]float64(nil), a...),
		x: make([]float64, len(b)),
		y: make([]float64, len(a)-1),
	}, nil
}

// ProcessSample advances the filter by one sample and returns the output.
func (f *Filter) ProcessSample(input float64) float64 {
	// Shift input history
	copy(f.x[1:], f.x[:len(f.x)-1])
	f.x[0] = input

	var out float64
	for i, bi := range f.b {
		out += bi * f.x[i]
	}
	for i := 1; i < len(f.a); i++ {
		out -= f.a[i] * f.y[i-1]
	}

	// Shift output history
	copy(f.y[1:], f.y[:len(f.y)-1])
	f.y[0] = out

	return out
}

// Reset zeroes the filter state.
func (f *Filter) Reset() {
	for i := range f.x {
		f.x[i] = 0
	}
	for i := range f.y {
		f.y[i] = 0
	}
}

// FilterBank holds one independent Filter per embedding channel and applies
// them along the frame axis of a tensor. Filter state persists across Apply
// calls: the embedding stream is continuous, so carrying the recursion over
// window boundaries is intentional. State is reset only by Reset or when
// the channel count changes.
type FilterBank struct {
	b, a    []float64
	filters []*Filter
	series  []float32 // scratch buffer reused across channels
}

// NewLowpassBank creates a filter bank with the canonical lowpass
// coefficients. Filters are lazily instantiated on first Apply, when the
// channel count is known.
func NewLowpassBank() *FilterBank {
	b, a := LowpassCoefficients()
	return &FilterBank{b: b, a: a}
}

// NewFilterBank creates a bank with caller-supplied coefficients.
func NewFilterBank(b, a []float64) (*FilterBank, error) {
	if _, err := NewFilter(b, a); err != nil {
		return nil, err
	}
	return &FilterBank{
		b: append([]float64(nil), b...),
		a: append([]float64(nil), a...),
	}, nil
}

// ensureSize (re)allocates filters when the channel count changes.
// Reallocation starts every filter from neutral all-zero state.
func (fb *FilterBank) ensureSize(channels int) {
	if len(fb.filters) == channels {
		return
	}
	fb.filters = make([]*Filter, channels)
	for i := range fb.filters {
		// coefficients already validated at construction
		fb.filters[i], _ = NewFilter(fb.b, fb.a)
	}
}

// Apply filters the tensor in place along the frame axis, independently per
// channel. Channel h always goes through filter h, so per-channel state
// lines up across calls.
func (fb *FilterBank) Apply(t *embedding.Tensor) {
	if t == nil || t.Frames == 0 || t.Channels == 0 {
		return
	}

	fb.ensureSize(t.Channels)

	for h := 0; h < t.Channels; h++ {
		fb.series = t.Channel(h, fb.series)
		f := fb.filters[h]
		for i, v := range fb.series {
			fb.series[i] = float32(f.ProcessSample(float64(v)))
		}
		t.SetChannel(h, fb.series)
	}
}

// Reset zeroes the state of every filter in the bank.
func (fb *FilterBank) Reset() {
	for _, f := range fb.filters {
		f.Reset()
	}
}

// Channels returns the number of instantiated per-channel filters.
func (fb *FilterBank) Channels() int {
	return len(fb.filters)
}
