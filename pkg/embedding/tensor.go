package embedding

import (
	"fmt"
	"math"
)

// Tensor is one inference result: F frames of H-channel embeddings,
// stored row-major ([frame][channel]). It is immutable by convention once
// returned from Infer, except for in-place temporal filtering which owns
// the only mutation path.
type Tensor struct {
	Frames   int
	Channels int
	Data     []float32
}

// NewTensor creates a zeroed tensor with the given shape.
func NewTensor(frames, channels int) (*Tensor, error) {
	if frames <= 0 || channels <= 0 {
		return nil, fmt.Errorf("invalid tensor shape [%d, %d]", frames, channels)
	}
	return &Tensor{
		Frames:   frames,
		Channels: channels,
		Data:     make([]float32, frames*channels),
	}, nil
}

// Frame returns a view of frame i. The slice aliases the tensor data.
func (t *Tensor) Frame(i int) []float32 {
	return t.Data[i*t.Channels : (i+1)*t.Channels]
}

// MidFrame returns the temporally centered frame, floor(F/2). It is the
// least edge-distorted frame after temporal filtering and is the one the
// projector consumes.
func (t *Tensor) MidFrame() []float32 {
	return t.Frame(t.Frames / 2)
}

// Channel copies the F-length time series of channel h.
func (t *Tensor) Channel(h int, dst []float32) []float32 {
	if cap(dst) < t.Frames {
		dst = make([]float32, t.Frames)
	}
	dst = dst[:t.Frames]
	for i := 0; i < t.Frames; i++ {
		dst[i] = t.Data[i*t.Channels+h]
	}
	return dst
}

// SetChannel writes an F-length time series back into channel h.
func (t *Tensor) SetChannel(h int, series []float32) {
	for i := 0; i < t.Frames; i++ {
		t.Data[i*t.Channels+h] = series[i]
	}
}

// Validate returns an error if the tensor contains NaN or infinite values.
// A model emitting non-finite embeddings is a hard inference error, not
// something to silently tolerate.
func (t *Tensor) Validate() error {
	for i, v := range t.Data {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("non-finite value at index %d (frame %d, channel %d)",
				i, i/t.Channels, i%t.Channels)
		}
	}
	return nil
}

// PrepareWindow fits samples to the model's required window length:
// shorter input is zero-padded on the right, longer input is truncated to
// the first size samples. The returned slice never aliases the input.
func PrepareWindow(samples []float32, size int) []float32 {
	window := make([]float32, size)
	copy(window, samples)
	return window
}
