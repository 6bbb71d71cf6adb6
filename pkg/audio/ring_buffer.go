// Package audio provides audio buffering and level measurement.
//
// RingBuffer implements a fixed-size circular buffer of mono float samples.
// The capture callback pushes small chunks continually; the extraction loop
// takes snapshots of the most recent window without disturbing the writer.
//
// Main features:
//   - Fixed capacity in samples (e.g. 32000 = 2s at 16kHz)
//   - True circular overwrite, the oldest data is silently replaced
//   - Snapshot returns a consistent copy, never a torn read
//
// Usage:
//
//	rb := NewRingBuffer(32000)
//	rb.Push(chunk)
//	window := rb.Snapshot(16000) // last 1s, oldest first
package audio

import (
	"math"
	"sync"
)

// RingBuffer is a fixed-size circular buffer of mono audio samples.
type RingBuffer struct {
	data     []float32
	capacity int // total capacity in samples
	writePos int // next write position
	written  int // total samples ever written (saturates at capacity)
	mu       sync.Mutex
}

// NewRingBuffer creates a ring buffer holding capacity samples.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingBuffer{
		data:     make([]float32, capacity),
		capacity: capacity,
	}
}

// Push appends samples to the buffer, overwriting the oldest data when full.
// NaN and infinite samples are sanitized to 0 so they never propagate into
// downstream DSP.
func (rb *RingBuffer) Push(chunk []float32) {
	if len(chunk) == 0 {
		return
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()

	for _, s := range chunk {
		if math.IsNaN(float64(s)) || math.IsInf(float64(s), 0) {
			s = 0
		}
		rb.data[rb.writePos] = s
		rb.writePos++
		if rb.writePos == rb.capacity {
			rb.writePos = 0
		}
	}

	rb.written += len(chunk)
	if rb.written > rb.capacity {
		rb.written = rb.capacity
	}
}

// Snapshot returns the most recent n samples in chronological order
// (oldest first). If fewer than n samples have ever been written, the
// unwritten prefix reads as zero (silence). n is capped at capacity.
func (rb *RingBuffer) Snapshot(n int) []float32 {
	if n <= 0 {
		return nil
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()

	if n > rb.capacity {
		n = rb.capacity
	}

	out := make([]float32, n)

	avail := rb.written
	if avail > n {
		avail = n
	}

	// Copy the last avail samples ending at writePos into the tail of out;
	// the head stays zero to simulate cold-start silence.
	dst := n - avail
	src := rb.writePos - avail
	if src < 0 {
		src += rb.capacity
	}
	for i := 0; i < avail; i++ {
		out[dst+i] = rb.data[src]
		src++
		if src == rb.capacity {
			src = 0
		}
	}

	return out
}

// Clear resets the buffer to the empty state.
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	for i := range rb.data {
		rb.data[i] = 0
	}
	rb.writePos = 0
	rb.written = 0
}

// Size returns the number of valid samples currently buffered.
func (rb *RingBuffer) Size() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.written
}

// Capacity returns the total capacity of the buffer in samples.
func (rb *RingBuffer) Capacity() int {
	return rb.capacity
}
