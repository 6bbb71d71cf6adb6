package audio

import (
	"math"
	"testing"
)

func TestNewRingBuffer(t *testing.T) {
	rb := NewRingBuffer(32000)
	if rb.Capacity() != 32000 {
		t.Errorf("Expected capacity 32000, got %d", rb.Capacity())
	}
	if rb.Size() != 0 {
		t.Errorf("Expected size 0, got %d", rb.Size())
	}
}

func TestRingBuffer_PushAndSnapshot(t *testing.T) {
	rb := NewRingBuffer(3200)

	chunk := make([]float32, 1000)
	for i := range chunk {
		chunk[i] = float32(i) / 1000
	}
	rb.Push(chunk)

	if rb.Size() != 1000 {
		t.Errorf("Expected size 1000, got %d", rb.Size())
	}

	got := rb.Snapshot(1000)
	for i := range chunk {
		if got[i] != chunk[i] {
			t.Fatalf("Snapshot mismatch at %d: got %v, want %v", i, got[i], chunk[i])
		}
	}

	// Size should remain unchanged after snapshot
	if rb.Size() != 1000 {
		t.Errorf("Expected size 1000 after snapshot, got %d", rb.Size())
	}
}

func TestRingBuffer_ColdStartZeroPrefix(t *testing.T) {
	rb := NewRingBuffer(3200)

	chunk := make([]float32, 100)
	for i := range chunk {
		chunk[i] = 0.5
	}
	rb.Push(chunk)

	got := rb.Snapshot(200)
	if len(got) != 200 {
		t.Fatalf("Expected 200 samples, got %d", len(got))
	}
	for i := 0; i < 100; i++ {
		if got[i] != 0 {
			t.Fatalf("Expected zero prefix at %d, got %v", i, got[i])
		}
	}
	for i := 100; i < 200; i++ {
		if got[i] != 0.5 {
			t.Fatalf("Expected 0.5 at %d, got %v", i, got[i])
		}
	}
}

func TestRingBuffer_Wraparound(t *testing.T) {
	rb := NewRingBuffer(3200)

	// Total pushed exceeds capacity; snapshot must return exactly the most
	// recent capacity samples in order.
	var pushed []float32
	for c := 0; c < 5; c++ {
		chunk := make([]float32, 1000)
		for i := range chunk {
			chunk[i] = float32(c) + float32(i)/1000
		}
		rb.Push(chunk)
		pushed = append(pushed, chunk...)
	}

	if rb.Size() != rb.Capacity() {
		t.Errorf("Expected buffer to be full, got size %d", rb.Size())
	}

	got := rb.Snapshot(rb.Capacity())
	want := pushed[len(pushed)-rb.Capacity():]
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Snapshot mismatch at %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestRingBuffer_SnapshotCappedAtCapacity(t *testing.T) {
	rb := NewRingBuffer(100)
	rb.Push(make([]float32, 100))

	got := rb.Snapshot(500)
	if len(got) != 100 {
		t.Errorf("Expected snapshot capped at capacity 100, got %d", len(got))
	}
}

func TestRingBuffer_SanitizesNonFinite(t *testing.T) {
	rb := NewRingBuffer(16)

	nan := float32(math.NaN())
	inf := float32(math.Inf(1))
	rb.Push([]float32{nan, inf, -inf, 0.25})

	got := rb.Snapshot(4)
	for i := 0; i < 3; i++ {
		if got[i] != 0 {
			t.Errorf("Expected non-finite sample %d sanitized to 0, got %v", i, got[i])
		}
	}
	if got[3] != 0.25 {
		t.Errorf("Expected 0.25, got %v", got[3])
	}
}

func TestRingBuffer_Clear(t *testing.T) {
	rb := NewRingBuffer(100)

	rb.Push(make([]float32, 50))
	rb.Clear()

	if rb.Size() != 0 {
		t.Errorf("Expected size 0 after clear, got %d", rb.Size())
	}

	got := rb.Snapshot(10)
	for i, v := range got {
		if v != 0 {
			t.Errorf("Expected zeros after clear, got %v at %d", v, i)
		}
	}
}
