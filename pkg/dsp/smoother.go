package dsp

// VectorSmoother applies one-pole exponential smoothing per vector
// component: smoothed = alpha*new + (1-alpha)*previous. The first call
// passes the input through unchanged. A change in vector length restarts
// the smoother.
type VectorSmoother struct {
	alpha float64
	prev  []float64
}

// NewVectorSmoother creates a smoother with the given coefficient.
// alpha is clamped to (0, 1].
func NewVectorSmoother(alpha float64) *VectorSmoother {
	if alpha <= 0 || alpha > 1 {
		alpha = 1
	}
	return &VectorSmoother{alpha: alpha}
}

// SetAlpha changes the smoothing coefficient. The carried state is kept so
// switching between live and idle smoothing does not jump the output.
func (s *VectorSmoother) SetAlpha(alpha float64) {
	if alpha <= 0 || alpha > 1 {
		return
	}
	s.alpha = alpha
}

// Alpha returns the current smoothing coefficient.
func (s *VectorSmoother) Alpha() float64 {
	return s.alpha
}

// Smooth updates the smoother with v and returns the smoothed vector.
// The returned slice is owned by the smoother and valid until the next call.
func (s *VectorSmoother) Smooth(v []float64) []float64 {
	if len(s.prev) != len(v) {
		s.prev = append([]float64(nil), v...)
		return s.prev
	}

	for i, x := range v {
		s.prev[i] = s.alpha*x + (1-s.alpha)*s.prev[i]
	}
	return s.prev
}

// Last returns the most recent smoothed vector, or nil before the first
// Smooth call. Used to hold the last known-good frame steady on fallback.
func (s *VectorSmoother) Last() []float64 {
	return s.prev
}

// Reset discards the carried state.
func (s *VectorSmoother) Reset() {
	s.prev = nil
}
