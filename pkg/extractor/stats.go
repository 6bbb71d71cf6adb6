package extractor

import "sync/atomic"

// Stats counts coordinator outcomes. Admission rejections are deliberate
// backpressure, not errors, and are counted separately.
type Stats struct {
	Ticks     uint64
	Published uint64
	Fallbacks uint64
	Errors    uint64
	Timeouts  uint64
	Rejected  uint64
}

type statsCounters struct {
	ticks     atomic.Uint64
	published atomic.Uint64
	fallbacks atomic.Uint64
	errors    atomic.Uint64
	timeouts  atomic.Uint64
	rejected  atomic.Uint64
}

func (s *statsCounters) snapshot() Stats {
	return Stats{
		Ticks:     s.ticks.Load(),
		Published: s.published.Load(),
		Fallbacks: s.fallbacks.Load(),
		Errors:    s.errors.Load(),
		Timeouts:  s.timeouts.Load(),
		Rejected:  s.rejected.Load(),
	}
}
