package extractor

// State is the coordinator lifecycle state.
type State int

const (
	// StateIdle: nothing armed, no resources held.
	StateIdle State = iota
	// StateStarting: acquiring audio and verifying the model; ticks route
	// to the demo source.
	StateStarting
	// StateRunning: the only state in which real extraction ticks run.
	StateRunning
	// StateStopping: winding down; in-flight results are discarded.
	StateStopping
)

// String returns the state's string representation.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	default:
		return "Unknown"
	}
}
