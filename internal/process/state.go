package process

// State represents where a supervised stream is in its lifecycle.
// The only legal path is absent -> starting -> running -> stopping -> absent.
// running may be skipped, and a process that exits on its own still passes
// through stopping.
type State string

// Stream states.
const (
	StateAbsent   State = "absent"   // Not registered
	StateStarting State = "starting" // Spawned, waiting for first segment
	StateRunning  State = "running"  // Producing output
	StateStopping State = "stopping" // Termination requested
)

// StateChangeCallback is called when a stream state changes.
// Used for domain-specific reactions (e.g., events, metrics).
type StateChangeCallback func(id string, oldState, newState State)
