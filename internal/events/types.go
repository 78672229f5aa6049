package events

// Event type constants for kelindar/event.
const (
	TypeStreamStarted uint32 = iota + 1
	TypeStreamStateChanged
	TypeStreamStopped
	TypeStreamExited
	TypeCapabilitiesDetected
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// StreamStartedEvent is published once the engine process for a stream is spawned.
type StreamStartedEvent struct {
	StreamID  string `json:"stream_id" example:"lobby" doc:"Stream identifier"`
	Encoder   string `json:"encoder" example:"h264_nvenc" doc:"Video encoder in use"`
	Hardware  bool   `json:"hardware" doc:"Whether the encoder runs on an accelerator"`
	OutputDir string `json:"output_dir" example:"output/lobby" doc:"HLS output directory"`
	PID       int    `json:"pid" doc:"Engine process id"`
	Active    int    `json:"active" doc:"Registered streams after the change"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamStartedEvent.
func (e StreamStartedEvent) Type() uint32 { return TypeStreamStarted }

// StreamStateChangedEvent follows a stream through absent, starting, running and stopping.
type StreamStateChangedEvent struct {
	StreamID  string `json:"stream_id" example:"lobby" doc:"Stream identifier"`
	From      string `json:"from" example:"starting" doc:"Previous state"`
	To        string `json:"to" example:"running" doc:"New state"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamStateChangedEvent.
func (e StreamStateChangedEvent) Type() uint32 { return TypeStreamStateChanged }

// StreamStoppedEvent is published when a stop is requested for a registered stream.
type StreamStoppedEvent struct {
	StreamID  string `json:"stream_id" example:"lobby" doc:"Stream identifier"`
	Active    int    `json:"active" doc:"Registered streams after the change"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamStoppedEvent.
func (e StreamStoppedEvent) Type() uint32 { return TypeStreamStopped }

// StreamExitedEvent is published exactly once per engine process when it exits.
type StreamExitedEvent struct {
	StreamID  string   `json:"stream_id" example:"lobby" doc:"Stream identifier"`
	ExitCode  int      `json:"exit_code" doc:"Process exit code, 128+N when killed by signal N"`
	Requested bool     `json:"requested" doc:"Whether the exit followed a stop request"`
	UptimeMs  int64    `json:"uptime_ms" doc:"How long the process ran"`
	Tail      []string `json:"tail,omitempty" doc:"Last engine output lines on unexpected exit"`
	Active    int      `json:"active" doc:"Registered streams after the change"`
	Timestamp string   `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamExitedEvent.
func (e StreamExitedEvent) Type() uint32 { return TypeStreamExited }

// Crashed reports whether the process died on its own with a failure.
func (e StreamExitedEvent) Crashed() bool {
	return !e.Requested && e.ExitCode != 0
}

// CapabilitiesDetectedEvent is published once, when the encoder probe completes.
type CapabilitiesDetectedEvent struct {
	EncoderType      string  `json:"encoder_type" example:"NVIDIA" doc:"Winning vendor"`
	Encoder          string  `json:"encoder" example:"h264_nvenc" doc:"Winning encoder"`
	HWAccelConfirmed bool    `json:"hwaccel_confirmed" doc:"Whether a hardware encoder passed its functional test"`
	DurationSeconds  float64 `json:"duration_seconds" doc:"Probe duration"`
	Timestamp        string  `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for CapabilitiesDetectedEvent.
func (e CapabilitiesDetectedEvent) Type() uint32 { return TypeCapabilitiesDetected }
