package models

import "time"

// DeviceEntry is one line of the transport's device list
type DeviceEntry struct {
	Serial string `json:"serial"`
	State  string `json:"state"` // device, offline, unauthorized, ...
}

// Online reports whether the transport considers the device usable
func (d DeviceEntry) Online() bool {
	return d.State == "device"
}

// SessionState is the connection state of the managed device session
type SessionState int

const (
	SessionDisconnected SessionState = iota // No device adopted
	SessionConnecting                       // Connect in progress
	SessionOnline                           // Last probe succeeded
	SessionOffline                          // Device adopted but not reachable
)

func (s SessionState) String() string {
	return [...]string{"DISCONNECTED", "CONNECTING", "ONLINE", "OFFLINE"}[s]
}

// Status is the JSON shape returned by the status endpoint
type Status struct {
	Connected    bool         `json:"connected"`
	Device       *string      `json:"device"`
	Width        *int         `json:"width"`
	Height       *int         `json:"height"`
	State        string       `json:"state"`
	Phase        string       `json:"phase,omitempty"`
	LastActivity *time.Time   `json:"last_activity,omitempty"`
	Stream       *StreamStats `json:"stream,omitempty"`
}

// StreamStats summarizes the frame broadcaster
type StreamStats struct {
	FramesSent   uint64 `json:"frames_sent"`
	Failures     uint64 `json:"failures"`
	LastSequence uint64 `json:"last_sequence"`
	Viewers      int    `json:"viewers"`
}

// FrameEvent is pushed to every viewer on each broadcast cycle
type FrameEvent struct {
	Type     string `json:"type"` // always "frame"
	Sequence uint64 `json:"seq"`
	MIME     string `json:"mime"`
	Data     string `json:"data"` // data:<mime>;base64,...
}

// PrepStep is one best-effort device preparation shell command
type PrepStep struct {
	Name    string `json:"name" yaml:"name"`
	Command string `json:"command" yaml:"command"`
}
