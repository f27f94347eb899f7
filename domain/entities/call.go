package entities

// CallState represents the lifecycle state of a call session
type CallState string

const (
	CallStateIdle       CallState = "idle"
	CallStateConnecting CallState = "connecting"
	CallStateActive     CallState = "active"
	CallStateEnding     CallState = "ending"
)

// RecordingState represents whether a recording gesture is in progress.
// It is only meaningful while the call is active.
type RecordingState string

const (
	RecordingStateNotRecording RecordingState = "not_recording"
	RecordingStateRecording    RecordingState = "recording"
)

// Role identifies who spoke a conversation turn
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Severity classifies user-facing notifications
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)
