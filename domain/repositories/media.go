package repositories

import "context"

// MediaDevices abstracts the platform's microphone access
type MediaDevices interface {
	// RequestMicrophone asks for access to the default input device.
	// A refusal is reported as *entities.PermissionError.
	RequestMicrophone(ctx context.Context) (MicrophoneStream, error)
}

// MicrophoneStream is a granted input device. Stop releases its tracks.
type MicrophoneStream interface {
	ID() string
	Stop() error
}

// EncoderSupport is the platform capability check for recording containers
type EncoderSupport interface {
	// IsTypeSupported reports whether recordings can be encoded as mimeType.
	// The empty mime type means "platform default" and is always supported.
	IsTypeSupported(mimeType string) bool
}

// RecorderFactory creates encoders bound to a granted microphone stream
type RecorderFactory interface {
	NewRecorder(stream MicrophoneStream, mimeType string) (Recorder, error)
}

// Recorder encodes microphone input into a container, delivering chunks as they are produced
type Recorder interface {
	// Start begins capture. onChunk is called from a recorder goroutine, in order.
	Start(ctx context.Context, onChunk func([]byte)) error
	// Stop finalizes the container and returns once the last chunk has been delivered.
	Stop(ctx context.Context) error
	// Abort stops capture without waiting for the encoder to finish.
	Abort() error
}
