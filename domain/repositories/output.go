package repositories

import "context"

// AudioOutputProvider acquires the audio output capability
type AudioOutputProvider interface {
	Acquire(ctx context.Context) (AudioOutput, error)
}

// AudioOutput plays sealed audio units. Both methods block until playback completes,
// fails, or ctx is done.
type AudioOutput interface {
	// PlayDecoded decodes data and plays the decoded samples.
	// A payload that cannot be decoded is reported with entities.ErrDecode.
	PlayDecoded(ctx context.Context, data []byte) error
	// PlayRaw hands the container to the platform player without explicit decoding.
	PlayRaw(ctx context.Context, data []byte) error
}
