// Package capture turns recording gestures into single encoded audio payloads sent to the agent.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/satriahrh/voicecall/domain/entities"
	"github.com/satriahrh/voicecall/domain/repositories"
	"github.com/satriahrh/voicecall/internal/metrics"
)

var errNoMicrophone = errors.New("microphone not acquired")

// Drop reasons reported to metrics
const (
	dropDiscarded    = "discarded"
	dropEmpty        = "empty"
	dropDisconnected = "disconnected"
	dropEncode       = "encode"
	dropSend         = "send"
)

// Sender is the outbound side of the agent transport
type Sender interface {
	IsOpen() bool
	SendBinary(data []byte) error
}

// recording accumulates encoder chunks for one gesture
type recording struct {
	recorder repositories.Recorder
	mimeType string
	epoch    uint64

	mu     sync.Mutex
	chunks [][]byte
}

func (r *recording) append(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	buf := make([]byte, len(chunk))
	copy(buf, chunk)

	r.mu.Lock()
	r.chunks = append(r.chunks, buf)
	r.mu.Unlock()
}

func (r *recording) finalize() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := 0
	for _, c := range r.chunks {
		size += len(c)
	}
	data := make([]byte, 0, size)
	for _, c := range r.chunks {
		data = append(data, c...)
	}
	r.chunks = nil
	return data
}

// Controller owns the microphone stream and at most one in-progress recording
type Controller struct {
	devices   repositories.MediaDevices
	support   repositories.EncoderSupport
	recorders repositories.RecorderFactory
	formats   []string
	logger    *zap.Logger
	metrics   *metrics.Metrics

	mu       sync.Mutex
	stream   repositories.MicrophoneStream
	sender   Sender
	current  *recording
	epoch    uint64
	format   string
	released bool
}

// NewController creates a capture controller that tries formats in order
func NewController(
	devices repositories.MediaDevices,
	support repositories.EncoderSupport,
	recorders repositories.RecorderFactory,
	formats []string,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Controller {
	if m == nil {
		m = metrics.NewNop()
	}
	return &Controller{
		devices:   devices,
		support:   support,
		recorders: recorders,
		formats:   formats,
		logger:    logger,
		metrics:   m,
	}
}

// Acquire requests the microphone. A denial is returned as *entities.PermissionError.
func (c *Controller) Acquire(ctx context.Context) error {
	stream, err := c.devices.RequestMicrophone(ctx)
	if err != nil {
		var permErr *entities.PermissionError
		if errors.As(err, &permErr) {
			return err
		}
		if errors.Is(err, entities.ErrPermissionDenied) {
			return &entities.PermissionError{Err: err}
		}
		return &entities.CaptureError{Op: "acquire microphone", Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		stream.Stop()
		return &entities.CaptureError{Op: "acquire microphone", Err: errors.New("controller released")}
	}
	c.stream = stream
	c.logger.Info("Microphone access granted", zap.String("stream", stream.ID()))
	return nil
}

// Attach sets the transport recordings are sent on
func (c *Controller) Attach(sender Sender) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sender = sender
}

// Recording reports whether a recording is in progress
func (c *Controller) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

// Format returns the container chosen for the most recent recording
func (c *Controller) Format() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.format
}

// StartRecording begins a new recording. It reports false without error when
// a recording is already in progress.
func (c *Controller) StartRecording(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		return false, nil
	}
	if c.released || c.stream == nil {
		return false, &entities.CaptureError{Op: "start recording", Err: errNoMicrophone}
	}

	mimeType := SelectFormat(c.formats, c.support)
	recorder, err := c.recorders.NewRecorder(c.stream, mimeType)
	if err != nil {
		return false, &entities.CaptureError{Op: "create recorder", Err: err}
	}

	rec := &recording{recorder: recorder, mimeType: mimeType, epoch: c.epoch}
	if err := recorder.Start(ctx, rec.append); err != nil {
		return false, &entities.CaptureError{Op: "start recording", Err: err}
	}

	c.current = rec
	c.format = mimeType
	c.logger.Info("Recording started", zap.String("mimeType", mimeType))
	return true, nil
}

// StopRecording finalizes the current recording and sends it as one binary frame.
// It returns the number of bytes sent; zero means nothing was sent.
func (c *Controller) StopRecording(ctx context.Context) (int, error) {
	c.mu.Lock()
	rec := c.current
	c.current = nil
	c.mu.Unlock()

	if rec == nil {
		return 0, nil
	}

	if err := rec.recorder.Stop(ctx); err != nil {
		rec.finalize()
		c.metrics.RecordingsDropped.WithLabelValues(dropEncode).Inc()
		return 0, &entities.CaptureError{Op: "finalize recording", Err: err}
	}
	data := rec.finalize()

	// the session may have ended while the encoder was finishing
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released || rec.epoch != c.epoch {
		c.metrics.RecordingsDropped.WithLabelValues(dropDiscarded).Inc()
		c.logger.Debug("Discarded recording finished after teardown", zap.Int("bytes", len(data)))
		return 0, nil
	}
	if len(data) == 0 {
		c.metrics.RecordingsDropped.WithLabelValues(dropEmpty).Inc()
		c.logger.Debug("Recording is empty, nothing sent")
		return 0, nil
	}
	if c.sender == nil || !c.sender.IsOpen() {
		c.metrics.RecordingsDropped.WithLabelValues(dropDisconnected).Inc()
		c.logger.Warn("Transport closed, recording not sent", zap.Int("bytes", len(data)))
		return 0, nil
	}

	if err := c.sender.SendBinary(data); err != nil {
		c.metrics.RecordingsDropped.WithLabelValues(dropSend).Inc()
		return 0, fmt.Errorf("send recording: %w", err)
	}

	c.metrics.RecordingsSent.Inc()
	c.metrics.RecordingSize.Observe(float64(len(data)))
	c.logger.Info("Sent recording",
		zap.Int("bytes", len(data)),
		zap.String("mimeType", rec.mimeType))
	return len(data), nil
}

// Discard aborts the recording in progress and invalidates any recording
// still being finalized, so neither is sent.
func (c *Controller) Discard() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.discardLocked()
}

func (c *Controller) discardLocked() {
	c.epoch++
	if c.current == nil {
		return
	}
	rec := c.current
	c.current = nil
	if err := rec.recorder.Abort(); err != nil {
		c.logger.Debug("Failed to abort recorder", zap.Error(err))
	}
	rec.finalize()
	c.metrics.RecordingsDropped.WithLabelValues(dropDiscarded).Inc()
	c.logger.Info("Discarded in-progress recording")
}

// Release discards any recording and stops the microphone stream. It is idempotent.
func (c *Controller) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return
	}
	c.discardLocked()
	c.released = true
	c.sender = nil
	if c.stream != nil {
		if err := c.stream.Stop(); err != nil {
			c.logger.Warn("Failed to stop microphone stream", zap.Error(err))
		}
		c.stream = nil
	}
}
