package entities

import (
	"errors"
	"fmt"
)

var (
	// ErrPermissionDenied is returned when the platform refuses microphone access.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrCapture is returned when capture cannot begin or finalize.
	ErrCapture = errors.New("audio capture failed")
	// ErrDecode is returned by an audio output that cannot decode a unit.
	ErrDecode = errors.New("audio decode failed")
	// ErrNotConnected is returned when sending on a channel that is not open.
	ErrNotConnected = errors.New("transport is not connected")
	// ErrEmptyRecording is returned when a finished recording produced no bytes.
	ErrEmptyRecording = errors.New("recording is empty")
)

// PermissionError wraps a platform refusal to grant microphone access
type PermissionError struct {
	Err error
}

func (e *PermissionError) Error() string {
	if e.Err == nil {
		return ErrPermissionDenied.Error()
	}
	return fmt.Sprintf("%s: %v", ErrPermissionDenied, e.Err)
}

func (e *PermissionError) Unwrap() []error {
	return []error{ErrPermissionDenied, e.Err}
}

// CaptureError wraps a failure of the capture device or encoder
type CaptureError struct {
	Op  string
	Err error
}

func (e *CaptureError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrCapture, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", ErrCapture, e.Op, e.Err)
}

func (e *CaptureError) Unwrap() []error {
	return []error{ErrCapture, e.Err}
}
