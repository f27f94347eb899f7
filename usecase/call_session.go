package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satriahrh/voicecall/domain"
	"github.com/satriahrh/voicecall/domain/entities"
	"github.com/satriahrh/voicecall/domain/repositories"
	"github.com/satriahrh/voicecall/internal/capture"
	"github.com/satriahrh/voicecall/internal/metrics"
	"github.com/satriahrh/voicecall/internal/playback"
	"github.com/satriahrh/voicecall/internal/reassembly"
)

var (
	// ErrCallInProgress is returned by Start when a call is not idle
	ErrCallInProgress = errors.New("call already in progress")
	// ErrCallEnded is returned by Start when the call was ended before it connected
	ErrCallEnded = errors.New("call ended before it connected")
)

// User-facing notifications
const (
	msgConnecting       = "Connecting to AI agent..."
	msgConnected        = "Connected! Type 'rec' or press Enter to start recording."
	msgPermissionDenied = "Microphone access denied. Please allow microphone access."
	msgConnectionError  = "Connection error. Please try again."
	msgCallEnded        = "Call ended. Thank you for collecting feedback!"
	msgRecordingError   = "Recording error. Please try again."
	msgSendError        = "Failed to send audio. Please try again."
	msgOutputError      = "Audio output unavailable. Please check your speakers."
)

// CallSessionDeps are the collaborators of a CallSession
type CallSessionDeps struct {
	Dialer    repositories.TransportDialer
	Devices   repositories.MediaDevices
	Encoders  repositories.EncoderSupport
	Recorders repositories.RecorderFactory
	Output    repositories.AudioOutputProvider
	UI        repositories.UserInterface
	Stats     repositories.StatsRecorder

	// Formats is the ordered recording container preference list
	Formats          []string
	ReassemblyWindow time.Duration
	UnitTimeout      time.Duration

	Clock   clock.Clock
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// CallSession coordinates capture, transport and playback for one call at a time
type CallSession struct {
	deps    CallSessionDeps
	clock   clock.Clock
	metrics *metrics.Metrics
	logger  *zap.Logger

	mu          sync.Mutex
	id          string
	state       entities.CallState
	attempt     uint64
	output      repositories.AudioOutput
	capture     *capture.Controller
	transport   repositories.Transport
	reassembler *reassembly.Reassembler
	queue       *playback.Queue
	startedAt   time.Time
	snapshot    entities.Metrics
	turnCount   int
}

// NewCallSession creates an idle call session
func NewCallSession(deps CallSessionDeps) *CallSession {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNop()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &CallSession{
		deps:    deps,
		clock:   deps.Clock,
		metrics: deps.Metrics,
		logger:  deps.Logger,
		state:   entities.CallStateIdle,
	}
}

// ID returns the identifier of the current or last call
func (s *CallSession) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// State returns the call lifecycle state
func (s *CallSession) State() entities.CallState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Recording reports whether a recording gesture is in progress
func (s *CallSession) Recording() bool {
	s.mu.Lock()
	ctrl := s.capture
	active := s.state == entities.CallStateActive
	s.mu.Unlock()
	return active && ctrl != nil && ctrl.Recording()
}

// RecordingState returns the nested recording state
func (s *CallSession) RecordingState() entities.RecordingState {
	if s.Recording() {
		return entities.RecordingStateRecording
	}
	return entities.RecordingStateNotRecording
}

// Metrics returns the latest metrics snapshot
func (s *CallSession) Metrics() entities.Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

// TurnCount returns the number of agent replies in the current call
func (s *CallSession) TurnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turnCount
}

// Duration returns how long the current call has been active
func (s *CallSession) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startedAt.IsZero() {
		return 0
	}
	return s.clock.Since(s.startedAt)
}

// Start connects a new call. It blocks until the call is active or has failed.
func (s *CallSession) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != entities.CallStateIdle {
		s.mu.Unlock()
		return ErrCallInProgress
	}
	s.attempt++
	attempt := s.attempt
	s.id = uuid.NewString()
	s.state = entities.CallStateConnecting
	output := s.output
	logger := s.logger.With(zap.String("callID", s.id))
	s.mu.Unlock()

	s.deps.UI.ShowCallState(entities.CallStateConnecting)
	s.deps.UI.NotifyUser(msgConnecting, entities.SeverityInfo)
	logger.Info("Starting call")

	// The audio output is acquired once, on the first call, and kept afterwards.
	if output == nil {
		out, err := s.deps.Output.Acquire(ctx)
		if err != nil {
			s.fail(attempt, "audio_output", msgOutputError)
			return fmt.Errorf("acquire audio output: %w", err)
		}
		s.mu.Lock()
		if s.output == nil {
			s.output = out
		}
		s.mu.Unlock()
	}

	ctrl := capture.NewController(
		s.deps.Devices,
		s.deps.Encoders,
		s.deps.Recorders,
		s.deps.Formats,
		logger,
		s.metrics,
	)
	if err := ctrl.Acquire(ctx); err != nil {
		if errors.Is(err, entities.ErrPermissionDenied) {
			s.fail(attempt, "permission_denied", msgPermissionDenied)
		} else {
			s.fail(attempt, "microphone", msgRecordingError)
		}
		logger.Warn("Microphone unavailable", zap.Error(err))
		return err
	}

	s.mu.Lock()
	if s.attempt != attempt || s.state != entities.CallStateConnecting {
		s.mu.Unlock()
		ctrl.Release()
		return ErrCallEnded
	}
	s.capture = ctrl
	s.mu.Unlock()

	tr, err := s.deps.Dialer.Dial(ctx)
	if err != nil {
		s.fail(attempt, "connect", msgConnectionError)
		logger.Error("Failed to connect to agent", zap.Error(err))
		return fmt.Errorf("connect to agent: %w", err)
	}

	s.mu.Lock()
	if s.attempt != attempt || s.state != entities.CallStateConnecting {
		s.mu.Unlock()
		tr.Close()
		return ErrCallEnded
	}

	queue := playback.NewQueue(s.output, s.deps.UnitTimeout, logger, s.metrics)
	reassembler := reassembly.New(s.deps.ReassemblyWindow, func(unit entities.AudioUnit) {
		s.noteUnit(attempt, unit)
		queue.Enqueue(unit)
	}, logger, reassembly.WithClock(s.clock), reassembly.WithMetrics(s.metrics))

	ctrl.Attach(tr)
	s.transport = tr
	s.queue = queue
	s.reassembler = reassembler
	s.state = entities.CallStateActive
	s.startedAt = s.clock.Now()
	s.turnCount = 0
	s.snapshot = entities.Metrics{}
	s.mu.Unlock()

	go s.readLoop(attempt, tr)

	s.metrics.CallsStarted.Inc()
	s.metrics.ActiveCalls.Inc()
	s.deps.Stats.RecordStat(ctx, entities.StatEvent{Type: entities.StatCallStarted})
	s.deps.UI.ShowCallState(entities.CallStateActive)
	s.deps.UI.ShowRecordingState(entities.RecordingStateNotRecording)
	s.deps.UI.NotifyUser(msgConnected, entities.SeveritySuccess)
	logger.Info("Call connected")
	return nil
}

// fail aborts a call attempt that never became active
func (s *CallSession) fail(attempt uint64, reason, message string) {
	s.metrics.CallsFailed.WithLabelValues(reason).Inc()
	if s.teardown(attempt) {
		s.deps.UI.NotifyUser(message, entities.SeverityError)
	}
}

// End closes the call. It is a no-op when no call is in progress.
func (s *CallSession) End() {
	s.mu.Lock()
	if s.state == entities.CallStateIdle || s.state == entities.CallStateEnding {
		s.mu.Unlock()
		return
	}
	attempt := s.attempt
	s.mu.Unlock()

	if s.teardown(attempt) {
		s.deps.UI.NotifyUser(msgCallEnded, entities.SeverityInfo)
	}
}

// teardown releases everything the attempt holds and returns to Idle.
// It reports whether this call performed the teardown.
func (s *CallSession) teardown(attempt uint64) bool {
	s.mu.Lock()
	if s.attempt != attempt || s.state == entities.CallStateIdle || s.state == entities.CallStateEnding {
		s.mu.Unlock()
		return false
	}
	s.state = entities.CallStateEnding
	tr, ctrl, reassembler, queue := s.transport, s.capture, s.reassembler, s.queue
	s.transport, s.capture, s.reassembler, s.queue = nil, nil, nil, nil
	startedAt := s.startedAt
	s.startedAt = time.Time{}
	callID := s.id
	s.mu.Unlock()

	s.deps.UI.ShowCallState(entities.CallStateEnding)

	if tr != nil {
		tr.Close()
	}
	if ctrl != nil {
		ctrl.Release()
	}
	if reassembler != nil {
		reassembler.Close()
	}
	if queue != nil {
		queue.Close()
	}

	s.mu.Lock()
	s.state = entities.CallStateIdle
	s.mu.Unlock()

	s.deps.UI.ShowRecordingState(entities.RecordingStateNotRecording)
	s.deps.UI.ShowCallState(entities.CallStateIdle)

	if !startedAt.IsZero() {
		duration := s.clock.Since(startedAt)
		s.metrics.ActiveCalls.Dec()
		s.metrics.CallDuration.Observe(duration.Seconds())
		s.deps.Stats.RecordStat(context.Background(), entities.StatEvent{
			Type:     entities.StatCallEnded,
			Duration: duration,
		})
		s.logger.Info("Call ended",
			zap.String("callID", callID),
			zap.Duration("duration", duration))
	}
	return true
}

// ToggleRecording starts a recording when none is in progress and stops it otherwise.
// It does nothing unless the call is active.
func (s *CallSession) ToggleRecording(ctx context.Context) error {
	ctrl := s.activeCapture()
	if ctrl == nil {
		return nil
	}
	if ctrl.Recording() {
		return s.stopRecording(ctx, ctrl)
	}
	return s.startRecording(ctx, ctrl)
}

// StartRecording begins a recording; it is a no-op while already recording or not active
func (s *CallSession) StartRecording(ctx context.Context) error {
	ctrl := s.activeCapture()
	if ctrl == nil {
		return nil
	}
	return s.startRecording(ctx, ctrl)
}

// StopRecording sends the current recording; it is a no-op while not recording
func (s *CallSession) StopRecording(ctx context.Context) error {
	ctrl := s.activeCapture()
	if ctrl == nil {
		return nil
	}
	return s.stopRecording(ctx, ctrl)
}

func (s *CallSession) activeCapture() *capture.Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != entities.CallStateActive {
		return nil
	}
	return s.capture
}

func (s *CallSession) startRecording(ctx context.Context, ctrl *capture.Controller) error {
	started, err := ctrl.StartRecording(ctx)
	if err != nil {
		s.logger.Error("Error starting recording", zap.Error(err))
		s.deps.UI.NotifyUser(msgRecordingError, entities.SeverityError)
		s.deps.UI.ShowRecordingState(entities.RecordingStateNotRecording)
		return err
	}
	if !started {
		return nil
	}

	s.mu.Lock()
	s.snapshot.AudioFormat = ctrl.Format()
	s.mu.Unlock()

	s.deps.UI.ShowRecordingState(entities.RecordingStateRecording)
	return nil
}

func (s *CallSession) stopRecording(ctx context.Context, ctrl *capture.Controller) error {
	if !ctrl.Recording() {
		return nil
	}
	s.deps.UI.ShowRecordingState(entities.RecordingStateNotRecording)

	if _, err := ctrl.StopRecording(ctx); err != nil {
		if errors.Is(err, entities.ErrCapture) {
			s.logger.Error("Error finalizing recording", zap.Error(err))
			s.deps.UI.NotifyUser(msgRecordingError, entities.SeverityError)
		} else {
			s.logger.Error("Error sending audio", zap.Error(err))
			s.deps.UI.NotifyUser(msgSendError, entities.SeverityError)
		}
		return err
	}
	return nil
}

// ClearConversation clears the rendered transcript
func (s *CallSession) ClearConversation() {
	s.deps.UI.ClearConversation()
}

// readLoop routes inbound frames until the transport ends
func (s *CallSession) readLoop(attempt uint64, tr repositories.Transport) {
	for frame := range tr.Frames() {
		switch frame.Kind {
		case entities.FrameMedia:
			s.handleMedia(attempt, frame.Data)
		case entities.FrameControl:
			s.handleControl(attempt, frame.Data)
		}
	}

	err := tr.Err()
	if !s.teardown(attempt) {
		return
	}
	if err != nil {
		s.metrics.CallsFailed.WithLabelValues("transport").Inc()
		s.logger.Error("Connection to agent lost", zap.Error(err))
		s.deps.UI.NotifyUser(msgConnectionError, entities.SeverityError)
		return
	}
	s.logger.Info("Agent closed the call")
}

func (s *CallSession) handleMedia(attempt uint64, data []byte) {
	s.mu.Lock()
	reassembler := s.reassembler
	current := s.attempt == attempt && s.state == entities.CallStateActive
	s.mu.Unlock()

	if current && reassembler != nil {
		reassembler.Push(data)
	}
}

// noteUnit records the chunk count of the latest sealed unit
func (s *CallSession) noteUnit(attempt uint64, unit entities.AudioUnit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempt == attempt {
		s.snapshot.AudioChunks = unit.Frames
	}
}

func (s *CallSession) handleControl(attempt uint64, payload []byte) {
	msg, err := domain.ParseControlMessage(payload)
	if err != nil {
		s.metrics.MalformedFrames.Inc()
		s.logger.Warn("Ignoring malformed control message", zap.Error(err))
		return
	}

	s.mu.Lock()
	if s.attempt != attempt || s.state != entities.CallStateActive {
		s.mu.Unlock()
		return
	}
	if msg.AgentReply != "" {
		s.turnCount++
		s.snapshot.TurnCount = s.turnCount
		s.snapshot.ResponseLength = utf8.RuneCountInString(msg.AgentReply)
	}
	if msg.Metrics != nil {
		s.snapshot.ApplyReport(*msg.Metrics)
	}
	snapshot := s.snapshot
	s.mu.Unlock()

	if msg.UserText != "" {
		s.metrics.TurnsRendered.WithLabelValues(string(entities.RoleUser)).Inc()
		s.deps.UI.RenderTurn(entities.RoleUser, msg.UserText)
	}
	if msg.AgentReply != "" {
		s.metrics.TurnsRendered.WithLabelValues(string(entities.RoleAgent)).Inc()
		s.deps.UI.RenderTurn(entities.RoleAgent, msg.AgentReply)
		s.deps.Stats.RecordStat(context.Background(), entities.StatEvent{Type: entities.StatReviewCollected})
	}
	if msg.Metrics != nil {
		s.metrics.ObserveAgentMetrics(snapshot)
	}
	if msg.AgentReply != "" || msg.Metrics != nil {
		s.deps.UI.ShowMetrics(snapshot)
	}
	if msg.Error != "" {
		s.logger.Warn("Agent reported an error", zap.String("error", msg.Error))
		s.deps.UI.NotifyUser("Error: "+msg.Error, entities.SeverityError)
	}
}
