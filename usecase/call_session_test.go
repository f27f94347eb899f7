package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/satriahrh/voicecall/adapters"
	"github.com/satriahrh/voicecall/domain/entities"
)

const testWindow = 150 * time.Millisecond

type sessionHarness struct {
	session   *CallSession
	clock     *clock.Mock
	dialer    *fakeDialer
	devices   *fakeDevices
	recorders *fakeRecorders
	output    *fakeOutput
	provider  *fakeOutputProvider
	ui        *fakeUI
	stats     *StatsService
}

func setupSession(t *testing.T) *sessionHarness {
	t.Helper()
	h := &sessionHarness{
		clock:     clock.NewMock(),
		dialer:    &fakeDialer{},
		devices:   &fakeDevices{},
		recorders: &fakeRecorders{payload: []byte("encoded-audio")},
		output:    &fakeOutput{},
		ui:        &fakeUI{},
	}
	h.provider = &fakeOutputProvider{output: h.output}
	h.stats = NewStatsService(adapters.NewMemoryStatsRepository(), zap.NewNop())

	h.session = NewCallSession(CallSessionDeps{
		Dialer:           h.dialer,
		Devices:          h.devices,
		Encoders:         allFormats{},
		Recorders:        h.recorders,
		Output:           h.provider,
		UI:               h.ui,
		Stats:            h.stats,
		Formats:          []string{"audio/webm;codecs=opus", ""},
		ReassemblyWindow: testWindow,
		UnitTimeout:      time.Second,
		Clock:            h.clock,
		Logger:           zap.NewNop(),
	})
	t.Cleanup(h.session.End)
	return h
}

func (h *sessionHarness) start(t *testing.T) *fakeTransport {
	t.Helper()
	require.NoError(t, h.session.Start(context.Background()))
	require.Equal(t, entities.CallStateActive, h.session.State())
	return h.dialer.last()
}

func TestCallSession_StartConnects(t *testing.T) {
	h := setupSession(t)

	h.start(t)

	assert.NotEmpty(t, h.session.ID())
	assert.True(t, h.ui.notified(msgConnecting))
	assert.Equal(t, notification{msgConnected, entities.SeveritySuccess}, h.ui.lastNotification())
	assert.Equal(t, 1, h.stats.Stats().TotalCalls)
	assert.Equal(t, 0, h.session.TurnCount())
}

func TestCallSession_StartWhileActive(t *testing.T) {
	h := setupSession(t)
	h.start(t)

	err := h.session.Start(context.Background())
	assert.ErrorIs(t, err, ErrCallInProgress)
	assert.Equal(t, entities.CallStateActive, h.session.State())
}

func TestCallSession_AudioOutputAcquiredOnce(t *testing.T) {
	h := setupSession(t)

	h.start(t)
	h.session.End()
	h.start(t)

	assert.Equal(t, 1, h.provider.acquired)
	assert.Equal(t, 2, h.devices.requests)
	assert.Equal(t, 2, h.stats.Stats().TotalCalls)
}

func TestCallSession_PermissionDeniedStaysIdle(t *testing.T) {
	h := setupSession(t)
	h.devices.err = &entities.PermissionError{}

	err := h.session.Start(context.Background())
	assert.ErrorIs(t, err, entities.ErrPermissionDenied)
	assert.Equal(t, entities.CallStateIdle, h.session.State())
	assert.Equal(t, notification{msgPermissionDenied, entities.SeverityError}, h.ui.lastNotification())
	assert.Nil(t, h.dialer.last(), "dialed without a microphone")
	assert.Equal(t, 0, h.stats.Stats().TotalCalls)
}

func TestCallSession_DialFailureReturnsToIdle(t *testing.T) {
	h := setupSession(t)
	h.dialer.err = errors.New("connection refused")

	err := h.session.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, entities.CallStateIdle, h.session.State())
	assert.Equal(t, notification{msgConnectionError, entities.SeverityError}, h.ui.lastNotification())

	h.devices.mu.Lock()
	stream := h.devices.streams[0]
	h.devices.mu.Unlock()
	assert.True(t, stream.stopped, "microphone left open after failed connect")
}

func TestCallSession_EndWhileConnecting(t *testing.T) {
	h := setupSession(t)
	h.dialer.gate = make(chan struct{})

	result := make(chan error, 1)
	go func() {
		result <- h.session.Start(context.Background())
	}()

	require.Eventually(t, func() bool {
		return h.dialer.dialCalls() == 1
	}, time.Second, time.Millisecond)

	h.session.End()
	assert.Equal(t, entities.CallStateIdle, h.session.State())
	close(h.dialer.gate)

	assert.ErrorIs(t, <-result, ErrCallEnded)
	assert.Equal(t, entities.CallStateIdle, h.session.State())
	tr := h.dialer.last()
	require.NotNil(t, tr)
	assert.False(t, tr.IsOpen(), "late transport left open")
}

func TestCallSession_AgentReplyRendersTurnAndCountsReview(t *testing.T) {
	h := setupSession(t)
	tr := h.start(t)

	tr.control(`{"agent_reply": "Thanks for your feedback!"}`)

	require.Eventually(t, func() bool { return len(h.ui.renderedTurns()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []turn{{entities.RoleAgent, "Thanks for your feedback!"}}, h.ui.renderedTurns())
	assert.Equal(t, 1, h.stats.Stats().ReviewsCollected)
	assert.Equal(t, 1, h.session.TurnCount())
	assert.Equal(t, 25, h.session.Metrics().ResponseLength)
}

func TestCallSession_UserAndAgentTurnsInOrder(t *testing.T) {
	h := setupSession(t)
	tr := h.start(t)

	tr.control(`{"user_text": "The product was great", "agent_reply": "Glad to hear it"}`)

	require.Eventually(t, func() bool { return len(h.ui.renderedTurns()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []turn{
		{entities.RoleUser, "The product was great"},
		{entities.RoleAgent, "Glad to hear it"},
	}, h.ui.renderedTurns())
}

func TestCallSession_ErrorOnlyMessageNotifies(t *testing.T) {
	h := setupSession(t)
	tr := h.start(t)
	before := h.stats.Stats()

	tr.control(`{"error": "rate limited"}`)

	require.Eventually(t, func() bool {
		return h.ui.lastNotification() == notification{"Error: rate limited", entities.SeverityError}
	}, time.Second, time.Millisecond)
	assert.Empty(t, h.ui.renderedTurns())
	assert.Equal(t, before, h.stats.Stats())
	assert.Equal(t, 0, h.session.TurnCount())
	assert.Equal(t, entities.CallStateActive, h.session.State())
}

func TestCallSession_MalformedControlIsIgnored(t *testing.T) {
	h := setupSession(t)
	tr := h.start(t)
	notifications := h.ui.notificationCount()

	tr.control(`{"agent_reply": `)
	tr.control(`{"agent_reply": 42}`)
	tr.control(`{"user_text": "still here"}`)

	require.Eventually(t, func() bool { return len(h.ui.renderedTurns()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, entities.RoleUser, h.ui.renderedTurns()[0].role)
	assert.Equal(t, notifications, h.ui.notificationCount())
	assert.Equal(t, 0, h.stats.Stats().ReviewsCollected)
	assert.Equal(t, entities.CallStateActive, h.session.State())
}

func TestCallSession_MetricsOverwriteSnapshot(t *testing.T) {
	h := setupSession(t)
	tr := h.start(t)

	tr.control(`{"metrics": {"stt_total_time": 900, "llm_time": 700, "tts_time": 400, "efficiency_ratio": 0.6, "audio_duration": 3.5}}`)
	require.Eventually(t, func() bool { return h.session.Metrics().TotalResponseTime == 2000 }, time.Second, time.Millisecond)

	tr.control(`{"metrics": {"llm_time": 100}}`)
	require.Eventually(t, func() bool { return h.session.Metrics().TotalResponseTime == 100 }, time.Second, time.Millisecond)

	m := h.session.Metrics()
	assert.Zero(t, m.STTTime)
	assert.Zero(t, m.EfficiencyRatio)
	assert.Equal(t, 3.5, m.AudioLength)
}

func TestCallSession_MediaBurstPlaysAsOneUnit(t *testing.T) {
	h := setupSession(t)
	tr := h.start(t)

	tr.media(make([]byte, 10))
	tr.media(make([]byte, 20))
	tr.media(make([]byte, 15))

	// all three frames must reach the reassembler before the window starts counting
	require.Eventually(t, func() bool {
		h.session.mu.Lock()
		defer h.session.mu.Unlock()
		return h.session.reassembler != nil && h.session.reassembler.Pending() == 3
	}, time.Second, time.Millisecond)

	h.clock.Add(testWindow)

	require.Eventually(t, func() bool { return len(h.output.units()) == 1 }, time.Second, time.Millisecond)
	assert.Len(t, h.output.units()[0], 45)
	assert.Equal(t, 3, h.session.Metrics().AudioChunks)
}

func TestCallSession_ToggleRecordingSendsOneFrame(t *testing.T) {
	h := setupSession(t)
	tr := h.start(t)
	ctx := context.Background()

	require.NoError(t, h.session.ToggleRecording(ctx))
	assert.True(t, h.session.Recording())
	assert.Equal(t, "audio/webm;codecs=opus", h.session.Metrics().AudioFormat)

	require.NoError(t, h.session.ToggleRecording(ctx))
	assert.False(t, h.session.Recording())
	assert.Equal(t, [][]byte{[]byte("encoded-audio")}, tr.sentFrames())
}

func TestCallSession_StartStopAreIdempotent(t *testing.T) {
	h := setupSession(t)
	tr := h.start(t)
	ctx := context.Background()

	require.NoError(t, h.session.StartRecording(ctx))
	require.NoError(t, h.session.StartRecording(ctx))
	assert.Equal(t, 1, h.recorders.count())

	require.NoError(t, h.session.StopRecording(ctx))
	require.NoError(t, h.session.StopRecording(ctx))
	assert.Len(t, tr.sentFrames(), 1)
}

func TestCallSession_RecordingIgnoredWhenIdle(t *testing.T) {
	h := setupSession(t)

	require.NoError(t, h.session.ToggleRecording(context.Background()))
	assert.False(t, h.session.Recording())
	assert.Equal(t, 0, h.recorders.count())
}

func TestCallSession_RecordingErrorKeepsCallActive(t *testing.T) {
	h := setupSession(t)
	h.start(t)
	h.recorders.startErr = errors.New("device busy")

	err := h.session.ToggleRecording(context.Background())
	assert.ErrorIs(t, err, entities.ErrCapture)
	assert.False(t, h.session.Recording())
	assert.Equal(t, entities.CallStateActive, h.session.State())
	assert.Equal(t, notification{msgRecordingError, entities.SeverityError}, h.ui.lastNotification())
}

func TestCallSession_EndDuringRecordingSendsNothing(t *testing.T) {
	h := setupSession(t)
	tr := h.start(t)

	require.NoError(t, h.session.StartRecording(context.Background()))
	h.session.End()

	assert.Equal(t, entities.CallStateIdle, h.session.State())
	assert.False(t, h.session.Recording())
	assert.Empty(t, tr.sentFrames())
	assert.False(t, tr.IsOpen())

	require.NoError(t, h.session.StopRecording(context.Background()))
	assert.Empty(t, tr.sentFrames())
}

func TestCallSession_EndRecordsDuration(t *testing.T) {
	h := setupSession(t)
	h.start(t)

	h.clock.Add(90 * time.Second)
	h.session.End()

	stats := h.stats.Stats()
	assert.Equal(t, int64(90000), stats.TotalCallDuration)
	assert.Equal(t, 90*time.Second, h.stats.AverageCallDuration())
	assert.Equal(t, notification{msgCallEnded, entities.SeverityInfo}, h.ui.lastNotification())
}

func TestCallSession_EndIsIdempotent(t *testing.T) {
	h := setupSession(t)
	tr := h.start(t)

	h.session.End()
	h.session.End()

	assert.Equal(t, 1, tr.closes)
	assert.Equal(t, entities.CallStateIdle, h.session.State())
	calls := 0
	h.ui.mu.Lock()
	for _, n := range h.ui.notifications {
		if n.message == msgCallEnded {
			calls++
		}
	}
	h.ui.mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestCallSession_EndDropsUnsealedAudio(t *testing.T) {
	h := setupSession(t)
	tr := h.start(t)

	tr.media([]byte("partial"))
	require.Eventually(t, func() bool {
		h.session.mu.Lock()
		defer h.session.mu.Unlock()
		return h.session.reassembler != nil && h.session.reassembler.Pending() == 1
	}, time.Second, time.Millisecond)

	h.session.End()
	h.clock.Add(time.Second)

	assert.Empty(t, h.output.units())
}

func TestCallSession_TransportErrorTearsDown(t *testing.T) {
	h := setupSession(t)
	tr := h.start(t)

	require.NoError(t, h.session.StartRecording(context.Background()))
	tr.end(errors.New("connection reset"))

	require.Eventually(t, func() bool { return h.session.State() == entities.CallStateIdle }, time.Second, time.Millisecond)
	assert.False(t, h.session.Recording())
	assert.Equal(t, notification{msgConnectionError, entities.SeverityError}, h.ui.lastNotification())

	h.devices.mu.Lock()
	stream := h.devices.streams[0]
	h.devices.mu.Unlock()
	assert.True(t, stream.stopped)

	// a new call can be placed after the failure
	h.start(t)
}

func TestCallSession_AgentCloseTearsDownQuietly(t *testing.T) {
	h := setupSession(t)
	tr := h.start(t)
	notifications := h.ui.notificationCount()

	tr.end(nil)

	require.Eventually(t, func() bool { return h.session.State() == entities.CallStateIdle }, time.Second, time.Millisecond)
	assert.Equal(t, notifications, h.ui.notificationCount())
}

func TestCallSession_ClearConversation(t *testing.T) {
	h := setupSession(t)

	h.session.ClearConversation()
	assert.Equal(t, 1, h.ui.cleared)
}
