package usecase

import (
	"context"
	"errors"
	"sync"

	"github.com/satriahrh/voicecall/domain/entities"
	"github.com/satriahrh/voicecall/domain/repositories"
)

type fakeTransport struct {
	frames chan entities.InboundFrame
	done   chan struct{}

	mu     sync.Mutex
	open   bool
	err    error
	sent   [][]byte
	closes int
	once   sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		frames: make(chan entities.InboundFrame, 16),
		done:   make(chan struct{}),
		open:   true,
	}
}

func (t *fakeTransport) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}

func (t *fakeTransport) SendBinary(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open {
		return entities.ErrNotConnected
	}
	t.sent = append(t.sent, data)
	return nil
}

func (t *fakeTransport) Frames() <-chan entities.InboundFrame { return t.frames }
func (t *fakeTransport) Done() <-chan struct{}                { return t.done }

func (t *fakeTransport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	t.closes++
	t.mu.Unlock()
	t.end(nil)
	return nil
}

// end simulates the agent side going away
func (t *fakeTransport) end(err error) {
	t.once.Do(func() {
		t.mu.Lock()
		t.open = false
		t.err = err
		t.mu.Unlock()
		close(t.frames)
		close(t.done)
	})
}

func (t *fakeTransport) control(payload string) {
	t.frames <- entities.InboundFrame{Kind: entities.FrameControl, Data: []byte(payload)}
}

func (t *fakeTransport) media(data []byte) {
	t.frames <- entities.InboundFrame{Kind: entities.FrameMedia, Data: data}
}

func (t *fakeTransport) sentFrames() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.sent))
	copy(out, t.sent)
	return out
}

type fakeDialer struct {
	mu         sync.Mutex
	calls      int
	err        error
	gate       chan struct{}
	transports []*fakeTransport
}

func (d *fakeDialer) Dial(ctx context.Context) (repositories.Transport, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()

	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	tr := newFakeTransport()
	d.transports = append(d.transports, tr)
	return tr, nil
}

func (d *fakeDialer) dialCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *fakeDialer) last() *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.transports) == 0 {
		return nil
	}
	return d.transports[len(d.transports)-1]
}

type fakeStream struct {
	mu      sync.Mutex
	stopped bool
}

func (s *fakeStream) ID() string { return "mic-0" }

func (s *fakeStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

type fakeDevices struct {
	mu       sync.Mutex
	err      error
	requests int
	streams  []*fakeStream
}

func (d *fakeDevices) RequestMicrophone(ctx context.Context) (repositories.MicrophoneStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests++
	if d.err != nil {
		return nil, d.err
	}
	s := &fakeStream{}
	d.streams = append(d.streams, s)
	return s, nil
}

type allFormats struct{}

func (allFormats) IsTypeSupported(string) bool { return true }

// fakeRecorder delivers its payload when stopped
type fakeRecorder struct {
	payload []byte
	onChunk func([]byte)
}

func (r *fakeRecorder) Start(ctx context.Context, onChunk func([]byte)) error {
	r.onChunk = onChunk
	return nil
}

func (r *fakeRecorder) Stop(ctx context.Context) error {
	if len(r.payload) > 0 {
		r.onChunk(r.payload)
	}
	return nil
}

func (r *fakeRecorder) Abort() error { return nil }

type fakeRecorders struct {
	mu       sync.Mutex
	payload  []byte
	startErr error
	created  int
}

func (f *fakeRecorders) NewRecorder(stream repositories.MicrophoneStream, mimeType string) (repositories.Recorder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.created++
	return &fakeRecorder{payload: f.payload}, nil
}

func (f *fakeRecorders) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created
}

type fakeOutput struct {
	mu     sync.Mutex
	played [][]byte
}

func (o *fakeOutput) PlayDecoded(ctx context.Context, data []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.played = append(o.played, data)
	return nil
}

func (o *fakeOutput) PlayRaw(ctx context.Context, data []byte) error {
	return errors.New("unexpected raw playback")
}

func (o *fakeOutput) units() [][]byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([][]byte, len(o.played))
	copy(out, o.played)
	return out
}

type fakeOutputProvider struct {
	mu       sync.Mutex
	output   *fakeOutput
	acquired int
}

func (p *fakeOutputProvider) Acquire(ctx context.Context) (repositories.AudioOutput, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.acquired++
	return p.output, nil
}

type notification struct {
	message  string
	severity entities.Severity
}

type turn struct {
	role entities.Role
	text string
}

type fakeUI struct {
	mu            sync.Mutex
	notifications []notification
	turns         []turn
	metrics       []entities.Metrics
	states        []entities.CallState
	cleared       int
}

func (u *fakeUI) NotifyUser(message string, severity entities.Severity) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.notifications = append(u.notifications, notification{message, severity})
}

func (u *fakeUI) RenderTurn(role entities.Role, text string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.turns = append(u.turns, turn{role, text})
}

func (u *fakeUI) ShowMetrics(m entities.Metrics) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.metrics = append(u.metrics, m)
}

func (u *fakeUI) ShowCallState(state entities.CallState) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.states = append(u.states, state)
}

func (u *fakeUI) ShowRecordingState(entities.RecordingState) {}

func (u *fakeUI) ClearConversation() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.cleared++
}

func (u *fakeUI) lastNotification() notification {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.notifications) == 0 {
		return notification{}
	}
	return u.notifications[len(u.notifications)-1]
}

func (u *fakeUI) notified(message string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, n := range u.notifications {
		if n.message == message {
			return true
		}
	}
	return false
}

func (u *fakeUI) renderedTurns() []turn {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]turn, len(u.turns))
	copy(out, u.turns)
	return out
}

func (u *fakeUI) notificationCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.notifications)
}
