package reassembly

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/satriahrh/voicecall/domain/entities"
	"github.com/satriahrh/voicecall/internal/metrics"
)

// DefaultWindow is the idle time after the last frame that seals a unit
const DefaultWindow = 150 * time.Millisecond

// Sink receives sealed units in seal order. It is called with the reassembler
// lock held and must not block.
type Sink func(unit entities.AudioUnit)

// Reassembler seals bursts of media frames into audio units
type Reassembler struct {
	window  time.Duration
	clock   clock.Clock
	sink    Sink
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	frames [][]byte
	timer  *clock.Timer
	gen    uint64
	seq    uint64
	closed bool
}

// Option configures a Reassembler
type Option func(*Reassembler)

// WithClock replaces the wall clock, mainly for tests
func WithClock(c clock.Clock) Option {
	return func(r *Reassembler) {
		r.clock = c
	}
}

// WithMetrics records sealed unit metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reassembler) {
		r.metrics = m
	}
}

// New creates a Reassembler that seals after window of inactivity
func New(window time.Duration, sink Sink, logger *zap.Logger, opts ...Option) *Reassembler {
	if window <= 0 {
		window = DefaultWindow
	}
	r := &Reassembler{
		window: window,
		clock:  clock.New(),
		sink:   sink,
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Push appends a media frame to the open accumulator and restarts the quiescence timer
func (r *Reassembler) Push(frame []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	buf := make([]byte, len(frame))
	copy(buf, frame)
	r.frames = append(r.frames, buf)

	if r.timer != nil {
		r.timer.Stop()
	}
	r.gen++
	gen := r.gen
	r.timer = r.clock.AfterFunc(r.window, func() {
		r.fire(gen)
	})

	r.logger.Debug("Buffered audio chunk",
		zap.Int("size", len(frame)),
		zap.Int("pendingChunks", len(r.frames)))
}

// fire seals the accumulator if gen is still the latest armed timer
func (r *Reassembler) fire(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || gen != r.gen {
		return
	}
	r.timer = nil
	if len(r.frames) == 0 {
		return
	}

	r.seq++
	unit := entities.NewAudioUnit(r.seq, r.frames, r.clock.Now())
	r.frames = nil

	if r.metrics != nil {
		r.metrics.UnitsSealed.Inc()
		r.metrics.UnitSize.Observe(float64(unit.Len()))
		r.metrics.FramesPerUnit.Observe(float64(unit.Frames))
	}
	r.logger.Debug("Sealed audio unit",
		zap.Uint64("seq", unit.Seq),
		zap.Int("chunks", unit.Frames),
		zap.Int("bytes", unit.Len()))

	if r.sink != nil {
		r.sink(unit)
	}
}

// Pending returns the number of frames in the open accumulator
func (r *Reassembler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

// Close stops the timer and drops the open accumulator without sealing it.
// Frames pushed after Close are ignored.
func (r *Reassembler) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	if n := len(r.frames); n > 0 {
		r.logger.Debug("Dropped unsealed audio chunks", zap.Int("chunks", n))
	}
	r.frames = nil
}
