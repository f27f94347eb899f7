// Package playback serializes sealed audio units onto the audio output.
package playback

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/voicecall/domain/entities"
	"github.com/satriahrh/voicecall/domain/repositories"
	"github.com/satriahrh/voicecall/internal/metrics"
)

// DefaultUnitTimeout bounds the playback of a single unit
const DefaultUnitTimeout = 2 * time.Minute

// Outcome labels reported to metrics
const (
	OutcomeDecoded   = "decoded"
	OutcomeRaw       = "raw"
	OutcomeFailed    = "failed"
	OutcomeTimeout   = "timeout"
	OutcomeCancelled = "cancelled"
	OutcomeSkipped   = "skipped"
)

// Queue plays units one at a time in enqueue order.
// A single consumer goroutine owns the audio output.
type Queue struct {
	output      repositories.AudioOutput
	unitTimeout time.Duration
	logger      *zap.Logger
	metrics     *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wake   chan struct{}
	done   chan struct{}

	mu      sync.Mutex
	pending []entities.AudioUnit
	playing bool
	closed  bool
}

// NewQueue starts the consumer loop on output
func NewQueue(output repositories.AudioOutput, unitTimeout time.Duration, logger *zap.Logger, m *metrics.Metrics) *Queue {
	if unitTimeout <= 0 {
		unitTimeout = DefaultUnitTimeout
	}
	if m == nil {
		m = metrics.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		output:      output,
		unitTimeout: unitTimeout,
		logger:      logger,
		metrics:     m,
		ctx:         ctx,
		cancel:      cancel,
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	go q.run()
	return q
}

// Enqueue appends unit to the pending list. It never blocks.
func (q *Queue) Enqueue(unit entities.AudioUnit) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.pending = append(q.pending, unit)
	q.metrics.QueueDepth.Set(float64(len(q.pending)))
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Len returns the number of units waiting behind the one playing
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Playing reports whether a unit is currently on the output
func (q *Queue) Playing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.playing
}

// Close cancels the unit in flight, drops pending units and waits for the consumer to exit
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	dropped := len(q.pending)
	q.pending = nil
	q.metrics.QueueDepth.Set(0)
	q.mu.Unlock()

	q.cancel()
	<-q.done

	if dropped > 0 {
		q.logger.Debug("Dropped queued audio units", zap.Int("units", dropped))
	}
}

func (q *Queue) run() {
	defer close(q.done)

	for {
		select {
		case <-q.ctx.Done():
			return
		case <-q.wake:
		}

		for {
			unit, ok := q.next()
			if !ok {
				break
			}
			q.play(unit)
			q.finish()
		}
	}
}

// next pops the head of the queue and marks it playing
func (q *Queue) next() (entities.AudioUnit, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || len(q.pending) == 0 {
		return entities.AudioUnit{}, false
	}
	unit := q.pending[0]
	q.pending[0] = entities.AudioUnit{}
	q.pending = q.pending[1:]
	q.playing = true
	q.metrics.QueueDepth.Set(float64(len(q.pending)))
	return unit, true
}

func (q *Queue) finish() {
	q.mu.Lock()
	q.playing = false
	q.mu.Unlock()
}

// play resolves for every exit path so the queue always advances
func (q *Queue) play(unit entities.AudioUnit) {
	logger := q.logger.With(zap.Uint64("seq", unit.Seq), zap.Int("bytes", unit.Len()))

	if unit.IsEmpty() {
		q.metrics.UnitsPlayed.WithLabelValues(OutcomeSkipped).Inc()
		return
	}

	ctx, cancel := context.WithTimeout(q.ctx, q.unitTimeout)
	defer cancel()

	start := time.Now()
	data := unit.Bytes()
	outcome := OutcomeDecoded

	err := q.output.PlayDecoded(ctx, data)
	if errors.Is(err, entities.ErrDecode) && ctx.Err() == nil {
		logger.Debug("Decode failed, using raw playback", zap.Error(err))
		outcome = OutcomeRaw
		err = q.output.PlayRaw(ctx, data)
	}

	switch {
	case err == nil:
	case q.ctx.Err() != nil:
		outcome = OutcomeCancelled
		logger.Debug("Playback cancelled")
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		outcome = OutcomeTimeout
		logger.Warn("Playback timed out", zap.Duration("timeout", q.unitTimeout))
	default:
		outcome = OutcomeFailed
		logger.Error("Audio playback failed", zap.Error(err))
	}

	q.metrics.UnitsPlayed.WithLabelValues(outcome).Inc()
	q.metrics.PlaybackDuration.Observe(time.Since(start).Seconds())
}
