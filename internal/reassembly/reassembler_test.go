package reassembly

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/satriahrh/voicecall/domain/entities"
	"github.com/satriahrh/voicecall/internal/metrics"
)

type unitCollector struct {
	mu    sync.Mutex
	units []entities.AudioUnit
}

func (c *unitCollector) sink(u entities.AudioUnit) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.units = append(c.units, u)
}

func (c *unitCollector) all() []entities.AudioUnit {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]entities.AudioUnit, len(c.units))
	copy(out, c.units)
	return out
}

func setupReassembler(t testing.TB) (*Reassembler, *clock.Mock, *unitCollector) {
	t.Helper()
	mock := clock.NewMock()
	collector := &unitCollector{}
	r := New(150*time.Millisecond, collector.sink, zap.NewNop(),
		WithClock(mock),
		WithMetrics(metrics.NewNop()))
	t.Cleanup(r.Close)
	return r, mock, collector
}

func waitUnits(t *testing.T, c *unitCollector, n int) []entities.AudioUnit {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(c.all()) == n
	}, time.Second, 5*time.Millisecond)
	return c.all()
}

func TestReassembler_BurstBecomesOneUnit(t *testing.T) {
	r, mock, collector := setupReassembler(t)

	r.Push(make([]byte, 10))
	mock.Add(30 * time.Millisecond)
	r.Push(make([]byte, 20))
	mock.Add(30 * time.Millisecond)
	r.Push(make([]byte, 15))

	mock.Add(149 * time.Millisecond)
	assert.Empty(t, collector.all(), "unit sealed before the window elapsed")

	mock.Add(time.Millisecond)
	units := waitUnits(t, collector, 1)

	assert.Equal(t, 45, units[0].Len())
	assert.Equal(t, 3, units[0].Frames)
	assert.Equal(t, uint64(1), units[0].Seq)
	assert.Equal(t, 0, r.Pending())
}

func TestReassembler_PreservesFrameOrder(t *testing.T) {
	r, mock, collector := setupReassembler(t)

	r.Push([]byte("ab"))
	r.Push([]byte("cd"))
	r.Push([]byte("e"))
	mock.Add(150 * time.Millisecond)

	units := waitUnits(t, collector, 1)
	assert.Equal(t, []byte("abcde"), units[0].Bytes())
}

func TestReassembler_GapSplitsUnits(t *testing.T) {
	r, mock, collector := setupReassembler(t)

	r.Push([]byte("first"))
	mock.Add(200 * time.Millisecond)
	waitUnits(t, collector, 1)

	r.Push([]byte("second"))
	mock.Add(200 * time.Millisecond)
	units := waitUnits(t, collector, 2)

	assert.Equal(t, []byte("first"), units[0].Bytes())
	assert.Equal(t, []byte("second"), units[1].Bytes())
	assert.Less(t, units[0].Seq, units[1].Seq)
}

func TestReassembler_CopiesPushedFrames(t *testing.T) {
	r, mock, collector := setupReassembler(t)

	frame := []byte("audio")
	r.Push(frame)
	frame[0] = 'X'
	mock.Add(150 * time.Millisecond)

	units := waitUnits(t, collector, 1)
	assert.Equal(t, []byte("audio"), units[0].Bytes())
}

func TestReassembler_NoFramesNoUnit(t *testing.T) {
	_, mock, collector := setupReassembler(t)

	mock.Add(time.Second)
	assert.Empty(t, collector.all())
}

func TestReassembler_StaleTimerIgnored(t *testing.T) {
	r, _, collector := setupReassembler(t)

	r.Push([]byte("a"))
	// A fire from a timer that was re-armed must not seal the accumulator.
	r.fire(0)
	assert.Empty(t, collector.all())
	assert.Equal(t, 1, r.Pending())
}

func TestReassembler_CloseDropsPending(t *testing.T) {
	r, mock, collector := setupReassembler(t)

	r.Push([]byte("pending"))
	r.Close()
	mock.Add(time.Second)

	assert.Empty(t, collector.all())
	assert.Equal(t, 0, r.Pending())

	r.Push([]byte("late"))
	mock.Add(time.Second)
	assert.Empty(t, collector.all())
	assert.Equal(t, 0, r.Pending())
}
