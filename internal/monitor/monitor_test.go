package monitor

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/txsubmit/internal/submitter"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestMonitor() (*Monitor, *clock) {
	c := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	m := New(nil)
	m.now = c.Now
	m.Start()
	return m, c
}

func TestMonitor_Snapshot(t *testing.T) {
	m, c := newTestMonitor()

	c.Advance(time.Second)
	m.RecordDispatched()
	m.RecordDispatched()

	c.Advance(time.Second)
	m.Observe(&submitter.Result{Outcome: submitter.OutcomeConfirmed})
	m.Observe(&submitter.Result{Outcome: submitter.OutcomeFailed})
	m.Observe(&submitter.Result{Outcome: submitter.OutcomeTimedOut})

	s := m.Snapshot()
	assert.Equal(t, int64(2), s.TotalDispatched)
	assert.Equal(t, int64(1), s.TotalConfirmed)
	assert.Equal(t, int64(1), s.TotalFailed)
	assert.Equal(t, int64(1), s.TotalTimedOut)
	assert.Equal(t, 2*time.Second, s.Elapsed)
	assert.InDelta(t, 1.0, s.AvgRate, 1e-9)
	assert.InDelta(t, 1.0, s.CurrentRate, 1e-9)
	assert.InDelta(t, 0.5, s.ConfirmedTPS, 1e-9)
}

func TestMonitor_WindowDropsOldSamples(t *testing.T) {
	m, c := newTestMonitor()
	m.RecordDispatched()
	m.RecordDispatched()

	c.Advance(time.Minute)
	m.RecordDispatched()

	s := m.Snapshot()
	assert.Equal(t, int64(3), s.TotalDispatched)
	assert.Zero(t, s.CurrentRate)
	assert.Len(t, m.windowSamples, 1)
}

type gauge struct {
	mu    sync.Mutex
	calls int
}

func (g *gauge) SetSendRate(float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
}

func (g *gauge) SetConfirmedTPS(float64) {}

func TestMonitor_Display(t *testing.T) {
	g := &gauge{}
	m := New(&Config{UpdateInterval: 5 * time.Millisecond, WindowSize: time.Second}).WithGauge(g)
	m.Start()
	m.RecordDispatched()
	m.Observe(&submitter.Result{Outcome: submitter.OutcomeConfirmed})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var out bytes.Buffer
	m.Display(ctx, &out)

	require.Contains(t, out.String(), "Sent: 1 | Confirmed: 1 | Failed: 0 | Timed out: 0")
	g.mu.Lock()
	assert.Positive(t, g.calls)
	g.mu.Unlock()
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "5s", formatDuration(5*time.Second))
	assert.Equal(t, "2m3s", formatDuration(2*time.Minute+3*time.Second))
	assert.Equal(t, "1h0m1s", formatDuration(time.Hour+time.Second))
}
