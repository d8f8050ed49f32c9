// Package monitor tracks live submission throughput over a rolling window.
package monitor

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/0xmhha/txsubmit/internal/submitter"
)

// Config holds configuration for the monitor
type Config struct {
	UpdateInterval time.Duration // How often to update display
	WindowSize     time.Duration // Rolling window for current rates
}

// DefaultConfig returns default monitor configuration
func DefaultConfig() *Config {
	return &Config{
		UpdateInterval: time.Second,
		WindowSize:     10 * time.Second,
	}
}

// RateGauge receives the rates computed on every display tick.
type RateGauge interface {
	SetSendRate(rate float64)
	SetConfirmedTPS(tps float64)
}

type sample struct {
	timestamp  time.Time
	dispatched int64
	confirmed  int64
}

// Monitor counts dispatched and completed submissions and derives rates.
type Monitor struct {
	config *Config
	gauge  RateGauge
	now    func() time.Time

	dispatched atomic.Int64
	confirmed  atomic.Int64
	failed     atomic.Int64
	timedOut   atomic.Int64

	startTime time.Time

	sampleMu      sync.Mutex
	windowSamples []sample
}

// Snapshot represents a point-in-time view of the counters
type Snapshot struct {
	TotalDispatched int64
	TotalConfirmed  int64
	TotalFailed     int64
	TotalTimedOut   int64
	CurrentRate     float64 // dispatched per second in the window
	AvgRate         float64 // dispatched per second since start
	ConfirmedTPS    float64 // confirmed per second in the window
	Elapsed         time.Duration
}

// New creates a new Monitor instance
func New(config *Config) *Monitor {
	if config == nil {
		config = DefaultConfig()
	}
	return &Monitor{
		config:        config,
		now:           time.Now,
		windowSamples: make([]sample, 0, 64),
	}
}

// WithGauge publishes the window rates to g on every display tick.
func (m *Monitor) WithGauge(g RateGauge) *Monitor {
	m.gauge = g
	return m
}

// Start initializes the monitor with start time
func (m *Monitor) Start() {
	m.startTime = m.now()
	m.recordSample()
}

// RecordDispatched counts one transaction accepted by the node.
func (m *Monitor) RecordDispatched() {
	m.dispatched.Add(1)
	m.recordSample()
}

// Observe counts a terminal result.
func (m *Monitor) Observe(res *submitter.Result) {
	switch res.Outcome {
	case submitter.OutcomeConfirmed:
		m.confirmed.Add(1)
	case submitter.OutcomeTimedOut:
		m.timedOut.Add(1)
	default:
		m.failed.Add(1)
	}
	m.recordSample()
}

func (m *Monitor) recordSample() {
	m.sampleMu.Lock()
	defer m.sampleMu.Unlock()

	now := m.now()
	m.windowSamples = append(m.windowSamples, sample{
		timestamp:  now,
		dispatched: m.dispatched.Load(),
		confirmed:  m.confirmed.Load(),
	})

	cutoff := now.Add(-m.config.WindowSize)
	drop := 0
	for drop < len(m.windowSamples)-1 && !m.windowSamples[drop].timestamp.After(cutoff) {
		drop++
	}
	if drop > 0 {
		m.windowSamples = append(m.windowSamples[:0], m.windowSamples[drop:]...)
	}
}

// Snapshot returns current metrics snapshot
func (m *Monitor) Snapshot() *Snapshot {
	now := m.now()
	s := &Snapshot{
		TotalDispatched: m.dispatched.Load(),
		TotalConfirmed:  m.confirmed.Load(),
		TotalFailed:     m.failed.Load(),
		TotalTimedOut:   m.timedOut.Load(),
		Elapsed:         now.Sub(m.startTime),
	}
	if secs := s.Elapsed.Seconds(); secs > 0 {
		s.AvgRate = float64(s.TotalDispatched) / secs
	}

	m.sampleMu.Lock()
	if len(m.windowSamples) >= 2 {
		first := m.windowSamples[0]
		last := m.windowSamples[len(m.windowSamples)-1]
		if secs := last.timestamp.Sub(first.timestamp).Seconds(); secs > 0 {
			s.CurrentRate = float64(last.dispatched-first.dispatched) / secs
			s.ConfirmedTPS = float64(last.confirmed-first.confirmed) / secs
		}
	}
	m.sampleMu.Unlock()

	return s
}

// DisplayLine returns a formatted single-line status
func (m *Monitor) DisplayLine() string {
	s := m.Snapshot()
	return fmt.Sprintf("Sent: %d | Confirmed: %d | Failed: %d | Timed out: %d | Rate: %.1f/s | Confirmed TPS: %.1f | Elapsed: %s",
		s.TotalDispatched, s.TotalConfirmed, s.TotalFailed, s.TotalTimedOut, s.CurrentRate, s.ConfirmedTPS, formatDuration(s.Elapsed))
}

// Display rewrites the status line on w every UpdateInterval until ctx ends.
func (m *Monitor) Display(ctx context.Context, w io.Writer) {
	ticker := time.NewTicker(m.config.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(w, "\r%s\n", m.DisplayLine())
			return
		case <-ticker.C:
			if m.gauge != nil {
				s := m.Snapshot()
				m.gauge.SetSendRate(s.CurrentRate)
				m.gauge.SetConfirmedTPS(s.ConfirmedTPS)
			}
			fmt.Fprintf(w, "\r%s", m.DisplayLine())
		}
	}
}

func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
