package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/0xmhha/txsubmit/internal/submitter"
)

// Metrics holds all Prometheus metrics for txsubmit. It implements
// submitter.Recorder.
type Metrics struct {
	// Submission counters
	TxDispatched prometheus.Counter
	TxOutcomes   *prometheus.CounterVec
	TxFailures   *prometheus.CounterVec

	// Dispatch to terminal status, confirmed submissions only
	TxLatency prometheus.Histogram

	// Gauges for current state
	PendingTxCount prometheus.Gauge
	SendRate       prometheus.Gauge
	ConfirmedTPS   prometheus.Gauge

	// Pipeline stage duration histogram
	StageDuration *prometheus.HistogramVec

	gatherer prometheus.Gatherer
	logger   *zap.Logger

	// HTTP server
	server   *http.Server
	listener net.Listener
	mu       sync.Mutex
}

var _ submitter.Recorder = (*Metrics)(nil)

// NewMetrics registers the metrics on reg. A nil registry uses the process
// default registry.
func NewMetrics(namespace string, reg *prometheus.Registry, logger *zap.Logger) *Metrics {
	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if reg != nil {
		registerer, gatherer = reg, reg
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(registerer)

	return &Metrics{
		TxDispatched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tx_dispatched_total",
			Help:      "Total number of transactions accepted by the endpoint",
		}),
		TxOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tx_outcomes_total",
			Help:      "Submissions by terminal outcome",
		}, []string{"outcome"}),
		TxFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tx_failures_total",
			Help:      "Failed submissions by reason",
		}, []string{"reason"}),
		TxLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tx_latency_seconds",
			Help:      "Transaction confirmation latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		PendingTxCount: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_tx_count",
			Help:      "Number of submissions without a terminal outcome",
		}),
		SendRate: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "send_rate",
			Help:      "Dispatch rate of the last run in transactions per second",
		}),
		ConfirmedTPS: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "confirmed_tps",
			Help:      "Confirmed transactions per second of the last run",
		}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}, []string{"stage"}),
		gatherer: gatherer,
		logger:   logger,
	}
}

// Start serves /metrics on port. Port 0 picks a free port; see Addr.
func (m *Metrics) Start(_ context.Context, port int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.server != nil {
		return fmt.Errorf("metrics server already running")
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("metrics listen: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))

	m.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	m.listener = ln

	server := m.server
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("metrics server error", zap.Error(err))
		}
	}()

	return nil
}

// Addr returns the listening address while the server runs.
func (m *Metrics) Addr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

// Stop stops the HTTP server gracefully
func (m *Metrics) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.server == nil {
		return nil
	}

	err := m.server.Shutdown(ctx)
	m.server = nil
	m.listener = nil
	return err
}

// RecordDispatched increments the dispatched counter
func (m *Metrics) RecordDispatched() {
	m.TxDispatched.Inc()
}

// RecordResult counts the outcome and, for confirmations, the latency.
func (m *Metrics) RecordResult(res *submitter.Result) {
	m.TxOutcomes.WithLabelValues(res.Outcome.String()).Inc()
	switch res.Outcome {
	case submitter.OutcomeConfirmed:
		m.TxLatency.Observe(res.Latency().Seconds())
	case submitter.OutcomeFailed:
		m.TxFailures.WithLabelValues(string(res.Reason)).Inc()
	}
}

func (m *Metrics) SetPendingCount(count int) {
	m.PendingTxCount.Set(float64(count))
}

func (m *Metrics) SetSendRate(rate float64) {
	m.SendRate.Set(rate)
}

func (m *Metrics) SetConfirmedTPS(tps float64) {
	m.ConfirmedTPS.Set(tps)
}

// RecordStageDuration records the duration of a pipeline stage
func (m *Metrics) RecordStageDuration(stage string, duration time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// IsRunning returns true if the metrics server is running
func (m *Metrics) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.server != nil
}
