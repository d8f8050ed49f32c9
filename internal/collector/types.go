package collector

import (
	"io"
	"time"

	"github.com/0xmhha/txsubmit/internal/submitter"
)

// TxRecord is the reportable view of one submission.
type TxRecord struct {
	Signature   string
	Instruction string
	Outcome     submitter.Outcome
	Reason      submitter.FailureReason
	// ProgramError names the decoded program error, if any.
	ProgramError string
	Slot         uint64
	Commitment   submitter.Commitment
	DispatchedAt time.Time
	CompletedAt  time.Time
	Latency      time.Duration
	Diagnostic   string
	Error        string
}

// Metrics represents collected submission metrics
type Metrics struct {
	// Outcome counts
	TotalSubmitted  int
	TotalDispatched int
	TotalConfirmed  int
	TotalFailed     int
	TotalTimedOut   int
	Skipped         int

	// Failure breakdown
	NetworkRejected  int
	ProgramErrors    int
	SignatureInvalid int

	// Timing
	TotalDuration time.Duration
	AvgLatency    time.Duration
	MinLatency    time.Duration
	MaxLatency    time.Duration
	P50Latency    time.Duration
	P95Latency    time.Duration
	P99Latency    time.Duration

	// Throughput
	SendRate     float64
	ConfirmedTPS float64
	SuccessRate  float64
}

// Report is the final outcome of a run
type Report struct {
	Name      string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Metrics   *Metrics

	// LatencyHistogram buckets confirmed latencies by HistogramBuckets label.
	LatencyHistogram map[string]int

	// ErrorSummary counts failures by reason, or by program error name.
	ErrorSummary map[string]int

	Transactions []TxRecord
}

// Config holds collector configuration
type Config struct {
	// Name labels the report
	Name string

	// Output receives the printed summary; nil discards it
	Output io.Writer
}

// DefaultConfig returns default collector configuration
func DefaultConfig() *Config {
	return &Config{Name: "txsubmit"}
}

// HistogramBuckets are the latency histogram labels in display order.
var HistogramBuckets = []string{"<100ms", "100-500ms", "500ms-1s", "1-2s", "2-5s", ">5s"}
