package collector

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/0xmhha/txsubmit/internal/program"
	"github.com/0xmhha/txsubmit/internal/submitter"
)

// Collector gathers submission results and turns them into a Report.
// Record may be called from multiple goroutines.
type Collector struct {
	config *Config

	mu        sync.Mutex
	results   []*submitter.Result
	skipped   int
	startTime time.Time
}

// NewCollector creates a new Collector
func NewCollector(cfg *Config) *Collector {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Collector{
		config:    cfg,
		startTime: time.Now(),
	}
}

// Start marks the beginning of the measured window.
func (c *Collector) Start() {
	c.mu.Lock()
	c.startTime = time.Now()
	c.mu.Unlock()
}

// Record adds results. Nil entries are ignored.
func (c *Collector) Record(results ...*submitter.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range results {
		if r != nil {
			c.results = append(c.results, r)
		}
	}
}

// AddSkipped counts submissions that were never started.
func (c *Collector) AddSkipped(n int) {
	c.mu.Lock()
	c.skipped += n
	c.mu.Unlock()
}

// Count returns the number of recorded results.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}

// Reset drops every recorded result.
func (c *Collector) Reset() {
	c.mu.Lock()
	c.results = nil
	c.skipped = 0
	c.startTime = time.Now()
	c.mu.Unlock()
}

// Report builds the report for everything recorded so far.
func (c *Collector) Report() *Report {
	c.mu.Lock()
	results := make([]*submitter.Result, len(c.results))
	copy(results, c.results)
	skipped := c.skipped
	start := c.startTime
	c.mu.Unlock()

	return BuildReport(c.config.Name, results, skipped, start, time.Now())
}

// BuildReport aggregates results observed between start and end.
func BuildReport(name string, results []*submitter.Result, skipped int, start, end time.Time) *Report {
	report := &Report{
		Name:             name,
		StartTime:        start,
		EndTime:          end,
		Duration:         end.Sub(start),
		Metrics:          &Metrics{TotalSubmitted: len(results), Skipped: skipped},
		LatencyHistogram: make(map[string]int),
		ErrorSummary:     make(map[string]int),
		Transactions:     make([]TxRecord, 0, len(results)),
	}
	m := report.Metrics
	m.TotalDuration = report.Duration

	var latencies []time.Duration
	for _, r := range results {
		rec := newTxRecord(r)
		report.Transactions = append(report.Transactions, rec)

		if !r.DispatchAt.IsZero() {
			m.TotalDispatched++
		}

		switch r.Outcome {
		case submitter.OutcomeConfirmed:
			m.TotalConfirmed++
			latencies = append(latencies, rec.Latency)
		case submitter.OutcomeTimedOut:
			m.TotalTimedOut++
			report.ErrorSummary["timed-out"]++
		case submitter.OutcomeFailed:
			m.TotalFailed++
			switch r.Reason {
			case submitter.ReasonNetworkRejected:
				m.NetworkRejected++
			case submitter.ReasonProgramError:
				m.ProgramErrors++
			case submitter.ReasonSignatureInvalid:
				m.SignatureInvalid++
			}
			report.ErrorSummary[errorKey(rec)]++
		}
	}

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		m.AvgLatency = averageLatency(latencies)
		m.MinLatency = latencies[0]
		m.MaxLatency = latencies[len(latencies)-1]
		m.P50Latency = percentile(latencies, 50)
		m.P95Latency = percentile(latencies, 95)
		m.P99Latency = percentile(latencies, 99)
		report.LatencyHistogram = buildLatencyHistogram(latencies)
	}

	if m.TotalSubmitted > 0 {
		m.SuccessRate = float64(m.TotalConfirmed) / float64(m.TotalSubmitted) * 100
	}
	if secs := report.Duration.Seconds(); secs > 0 {
		m.SendRate = float64(m.TotalDispatched) / secs
		m.ConfirmedTPS = float64(m.TotalConfirmed) / secs
	}

	return report
}

func newTxRecord(r *submitter.Result) TxRecord {
	rec := TxRecord{
		Instruction:  r.Instruction,
		Outcome:      r.Outcome,
		Reason:       r.Reason,
		Slot:         r.Slot,
		Commitment:   r.Commitment,
		DispatchedAt: r.DispatchAt,
		CompletedAt:  r.CompletedAt,
		Latency:      r.Latency(),
		Diagnostic:   r.Diagnostic,
	}
	if r.Signed() {
		rec.Signature = r.Signature.String()
	}
	if err := r.Err(); err != nil {
		rec.Error = err.Error()
	}
	if r.Reason == submitter.ReasonProgramError {
		if pe, ok := program.ErrorFromDiagnostic(r.Diagnostic); ok {
			rec.ProgramError = pe.Name
		}
	}
	return rec
}

func errorKey(rec TxRecord) string {
	if rec.ProgramError != "" {
		return fmt.Sprintf("%s: %s", rec.Reason, rec.ProgramError)
	}
	return string(rec.Reason)
}

func averageLatency(latencies []time.Duration) time.Duration {
	var total time.Duration
	for _, l := range latencies {
		total += l
	}
	return total / time.Duration(len(latencies))
}

// percentile expects sorted input.
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := (len(sorted) - 1) * p / 100
	return sorted[idx]
}

func buildLatencyHistogram(latencies []time.Duration) map[string]int {
	histogram := make(map[string]int)
	limits := []time.Duration{
		100 * time.Millisecond,
		500 * time.Millisecond,
		time.Second,
		2 * time.Second,
		5 * time.Second,
	}

	for _, l := range latencies {
		label := HistogramBuckets[len(HistogramBuckets)-1]
		for i, max := range limits {
			if l < max {
				label = HistogramBuckets[i]
				break
			}
		}
		histogram[label]++
	}
	return histogram
}

// PrintSummary writes the report to the configured output.
func (c *Collector) PrintSummary(report *Report) {
	if c.config.Output == nil {
		return
	}
	PrintSummary(c.config.Output, report)
}

// PrintSummary writes report to w as tables.
func PrintSummary(w io.Writer, report *Report) {
	m := report.Metrics
	fmt.Fprintf(w, "\nSubmission Summary: %s\n\n", report.Name)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Metric", "Value"})
	table.SetBorder(true)
	table.AppendBulk([][]string{
		{"Submitted", fmt.Sprintf("%d", m.TotalSubmitted)},
		{"Dispatched", fmt.Sprintf("%d", m.TotalDispatched)},
		{"Confirmed", fmt.Sprintf("%d (%.2f%%)", m.TotalConfirmed, m.SuccessRate)},
		{"Failed", fmt.Sprintf("%d", m.TotalFailed)},
		{"Timed Out", fmt.Sprintf("%d", m.TotalTimedOut)},
		{"Skipped", fmt.Sprintf("%d", m.Skipped)},
		{"Duration", report.Duration.Round(time.Millisecond).String()},
		{"Send Rate", fmt.Sprintf("%.2f tx/s", m.SendRate)},
		{"Confirmed TPS", fmt.Sprintf("%.2f tx/s", m.ConfirmedTPS)},
	})
	if m.TotalConfirmed > 0 {
		table.AppendBulk([][]string{
			{"Latency Avg", m.AvgLatency.String()},
			{"Latency Min", m.MinLatency.String()},
			{"Latency Max", m.MaxLatency.String()},
			{"Latency P50", m.P50Latency.String()},
			{"Latency P95", m.P95Latency.String()},
			{"Latency P99", m.P99Latency.String()},
		})
	}
	table.Render()

	if len(report.Transactions) > 0 {
		fmt.Fprintln(w)
		txTable := tablewriter.NewWriter(w)
		txTable.SetHeader([]string{"Instruction", "Signature", "Outcome", "Slot", "Commitment", "Latency", "Detail"})
		txTable.SetAutoWrapText(false)
		for _, tx := range report.Transactions {
			detail := string(tx.Reason)
			if tx.ProgramError != "" {
				detail = tx.ProgramError
			}
			slot := "-"
			if tx.Slot > 0 {
				slot = fmt.Sprintf("%d", tx.Slot)
			}
			txTable.Append([]string{
				tx.Instruction,
				shorten(tx.Signature, 20),
				tx.Outcome.String(),
				slot,
				string(tx.Commitment),
				tx.Latency.Round(time.Millisecond).String(),
				detail,
			})
		}
		txTable.Render()
	}

	if len(report.LatencyHistogram) > 0 {
		fmt.Fprintf(w, "\nLatency Distribution:\n")
		for _, bucket := range HistogramBuckets {
			if count, ok := report.LatencyHistogram[bucket]; ok {
				pct := float64(count) / float64(m.TotalConfirmed) * 100
				fmt.Fprintf(w, "  %-12s %5d (%.1f%%)\n", bucket, count, pct)
			}
		}
	}

	if len(report.ErrorSummary) > 0 {
		keys := make([]string, 0, len(report.ErrorSummary))
		for k := range report.ErrorSummary {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fmt.Fprintf(w, "\n[WARN] Errors:\n")
		for _, k := range keys {
			fmt.Fprintf(w, "  %s: %d\n", shorten(k, 50), report.ErrorSummary[k])
		}
	}
}

func shorten(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
