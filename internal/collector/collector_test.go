package collector

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/txsubmit/internal/submitter"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func confirmed(sig byte, latency time.Duration) *submitter.Result {
	return &submitter.Result{
		Outcome:     submitter.OutcomeConfirmed,
		Signature:   solana.Signature{sig},
		Slot:        100 + uint64(sig),
		Commitment:  submitter.CommitmentProcessed,
		Instruction: "initialize",
		StartedAt:   t0,
		DispatchAt:  t0,
		CompletedAt: t0.Add(latency),
	}
}

func programFailure() *submitter.Result {
	return &submitter.Result{
		Outcome:     submitter.OutcomeFailed,
		Reason:      submitter.ReasonProgramError,
		Signature:   solana.Signature{9},
		Slot:        120,
		Diagnostic:  `{"InstructionError":[0,{"Custom":6004}]}`,
		Instruction: "sell",
		StartedAt:   t0,
		DispatchAt:  t0,
		CompletedAt: t0.Add(300 * time.Millisecond),
	}
}

func rejection() *submitter.Result {
	return &submitter.Result{
		Outcome:     submitter.OutcomeFailed,
		Reason:      submitter.ReasonNetworkRejected,
		Signature:   solana.Signature{8},
		Cause:       errors.New("blockhash not found"),
		Instruction: "buy",
		StartedAt:   t0,
		CompletedAt: t0.Add(10 * time.Millisecond),
	}
}

func timedOut() *submitter.Result {
	return &submitter.Result{
		Outcome:     submitter.OutcomeTimedOut,
		Signature:   solana.Signature{7},
		Instruction: "cancel",
		StartedAt:   t0,
		DispatchAt:  t0,
		CompletedAt: t0.Add(30 * time.Second),
	}
}

func sampleResults() []*submitter.Result {
	return []*submitter.Result{
		confirmed(1, 50*time.Millisecond),
		confirmed(2, 200*time.Millisecond),
		confirmed(3, 700*time.Millisecond),
		confirmed(4, 6*time.Second),
		programFailure(),
		rejection(),
		timedOut(),
	}
}

func TestBuildReport_Counts(t *testing.T) {
	report := BuildReport("run", sampleResults(), 2, t0, t0.Add(10*time.Second))
	m := report.Metrics

	assert.Equal(t, 7, m.TotalSubmitted)
	assert.Equal(t, 6, m.TotalDispatched)
	assert.Equal(t, 4, m.TotalConfirmed)
	assert.Equal(t, 2, m.TotalFailed)
	assert.Equal(t, 1, m.TotalTimedOut)
	assert.Equal(t, 2, m.Skipped)
	assert.Equal(t, 1, m.ProgramErrors)
	assert.Equal(t, 1, m.NetworkRejected)
	assert.Equal(t, 0, m.SignatureInvalid)

	assert.InDelta(t, 4.0/7.0*100, m.SuccessRate, 0.001)
	assert.InDelta(t, 0.6, m.SendRate, 0.001)
	assert.InDelta(t, 0.4, m.ConfirmedTPS, 0.001)
	assert.Len(t, report.Transactions, 7)
}

func TestBuildReport_Latency(t *testing.T) {
	report := BuildReport("run", sampleResults(), 0, t0, t0.Add(time.Second))
	m := report.Metrics

	assert.Equal(t, 50*time.Millisecond, m.MinLatency)
	assert.Equal(t, 6*time.Second, m.MaxLatency)
	assert.Equal(t, (50+200+700+6000)*time.Millisecond/4, m.AvgLatency)
	assert.Equal(t, 200*time.Millisecond, m.P50Latency)
	assert.Equal(t, 700*time.Millisecond, m.P95Latency)

	assert.Equal(t, map[string]int{
		"<100ms":    1,
		"100-500ms": 1,
		"500ms-1s":  1,
		">5s":       1,
	}, report.LatencyHistogram)
}

func TestBuildReport_ErrorSummary(t *testing.T) {
	report := BuildReport("run", sampleResults(), 0, t0, t0.Add(time.Second))

	assert.Equal(t, map[string]int{
		"program-error: InvalidState": 1,
		"network-rejected":            1,
		"timed-out":                   1,
	}, report.ErrorSummary)

	var sell TxRecord
	for _, tx := range report.Transactions {
		if tx.Instruction == "sell" {
			sell = tx
		}
	}
	assert.Equal(t, "InvalidState", sell.ProgramError)
	assert.Equal(t, uint64(120), sell.Slot)
	assert.NotEmpty(t, sell.Error)
}

func TestBuildReport_FrameworkErrorKey(t *testing.T) {
	res := programFailure()
	res.Instruction = "initialize"
	res.Diagnostic = `{"InstructionError":[0,{"Custom":101}]}`

	report := BuildReport("run", []*submitter.Result{res}, 0, t0, t0.Add(time.Second))
	assert.Equal(t, map[string]int{"program-error: InstructionFallbackNotFound": 1}, report.ErrorSummary)
	require.Len(t, report.Transactions, 1)
	assert.Equal(t, "InstructionFallbackNotFound", report.Transactions[0].ProgramError)
}

func TestBuildReport_Empty(t *testing.T) {
	report := BuildReport("empty", nil, 0, t0, t0)
	assert.Zero(t, report.Metrics.TotalSubmitted)
	assert.Zero(t, report.Metrics.SuccessRate)
	assert.Zero(t, report.Metrics.SendRate)
	assert.Empty(t, report.LatencyHistogram)
}

func TestRecordUndispatchedHasNoSignature(t *testing.T) {
	res := &submitter.Result{
		Outcome:     submitter.OutcomeFailed,
		Reason:      submitter.ReasonSignatureInvalid,
		Instruction: "initialize",
		StartedAt:   t0,
		CompletedAt: t0,
	}
	report := BuildReport("run", []*submitter.Result{res}, 0, t0, t0.Add(time.Second))
	require.Len(t, report.Transactions, 1)
	assert.Empty(t, report.Transactions[0].Signature)
	assert.Zero(t, report.Transactions[0].Latency)
	assert.Equal(t, 1, report.Metrics.SignatureInvalid)
	assert.Zero(t, report.Metrics.TotalDispatched)
}

func TestPercentile(t *testing.T) {
	tests := []struct {
		name   string
		sorted []time.Duration
		p      int
		want   time.Duration
	}{
		{"empty", nil, 50, 0},
		{"single", []time.Duration{5}, 99, 5},
		{"p0", []time.Duration{1, 2, 3, 4, 5}, 0, 1},
		{"p50", []time.Duration{1, 2, 3, 4, 5}, 50, 3},
		{"p100", []time.Duration{1, 2, 3, 4, 5}, 100, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, percentile(tt.sorted, tt.p))
		})
	}
}

func TestCollector_RecordAndReport(t *testing.T) {
	c := NewCollector(&Config{Name: "unit"})
	c.Record(confirmed(1, time.Millisecond), nil, rejection())
	c.AddSkipped(3)

	assert.Equal(t, 2, c.Count())
	report := c.Report()
	assert.Equal(t, "unit", report.Name)
	assert.Equal(t, 1, report.Metrics.TotalConfirmed)
	assert.Equal(t, 3, report.Metrics.Skipped)

	c.Reset()
	assert.Zero(t, c.Count())
	assert.Zero(t, c.Report().Metrics.Skipped)
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	c := NewCollector(&Config{Name: "unit", Output: &buf})
	c.PrintSummary(BuildReport("unit", sampleResults(), 1, t0, t0.Add(time.Second)))

	out := buf.String()
	assert.Contains(t, out, "Submission Summary: unit")
	assert.Contains(t, out, "Confirmed TPS")
	assert.Contains(t, out, "Latency Distribution")
	assert.Contains(t, out, "program-error: InvalidState: 1")
	assert.Contains(t, out, "initialize")
}

func TestPrintSummary_NoOutput(t *testing.T) {
	c := NewCollector(nil)
	assert.NotPanics(t, func() {
		c.PrintSummary(BuildReport("x", sampleResults(), 0, t0, t0.Add(time.Second)))
	})
}

func TestExporter_JSON(t *testing.T) {
	dir := t.TempDir()
	e := NewExporter(dir)
	e.now = func() time.Time { return t0 }

	path, err := e.Export(BuildReport("run", sampleResults(), 0, t0, t0.Add(time.Second)), FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "report_20260301_120000.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var jr JSONReport
	require.NoError(t, json.Unmarshal(data, &jr))
	assert.Equal(t, "run", jr.Name)
	assert.Equal(t, 4, jr.Summary.TotalConfirmed)
	assert.Len(t, jr.Transactions, 7)
	assert.Equal(t, "confirmed", jr.Transactions[0].Outcome)
	assert.Equal(t, solana.Signature{1}.String(), jr.Transactions[0].Signature)
	assert.Equal(t, "InvalidState", jr.Transactions[4].ProgramError)
}

func TestExporter_CSV(t *testing.T) {
	dir := t.TempDir()
	e := NewExporter(dir)
	e.now = func() time.Time { return t0 }

	path, err := e.Export(BuildReport("run", sampleResults(), 0, t0, t0.Add(time.Second)), FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "summary_20260301_120000.csv"), path)

	f, err := os.Open(filepath.Join(dir, "transactions_20260301_120000.csv"))
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 8)
	assert.Equal(t, "Signature", rows[0][0])
	assert.Equal(t, "timed-out", rows[7][2])
}

func TestExporter_ExportAll(t *testing.T) {
	e := NewExporter(filepath.Join(t.TempDir(), "nested"))
	files, err := e.ExportAll(BuildReport("run", sampleResults(), 0, t0, t0.Add(time.Second)))
	require.NoError(t, err)
	assert.Len(t, files, 2)
	for _, f := range files {
		assert.FileExists(t, f)
	}
}

func TestExporter_UnsupportedFormat(t *testing.T) {
	e := NewExporter(t.TempDir())
	_, err := e.Export(BuildReport("run", nil, 0, t0, t0), ExportFormat("xml"))
	assert.Error(t, err)
}
