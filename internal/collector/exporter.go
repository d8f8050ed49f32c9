package collector

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ExportFormat represents the export format
type ExportFormat string

const (
	FormatJSON ExportFormat = "json"
	FormatCSV  ExportFormat = "csv"
)

// Exporter handles report export functionality
type Exporter struct {
	outputDir string
	now       func() time.Time
}

// NewExporter creates a new Exporter
func NewExporter(outputDir string) *Exporter {
	return &Exporter{
		outputDir: outputDir,
		now:       time.Now,
	}
}

// Export exports the report to the specified format
func (e *Exporter) Export(report *Report, format ExportFormat) (string, error) {
	if err := os.MkdirAll(e.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	timestamp := e.now().Format("20060102_150405")

	switch format {
	case FormatJSON:
		return e.exportJSON(report, timestamp)
	case FormatCSV:
		return e.exportCSV(report, timestamp)
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

// ExportAll exports the report in all formats
func (e *Exporter) ExportAll(report *Report) ([]string, error) {
	jsonFile, err := e.Export(report, FormatJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to export JSON: %w", err)
	}
	csvFile, err := e.Export(report, FormatCSV)
	if err != nil {
		return nil, fmt.Errorf("failed to export CSV: %w", err)
	}
	return []string{jsonFile, csvFile}, nil
}

// JSONReport is a JSON-serializable version of Report
type JSONReport struct {
	Name         string            `json:"name"`
	StartTime    string            `json:"start_time"`
	EndTime      string            `json:"end_time"`
	Duration     string            `json:"duration"`
	Summary      JSONSummary       `json:"summary"`
	Latency      JSONLatency       `json:"latency"`
	Errors       map[string]int    `json:"errors,omitempty"`
	Transactions []JSONTransaction `json:"transactions"`
}

// JSONSummary is a JSON-serializable summary
type JSONSummary struct {
	TotalSubmitted   int     `json:"total_submitted"`
	TotalDispatched  int     `json:"total_dispatched"`
	TotalConfirmed   int     `json:"total_confirmed"`
	TotalFailed      int     `json:"total_failed"`
	TotalTimedOut    int     `json:"total_timed_out"`
	Skipped          int     `json:"skipped"`
	NetworkRejected  int     `json:"network_rejected"`
	ProgramErrors    int     `json:"program_errors"`
	SignatureInvalid int     `json:"signature_invalid"`
	SuccessRate      float64 `json:"success_rate"`
	SendRate         float64 `json:"send_rate"`
	ConfirmedTPS     float64 `json:"confirmed_tps"`
}

// JSONLatency is a JSON-serializable latency metrics
type JSONLatency struct {
	Average   string         `json:"average"`
	Min       string         `json:"min"`
	Max       string         `json:"max"`
	P50       string         `json:"p50"`
	P95       string         `json:"p95"`
	P99       string         `json:"p99"`
	Histogram map[string]int `json:"histogram"`
}

// JSONTransaction is one submission in the JSON report
type JSONTransaction struct {
	Signature    string `json:"signature,omitempty"`
	Instruction  string `json:"instruction"`
	Outcome      string `json:"outcome"`
	Reason       string `json:"reason,omitempty"`
	ProgramError string `json:"program_error,omitempty"`
	Slot         uint64 `json:"slot,omitempty"`
	Commitment   string `json:"commitment,omitempty"`
	Latency      string `json:"latency"`
	Diagnostic   string `json:"diagnostic,omitempty"`
	Error        string `json:"error,omitempty"`
}

// createJSONReport creates a JSON-serializable report
func createJSONReport(report *Report) *JSONReport {
	m := report.Metrics
	jr := &JSONReport{
		Name:      report.Name,
		StartTime: report.StartTime.Format(time.RFC3339),
		EndTime:   report.EndTime.Format(time.RFC3339),
		Duration:  report.Duration.String(),
		Summary: JSONSummary{
			TotalSubmitted:   m.TotalSubmitted,
			TotalDispatched:  m.TotalDispatched,
			TotalConfirmed:   m.TotalConfirmed,
			TotalFailed:      m.TotalFailed,
			TotalTimedOut:    m.TotalTimedOut,
			Skipped:          m.Skipped,
			NetworkRejected:  m.NetworkRejected,
			ProgramErrors:    m.ProgramErrors,
			SignatureInvalid: m.SignatureInvalid,
			SuccessRate:      m.SuccessRate,
			SendRate:         m.SendRate,
			ConfirmedTPS:     m.ConfirmedTPS,
		},
		Latency: JSONLatency{
			Average:   m.AvgLatency.String(),
			Min:       m.MinLatency.String(),
			Max:       m.MaxLatency.String(),
			P50:       m.P50Latency.String(),
			P95:       m.P95Latency.String(),
			P99:       m.P99Latency.String(),
			Histogram: report.LatencyHistogram,
		},
		Errors:       report.ErrorSummary,
		Transactions: make([]JSONTransaction, 0, len(report.Transactions)),
	}

	for _, tx := range report.Transactions {
		jr.Transactions = append(jr.Transactions, JSONTransaction{
			Signature:    tx.Signature,
			Instruction:  tx.Instruction,
			Outcome:      tx.Outcome.String(),
			Reason:       string(tx.Reason),
			ProgramError: tx.ProgramError,
			Slot:         tx.Slot,
			Commitment:   string(tx.Commitment),
			Latency:      tx.Latency.String(),
			Diagnostic:   tx.Diagnostic,
			Error:        tx.Error,
		})
	}
	return jr
}

func (e *Exporter) exportJSON(report *Report, timestamp string) (string, error) {
	filename := filepath.Join(e.outputDir, fmt.Sprintf("report_%s.json", timestamp))

	data, err := json.MarshalIndent(createJSONReport(report), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return filename, nil
}

// exportCSV writes a summary file and a per-transaction file; the summary
// path is returned.
func (e *Exporter) exportCSV(report *Report, timestamp string) (string, error) {
	summaryFile := filepath.Join(e.outputDir, fmt.Sprintf("summary_%s.csv", timestamp))
	if err := writeCSV(summaryFile, summaryRecords(report)); err != nil {
		return "", err
	}

	txFile := filepath.Join(e.outputDir, fmt.Sprintf("transactions_%s.csv", timestamp))
	if err := writeCSV(txFile, transactionRecords(report)); err != nil {
		return "", err
	}
	return summaryFile, nil
}

func summaryRecords(report *Report) [][]string {
	m := report.Metrics
	return [][]string{
		{"Metric", "Value"},
		{"Name", report.Name},
		{"Start Time", report.StartTime.Format(time.RFC3339)},
		{"End Time", report.EndTime.Format(time.RFC3339)},
		{"Duration", report.Duration.String()},
		{"Total Submitted", fmt.Sprintf("%d", m.TotalSubmitted)},
		{"Total Dispatched", fmt.Sprintf("%d", m.TotalDispatched)},
		{"Total Confirmed", fmt.Sprintf("%d", m.TotalConfirmed)},
		{"Total Failed", fmt.Sprintf("%d", m.TotalFailed)},
		{"Total Timed Out", fmt.Sprintf("%d", m.TotalTimedOut)},
		{"Skipped", fmt.Sprintf("%d", m.Skipped)},
		{"Network Rejected", fmt.Sprintf("%d", m.NetworkRejected)},
		{"Program Errors", fmt.Sprintf("%d", m.ProgramErrors)},
		{"Signature Invalid", fmt.Sprintf("%d", m.SignatureInvalid)},
		{"Success Rate", fmt.Sprintf("%.2f%%", m.SuccessRate)},
		{"Send Rate", fmt.Sprintf("%.2f", m.SendRate)},
		{"Confirmed TPS", fmt.Sprintf("%.2f", m.ConfirmedTPS)},
		{"Avg Latency", m.AvgLatency.String()},
		{"Min Latency", m.MinLatency.String()},
		{"Max Latency", m.MaxLatency.String()},
		{"P50 Latency", m.P50Latency.String()},
		{"P95 Latency", m.P95Latency.String()},
		{"P99 Latency", m.P99Latency.String()},
	}
}

func transactionRecords(report *Report) [][]string {
	records := [][]string{{
		"Signature", "Instruction", "Outcome", "Reason", "ProgramError",
		"Slot", "Commitment", "DispatchedAt", "CompletedAt", "Latency", "Diagnostic",
	}}
	for _, tx := range report.Transactions {
		dispatched := ""
		if !tx.DispatchedAt.IsZero() {
			dispatched = tx.DispatchedAt.Format(time.RFC3339Nano)
		}
		records = append(records, []string{
			tx.Signature,
			tx.Instruction,
			tx.Outcome.String(),
			string(tx.Reason),
			tx.ProgramError,
			fmt.Sprintf("%d", tx.Slot),
			string(tx.Commitment),
			dispatched,
			tx.CompletedAt.Format(time.RFC3339Nano),
			tx.Latency.String(),
			tx.Diagnostic,
		})
	}
	return records
}

func writeCSV(filename string, records [][]string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.WriteAll(records); err != nil {
		return fmt.Errorf("failed to write records: %w", err)
	}
	return nil
}
