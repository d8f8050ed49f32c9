// Package analyzer summarizes the cluster throughput reported by a node's
// recent performance samples.
package analyzer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/olekukonko/tablewriter"
)

// Analyzer provides cluster throughput analysis
type Analyzer struct {
	client Client
	config *Config
}

// New creates a new Analyzer instance
func New(client Client, config *Config) *Analyzer {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Samples == 0 {
		config.Samples = DefaultConfig().Samples
	}
	return &Analyzer{client: client, config: config}
}

// Analyze fetches recent samples and aggregates them. Samples with an empty
// period are dropped.
func (a *Analyzer) Analyze(ctx context.Context) (*AnalysisResult, error) {
	raw, err := a.client.RecentPerformanceSamples(ctx, a.config.Samples)
	if err != nil {
		return nil, err
	}

	samples := make([]SampleInfo, 0, len(raw))
	for _, s := range raw {
		if s == nil || s.SamplePeriodSecs == 0 {
			continue
		}
		period := time.Duration(s.SamplePeriodSecs) * time.Second
		info := SampleInfo{
			Slot:         s.Slot,
			Transactions: s.NumTransactions,
			Slots:        s.NumSlots,
			Period:       period,
			TPS:          float64(s.NumTransactions) / period.Seconds(),
		}
		if s.NumSlots > 0 {
			info.SlotTime = period / time.Duration(s.NumSlots)
		}
		samples = append(samples, info)
	}
	if len(samples) == 0 {
		return nil, errors.New("node returned no performance samples")
	}

	sort.Slice(samples, func(i, j int) bool {
		return samples[i].Slot < samples[j].Slot
	})
	return calculateMetrics(samples), nil
}

func calculateMetrics(samples []SampleInfo) *AnalysisResult {
	result := &AnalysisResult{
		StartSlot: samples[0].Slot,
		EndSlot:   samples[len(samples)-1].Slot,
		Samples:   samples,
		MinTPS:    samples[0].TPS,
		MaxTPS:    samples[0].TPS,
	}

	for _, s := range samples {
		result.TotalTxs += s.Transactions
		result.TotalSlots += s.Slots
		result.TotalDuration += s.Period

		if s.TPS < result.MinTPS {
			result.MinTPS = s.TPS
		}
		if s.TPS > result.MaxTPS {
			result.MaxTPS = s.TPS
		}
	}

	if secs := result.TotalDuration.Seconds(); secs > 0 {
		result.AverageTPS = float64(result.TotalTxs) / secs
	}
	if result.TotalSlots > 0 {
		result.AvgSlotTime = result.TotalDuration / time.Duration(result.TotalSlots)
	}
	return result
}

// PrintTable prints the analysis results as a table
func PrintTable(w io.Writer, result *AnalysisResult) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Slot", "Period", "Transactions", "Slots", "TPS", "Slot Time"})
	table.SetBorder(true)

	for _, s := range result.Samples {
		table.Append([]string{
			fmt.Sprintf("%d", s.Slot),
			s.Period.String(),
			fmt.Sprintf("%d", s.Transactions),
			fmt.Sprintf("%d", s.Slots),
			fmt.Sprintf("%.2f", s.TPS),
			fmt.Sprintf("%dms", s.SlotTime.Milliseconds()),
		})
	}

	table.SetFooter([]string{
		"TOTAL",
		result.TotalDuration.String(),
		fmt.Sprintf("%d", result.TotalTxs),
		fmt.Sprintf("%d", result.TotalSlots),
		fmt.Sprintf("TPS: %.2f", result.AverageTPS),
		fmt.Sprintf("Avg: %dms", result.AvgSlotTime.Milliseconds()),
	})

	table.Render()

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Summary:\n")
	fmt.Fprintf(w, "  Slot Range: %d - %d (%d samples)\n", result.StartSlot, result.EndSlot, len(result.Samples))
	fmt.Fprintf(w, "  Total Duration: %s\n", result.TotalDuration)
	fmt.Fprintf(w, "  Total Transactions: %d\n", result.TotalTxs)
	fmt.Fprintf(w, "  Average TPS: %.2f (min: %.2f, max: %.2f)\n", result.AverageTPS, result.MinTPS, result.MaxTPS)
	fmt.Fprintf(w, "  Avg Slot Time: %dms\n", result.AvgSlotTime.Milliseconds())
}

// ExportCSV exports the results to a CSV file
func ExportCSV(result *AnalysisResult, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{"Slot", "PeriodSecs", "Transactions", "Slots", "TPS", "SlotTimeMs"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, s := range result.Samples {
		row := []string{
			fmt.Sprintf("%d", s.Slot),
			fmt.Sprintf("%.0f", s.Period.Seconds()),
			fmt.Sprintf("%d", s.Transactions),
			fmt.Sprintf("%d", s.Slots),
			fmt.Sprintf("%.4f", s.TPS),
			fmt.Sprintf("%d", s.SlotTime.Milliseconds()),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}
