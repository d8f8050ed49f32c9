package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/0xmhha/txsubmit/internal/analyzer"
)

func newClusterCmd() *cobra.Command {
	var (
		samples uint
		csvFile string
	)
	cmd := &cobra.Command{
		Use:   "cluster",
		Short: "Summarize recent cluster throughput from the node's performance samples",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.ValidateEndpoint(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			rt, err := newRuntime(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			result, err := analyzer.New(rt.endpoint, &analyzer.Config{Samples: samples}).Analyze(cmd.Context())
			if err != nil {
				return err
			}
			analyzer.PrintTable(cmd.OutOrStdout(), result)

			if csvFile != "" {
				if err := analyzer.ExportCSV(result, csvFile); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Samples exported to %s\n", csvFile)
			}
			return nil
		},
	}
	cmd.Flags().UintVar(&samples, "samples", analyzer.DefaultConfig().Samples, "Number of one-minute samples to analyze")
	cmd.Flags().StringVar(&csvFile, "csv", "", "Also write the samples to this CSV file")
	return cmd
}
