package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sawpanic/shortsentinel/internal/config"
	"github.com/sawpanic/shortsentinel/internal/journal"
	"github.com/sawpanic/shortsentinel/internal/status"
)

func newStatusCmd(configPath *string) *cobra.Command {
	var lookback time.Duration
	var rowLimit int
	var topN int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print a point-in-time journal health report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			j, err := journal.Open(cfg.JournalPath)
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
			defer j.Close()

			opts := status.DefaultOptions()
			opts.ScoreMin = cfg.ScoreMin
			if lookback > 0 {
				opts.Lookback = lookback
			}
			if rowLimit > 0 {
				opts.RowLimit = rowLimit
			}
			if topN > 0 {
				opts.TopN = topN
			}

			report, err := status.Build(cmd.Context(), j, opts)
			if err != nil {
				return fmt.Errorf("build status report: %w", err)
			}
			report.Write(os.Stdout)
			return nil
		},
	}

	cmd.Flags().DurationVar(&lookback, "lookback", 0, "override the score-averaging lookback window")
	cmd.Flags().IntVar(&rowLimit, "row-limit", 0, "override the max rows scanned for averaging")
	cmd.Flags().IntVar(&topN, "top", 0, "override the number of top symbols shown")
	return cmd
}
