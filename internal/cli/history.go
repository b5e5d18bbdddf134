package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/ppiankov/shiftdetect/internal/format"
	"github.com/ppiankov/shiftdetect/internal/pipeline"
	"github.com/ppiankov/shiftdetect/internal/store"
	"github.com/spf13/cobra"
)

var historyLimit int

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored calibration runs",
	Long: `History lists calibration runs saved with "calibrate --store",
newest first, with the best configuration of each run.

Example:
  shiftdetect history
  shiftdetect history --limit 5
  shiftdetect history show 5f0c8a7e-...`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the full report of a stored run",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyShowCmd)

	historyCmd.PersistentFlags().StringVar(&outFormat, "format", "", "report format (table, markdown, json, yaml)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum runs to list (0 = all)")
}

func openStore() (*store.SqlStore, string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, "", err
	}
	if outFormat != "" {
		cfg.Output.Format = outFormat
	}
	if _, err := os.Stat(cfg.Store.Path); err != nil {
		return nil, "", fmt.Errorf("no run store at %s (run calibrate with --store first)", cfg.Store.Path)
	}
	s, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, "", err
	}
	return s, cfg.Output.Format, nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	s, formatName, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	runs, err := s.ListRuns(context.Background(), historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(os.Stderr, "No stored runs")
		return nil
	}

	tb := format.NewTable(format.ParseMode(formatName))
	tb.Header("run_id", "started", "score rows", "gold rows", "combinations", "best threshold", "best t_metric", "f1-score")
	for _, r := range runs {
		if !r.HasBest {
			tb.Row(r.RunID, humanize.Time(r.StartedAt), humanize.Comma(int64(r.ScoreRows)), humanize.Comma(int64(r.GoldRows)), r.Combinations, "-", "-", "-")
			continue
		}
		tb.Row(r.RunID, humanize.Time(r.StartedAt), humanize.Comma(int64(r.ScoreRows)), humanize.Comma(int64(r.GoldRows)), r.Combinations,
			format.FmtThreshold(r.BestThreshold), r.BestStrategy, format.FmtScore(r.BestF1))
	}
	fmt.Println(tb.String())
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	s, formatName, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	cal, err := s.GetRun(context.Background(), args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Run %s, started %s\n\n", cal.RunID, cal.StartedAt.Format("2006-01-02 15:04:05"))
	return pipeline.RenderReport(os.Stdout, cal, formatName, true)
}
