package cli

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/ppiankov/shiftdetect/internal/format"
	"github.com/ppiankov/shiftdetect/internal/model"
	"github.com/ppiankov/shiftdetect/internal/pipeline"
	"github.com/spf13/cobra"
)

var (
	labelThreshold float64
	labelStrategy  string
	labelMetric    string
)

// labelCmd represents the label command
var labelCmd = &cobra.Command{
	Use:   "label",
	Short: "Label a score table with a fixed threshold and strategy",
	Long: `Label applies one known configuration to every sentence of a score
table, without gold data, and writes the labeled table.

Sentences that cannot be labeled (no known score, clustering failure)
are reported and left out; the rest of the table is still written.

Example:
  shiftdetect label --scores scores.tsv --threshold 0.45 --strategy word-major-minor
  shiftdetect label --scores scores.tsv --threshold 0.5 --strategy basic --out-dir ./labeled
  shiftdetect label --scores syntax.tsv --threshold 0.4 --metric astred_score`,
	Args: cobra.NoArgs,
	RunE: runLabel,
}

func init() {
	rootCmd.AddCommand(labelCmd)

	labelCmd.Flags().StringVar(&scoresPath, "scores", "", "score table (TSV)")
	_ = labelCmd.MarkFlagRequired("scores")
	labelCmd.Flags().Float64Var(&labelThreshold, "threshold", 0.5, "decision threshold")
	labelCmd.Flags().StringVar(&labelStrategy, "strategy", string(model.StrategyWord), "strategy (word-major-minor, sent-major-minor, basic)")
	labelCmd.Flags().StringVar(&labelMetric, "metric", "", "label each row by this score column instead of a strategy")
	labelCmd.Flags().StringVar(&outDir, "out-dir", "", "directory for the labeled table")
}

func runLabel(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("out-dir") {
		cfg.Output.Dir = outDir
	}

	strategy, err := model.ResolveStrategy(labelStrategy, cfg.Calibration.Metrics)
	if err != nil {
		return err
	}
	columns := cfg.Calibration.Metrics
	if labelMetric != "" {
		columns, err = model.ParseMetrics([]string{labelMetric})
		if err != nil {
			return err
		}
		strategy = model.MetricStrategy(columns[0])
	}

	records, err := pipeline.ReadScores(scoresPath, cfg.Columns, columns...)
	if err != nil {
		return err
	}
	if !strategy.Grouped() && !pipeline.HasMetric(records, string(strategy)) {
		return fmt.Errorf("%w %q", pipeline.ErrMissingColumn, strategy)
	}

	p := pipeline.NewPipeline(cfg)
	labeled, failures := p.Label(records, labelThreshold, strategy)

	path, err := p.ExportLabeled(labeled, labelThreshold, strategy)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	counts := make(map[model.Label]int)
	for _, lr := range labeled {
		counts[lr.Label]++
	}

	fmt.Fprintf(os.Stderr, "✓ Labeled %s rows (%s reproduction, %s creative shift, %s unresolved)\n",
		humanize.Comma(int64(len(labeled))),
		humanize.Comma(int64(counts[model.LabelReproduction])),
		humanize.Comma(int64(counts[model.LabelCreativeShift])),
		humanize.Comma(int64(counts[model.LabelUnresolved])))
	if len(failures) > 0 {
		fmt.Fprintf(os.Stderr, "⚠ %s units skipped\n", humanize.Comma(int64(len(failures))))
		if cfg.Output.Verbose {
			fmt.Fprintln(os.Stderr, format.FailureTable(failures, format.ParseMode(cfg.Output.Format)))
		}
	}
	fmt.Fprintf(os.Stderr, "✓ Wrote %s\n", path)

	return nil
}
