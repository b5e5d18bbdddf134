package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ppiankov/shiftdetect/internal/model"
	"github.com/ppiankov/shiftdetect/internal/pipeline"
	"github.com/spf13/cobra"
)

var (
	scoresPath      string
	goldPath        string
	thresholds      []float64
	thresholdsFile  string
	strategies      []string
	metrics         []string
	workers         int
	outFormat       string
	outDir          string
	noExport        bool
	exportThreshold float64
	exportStrategy  string
	saveRun         bool
	noCache         bool
	cacheDir        string
	runTimeout      time.Duration
)

// calibrateCmd represents the calibrate command
var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Find the best threshold and strategy against gold labels",
	Long: `Calibrate evaluates every candidate threshold with every grouping
strategy on the gold-annotated sentences:
- Group item scores per (unit, sentence) and split them with natural breaks
- Label each item as reproduction or creative shift
- Compare with the human labels (macro precision, recall, F1)
- Label each extra --metrics column row by row against the threshold
- Select the best (threshold, strategy) and relabel the whole score table

Example:
  shiftdetect calibrate --scores scores.tsv --gold gold.tsv
  shiftdetect calibrate --scores scores.tsv --gold gold.tsv --thresholds 0.3,0.4,0.5 --strategies word,basic
  shiftdetect calibrate --scores syntax.tsv --gold gold.tsv --metrics sacr_cross_score,label_changes,astred_score
  shiftdetect calibrate --scores scores.tsv --gold gold.tsv --thresholds-file thresholds.txt --format markdown --store`,
	Args: cobra.NoArgs,
	RunE: runCalibrate,
}

func init() {
	rootCmd.AddCommand(calibrateCmd)

	calibrateCmd.Flags().StringVar(&scoresPath, "scores", "", "score table (TSV)")
	calibrateCmd.Flags().StringVar(&goldPath, "gold", "", "gold table (TSV)")
	_ = calibrateCmd.MarkFlagRequired("scores")
	_ = calibrateCmd.MarkFlagRequired("gold")

	calibrateCmd.Flags().Float64SliceVar(&thresholds, "thresholds", nil, "candidate thresholds (comma separated)")
	calibrateCmd.Flags().StringVar(&thresholdsFile, "thresholds-file", "", "file with one candidate threshold per line")
	calibrateCmd.Flags().StringSliceVar(&strategies, "strategies", nil, "strategies to evaluate (word-major-minor, sent-major-minor, basic)")
	calibrateCmd.Flags().StringSliceVar(&metrics, "metrics", nil, "extra score columns to calibrate per row (e.g. astred_score,label_changes)")
	calibrateCmd.Flags().IntVar(&workers, "workers", 0, "parallel evaluations (default: number of CPUs)")

	calibrateCmd.Flags().StringVar(&outFormat, "format", "", "report format (table, markdown, json, yaml)")
	calibrateCmd.Flags().StringVar(&outDir, "out-dir", "", "directory for exported tables")
	calibrateCmd.Flags().BoolVar(&noExport, "no-export", false, "do not write the relabeled table and gold view")
	calibrateCmd.Flags().Float64Var(&exportThreshold, "export-threshold", 0, "also export the labeled gold units of this evaluated threshold")
	calibrateCmd.Flags().StringVar(&exportStrategy, "export-strategy", string(model.StrategyWord), "strategy or metric column for --export-threshold")

	calibrateCmd.Flags().BoolVar(&saveRun, "store", false, "save the run in the history store")
	calibrateCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable partition caching")
	calibrateCmd.Flags().StringVar(&cacheDir, "cache-dir", "", "persist partitions on disk in this directory")
	calibrateCmd.Flags().DurationVar(&runTimeout, "timeout", 30*time.Minute, "overall timeout")
}

// applyCalibrateFlags overrides the loaded configuration with flags the user set
func applyCalibrateFlags(cmd *cobra.Command, cfg *model.Config) error {
	flags := cmd.Flags()

	if flags.Changed("thresholds-file") {
		ths, err := pipeline.ReadThresholds(thresholdsFile)
		if err != nil {
			return fmt.Errorf("read thresholds: %w", err)
		}
		cfg.Calibration.Thresholds = ths
	}
	if flags.Changed("thresholds") {
		cfg.Calibration.Thresholds = thresholds
	}
	if flags.Changed("strategies") {
		cfg.Calibration.Strategies = strategies
	}
	if flags.Changed("metrics") {
		cfg.Calibration.Metrics = metrics
	}
	if flags.Changed("workers") {
		cfg.Calibration.Workers = workers
	}
	if flags.Changed("format") {
		cfg.Output.Format = outFormat
	}
	if flags.Changed("out-dir") {
		cfg.Output.Dir = outDir
	}
	if flags.Changed("store") {
		cfg.Store.Enabled = saveRun
	}
	if noCache {
		cfg.Cache.Enabled = false
	}
	if flags.Changed("cache-dir") {
		cfg.Cache.DiskDir = cacheDir
	}

	return cfg.Validate()
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyCalibrateFlags(cmd, cfg); err != nil {
		return err
	}

	if cfg.Output.Verbose {
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
		fmt.Fprintf(os.Stderr, "  shiftdetect calibration\n")
		fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "  Scores:       %s\n", scoresPath)
		fmt.Fprintf(os.Stderr, "  Gold:         %s\n", goldPath)
		fmt.Fprintf(os.Stderr, "  Thresholds:   %v\n", cfg.Calibration.Thresholds)
		fmt.Fprintf(os.Stderr, "  Strategies:   %v\n", cfg.Calibration.Strategies)
		if len(cfg.Calibration.Metrics) > 0 {
			fmt.Fprintf(os.Stderr, "  Metrics:      %v\n", cfg.Calibration.Metrics)
		}
		fmt.Fprintf(os.Stderr, "  Workers:      %d\n", cfg.Calibration.Workers)
		fmt.Fprintf(os.Stderr, "  Cache:        %v\n", cfg.Cache.Enabled)
		fmt.Fprintf(os.Stderr, "\n")
	}

	p := pipeline.NewPipeline(cfg)

	in, err := p.Load(ctx, scoresPath, goldPath)
	if err != nil {
		return err
	}
	if cfg.Output.Verbose {
		fmt.Fprintf(os.Stderr, "✓ Loaded %s score rows, %s gold rows\n",
			humanize.Comma(int64(len(in.Scores))), humanize.Comma(int64(len(in.Gold))))
	}

	run, err := p.Calibrate(ctx, in)
	if err != nil {
		return fmt.Errorf("calibration failed: %w", err)
	}

	if cfg.Output.Verbose {
		fmt.Fprintf(os.Stderr, "✓ Evaluated %d combinations in %v\n", len(run.Calibration.Results), run.Duration.Round(time.Millisecond))
		if stats, ok := p.CacheStats(); ok {
			fmt.Fprintf(os.Stderr, "✓ Partition cache: %s hits, %s misses (%.0f%%), %s partitions held\n",
				humanize.Comma(stats.Hits), humanize.Comma(stats.Misses), stats.HitRate()*100, humanize.Comma(int64(stats.Entries)))
		}
		fmt.Fprintln(os.Stderr)
	}

	if err := pipeline.RenderReport(os.Stdout, run.Calibration, cfg.Output.Format, cfg.Output.Verbose); err != nil {
		return fmt.Errorf("render failed: %w", err)
	}

	if cmd.Flags().Changed("export-threshold") {
		st, err := model.ResolveStrategy(exportStrategy, cfg.Calibration.Metrics)
		if err != nil {
			return err
		}
		path, err := p.ExportThreshold(run, exportThreshold, st)
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}
		fmt.Fprintf(os.Stderr, "✓ Wrote %s\n", path)
	}

	if !noExport && run.Calibration.Best != nil {
		paths, err := p.Export(run)
		for _, path := range paths {
			fmt.Fprintf(os.Stderr, "✓ Wrote %s\n", path)
		}
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}
		if len(run.Failures) > 0 {
			fmt.Fprintf(os.Stderr, "⚠ %s units could not be labeled and were left out of the relabeled table\n",
				humanize.Comma(int64(len(run.Failures))))
		}
	}

	if cfg.Store.Enabled {
		if err := p.Save(ctx, run.Calibration); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "✓ Saved run %s to %s\n", run.Calibration.RunID, cfg.Store.Path)
	}

	if run.Calibration.Best == nil {
		return fmt.Errorf("no (threshold, strategy) combination completed")
	}
	return nil
}
