package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ppiankov/shiftdetect/internal/cache"
	"github.com/ppiankov/shiftdetect/internal/calibrate"
	"github.com/ppiankov/shiftdetect/internal/logging"
	"github.com/ppiankov/shiftdetect/internal/model"
	"github.com/ppiankov/shiftdetect/internal/score"
	"github.com/ppiankov/shiftdetect/internal/store"
	"golang.org/x/sync/errgroup"
)

// Pipeline orchestrates load -> calibrate -> relabel -> export/store
type Pipeline struct {
	config   *model.Config
	cache    cache.Cache
	grouper  *score.Grouper
	exporter *Exporter
	logger   *slog.Logger
}

// NewPipeline creates a new pipeline with the given configuration
func NewPipeline(cfg *model.Config) *Pipeline {
	c := newCache(cfg.Cache)
	return &Pipeline{
		config:   cfg,
		cache:    c,
		grouper:  score.NewGrouper(c),
		exporter: NewExporter(cfg.Output.Dir, cfg.Output.TimestampLayout),
		logger:   logging.New("pipeline"),
	}
}

func newCache(cfg model.CacheConfig) cache.Cache {
	if !cfg.Enabled {
		return nil
	}
	if cfg.DiskDir != "" {
		return cache.NewLayeredCache(cfg.MemoryTTL, cfg.DiskDir, cfg.DiskTTL)
	}
	return cache.NewMemoryCache(cfg.MemoryTTL, cfg.MemoryTTL)
}

// CacheStats reports partition cache effectiveness; ok is false when caching is off
func (p *Pipeline) CacheStats() (stats cache.Stats, ok bool) {
	s, ok := p.cache.(interface{ Stats() cache.Stats })
	if !ok {
		return cache.Stats{}, false
	}
	return s.Stats(), true
}

// Inputs holds the loaded tables
type Inputs struct {
	Scores []model.ScoreRecord
	Gold   []model.GoldRecord
}

// Load reads the score table and, when goldPath is set, the gold table
// concurrently
func (p *Pipeline) Load(ctx context.Context, scoresPath, goldPath string) (*Inputs, error) {
	in := &Inputs{}
	g, _ := errgroup.WithContext(ctx)

	g.Go(func() error {
		records, err := ReadScores(scoresPath, p.config.Columns, p.config.Calibration.Metrics...)
		if err != nil {
			return fmt.Errorf("load scores: %w", err)
		}
		in.Scores = records
		return nil
	})

	if goldPath != "" {
		g.Go(func() error {
			gold, err := ReadGold(goldPath, p.config.Columns, p.config.Calibration.Metrics...)
			if err != nil {
				return fmt.Errorf("load gold: %w", err)
			}
			in.Gold = gold
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, col := range p.config.Calibration.Metrics {
		if !in.hasMetric(col) {
			return nil, fmt.Errorf("metric: %w %q in neither the score nor the gold table", ErrMissingColumn, col)
		}
	}

	p.logger.Debug("tables loaded", "score_rows", len(in.Scores), "gold_rows", len(in.Gold))
	return in, nil
}

// HasMetric reports whether any score row carries the column
func HasMetric(records []model.ScoreRecord, column string) bool {
	for _, r := range records {
		if _, ok := r.Metrics[column]; ok {
			return true
		}
	}
	return false
}

func (in *Inputs) hasMetric(column string) bool {
	if HasMetric(in.Scores, column) {
		return true
	}
	for _, g := range in.Gold {
		if _, ok := g.Metric(column); ok {
			return true
		}
	}
	return false
}

// Run is the outcome of one calibration, including the best configuration
// applied to the whole score table
type Run struct {
	Calibration *model.Calibration
	Relabeled   []model.LabeledRecord // Entire score table under the best configuration
	Failures    []model.UnitFailure   // Units skipped while relabeling
	BestGold    []model.GoldPrediction
	Duration    time.Duration
}

// Calibrate sweeps the configured thresholds over the strategies and the
// metric columns and relabels the score table with the best combination
func (p *Pipeline) Calibrate(ctx context.Context, in *Inputs) (*Run, error) {
	strategies, err := model.ParseStrategies(p.config.Calibration.Strategies)
	if err != nil {
		return nil, fmt.Errorf("strategies: %w", err)
	}
	metrics, err := model.ParseMetrics(p.config.Calibration.Metrics)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	start := time.Now()
	c := calibrate.NewCalibrator(p.grouper, calibrate.Options{
		Thresholds: p.config.Calibration.Thresholds,
		Strategies: strategies,
		Metrics:    metrics,
		Workers:    p.config.Calibration.Workers,
	})

	cal, err := c.Run(ctx, in.Scores, in.Gold)
	if err != nil {
		return nil, fmt.Errorf("calibrate: %w", err)
	}

	run := &Run{Calibration: cal}
	if cal.Best != nil {
		run.Relabeled, run.Failures = calibrate.Relabel(p.grouper, in.Scores, cal.Best.Threshold, cal.Best.Strategy)
		for _, f := range run.Failures {
			p.logger.Warn("unit skipped", logging.Failure(f))
		}

		run.BestGold, err = calibrate.BestGold(cal, in.Gold)
		if err != nil {
			return nil, fmt.Errorf("best gold: %w", err)
		}
	}
	run.Duration = time.Since(start)

	return run, nil
}

// Label applies one fixed configuration to a score table without gold data
func (p *Pipeline) Label(records []model.ScoreRecord, threshold float64, strategy model.Strategy) ([]model.LabeledRecord, []model.UnitFailure) {
	labeled, failures := calibrate.Relabel(p.grouper, records, threshold, strategy)
	for _, f := range failures {
		p.logger.Warn("unit skipped", logging.Failure(f))
	}
	return labeled, failures
}

// Export writes the relabeled table and the best gold view. It returns the
// written paths.
func (p *Pipeline) Export(run *Run) ([]string, error) {
	best := run.Calibration.Best
	if best == nil {
		return nil, calibrate.ErrNoResults
	}

	labeledPath, err := p.exporter.ExportLabeled(run.Relabeled, best.Threshold, best.Strategy)
	if err != nil {
		return nil, fmt.Errorf("export labeled table: %w", err)
	}
	goldPath, err := p.exporter.ExportGold(best, run.BestGold)
	if err != nil {
		return []string{labeledPath}, fmt.Errorf("export gold view: %w", err)
	}
	return []string{labeledPath, goldPath}, nil
}

// ExportThreshold writes the labeled gold units of one evaluated combination
func (p *Pipeline) ExportThreshold(run *Run, threshold float64, strategy model.Strategy) (string, error) {
	return p.exporter.ExportResult(run.Calibration, threshold, strategy)
}

// ExportLabeled writes a labeled table produced by Label
func (p *Pipeline) ExportLabeled(rows []model.LabeledRecord, threshold float64, strategy model.Strategy) (string, error) {
	return p.exporter.ExportLabeled(rows, threshold, strategy)
}

// Save persists the calibration in the configured run store
func (p *Pipeline) Save(ctx context.Context, cal *model.Calibration) error {
	s, err := store.Open(p.config.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = s.Close() }()

	if err := s.SaveRun(ctx, cal); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}
