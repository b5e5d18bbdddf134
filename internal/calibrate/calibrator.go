package calibrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/ppiankov/shiftdetect/internal/logging"
	"github.com/ppiankov/shiftdetect/internal/model"
	"github.com/ppiankov/shiftdetect/internal/score"
	"github.com/ppiankov/shiftdetect/internal/worker"
)

var (
	// ErrNoGold means calibration was started without gold rows
	ErrNoGold = errors.New("no gold rows")

	// ErrNoResults means every (threshold, strategy) evaluation aborted
	ErrNoResults = errors.New("no completed calibration results")
)

// Options configures a calibration run
type Options struct {
	Thresholds []float64        // Candidate thresholds in encounter order
	Strategies []model.Strategy // Strategies in encounter order
	Metrics    []string         // Extra score columns, evaluated per row after the strategies
	Workers    int              // Parallel evaluations; <= 1 runs serially
}

// Calibrator sweeps thresholds and strategies against gold labels
type Calibrator struct {
	grouper *score.Grouper
	opts    Options
	logger  *slog.Logger
}

// NewCalibrator creates a calibrator. Duplicate thresholds and strategies
// are dropped, keeping the first occurrence, so each combination is
// evaluated exactly once.
func NewCalibrator(grouper *score.Grouper, opts Options) *Calibrator {
	opts.Thresholds = dedupeFloats(opts.Thresholds)
	opts.Strategies = dedupe(opts.Strategies)
	opts.Metrics = dedupe(opts.Metrics)
	if len(opts.Strategies) == 0 && len(opts.Metrics) == 0 {
		opts.Strategies = model.AllStrategies
	}

	return &Calibrator{
		grouper: grouper,
		opts:    opts,
		logger:  logging.New("calibrate"),
	}
}

// Run evaluates every (threshold, strategy) pair on the gold-annotated
// Group Sets and selects the best one. Each configured score column is
// evaluated as one more strategy per threshold, labeling every row by its
// own value, so the columns land in the same result matrix.
//
// A combination whose gold rows cannot all be matched aborts on its own:
// its result carries the error and is never selected. Group Sets that fail
// to group are skipped per combination and listed in the result.
func (c *Calibrator) Run(ctx context.Context, records []model.ScoreRecord, gold []model.GoldRecord) (*model.Calibration, error) {
	if len(gold) == 0 {
		return nil, ErrNoGold
	}
	if len(c.opts.Thresholds) == 0 {
		return nil, fmt.Errorf("no thresholds to evaluate")
	}

	started := time.Now().UTC()
	goldSets := goldGroupSets(records, gold)

	c.logger.Debug("calibration started",
		"score_rows", len(records),
		"gold_rows", len(gold),
		"group_sets", len(goldSets),
		"combinations", len(c.opts.Thresholds)*(len(c.opts.Strategies)+len(c.opts.Metrics)))

	var jobs []worker.Job
	for _, th := range c.opts.Thresholds {
		for _, st := range c.combinations() {
			jobs = append(jobs, &evalJob{
				grouper:   c.grouper,
				records:   records,
				sets:      goldSets,
				gold:      gold,
				threshold: th,
				strategy:  st,
			})
		}
	}

	results := worker.Run(ctx, c.opts.Workers, jobs)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("calibration interrupted: %w", err)
	}

	cal := &model.Calibration{
		RunID:      uuid.NewString(),
		StartedAt:  started,
		Thresholds: c.opts.Thresholds,
		Strategies: c.opts.Strategies,
		Metrics:    c.opts.Metrics,
		GoldRows:   len(gold),
		ScoreRows:  len(records),
	}

	reported := make(map[string]bool)
	for i, res := range results {
		if res == nil {
			return nil, fmt.Errorf("evaluation %d did not complete", i)
		}
		er := res.(*evalResult)
		if er.err != nil {
			c.logger.Warn("evaluation aborted", logging.Combination(er.result.Threshold, er.result.Strategy), "error", er.err)
		}
		for _, f := range er.result.Unresolved {
			id := fmt.Sprintf("%s/%d/%s", f.UnitID, f.SentIdx, f.Reason)
			if reported[id] {
				continue
			}
			reported[id] = true
			c.logger.Warn("unit skipped", logging.Failure(f))
		}
		cal.Results = append(cal.Results, er.result)
	}

	best, err := SelectBest(cal.Results)
	if err != nil {
		c.logger.Warn("no best configuration", "error", err)
	} else {
		cal.Best = best
	}

	return cal, nil
}

// combinations lists the strategies evaluated at each threshold, in order
func (c *Calibrator) combinations() []model.Strategy {
	out := append([]model.Strategy(nil), c.opts.Strategies...)
	for _, col := range c.opts.Metrics {
		out = append(out, model.MetricStrategy(col))
	}
	return out
}

// SelectBest returns the completed result with the highest macro F1; ties go
// to the first in order
func SelectBest(results []model.CalibrationResult) (*model.CalibrationResult, error) {
	var best *model.CalibrationResult
	for i := range results {
		r := &results[i]
		if r.Aborted() {
			continue
		}
		if best == nil || r.F1 > best.F1 {
			best = r
		}
	}
	if best == nil {
		return nil, ErrNoResults
	}
	return best, nil
}

// evalJob evaluates one (threshold, strategy) combination
type evalJob struct {
	grouper   *score.Grouper
	records   []model.ScoreRecord
	sets      []score.GroupSet
	gold      []model.GoldRecord
	threshold float64
	strategy  model.Strategy
}

type evalResult struct {
	result model.CalibrationResult
	err    error
}

func (r *evalResult) GetError() error {
	return r.err
}

func (j *evalJob) Execute(ctx context.Context) worker.Result {
	res := model.CalibrationResult{Threshold: j.threshold, Strategy: j.strategy}

	if j.strategy.Grouped() {
		res.Labeled, res.Unresolved = LabelSets(j.grouper, j.records, j.sets, j.strategy, j.threshold)
	} else {
		res.Labeled = LabelMetric(j.records, j.sets, string(j.strategy), j.threshold)
	}

	alignment, err := alignResult(&res, j.gold)
	if err != nil {
		res.Error = err.Error()
		return &evalResult{result: res, err: err}
	}

	macro, classes := Evaluate(alignment.Gold, alignment.Pred)
	res.Precision = macro.Precision
	res.Recall = macro.Recall
	res.F1 = macro.F1
	res.Support = macro.Support
	res.Classes = classes
	res.Matched = len(alignment.Pairs)
	res.Skipped = alignment.Skipped

	return &evalResult{result: res}
}

// LabelSets labels the given Group Sets. Sets that fail are left out of the
// labeled rows and reported as failures; the rest of the batch continues.
func LabelSets(g *score.Grouper, records []model.ScoreRecord, sets []score.GroupSet, strategy model.Strategy, threshold float64) ([]model.LabeledRecord, []model.UnitFailure) {
	var labeled []model.LabeledRecord
	var failures []model.UnitFailure

	for _, gs := range sets {
		grouping, err := g.GroupSet(gs, strategy, threshold)
		if err != nil {
			failures = append(failures, model.UnitFailure{
				UnitID:  gs.UnitID,
				SentIdx: gs.Key.SentIdx,
				Scores:  gs.Scores,
				Reason:  unwrapReason(err),
			})
			continue
		}

		for i, row := range gs.Rows {
			labeled = append(labeled, model.LabeledRecord{
				ScoreRecord: records[row],
				Label:       grouping.Labels[i],
				Strategy:    strategy,
				Threshold:   threshold,
			})
		}
	}

	return labeled, failures
}

// LabelMetric labels every row of the given Group Sets by its own value in a
// score column. There is no clustering, so nothing can fail; rows without
// a value come out unresolved.
func LabelMetric(records []model.ScoreRecord, sets []score.GroupSet, column string, threshold float64) []model.LabeledRecord {
	strategy := model.MetricStrategy(column)
	var labeled []model.LabeledRecord
	for _, gs := range sets {
		for _, row := range gs.Rows {
			r := records[row]
			labeled = append(labeled, model.LabeledRecord{
				ScoreRecord: r,
				Label:       score.Label(r.Metric(column), threshold),
				Strategy:    strategy,
				Threshold:   threshold,
			})
		}
	}
	return labeled
}

// alignResult matches gold rows against the labeled rows of one result.
// Gold rows of units that failed grouping are skipped.
func alignResult(res *model.CalibrationResult, gold []model.GoldRecord) (Alignment, error) {
	comp := NewComparator(res.Labeled)
	if !res.Strategy.Grouped() {
		return comp.AlignMetric(gold, string(res.Strategy), res.Threshold)
	}

	failed := make(map[model.GroupKey]bool, len(res.Unresolved))
	for _, f := range res.Unresolved {
		failed[model.GroupKey{Unit: model.UnitKey(f.UnitID), SentIdx: f.SentIdx}] = true
	}
	return comp.Align(gold, failed, res.Threshold, res.Strategy)
}

// unwrapReason strips the unit context from a *score.UnitError, which the
// UnitFailure already carries
func unwrapReason(err error) string {
	var unitErr *score.UnitError
	if errors.As(err, &unitErr) {
		return unitErr.Err.Error()
	}
	return err.Error()
}

// goldGroupSets returns the Group Sets referenced by gold rows, in gold order
func goldGroupSets(records []model.ScoreRecord, gold []model.GoldRecord) []score.GroupSet {
	all := score.BuildGroupSets(records)
	byKey := make(map[model.GroupKey]int, len(all))
	for i, gs := range all {
		byKey[gs.Key] = i
	}

	var sets []score.GroupSet
	seen := make(map[model.GroupKey]bool)
	for _, g := range gold {
		key := g.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		if i, ok := byKey[key]; ok {
			sets = append(sets, all[i])
		}
	}
	return sets
}

// dedupeFloats drops repeated thresholds; NaN never equals itself, so it is
// dropped outright
func dedupeFloats(xs []float64) []float64 {
	var out []float64
	seen := make(map[float64]bool)
	for _, x := range xs {
		if math.IsNaN(x) {
			continue
		}
		if !seen[x] {
			seen[x] = true
			out = append(out, x)
		}
	}
	return out
}

func dedupe[T comparable](xs []T) []T {
	var out []T
	seen := make(map[T]bool)
	for _, x := range xs {
		if !seen[x] {
			seen[x] = true
			out = append(out, x)
		}
	}
	return out
}
