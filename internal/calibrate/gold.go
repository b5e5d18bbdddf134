package calibrate

import (
	"errors"
	"fmt"
	"math"

	"github.com/ppiankov/shiftdetect/internal/model"
	"github.com/ppiankov/shiftdetect/internal/score"
)

// ErrMatchFailure means a gold row has no prediction to compare against
var ErrMatchFailure = errors.New("match failure")

// MatchError carries the context of a gold row that could not be matched
type MatchError struct {
	Threshold float64
	Strategy  model.Strategy
	Row       int // Index of the gold row
	Gold      model.GoldRecord
}

func (e *MatchError) Error() string {
	return fmt.Sprintf("no prediction for gold row %d (unit %s, sent_idx %d, src %q, human_label %q) at threshold %v, strategy %s",
		e.Row, e.Gold.UnitID, e.Gold.SentIdx, e.Gold.Src, e.Gold.HumanLabel, e.Threshold, e.Strategy)
}

// Is makes errors.Is(err, ErrMatchFailure) true
func (e *MatchError) Is(target error) bool {
	return target == ErrMatchFailure
}

type matchKey struct {
	unit    string
	sentIdx int
	src     string
}

// Comparator matches gold rows to predictions on (unit, sent_idx, src).
// Unit identifiers are compared by their canonical key; when several
// predictions share a key the first in input order wins.
type Comparator struct {
	index map[matchKey]int
	rows  []model.LabeledRecord
}

// NewComparator indexes predictions
func NewComparator(predictions []model.LabeledRecord) *Comparator {
	c := &Comparator{
		index: make(map[matchKey]int, len(predictions)),
		rows:  predictions,
	}
	for i, p := range predictions {
		key := matchKey{unit: model.UnitKey(p.UnitID), sentIdx: p.SentIdx, src: p.Src}
		if _, exists := c.index[key]; !exists {
			c.index[key] = i
		}
	}
	return c
}

// Match returns the first prediction for a gold row
func (c *Comparator) Match(g model.GoldRecord) (model.LabeledRecord, bool) {
	i, ok := c.index[matchKey{unit: model.UnitKey(g.UnitID), sentIdx: g.SentIdx, src: g.Src}]
	if !ok {
		return model.LabeledRecord{}, false
	}
	return c.rows[i], true
}

// Alignment is the outcome of matching a gold set against predictions
type Alignment struct {
	Gold    []model.Label
	Pred    []model.Label
	Pairs   []model.GoldPrediction
	Skipped int // Gold rows of units that failed grouping
}

// Align matches every gold row. Rows whose Group Set failed (listed in
// failed) are skipped; any other row without a prediction stops the
// alignment with a *MatchError.
func (c *Comparator) Align(gold []model.GoldRecord, failed map[model.GroupKey]bool, threshold float64, strategy model.Strategy) (Alignment, error) {
	return c.align(gold, failed, threshold, strategy, c.Match)
}

// AlignMetric matches gold rows for a score-column evaluation. A gold row
// that carries the column itself is labeled from its own value; every other
// row needs a matching prediction.
func (c *Comparator) AlignMetric(gold []model.GoldRecord, column string, threshold float64) (Alignment, error) {
	strategy := model.MetricStrategy(column)
	resolve := func(g model.GoldRecord) (model.LabeledRecord, bool) {
		v, ok := g.Metric(column)
		if !ok {
			return c.Match(g)
		}
		return model.LabeledRecord{
			ScoreRecord: model.ScoreRecord{
				UnitID:    g.UnitID,
				SentIdx:   g.SentIdx,
				Src:       g.Src,
				ItemScore: math.NaN(),
				UnitScore: math.NaN(),
				Metrics:   g.Metrics,
			},
			Label:     score.Label(v, threshold),
			Strategy:  strategy,
			Threshold: threshold,
		}, true
	}
	return c.align(gold, nil, threshold, strategy, resolve)
}

func (c *Comparator) align(gold []model.GoldRecord, failed map[model.GroupKey]bool, threshold float64, strategy model.Strategy, resolve func(model.GoldRecord) (model.LabeledRecord, bool)) (Alignment, error) {
	var a Alignment
	for row, g := range gold {
		pred, ok := resolve(g)
		if !ok {
			if failed[g.Key()] {
				a.Skipped++
				continue
			}
			return a, &MatchError{Threshold: threshold, Strategy: strategy, Row: row, Gold: g}
		}

		a.Gold = append(a.Gold, g.HumanLabel)
		a.Pred = append(a.Pred, pred.Label)
		a.Pairs = append(a.Pairs, model.GoldPrediction{LabeledRecord: pred, HumanLabel: g.HumanLabel})
	}
	return a, nil
}
