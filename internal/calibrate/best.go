package calibrate

import (
	"fmt"

	"github.com/ppiankov/shiftdetect/internal/model"
	"github.com/ppiankov/shiftdetect/internal/score"
)

// Relabel applies one configuration to every Group Set of the score table.
// This is inference, not calibration: failing units are skipped and
// returned, never aborting the batch. A score-column strategy labels each
// row by its own value.
func Relabel(g *score.Grouper, records []model.ScoreRecord, threshold float64, strategy model.Strategy) ([]model.LabeledRecord, []model.UnitFailure) {
	sets := score.BuildGroupSets(records)
	if !strategy.Grouped() {
		return LabelMetric(records, sets, string(strategy), threshold), nil
	}
	return LabelSets(g, records, sets, strategy, threshold)
}

// BestGold joins each gold row with the prediction of the best configuration
func BestGold(cal *model.Calibration, gold []model.GoldRecord) ([]model.GoldPrediction, error) {
	if cal == nil || cal.Best == nil {
		return nil, ErrNoResults
	}

	alignment, err := alignResult(cal.Best, gold)
	if err != nil {
		return nil, fmt.Errorf("align best predictions: %w", err)
	}
	return alignment.Pairs, nil
}
