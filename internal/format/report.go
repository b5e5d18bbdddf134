package format

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/ppiankov/shiftdetect/internal/model"
)

// CalibrationTable renders the result matrix, one row per (threshold,
// strategy) in canonical order, with the best row highlighted.
func CalibrationTable(cal *model.Calibration, m Mode) string {
	tb := NewTable(m)
	tb.Header("threshold", "t_metric", "precision", "recall", "f1-score", "support", "matched", "skipped", "error")
	tb.Columns(
		ColumnConfig{Number: 1, Align: AlignRight},
		ColumnConfig{Number: 3, Align: AlignRight},
		ColumnConfig{Number: 4, Align: AlignRight},
		ColumnConfig{Number: 5, Align: AlignRight},
		ColumnConfig{Number: 6, Align: AlignRight},
		ColumnConfig{Number: 9, MaxWidth: 60},
	)

	for i := range cal.Results {
		r := &cal.Results[i]
		if r.Aborted() {
			tb.Row(FmtThreshold(r.Threshold), r.Strategy, "-", "-", "-", "-", "-", "-", Truncate(r.Error, 60))
			continue
		}
		row := []any{FmtThreshold(r.Threshold), r.Strategy,
			FmtScore(r.Precision), FmtScore(r.Recall), FmtScore(r.F1),
			humanize.Comma(int64(r.Support)), humanize.Comma(int64(r.Matched)), humanize.Comma(int64(r.Skipped)), ""}
		if cal.Best != nil && r.Threshold == cal.Best.Threshold && r.Strategy == cal.Best.Strategy {
			tb.BestRow(row...)
		} else {
			tb.Row(row...)
		}
	}
	return tb.String()
}

// ClassTable renders the per-class breakdown of one result
func ClassTable(r *model.CalibrationResult, m Mode) string {
	tb := NewTable(m)
	tb.Header("label", "precision", "recall", "f1-score", "support", "tp", "fp", "fn")
	for _, c := range r.Classes {
		tb.Row(c.Label, FmtScore(c.Precision), FmtScore(c.Recall), FmtScore(c.F1), c.Support, c.TP, c.FP, c.FN)
	}
	tb.Footer("macro avg", FmtScore(r.Precision), FmtScore(r.Recall), FmtScore(r.F1), r.Support, "", "", "")
	return tb.String()
}

// FailureTable lists units that could not be labeled
func FailureTable(failures []model.UnitFailure, m Mode) string {
	tb := NewTable(m)
	tb.Header("unit_id", "sent_idx", "reason")
	tb.Columns(ColumnConfig{Number: 1, MaxWidth: 50})
	for _, f := range failures {
		tb.Row(f.UnitID, f.SentIdx, f.Reason)
	}
	return tb.String()
}

// BestLine summarizes the selected configuration in one line
func BestLine(cal *model.Calibration) string {
	if cal.Best == nil {
		return "no configuration completed"
	}
	return fmt.Sprintf("best: threshold %s, %s, macro F1 %s",
		FmtThreshold(cal.Best.Threshold), cal.Best.Strategy, FmtScore(cal.Best.F1))
}
