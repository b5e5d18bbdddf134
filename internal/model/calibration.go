package model

import "time"

// ClassMetrics holds the per-class scores of one evaluation
type ClassMetrics struct {
	Label     Label   `json:"label" yaml:"label"`
	Precision float64 `json:"precision" yaml:"precision"`
	Recall    float64 `json:"recall" yaml:"recall"`
	F1        float64 `json:"f1-score" yaml:"f1-score"`
	Support   int     `json:"support" yaml:"support"` // Gold rows of this class
	TP        int     `json:"tp" yaml:"tp"`
	FP        int     `json:"fp" yaml:"fp"`
	FN        int     `json:"fn" yaml:"fn"`
}

// UnitFailure records a Group Set that could not be labeled
type UnitFailure struct {
	UnitID  string    `json:"unit_id" yaml:"unit_id"`
	SentIdx int       `json:"sent_idx" yaml:"sent_idx"`
	Scores  []float64 `json:"-" yaml:"-"`
	Reason  string    `json:"reason" yaml:"reason"`
}

// CalibrationResult is the macro-averaged quality of one (threshold, strategy) pair
type CalibrationResult struct {
	Threshold float64  `json:"threshold" yaml:"threshold"`
	Strategy  Strategy `json:"t_metric" yaml:"t_metric"`

	Precision float64 `json:"precision" yaml:"precision"` // Macro average
	Recall    float64 `json:"recall" yaml:"recall"`       // Macro average
	F1        float64 `json:"f1-score" yaml:"f1-score"`   // Macro average
	Support   int     `json:"support" yaml:"support"`     // Scored gold rows

	Classes    []ClassMetrics `json:"classes,omitempty" yaml:"classes,omitempty"`
	Matched    int            `json:"matched" yaml:"matched"` // Gold rows matched to a prediction
	Skipped    int            `json:"skipped" yaml:"skipped"` // Gold rows of units that failed grouping
	Unresolved []UnitFailure  `json:"unresolved,omitempty" yaml:"unresolved,omitempty"`

	// Error is set when the evaluation aborted (match failure); such a
	// result is never eligible as best.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`

	Labeled []LabeledRecord `json:"-" yaml:"-"`
}

// Aborted reports whether the evaluation did not complete
func (r CalibrationResult) Aborted() bool {
	return r.Error != ""
}

// Calibration is the full result matrix of a calibration run
type Calibration struct {
	RunID      string              `json:"run_id" yaml:"run_id"`
	StartedAt  time.Time           `json:"started_at" yaml:"started_at"`
	Thresholds []float64           `json:"thresholds" yaml:"thresholds"`
	Strategies []Strategy          `json:"strategies" yaml:"strategies"`
	Metrics    []string            `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Results    []CalibrationResult `json:"results" yaml:"results"` // Canonical order: threshold, then strategies, then metrics
	Best       *CalibrationResult  `json:"best,omitempty" yaml:"best,omitempty"`
	GoldRows   int                 `json:"gold_rows" yaml:"gold_rows"`
	ScoreRows  int                 `json:"score_rows" yaml:"score_rows"`
}

// Result returns the result for a (threshold, strategy) pair
func (c *Calibration) Result(threshold float64, strategy Strategy) (*CalibrationResult, bool) {
	for i := range c.Results {
		if c.Results[i].Threshold == threshold && c.Results[i].Strategy == strategy {
			return &c.Results[i], true
		}
	}
	return nil, false
}
