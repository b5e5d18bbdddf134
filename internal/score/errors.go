package score

import (
	"errors"
	"fmt"
)

var (
	// ErrDegenerateInput means a Group Set has nothing to split: no scored
	// items, or zero variance reaching the clustering step.
	ErrDegenerateInput = errors.New("degenerate input")

	// ErrClusteringFailure means natural breaks could not produce two groups
	ErrClusteringFailure = errors.New("clustering failure")

	// ErrUnknownToken means a score needed for labeling is NaN
	ErrUnknownToken = errors.New("unknown token")

	// ErrInconsistentUnitScore means rows of one Group Set disagree on unit_score
	ErrInconsistentUnitScore = errors.New("inconsistent unit score")
)

// UnitError reports a Group Set that could not be labeled. The message
// carries everything needed to reproduce the failure.
type UnitError struct {
	UnitID  string
	SentIdx int
	Scores  []float64
	Err     error
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("unit %s sent_idx %d scores %v: %v", e.UnitID, e.SentIdx, e.Scores, e.Err)
}

func (e *UnitError) Unwrap() error {
	return e.Err
}
