package model

import (
	"fmt"
	"strings"
)

// Label is the class assigned to a source/target pair
type Label string

const (
	LabelReproduction  Label = "reproduction"   // Semantically faithful
	LabelCreativeShift Label = "creative shift" // Semantically divergent
	LabelUnresolved    Label = "unresolved"     // Score unknown (NaN), no class assigned
)

// Classes lists the two real classes in report order
var Classes = []Label{LabelReproduction, LabelCreativeShift}

// Complement returns the other real class
func (l Label) Complement() Label {
	if l == LabelCreativeShift {
		return LabelReproduction
	}
	return LabelCreativeShift
}

// IsClass reports whether the label is one of the two real classes
func (l Label) IsClass() bool {
	return l == LabelReproduction || l == LabelCreativeShift
}

// ParseLabel parses a human label case-insensitively
func ParseLabel(s string) (Label, error) {
	norm := strings.Join(strings.Fields(strings.ToLower(s)), " ")
	switch norm {
	case "reproduction":
		return LabelReproduction, nil
	case "creative shift", "creative_shift", "creative-shift":
		return LabelCreativeShift, nil
	default:
		return "", fmt.Errorf("unknown label %q (want \"reproduction\" or \"creative shift\")", s)
	}
}

// Strategy selects how a Group Set is labeled
type Strategy string

const (
	StrategyWord     Strategy = "word-major-minor" // Majority label from the majority group's mean item score
	StrategySentence Strategy = "sent-major-minor" // Majority label from the unit (sentence) score
	StrategyBasic    Strategy = "basic"            // Every item compared to the threshold directly
)

// AllStrategies is the default evaluation order
var AllStrategies = []Strategy{StrategyWord, StrategySentence, StrategyBasic}

// ParseStrategy accepts the short wire names and their long forms
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "word-major-minor", "word-majority-minority", "word":
		return StrategyWord, nil
	case "sent-major-minor", "sentence-majority-minority", "sentence", "sent":
		return StrategySentence, nil
	case "basic", "basic-per-item":
		return StrategyBasic, nil
	default:
		return "", fmt.Errorf("unknown strategy %q", s)
	}
}

// ParseStrategies parses a list of strategy names, dropping duplicates
func ParseStrategies(names []string) ([]Strategy, error) {
	var out []Strategy
	seen := make(map[Strategy]bool)
	for _, name := range names {
		st, err := ParseStrategy(name)
		if err != nil {
			return nil, err
		}
		if !seen[st] {
			seen[st] = true
			out = append(out, st)
		}
	}
	return out, nil
}

// MetricStrategy names the basic per-row evaluation of an extra score
// column; the column name is reported as the thres_metric
func MetricStrategy(column string) Strategy {
	return Strategy(column)
}

// Grouped reports whether the strategy is one of the built-in group-set
// strategies rather than a score column
func (s Strategy) Grouped() bool {
	switch s {
	case StrategyWord, StrategySentence, StrategyBasic:
		return true
	}
	return false
}

// ParseMetrics trims and dedupes score column names. A column may not
// shadow a built-in strategy name.
func ParseMetrics(columns []string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	for _, col := range columns {
		col = strings.TrimSpace(col)
		if col == "" {
			return nil, fmt.Errorf("empty metric column name")
		}
		if _, err := ParseStrategy(col); err == nil {
			return nil, fmt.Errorf("metric column %q collides with a strategy name", col)
		}
		if !seen[col] {
			seen[col] = true
			out = append(out, col)
		}
	}
	return out, nil
}

// ResolveStrategy parses a built-in strategy name or one of the given
// metric columns
func ResolveStrategy(name string, metrics []string) (Strategy, error) {
	if st, err := ParseStrategy(name); err == nil {
		return st, nil
	}
	for _, col := range metrics {
		if strings.TrimSpace(name) == col {
			return MetricStrategy(col), nil
		}
	}
	return "", fmt.Errorf("unknown strategy or metric column %q", name)
}
