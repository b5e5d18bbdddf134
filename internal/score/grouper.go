package score

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/ppiankov/shiftdetect/internal/cache"
	"github.com/ppiankov/shiftdetect/internal/logging"
	"github.com/ppiankov/shiftdetect/internal/model"
	"gonum.org/v1/gonum/stat"
)

// GroupSet is the view over all records of one (unit, sent_idx)
type GroupSet struct {
	Key       model.GroupKey
	UnitID    string    // Identifier as delivered on the first row
	Rows      []int     // Positions of the member records in the source slice
	Scores    []float64 // Item scores in row order
	UnitScore float64   // unit_score of the first row

	inconsistent bool
}

// BuildGroupSets groups records by (unit, sent_idx) in first-appearance order.
// Distinct unit identifiers that normalize to the same key are merged; each
// such pair is logged once.
func BuildGroupSets(records []model.ScoreRecord) []GroupSet {
	index := make(map[model.GroupKey]int)
	var sets []GroupSet

	firstID := make(map[string]string)
	warned := make(map[[2]string]bool)

	for i, r := range records {
		key := r.Key()
		if first, ok := firstID[key.Unit]; !ok {
			firstID[key.Unit] = r.UnitID
		} else if first != r.UnitID && !warned[[2]string{first, r.UnitID}] {
			warned[[2]string{first, r.UnitID}] = true
			logging.New("grouper").Warn("unit identifiers share a key",
				"unit_key", key.Unit, "first", first, "unit_id", r.UnitID)
		}

		pos, ok := index[key]
		if !ok {
			pos = len(sets)
			index[key] = pos
			sets = append(sets, GroupSet{Key: key, UnitID: r.UnitID, UnitScore: r.UnitScore})
		}

		gs := &sets[pos]
		gs.Rows = append(gs.Rows, i)
		gs.Scores = append(gs.Scores, r.ItemScore)
		if !sameScore(gs.UnitScore, r.UnitScore) {
			gs.inconsistent = true
		}
	}

	return sets
}

func sameScore(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return a == b
}

// Grouping is the outcome of labeling one Group Set
type Grouping struct {
	Labels        []model.Label // One per input score, in input order
	Partition     *Partition    // Nil when clustering was bypassed
	Majority      Side
	LowerCount    int
	UpperCount    int
	MajorityLabel model.Label
	MinorityLabel model.Label
}

// Grouper partitions Group Sets and assigns labels. Partitions do not depend
// on the threshold, so they are memoized in the optional cache and reused
// across a threshold sweep.
type Grouper struct {
	cache  cache.Cache
	logger *slog.Logger
}

// NewGrouper creates a grouper; c may be nil to disable memoization
func NewGrouper(c cache.Cache) *Grouper {
	return &Grouper{
		cache:  c,
		logger: logging.New("grouper"),
	}
}

// GroupSet labels a Group Set, wrapping any failure in a *UnitError
func (g *Grouper) GroupSet(gs GroupSet, strategy model.Strategy, threshold float64) (Grouping, error) {
	if strategy == model.StrategySentence && gs.inconsistent {
		return Grouping{}, &UnitError{
			UnitID:  gs.UnitID,
			SentIdx: gs.Key.SentIdx,
			Scores:  gs.Scores,
			Err:     ErrInconsistentUnitScore,
		}
	}

	grouping, err := g.Group(gs.Scores, gs.UnitScore, strategy, threshold)
	if err != nil {
		return Grouping{}, &UnitError{
			UnitID:  gs.UnitID,
			SentIdx: gs.Key.SentIdx,
			Scores:  gs.Scores,
			Err:     err,
		}
	}
	return grouping, nil
}

// Group labels one list of item scores.
//
// NaN scores are left out of clustering and labeled unresolved. The basic
// strategy compares every item to the threshold. Otherwise a single
// distinct value labels every item by that value; two or more are split by
// natural breaks. The larger interval is the majority (on a tie the upper
// interval, which has the larger mean); its label comes from the majority
// mean (word strategy) or unitScore (sentence strategy), and the minority
// gets the complement.
func (g *Grouper) Group(scores []float64, unitScore float64, strategy model.Strategy, threshold float64) (Grouping, error) {
	labels := make([]model.Label, len(scores))
	var finite []float64
	for i, s := range scores {
		if math.IsNaN(s) {
			labels[i] = model.LabelUnresolved
			continue
		}
		finite = append(finite, s)
	}

	if len(finite) == 0 {
		return Grouping{}, fmt.Errorf("%w: no scored items among %d", ErrDegenerateInput, len(scores))
	}

	switch strategy {
	case model.StrategyBasic:
		for i, s := range scores {
			labels[i] = Label(s, threshold)
		}
		return Grouping{Labels: labels, Majority: SideNone}, nil
	case model.StrategyWord, model.StrategySentence:
	default:
		return Grouping{}, fmt.Errorf("unknown strategy %q", strategy)
	}

	if distinct(finite) == 1 {
		lbl := Label(finite[0], threshold)
		for i, s := range scores {
			if !math.IsNaN(s) {
				labels[i] = lbl
			}
		}
		return Grouping{
			Labels:        labels,
			Majority:      SideNone,
			LowerCount:    len(finite),
			MajorityLabel: lbl,
			MinorityLabel: lbl.Complement(),
		}, nil
	}

	p, err := g.partition(finite)
	if err != nil {
		return Grouping{}, err
	}

	var lower, upper []float64
	for _, s := range finite {
		if p.Side(s) == SideLower {
			lower = append(lower, s)
		} else {
			upper = append(upper, s)
		}
	}

	majority, members := SideUpper, upper
	if len(lower) > len(upper) || (len(lower) == len(upper) && stat.Mean(lower, nil) > stat.Mean(upper, nil)) {
		majority, members = SideLower, lower
	}

	representative := stat.Mean(members, nil)
	if strategy == model.StrategySentence {
		if math.IsNaN(unitScore) {
			return Grouping{}, fmt.Errorf("%w: unit score is NaN", ErrUnknownToken)
		}
		representative = unitScore
	}

	majorityLabel := Label(representative, threshold)
	minorityLabel := majorityLabel.Complement()

	for i, s := range scores {
		if math.IsNaN(s) {
			continue
		}
		if p.Side(s) == majority {
			labels[i] = majorityLabel
		} else {
			labels[i] = minorityLabel
		}
	}

	return Grouping{
		Labels:        labels,
		Partition:     &p,
		Majority:      majority,
		LowerCount:    len(lower),
		UpperCount:    len(upper),
		MajorityLabel: majorityLabel,
		MinorityLabel: minorityLabel,
	}, nil
}

// partition computes the natural-breaks partition of finite scores,
// consulting the cache first
func (g *Grouper) partition(scores []float64) (Partition, error) {
	if g.cache == nil {
		return NaturalBreaks(scores)
	}

	sorted := make([]float64, len(scores))
	copy(sorted, scores)
	sort.Float64s(sorted)
	key := cache.ScoresKey("partition", sorted)

	if raw, ok := g.cache.Get(key); ok {
		var p Partition
		if err := json.Unmarshal(raw, &p); err == nil {
			return p, nil
		}
		g.logger.Debug("dropping unreadable cached partition", "key", key)
		_ = g.cache.Delete(key)
	}

	p, err := NaturalBreaks(sorted)
	if err != nil {
		return Partition{}, err
	}

	if raw, err := json.Marshal(p); err == nil {
		if err := g.cache.Set(key, raw, 0); err != nil {
			g.logger.Debug("cache partition", "key", key, "error", err)
		}
	}
	return p, nil
}

func distinct(xs []float64) int {
	seen := make(map[float64]struct{}, len(xs))
	for _, x := range xs {
		seen[x] = struct{}{}
	}
	return len(seen)
}
