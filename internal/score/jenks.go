package score

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Side names one of the two intervals of a Partition
type Side int

const (
	SideNone  Side = iota // Clustering bypassed
	SideLower             // [Min, Break]
	SideUpper             // (Break, Max]
)

func (s Side) String() string {
	switch s {
	case SideLower:
		return "lower"
	case SideUpper:
		return "upper"
	default:
		return "none"
	}
}

// Partition is a two-class natural-breaks split of a score list
type Partition struct {
	Min      float64 `json:"min"`
	Break    float64 `json:"break"`     // Largest value of the lower interval
	UpperMin float64 `json:"upper_min"` // Smallest value of the upper interval
	Max      float64 `json:"max"`
}

// Side returns the interval v belongs to. The lower interval is closed on
// both ends, the upper one is open at the break.
func (p Partition) Side(v float64) Side {
	if v <= p.Break {
		return SideLower
	}
	return SideUpper
}

// Cut returns the midpoint between the two intervals
func (p Partition) Cut() float64 {
	return (p.Break + p.UpperMin) / 2
}

// NaturalBreaks computes the two-class Jenks partition of values: the split
// of the sorted values minimizing the summed within-class squared deviation.
// Splits are only placed between distinct values; among equal-cost splits
// the lowest one wins.
//
// Values must be finite. Fewer than two values is a clustering failure;
// two or more identical values is degenerate input, since callers are
// expected to handle the single-value case before clustering.
func NaturalBreaks(values []float64) (Partition, error) {
	if len(values) < 2 {
		return Partition{}, fmt.Errorf("%w: need at least two values, got %d", ErrClusteringFailure, len(values))
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	for _, v := range sorted {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Partition{}, fmt.Errorf("%w: non-finite value %v", ErrClusteringFailure, v)
		}
	}
	sort.Float64s(sorted)

	n := len(sorted)
	if sorted[0] == sorted[n-1] {
		return Partition{}, fmt.Errorf("%w: zero variance (all values %v)", ErrDegenerateInput, sorted[0])
	}

	bestSplit := -1
	bestCost := math.Inf(1)
	for i := 1; i < n; i++ {
		if sorted[i-1] == sorted[i] {
			continue
		}
		cost := sumSquaredDeviation(sorted[:i]) + sumSquaredDeviation(sorted[i:])
		if cost < bestCost {
			bestCost = cost
			bestSplit = i
		}
	}

	if bestSplit < 0 {
		return Partition{}, fmt.Errorf("%w: no split found for %v", ErrClusteringFailure, sorted)
	}

	return Partition{
		Min:      sorted[0],
		Break:    sorted[bestSplit-1],
		UpperMin: sorted[bestSplit],
		Max:      sorted[n-1],
	}, nil
}

func sumSquaredDeviation(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	return stat.Variance(xs, nil) * float64(len(xs)-1)
}
