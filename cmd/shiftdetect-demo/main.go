// Demo program showing how sentences are grouped and labeled.
// It prints the natural-breaks partition and the labels of every strategy
// for a few hand-made score lists.
package main

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ppiankov/shiftdetect/internal/cache"
	"github.com/ppiankov/shiftdetect/internal/model"
	"github.com/ppiankov/shiftdetect/internal/score"
)

type sample struct {
	name      string
	scores    []float64
	unitScore float64
}

func main() {
	fmt.Print("=== Creative Shift Grouping Demo ===\n\n")

	samples := []sample{
		{"two clear clusters", []float64{0.1, 0.15, 0.6, 0.62}, 0.3},
		{"lower majority above threshold", []float64{0.55, 0.56, 0.57, 1.4}, 0.5},
		{"one distinct value", []float64{0.3, 0.3, 0.3}, 0.3},
		{"unknown token", []float64{0.2, math.NaN(), 0.25, 0.9}, 0.7},
		{"nothing scored", []float64{math.NaN(), math.NaN()}, 0.4},
	}

	const threshold = 0.5
	mem := cache.NewMemoryCache(time.Minute, time.Minute)
	g := score.NewGrouper(mem)

	for _, s := range samples {
		fmt.Printf("%s: %v (unit score %v)\n", s.name, s.scores, s.unitScore)
		fmt.Println(strings.Repeat("-", 60))

		for _, strategy := range model.AllStrategies {
			grouping, err := g.Group(s.scores, s.unitScore, strategy, threshold)
			if err != nil {
				fmt.Printf("  %-18s ✗ %v\n", strategy, err)
				continue
			}
			fmt.Printf("  %-18s %v\n", strategy, grouping.Labels)
			if strategy == model.StrategyWord && grouping.Partition != nil {
				p := grouping.Partition
				fmt.Printf("  %-18s lower [%v, %v], upper [%v, %v], cut %v, majority %s\n",
					"", p.Min, p.Break, p.UpperMin, p.Max, p.Cut(), grouping.Majority)
			}
		}
		fmt.Println()
	}

	stats := mem.Stats()
	fmt.Printf("Partition cache: %d hits, %d misses, %d partitions\n", stats.Hits, stats.Misses, mem.Len())
}
