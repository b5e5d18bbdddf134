package score

import (
	"math"

	"github.com/ppiankov/shiftdetect/internal/model"
)

// Label maps a value to a class: strictly above the threshold is a
// creative shift, anything else (including equality) is a reproduction.
// NaN has no class and maps to unresolved.
func Label(value, threshold float64) model.Label {
	if math.IsNaN(value) {
		return model.LabelUnresolved
	}
	if value > threshold {
		return model.LabelCreativeShift
	}
	return model.LabelReproduction
}
