package calibrate

import "github.com/ppiankov/shiftdetect/internal/model"

// Evaluate computes per-class and macro-averaged precision, recall and F1.
// gold and pred are aligned by position. The macro average runs over the
// real classes present in either list; an unresolved prediction counts as
// a miss for its gold class. Zero denominators yield 0.
func Evaluate(gold, pred []model.Label) (macro model.ClassMetrics, classes []model.ClassMetrics) {
	present := make(map[model.Label]bool)
	for i := range gold {
		for _, l := range []model.Label{gold[i], pred[i]} {
			if l.IsClass() {
				present[l] = true
			}
		}
	}

	for _, class := range model.Classes {
		if !present[class] {
			continue
		}

		cm := model.ClassMetrics{Label: class}
		for i := range gold {
			switch {
			case gold[i] == class && pred[i] == class:
				cm.TP++
			case pred[i] == class:
				cm.FP++
			case gold[i] == class:
				cm.FN++
			}
			if gold[i] == class {
				cm.Support++
			}
		}

		cm.Precision = safeDiv(cm.TP, cm.TP+cm.FP)
		cm.Recall = safeDiv(cm.TP, cm.TP+cm.FN)
		if cm.Precision+cm.Recall > 0 {
			cm.F1 = 2 * cm.Precision * cm.Recall / (cm.Precision + cm.Recall)
		}
		classes = append(classes, cm)
	}

	macro.Support = len(gold)
	if len(classes) == 0 {
		return macro, classes
	}
	for _, cm := range classes {
		macro.Precision += cm.Precision
		macro.Recall += cm.Recall
		macro.F1 += cm.F1
	}
	n := float64(len(classes))
	macro.Precision /= n
	macro.Recall /= n
	macro.F1 /= n

	return macro, classes
}

func safeDiv(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
