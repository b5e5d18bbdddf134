package model

import (
	"math"
	"path"
	"strings"
)

// ScoreRecord is one aligned source/target pair inside a larger text unit
type ScoreRecord struct {
	UnitID    string  `json:"unit_id"`    // Document/film identifier as delivered (often path-derived)
	SentIdx   int     `json:"sent_idx"`   // Position of the sentence within the document
	Src       string  `json:"src"`        // Source token or sentence
	Tgt       string  `json:"tgt"`        // Target token or sentence
	ItemScore float64 `json:"item_score"` // Distance in [0, 2]; NaN when the token was unknown to the score source
	UnitScore float64 `json:"unit_score"` // Sentence-level score, constant per (unit, sent_idx)

	Metrics map[string]float64 `json:"metrics,omitempty"` // Extra per-row score columns, by column name
}

// Metric returns the value of an extra score column; NaN when the row has none
func (r ScoreRecord) Metric(column string) float64 {
	if v, ok := r.Metrics[column]; ok {
		return v
	}
	return math.NaN()
}

// Key returns the group-set key the record belongs to
func (r ScoreRecord) Key() GroupKey {
	return GroupKey{Unit: UnitKey(r.UnitID), SentIdx: r.SentIdx}
}

// GoldRecord is one human-annotated example
type GoldRecord struct {
	UnitID     string `json:"unit_id"`
	SentIdx    int    `json:"sent_idx"`
	Src        string `json:"src"`
	HumanLabel Label  `json:"human_label"`

	Metrics map[string]float64 `json:"metrics,omitempty"` // Score columns carried by the gold table itself
}

// Metric returns the gold row's own value for a score column
func (g GoldRecord) Metric(column string) (float64, bool) {
	v, ok := g.Metrics[column]
	return v, ok
}

// Key returns the group-set key the gold row refers to
func (g GoldRecord) Key() GroupKey {
	return GroupKey{Unit: UnitKey(g.UnitID), SentIdx: g.SentIdx}
}

// LabeledRecord is a score row augmented with the predicted label and the
// strategy that produced it
type LabeledRecord struct {
	ScoreRecord
	Label     Label    `json:"labels"`
	Strategy  Strategy `json:"thres_metric"`
	Threshold float64  `json:"threshold"`
}

// GroupKey identifies a Group Set: all records of one sentence in one unit
type GroupKey struct {
	Unit    string // Canonical unit key (see UnitKey)
	SentIdx int
}

// UnitKey normalizes a path-derived document identifier to its canonical key.
//
// "../data/run/Drama/AC01_Title/ac01_en-nl_t.lfa", "subs/ac01_en-nl.tsv",
// "AC01_Title" and "ac01" all map to "ac01". Separators are unified and the
// film prefix before the first underscore is kept, lower-cased. A file name
// without such a prefix ("AC01_Title/subs.lfa") defers to its directory.
func UnitKey(id string) string {
	s := strings.TrimSpace(strings.ReplaceAll(id, `\`, "/"))
	s = strings.Trim(s, "/")

	segments := strings.Split(s, "/")
	seg := segments[len(segments)-1]
	if ext := path.Ext(seg); ext != "" {
		stem := strings.TrimSuffix(seg, ext)
		if strings.Index(stem, "_") > 0 || len(segments) == 1 {
			seg = stem
		} else {
			seg = segments[len(segments)-2]
		}
	}

	if i := strings.Index(seg, "_"); i > 0 {
		seg = seg[:i]
	}

	return strings.ToLower(seg)
}

// GoldPrediction pairs a gold row with the prediction it was matched to
type GoldPrediction struct {
	LabeledRecord
	HumanLabel Label `json:"human_label"`
}
