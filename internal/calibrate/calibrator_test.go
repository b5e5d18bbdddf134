package calibrate

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/ppiankov/shiftdetect/internal/model"
	"github.com/ppiankov/shiftdetect/internal/score"
)

func fixtureRecords() []model.ScoreRecord {
	return []model.ScoreRecord{
		{UnitID: "data/run/Drama/AC01_Film/ac01_en-nl_t.lfa", SentIdx: 0, Src: "a", Tgt: "a'", ItemScore: 0.1, UnitScore: 0.3},
		{UnitID: "data/run/Drama/AC01_Film/ac01_en-nl_t.lfa", SentIdx: 0, Src: "b", Tgt: "b'", ItemScore: 0.15, UnitScore: 0.3},
		{UnitID: "data/run/Drama/AC01_Film/ac01_en-nl_t.lfa", SentIdx: 0, Src: "c", Tgt: "c'", ItemScore: 0.6, UnitScore: 0.3},
		{UnitID: "data/run/Drama/AC01_Film/ac01_en-nl_t.lfa", SentIdx: 0, Src: "d", Tgt: "d'", ItemScore: 0.62, UnitScore: 0.3},
		{UnitID: "ac02", SentIdx: 1, Src: "e", Tgt: "e'", ItemScore: 0.2, UnitScore: 0.7},
		{UnitID: "ac02", SentIdx: 1, Src: "f", Tgt: "f'", ItemScore: 0.25, UnitScore: 0.7},
		{UnitID: "ac02", SentIdx: 1, Src: "g", Tgt: "g'", ItemScore: 0.9, UnitScore: 0.7},
		{UnitID: "ac04", SentIdx: 0, Src: "h", Tgt: "h'", ItemScore: 0.3, UnitScore: 0.3},
	}
}

func fixtureGold() []model.GoldRecord {
	return []model.GoldRecord{
		{UnitID: "AC01", SentIdx: 0, Src: "a", HumanLabel: repro},
		{UnitID: "ac01", SentIdx: 0, Src: "c", HumanLabel: shift},
		{UnitID: "AC02_Other", SentIdx: 1, Src: "g", HumanLabel: shift},
		{UnitID: "ac02", SentIdx: 1, Src: "e", HumanLabel: repro},
	}
}

func TestCalibrator_ResultMatrix(t *testing.T) {
	c := NewCalibrator(score.NewGrouper(nil), Options{
		Thresholds: []float64{0.4, 0.5, 0.7, 0.4},
		Strategies: model.AllStrategies,
	})

	cal, err := c.Run(context.Background(), fixtureRecords(), fixtureGold())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cal.Results) != 9 {
		t.Fatalf("expected 9 results (duplicate threshold dropped), got %d", len(cal.Results))
	}

	i := 0
	for _, th := range []float64{0.4, 0.5, 0.7} {
		for _, st := range model.AllStrategies {
			r := cal.Results[i]
			if r.Threshold != th || r.Strategy != st {
				t.Errorf("result %d is (%v, %s), want (%v, %s)", i, r.Threshold, r.Strategy, th, st)
			}
			if r.Aborted() {
				t.Errorf("result %d aborted: %s", i, r.Error)
			}
			if r.Matched != 4 {
				t.Errorf("result %d matched %d gold rows, want 4", i, r.Matched)
			}
			i++
		}
	}

	// word and basic both score 1.0 at 0.4; the first in order wins
	if cal.Best == nil {
		t.Fatal("expected a best configuration")
	}
	if cal.Best.Threshold != 0.4 || cal.Best.Strategy != model.StrategyWord || cal.Best.F1 != 1 {
		t.Errorf("unexpected best %+v", cal.Best)
	}

	// Sentence strategy inverts every gold row at 0.5
	sent, ok := cal.Result(0.5, model.StrategySentence)
	if !ok {
		t.Fatal("missing sentence result at 0.5")
	}
	if sent.F1 != 0 {
		t.Errorf("expected sentence F1 0 at 0.5, got %v", sent.F1)
	}

	// word at 0.7: the ac01 majority drops to reproduction
	word, _ := cal.Result(0.7, model.StrategyWord)
	if math.Abs(word.F1-0.5) > 1e-9 {
		t.Errorf("expected word F1 0.5 at 0.7, got %v", word.F1)
	}

	if cal.RunID == "" || cal.GoldRows != 4 || cal.ScoreRows != 8 {
		t.Errorf("unexpected run metadata: %+v", cal)
	}
}

func TestCalibrator_LabelsFollowExample(t *testing.T) {
	c := NewCalibrator(score.NewGrouper(nil), Options{
		Thresholds: []float64{0.5},
		Strategies: []model.Strategy{model.StrategyWord},
	})

	cal, err := c.Run(context.Background(), fixtureRecords(), fixtureGold())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got []model.Label
	for _, lr := range cal.Results[0].Labeled {
		if lr.UnitID == "ac02" {
			continue
		}
		got = append(got, lr.Label)
		if lr.Strategy != model.StrategyWord || lr.Threshold != 0.5 {
			t.Errorf("labeled row carries wrong config: %+v", lr)
		}
	}

	want := []model.Label{repro, repro, shift, shift}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}
}

func TestCalibrator_SingleGoldRow(t *testing.T) {
	records := []model.ScoreRecord{
		{UnitID: "ac01", SentIdx: 0, Src: "hello", Tgt: "hallo", ItemScore: 0.2, UnitScore: 0.2},
	}
	gold := []model.GoldRecord{
		{UnitID: "ac01", SentIdx: 0, Src: "hello", HumanLabel: repro},
	}

	c := NewCalibrator(score.NewGrouper(nil), Options{
		Thresholds: []float64{0.5},
		Strategies: []model.Strategy{model.StrategyWord},
	})

	cal, err := c.Run(context.Background(), records, gold)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r := cal.Results[0]
	if len(r.Classes) != 1 || r.Classes[0].TP != 1 {
		t.Fatalf("expected one true positive for reproduction, got %+v", r.Classes)
	}
	if r.F1 != 1 {
		t.Errorf("expected macro F1 1, got %v", r.F1)
	}
}

func TestCalibrator_MatchFailureAbortsCombination(t *testing.T) {
	gold := append(fixtureGold(), model.GoldRecord{UnitID: "ac01", SentIdx: 0, Src: "zzz", HumanLabel: repro})

	c := NewCalibrator(score.NewGrouper(nil), Options{
		Thresholds: []float64{0.4, 0.5},
		Strategies: []model.Strategy{model.StrategyWord, model.StrategyBasic},
	})

	cal, err := c.Run(context.Background(), fixtureRecords(), gold)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, r := range cal.Results {
		if !r.Aborted() {
			t.Errorf("expected (%v, %s) to abort", r.Threshold, r.Strategy)
		}
		if !strings.Contains(r.Error, `"zzz"`) || !strings.Contains(r.Error, "gold row 4") {
			t.Errorf("expected error to name the gold row, got %q", r.Error)
		}
	}
	if cal.Best != nil {
		t.Errorf("aborted results must never be best, got %+v", cal.Best)
	}

	if _, err := SelectBest(cal.Results); !errors.Is(err, ErrNoResults) {
		t.Errorf("expected ErrNoResults, got %v", err)
	}
}

func TestCalibrator_SkipsFailedUnits(t *testing.T) {
	records := append(fixtureRecords(),
		model.ScoreRecord{UnitID: "ac03", SentIdx: 2, Src: "x", ItemScore: math.NaN(), UnitScore: 0.5},
		model.ScoreRecord{UnitID: "ac03", SentIdx: 2, Src: "y", ItemScore: math.NaN(), UnitScore: 0.5},
	)
	gold := append(fixtureGold(), model.GoldRecord{UnitID: "ac03", SentIdx: 2, Src: "x", HumanLabel: shift})

	c := NewCalibrator(score.NewGrouper(nil), Options{
		Thresholds: []float64{0.4},
		Strategies: model.AllStrategies,
	})

	cal, err := c.Run(context.Background(), records, gold)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, r := range cal.Results {
		if r.Aborted() {
			t.Fatalf("(%v, %s) aborted: %s", r.Threshold, r.Strategy, r.Error)
		}
		if r.Skipped != 1 || r.Matched != 4 {
			t.Errorf("%s: expected 4 matched and 1 skipped, got %d/%d", r.Strategy, r.Matched, r.Skipped)
		}
		if len(r.Unresolved) != 1 || r.Unresolved[0].UnitID != "ac03" {
			t.Errorf("%s: expected ac03 reported as unresolved, got %+v", r.Strategy, r.Unresolved)
		}
	}
	if cal.Best == nil || cal.Best.Strategy != model.StrategyWord {
		t.Errorf("expected word strategy as best, got %+v", cal.Best)
	}
}

// Results and the selected best must not depend on scheduling.
func TestCalibrator_Deterministic(t *testing.T) {
	opts := Options{
		Thresholds: []float64{0.7, 0.2, 0.5, 0.4, 0.6},
		Strategies: []model.Strategy{model.StrategyBasic, model.StrategySentence, model.StrategyWord},
	}

	serial := opts
	serial.Workers = 1
	parallel := opts
	parallel.Workers = 8

	want, err := NewCalibrator(score.NewGrouper(nil), serial).Run(context.Background(), fixtureRecords(), fixtureGold())
	if err != nil {
		t.Fatalf("serial run: %v", err)
	}

	ignore := cmpopts.IgnoreFields(model.Calibration{}, "RunID", "StartedAt")
	for i := 0; i < 5; i++ {
		got, err := NewCalibrator(score.NewGrouper(nil), parallel).Run(context.Background(), fixtureRecords(), fixtureGold())
		if err != nil {
			t.Fatalf("parallel run %d: %v", i, err)
		}
		if diff := cmp.Diff(want, got, ignore, cmpopts.EquateNaNs()); diff != "" {
			t.Fatalf("parallel run %d differs from serial (-want +got):\n%s", i, diff)
		}
	}
}

func TestCalibrator_Errors(t *testing.T) {
	c := NewCalibrator(score.NewGrouper(nil), Options{Thresholds: []float64{0.5}})
	if _, err := c.Run(context.Background(), fixtureRecords(), nil); !errors.Is(err, ErrNoGold) {
		t.Errorf("expected ErrNoGold, got %v", err)
	}

	c = NewCalibrator(score.NewGrouper(nil), Options{})
	if _, err := c.Run(context.Background(), fixtureRecords(), fixtureGold()); err == nil {
		t.Error("expected error without thresholds")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c = NewCalibrator(score.NewGrouper(nil), Options{Thresholds: []float64{0.5}})
	if _, err := c.Run(ctx, fixtureRecords(), fixtureGold()); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRelabel_CoversWholeTable(t *testing.T) {
	records := fixtureRecords()
	labeled, failures := Relabel(score.NewGrouper(nil), records, 0.4, model.StrategyWord)

	if len(failures) != 0 {
		t.Fatalf("unexpected failures: %+v", failures)
	}
	if len(labeled) != len(records) {
		t.Fatalf("expected %d labeled rows, got %d", len(records), len(labeled))
	}

	// ac04 has no gold row but is still labeled, through the single-value path
	last := labeled[len(labeled)-1]
	if last.UnitID != "ac04" || last.Label != repro {
		t.Errorf("unexpected label for ungraded unit: %+v", last)
	}
}

func TestBestGold(t *testing.T) {
	c := NewCalibrator(score.NewGrouper(nil), Options{
		Thresholds: []float64{0.4},
		Strategies: []model.Strategy{model.StrategyWord},
	})

	gold := fixtureGold()
	cal, err := c.Run(context.Background(), fixtureRecords(), gold)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pairs, err := BestGold(cal, gold)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pairs) != len(gold) {
		t.Fatalf("expected %d pairs, got %d", len(gold), len(pairs))
	}
	for i, p := range pairs {
		if p.Src != gold[i].Src || p.HumanLabel != gold[i].HumanLabel {
			t.Errorf("pair %d does not follow gold order: %+v", i, p)
		}
		if p.Label != p.HumanLabel {
			t.Errorf("pair %d: predicted %q, human %q", i, p.Label, p.HumanLabel)
		}
	}

	if _, err := BestGold(&model.Calibration{}, gold); !errors.Is(err, ErrNoResults) {
		t.Errorf("expected ErrNoResults without best, got %v", err)
	}
}

// withMetric sets one score column on the rows whose src is listed
func withMetric(records []model.ScoreRecord, column string, bySrc map[string]float64) []model.ScoreRecord {
	for i := range records {
		v, ok := bySrc[records[i].Src]
		if !ok {
			continue
		}
		if records[i].Metrics == nil {
			records[i].Metrics = make(map[string]float64)
		}
		records[i].Metrics[column] = v
	}
	return records
}

func metricFixture() []model.ScoreRecord {
	records := withMetric(fixtureRecords(), "astred_score", map[string]float64{"a": 0.2, "c": 0.8, "g": 0.9, "e": 0.1})
	return withMetric(records, "label_changes", map[string]float64{"a": 0.9, "c": 0.1, "g": 0.2, "e": 0.8})
}

func TestCalibrator_MetricColumns(t *testing.T) {
	c := NewCalibrator(score.NewGrouper(nil), Options{
		Thresholds: []float64{0.7},
		Strategies: []model.Strategy{model.StrategyWord},
		Metrics:    []string{"astred_score", "label_changes", "astred_score"},
	})

	cal, err := c.Run(context.Background(), metricFixture(), fixtureGold())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var order []model.Strategy
	for _, r := range cal.Results {
		order = append(order, r.Strategy)
	}
	want := []model.Strategy{model.StrategyWord, "astred_score", "label_changes"}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Fatalf("result order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"astred_score", "label_changes"}, cal.Metrics); diff != "" {
		t.Errorf("metrics mismatch (-want +got):\n%s", diff)
	}

	astred, _ := cal.Result(0.7, model.MetricStrategy("astred_score"))
	if astred.Aborted() || astred.F1 != 1 || astred.Matched != 4 {
		t.Errorf("unexpected astred_score result %+v", astred)
	}
	changes, _ := cal.Result(0.7, model.MetricStrategy("label_changes"))
	if changes.F1 != 0 {
		t.Errorf("expected inverted column to score 0, got %v", changes.F1)
	}

	// Each row is labeled by its own value; rows without one stay unresolved
	for _, lr := range astred.Labeled {
		switch lr.Src {
		case "a", "e":
			if lr.Label != repro {
				t.Errorf("row %s: got %q, want reproduction", lr.Src, lr.Label)
			}
		case "c", "g":
			if lr.Label != shift {
				t.Errorf("row %s: got %q, want creative shift", lr.Src, lr.Label)
			}
		default:
			if lr.Label != model.LabelUnresolved {
				t.Errorf("row %s without a value: got %q", lr.Src, lr.Label)
			}
		}
		if lr.Strategy != "astred_score" {
			t.Errorf("row %s carries thres_metric %q", lr.Src, lr.Strategy)
		}
	}

	// word scores 0.5 at 0.7, so the score column wins
	if cal.Best == nil || cal.Best.Strategy != "astred_score" {
		t.Fatalf("expected astred_score to be best, got %+v", cal.Best)
	}

	pairs, err := BestGold(cal, fixtureGold())
	if err != nil {
		t.Fatalf("best gold: %v", err)
	}
	for i, p := range pairs {
		if p.Label != p.HumanLabel {
			t.Errorf("pair %d: predicted %q, human %q", i, p.Label, p.HumanLabel)
		}
	}
}

func TestCalibrator_ScoresOnGoldRows(t *testing.T) {
	gold := []model.GoldRecord{
		{UnitID: "AC01", SentIdx: 0, Src: "a", HumanLabel: repro, Metrics: map[string]float64{"static_cosine": 0.1}},
		{UnitID: "ac01", SentIdx: 0, Src: "c", HumanLabel: shift, Metrics: map[string]float64{"static_cosine": 0.7}},
		{UnitID: "ac02", SentIdx: 1, Src: "e", HumanLabel: repro, Metrics: map[string]float64{"static_cosine": 0.45}},
		// No score row at all: the gold row's own value is enough
		{UnitID: "zz09", SentIdx: 3, Src: "x", HumanLabel: shift, Metrics: map[string]float64{"static_cosine": 0.8}},
	}

	c := NewCalibrator(score.NewGrouper(nil), Options{
		Thresholds: []float64{0.5, 0.75},
		Metrics:    []string{"static_cosine"},
	})
	cal, err := c.Run(context.Background(), fixtureRecords(), gold)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cal.Results) != 2 || len(cal.Strategies) != 0 {
		t.Fatalf("expected only the score column per threshold, got %+v", cal.Results)
	}
	r := cal.Results[0]
	if r.Aborted() || r.Matched != 4 || r.F1 != 1 {
		t.Errorf("unexpected result at 0.5: %+v", r)
	}
	if cal.Results[1].F1 >= 1 {
		t.Errorf("expected 0.75 to misclassify 0.7, got F1 %v", cal.Results[1].F1)
	}
	if cal.Best != &cal.Results[0] {
		t.Errorf("expected 0.5 to be best, got %+v", cal.Best)
	}
}

func TestCalibrator_MetricMatchFailure(t *testing.T) {
	gold := append(fixtureGold(), model.GoldRecord{UnitID: "zz09", SentIdx: 3, Src: "x", HumanLabel: shift})

	c := NewCalibrator(score.NewGrouper(nil), Options{
		Thresholds: []float64{0.5},
		Metrics:    []string{"astred_score"},
	})
	cal, err := c.Run(context.Background(), metricFixture(), gold)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cal.Results[0].Aborted() || !strings.Contains(cal.Results[0].Error, "zz09") {
		t.Errorf("expected unmatched gold row to abort, got %+v", cal.Results[0])
	}
	if cal.Best != nil {
		t.Errorf("aborted combination must not be best: %+v", cal.Best)
	}
}

func TestRelabel_MetricColumn(t *testing.T) {
	records := metricFixture()
	labeled, failures := Relabel(score.NewGrouper(nil), records, 0.5, model.MetricStrategy("label_changes"))

	if len(failures) != 0 || len(labeled) != len(records) {
		t.Fatalf("expected every row labeled without failures, got %d rows, %+v", len(labeled), failures)
	}
	if labeled[0].Src != "a" || labeled[0].Label != shift {
		t.Errorf("unexpected first row %+v", labeled[0])
	}
	if labeled[len(labeled)-1].Label != model.LabelUnresolved {
		t.Errorf("row without a value should be unresolved, got %+v", labeled[len(labeled)-1])
	}
}

func TestNewCalibrator_DropsNaNThreshold(t *testing.T) {
	c := NewCalibrator(score.NewGrouper(nil), Options{Thresholds: []float64{math.NaN(), 0.4, math.NaN()}})
	if diff := cmp.Diff([]float64{0.4}, c.opts.Thresholds); diff != "" {
		t.Errorf("thresholds mismatch (-want +got):\n%s", diff)
	}
}
