package pipeline

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/ppiankov/shiftdetect/internal/model"
)

func TestParseScores(t *testing.T) {
	input := "\tunit_id\tsent_idx\tsrc\ttgt\titem_score\tunit_score\textra\n" +
		"0\tdata/AC01_Film/ac01.lfa\t0\thello\thallo\t0.1\t0.3\tx\n" +
		"1\tdata/AC01_Film/ac01.lfa\t0\tworld\twereld\t\t0.3\tx\n" +
		"2\tac02\t3.0\t\"quoted\tcell\"\tq\tnan\tNaN\tx\n"

	records, err := ParseScores(strings.NewReader(input), model.DefaultConfig().Columns)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}

	r := records[0]
	if r.UnitID != "data/AC01_Film/ac01.lfa" || r.SentIdx != 0 || r.Src != "hello" || r.Tgt != "hallo" || r.ItemScore != 0.1 || r.UnitScore != 0.3 {
		t.Errorf("unexpected first record %+v", r)
	}
	if !math.IsNaN(records[1].ItemScore) {
		t.Errorf("expected empty cell to parse as NaN, got %v", records[1].ItemScore)
	}
	if records[2].SentIdx != 3 || !math.IsNaN(records[2].ItemScore) || !math.IsNaN(records[2].UnitScore) {
		t.Errorf("unexpected third record %+v", records[2])
	}
	if records[2].Src != "quoted\tcell" {
		t.Errorf("expected quoted cell with tab, got %q", records[2].Src)
	}
}

func TestParseScores_CustomColumns(t *testing.T) {
	cols := model.DefaultConfig().Columns
	cols.UnitID = "film"
	cols.ItemScore = "cosine_w"
	cols.UnitScore = "cosine_sent"

	input := "film\tsent_idx\tsrc\tcosine_w\n" +
		"ac01\t1\ta\t0.5\n"

	records, err := ParseScores(strings.NewReader(input), cols)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if records[0].UnitID != "ac01" || records[0].ItemScore != 0.5 {
		t.Errorf("unexpected record %+v", records[0])
	}
	if !math.IsNaN(records[0].UnitScore) {
		t.Errorf("expected unknown unit score without the column, got %v", records[0].UnitScore)
	}
}

func TestParseScores_Errors(t *testing.T) {
	cols := model.DefaultConfig().Columns

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", "empty score table"},
		{"missing column", "unit_id\tsent_idx\tsrc\n", "item_score"},
		{"bad index", "unit_id\tsent_idx\tsrc\titem_score\nac01\tx\ta\t0.1\n", "line 2"},
		{"fractional index", "unit_id\tsent_idx\tsrc\titem_score\nac01\t1.5\ta\t0.1\n", "sent_idx"},
		{"bad score", "unit_id\tsent_idx\tsrc\titem_score\nac01\t1\ta\tabc\n", "item score"},
	}

	for _, tt := range tests {
		_, err := ParseScores(strings.NewReader(tt.input), cols)
		if err == nil {
			t.Errorf("%s: expected error", tt.name)
			continue
		}
		if !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: expected error mentioning %q, got %v", tt.name, tt.want, err)
		}
	}

	_, err := ParseScores(strings.NewReader("unit_id\tsrc\titem_score\n"), cols)
	if !errors.Is(err, ErrMissingColumn) {
		t.Errorf("expected ErrMissingColumn, got %v", err)
	}
}

func TestParseGold(t *testing.T) {
	input := "unit_id\tsent_idx\tsrc\thuman_label\n" +
		"ac01\t0\thello\tReproduction\n" +
		"\n" +
		"AC02_Other\t4\tworld\tCreative Shift\n"

	gold, err := ParseGold(strings.NewReader(input), model.DefaultConfig().Columns)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(gold) != 2 {
		t.Fatalf("expected 2 gold rows, got %d", len(gold))
	}
	if gold[0].HumanLabel != model.LabelReproduction || gold[1].HumanLabel != model.LabelCreativeShift {
		t.Errorf("unexpected labels %q, %q", gold[0].HumanLabel, gold[1].HumanLabel)
	}

	_, err = ParseGold(strings.NewReader("unit_id\tsent_idx\tsrc\thuman_label\nac01\t0\ta\tmaybe\n"), model.DefaultConfig().Columns)
	if err == nil || !strings.Contains(err.Error(), "maybe") {
		t.Errorf("expected unknown label error, got %v", err)
	}
}

func TestParseScores_Metrics(t *testing.T) {
	input := "unit_id\tsent_idx\tsrc\titem_score\tastred_score\tlabel_changes\n" +
		"ac01\t0\ta\t0.1\t0.25\t3\n" +
		"ac01\t0\tb\t0.2\t\t0\n"

	records, err := ParseScores(strings.NewReader(input), model.DefaultConfig().Columns, "astred_score", "label_changes", "sacr_cross_score")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if diff := cmp.Diff(map[string]float64{"astred_score": 0.25, "label_changes": 3}, records[0].Metrics); diff != "" {
		t.Errorf("metrics mismatch (-want +got):\n%s", diff)
	}
	if !math.IsNaN(records[1].Metric("astred_score")) || records[1].Metric("label_changes") != 0 {
		t.Errorf("unexpected second row metrics %+v", records[1].Metrics)
	}
	if _, ok := records[0].Metrics["sacr_cross_score"]; ok {
		t.Error("a column absent from the header must not be set")
	}

	_, err = ParseScores(strings.NewReader(input+"ac01\t1\tc\t0.3\tbad\t1\n"), model.DefaultConfig().Columns, "astred_score")
	if err == nil || !strings.Contains(err.Error(), "metric astred_score") {
		t.Errorf("expected metric parse error, got %v", err)
	}
}

func TestParseGold_Metrics(t *testing.T) {
	input := "unit_id\tsent_idx\tsrc\thuman_label\tstatic_cosine\n" +
		"ac01\t0\thello\tReproduction\t0.31\n"

	gold, err := ParseGold(strings.NewReader(input), model.DefaultConfig().Columns, "static_cosine")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, ok := gold[0].Metric("static_cosine"); !ok || v != 0.31 {
		t.Errorf("expected gold row to carry its score, got %v (%v)", v, ok)
	}

	gold, err = ParseGold(strings.NewReader(input), model.DefaultConfig().Columns)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gold[0].Metrics != nil {
		t.Errorf("expected no metrics unless requested, got %v", gold[0].Metrics)
	}
}

func TestParseThresholds(t *testing.T) {
	input := "# candidates\n0.4\n\n0.5 # default\n0.4\n  0.45  \n"

	got, err := ParseThresholds(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []float64{0.4, 0.5, 0.45}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("threshold %d: expected %v, got %v", i, want[i], got[i])
		}
	}

	if _, err := ParseThresholds(strings.NewReader("0.4\nhigh\n")); err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("expected error naming line 2, got %v", err)
	}
	if _, err := ParseThresholds(strings.NewReader("NaN\n")); err == nil {
		t.Error("expected NaN threshold to be rejected")
	}
}
