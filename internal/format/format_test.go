package format_test

import (
	"strings"
	"testing"

	"github.com/ppiankov/shiftdetect/internal/format"
	"github.com/ppiankov/shiftdetect/internal/model"
)

func TestASCII_BasicTable(t *testing.T) {
	tb := format.NewTable(format.ASCII)
	tb.Header("threshold", "f1-score")
	tb.Row("0.5", 0.95)
	out := tb.String()

	if !strings.Contains(strings.ToLower(out), "threshold") || !strings.Contains(out, "0.95") {
		t.Errorf("expected header and value in output:\n%s", out)
	}
	if !strings.Contains(out, "─") {
		t.Errorf("expected box-drawing characters in ASCII mode:\n%s", out)
	}
}

func TestMarkdown_BasicTable(t *testing.T) {
	tb := format.NewTable(format.Markdown)
	tb.Header("A", "B")
	tb.Row("x", "y")
	out := tb.String()

	if !strings.Contains(out, "| A") {
		t.Errorf("expected markdown header row:\n%s", out)
	}
	if !strings.Contains(out, "| x | y |") {
		t.Errorf("expected markdown data row:\n%s", out)
	}
}

func TestParseMode(t *testing.T) {
	if format.ParseMode("markdown") != format.Markdown || format.ParseMode("md") != format.Markdown {
		t.Error("expected markdown mode")
	}
	if format.ParseMode("table") != format.ASCII {
		t.Error("expected ASCII mode for table")
	}
}

func sampleCalibration() *model.Calibration {
	cal := &model.Calibration{
		Results: []model.CalibrationResult{
			{Threshold: 0.4, Strategy: model.StrategyWord, Precision: 1, Recall: 1, F1: 1, Support: 1234, Matched: 1234},
			{Threshold: 0.4, Strategy: model.StrategySentence, Error: "no prediction for gold row 3"},
		},
	}
	cal.Best = &cal.Results[0]
	return cal
}

func TestCalibrationTable(t *testing.T) {
	out := strings.ToLower(format.CalibrationTable(sampleCalibration(), format.Markdown))

	for _, want := range []string{"t_metric", "f1-score", "word-major-minor", "1.0000", "1,234", "no prediction for gold row 3"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestBestRow(t *testing.T) {
	ascii := format.NewTable(format.ASCII)
	ascii.Header("threshold", "t_metric")
	ascii.Row("0.4", "basic")
	ascii.BestRow("0.45", model.StrategyWord)
	if out := ascii.String(); !strings.Contains(out, format.BestMarker+"0.45") || strings.Contains(out, format.BestMarker+"0.4 ") {
		t.Errorf("expected only the best row marked:\n%s", out)
	}

	md := format.NewTable(format.Markdown)
	md.Header("threshold", "t_metric", "error")
	md.Row("0.4", "basic", "")
	md.BestRow("0.45", model.StrategyWord, "")
	out := md.String()
	if !strings.Contains(out, "**0.45**") || !strings.Contains(out, "**word-major-minor**") {
		t.Errorf("expected bold best row:\n%s", out)
	}
	if strings.Contains(out, "**basic**") || strings.Contains(out, "****") {
		t.Errorf("expected plain data row and no bold empty cells:\n%s", out)
	}
}

func TestCalibrationTable_MarksBest(t *testing.T) {
	out := format.CalibrationTable(sampleCalibration(), format.ASCII)
	if strings.Count(out, format.BestMarker) != 1 || !strings.Contains(out, format.BestMarker+"0.4") {
		t.Errorf("expected the best row marked once:\n%s", out)
	}

	md := format.CalibrationTable(sampleCalibration(), format.Markdown)
	if !strings.Contains(md, "**word-major-minor**") || strings.Contains(md, "**sent-major-minor**") {
		t.Errorf("expected only the best row in bold:\n%s", md)
	}
}

func TestClassTable(t *testing.T) {
	r := &model.CalibrationResult{
		Precision: 0.75, Recall: 0.5, F1: 0.6, Support: 3,
		Classes: []model.ClassMetrics{
			{Label: model.LabelReproduction, Precision: 0.5, Recall: 1, F1: 0.6667, Support: 1, TP: 1, FP: 1},
		},
	}
	out := format.ClassTable(r, format.ASCII)
	if !strings.Contains(strings.ToLower(out), "reproduction") || !strings.Contains(out, "0.7500") {
		t.Errorf("unexpected class table:\n%s", out)
	}
	if !strings.Contains(strings.ToUpper(out), "MACRO AVG") {
		t.Errorf("expected macro avg footer:\n%s", out)
	}
}

func TestBestLine(t *testing.T) {
	if got := format.BestLine(sampleCalibration()); !strings.Contains(got, "threshold 0.4") || !strings.Contains(got, "1.0000") {
		t.Errorf("unexpected best line %q", got)
	}
	if got := format.BestLine(&model.Calibration{}); got != "no configuration completed" {
		t.Errorf("unexpected line without best: %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := format.Truncate("abcdefgh", 6); got != "abc..." {
		t.Errorf("got %q", got)
	}
	if got := format.Truncate("abc", 6); got != "abc" {
		t.Errorf("got %q", got)
	}
}
