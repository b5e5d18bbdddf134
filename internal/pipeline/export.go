package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/gofrs/flock"
	"github.com/ppiankov/shiftdetect/internal/logging"
	"github.com/ppiankov/shiftdetect/internal/model"
)

// ErrUnknownThreshold means an export asked for a threshold that was not evaluated
var ErrUnknownThreshold = errors.New("threshold not evaluated")

var labeledColumns = []string{"unit_id", "sent_idx", "src", "tgt", "item_score", "unit_score", "labels", "thres_metric"}

var goldColumns = []string{"unit_id", "sent_idx", "src", "tgt", "item_score", "unit_score", "human_label", "labels", "thres_metric"}

// Exporter writes timestamped TSV files into one directory
type Exporter struct {
	dir    string
	layout string
	now    func() time.Time
	logger *slog.Logger
}

// NewExporter creates an exporter; layout is a Go time layout for file names
func NewExporter(dir, layout string) *Exporter {
	if dir == "" {
		dir = "."
	}
	if layout == "" {
		layout = "02012006_150405"
	}
	return &Exporter{
		dir:    dir,
		layout: layout,
		now:    time.Now,
		logger: logging.New("pipeline"),
	}
}

// ExportName returns "<timestamp>-<threshold>-<strategy><suffix>.tsv"
func ExportName(ts time.Time, layout string, threshold float64, strategy model.Strategy, suffix string) string {
	return fmt.Sprintf("%s-%s-%s%s.tsv", ts.Format(layout), formatFloat(threshold), strategy, suffix)
}

// ExportResult writes the labeled gold units of one evaluated combination
func (e *Exporter) ExportResult(cal *model.Calibration, threshold float64, strategy model.Strategy) (string, error) {
	if !evaluated(cal, threshold) {
		return "", fmt.Errorf("%w: %s (evaluated: %v)", ErrUnknownThreshold, formatFloat(threshold), cal.Thresholds)
	}
	r, ok := cal.Result(threshold, strategy)
	if !ok {
		return "", fmt.Errorf("strategy %s was not evaluated at threshold %s", strategy, formatFloat(threshold))
	}
	return e.ExportLabeled(r.Labeled, threshold, strategy)
}

// ExportLabeled writes a labeled table
func (e *Exporter) ExportLabeled(rows []model.LabeledRecord, threshold float64, strategy model.Strategy) (string, error) {
	name := ExportName(e.now(), e.layout, threshold, strategy, "")
	return e.write(name, func(w io.Writer) error { return WriteLabeled(w, rows) })
}

// ExportGold writes the gold rows joined with the best configuration's labels
func (e *Exporter) ExportGold(best *model.CalibrationResult, pairs []model.GoldPrediction) (string, error) {
	name := ExportName(e.now(), e.layout, best.Threshold, best.Strategy, "-gold")
	return e.write(name, func(w io.Writer) error { return WriteGoldPredictions(w, pairs) })
}

// write creates dir/name under an exclusive lock, through a temp file and rename
func (e *Exporter) write(name string, fn func(io.Writer) error) (string, error) {
	if err := os.MkdirAll(e.dir, 0755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(e.dir, name)

	if err := WriteFileLocked(path, fn); err != nil {
		return "", err
	}

	e.logger.Debug("export written", "path", path)
	return path, nil
}

// WriteFileLocked writes path while holding path+".lock"
func WriteFileLocked(path string, fn func(io.Writer) error) error {
	fl := flock.New(path + ".lock")
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() { _ = fl.Unlock() }()

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := fn(tmp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// WriteLabeled writes labeled rows as TSV with "labels" and "thres_metric"
// columns. Metric columns carried by the rows follow unit_score, sorted by name.
func WriteLabeled(w io.Writer, rows []model.LabeledRecord) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'

	records := make([]model.ScoreRecord, len(rows))
	for i, r := range rows {
		records[i] = r.ScoreRecord
	}
	metrics := metricNames(records)

	if err := cw.Write(withMetrics(labeledColumns, metrics)); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(append(scoreFields(r.ScoreRecord, metrics), string(r.Label), string(r.Strategy))); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteGoldPredictions writes gold rows with both the human and the predicted label
func WriteGoldPredictions(w io.Writer, pairs []model.GoldPrediction) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'

	records := make([]model.ScoreRecord, len(pairs))
	for i, p := range pairs {
		records[i] = p.ScoreRecord
	}
	metrics := metricNames(records)

	if err := cw.Write(withMetrics(goldColumns, metrics)); err != nil {
		return err
	}
	for _, p := range pairs {
		row := append(scoreFields(p.ScoreRecord, metrics), string(p.HumanLabel), string(p.Label), string(p.Strategy))
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func scoreFields(r model.ScoreRecord, metrics []string) []string {
	out := []string{
		r.UnitID,
		strconv.Itoa(r.SentIdx),
		r.Src,
		r.Tgt,
		formatFloat(r.ItemScore),
		formatFloat(r.UnitScore),
	}
	for _, m := range metrics {
		out = append(out, formatFloat(r.Metric(m)))
	}
	return out
}

// metricNames collects the metric columns present on any row
func metricNames(records []model.ScoreRecord) []string {
	seen := make(map[string]bool)
	var names []string
	for _, r := range records {
		for name := range r.Metrics {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names
}

// withMetrics inserts the metric column names after unit_score
func withMetrics(columns, metrics []string) []string {
	if len(metrics) == 0 {
		return columns
	}
	out := make([]string, 0, len(columns)+len(metrics))
	out = append(out, columns[:6]...)
	out = append(out, metrics...)
	return append(out, columns[6:]...)
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func evaluated(cal *model.Calibration, threshold float64) bool {
	for _, th := range cal.Thresholds {
		if th == threshold {
			return true
		}
	}
	return false
}
