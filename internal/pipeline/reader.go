package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/ppiankov/shiftdetect/internal/model"
)

// ErrMissingColumn means a required column is absent from a table header
var ErrMissingColumn = errors.New("missing column")

// header maps column names to positions
type header map[string]int

func newHeader(row []string) header {
	h := make(header, len(row))
	for i, name := range row {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, dup := h[name]; !dup {
			h[name] = i
		}
	}
	return h
}

// require resolves the given columns or fails naming the first missing one
func (h header) require(names ...string) ([]int, error) {
	out := make([]int, len(names))
	for i, n := range names {
		pos, ok := h[n]
		if !ok {
			return nil, fmt.Errorf("%w %q", ErrMissingColumn, n)
		}
		out[i] = pos
	}
	return out, nil
}

// optional returns the column position or -1
func (h header) optional(name string) int {
	if name == "" {
		return -1
	}
	if pos, ok := h[name]; ok {
		return pos
	}
	return -1
}

func newTSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	return cr
}

func field(row []string, pos int) string {
	if pos < 0 || pos >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[pos])
}

// parseScore reads a score cell; empty and "nan" cells are unknown scores
func parseScore(s string) (float64, error) {
	switch strings.ToLower(s) {
	case "", "nan", "none", "null":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// metricColumns resolves the extra score columns present in the header
func (h header) metricColumns(names []string) map[string]int {
	out := make(map[string]int, len(names))
	for _, n := range names {
		if pos := h.optional(n); pos >= 0 {
			out[n] = pos
		}
	}
	return out
}

// parseMetrics reads the extra score columns of one row
func parseMetrics(row []string, cols map[string]int) (map[string]float64, error) {
	if len(cols) == 0 {
		return nil, nil
	}
	out := make(map[string]float64, len(cols))
	for name, pos := range cols {
		v, err := parseScore(field(row, pos))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

// parseIndex reads a sent_idx cell, accepting integral floats such as "3.0"
func parseIndex(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid sent_idx %q", s)
	}
	return int(f), nil
}

// ParseScores reads a tab-separated score table. The first row is the
// header; columns are located by the configured names and unknown columns
// are ignored. A missing unit_score column leaves every unit score unknown.
// The named metric columns are read into Metrics when the header has them.
func ParseScores(r io.Reader, cols model.ColumnsConfig, metrics ...string) ([]model.ScoreRecord, error) {
	cr := newTSVReader(r)

	head, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty score table")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	h := newHeader(head)
	req, err := h.require(cols.UnitID, cols.SentIdx, cols.Src, cols.ItemScore)
	if err != nil {
		return nil, fmt.Errorf("score table: %w", err)
	}
	unitPos, sentPos, srcPos, itemPos := req[0], req[1], req[2], req[3]
	tgtPos := h.optional(cols.Tgt)
	unitScorePos := h.optional(cols.UnitScore)
	metricPos := h.metricColumns(metrics)

	var records []model.ScoreRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("score table line %d: %w", line, err)
		}
		if len(row) == 1 && strings.TrimSpace(row[0]) == "" {
			continue
		}

		sentIdx, err := parseIndex(field(row, sentPos))
		if err != nil {
			return nil, fmt.Errorf("score table line %d: %w", line, err)
		}
		item, err := parseScore(field(row, itemPos))
		if err != nil {
			return nil, fmt.Errorf("score table line %d: item score: %w", line, err)
		}
		unit := math.NaN()
		if unitScorePos >= 0 {
			unit, err = parseScore(field(row, unitScorePos))
			if err != nil {
				return nil, fmt.Errorf("score table line %d: unit score: %w", line, err)
			}
		}
		extra, err := parseMetrics(row, metricPos)
		if err != nil {
			return nil, fmt.Errorf("score table line %d: metric %w", line, err)
		}

		records = append(records, model.ScoreRecord{
			UnitID:    field(row, unitPos),
			SentIdx:   sentIdx,
			Src:       field(row, srcPos),
			Tgt:       field(row, tgtPos),
			ItemScore: item,
			UnitScore: unit,
			Metrics:   extra,
		})
	}

	return records, nil
}

// ParseGold reads a tab-separated gold table. Metric columns found in the
// header are kept on each row, so a gold table can carry its own scores.
func ParseGold(r io.Reader, cols model.ColumnsConfig, metrics ...string) ([]model.GoldRecord, error) {
	cr := newTSVReader(r)

	head, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty gold table")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	h := newHeader(head)
	req, err := h.require(cols.UnitID, cols.SentIdx, cols.Src, cols.HumanLabel)
	if err != nil {
		return nil, fmt.Errorf("gold table: %w", err)
	}
	unitPos, sentPos, srcPos, labelPos := req[0], req[1], req[2], req[3]
	metricPos := h.metricColumns(metrics)

	var gold []model.GoldRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gold table line %d: %w", line, err)
		}
		if len(row) == 1 && strings.TrimSpace(row[0]) == "" {
			continue
		}

		sentIdx, err := parseIndex(field(row, sentPos))
		if err != nil {
			return nil, fmt.Errorf("gold table line %d: %w", line, err)
		}
		label, err := model.ParseLabel(field(row, labelPos))
		if err != nil {
			return nil, fmt.Errorf("gold table line %d: %w", line, err)
		}
		extra, err := parseMetrics(row, metricPos)
		if err != nil {
			return nil, fmt.Errorf("gold table line %d: metric %w", line, err)
		}

		gold = append(gold, model.GoldRecord{
			UnitID:     field(row, unitPos),
			SentIdx:    sentIdx,
			Src:        field(row, srcPos),
			HumanLabel: label,
			Metrics:    extra,
		})
	}

	return gold, nil
}

// ReadScores reads a score table from a file
func ReadScores(path string, cols model.ColumnsConfig, metrics ...string) ([]model.ScoreRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scores: %w", err)
	}
	defer func() { _ = f.Close() }()

	records, err := ParseScores(f, cols, metrics...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// ReadGold reads a gold table from a file
func ReadGold(path string, cols model.ColumnsConfig, metrics ...string) ([]model.GoldRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gold: %w", err)
	}
	defer func() { _ = f.Close() }()

	gold, err := ParseGold(f, cols, metrics...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return gold, nil
}
