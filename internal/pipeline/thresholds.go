package pipeline

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// ParseThresholds reads candidate thresholds, one per line. Blank lines and
// "#" comments are skipped and duplicates dropped, keeping the first.
func ParseThresholds(r io.Reader) ([]float64, error) {
	var out []float64
	seen := make(map[float64]bool)

	scanner := bufio.NewScanner(r)
	for line := 1; scanner.Scan(); line++ {
		text := scanner.Text()
		if i := strings.Index(text, "#"); i >= 0 {
			text = text[:i]
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		v, err := strconv.ParseFloat(text, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("line %d: invalid threshold %q", line, text)
		}
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan thresholds: %w", err)
	}
	return out, nil
}

// ReadThresholds reads a threshold file
func ReadThresholds(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	ths, err := ParseThresholds(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ths, nil
}
