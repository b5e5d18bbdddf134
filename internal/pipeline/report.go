package pipeline

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/ppiankov/shiftdetect/internal/format"
	"github.com/ppiankov/shiftdetect/internal/model"
	"gopkg.in/yaml.v3"
)

// RenderReport writes the calibration report in the given format:
// table, markdown, json or yaml
func RenderReport(w io.Writer, cal *model.Calibration, formatName string, verbose bool) error {
	switch formatName {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(cal); err != nil {
			return fmt.Errorf("encode JSON: %w", err)
		}
		return nil
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(cal); err != nil {
			return fmt.Errorf("encode YAML: %w", err)
		}
		return enc.Close()
	case "table", "markdown", "":
	default:
		return fmt.Errorf("unknown output format %q", formatName)
	}

	mode := format.ParseMode(formatName)
	if _, err := fmt.Fprintln(w, format.CalibrationTable(cal, mode)); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, format.BestLine(cal)); err != nil {
		return err
	}

	if cal.Best != nil && verbose {
		if _, err := fmt.Fprintf(w, "\n%s\n", format.ClassTable(cal.Best, mode)); err != nil {
			return err
		}
		if len(cal.Best.Unresolved) > 0 {
			if _, err := fmt.Fprintf(w, "\nunits skipped by the best configuration:\n%s\n", format.FailureTable(cal.Best.Unresolved, mode)); err != nil {
				return err
			}
		}
	}
	return nil
}
