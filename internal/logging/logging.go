package logging

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/ppiankov/shiftdetect/internal/model"
)

// Init configures the global slog default. If w is nil, os.Stderr is used.
// Format is "text" or "json". The JSON handler writes non-finite scores as
// strings ("NaN", "+Inf") instead of failing on them.
func Init(level slog.Level, format string, w ...io.Writer) {
	var writer io.Writer = os.Stderr
	if len(w) > 0 && w[0] != nil {
		writer = w[0]
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch format {
	case "json":
		opts.ReplaceAttr = finiteScores
		handler = slog.NewJSONHandler(writer, opts)
	default:
		handler = slog.NewTextHandler(writer, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// Setup applies the logging section of the configuration
func Setup(cfg model.LoggingConfig, w io.Writer) error {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	switch cfg.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q (want text or json)", cfg.Format)
	}
	Init(level, cfg.Format, w)
	return nil
}

// ParseLevel maps debug, info, warn and error to slog levels
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// New returns a logger tagged with a component attribute
func New(component string) *slog.Logger {
	return slog.Default().With(slog.String("component", component))
}

// Combination groups the threshold and strategy of one evaluation
func Combination(threshold float64, strategy model.Strategy) slog.Attr {
	return slog.Group("combination",
		slog.Float64("threshold", threshold),
		slog.String("strategy", string(strategy)))
}

// Failure describes a Group Set that could not be labeled
func Failure(f model.UnitFailure) slog.Attr {
	return slog.Group("unit",
		slog.String("unit_id", f.UnitID),
		slog.Int("sent_idx", f.SentIdx),
		slog.Any("scores", f.Scores),
		slog.String("reason", f.Reason))
}

// finiteScores rewrites NaN and infinite values, which encoding/json rejects
func finiteScores(_ []string, a slog.Attr) slog.Attr {
	switch v := a.Value.Any().(type) {
	case float64:
		if !finite(v) {
			return slog.String(a.Key, formatScore(v))
		}
	case []float64:
		for _, x := range v {
			if !finite(x) {
				out := make([]string, len(v))
				for i, y := range v {
					out[i] = formatScore(y)
				}
				return slog.Any(a.Key, out)
			}
		}
	}
	return a
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
