package format

import (
	"fmt"
	"strconv"
)

// FmtScore formats a metric with four decimals
func FmtScore(v float64) string {
	return fmt.Sprintf("%.4f", v)
}

// FmtThreshold formats a threshold with the shortest exact representation
func FmtThreshold(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Truncate shortens s to maxLen characters, appending "..." if truncated
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
