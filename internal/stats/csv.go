package stats

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
)

// ExportScope selects the CSV layout.
type ExportScope int

const (
	// ExportSummary renders rank,label,total over lifetime counts.
	ExportSummary ExportScope = iota
	// ExportDaily renders date,label,count, days ascending and counts
	// descending within a day.
	ExportDaily
)

// ParseExportScope accepts "summary" or "daily".
func ParseExportScope(s string) (ExportScope, error) {
	switch s {
	case "summary", "":
		return ExportSummary, nil
	case "daily":
		return ExportDaily, nil
	}
	return 0, fmt.Errorf("unknown export scope %q", s)
}

// ExportCSV renders the requested table. Labels containing the
// delimiter or quotes are quoted.
func (e *Engine) ExportCSV(scope ExportScope) (string, error) {
	snap := e.Snapshot()

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	switch scope {
	case ExportDaily:
		if err := w.Write([]string{"date", "label", "count"}); err != nil {
			return "", err
		}
		days := make([]string, 0, len(snap.DailyCounts))
		for day := range snap.DailyCounts {
			days = append(days, day)
		}
		sort.Strings(days)
		for _, day := range days {
			for _, lc := range rank(snap.DailyCounts[day]) {
				if err := w.Write([]string{day, lc.Label, strconv.Itoa(lc.Count)}); err != nil {
					return "", err
				}
			}
		}
	default:
		if err := w.Write([]string{"rank", "label", "total"}); err != nil {
			return "", err
		}
		for i, lc := range rank(snap.LifetimeCounts) {
			if err := w.Write([]string{strconv.Itoa(i + 1), lc.Label, strconv.Itoa(lc.Count)}); err != nil {
				return "", err
			}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("write csv: %w", err)
	}
	return buf.String(), nil
}
