package stats

import (
	"sort"
	"strings"
	"time"

	"keylens/internal/classify"
)

// Scope selects the counter set a ranking reads from.
type Scope int

const (
	ScopeLifetime Scope = iota
	ScopeToday
	ScopeCombos
)

func (s Scope) String() string {
	switch s {
	case ScopeLifetime:
		return "lifetime"
	case ScopeToday:
		return "today"
	case ScopeCombos:
		return "combos"
	default:
		return "unknown"
	}
}

// ParseScope parses the name returned by Scope.String.
func ParseScope(s string) (Scope, bool) {
	switch strings.ToLower(s) {
	case "lifetime", "total", "":
		return ScopeLifetime, true
	case "today":
		return ScopeToday, true
	case "combos", "combo":
		return ScopeCombos, true
	}
	return 0, false
}

// LabelCount is a label with its count.
type LabelCount struct {
	Label string
	Count int
}

// Totals summarizes the snapshot.
type Totals struct {
	Lifetime  int
	Today     int
	StartedAt time.Time
	// MeanInterval is nil until at least one interval was admitted.
	MeanInterval    *float64
	IntervalSamples int
}

// CategoryTotal is the lifetime sum of one label category.
type CategoryTotal struct {
	Category classify.Category
	Count    int
}

// DayTotal is the sum of all labels on one day.
type DayTotal struct {
	Day   Day
	Total int
}

// DayLabelCount is one label's count on one day.
type DayLabelCount struct {
	Day   Day
	Label string
	Count int
}

// Entry is a label with both its lifetime and today counts.
type Entry struct {
	Label    string
	Lifetime int
	Today    int
}

// rank sorts counts descending, breaking ties by label.
func rank(counts map[string]int) []LabelCount {
	out := make([]LabelCount, 0, len(counts))
	for label, n := range counts {
		out = append(out, LabelCount{Label: label, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	return out
}

func limit(items []LabelCount, n int) []LabelCount {
	if n < len(items) {
		return items[:n]
	}
	return items
}

// TopLabels returns up to n labels with the highest counts in scope.
func (e *Engine) TopLabels(n int, scope Scope) []LabelCount {
	if n <= 0 {
		return []LabelCount{}
	}

	e.mu.Lock()
	var ranked []LabelCount
	switch scope {
	case ScopeToday:
		ranked = rank(e.snap.DailyCounts[e.dayKey(e.now())])
	case ScopeCombos:
		ranked = rank(e.snap.ModifierComboCounts)
	default:
		ranked = rank(e.snap.LifetimeCounts)
	}
	e.mu.Unlock()

	return limit(ranked, n)
}

// TopCombos returns up to n combos whose label starts with prefix.
func (e *Engine) TopCombos(prefix string, n int) []LabelCount {
	if n <= 0 {
		return []LabelCount{}
	}

	e.mu.Lock()
	matched := make(map[string]int)
	for label, count := range e.snap.ModifierComboCounts {
		if strings.HasPrefix(label, prefix) {
			matched[label] = count
		}
	}
	e.mu.Unlock()

	return limit(rank(matched), n)
}

// Totals returns the lifetime and today totals and interval statistics.
func (e *Engine) Totals() Totals {
	e.mu.Lock()
	defer e.mu.Unlock()

	t := Totals{
		StartedAt:       e.snap.StartedAt,
		IntervalSamples: e.snap.IntervalSampleCount,
	}
	for _, n := range e.snap.LifetimeCounts {
		t.Lifetime += n
	}
	for _, n := range e.snap.DailyCounts[e.dayKey(e.now())] {
		t.Today += n
	}
	if e.snap.IntervalSampleCount > 0 {
		mean := e.snap.MeanIntervalMs
		t.MeanInterval = &mean
	}
	return t
}

// PerCategoryTotals sums lifetime counts by label category, omitting
// empty categories, largest first.
func (e *Engine) PerCategoryTotals() []CategoryTotal {
	sums := make(map[classify.Category]int)

	e.mu.Lock()
	for label, n := range e.snap.LifetimeCounts {
		sums[classify.CategoryOf(label)] += n
	}
	e.mu.Unlock()

	out := make([]CategoryTotal, 0, len(sums))
	for _, c := range classify.Categories() {
		if sums[c] > 0 {
			out = append(out, CategoryTotal{Category: c, Count: sums[c]})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

// DailySeries returns the total of every recorded day, oldest first.
// Keys that are not valid days are skipped.
func (e *Engine) DailySeries() []DayTotal {
	e.mu.Lock()
	out := make([]DayTotal, 0, len(e.snap.DailyCounts))
	for key, counts := range e.snap.DailyCounts {
		day, err := ParseDay(key)
		if err != nil {
			continue
		}
		total := 0
		for _, n := range counts {
			total += n
		}
		out = append(out, DayTotal{Day: day, Total: total})
	}
	e.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out
}

// PerDayTop picks the n labels with the highest combined count over the
// most recent recentDays recorded days, and returns each of those labels'
// count on each of those days. Rows are ordered by day, then by the
// label's combined rank.
func (e *Engine) PerDayTop(n, recentDays int) []DayLabelCount {
	if n <= 0 || recentDays <= 0 {
		return []DayLabelCount{}
	}

	type dayCounts struct {
		day    Day
		counts map[string]int
	}

	e.mu.Lock()
	days := make([]dayCounts, 0, len(e.snap.DailyCounts))
	for key, counts := range e.snap.DailyCounts {
		day, err := ParseDay(key)
		if err != nil {
			continue
		}
		c := make(map[string]int, len(counts))
		for label, v := range counts {
			c[label] = v
		}
		days = append(days, dayCounts{day: day, counts: c})
	}
	e.mu.Unlock()

	sort.Slice(days, func(i, j int) bool { return days[i].day.Before(days[j].day) })
	if len(days) > recentDays {
		days = days[len(days)-recentDays:]
	}

	combined := make(map[string]int)
	for _, d := range days {
		for label, v := range d.counts {
			combined[label] += v
		}
	}
	top := limit(rank(combined), n)

	out := make([]DayLabelCount, 0, len(days)*len(top))
	for _, d := range days {
		for _, lc := range top {
			out = append(out, DayLabelCount{Day: d.day, Label: lc.Label, Count: d.counts[lc.Label]})
		}
	}
	return out
}

// Entries returns every label with its lifetime and today counts,
// highest lifetime count first.
func (e *Engine) Entries() []Entry {
	e.mu.Lock()
	ranked := rank(e.snap.LifetimeCounts)
	today := e.snap.DailyCounts[e.dayKey(e.now())]
	out := make([]Entry, len(ranked))
	for i, lc := range ranked {
		out[i] = Entry{Label: lc.Label, Lifetime: lc.Count, Today: today[lc.Label]}
	}
	e.mu.Unlock()
	return out
}
