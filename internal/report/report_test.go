package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keylens/internal/classify"
	"keylens/internal/daemon"
	"keylens/internal/hook"
	"keylens/internal/stats"
)

func lines(s string) []string {
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}

func TestRankingAlignsWideLabels(t *testing.T) {
	var buf bytes.Buffer
	r := NewPlain(&buf, 80)
	r.Ranking("Top keys", []stats.LabelCount{
		{Label: "⌘", Count: 12000},
		{Label: "a", Count: 900},
		{Label: "🖱️ Left", Count: 5},
	})

	out := lines(buf.String())
	require.Len(t, out, 4)
	assert.Equal(t, "Top keys", out[0])
	assert.NotContains(t, buf.String(), "\x1b[", "plain output must not carry escapes")

	// Counts line up in display cells regardless of label width.
	col := func(line, count string) int {
		i := strings.Index(line, count)
		require.GreaterOrEqual(t, i, 0, line)
		return runewidth.StringWidth(line[:i+len(count)])
	}
	assert.Equal(t, col(out[1], "12,000"), col(out[2], "900"))
	assert.Equal(t, col(out[1], "12,000"), col(out[3], "5"))

	assert.Contains(t, out[1], strings.Repeat(barRune, 40))
	assert.Contains(t, out[3], barRune, "non-zero counts get at least one cell")
}

func TestRankingEmpty(t *testing.T) {
	var buf bytes.Buffer
	NewPlain(&buf, 0).Ranking("Today", nil)
	assert.Equal(t, "Today\n  (no presses recorded)\n", buf.String())
}

func TestPadTruncates(t *testing.T) {
	assert.Equal(t, "ab   ", pad("ab", 5))
	got := pad("abcdefgh", 5)
	assert.Equal(t, 5, runewidth.StringWidth(got))
	assert.True(t, strings.HasSuffix(got, "…"))
}

func TestTotals(t *testing.T) {
	var buf bytes.Buffer
	mean := 123.456
	NewPlain(&buf, 80).Totals(stats.Totals{
		Lifetime:        1234567,
		Today:           42,
		MeanInterval:    &mean,
		IntervalSamples: 1000,
	})
	out := buf.String()
	assert.Contains(t, out, "1,234,567")
	assert.Contains(t, out, "123.5 ms (1,000 samples)")
	assert.NotContains(t, out, "Counting since")

	buf.Reset()
	NewPlain(&buf, 80).Totals(stats.Totals{})
	assert.Contains(t, buf.String(), "n/a")
}

func TestCategories(t *testing.T) {
	var buf bytes.Buffer
	NewPlain(&buf, 80).Categories([]stats.CategoryTotal{
		{Category: classify.CategoryLetter, Count: 10},
		{Category: classify.CategoryMouse, Count: 3},
	})
	out := lines(buf.String())
	require.Len(t, out, 3)
	assert.Contains(t, out[1], classify.CategoryLetter.Title())
	assert.Contains(t, out[2], classify.CategoryMouse.Title())
}

func TestDailyAndPerDay(t *testing.T) {
	d1 := stats.Day{Year: 2024, Month: time.March, Day: 1}
	d2 := d1.AddDays(1)

	var buf bytes.Buffer
	r := NewPlain(&buf, 80)
	r.Daily([]stats.DayTotal{{Day: d1, Total: 10}, {Day: d2, Total: 5}})
	out := lines(buf.String())
	require.Len(t, out, 3)
	assert.Contains(t, out[1], "2024-03-01")
	assert.Contains(t, out[2], "2024-03-02")
	assert.Equal(t, 20, strings.Count(out[2], barRune))

	buf.Reset()
	r.PerDay([]stats.DayLabelCount{
		{Day: d1, Label: "a", Count: 3},
		{Day: d1, Label: "b", Count: 1},
		{Day: d2, Label: "a", Count: 0},
		{Day: d2, Label: "b", Count: 7},
	})
	out = lines(buf.String())
	require.Len(t, out, 7)
	assert.Equal(t, "  2024-03-01", out[1])
	assert.Equal(t, "  2024-03-02", out[4])
}

func TestOverlayKeepsNewest(t *testing.T) {
	var buf bytes.Buffer
	NewPlain(&buf, 10).Overlay([]string{"aaaa", "bbbb", "cc"})
	assert.Equal(t, "bbbb cc\n", buf.String())
}

func TestStatus(t *testing.T) {
	var buf bytes.Buffer
	r := NewPlain(&buf, 80)
	r.Status(daemon.Status{
		Running: true,
		PID:     4242,
		Uptime:  26*time.Hour + 90*time.Second,
		State: &daemon.State{
			Hook:      "attached",
			Backend:   "file",
			StorePath: "/tmp/counts.json",
			Restarts:  1,
			Simulated: true,
			Health:    "degraded",
			Problems:  []string{"storage: check failed: disk full"},
		},
	}, stats.Totals{Lifetime: 5})

	out := buf.String()
	assert.Contains(t, out, "running")
	assert.Contains(t, out, "4242")
	assert.Contains(t, out, "1d2h1m30s")
	assert.Contains(t, out, "attached (simulated)")
	assert.Contains(t, out, "/tmp/counts.json (file)")
	assert.Contains(t, out, "degraded")
	assert.Contains(t, out, "storage: check failed: disk full")
	assert.Contains(t, out, "Totals")

	buf.Reset()
	r.Status(daemon.Status{}, stats.Totals{})
	assert.Contains(t, buf.String(), "stopped")
	assert.NotContains(t, buf.String(), "PID")
}

func TestMetrics(t *testing.T) {
	var buf bytes.Buffer
	r := NewPlain(&buf, 100)
	r.Metrics(map[string]float64{
		"keylens_uptime_seconds": 90,
		"keylens_saves_total":    3,
	})
	got := lines(buf.String())
	require.Len(t, got, 3)
	assert.Equal(t, "Metrics", got[0])
	assert.Contains(t, got[1], "keylens_saves_total")
	assert.Contains(t, got[1], "3")
	assert.Contains(t, got[2], "90")

	buf.Reset()
	r.Metrics(nil)
	assert.Contains(t, buf.String(), "no metrics published")
}

func TestDevices(t *testing.T) {
	var buf bytes.Buffer
	r := NewPlain(&buf, 100)
	r.Devices([]hook.InputDevice{
		{Name: "AT Translated Set 2 keyboard", Node: "/dev/input/event3"},
		{Node: "/dev/input/event9"},
	})
	got := lines(buf.String())
	require.Len(t, got, 3)
	assert.Equal(t, "Input devices", got[0])
	assert.Contains(t, got[1], "AT Translated Set 2 keyboard")
	assert.Contains(t, got[1], "/dev/input/event3")
	assert.Contains(t, got[2], "(unnamed)")

	buf.Reset()
	r.Devices(nil)
	assert.Contains(t, buf.String(), "no key or button devices")
}

func TestNewOnNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf)
	assert.False(t, r.styled)
	assert.Equal(t, defaultWidth, r.width)
}
