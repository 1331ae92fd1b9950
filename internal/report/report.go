// Package report renders counter queries as terminal tables.
//
// Output is styled with lipgloss only when the destination is a terminal;
// piped output stays plain so it can be grepped and diffed.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"keylens/internal/notify"
	"keylens/internal/stats"
)

const (
	defaultWidth = 80
	maxBarWidth  = 40
	barRune      = "█"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#C89A3A"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0"))
	countStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#8CC8FF")).Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	barStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#5FAF87"))
	badStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
)

// Renderer writes reports to w.
type Renderer struct {
	w      io.Writer
	styled bool
	width  int
}

// New returns a renderer for w, styled when w is a terminal.
func New(w io.Writer) *Renderer {
	r := &Renderer{w: w, width: defaultWidth}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		r.styled = true
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
			r.width = width
		}
	}
	return r
}

// NewPlain returns an unstyled renderer with a fixed width.
func NewPlain(w io.Writer, width int) *Renderer {
	if width <= 0 {
		width = defaultWidth
	}
	return &Renderer{w: w, width: width}
}

func (r *Renderer) style(s lipgloss.Style, text string) string {
	if !r.styled {
		return text
	}
	return s.Render(text)
}

func (r *Renderer) title(text string) {
	fmt.Fprintln(r.w, r.style(titleStyle, text))
}

// pad left-aligns s to width display cells, truncating when it is wider.
func pad(s string, width int) string {
	if runewidth.StringWidth(s) > width {
		s = runewidth.Truncate(s, width, "…")
	}
	return runewidth.FillRight(s, width)
}

func labelWidth(labels []string, limit int) int {
	w := 5
	for _, l := range labels {
		if n := runewidth.StringWidth(l); n > w {
			w = n
		}
	}
	if w > limit {
		w = limit
	}
	return w
}

func countWidth(counts []int) int {
	w := 1
	for _, c := range counts {
		if n := len(notify.FormatCount(c)); n > w {
			w = n
		}
	}
	return w
}

func (r *Renderer) bar(value, peak, width int) string {
	if peak <= 0 || value <= 0 || width <= 0 {
		return ""
	}
	n := value * width / peak
	if n == 0 {
		n = 1
	}
	return r.style(barStyle, strings.Repeat(barRune, n))
}

func (r *Renderer) barWidth(used int) int {
	w := r.width - used
	if w > maxBarWidth {
		w = maxBarWidth
	}
	if w < 0 {
		w = 0
	}
	return w
}

// Ranking renders a numbered label ranking.
func (r *Renderer) Ranking(title string, items []stats.LabelCount) {
	r.title(title)
	if len(items) == 0 {
		fmt.Fprintln(r.w, r.style(mutedStyle, "  (no presses recorded)"))
		return
	}

	labels := make([]string, len(items))
	counts := make([]int, len(items))
	for i, it := range items {
		labels[i], counts[i] = it.Label, it.Count
	}
	lw := labelWidth(labels, r.width/3)
	cw := countWidth(counts)
	rw := len(fmt.Sprint(len(items)))
	bw := r.barWidth(rw + lw + cw + 8)

	for i, it := range items {
		fmt.Fprintf(r.w, "  %*d. %s  %s  %s\n",
			rw, i+1,
			r.style(labelStyle, pad(it.Label, lw)),
			r.style(countStyle, fmt.Sprintf("%*s", cw, notify.FormatCount(it.Count))),
			r.bar(it.Count, items[0].Count, bw),
		)
	}
}

// Totals renders the lifetime and today totals with the mean interval.
func (r *Renderer) Totals(t stats.Totals) {
	r.title("Totals")
	rows := [][2]string{
		{"Lifetime", notify.FormatCount(t.Lifetime)},
		{"Today", notify.FormatCount(t.Today)},
	}
	if !t.StartedAt.IsZero() {
		rows = append(rows, [2]string{"Counting since", t.StartedAt.Local().Format("2006-01-02 15:04")})
	}
	if t.MeanInterval != nil {
		rows = append(rows, [2]string{"Mean interval", fmt.Sprintf("%.1f ms (%s samples)", *t.MeanInterval, notify.FormatCount(t.IntervalSamples))})
	} else {
		rows = append(rows, [2]string{"Mean interval", "n/a"})
	}
	r.keyValues(rows)
}

// Categories renders per-category lifetime totals.
func (r *Renderer) Categories(cats []stats.CategoryTotal) {
	items := make([]stats.LabelCount, len(cats))
	for i, c := range cats {
		items[i] = stats.LabelCount{Label: c.Category.Title(), Count: c.Count}
	}
	r.Ranking("Categories", items)
}

// Daily renders one bar per recorded day.
func (r *Renderer) Daily(days []stats.DayTotal) {
	r.title("Daily totals")
	if len(days) == 0 {
		fmt.Fprintln(r.w, r.style(mutedStyle, "  (no days recorded)"))
		return
	}

	counts := make([]int, len(days))
	peak := 0
	for i, d := range days {
		counts[i] = d.Total
		peak = max(peak, d.Total)
	}
	cw := countWidth(counts)
	bw := r.barWidth(len("2006-01-02") + cw + 8)

	for _, d := range days {
		fmt.Fprintf(r.w, "  %s  %s  %s\n",
			r.style(mutedStyle, d.Day.Format()),
			r.style(countStyle, fmt.Sprintf("%*s", cw, notify.FormatCount(d.Total))),
			r.bar(d.Total, peak, bw),
		)
	}
}

// PerDay renders the per-day counts of the top labels, one block per day.
func (r *Renderer) PerDay(rows []stats.DayLabelCount) {
	r.title("Top keys per day")
	if len(rows) == 0 {
		fmt.Fprintln(r.w, r.style(mutedStyle, "  (no days recorded)"))
		return
	}

	labels := make([]string, len(rows))
	counts := make([]int, len(rows))
	for i, row := range rows {
		labels[i], counts[i] = row.Label, row.Count
	}
	lw := labelWidth(labels, r.width/3)
	cw := countWidth(counts)

	var current stats.Day
	for i, row := range rows {
		if i == 0 || row.Day != current {
			current = row.Day
			fmt.Fprintf(r.w, "  %s\n", r.style(mutedStyle, current.Format()))
		}
		fmt.Fprintf(r.w, "    %s  %s\n",
			r.style(labelStyle, pad(row.Label, lw)),
			r.style(countStyle, fmt.Sprintf("%*s", cw, notify.FormatCount(row.Count))),
		)
	}
}

// Overlay renders the recent-key feed on one line, keeping the newest
// keys when the line is too wide.
func (r *Renderer) Overlay(keys []string) {
	line := strings.Join(keys, " ")
	for runewidth.StringWidth(line) > r.width-1 && len(keys) > 1 {
		keys = keys[1:]
		line = strings.Join(keys, " ")
	}
	line = pad(line, r.width-1)
	if r.styled {
		fmt.Fprint(r.w, "\r"+r.style(labelStyle, line))
		return
	}
	fmt.Fprintln(r.w, strings.TrimRight(line, " "))
}

func (r *Renderer) keyValues(rows [][2]string) {
	keys := make([]string, len(rows))
	for i, row := range rows {
		keys[i] = row[0]
	}
	kw := labelWidth(keys, r.width/2)
	for _, row := range rows {
		fmt.Fprintf(r.w, "  %s  %s\n", r.style(mutedStyle, pad(row[0], kw)), row[1])
	}
}

// Duration formats d for status output, rounded to the second.
func Duration(d time.Duration) string {
	d = d.Round(time.Second)
	if d >= 24*time.Hour {
		days := d / (24 * time.Hour)
		return fmt.Sprintf("%dd%s", days, d-days*24*time.Hour)
	}
	return d.String()
}
