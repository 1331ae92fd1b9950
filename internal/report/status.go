package report

import (
	"fmt"
	"strconv"

	"keylens/internal/daemon"
	"keylens/internal/hook"
	"keylens/internal/metrics"
	"keylens/internal/stats"
)

// Status renders the daemon status followed by the totals.
func (r *Renderer) Status(st daemon.Status, totals stats.Totals) {
	r.title("keylens")

	var rows [][2]string
	if !st.Running {
		rows = append(rows, [2]string{"Daemon", r.style(badStyle, "stopped")})
	} else {
		rows = append(rows,
			[2]string{"Daemon", "running"},
			[2]string{"PID", strconv.Itoa(st.PID)},
		)
		if st.Uptime > 0 {
			rows = append(rows, [2]string{"Uptime", Duration(st.Uptime)})
		}
	}

	if s := st.State; s != nil && st.Running {
		hookState := s.Hook
		if hookState != "attached" {
			hookState = r.style(badStyle, hookState)
		}
		if s.Simulated {
			hookState += " (simulated)"
		}
		rows = append(rows, [2]string{"Hook", hookState})
		if s.Restarts > 0 {
			rows = append(rows, [2]string{"Restarts", strconv.Itoa(s.Restarts)})
		}
		if s.Version != "" {
			rows = append(rows, [2]string{"Version", s.Version})
		}
		rows = append(rows, [2]string{"Storage", fmt.Sprintf("%s (%s)", s.StorePath, s.Backend)})
		if s.Health != "" {
			health := s.Health
			if health != "healthy" {
				health = r.style(badStyle, health)
			}
			rows = append(rows, [2]string{"Health", health})
		}
		for _, p := range s.Problems {
			rows = append(rows, [2]string{"", r.style(mutedStyle, p)})
		}
	}
	r.keyValues(rows)
	fmt.Fprintln(r.w)
	r.Totals(totals)
}

// Metrics renders a flattened metrics snapshot sorted by name.
func (r *Renderer) Metrics(snap map[string]float64) {
	r.title("Metrics")
	if len(snap) == 0 {
		fmt.Fprintln(r.w, r.style(mutedStyle, "  (no metrics published)"))
		return
	}
	names := metrics.SortedNames(snap)
	rows := make([][2]string, 0, len(names))
	for _, name := range names {
		rows = append(rows, [2]string{name, strconv.FormatFloat(snap[name], 'g', 6, 64)})
	}
	r.keyValues(rows)
}

// Devices lists input devices by name with their event node.
func (r *Renderer) Devices(devices []hook.InputDevice) {
	r.title("Input devices")
	if len(devices) == 0 {
		fmt.Fprintln(r.w, r.style(mutedStyle, "  (no key or button devices)"))
		return
	}
	rows := make([][2]string, 0, len(devices))
	for _, dev := range devices {
		name := dev.Name
		if name == "" {
			name = "(unnamed)"
		}
		rows = append(rows, [2]string{name, dev.Node})
	}
	r.keyValues(rows)
}
