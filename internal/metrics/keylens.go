package metrics

import (
	"time"
)

// Namespace prefixes every keylens metric name.
const Namespace = "keylens"

// DaemonMetrics holds the metrics published by a running daemon.
type DaemonMetrics struct {
	registry *Registry
	start    time.Time

	// Counters
	SavesTotal      *Counter
	SaveErrorsTotal *Counter

	// Gauges
	PressesLifetime        *Gauge
	PressesToday           *Gauge
	NotificationsDelivered *Gauge
	NotificationsDropped   *Gauge
	MilestonesSent         *Gauge
	HookCreates            *Gauge
	HookDisables           *Gauge
	SupervisorRestarts     *Gauge
	UptimeSeconds          *Gauge

	// Histograms
	SaveDuration *Histogram
}

// Sample carries the values the daemon copies from its components on
// every publish.
type Sample struct {
	Lifetime               int64
	Today                  int64
	NotificationsDelivered int64
	NotificationsDropped   int64
	MilestonesSent         int64
	HookCreates            int64
	HookDisables           int64
	SupervisorRestarts     int64
}

// NewDaemonMetrics registers the daemon metrics in registry. A nil
// registry gets a fresh one under Namespace.
func NewDaemonMetrics(registry *Registry, start time.Time) *DaemonMetrics {
	if registry == nil {
		registry = NewRegistry(Namespace)
	}

	return &DaemonMetrics{
		registry: registry,
		start:    start,

		SavesTotal:      registry.Counter("saves_total", "Snapshot writes that succeeded"),
		SaveErrorsTotal: registry.Counter("save_errors_total", "Snapshot writes that failed"),

		PressesLifetime:        registry.Gauge("presses_lifetime", "Presses counted since the last reset"),
		PressesToday:           registry.Gauge("presses_today", "Presses counted today"),
		NotificationsDelivered: registry.Gauge("notifications_delivered", "Notices handed to the presenter"),
		NotificationsDropped:   registry.Gauge("notifications_dropped", "Notices dropped because the queue was full"),
		MilestonesSent:         registry.Gauge("milestones_sent", "Milestone notifications shown"),
		HookCreates:            registry.Gauge("hook_creates", "Times the input hook was attached"),
		HookDisables:           registry.Gauge("hook_disables", "Times the system disabled the input hook"),
		SupervisorRestarts:     registry.Gauge("supervisor_restarts", "Process restarts requested by the hook supervisor"),
		UptimeSeconds:          registry.Gauge("uptime_seconds", "Seconds since the daemon started"),

		SaveDuration: registry.Histogram("save_duration_seconds", "Time spent writing a snapshot", nil),
	}
}

// ObserveSave records one snapshot write. It matches the signature of
// store.WithObserver.
func (m *DaemonMetrics) ObserveSave(d time.Duration, err error) {
	m.SaveDuration.ObserveDuration(d)
	if err != nil {
		m.SaveErrorsTotal.Inc()
		return
	}
	m.SavesTotal.Inc()
}

// Update copies a sample into the gauges.
func (m *DaemonMetrics) Update(s Sample, now time.Time) {
	m.PressesLifetime.Set(s.Lifetime)
	m.PressesToday.Set(s.Today)
	m.NotificationsDelivered.Set(s.NotificationsDelivered)
	m.NotificationsDropped.Set(s.NotificationsDropped)
	m.MilestonesSent.Set(s.MilestonesSent)
	m.HookCreates.Set(s.HookCreates)
	m.HookDisables.Set(s.HookDisables)
	m.SupervisorRestarts.Set(s.SupervisorRestarts)
	m.UptimeSeconds.Set(int64(now.Sub(m.start).Seconds()))
}

// Snapshot flattens the registry for the daemon state file.
func (m *DaemonMetrics) Snapshot() map[string]float64 {
	return m.registry.Snapshot()
}

// Registry returns the underlying registry.
func (m *DaemonMetrics) Registry() *Registry {
	return m.registry
}
