// Package store persists keylens count snapshots.
//
// A Snapshot is the single durable document the statistics engine owns.
// It is saved either as an indented JSON file (the default) or into a
// SQLite database, and older documents are migrated forward on load.
package store

import (
	"errors"
	"time"
)

// CurrentSchemaVersion is the schema version written by Save.
//
// Version 1 carried started_at, lifetime_counts and a flat daily_counts
// map (day to total). Version 2 nested daily_counts by label and added
// the interval statistics. Version 3 added modifier_combo_counts.
const CurrentSchemaVersion = 3

var (
	ErrUnsupportedVersion = errors.New("store: unsupported schema version")
	ErrUnknownBackend     = errors.New("store: unknown backend type")
)

// Snapshot is the authoritative count state.
type Snapshot struct {
	SchemaVersion       int                       `json:"schema_version"`
	StartedAt           time.Time                 `json:"started_at"`
	LifetimeCounts      map[string]int            `json:"lifetime_counts"`
	DailyCounts         map[string]map[string]int `json:"daily_counts"`
	ModifierComboCounts map[string]int            `json:"modifier_combo_counts"`
	LastEventTime       *time.Time                `json:"last_event_time,omitempty"`
	MeanIntervalMs      float64                   `json:"mean_interval_ms"`
	IntervalSampleCount int                       `json:"interval_sample_count"`
}

// NewSnapshot returns an empty snapshot started at now.
func NewSnapshot(now time.Time) *Snapshot {
	return &Snapshot{
		SchemaVersion:       CurrentSchemaVersion,
		StartedAt:           now,
		LifetimeCounts:      make(map[string]int),
		DailyCounts:         make(map[string]map[string]int),
		ModifierComboCounts: make(map[string]int),
	}
}

// Clone returns a deep copy of s.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}

	c := &Snapshot{
		SchemaVersion:       s.SchemaVersion,
		StartedAt:           s.StartedAt,
		LifetimeCounts:      copyCounts(s.LifetimeCounts),
		DailyCounts:         make(map[string]map[string]int, len(s.DailyCounts)),
		ModifierComboCounts: copyCounts(s.ModifierComboCounts),
		MeanIntervalMs:      s.MeanIntervalMs,
		IntervalSampleCount: s.IntervalSampleCount,
	}
	for day, counts := range s.DailyCounts {
		c.DailyCounts[day] = copyCounts(counts)
	}
	if s.LastEventTime != nil {
		t := *s.LastEventTime
		c.LastEventTime = &t
	}
	return c
}

// Total returns the sum of all lifetime counts.
func (s *Snapshot) Total() int {
	total := 0
	for _, n := range s.LifetimeCounts {
		total += n
	}
	return total
}

// normalize replaces nil maps with empty ones and clamps the interval
// statistics to valid values.
func (s *Snapshot) normalize() {
	if s.LifetimeCounts == nil {
		s.LifetimeCounts = make(map[string]int)
	}
	if s.DailyCounts == nil {
		s.DailyCounts = make(map[string]map[string]int)
	}
	for day, counts := range s.DailyCounts {
		if counts == nil {
			s.DailyCounts[day] = make(map[string]int)
		}
	}
	if s.ModifierComboCounts == nil {
		s.ModifierComboCounts = make(map[string]int)
	}
	if s.IntervalSampleCount <= 0 {
		s.IntervalSampleCount = 0
		s.MeanIntervalMs = 0
	}
}

func copyCounts(m map[string]int) map[string]int {
	c := make(map[string]int, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
