package store

import (
	"encoding/json"
	"fmt"
	"time"
)

// rawSnapshot mirrors Snapshot with every field optional so that
// documents written by any schema version decode without error.
type rawSnapshot struct {
	SchemaVersion       *int            `json:"schema_version"`
	StartedAt           *time.Time      `json:"started_at"`
	LifetimeCounts      map[string]int  `json:"lifetime_counts"`
	DailyCounts         json.RawMessage `json:"daily_counts"`
	ModifierComboCounts map[string]int  `json:"modifier_combo_counts"`
	LastEventTime       *time.Time      `json:"last_event_time"`
	MeanIntervalMs      *float64        `json:"mean_interval_ms"`
	IntervalSampleCount *int            `json:"interval_sample_count"`
}

// Decode parses a persisted document and migrates it to the current
// schema. Missing fields default to empty or zero; now is used when the
// document has no start time.
func Decode(data []byte, now time.Time) (*Snapshot, error) {
	var raw rawSnapshot
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return migrate(&raw, now)
}

// migrate upgrades a decoded document to CurrentSchemaVersion.
func migrate(raw *rawSnapshot, now time.Time) (*Snapshot, error) {
	version, daily, err := detectVersion(raw)
	if err != nil {
		return nil, err
	}
	if version > CurrentSchemaVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	snap := &Snapshot{
		SchemaVersion:       CurrentSchemaVersion,
		StartedAt:           now,
		LifetimeCounts:      raw.LifetimeCounts,
		DailyCounts:         daily,
		ModifierComboCounts: raw.ModifierComboCounts,
		LastEventTime:       raw.LastEventTime,
	}
	if raw.StartedAt != nil && !raw.StartedAt.IsZero() {
		snap.StartedAt = *raw.StartedAt
	}

	// Interval statistics only exist from version 2 on.
	if version >= 2 {
		if raw.MeanIntervalMs != nil {
			snap.MeanIntervalMs = *raw.MeanIntervalMs
		}
		if raw.IntervalSampleCount != nil {
			snap.IntervalSampleCount = *raw.IntervalSampleCount
		}
	}

	snap.normalize()
	return snap, nil
}

// detectVersion reports the schema version of raw and its daily buckets.
// Version 1 daily totals cannot be split by label, so they are dropped;
// lifetime counts are kept and will exceed the daily sum from then on.
func detectVersion(raw *rawSnapshot) (int, map[string]map[string]int, error) {
	daily := make(map[string]map[string]int)
	flat := false

	if len(raw.DailyCounts) > 0 && string(raw.DailyCounts) != "null" {
		if err := json.Unmarshal(raw.DailyCounts, &daily); err != nil {
			var totals map[string]int
			if err2 := json.Unmarshal(raw.DailyCounts, &totals); err2 != nil {
				return 0, nil, fmt.Errorf("decode daily_counts: %w", err)
			}
			daily = make(map[string]map[string]int)
			flat = true
		}
	}

	if raw.SchemaVersion != nil {
		v := *raw.SchemaVersion
		if v < 1 {
			return 0, nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
		}
		if flat && v > 1 {
			return 0, nil, fmt.Errorf("decode daily_counts: flat layout in version %d document", v)
		}
		return v, daily, nil
	}

	switch {
	case flat:
		return 1, daily, nil
	case raw.ModifierComboCounts != nil:
		return 3, daily, nil
	case raw.MeanIntervalMs != nil || raw.IntervalSampleCount != nil || len(daily) > 0:
		return 2, daily, nil
	default:
		return 1, daily, nil
	}
}
