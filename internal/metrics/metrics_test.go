package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryReturnsSameMetric(t *testing.T) {
	r := NewRegistry("keylens")
	c1 := r.Counter("saves_total", "")
	c2 := r.Counter("saves_total", "")
	assert.Same(t, c1, c2)
	assert.Equal(t, "keylens_saves_total", c1.Name())

	g := r.Gauge("today", "")
	assert.Equal(t, "keylens_today", g.Name())

	assert.Equal(t, "plain", NewRegistry("").Gauge("plain", "").Name())
}

func TestCounterConcurrent(t *testing.T) {
	c := NewRegistry("").Counter("n", "")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c.Inc()
			}
		}()
	}
	wg.Wait()
	c.Add(5)
	assert.EqualValues(t, 8005, c.Value())
}

func TestGauge(t *testing.T) {
	g := NewRegistry("").Gauge("g", "")
	g.Set(10)
	g.Add(-3)
	assert.EqualValues(t, 7, g.Value())
}

func TestHistogram(t *testing.T) {
	h := NewRegistry("").Histogram("h", "", []float64{1, 2, 4})
	assert.Zero(t, h.Mean())
	assert.Zero(t, h.Quantile(50))

	for _, v := range []float64{0.5, 1.5, 1.5, 3} {
		h.Observe(v)
	}
	assert.EqualValues(t, 4, h.Count())
	assert.InDelta(t, 1.625, h.Mean(), 1e-9)

	p50 := h.Quantile(50)
	assert.True(t, p50 > 1 && p50 <= 2, "p50 = %v", p50)
	p99 := h.Quantile(99)
	assert.True(t, p99 > 2 && p99 <= 4, "p99 = %v", p99)
}

func TestPercentileOverflowBucket(t *testing.T) {
	// Every observation above the last bound lands in +Inf.
	got := Percentile([]float64{1, 2}, []uint64{0, 0, 3}, 50)
	assert.True(t, got >= 2 && got <= 4, "got %v", got)
	assert.Equal(t, 0.5, Percentile([]float64{1, 2}, []uint64{3, 3, 3}, 50))
	assert.Zero(t, Percentile(nil, nil, 50))
}

func TestSnapshot(t *testing.T) {
	r := NewRegistry("k")
	r.Counter("c", "").Add(2)
	r.Gauge("g", "").Set(-1)
	r.Histogram("h", "", nil).ObserveDuration(2 * time.Millisecond)

	snap := r.Snapshot()
	assert.Equal(t, 2.0, snap["k_c"])
	assert.Equal(t, -1.0, snap["k_g"])
	assert.Equal(t, 1.0, snap["k_h_count"])
	assert.InDelta(t, 0.002, snap["k_h_mean"], 1e-9)
	assert.Contains(t, snap, "k_h_p50")
	assert.Contains(t, snap, "k_h_p99")

	assert.Equal(t, []string{"k_c", "k_g", "k_h_count", "k_h_mean", "k_h_p50", "k_h_p99"}, SortedNames(snap))
}

func TestDaemonMetrics(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	m := NewDaemonMetrics(nil, start)

	m.ObserveSave(3*time.Millisecond, nil)
	m.ObserveSave(time.Millisecond, errors.New("disk full"))
	m.Update(Sample{
		Lifetime:             120,
		Today:                40,
		NotificationsDropped: 2,
		MilestonesSent:       1,
		HookCreates:          3,
		HookDisables:         2,
		SupervisorRestarts:   1,
	}, start.Add(90*time.Second))

	snap := m.Snapshot()
	require.NotEmpty(t, snap)
	assert.Equal(t, 1.0, snap["keylens_saves_total"])
	assert.Equal(t, 1.0, snap["keylens_save_errors_total"])
	assert.Equal(t, 2.0, snap["keylens_save_duration_seconds_count"])
	assert.Equal(t, 120.0, snap["keylens_presses_lifetime"])
	assert.Equal(t, 40.0, snap["keylens_presses_today"])
	assert.Equal(t, 2.0, snap["keylens_notifications_dropped"])
	assert.Equal(t, 3.0, snap["keylens_hook_creates"])
	assert.Equal(t, 90.0, snap["keylens_uptime_seconds"])
	assert.Same(t, m.Registry(), m.Registry())
}
