package hook

import (
	"context"
	"sync/atomic"
)

// DefaultQueueSize is the overlay queue capacity.
const DefaultQueueSize = 256

// milestoneQueueSize is the capacity of the milestone queue. Milestones
// are rare, so a small queue is only full when the presenter is stuck.
const milestoneQueueSize = 16

// MilestoneFunc is called when a label's count reaches a milestone.
type MilestoneFunc func(label string, count int)

// OverlayFunc is called for every unmodified key press.
type OverlayFunc func(display string)

type notice struct {
	milestone bool
	label     string
	count     int
}

// Dispatcher moves notifications off the capture thread. Posting never
// blocks: when a queue is full the notice is dropped and counted.
// Milestones have their own queue, so a backlog of overlay entries never
// pushes one out.
type Dispatcher struct {
	milestones  chan notice
	queue       chan notice
	onMilestone MilestoneFunc
	onOverlay   OverlayFunc
	dropped     atomic.Int64
	delivered   atomic.Int64
}

// NewDispatcher creates a dispatcher. Either callback may be nil.
func NewDispatcher(size int, onMilestone MilestoneFunc, onOverlay OverlayFunc) *Dispatcher {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Dispatcher{
		milestones:  make(chan notice, milestoneQueueSize),
		queue:       make(chan notice, size),
		onMilestone: onMilestone,
		onOverlay:   onOverlay,
	}
}

// PostMilestone queues a milestone notification.
func (d *Dispatcher) PostMilestone(label string, count int) {
	if d.onMilestone == nil {
		return
	}
	d.post(d.milestones, notice{milestone: true, label: label, count: count})
}

// PostOverlay queues an overlay feed entry.
func (d *Dispatcher) PostOverlay(display string) {
	if d.onOverlay == nil {
		return
	}
	d.post(d.queue, notice{label: display})
}

func (d *Dispatcher) post(queue chan notice, n notice) {
	select {
	case queue <- n:
	default:
		d.dropped.Add(1)
	}
}

// Run delivers queued notifications until ctx is done. Pending
// milestones go before overlay entries. Callbacks run on the calling
// goroutine.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case n := <-d.milestones:
			d.deliver(n)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return
		case n := <-d.milestones:
			d.deliver(n)
		case n := <-d.queue:
			d.deliver(n)
		}
	}
}

func (d *Dispatcher) deliver(n notice) {
	if n.milestone {
		d.onMilestone(n.label, n.count)
	} else {
		d.onOverlay(n.label)
	}
	d.delivered.Add(1)
}

// Dropped returns how many notifications were discarded.
func (d *Dispatcher) Dropped() int64 { return d.dropped.Load() }

// Delivered returns how many notifications were handed to a callback.
func (d *Dispatcher) Delivered() int64 { return d.delivered.Load() }
