package watcher

import (
	"sync"
	"time"
)

// Debouncer coalesces rapid events per path so editor save storms do not
// thrash the index. Within one window:
//
//	CREATE + MODIFY = CREATE (file is still new)
//	CREATE + DELETE = dropped (file never really existed)
//	MODIFY + DELETE = DELETE
//	DELETE + CREATE = MODIFY (file was replaced)
type Debouncer struct {
	window time.Duration

	mu      sync.Mutex
	pending map[string]*tracked
	timer   *time.Timer
	output  chan []Event
	stopped bool
}

// tracked remembers the first operation seen for a path, which the
// coalescing rules key on.
type tracked struct {
	event   Event
	firstOp Op
}

// NewDebouncer creates a debouncer emitting batches after each quiet
// window.
func NewDebouncer(window time.Duration, buffer int) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]*tracked),
		output:  make(chan []Event, buffer),
	}
}

// Add records an event, coalescing with any pending event for the same
// path.
func (d *Debouncer) Add(event Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if existing, ok := d.pending[event.Path]; ok {
		merged, keep := coalesce(existing.firstOp, event)
		if !keep {
			delete(d.pending, event.Path)
		} else {
			existing.event = merged
		}
	} else {
		d.pending[event.Path] = &tracked{event: event, firstOp: event.Op}
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// coalesce merges a new event into a pending one. keep=false means the
// events cancelled out.
func coalesce(firstOp Op, next Event) (Event, bool) {
	switch firstOp {
	case OpCreate:
		switch next.Op {
		case OpModify:
			next.Op = OpCreate
			return next, true
		case OpDelete:
			return Event{}, false
		}
	case OpDelete:
		if next.Op == OpCreate {
			next.Op = OpModify
			return next, true
		}
	}
	return next, true
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || len(d.pending) == 0 {
		return
	}

	events := make([]Event, 0, len(d.pending))
	for _, t := range d.pending {
		events = append(events, t.event)
	}
	d.pending = make(map[string]*tracked)

	// Non-blocking: a slow consumer drops the batch rather than
	// wedging the watch loop.
	select {
	case d.output <- events:
	default:
	}
}

// Output returns the batch channel.
func (d *Debouncer) Output() <-chan []Event {
	return d.output
}

// Stop closes the output channel. Safe to call multiple times.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}
