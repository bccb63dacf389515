// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"container/heap"
	"context"
	"log/slog"
)

// Kind of a simulation event, used for dispatching and cancellation.
type Kind string

// An event scheduled on the virtual clock.
type Event struct {
	// Simulated time at which the event is delivered.
	Time float64
	// Kind of the event.
	Kind Kind
	// Arbitrary payload handed to the receiver.
	Payload any

	// Insertion sequence, used to deliver events at the same time in order.
	seq uint64
}

// Virtual clock with a queue of future events.
//
// Events are delivered in order of their time, and events with the same
// time are delivered in the order they were scheduled.
type Queue struct {
	now     float64
	seq     uint64
	pending eventHeap
}

// Create a new queue with the clock at zero.
func NewQueue() *Queue {
	return &Queue{}
}

// Current simulated time.
func (q *Queue) Now() float64 { return q.now }

// Number of events not yet delivered.
func (q *Queue) Len() int { return len(q.pending) }

// Schedule an event after the given delay. Negative delays are delivered now.
func (q *Queue) Schedule(delay float64, kind Kind, payload any) {
	if delay < 0 {
		slog.Warn("events: negative delay, delivering now", "kind", kind, "delay", delay)
		delay = 0
	}
	q.seq++
	heap.Push(&q.pending, &Event{
		Time:    q.now + delay,
		Kind:    kind,
		Payload: payload,
		seq:     q.seq,
	})
}

// Remove all pending events of the given kind and return how many were removed.
func (q *Queue) CancelPending(kind Kind) int {
	kept := q.pending[:0]
	for _, ev := range q.pending {
		if ev.Kind != kind {
			kept = append(kept, ev)
		}
	}
	removed := len(q.pending) - len(kept)
	for i := len(kept); i < len(q.pending); i++ {
		q.pending[i] = nil
	}
	q.pending = kept
	heap.Init(&q.pending)
	return removed
}

// Find the earliest pending event of the given kind without removing it.
func (q *Queue) FindNextPending(kind Kind) (Event, bool) {
	var next *Event
	for _, ev := range q.pending {
		if ev.Kind != kind {
			continue
		}
		if next == nil || ev.before(next) {
			next = ev
		}
	}
	if next == nil {
		return Event{}, false
	}
	return *next, true
}

// Pop the next event and advance the clock to its time.
func (q *Queue) Next() (Event, bool) {
	if len(q.pending) == 0 {
		return Event{}, false
	}
	ev := heap.Pop(&q.pending).(*Event)
	if ev.Time > q.now {
		q.now = ev.Time
	}
	return *ev, true
}

// Deliver events to the handler until the queue runs dry, the next event
// lies beyond the given time limit, or the context is cancelled.
// A non-positive limit means no limit.
func (q *Queue) Run(ctx context.Context, limit float64, handle func(Event)) error {
	for len(q.pending) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		if limit > 0 && q.pending[0].Time > limit {
			slog.Info("events: time limit reached", "limit", limit, "pending", len(q.pending))
			return nil
		}
		ev, _ := q.Next()
		handle(ev)
	}
	return nil
}

func (e *Event) before(other *Event) bool {
	if e.Time != other.Time {
		return e.Time < other.Time
	}
	return e.seq < other.seq
}

type eventHeap []*Event

func (h eventHeap) Len() int           { return len(h) }
func (h eventHeap) Less(i, j int) bool { return h[i].before(h[j]) }
func (h eventHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x any)        { *h = append(*h, x.(*Event)) }
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return ev
}
