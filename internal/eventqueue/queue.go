// Package eventqueue holds the per-(night, site) priority queues of events
// that drive the scheduling loop.
package eventqueue

import (
	"container/heap"
	"fmt"

	"github.com/me/nightsched/pkg/model"
)

type item struct {
	event model.Event
	seq   uint64
}

// partition is a min-heap ordered by event time, then insertion sequence.
type partition []item

func (p partition) Len() int { return len(p) }

func (p partition) Less(i, j int) bool {
	ti, tj := p[i].event.Time(), p[j].event.Time()
	if ti.Equal(tj) {
		return p[i].seq < p[j].seq
	}
	return ti.Before(tj)
}

func (p partition) Swap(i, j int) { p[i], p[j] = p[j], p[i] }

func (p *partition) Push(x any) { *p = append(*p, x.(item)) }

func (p *partition) Pop() any {
	old := *p
	n := len(old)
	it := old[n-1]
	old[n-1] = item{}
	*p = old[:n-1]
	return it
}

type key struct {
	night model.NightIndex
	site  model.Site
}

// EventQueue maps (night, site) to an ascending-time queue of events.
// Partitions are independent; events with equal timestamps come out in
// insertion order. It is not safe for concurrent use.
type EventQueue struct {
	parts map[key]*partition
	seq   uint64
}

// New creates an EventQueue with an empty partition for every night and
// site.
func New(nights []model.NightIndex, sites []model.Site) *EventQueue {
	q := &EventQueue{parts: make(map[key]*partition, len(nights)*len(sites))}
	for _, n := range nights {
		for _, s := range sites {
			q.parts[key{n, s}] = &partition{}
		}
	}
	return q
}

func (q *EventQueue) part(night model.NightIndex, site model.Site) *partition {
	k := key{night, site}
	p, ok := q.parts[k]
	if !ok {
		p = &partition{}
		q.parts[k] = p
	}
	return p
}

// Push inserts an event into the (night, site) partition.
func (q *EventQueue) Push(night model.NightIndex, site model.Site, e model.Event) {
	q.seq++
	heap.Push(q.part(night, site), item{event: e, seq: q.seq})
}

// Top returns the earliest event without removing it.
func (q *EventQueue) Top(night model.NightIndex, site model.Site) (model.Event, error) {
	p := q.part(night, site)
	if p.Len() == 0 {
		return nil, fmt.Errorf("top night %d site %s: %w", night, site, model.ErrEmptyQueue)
	}
	return (*p)[0].event, nil
}

// PopNext removes and returns the earliest event.
func (q *EventQueue) PopNext(night model.NightIndex, site model.Site) (model.Event, error) {
	p := q.part(night, site)
	if p.Len() == 0 {
		return nil, fmt.Errorf("pop night %d site %s: %w", night, site, model.ErrEmptyQueue)
	}
	return heap.Pop(p).(item).event, nil
}

// HasMore reports whether the partition still holds events.
func (q *EventQueue) HasMore(night model.NightIndex, site model.Site) bool {
	return q.Len(night, site) > 0
}

// IsEmpty reports whether the partition holds no events.
func (q *EventQueue) IsEmpty(night model.NightIndex, site model.Site) bool {
	return q.Len(night, site) == 0
}

// Len returns the number of events queued for the partition.
func (q *EventQueue) Len(night model.NightIndex, site model.Site) int {
	if p, ok := q.parts[key{night, site}]; ok {
		return p.Len()
	}
	return 0
}

// Discard empties the partition and returns its events in time order.
func (q *EventQueue) Discard(night model.NightIndex, site model.Site) []model.Event {
	var out []model.Event
	for q.HasMore(night, site) {
		e, _ := q.PopNext(night, site)
		out = append(out, e)
	}
	return out
}
