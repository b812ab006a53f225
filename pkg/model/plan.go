package model

import "time"

// Visit is one scheduled block of an observation inside a Plan.
type Visit struct {
	ObservationID string        `json:"observation_id"`
	StartSlot     TimeslotIndex `json:"start_slot"`
	Slots         int           `json:"slots"`
	Score         float64       `json:"score"`
	AtomStart     int           `json:"atom_start"`
	AtomEnd       int           `json:"atom_end"`
}

// EndSlot returns the first slot after the visit.
func (v Visit) EndSlot() TimeslotIndex {
	return v.StartSlot + TimeslotIndex(v.Slots)
}

// Plan is the visit schedule for one site and one night from StartSlot
// forward. Plans are never edited after creation; methods return copies.
type Plan struct {
	Site       Site          `json:"site"`
	Night      NightIndex    `json:"night"`
	StartSlot  TimeslotIndex `json:"start_slot"`
	NightSlots int           `json:"night_slots"`
	NightStart time.Time     `json:"night_start"`
	SlotLength time.Duration `json:"slot_length"`
	Visits     []Visit       `json:"visits"`
}

// Plans holds one plan per site for a single night.
type Plans map[Site]*Plan

// Slice returns a copy of the plan containing only what happens before
// stop. A visit that straddles stop is shortened to end at stop.
func (p *Plan) Slice(stop TimeslotIndex) *Plan {
	out := p.withVisits(nil)
	for _, v := range p.Visits {
		if v.StartSlot >= stop {
			break
		}
		if v.EndSlot() > stop {
			v.Slots = int(stop - v.StartSlot)
		}
		out.Visits = append(out.Visits, v)
	}
	return out
}

// ObservedSlots returns the number of slots covered by visits.
func (p *Plan) ObservedSlots() int {
	n := 0
	for _, v := range p.Visits {
		n += v.Slots
	}
	return n
}

// TimeLeft returns the number of unallocated slots between StartSlot and the
// end of the night.
func (p *Plan) TimeLeft() int {
	left := p.NightSlots - int(p.StartSlot) - p.ObservedSlots()
	if left < 0 {
		return 0
	}
	return left
}

// VisitTime returns the wall-clock start of a visit.
func (p *Plan) VisitTime(v Visit) time.Time {
	return p.NightStart.Add(time.Duration(v.StartSlot) * p.SlotLength)
}

func (p *Plan) withVisits(visits []Visit) *Plan {
	cp := *p
	cp.Visits = visits
	return &cp
}
