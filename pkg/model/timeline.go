package model

import "time"

// TimelineEntry records which plan was put in force at a timeslot and which
// event caused it. A nil Plan means no plan was in force (blocked site,
// failed recompute or residual event).
type TimelineEntry struct {
	Timeslot TimeslotIndex
	Event    Event
	Plan     *Plan
	// Final marks the terminal entry whose plan is the stitched record of the
	// whole night.
	Final bool
}

// EntryRecord is the flattened, serializable form of a TimelineEntry.
type EntryRecord struct {
	RunID       string        `json:"run_id,omitempty"`
	Night       NightIndex    `json:"night"`
	Site        Site          `json:"site"`
	Seq         int           `json:"seq"`
	Timeslot    TimeslotIndex `json:"timeslot"`
	EventKind   EventKind     `json:"event_kind"`
	EventTime   time.Time     `json:"event_time"`
	Description string        `json:"description"`
	Final       bool          `json:"final"`
	Plan        *Plan         `json:"plan"`
}

// Record flattens the entry for storage.
func (e TimelineEntry) Record(night NightIndex, site Site, seq int) EntryRecord {
	r := EntryRecord{
		Night:    night,
		Site:     site,
		Seq:      seq,
		Timeslot: e.Timeslot,
		Final:    e.Final,
		Plan:     e.Plan,
	}
	if e.Event != nil {
		r.EventKind = e.Event.Kind()
		r.EventTime = e.Event.Time().UTC()
		r.Description = e.Event.Description()
	}
	return r
}
