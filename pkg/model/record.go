package model

// TimeCoordinateRecord is the decision produced for an event: when the plan
// for the site must next be updated and how.
type TimeCoordinateRecord struct {
	Timeslot              TimeslotIndex
	Event                 Event
	PerformTimeAccounting bool
	// Done is set only by morning twilight: charge the rest of the night and
	// stop.
	Done bool
}

// EarliestUpdate folds candidate into the pending update for a site and
// returns the record that should remain pending.
//
// The earlier timeslot wins. On an equal timeslot the later arrival replaces
// the pending record, so the entry is filed under the last event drained for
// that slot. A terminal record is never displaced by a non-terminal one.
func EarliestUpdate(pending, candidate *TimeCoordinateRecord) *TimeCoordinateRecord {
	switch {
	case candidate == nil:
		return pending
	case pending == nil:
		return candidate
	case candidate.Timeslot < pending.Timeslot:
		return candidate
	case candidate.Timeslot == pending.Timeslot:
		if pending.Done && !candidate.Done {
			return pending
		}
		return candidate
	}
	return pending
}
