package model

import (
	"sort"
	"time"
)

// Site identifies an observing location.
type Site string

// String returns the site name.
func (s Site) String() string {
	return string(s)
}

// SortSites returns a copy of sites in lexicographic order.
func SortSites(sites []Site) []Site {
	out := make([]Site, len(sites))
	copy(out, sites)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// NightIndex indexes the contiguous sequence of nights in a scheduling run.
type NightIndex int

// TimeslotIndex indexes the discretized time buckets of one night.
// Slot 0 starts at evening twilight.
type TimeslotIndex int

// TimeslotFor converts a wall-clock time into a timeslot of the night that
// starts at nightStart. Times before the start of the night map to slot 0.
func TimeslotFor(t, nightStart time.Time, slotLength time.Duration) TimeslotIndex {
	if slotLength <= 0 {
		return 0
	}
	d := t.Sub(nightStart)
	if d <= 0 {
		return 0
	}
	return TimeslotIndex(d / slotLength)
}

// NightBounds holds the precomputed boundaries of one night at one site.
type NightBounds struct {
	EveningTwilight time.Time
	MorningTwilight time.Time
	SlotLength      time.Duration
}

// NumSlots returns the number of whole timeslots between the twilights.
func (b NightBounds) NumSlots() int {
	if b.SlotLength <= 0 || !b.MorningTwilight.After(b.EveningTwilight) {
		return 0
	}
	return int(b.MorningTwilight.Sub(b.EveningTwilight) / b.SlotLength)
}

// NightDate is the calendar date the night is filed under: the date of
// evening twilight.
func (b NightBounds) NightDate() time.Time {
	y, m, d := b.EveningTwilight.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, b.EveningTwilight.Location())
}

// Slot converts t to a timeslot of this night.
func (b NightBounds) Slot(t time.Time) TimeslotIndex {
	return TimeslotFor(t, b.EveningTwilight, b.SlotLength)
}
