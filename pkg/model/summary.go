package model

import "time"

// NightSummary aggregates one (night, site) run.
type NightSummary struct {
	Night          NightIndex `json:"night"`
	Site           Site       `json:"site"`
	Entries        int        `json:"entries"`
	Recomputes     int        `json:"recomputes"`
	BlockedEntries int        `json:"blocked_entries"`
	Visits         int        `json:"visits"`
	ObservedSlots  int        `json:"observed_slots"`
	NightSlots     int        `json:"night_slots"`
	Anomalies      int        `json:"anomalies"`
	Failed         bool       `json:"failed"`
	Error          string     `json:"error,omitempty"`
}

// Utilization is the fraction of the night covered by the final plan.
func (n NightSummary) Utilization() float64 {
	if n.NightSlots == 0 {
		return 0
	}
	return float64(n.ObservedSlots) / float64(n.NightSlots)
}

// RunSummary aggregates a whole scheduling run.
type RunSummary struct {
	Nights        []NightSummary `json:"nights"`
	Recomputes    int            `json:"recomputes"`
	Visits        int            `json:"visits"`
	ObservedSlots int            `json:"observed_slots"`
	Anomalies     int            `json:"anomalies"`
	Failed        int            `json:"failed"`
}

// Add appends a night summary and updates the totals.
func (s *RunSummary) Add(n NightSummary) {
	s.Nights = append(s.Nights, n)
	s.Recomputes += n.Recomputes
	s.Visits += n.Visits
	s.ObservedSlots += n.ObservedSlots
	s.Anomalies += n.Anomalies
	if n.Failed {
		s.Failed++
	}
}

// Run is a stored scheduling run.
type Run struct {
	ID        string      `json:"id"`
	Scenario  string      `json:"scenario"`
	Source    string      `json:"source,omitempty"`
	Sites     []Site      `json:"sites"`
	NumNights int         `json:"num_nights"`
	Summary   *RunSummary `json:"summary"`
	CreatedAt time.Time   `json:"created_at"`
}
