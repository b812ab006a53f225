// Package timeline records, per night and site, which plan was in force
// from which timeslot, and reconstructs what was actually observed.
package timeline

import (
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/me/nightsched/internal/logging"
	"github.com/me/nightsched/pkg/model"
)

// AnomalyOutOfOrder is reported when a non-strict timeline accepts an entry
// earlier than the last one.
const AnomalyOutOfOrder = "timeline_out_of_order"

type key struct {
	night model.NightIndex
	site  model.Site
}

// Option configures a NightlyTimeline.
type Option func(*NightlyTimeline)

// WithStrictOrdering makes Add reject entries that go backwards in time.
func WithStrictOrdering() Option {
	return func(t *NightlyTimeline) {
		t.strict = true
	}
}

// WithLogger sets the logger used to report tolerated ordering violations.
func WithLogger(logger *slog.Logger) Option {
	return func(t *NightlyTimeline) {
		t.logger = logger.With("component", "timeline")
	}
}

// WithAnomalyHook registers a callback invoked for every tolerated ordering
// violation.
func WithAnomalyHook(fn func(night model.NightIndex, site model.Site, kind string)) Option {
	return func(t *NightlyTimeline) {
		t.onAnomaly = fn
	}
}

// NightlyTimeline is an append-only ledger of TimelineEntry values keyed by
// (night, site). It is not safe for concurrent writers.
type NightlyTimeline struct {
	entries   map[key][]model.TimelineEntry
	strict    bool
	logger    *slog.Logger
	onAnomaly func(night model.NightIndex, site model.Site, kind string)
}

// New creates an empty timeline.
func New(opts ...Option) *NightlyTimeline {
	t := &NightlyTimeline{
		entries: make(map[key][]model.TimelineEntry),
		logger:  logging.Discard(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Add appends an entry. plan may be nil. Timeslots must not decrease for a
// given (night, site); a strict timeline returns model.ErrOutOfOrder, a
// lenient one logs and appends.
func (t *NightlyTimeline) Add(night model.NightIndex, site model.Site, slot model.TimeslotIndex, e model.Event, plan *model.Plan) error {
	return t.add(night, site, model.TimelineEntry{Timeslot: slot, Event: e, Plan: plan})
}

// AddFinal appends the terminal entry of a night carrying the stitched
// final plan.
func (t *NightlyTimeline) AddFinal(night model.NightIndex, site model.Site, slot model.TimeslotIndex, e model.Event, plan *model.Plan) error {
	return t.add(night, site, model.TimelineEntry{Timeslot: slot, Event: e, Plan: plan, Final: true})
}

func (t *NightlyTimeline) add(night model.NightIndex, site model.Site, entry model.TimelineEntry) error {
	k := key{night, site}
	list := t.entries[k]
	if n := len(list); n > 0 && entry.Timeslot < list[n-1].Timeslot {
		if t.strict {
			return fmt.Errorf("night %d site %s: slot %d after slot %d: %w",
				night, site, entry.Timeslot, list[n-1].Timeslot, model.ErrOutOfOrder)
		}
		t.logger.Warn("timeline entry out of order",
			"night", int(night), "site", site, "slot", entry.Timeslot, "previous", list[n-1].Timeslot,
			logging.AnomalyKey, AnomalyOutOfOrder)
		if t.onAnomaly != nil {
			t.onAnomaly(night, site, AnomalyOutOfOrder)
		}
	}
	t.entries[k] = append(list, entry)
	return nil
}

// Entries returns a copy of the entries recorded for (night, site).
func (t *NightlyTimeline) Entries(night model.NightIndex, site model.Site) []model.TimelineEntry {
	list := t.entries[key{night, site}]
	out := make([]model.TimelineEntry, len(list))
	copy(out, list)
	return out
}

// Nights returns the nights with at least one entry, ascending.
func (t *NightlyTimeline) Nights() []model.NightIndex {
	seen := make(map[model.NightIndex]bool)
	var out []model.NightIndex
	for k := range t.entries {
		if !seen[k.night] {
			seen[k.night] = true
			out = append(out, k.night)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Sites returns the sites with entries for the night, sorted.
func (t *NightlyTimeline) Sites(night model.NightIndex) []model.Site {
	var out []model.Site
	for k := range t.entries {
		if k.night == night {
			out = append(out, k.site)
		}
	}
	return model.SortSites(out)
}

// Records flattens every entry for storage, ordered by night, site and
// insertion.
func (t *NightlyTimeline) Records() []model.EntryRecord {
	var out []model.EntryRecord
	for _, night := range t.Nights() {
		for _, site := range t.Sites(night) {
			for i, e := range t.entries[key{night, site}] {
				out = append(out, e.Record(night, site, i))
			}
		}
	}
	return out
}

// FinalPlan stitches the plans recorded for (night, site) into the record
// of what was actually executed: each plan contributes the visits that
// started before the next entry's timeslot, truncated there, and the last
// plan contributes everything. Null plans contribute nothing and terminal
// entries are ignored, so the result does not depend on whether the final
// plan has already been recorded.
func (t *NightlyTimeline) FinalPlan(night model.NightIndex, site model.Site) (*model.Plan, error) {
	all, ok := t.entries[key{night, site}]
	if !ok {
		return nil, fmt.Errorf("final plan: night %d site %s not in timeline", night, site)
	}

	var entries []model.TimelineEntry
	for _, e := range all {
		if !e.Final {
			entries = append(entries, e)
		}
	}

	var (
		template *model.Plan
		visits   []model.Visit
	)
	for i, e := range entries {
		if e.Plan == nil {
			continue
		}
		if template == nil {
			template = e.Plan
		}
		executed := e.Plan
		if i+1 < len(entries) {
			executed = e.Plan.Slice(entries[i+1].Timeslot)
		}
		visits = append(visits, executed.Visits...)
	}

	if template == nil {
		return &model.Plan{Site: site, Night: night}, nil
	}
	final := *template
	final.StartSlot = 0
	final.Visits = visits
	return &final, nil
}

// Display writes a human-readable rendering of the whole timeline.
func (t *NightlyTimeline) Display(w io.Writer) {
	for _, night := range t.Nights() {
		fmt.Fprintf(w, "\n+++++ NIGHT %d +++++\n", night+1)
		for _, site := range t.Sites(night) {
			for _, e := range t.entries[key{night, site}] {
				label := "Triggered by event"
				if e.Final {
					label = "Final plan after event"
				}
				fmt.Fprintf(w, "\t+++++ %s: %s at %d on %s +++++\n", label, model.FormatEvent(e.Event), e.Timeslot, site)
				if e.Plan == nil {
					fmt.Fprintln(w, "\t(no plan: site blocked or recompute unavailable)")
				} else {
					for _, v := range e.Plan.Visits {
						fmt.Fprintf(w, "\t%s   %-20s %8.2f %4d %4d %4d %4d\n",
							e.Plan.VisitTime(v).UTC().Format("2006-01-02 15:04"), v.ObservationID, v.Score,
							v.AtomStart, v.AtomEnd, v.StartSlot, v.Slots)
					}
				}
				fmt.Fprintln(w, "\t+++++ END EVENT +++++")
			}
		}
	}
}
