// Package changemonitor turns night events into plan-update decisions and
// tracks which sites are blocked by faults or closures.
package changemonitor

import (
	"fmt"
	"log/slog"

	"github.com/me/nightsched/internal/logging"
	"github.com/me/nightsched/pkg/model"
)

// Boundaries supplies the precomputed twilight times and slot length of a
// night.
type Boundaries interface {
	NightBoundaries(site model.Site, night model.NightIndex) (model.NightBounds, error)
}

// SiteObserver is told about changes that affect what can be selected at a
// site. The planning pipeline's selector implements it.
type SiteObserver interface {
	UpdateSiteVariant(site model.Site, v *model.VariantSnapshot)
	ActivateToO(site model.Site, observationID string)
}

// AnomalyUnmatchedEnd is reported when a fault or closure ends without a
// matching open interval.
const AnomalyUnmatchedEnd = "unmatched_end"

// siteState holds the open interruption intervals of one site, oldest first.
type siteState struct {
	faults   []string
	closures []string
}

func (s *siteState) blocked() bool {
	return len(s.faults)+len(s.closures) > 0
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithAnomalyHook registers a callback invoked for every anomaly the monitor
// logs.
func WithAnomalyHook(fn func(site model.Site, kind string)) Option {
	return func(m *Monitor) {
		m.onAnomaly = fn
	}
}

// Monitor is the per-site Unblocked/Blocked state machine. It is not safe
// for concurrent use.
type Monitor struct {
	bounds    Boundaries
	observer  SiteObserver
	sites     map[model.Site]*siteState
	logger    *slog.Logger
	onAnomaly func(site model.Site, kind string)
}

// New creates a Monitor. observer may be nil.
func New(bounds Boundaries, observer SiteObserver, logger *slog.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		bounds:   bounds,
		observer: observer,
		sites:    make(map[model.Site]*siteState),
		logger:   logger.With("component", "change-monitor"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Monitor) state(site model.Site) *siteState {
	st, ok := m.sites[site]
	if !ok {
		st = &siteState{}
		m.sites[site] = st
	}
	return st
}

// ProcessEvent applies the event to the site's state and returns the plan
// update it calls for, or nil when the event is purely informational.
// currentPlan is the plan in force when the event arrives, if any.
func (m *Monitor) ProcessEvent(site model.Site, e model.Event, currentPlan *model.Plan, night model.NightIndex) (*model.TimeCoordinateRecord, error) {
	bounds, err := m.bounds.NightBoundaries(site, night)
	if err != nil {
		return nil, fmt.Errorf("night boundaries for %s night %d: %w", site, night, err)
	}
	slot := model.EventTimeslot(e, bounds.EveningTwilight, bounds.SlotLength)
	st := m.state(site)

	switch ev := e.(type) {
	case *model.EveningTwilight:
		return &model.TimeCoordinateRecord{Timeslot: 0, Event: e}, nil

	case *model.MorningTwilight:
		return &model.TimeCoordinateRecord{Timeslot: slot, Event: e, PerformTimeAccounting: true, Done: true}, nil

	case *model.WeatherChange:
		if m.observer != nil {
			v := ev.Variant
			m.observer.UpdateSiteVariant(site, &v)
		}
		if currentPlan != nil {
			m.logger.Debug("weather change supersedes plan", "site", site, "slot", slot, "visits", len(currentPlan.Visits), "variant", ev.Variant.String())
		}

	case *model.FaultStart:
		st.faults = append(st.faults, ev.ID)
		m.logger.Debug("site blocked", "site", site, "slot", slot, "cause", e.Kind(), "reason", ev.Reason)

	case *model.ClosureStart:
		st.closures = append(st.closures, ev.ID)
		m.logger.Debug("site blocked", "site", site, "slot", slot, "cause", e.Kind(), "reason", ev.Reason)

	case *model.FaultEnd:
		var ok bool
		if st.faults, ok = closeInterval(st.faults, ev.ID); !ok {
			m.unmatchedEnd(site, e, slot)
			return nil, nil
		}

	case *model.ClosureEnd:
		var ok bool
		if st.closures, ok = closeInterval(st.closures, ev.ID); !ok {
			m.unmatchedEnd(site, e, slot)
			return nil, nil
		}

	case *model.ToOActivation:
		if m.observer != nil {
			m.observer.ActivateToO(site, ev.ObservationID)
		}

	default:
		return nil, fmt.Errorf("unknown event type %T", e)
	}

	if e.Kind().IsInterruptionEnd() && !st.blocked() {
		m.logger.Debug("site unblocked", "site", site, "slot", slot, "cause", e.Kind())
	}
	return &model.TimeCoordinateRecord{Timeslot: slot, Event: e, PerformTimeAccounting: true}, nil
}

func (m *Monitor) unmatchedEnd(site model.Site, e model.Event, slot model.TimeslotIndex) {
	m.logger.Warn("interruption end without matching start",
		"site", site, "slot", slot, "event", model.FormatEvent(e), logging.AnomalyKey, AnomalyUnmatchedEnd)
	if m.onAnomaly != nil {
		m.onAnomaly(site, AnomalyUnmatchedEnd)
	}
}

// closeInterval removes the open interval matching id. An empty id closes
// the oldest open interval.
func closeInterval(open []string, id string) ([]string, bool) {
	if len(open) == 0 {
		return open, false
	}
	if id == "" {
		return open[1:], true
	}
	for i, o := range open {
		if o == id {
			return append(open[:i:i], open[i+1:]...), true
		}
	}
	return open, false
}

// IsSiteUnblocked reports whether the site has no open fault or closure.
func (m *Monitor) IsSiteUnblocked(site model.Site) bool {
	st, ok := m.sites[site]
	return !ok || !st.blocked()
}

// State returns the current state of the site.
func (m *Monitor) State(site model.Site) model.SiteState {
	if m.IsSiteUnblocked(site) {
		return model.SiteUnblocked
	}
	return model.SiteBlocked
}

// ResetSite forgets all open intervals of the site.
func (m *Monitor) ResetSite(site model.Site) {
	delete(m.sites, site)
}
