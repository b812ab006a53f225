// Package engine drives the per-site, per-night discrete-event loop that
// decides when plans are recomputed and stitches them into the timeline.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/me/nightsched/internal/changemonitor"
	"github.com/me/nightsched/internal/eventqueue"
	"github.com/me/nightsched/internal/scp"
	"github.com/me/nightsched/internal/telemetry"
	"github.com/me/nightsched/internal/timeline"
	"github.com/me/nightsched/pkg/model"
)

// Anomaly kinds logged by the engine.
const (
	AnomalyEventBehindClock  = "event_behind_clock"
	AnomalyLateUpdate        = "late_update"
	AnomalyEventAfterMorning = "event_after_morning"
	AnomalyStillBlocked      = "still_blocked"
)

// EventSource enumerates the domain events of a site for a night date.
type EventSource interface {
	NightEvents(site model.Site, nightDate time.Time) (*model.NightEvents, error)
}

// Planner produces the plan for a site from a timeslot. *scp.Pipeline
// implements it.
type Planner interface {
	Run(ctx context.Context, site model.Site, nights []model.NightIndex, current model.TimeslotIndex) (*model.Plan, error)
}

// Params selects what a run schedules.
type Params struct {
	Sites  []model.Site
	Nights []model.NightIndex
	// Lookahead is the number of nights, starting with the current one,
	// handed to the planner on each recompute. Values below 1 mean 1.
	Lookahead int
}

// Deps are the collaborators of the engine.
type Deps struct {
	Collector scp.Collector
	Selector  scp.Selector
	Planner   Planner
	// Events may be nil, in which case only twilight events are seeded.
	Events EventSource
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics records run metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithStrictTimeline makes out-of-order timeline entries fatal.
func WithStrictTimeline() Option {
	return func(e *Engine) {
		e.strict = true
	}
}

type nightSite struct {
	night model.NightIndex
	site  model.Site
}

// Engine owns the event queue, the change monitor and the timeline of one
// scheduling run. It is not safe for concurrent use.
type Engine struct {
	params  Params
	deps    Deps
	logger  *slog.Logger
	metrics *telemetry.Metrics
	strict  bool

	queue    *eventqueue.EventQueue
	monitor  *changemonitor.Monitor
	timeline *timeline.NightlyTimeline

	initial   map[nightSite]*model.VariantSnapshot
	bounds    map[nightSite]model.NightBounds
	stats     map[nightSite]*model.NightSummary
	night     model.NightIndex
	seeded    bool
	scheduled bool
}

// New validates params and creates an engine.
func New(params Params, deps Deps, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if len(params.Sites) == 0 {
		return nil, fmt.Errorf("engine: no sites")
	}
	if len(params.Nights) == 0 {
		return nil, fmt.Errorf("engine: no nights")
	}
	if deps.Collector == nil || deps.Selector == nil || deps.Planner == nil {
		return nil, fmt.Errorf("engine: collector, selector and planner are required")
	}

	nights := make([]model.NightIndex, len(params.Nights))
	copy(nights, params.Nights)
	sort.Slice(nights, func(i, j int) bool { return nights[i] < nights[j] })
	params.Nights = nights
	params.Sites = model.SortSites(params.Sites)
	if params.Lookahead < 1 {
		params.Lookahead = 1
	}

	e := &Engine{
		params:  params,
		deps:    deps,
		logger:  logger.With("component", "engine"),
		queue:   eventqueue.New(params.Nights, params.Sites),
		initial: make(map[nightSite]*model.VariantSnapshot),
		bounds:  make(map[nightSite]model.NightBounds),
		stats:   make(map[nightSite]*model.NightSummary),
	}
	for _, opt := range opts {
		opt(e)
	}

	tlOpts := []timeline.Option{timeline.WithLogger(logger), timeline.WithAnomalyHook(e.anomalyHook)}
	if e.strict {
		tlOpts = append(tlOpts, timeline.WithStrictOrdering())
	}
	e.timeline = timeline.New(tlOpts...)

	observer, ok := deps.Selector.(changemonitor.SiteObserver)
	if !ok {
		observer = variantObserver{deps.Selector, e.logger}
	}
	e.monitor = changemonitor.New(deps.Collector, observer, logger,
		changemonitor.WithAnomalyHook(func(site model.Site, kind string) {
			e.anomalyHook(e.night, site, kind)
		}))
	return e, nil
}

// variantObserver adapts a selector that cannot activate ToOs.
type variantObserver struct {
	scp.Selector
	logger *slog.Logger
}

func (v variantObserver) ActivateToO(site model.Site, observationID string) {
	v.logger.Debug("selector does not support ToO activation", "site", site, "observation", observationID)
}

// Timeline returns the run's timeline.
func (e *Engine) Timeline() *timeline.NightlyTimeline {
	return e.timeline
}

// Run seeds the queue if Setup has not been called, then schedules every
// night in ascending order and every site in lexicographic order. A failed
// (night, site) run is recorded and the remaining runs continue; all
// failures are returned joined together with the partial results.
func (e *Engine) Run(ctx context.Context) (*model.RunSummary, *timeline.NightlyTimeline, error) {
	if e.scheduled {
		return nil, nil, fmt.Errorf("engine: Run called twice")
	}
	e.scheduled = true

	if !e.seeded {
		if err := e.Setup(ctx); err != nil {
			return nil, nil, err
		}
	}

	start := time.Now()
	summary := &model.RunSummary{}
	var errs []error

	for _, night := range e.params.Nights {
		nightStart := time.Now()
		for _, site := range e.params.Sites {
			if err := ctx.Err(); err != nil {
				errs = append(errs, err)
				return summary, e.timeline, errors.Join(errs...)
			}
			err := e.scheduleNight(ctx, night, site)
			if err != nil {
				errs = append(errs, err)
				e.abort(night, site, err)
			}
			n := e.summarize(night, site, err)
			summary.Add(n)
			e.metrics.Night(n)
		}
		e.logger.Info("night scheduled", "night", int(night), "elapsed", time.Since(nightStart))
	}

	e.logger.Info("run complete",
		"nights", len(e.params.Nights), "sites", len(e.params.Sites),
		"recomputes", summary.Recomputes, "anomalies", summary.Anomalies,
		"failed", summary.Failed, "elapsed", time.Since(start))
	return summary, e.timeline, errors.Join(errs...)
}

// abort cleans up after a failed (night, site) run so that later runs start
// from a consistent state.
func (e *Engine) abort(night model.NightIndex, site model.Site, err error) {
	var integrity *model.IntegrityError
	e.metrics.Failure(errors.As(err, &integrity))
	e.logger.Error("night aborted", "night", int(night), "site", site, "error", err)

	for _, ev := range e.queue.Discard(night, site) {
		e.logger.Debug("discarding event of aborted night",
			"night", int(night), "site", site, "event", model.FormatEvent(ev))
	}
	e.monitor.ResetSite(site)
}

func (e *Engine) stat(night model.NightIndex, site model.Site) *model.NightSummary {
	k := nightSite{night, site}
	s, ok := e.stats[k]
	if !ok {
		s = &model.NightSummary{Night: night, Site: site}
		e.stats[k] = s
	}
	return s
}

func (e *Engine) anomalyHook(night model.NightIndex, site model.Site, kind string) {
	e.stat(night, site).Anomalies++
	e.metrics.Anomaly(kind)
}

func (e *Engine) summarize(night model.NightIndex, site model.Site, runErr error) model.NightSummary {
	n := *e.stat(night, site)
	n.Entries = len(e.timeline.Entries(night, site))
	if b, ok := e.bounds[nightSite{night, site}]; ok {
		n.NightSlots = b.NumSlots()
	}
	if runErr != nil {
		n.Failed = true
		n.Error = runErr.Error()
	}
	if n.Entries > 0 {
		if final, err := e.timeline.FinalPlan(night, site); err == nil {
			n.Visits = len(final.Visits)
			n.ObservedSlots = final.ObservedSlots()
		}
	}
	return n
}

// window returns the nights handed to the planner when recomputing night.
func (e *Engine) window(night model.NightIndex) []model.NightIndex {
	var out []model.NightIndex
	for _, n := range e.params.Nights {
		if n >= night && len(out) < e.params.Lookahead {
			out = append(out, n)
		}
	}
	return out
}
