package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/me/nightsched/internal/logging"
	"github.com/me/nightsched/pkg/model"
)

// nightRun is the loop state of one (night, site) run.
type nightRun struct {
	night   model.NightIndex
	site    model.Site
	bounds  model.NightBounds
	logger  *slog.Logger
	current model.TimeslotIndex
	// nextEvent is the slot of the earliest queued event not yet drained;
	// valid only when haveNext is set.
	nextEvent model.TimeslotIndex
	haveNext  bool
	pending   *model.TimeCoordinateRecord
	plan      *model.Plan
	done      bool
}

// scheduleNight runs the discrete-event loop of one site for one night. The
// virtual clock advances one timeslot per iteration; events are drained as
// the clock reaches them and the single pending update is executed when its
// slot comes up.
func (e *Engine) scheduleNight(ctx context.Context, night model.NightIndex, site model.Site) error {
	e.night = night
	e.stat(night, site)

	if e.queue.IsEmpty(night, site) {
		return &model.IntegrityError{Night: night, Site: site, Reason: "no events at loop entry"}
	}

	bounds, err := e.nightBounds(night, site)
	if err != nil {
		return err
	}
	r := &nightRun{
		night:  night,
		site:   site,
		bounds: bounds,
		logger: logging.ForNight(e.logger, night, site),
	}

	initial := e.initial[nightSite{night, site}]
	r.logger.Debug("resetting site conditions for night", "initial", initial != nil)
	e.deps.Selector.UpdateSiteVariant(site, initial)

	for !r.done {
		if r.pending == nil && e.queue.IsEmpty(night, site) {
			return &model.IntegrityError{Night: night, Site: site,
				Reason: "no pending update and no events left before morning twilight"}
		}

		if !r.haveNext || r.current >= r.nextEvent {
			if err := e.drain(r); err != nil {
				return err
			}
		}

		if r.pending != nil && r.current >= r.pending.Timeslot {
			if err := e.execute(ctx, r); err != nil {
				return err
			}
		}

		if !r.done {
			r.current++
		}
	}

	e.drainOnExit(r)

	if !e.monitor.IsSiteUnblocked(site) {
		r.logger.Warn("site still blocked after all events processed",
			logging.AnomalyKey, AnomalyStillBlocked)
		e.anomalyHook(night, site, AnomalyStillBlocked)
		e.monitor.ResetSite(site)
	}
	r.logger.Info("night complete", "entries", len(e.timeline.Entries(night, site)), "final_slot", r.current)
	return nil
}

func (e *Engine) nightBounds(night model.NightIndex, site model.Site) (model.NightBounds, error) {
	k := nightSite{night, site}
	if b, ok := e.bounds[k]; ok {
		return b, nil
	}
	b, err := e.deps.Collector.NightBoundaries(site, night)
	if err != nil {
		return model.NightBounds{}, &model.IntegrityError{Night: night, Site: site, Reason: "night boundaries: " + err.Error()}
	}
	e.bounds[k] = b
	return b, nil
}

// drain pops every queued event whose slot the clock has reached and folds
// the resulting records into the pending update. The first event still in
// the future becomes the lookahead.
func (e *Engine) drain(r *nightRun) error {
	r.haveNext = false
	for e.queue.HasMore(r.night, r.site) {
		top, err := e.queue.Top(r.night, r.site)
		if err != nil {
			return err
		}
		slot := r.bounds.Slot(top.Time())
		if slot > r.current {
			r.nextEvent = slot
			r.haveNext = true
			return nil
		}
		if _, err := e.queue.PopNext(r.night, r.site); err != nil {
			return err
		}
		if slot < r.current {
			r.logger.Warn("event behind the clock",
				"event", model.FormatEvent(top), "event_slot", slot, "current", r.current,
				logging.AnomalyKey, AnomalyEventBehindClock)
			e.anomalyHook(r.night, r.site, AnomalyEventBehindClock)
		}

		rec, err := e.monitor.ProcessEvent(r.site, top, r.plan, r.night)
		if err != nil {
			return &model.IntegrityError{Night: r.night, Site: r.site, Reason: err.Error()}
		}
		r.pending = model.EarliestUpdate(r.pending, rec)
		if rec != nil && r.pending == rec {
			r.logger.Debug("next update scheduled", "slot", rec.Timeslot, "event", rec.Event.Kind())
		}
	}
	return nil
}

// execute performs the pending update: time accounting against the plan in
// force, then either the final plan, a recompute, or a null plan when the
// site is blocked.
func (e *Engine) execute(ctx context.Context, r *nightRun) error {
	update := r.pending
	r.pending = nil

	if r.current > update.Timeslot {
		r.logger.Warn("plan update executed late",
			"event", model.FormatEvent(update.Event), "scheduled", update.Timeslot, "current", r.current,
			logging.AnomalyKey, AnomalyLateUpdate)
		e.anomalyHook(r.night, r.site, AnomalyLateUpdate)
	}

	if r.plan != nil && update.PerformTimeAccounting {
		var bounds map[model.Site]model.TimeslotIndex
		if !update.Done {
			bounds = map[model.Site]model.TimeslotIndex{r.site: update.Timeslot}
		}
		r.logger.Debug("time accounting", "up_to", update.Timeslot, "rest_of_night", update.Done)
		if err := e.deps.Collector.TimeAccounting(model.Plans{r.site: r.plan}, []model.Site{r.site}, bounds); err != nil {
			return &model.PipelineError{Night: r.night, Site: r.site, Timeslot: r.current, Err: err}
		}
	}

	switch {
	case update.Done:
		final, err := e.timeline.FinalPlan(r.night, r.site)
		if err != nil {
			final = &model.Plan{Site: r.site, Night: r.night}
		}
		if err := e.timeline.AddFinal(r.night, r.site, r.current, update.Event, final); err != nil {
			return err
		}
		e.metrics.Entry(r.site, true)
		r.done = true

	case e.monitor.IsSiteUnblocked(r.site):
		start := time.Now()
		plan, err := e.deps.Planner.Run(ctx, r.site, e.window(r.night), r.current)
		e.metrics.Recompute(r.site, time.Since(start))
		if err != nil {
			r.plan = nil
			if addErr := e.add(r, update.Event, nil); addErr != nil {
				return addErr
			}
			return &model.PipelineError{Night: r.night, Site: r.site, Timeslot: r.current, Err: err}
		}
		r.plan = plan
		e.stat(r.night, r.site).Recomputes++
		r.logger.Debug("plan recomputed", "slot", r.current, "event", update.Event.Kind(), "visits", visitCount(plan))
		return e.add(r, update.Event, plan)

	default:
		r.plan = nil
		e.stat(r.night, r.site).BlockedEntries++
		e.metrics.Blocked(r.site)
		r.logger.Debug("site blocked, recording null plan", "slot", r.current, "event", update.Event.Kind())
		return e.add(r, update.Event, nil)
	}
	return nil
}

func (e *Engine) add(r *nightRun, ev model.Event, plan *model.Plan) error {
	if err := e.timeline.Add(r.night, r.site, r.current, ev, plan); err != nil {
		return err
	}
	e.metrics.Entry(r.site, plan != nil)
	return nil
}

// drainOnExit consumes events left after the terminal update. They keep the
// blocked state consistent and are recorded with a null plan.
func (e *Engine) drainOnExit(r *nightRun) {
	for e.queue.HasMore(r.night, r.site) {
		ev, err := e.queue.PopNext(r.night, r.site)
		if err != nil {
			return
		}
		slot := max(r.current, r.bounds.Slot(ev.Time()))
		r.logger.Warn("event after morning twilight",
			"event", model.FormatEvent(ev), "event_slot", slot,
			logging.AnomalyKey, AnomalyEventAfterMorning)
		e.anomalyHook(r.night, r.site, AnomalyEventAfterMorning)

		if _, err := e.monitor.ProcessEvent(r.site, ev, nil, r.night); err != nil {
			r.logger.Error("processing residual event", "event", model.FormatEvent(ev), "error", err)
		}
		if err := e.timeline.Add(r.night, r.site, slot, ev, nil); err != nil {
			r.logger.Error("recording residual event", "event", model.FormatEvent(ev), "error", err)
			continue
		}
		e.metrics.Entry(r.site, false)
	}
}

func visitCount(p *model.Plan) int {
	if p == nil {
		return 0
	}
	return len(p.Visits)
}
