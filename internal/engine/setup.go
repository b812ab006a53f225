package engine

import (
	"context"
	"fmt"

	"github.com/me/nightsched/pkg/model"
)

// Setup seeds the event queue for every night and site: the evening
// twilight, the weather changes strictly inside the night, closure and fault
// start/end pairs, ToO activations, and the morning twilight one slot before
// the end of the night. It also records each night's initial conditions.
func (e *Engine) Setup(ctx context.Context) error {
	if e.seeded {
		return fmt.Errorf("engine: Setup called twice")
	}
	for _, site := range e.params.Sites {
		for _, night := range e.params.Nights {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := e.seed(site, night); err != nil {
				return fmt.Errorf("seed night %d site %s: %w", night, site, err)
			}
		}
	}
	e.seeded = true
	return nil
}

func (e *Engine) seed(site model.Site, night model.NightIndex) error {
	bounds, err := e.deps.Collector.NightBoundaries(site, night)
	if err != nil {
		return fmt.Errorf("night boundaries: %w", err)
	}
	e.bounds[nightSite{night, site}] = bounds
	numSlots := model.TimeslotIndex(bounds.NumSlots())

	e.queue.Push(night, site, model.NewEveningTwilight(site, bounds.EveningTwilight, "Evening 12° Twilight"))

	var events *model.NightEvents
	if e.deps.Events != nil {
		events, err = e.deps.Events.NightEvents(site, bounds.NightDate())
		if err != nil {
			return fmt.Errorf("night events: %w", err)
		}
	}
	if events == nil {
		events = &model.NightEvents{}
	}
	e.initial[nightSite{night, site}] = events.InitialConditions

	for _, w := range events.Weather {
		slot := bounds.Slot(w.Time)
		if slot <= 0 || slot >= numSlots {
			e.logger.Debug("weather change outside the night, ignoring",
				"night", int(night), "site", site, "slot", slot, "night_slots", numSlots)
			continue
		}
		desc := fmt.Sprintf("Weather change at %s, %s: %s", site, w.Time.UTC().Format("2006-01-02 15:04"), w.Variant)
		e.queue.Push(night, site, model.NewWeatherChange(site, w.Time, desc, w.Variant))
	}

	for _, c := range events.Closures {
		in := model.Interruption{ID: c.ID, Reason: c.Reason}
		e.queue.Push(night, site, model.NewClosureStart(site, c.Start, fmt.Sprintf("Closure at %s: %s", site, c.Reason), in))
		if !c.End.IsZero() {
			e.queue.Push(night, site, model.NewClosureEnd(site, c.End, fmt.Sprintf("Closure end at %s", site), in))
		}
	}

	for _, f := range events.Faults {
		in := model.Interruption{ID: f.ID, Reason: f.Reason}
		e.queue.Push(night, site, model.NewFaultStart(site, f.Start, fmt.Sprintf("Fault at %s: %s", site, f.Reason), in))
		if !f.End.IsZero() {
			e.queue.Push(night, site, model.NewFaultEnd(site, f.End, fmt.Sprintf("Fault end at %s", site), in))
		}
	}

	for _, t := range events.ToOs {
		desc := fmt.Sprintf("ToO activation at %s: %s", site, t.ObservationID)
		e.queue.Push(night, site, model.NewToOActivation(site, t.Time, desc, t.ObservationID))
	}

	morning := bounds.MorningTwilight.Add(-bounds.SlotLength)
	e.queue.Push(night, site, model.NewMorningTwilight(site, morning, "Morning 12° Twilight"))

	e.logger.Debug("night seeded", "night", int(night), "site", site,
		"events", e.queue.Len(night, site), "night_slots", numSlots)
	return nil
}
