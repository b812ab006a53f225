// Package scp bundles the external planning capability behind one Run
// operation that produces the plan for a site from a given timeslot.
package scp

import (
	"context"
	"fmt"

	"github.com/me/nightsched/pkg/model"
)

// Collector owns the static data the pipeline plans against.
type Collector interface {
	// NightBoundaries returns the twilight times and slot length of a night.
	NightBoundaries(site model.Site, night model.NightIndex) (model.NightBounds, error)

	// TimeAccounting charges the visits of plans that ran before the end
	// bound of each site against the observations' remaining time.
	TimeAccounting(plans model.Plans, sites []model.Site, endBounds map[model.Site]model.TimeslotIndex) error
}

// Candidate is an observation the selector considers schedulable.
type Candidate struct {
	ObservationID  string
	Site           model.Site
	Program        string
	Priority       int
	RemainingSlots int
	IQ             float64
	CC             float64
	ToO            bool
}

// Ranker scores a candidate for a night. Higher scores are scheduled first.
type Ranker interface {
	Score(night model.NightIndex, c Candidate) float64
}

// SelectRequest asks the selector for the schedulable candidates of some
// sites over a window of nights.
type SelectRequest struct {
	Nights        []model.NightIndex
	Sites         []model.Site
	StartingSlots map[model.Site]map[model.NightIndex]model.TimeslotIndex
	Ranker        Ranker
}

// ScoredCandidate pairs a candidate with the ranker's score.
type ScoredCandidate struct {
	Candidate
	Score float64
}

// NightSelection is the ranked candidate list for one site and night.
type NightSelection struct {
	Site       model.Site
	Night      model.NightIndex
	StartSlot  model.TimeslotIndex
	Bounds     model.NightBounds
	Candidates []ScoredCandidate
}

// Selection is the selector output, indexed by site and night.
type Selection struct {
	Nights []model.NightIndex
	Sites  []model.Site
	Plans  map[model.Site]map[model.NightIndex]*NightSelection
}

// Get returns the selection for (site, night), or nil.
func (s *Selection) Get(site model.Site, night model.NightIndex) *NightSelection {
	if s == nil || s.Plans == nil {
		return nil
	}
	return s.Plans[site][night]
}

// Selector filters and scores candidate observations.
type Selector interface {
	Select(ctx context.Context, req SelectRequest) (*Selection, error)

	// UpdateSiteVariant sets the observing conditions used for later
	// selections at the site.
	UpdateSiteVariant(site model.Site, v *model.VariantSnapshot)
}

// Optimizer turns a selection into plans, one Plans per requested night in
// order.
type Optimizer interface {
	Schedule(ctx context.Context, sel *Selection) ([]model.Plans, error)
}

// Pipeline is the planning façade used by the engine. It holds no state
// beyond its collaborators.
type Pipeline struct {
	Collector Collector
	Selector  Selector
	Optimizer Optimizer
	Ranker    Ranker
}

// New creates a pipeline.
func New(collector Collector, selector Selector, optimizer Optimizer, ranker Ranker) *Pipeline {
	return &Pipeline{
		Collector: collector,
		Selector:  selector,
		Optimizer: optimizer,
		Ranker:    ranker,
	}
}

// Run computes the plan for site over nights, starting at current on the
// first night and at slot 0 on the others, and returns the first night's
// plan. A nil plan with a nil error means the optimizer had nothing for the
// site.
func (p *Pipeline) Run(ctx context.Context, site model.Site, nights []model.NightIndex, current model.TimeslotIndex) (*model.Plan, error) {
	if len(nights) == 0 {
		return nil, fmt.Errorf("pipeline run for %s: no nights", site)
	}

	starts := make(map[model.NightIndex]model.TimeslotIndex, len(nights))
	for i, n := range nights {
		if i == 0 {
			starts[n] = current
		} else {
			starts[n] = 0
		}
	}

	sel, err := p.Selector.Select(ctx, SelectRequest{
		Nights:        nights,
		Sites:         []model.Site{site},
		StartingSlots: map[model.Site]map[model.NightIndex]model.TimeslotIndex{site: starts},
		Ranker:        p.Ranker,
	})
	if err != nil {
		return nil, fmt.Errorf("select: %w", err)
	}

	plans, err := p.Optimizer.Schedule(ctx, sel)
	if err != nil {
		return nil, fmt.Errorf("schedule: %w", err)
	}
	if len(plans) == 0 {
		return nil, nil
	}
	return plans[0][site], nil
}
