package sim

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/me/nightsched/internal/scp"
	"github.com/me/nightsched/pkg/model"
)

// Selector filters the scenario observations by site, remaining time,
// current conditions and ToO activation, and ranks what is left.
type Selector struct {
	collector *Collector
	logger    *slog.Logger

	mu       sync.Mutex
	variants map[model.Site]model.VariantSnapshot
	active   map[string]bool
}

// NewSelector creates a selector over the collector's observations.
func NewSelector(collector *Collector, logger *slog.Logger) *Selector {
	return &Selector{
		collector: collector,
		logger:    logger.With("component", "selector"),
		variants:  make(map[model.Site]model.VariantSnapshot),
		active:    make(map[string]bool),
	}
}

// UpdateSiteVariant implements scp.Selector.
func (s *Selector) UpdateSiteVariant(site model.Site, v *model.VariantSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v == nil {
		delete(s.variants, site)
		return
	}
	s.variants[site] = *v
	s.logger.Debug("conditions updated", "site", site, "variant", v.String())
}

// ActivateToO makes a target-of-opportunity observation selectable.
func (s *Selector) ActivateToO(site model.Site, observationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.collector.Observation(observationID); !ok || o.Site != site {
		s.logger.Warn("activation for unknown ToO", "site", site, "observation", observationID)
		return
	}
	s.active[observationID] = true
	s.logger.Debug("ToO activated", "site", site, "observation", observationID)
}

// Variant returns the conditions currently assumed at the site.
func (s *Selector) Variant(site model.Site) model.VariantSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.variants[site]; ok {
		return v
	}
	return model.DefaultVariant
}

// Select implements scp.Selector.
func (s *Selector) Select(ctx context.Context, req scp.SelectRequest) (*scp.Selection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ranker := req.Ranker
	if ranker == nil {
		return nil, fmt.Errorf("select: no ranker")
	}

	sel := &scp.Selection{
		Nights: req.Nights,
		Sites:  req.Sites,
		Plans:  make(map[model.Site]map[model.NightIndex]*scp.NightSelection),
	}
	for _, site := range req.Sites {
		variant := s.Variant(site)
		sel.Plans[site] = make(map[model.NightIndex]*scp.NightSelection)
		for _, night := range req.Nights {
			bounds, err := s.collector.NightBoundaries(site, night)
			if err != nil {
				return nil, fmt.Errorf("select %s night %d: %w", site, night, err)
			}
			ns := &scp.NightSelection{
				Site:      site,
				Night:     night,
				StartSlot: req.StartingSlots[site][night],
				Bounds:    bounds,
			}
			for _, o := range s.collector.Observations(site) {
				c, ok := s.candidate(o, variant)
				if !ok {
					continue
				}
				ns.Candidates = append(ns.Candidates, scp.ScoredCandidate{Candidate: c, Score: ranker.Score(night, c)})
			}
			sort.SliceStable(ns.Candidates, func(i, j int) bool {
				a, b := ns.Candidates[i], ns.Candidates[j]
				if a.Score != b.Score {
					return a.Score > b.Score
				}
				return a.ObservationID < b.ObservationID
			})
			sel.Plans[site][night] = ns
		}
	}
	return sel, nil
}

func (s *Selector) candidate(o Observation, variant model.VariantSnapshot) (scp.Candidate, bool) {
	remaining := s.collector.Remaining(o.ID)
	if remaining <= 0 {
		return scp.Candidate{}, false
	}
	s.mu.Lock()
	active := s.active[o.ID]
	s.mu.Unlock()
	if o.ToO && !active {
		return scp.Candidate{}, false
	}
	iq, cc := o.IQ, o.CC
	if iq == 0 {
		iq = 1
	}
	if cc == 0 {
		cc = 1
	}
	if !variant.Satisfies(iq, cc) {
		return scp.Candidate{}, false
	}
	return scp.Candidate{
		ObservationID:  o.ID,
		Site:           o.Site,
		Program:        o.Program,
		Priority:       o.Priority,
		RemainingSlots: remaining,
		IQ:             o.IQ,
		CC:             o.CC,
		ToO:            o.ToO,
	}, true
}
