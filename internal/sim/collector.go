package sim

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/me/nightsched/pkg/model"
)

// Collector serves the scenario's night boundaries and events and keeps the
// observing time still owed to each observation.
type Collector struct {
	scenario *Scenario
	nights   map[model.Site][]NightSpec
	obs      map[string]Observation

	mu        sync.Mutex
	remaining map[string]int
	charged   map[string]int
}

// NewCollector indexes a validated scenario.
func NewCollector(sc *Scenario) *Collector {
	c := &Collector{
		scenario:  sc,
		nights:    make(map[model.Site][]NightSpec),
		obs:       make(map[string]Observation),
		remaining: make(map[string]int),
		charged:   make(map[string]int),
	}
	for _, s := range sc.Sites {
		c.nights[s.Name] = s.Nights
	}
	for _, o := range sc.Observations {
		c.obs[o.ID] = o
		c.remaining[o.ID] = o.Slots
	}
	return c
}

// Sites returns the scenario sites in lexicographic order.
func (c *Collector) Sites() []model.Site {
	return c.scenario.SiteNames()
}

// NumNights returns the number of nights in the scenario.
func (c *Collector) NumNights() int {
	return c.scenario.NumNights()
}

func (c *Collector) night(site model.Site, night model.NightIndex) (NightSpec, error) {
	nights, ok := c.nights[site]
	if !ok {
		return NightSpec{}, fmt.Errorf("unknown site %s", site)
	}
	if night < 0 || int(night) >= len(nights) {
		return NightSpec{}, fmt.Errorf("site %s has no night %d", site, night)
	}
	return nights[night], nil
}

// NightBoundaries implements scp.Collector.
func (c *Collector) NightBoundaries(site model.Site, night model.NightIndex) (model.NightBounds, error) {
	n, err := c.night(site, night)
	if err != nil {
		return model.NightBounds{}, err
	}
	return model.NightBounds{
		EveningTwilight: n.EveningTwilight,
		MorningTwilight: n.MorningTwilight,
		SlotLength:      c.scenario.SlotLength,
	}, nil
}

// NightEvents returns the domain events of the site's night filed under
// nightDate.
func (c *Collector) NightEvents(site model.Site, nightDate time.Time) (*model.NightEvents, error) {
	nights, ok := c.nights[site]
	if !ok {
		return nil, fmt.Errorf("unknown site %s", site)
	}
	for i, n := range nights {
		b, _ := c.NightBoundaries(site, model.NightIndex(i))
		if b.NightDate().Equal(nightDate) {
			return n.events(), nil
		}
	}
	return &model.NightEvents{}, nil
}

// TimeAccounting implements scp.Collector. Visits of each site's plan are
// charged up to the site's end bound; a site without a bound is charged in
// full.
func (c *Collector) TimeAccounting(plans model.Plans, sites []model.Site, endBounds map[model.Site]model.TimeslotIndex) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, site := range sites {
		plan, ok := plans[site]
		if !ok || plan == nil {
			continue
		}
		charged := plan
		if end, ok := endBounds[site]; ok {
			charged = plan.Slice(end)
		}
		for _, v := range charged.Visits {
			if _, known := c.obs[v.ObservationID]; !known {
				return fmt.Errorf("time accounting: unknown observation %s", v.ObservationID)
			}
			c.charged[v.ObservationID] += v.Slots
			c.remaining[v.ObservationID] = max(0, c.remaining[v.ObservationID]-v.Slots)
		}
	}
	return nil
}

// Remaining returns the slots still owed to an observation.
func (c *Collector) Remaining(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining[id]
}

// Charged returns the slots charged to each observation, sorted by ID.
func (c *Collector) Charged() []ObservationTime {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ObservationTime, 0, len(c.charged))
	for id, n := range c.charged {
		out = append(out, ObservationTime{ID: id, Slots: n, Remaining: c.remaining[id]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ObservationTime is the accounting state of one observation.
type ObservationTime struct {
	ID        string
	Slots     int
	Remaining int
}

// Observations returns the scenario observations for a site.
func (c *Collector) Observations(site model.Site) []Observation {
	var out []Observation
	for _, o := range c.scenario.Observations {
		if o.Site == site {
			out = append(out, o)
		}
	}
	return out
}

// Observation looks up an observation by ID.
func (c *Collector) Observation(id string) (Observation, bool) {
	o, ok := c.obs[id]
	return o, ok
}
