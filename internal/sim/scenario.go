// Package sim provides simulation collaborators for the engine: a scenario
// loaded from YAML that supplies night boundaries, domain events and
// observations, plus a greedy selector and optimizer.
package sim

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/me/nightsched/pkg/model"
)

// Scenario is the YAML description of a simulated run.
type Scenario struct {
	Name         string        `yaml:"name"`
	SlotLength   time.Duration `yaml:"slot_length"`
	Sites        []SiteSpec    `yaml:"sites"`
	Observations []Observation `yaml:"observations"`
	Ranker       RankerSpec    `yaml:"ranker"`
}

// SiteSpec lists the nights of one site in run order.
type SiteSpec struct {
	Name   model.Site  `yaml:"name"`
	Nights []NightSpec `yaml:"nights"`
}

// NightSpec holds the boundaries and domain events of one night.
type NightSpec struct {
	EveningTwilight   time.Time              `yaml:"evening_twilight"`
	MorningTwilight   time.Time              `yaml:"morning_twilight"`
	InitialConditions *model.VariantSnapshot `yaml:"initial_conditions"`
	Weather           []WeatherSpec          `yaml:"weather"`
	Faults            []IntervalSpec         `yaml:"faults"`
	Closures          []IntervalSpec         `yaml:"closures"`
	ToOs              []ToOSpec              `yaml:"toos"`
}

// WeatherSpec is a conditions change at a point in time.
type WeatherSpec struct {
	Time      time.Time `yaml:"time"`
	IQ        float64   `yaml:"iq"`
	CC        float64   `yaml:"cc"`
	WindDir   float64   `yaml:"wind_dir"`
	WindSpeed float64   `yaml:"wind_speed"`
}

// IntervalSpec is a fault or closure. A missing end leaves the site
// blocked for the rest of the night.
type IntervalSpec struct {
	ID     string    `yaml:"id"`
	Start  time.Time `yaml:"start"`
	End    time.Time `yaml:"end"`
	Reason string    `yaml:"reason"`
}

// ToOSpec activates a target-of-opportunity observation.
type ToOSpec struct {
	Time          time.Time `yaml:"time"`
	ObservationID string    `yaml:"observation_id"`
}

// Observation is a schedulable unit of a program.
type Observation struct {
	ID       string     `yaml:"id"`
	Site     model.Site `yaml:"site"`
	Program  string     `yaml:"program"`
	Priority int        `yaml:"priority"`
	Slots    int        `yaml:"slots"`
	IQ       float64    `yaml:"iq"`
	CC       float64    `yaml:"cc"`
	ToO      bool       `yaml:"too"`
}

// RankerSpec optionally overrides the default ranker.
type RankerSpec struct {
	Expression string `yaml:"expression"`
}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	sc, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return sc, nil
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate checks the scenario for structural errors.
func (s *Scenario) Validate() error {
	if s.SlotLength <= 0 {
		return fmt.Errorf("slot_length must be positive")
	}
	if len(s.Sites) == 0 {
		return fmt.Errorf("at least one site is required")
	}
	seen := make(map[model.Site]bool)
	for _, site := range s.Sites {
		if site.Name == "" {
			return fmt.Errorf("site name is required")
		}
		if seen[site.Name] {
			return fmt.Errorf("duplicate site %s", site.Name)
		}
		seen[site.Name] = true
		if len(site.Nights) != len(s.Sites[0].Nights) {
			return fmt.Errorf("site %s has %d nights, site %s has %d",
				site.Name, len(site.Nights), s.Sites[0].Name, len(s.Sites[0].Nights))
		}
		for i, n := range site.Nights {
			if !n.MorningTwilight.After(n.EveningTwilight) {
				return fmt.Errorf("site %s night %d: morning twilight must be after evening twilight", site.Name, i)
			}
			if n.MorningTwilight.Sub(n.EveningTwilight) < 2*s.SlotLength {
				return fmt.Errorf("site %s night %d: night shorter than two slots", site.Name, i)
			}
		}
	}
	if len(s.Sites[0].Nights) == 0 {
		return fmt.Errorf("at least one night is required")
	}
	ids := make(map[string]bool)
	for _, o := range s.Observations {
		if o.ID == "" {
			return fmt.Errorf("observation id is required")
		}
		if ids[o.ID] {
			return fmt.Errorf("duplicate observation %s", o.ID)
		}
		ids[o.ID] = true
		if !seen[o.Site] {
			return fmt.Errorf("observation %s: unknown site %q", o.ID, o.Site)
		}
		if o.Slots <= 0 {
			return fmt.Errorf("observation %s: slots must be positive", o.ID)
		}
	}
	return nil
}

// SiteNames returns the scenario's sites in lexicographic order.
func (s *Scenario) SiteNames() []model.Site {
	out := make([]model.Site, 0, len(s.Sites))
	for _, site := range s.Sites {
		out = append(out, site.Name)
	}
	return model.SortSites(out)
}

// NumNights returns the number of nights every site carries.
func (s *Scenario) NumNights() int {
	if len(s.Sites) == 0 {
		return 0
	}
	return len(s.Sites[0].Nights)
}

func (n NightSpec) events() *model.NightEvents {
	ev := &model.NightEvents{InitialConditions: n.InitialConditions}
	for _, w := range n.Weather {
		ev.Weather = append(ev.Weather, model.WeatherReading{
			Time:    w.Time,
			Variant: model.VariantSnapshot{IQ: w.IQ, CC: w.CC, WindDir: w.WindDir, WindSpeed: w.WindSpeed},
		})
	}
	for _, f := range n.Faults {
		ev.Faults = append(ev.Faults, model.InterruptionWindow(f))
	}
	for _, c := range n.Closures {
		ev.Closures = append(ev.Closures, model.InterruptionWindow(c))
	}
	for _, t := range n.ToOs {
		ev.ToOs = append(ev.ToOs, model.ToOWindow(t))
	}
	return ev
}
