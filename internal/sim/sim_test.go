package sim

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/me/nightsched/internal/logging"
	"github.com/me/nightsched/internal/ranker"
	"github.com/me/nightsched/internal/scp"
	"github.com/me/nightsched/pkg/model"
)

func loadSmall(t *testing.T) *Scenario {
	t.Helper()
	sc, err := LoadScenario("testdata/small.yaml")
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}
	return sc
}

func TestLoadScenario(t *testing.T) {
	sc := loadSmall(t)
	if sc.SlotLength != time.Minute {
		t.Errorf("SlotLength = %v", sc.SlotLength)
	}
	if sc.NumNights() != 1 || len(sc.SiteNames()) != 1 {
		t.Fatalf("nights=%d sites=%v", sc.NumNights(), sc.SiteNames())
	}
	n := sc.Sites[0].Nights[0]
	if n.InitialConditions == nil || n.InitialConditions.IQ != 0.7 {
		t.Errorf("initial conditions = %+v", n.InitialConditions)
	}
	if len(n.Faults) != 1 || n.Faults[0].ID != "F1" || n.Faults[0].End.IsZero() {
		t.Errorf("faults = %+v", n.Faults)
	}
	if len(sc.Observations) != 3 || !sc.Observations[2].ToO {
		t.Errorf("observations = %+v", sc.Observations)
	}
}

func TestLoadScenario_Missing(t *testing.T) {
	if _, err := LoadScenario("testdata/nope.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestParseScenario_Validation(t *testing.T) {
	base := `
slot_length: 1m
sites:
  - name: GN
    nights:
      - evening_twilight: 2018-08-01T05:00:00Z
        morning_twilight: 2018-08-01T06:00:00Z
`
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"valid", base, ""},
		{"no slot length", strings.Replace(base, "slot_length: 1m", "", 1), "slot_length"},
		{"no sites", "slot_length: 1m\n", "at least one site"},
		{"reversed night", strings.Replace(base, "06:00:00Z", "04:00:00Z", 1), "morning twilight"},
		{"unknown site", base + "observations:\n  - {id: x, site: GS, slots: 3}\n", "unknown site"},
		{"zero slots", base + "observations:\n  - {id: x, site: GN}\n", "slots must be positive"},
		{"duplicate obs", base + "observations:\n  - {id: x, site: GN, slots: 1}\n  - {id: x, site: GN, slots: 1}\n", "duplicate observation"},
		{"bad yaml", "sites: [", "parse scenario"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestCollector_BoundariesAndEvents(t *testing.T) {
	c := NewCollector(loadSmall(t))

	b, err := c.NightBoundaries("GN", 0)
	if err != nil {
		t.Fatal(err)
	}
	if b.NumSlots() != 21 {
		t.Errorf("NumSlots = %d, want 21", b.NumSlots())
	}
	if _, err := c.NightBoundaries("GN", 1); err == nil {
		t.Error("expected error for night out of range")
	}
	if _, err := c.NightBoundaries("GS", 0); err == nil {
		t.Error("expected error for unknown site")
	}

	ev, err := c.NightEvents("GN", b.NightDate())
	if err != nil {
		t.Fatal(err)
	}
	if len(ev.Weather) != 1 || len(ev.Faults) != 1 || len(ev.ToOs) != 1 {
		t.Errorf("events = %+v", ev)
	}
	if ev.Weather[0].Variant.IQ != 0.2 {
		t.Errorf("weather variant = %+v", ev.Weather[0].Variant)
	}

	none, err := c.NightEvents("GN", b.NightDate().AddDate(0, 0, 5))
	if err != nil || len(none.Weather) != 0 {
		t.Errorf("other date should have no events: %+v %v", none, err)
	}
}

func TestCollector_TimeAccounting(t *testing.T) {
	c := NewCollector(loadSmall(t))
	plan := &model.Plan{Site: "GN", NightSlots: 21, Visits: []model.Visit{
		{ObservationID: "GN-A", StartSlot: 0, Slots: 6},
		{ObservationID: "GN-B", StartSlot: 6, Slots: 15},
	}}

	err := c.TimeAccounting(model.Plans{"GN": plan}, []model.Site{"GN"}, map[model.Site]model.TimeslotIndex{"GN": 10})
	if err != nil {
		t.Fatal(err)
	}
	if got := c.Remaining("GN-A"); got != 0 {
		t.Errorf("GN-A remaining = %d, want 0", got)
	}
	if got := c.Remaining("GN-B"); got != 26 {
		t.Errorf("GN-B remaining = %d, want 26", got)
	}

	// No bound charges the whole plan.
	if err := c.TimeAccounting(model.Plans{"GN": plan}, []model.Site{"GN"}, nil); err != nil {
		t.Fatal(err)
	}
	if got := c.Remaining("GN-B"); got != 11 {
		t.Errorf("GN-B remaining = %d, want 11", got)
	}

	charged := c.Charged()
	if len(charged) != 2 || charged[0].ID != "GN-A" || charged[0].Slots != 12 {
		t.Errorf("charged = %+v", charged)
	}

	bad := &model.Plan{Site: "GN", Visits: []model.Visit{{ObservationID: "ghost", Slots: 1}}}
	if err := c.TimeAccounting(model.Plans{"GN": bad}, []model.Site{"GN"}, nil); err == nil {
		t.Error("expected error for unknown observation")
	}
}

func selectFor(t *testing.T, s *Selector, start model.TimeslotIndex) *scp.NightSelection {
	t.Helper()
	sel, err := s.Select(context.Background(), scp.SelectRequest{
		Nights:        []model.NightIndex{0},
		Sites:         []model.Site{"GN"},
		StartingSlots: map[model.Site]map[model.NightIndex]model.TimeslotIndex{"GN": {0: start}},
		Ranker:        ranker.Default{},
	})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	return sel.Get("GN", 0)
}

func candidateIDs(ns *scp.NightSelection) []string {
	var out []string
	for _, c := range ns.Candidates {
		out = append(out, c.ObservationID)
	}
	return out
}

func TestSelector_Filters(t *testing.T) {
	c := NewCollector(loadSmall(t))
	s := NewSelector(c, logging.Discard())

	// Default conditions: GN-B needs IQ20, the ToO is not active.
	if got := strings.Join(candidateIDs(selectFor(t, s, 0)), ","); got != "GN-A" {
		t.Errorf("candidates = %s, want GN-A", got)
	}

	s.UpdateSiteVariant("GN", &model.VariantSnapshot{IQ: 0.2, CC: 0.5})
	s.ActivateToO("GN", "GN-ToO")
	ns := selectFor(t, s, 4)
	if got := strings.Join(candidateIDs(ns), ","); got != "GN-ToO,GN-A,GN-B" {
		t.Errorf("candidates = %s, want ToO first then by priority", got)
	}
	if ns.StartSlot != 4 {
		t.Errorf("StartSlot = %d, want 4", ns.StartSlot)
	}

	// Fully charged observations drop out.
	c.TimeAccounting(model.Plans{"GN": {Visits: []model.Visit{{ObservationID: "GN-A", Slots: 6}}}}, []model.Site{"GN"}, nil)
	if got := strings.Join(candidateIDs(selectFor(t, s, 4)), ","); got != "GN-ToO,GN-B" {
		t.Errorf("candidates = %s", got)
	}
}

func TestSelector_IgnoresUnknownToO(t *testing.T) {
	s := NewSelector(NewCollector(loadSmall(t)), logging.Discard())
	s.ActivateToO("GS", "GN-ToO")
	s.ActivateToO("GN", "nope")
	if got := len(selectFor(t, s, 0).Candidates); got != 1 {
		t.Errorf("candidates = %d, want 1", got)
	}
}

func TestGreedyOptimizer_Packs(t *testing.T) {
	c := NewCollector(loadSmall(t))
	s := NewSelector(c, logging.Discard())
	s.UpdateSiteVariant("GN", &model.VariantSnapshot{IQ: 0.2, CC: 0.5})

	sel, err := s.Select(context.Background(), scp.SelectRequest{
		Nights:        []model.NightIndex{0},
		Sites:         []model.Site{"GN"},
		StartingSlots: map[model.Site]map[model.NightIndex]model.TimeslotIndex{"GN": {0: 5}},
		Ranker:        ranker.Default{},
	})
	if err != nil {
		t.Fatal(err)
	}
	plans, err := NewGreedyOptimizer().Schedule(context.Background(), sel)
	if err != nil {
		t.Fatal(err)
	}
	plan := plans[0]["GN"]
	if plan.StartSlot != 5 || plan.NightSlots != 21 {
		t.Fatalf("plan = %+v", plan)
	}
	want := []model.Visit{
		{ObservationID: "GN-A", StartSlot: 5, Slots: 6, AtomStart: 0, AtomEnd: 5},
		{ObservationID: "GN-B", StartSlot: 11, Slots: 10, AtomStart: 0, AtomEnd: 9},
	}
	if len(plan.Visits) != len(want) {
		t.Fatalf("visits = %+v", plan.Visits)
	}
	for i, v := range plan.Visits {
		v.Score = 0
		if v != want[i] {
			t.Errorf("visit %d = %+v, want %+v", i, v, want[i])
		}
	}
	if plan.TimeLeft() != 0 {
		t.Errorf("TimeLeft = %d, want 0", plan.TimeLeft())
	}
}

func TestGreedyOptimizer_WindowDoesNotDoubleBook(t *testing.T) {
	bounds := model.NightBounds{
		EveningTwilight: time.Date(2018, 8, 1, 5, 0, 0, 0, time.UTC),
		MorningTwilight: time.Date(2018, 8, 1, 5, 10, 0, 0, time.UTC),
		SlotLength:      time.Minute,
	}
	cand := scp.ScoredCandidate{Candidate: scp.Candidate{ObservationID: "long", RemainingSlots: 14}}
	sel := &scp.Selection{
		Nights: []model.NightIndex{0, 1},
		Sites:  []model.Site{"GN"},
		Plans: map[model.Site]map[model.NightIndex]*scp.NightSelection{"GN": {
			0: {Site: "GN", Night: 0, Bounds: bounds, Candidates: []scp.ScoredCandidate{cand}},
			1: {Site: "GN", Night: 1, Bounds: bounds, Candidates: []scp.ScoredCandidate{cand}},
		}},
	}
	plans, err := NewGreedyOptimizer().Schedule(context.Background(), sel)
	if err != nil {
		t.Fatal(err)
	}
	if len(plans) != 2 {
		t.Fatalf("plans = %d, want 2", len(plans))
	}
	if got := plans[0]["GN"].ObservedSlots(); got != 10 {
		t.Errorf("night 0 slots = %d, want 10", got)
	}
	second := plans[1]["GN"]
	if got := second.ObservedSlots(); got != 4 {
		t.Errorf("night 1 slots = %d, want 4", got)
	}
	if second.Visits[0].AtomStart != 10 {
		t.Errorf("night 1 should continue at atom 10, got %d", second.Visits[0].AtomStart)
	}
}

func TestSelect_CanceledContext(t *testing.T) {
	s := NewSelector(NewCollector(loadSmall(t)), logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Select(ctx, scp.SelectRequest{Ranker: ranker.Default{}})
	if err == nil {
		t.Error("expected context error")
	}
}
