package changemonitor

import (
	"errors"
	"testing"
	"time"

	"github.com/me/nightsched/internal/logging"
	"github.com/me/nightsched/pkg/model"
)

var nightStart = time.Date(2018, 8, 1, 5, 0, 0, 0, time.UTC)

type fixedBounds struct{ err error }

func (f fixedBounds) NightBoundaries(model.Site, model.NightIndex) (model.NightBounds, error) {
	if f.err != nil {
		return model.NightBounds{}, f.err
	}
	return model.NightBounds{
		EveningTwilight: nightStart,
		MorningTwilight: nightStart.Add(21 * time.Minute),
		SlotLength:      time.Minute,
	}, nil
}

type recordingObserver struct {
	variants []model.VariantSnapshot
	toos     []string
}

func (r *recordingObserver) UpdateSiteVariant(_ model.Site, v *model.VariantSnapshot) {
	r.variants = append(r.variants, *v)
}

func (r *recordingObserver) ActivateToO(_ model.Site, id string) {
	r.toos = append(r.toos, id)
}

func at(min int) time.Time { return nightStart.Add(time.Duration(min) * time.Minute) }

func newMonitor(t *testing.T) (*Monitor, *recordingObserver, *[]string) {
	t.Helper()
	obs := &recordingObserver{}
	var anomalies []string
	m := New(fixedBounds{}, obs, logging.Discard(), WithAnomalyHook(func(_ model.Site, kind string) {
		anomalies = append(anomalies, kind)
	}))
	return m, obs, &anomalies
}

func TestProcessEvent_Records(t *testing.T) {
	in := model.Interruption{ID: "f1"}
	tests := []struct {
		name     string
		event    model.Event
		slot     model.TimeslotIndex
		account  bool
		done     bool
		blocked  bool
	}{
		{"evening seeds slot 0", model.NewEveningTwilight("GN", at(0), "eve"), 0, false, false, false},
		{"morning is terminal", model.NewMorningTwilight("GN", at(20), "morn"), 20, true, true, false},
		{"weather at own slot", model.NewWeatherChange("GN", at(5), "wx", model.DefaultVariant), 5, true, false, false},
		{"fault blocks", model.NewFaultStart("GN", at(4), "fault", in), 4, true, false, true},
		{"closure blocks", model.NewClosureStart("GN", at(6), "closure", in), 6, true, false, true},
		{"too at own slot", model.NewToOActivation("GN", at(7), "too", "obs-9"), 7, true, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _, _ := newMonitor(t)
			rec, err := m.ProcessEvent("GN", tt.event, nil, 0)
			if err != nil {
				t.Fatalf("ProcessEvent: %v", err)
			}
			if rec == nil {
				t.Fatal("expected a record")
			}
			if rec.Timeslot != tt.slot || rec.PerformTimeAccounting != tt.account || rec.Done != tt.done {
				t.Errorf("record = %+v, want slot=%d account=%v done=%v", rec, tt.slot, tt.account, tt.done)
			}
			if rec.Event != tt.event {
				t.Error("record should carry the triggering event")
			}
			if m.IsSiteUnblocked("GN") == tt.blocked {
				t.Errorf("unblocked = %v, want %v", m.IsSiteUnblocked("GN"), !tt.blocked)
			}
		})
	}
}

func TestProcessEvent_FaultStartEndPair(t *testing.T) {
	m, _, anomalies := newMonitor(t)
	in := model.Interruption{ID: "f1"}

	if _, err := m.ProcessEvent("GN", model.NewFaultStart("GN", at(3), "start", in), nil, 0); err != nil {
		t.Fatal(err)
	}
	if m.State("GN") != model.SiteBlocked {
		t.Fatalf("state = %s, want BLOCKED", m.State("GN"))
	}
	rec, err := m.ProcessEvent("GN", model.NewFaultEnd("GN", at(3), "end", in), nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if rec == nil || rec.Timeslot != 3 {
		t.Fatalf("matched end should schedule an update at slot 3, got %+v", rec)
	}
	if m.State("GN") != model.SiteUnblocked {
		t.Errorf("state = %s, want UNBLOCKED", m.State("GN"))
	}
	if len(*anomalies) != 0 {
		t.Errorf("anomalies = %v, want none", *anomalies)
	}
}

func TestProcessEvent_UnmatchedEnd(t *testing.T) {
	m, _, anomalies := newMonitor(t)

	rec, err := m.ProcessEvent("GN", model.NewFaultEnd("GN", at(3), "stray", model.Interruption{ID: "x"}), nil, 0)
	if err != nil {
		t.Fatalf("unmatched end must not fail: %v", err)
	}
	if rec != nil {
		t.Errorf("unmatched end should be informational, got %+v", rec)
	}
	if !m.IsSiteUnblocked("GN") {
		t.Error("unmatched end must leave the site unblocked")
	}
	if len(*anomalies) != 1 || (*anomalies)[0] != AnomalyUnmatchedEnd {
		t.Errorf("anomalies = %v, want [%s]", *anomalies, AnomalyUnmatchedEnd)
	}

	// A closure end does not match an open fault.
	m.ProcessEvent("GN", model.NewFaultStart("GN", at(4), "f", model.Interruption{}), nil, 0)
	rec, _ = m.ProcessEvent("GN", model.NewClosureEnd("GN", at(5), "c", model.Interruption{}), nil, 0)
	if rec != nil || m.IsSiteUnblocked("GN") {
		t.Error("closure end must not close a fault")
	}
}

func TestBlockedParity(t *testing.T) {
	type step struct {
		start bool
		id    string
	}
	tests := []struct {
		name    string
		steps   []step
		blocked bool
	}{
		{"single open", []step{{true, "a"}}, true},
		{"open close", []step{{true, "a"}, {false, "a"}}, false},
		{"nested", []step{{true, "a"}, {true, "b"}, {false, "a"}}, true},
		{"nested closed", []step{{true, "a"}, {true, "b"}, {false, "b"}, {false, "a"}}, false},
		{"anonymous ids", []step{{true, ""}, {true, ""}, {false, ""}, {false, ""}}, false},
		{"extra end ignored", []step{{false, "z"}, {true, "a"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _, _ := newMonitor(t)
			for i, s := range tt.steps {
				in := model.Interruption{ID: s.id}
				var e model.Event = model.NewFaultEnd("GS", at(i), "end", in)
				if s.start {
					e = model.NewFaultStart("GS", at(i), "start", in)
				}
				if _, err := m.ProcessEvent("GS", e, nil, 0); err != nil {
					t.Fatal(err)
				}
			}
			if got := !m.IsSiteUnblocked("GS"); got != tt.blocked {
				t.Errorf("blocked = %v, want %v", got, tt.blocked)
			}
		})
	}
}

func TestProcessEvent_NotifiesObserver(t *testing.T) {
	m, obs, _ := newMonitor(t)
	v := model.VariantSnapshot{IQ: 0.2, CC: 0.5, WindDir: 90, WindSpeed: 3}
	plan := &model.Plan{Site: "GN", Visits: []model.Visit{{ObservationID: "a", Slots: 5}}}

	m.ProcessEvent("GN", model.NewWeatherChange("GN", at(5), "wx", v), plan, 0)
	m.ProcessEvent("GN", model.NewToOActivation("GN", at(6), "too", "GN-ToO-1"), plan, 0)

	if len(obs.variants) != 1 || obs.variants[0] != v {
		t.Errorf("variants = %v, want [%v]", obs.variants, v)
	}
	if len(obs.toos) != 1 || obs.toos[0] != "GN-ToO-1" {
		t.Errorf("toos = %v", obs.toos)
	}
}

func TestProcessEvent_BoundaryError(t *testing.T) {
	boom := errors.New("no such night")
	m := New(fixedBounds{err: boom}, nil, logging.Discard())
	_, err := m.ProcessEvent("GN", model.NewEveningTwilight("GN", at(0), "eve"), nil, 4)
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped %v", err, boom)
	}
}

func TestResetSite(t *testing.T) {
	m, _, _ := newMonitor(t)
	m.ProcessEvent("GN", model.NewClosureStart("GN", at(1), "c", model.Interruption{}), nil, 0)
	m.ProcessEvent("GS", model.NewClosureStart("GS", at(1), "c", model.Interruption{}), nil, 0)
	m.ResetSite("GN")
	if !m.IsSiteUnblocked("GN") {
		t.Error("GN should be unblocked after reset")
	}
	if m.IsSiteUnblocked("GS") {
		t.Error("reset of GN must not touch GS")
	}
}
