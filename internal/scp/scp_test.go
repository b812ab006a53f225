package scp

import (
	"context"
	"errors"
	"testing"

	"github.com/me/nightsched/pkg/model"
)

type fakeSelector struct {
	got SelectRequest
	err error
}

func (f *fakeSelector) Select(_ context.Context, req SelectRequest) (*Selection, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	sel := &Selection{Nights: req.Nights, Sites: req.Sites, Plans: map[model.Site]map[model.NightIndex]*NightSelection{}}
	for _, s := range req.Sites {
		sel.Plans[s] = map[model.NightIndex]*NightSelection{}
		for _, n := range req.Nights {
			sel.Plans[s][n] = &NightSelection{Site: s, Night: n, StartSlot: req.StartingSlots[s][n]}
		}
	}
	return sel, nil
}

func (f *fakeSelector) UpdateSiteVariant(model.Site, *model.VariantSnapshot) {}

type fakeOptimizer struct {
	err   error
	empty bool
}

func (f *fakeOptimizer) Schedule(_ context.Context, sel *Selection) ([]model.Plans, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.empty {
		return nil, nil
	}
	var out []model.Plans
	for _, n := range sel.Nights {
		plans := model.Plans{}
		for _, s := range sel.Sites {
			ns := sel.Get(s, n)
			plans[s] = &model.Plan{Site: s, Night: n, StartSlot: ns.StartSlot}
		}
		out = append(out, plans)
	}
	return out, nil
}

type constRanker float64

func (c constRanker) Score(model.NightIndex, Candidate) float64 { return float64(c) }

func TestPipelineRun_FirstNightPlan(t *testing.T) {
	sel := &fakeSelector{}
	p := New(nil, sel, &fakeOptimizer{}, constRanker(1))

	plan, err := p.Run(context.Background(), "GN", []model.NightIndex{2, 3, 4}, 17)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if plan == nil || plan.Night != 2 || plan.StartSlot != 17 || plan.Site != "GN" {
		t.Fatalf("plan = %+v, want night 2 from slot 17", plan)
	}

	starts := sel.got.StartingSlots["GN"]
	if starts[2] != 17 || starts[3] != 0 || starts[4] != 0 {
		t.Errorf("starting slots = %v", starts)
	}
	if sel.got.Ranker == nil {
		t.Error("ranker should be passed to the selector")
	}
	if len(sel.got.Sites) != 1 || sel.got.Sites[0] != "GN" {
		t.Errorf("sites = %v", sel.got.Sites)
	}
}

func TestPipelineRun_Errors(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name string
		sel  *fakeSelector
		opt  *fakeOptimizer
	}{
		{"selector", &fakeSelector{err: boom}, &fakeOptimizer{}},
		{"optimizer", &fakeSelector{}, &fakeOptimizer{err: boom}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(nil, tt.sel, tt.opt, constRanker(0))
			_, err := p.Run(context.Background(), "GS", []model.NightIndex{0}, 0)
			if !errors.Is(err, boom) {
				t.Errorf("err = %v, want wrapped boom", err)
			}
		})
	}
}

func TestPipelineRun_NoNights(t *testing.T) {
	p := New(nil, &fakeSelector{}, &fakeOptimizer{}, constRanker(0))
	if _, err := p.Run(context.Background(), "GS", nil, 0); err == nil {
		t.Error("expected error for empty night list")
	}
}

func TestPipelineRun_EmptySchedule(t *testing.T) {
	p := New(nil, &fakeSelector{}, &fakeOptimizer{empty: true}, constRanker(0))
	plan, err := p.Run(context.Background(), "GS", []model.NightIndex{0}, 3)
	if err != nil || plan != nil {
		t.Errorf("got (%v, %v), want (nil, nil)", plan, err)
	}
}
