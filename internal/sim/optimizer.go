package sim

import (
	"context"

	"github.com/me/nightsched/internal/scp"
	"github.com/me/nightsched/pkg/model"
)

// GreedyOptimizer packs ranked candidates back to back from the start slot,
// splitting the last one when the night runs out. Time handed out on an
// earlier night of the window is not offered again on a later one.
type GreedyOptimizer struct{}

// NewGreedyOptimizer creates the optimizer.
func NewGreedyOptimizer() *GreedyOptimizer {
	return &GreedyOptimizer{}
}

// Schedule implements scp.Optimizer.
func (GreedyOptimizer) Schedule(ctx context.Context, sel *scp.Selection) ([]model.Plans, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	used := make(map[string]int)
	out := make([]model.Plans, 0, len(sel.Nights))
	for _, night := range sel.Nights {
		plans := make(model.Plans, len(sel.Sites))
		for _, site := range sel.Sites {
			ns := sel.Get(site, night)
			if ns == nil {
				continue
			}
			plans[site] = pack(ns, used)
		}
		out = append(out, plans)
	}
	return out, nil
}

func pack(ns *scp.NightSelection, used map[string]int) *model.Plan {
	plan := &model.Plan{
		Site:       ns.Site,
		Night:      ns.Night,
		StartSlot:  ns.StartSlot,
		NightSlots: ns.Bounds.NumSlots(),
		NightStart: ns.Bounds.EveningTwilight,
		SlotLength: ns.Bounds.SlotLength,
	}
	cursor := ns.StartSlot
	for _, c := range ns.Candidates {
		free := plan.NightSlots - int(cursor)
		if free <= 0 {
			break
		}
		need := c.RemainingSlots - used[c.ObservationID]
		if need <= 0 {
			continue
		}
		slots := min(need, free)
		done := used[c.ObservationID]
		plan.Visits = append(plan.Visits, model.Visit{
			ObservationID: c.ObservationID,
			StartSlot:     cursor,
			Slots:         slots,
			Score:         c.Score,
			AtomStart:     done,
			AtomEnd:       done + slots - 1,
		})
		used[c.ObservationID] += slots
		cursor += model.TimeslotIndex(slots)
	}
	return plan
}
