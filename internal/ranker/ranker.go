// Package ranker scores candidate observations for the selector.
package ranker

import (
	"github.com/me/nightsched/internal/scp"
	"github.com/me/nightsched/pkg/model"
)

// ToOBonus lifts activated targets of opportunity above regular programs.
const ToOBonus = 1000

// Default ranks by priority, then by how much time an observation still
// needs, so that partially observed programs are finished first.
type Default struct{}

// Score implements scp.Ranker.
func (Default) Score(_ model.NightIndex, c scp.Candidate) float64 {
	score := float64(c.Priority) * 10
	if c.RemainingSlots > 0 {
		score += 1 / float64(c.RemainingSlots)
	}
	if c.ToO {
		score += ToOBonus
	}
	return score
}
