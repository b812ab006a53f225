package ranker

import (
	"testing"

	"github.com/me/nightsched/internal/logging"
	"github.com/me/nightsched/internal/scp"
)

func TestDefault_Ordering(t *testing.T) {
	var r Default
	high := scp.Candidate{ObservationID: "hi", Priority: 3, RemainingSlots: 10}
	low := scp.Candidate{ObservationID: "lo", Priority: 1, RemainingSlots: 1}
	nearlyDone := scp.Candidate{ObservationID: "nd", Priority: 3, RemainingSlots: 2}
	too := scp.Candidate{ObservationID: "too", Priority: 0, RemainingSlots: 5, ToO: true}

	if r.Score(0, high) <= r.Score(0, low) {
		t.Error("higher priority should score higher")
	}
	if r.Score(0, nearlyDone) <= r.Score(0, high) {
		t.Error("equal priority: less remaining time should score higher")
	}
	if r.Score(0, too) <= r.Score(0, high) {
		t.Error("ToO should outrank regular programs")
	}
}

func TestExpr_Score(t *testing.T) {
	c := scp.Candidate{ObservationID: "GN-1", Program: "GN-2018B-Q-1", Priority: 2, RemainingSlots: 8, IQ: 0.7, CC: 0.5}
	tests := []struct {
		expr string
		want float64
	}{
		{"obs.priority * 2", 4},
		{"obs.remaining + night", 11},
		{"obs.too ? 100 : 1", 1},
		{"obs.program.indexOf('Q') >= 0 ? 5 : 0", 5},
		{"var s = obs.priority * 3; s + obs.cc", 6.5},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			r, err := NewExpr(tt.expr, nil, logging.Discard())
			if err != nil {
				t.Fatalf("NewExpr: %v", err)
			}
			if got := r.Score(3, c); got != tt.want {
				t.Errorf("Score = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExpr_CompileError(t *testing.T) {
	if _, err := NewExpr("obs.priority +* 2", nil, logging.Discard()); err == nil {
		t.Error("expected compile error")
	}
}

func TestExpr_FallbackOnRuntimeFailure(t *testing.T) {
	tests := []string{
		"undefinedVariable * 2",
		"'not a number'",
		"undefined",
	}
	for _, expr := range tests {
		t.Run(expr, func(t *testing.T) {
			r, err := NewExpr(expr, nil, logging.Discard())
			if err != nil {
				t.Fatalf("NewExpr: %v", err)
			}
			c := scp.Candidate{Priority: 1, RemainingSlots: 4}
			if got, want := r.Score(0, c), (Default{}).Score(0, c); got != want {
				t.Errorf("Score = %v, want fallback %v", got, want)
			}
		})
	}
}
