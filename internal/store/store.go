package store

import (
	"context"

	"github.com/me/nightsched/pkg/model"
)

// Store is the sink for finished scheduling runs and their timelines.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.Run, int, error)

	// Timeline entries
	SaveTimeline(ctx context.Context, runID string, records []model.EntryRecord) error
	ListTimeline(ctx context.Context, runID string, filter model.TimelineFilter) ([]model.EntryRecord, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
