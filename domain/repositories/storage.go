package repositories

import (
	"context"

	"github.com/satriahrh/voicecall/domain/entities"
)

// StatsRepository persists usage statistics
type StatsRepository interface {
	// Load returns the stored fields; a missing record yields an empty StoredStats.
	Load(ctx context.Context) (entities.StoredStats, error)
	Save(ctx context.Context, stats entities.Stats) error
}

// StatsRecorder receives usage events from the call session
type StatsRecorder interface {
	RecordStat(ctx context.Context, event entities.StatEvent)
}
