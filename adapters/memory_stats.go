package adapters

import (
	"context"
	"sync"

	"github.com/satriahrh/voicecall/domain/entities"
)

// MemoryStatsRepository keeps stats in process memory. Nothing survives a restart.
type MemoryStatsRepository struct {
	mu     sync.RWMutex
	stats  entities.Stats
	stored bool
	saves  int
}

// NewMemoryStatsRepository creates an empty in-memory stats repository
func NewMemoryStatsRepository() *MemoryStatsRepository {
	return &MemoryStatsRepository{}
}

// Load implements repositories.StatsRepository
func (m *MemoryStatsRepository) Load(ctx context.Context) (entities.StoredStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.stored {
		return entities.StoredStats{}, nil
	}
	stats := m.stats
	return entities.StoredStats{
		TotalCalls:        &stats.TotalCalls,
		ReviewsCollected:  &stats.ReviewsCollected,
		TotalCallDuration: &stats.TotalCallDuration,
	}, nil
}

// Save implements repositories.StatsRepository
func (m *MemoryStatsRepository) Save(ctx context.Context, stats entities.Stats) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats = stats
	m.stored = true
	m.saves++
	return nil
}

// Saves returns how many times Save was called
func (m *MemoryStatsRepository) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}
