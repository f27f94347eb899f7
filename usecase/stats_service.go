package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/voicecall/domain/entities"
	"github.com/satriahrh/voicecall/domain/repositories"
)

// StatsService keeps the usage counters and writes them back after every change
type StatsService struct {
	repo   repositories.StatsRepository
	logger *zap.Logger

	mu    sync.Mutex
	stats entities.Stats
}

// NewStatsService creates a stats service backed by repo
func NewStatsService(repo repositories.StatsRepository, logger *zap.Logger) *StatsService {
	return &StatsService{
		repo:   repo,
		logger: logger,
	}
}

// Load merges the stored counters over the in-memory defaults
func (s *StatsService) Load(ctx context.Context) error {
	stored, err := s.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load stats: %w", err)
	}

	s.mu.Lock()
	s.stats = s.stats.Merge(stored)
	stats := s.stats
	s.mu.Unlock()

	s.logger.Info("Loaded usage stats",
		zap.Int("totalCalls", stats.TotalCalls),
		zap.Int("reviewsCollected", stats.ReviewsCollected),
		zap.Int64("totalCallDurationMs", stats.TotalCallDuration))
	return nil
}

// RecordStat applies event and persists the result. A failed save is logged;
// the in-memory counters stay updated.
func (s *StatsService) RecordStat(ctx context.Context, event entities.StatEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats = s.stats.Apply(event)
	if err := s.repo.Save(ctx, s.stats); err != nil {
		s.logger.Error("Failed to save stats",
			zap.String("event", string(event.Type)),
			zap.Error(err))
	}
}

// Stats returns a copy of the current counters
func (s *StatsService) Stats() entities.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// AverageCallDuration returns the mean duration of completed calls
func (s *StatsService) AverageCallDuration() time.Duration {
	return s.Stats().AverageCallDuration()
}
