package redisstore

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/satriahrh/voicecall/domain/entities"
)

const (
	fieldTotalCalls        = "totalCalls"
	fieldReviewsCollected  = "reviewsCollected"
	fieldTotalCallDuration = "totalCallDuration"
)

// StatsRepository keeps the usage counters of one client in a Redis hash
type StatsRepository struct {
	client *redis.Client
	prefix string
	key    string
}

// Option configures a StatsRepository
type Option func(*StatsRepository)

// WithPrefix sets the key prefix. Default is "voicecall".
func WithPrefix(prefix string) Option {
	return func(r *StatsRepository) {
		r.prefix = prefix
	}
}

// NewStatsRepository creates a Redis stats repository for clientID
func NewStatsRepository(client *redis.Client, clientID string, opts ...Option) *StatsRepository {
	r := &StatsRepository{
		client: client,
		prefix: "voicecall",
	}
	for _, opt := range opts {
		opt(r)
	}
	r.key = r.prefix + ":stats:" + clientID
	return r
}

// Key returns the hash key holding the counters
func (r *StatsRepository) Key() string {
	return r.key
}

// Load implements repositories.StatsRepository. Fields that are absent or not numeric stay nil.
func (r *StatsRepository) Load(ctx context.Context) (entities.StoredStats, error) {
	values, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return entities.StoredStats{}, fmt.Errorf("failed to load stats from %s: %w", r.key, err)
	}

	var stored entities.StoredStats
	if v, ok := values[fieldTotalCalls]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			stored.TotalCalls = &n
		}
	}
	if v, ok := values[fieldReviewsCollected]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			stored.ReviewsCollected = &n
		}
	}
	if v, ok := values[fieldTotalCallDuration]; ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			stored.TotalCallDuration = &n
		}
	}
	return stored, nil
}

// Save implements repositories.StatsRepository
func (r *StatsRepository) Save(ctx context.Context, stats entities.Stats) error {
	err := r.client.HSet(ctx, r.key,
		fieldTotalCalls, stats.TotalCalls,
		fieldReviewsCollected, stats.ReviewsCollected,
		fieldTotalCallDuration, stats.TotalCallDuration,
	).Err()
	if err != nil {
		return fmt.Errorf("failed to save stats to %s: %w", r.key, err)
	}
	return nil
}
