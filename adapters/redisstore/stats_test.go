package redisstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satriahrh/voicecall/domain/entities"
)

func setupRepository(t *testing.T, opts ...Option) (*StatsRepository, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStatsRepository(client, "desk-1", opts...), mr
}

func TestStatsRepository_LoadEmpty(t *testing.T) {
	repo, _ := setupRepository(t)

	stored, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, entities.StoredStats{}, stored)
}

func TestStatsRepository_SaveAndLoad(t *testing.T) {
	repo, mr := setupRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, entities.Stats{TotalCalls: 3, ReviewsCollected: 7, TotalCallDuration: 93000}))
	assert.Equal(t, "3", mr.HGet("voicecall:stats:desk-1", "totalCalls"))

	stored, err := repo.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, stored.TotalCalls)
	require.NotNil(t, stored.ReviewsCollected)
	require.NotNil(t, stored.TotalCallDuration)
	assert.Equal(t, 3, *stored.TotalCalls)
	assert.Equal(t, 7, *stored.ReviewsCollected)
	assert.Equal(t, int64(93000), *stored.TotalCallDuration)
}

func TestStatsRepository_PartialRecord(t *testing.T) {
	repo, mr := setupRepository(t)
	mr.HSet(repo.Key(), "reviewsCollected", "4")
	mr.HSet(repo.Key(), "totalCalls", "many")

	stored, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, stored.TotalCalls)
	assert.Nil(t, stored.TotalCallDuration)
	require.NotNil(t, stored.ReviewsCollected)
	assert.Equal(t, 4, *stored.ReviewsCollected)
}

func TestStatsRepository_Prefix(t *testing.T) {
	repo, _ := setupRepository(t, WithPrefix("kiosk"))
	assert.Equal(t, "kiosk:stats:desk-1", repo.Key())
}

func TestStatsRepository_Unavailable(t *testing.T) {
	repo, mr := setupRepository(t)
	mr.Close()

	_, err := repo.Load(context.Background())
	assert.Error(t, err)
	assert.Error(t, repo.Save(context.Background(), entities.Stats{TotalCalls: 1}))
}
