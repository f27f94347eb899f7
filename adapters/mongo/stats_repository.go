package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/satriahrh/voicecall/domain/entities"
)

const statsCollection = "stats"

// StatsRepository keeps one stats document per client
type StatsRepository struct {
	collection *mongo.Collection
	clientID   string
}

// NewStatsRepository creates a MongoDB stats repository for clientID
func NewStatsRepository(db *mongo.Database, clientID string) *StatsRepository {
	return &StatsRepository{
		collection: db.Collection(statsCollection),
		clientID:   clientID,
	}
}

// Load implements repositories.StatsRepository
func (r *StatsRepository) Load(ctx context.Context) (entities.StoredStats, error) {
	var stored entities.StoredStats
	err := r.collection.FindOne(ctx, bson.M{"_id": r.clientID}).Decode(&stored)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return entities.StoredStats{}, nil
		}
		return entities.StoredStats{}, fmt.Errorf("failed to load stats for %s: %w", r.clientID, err)
	}
	return stored, nil
}

// Save implements repositories.StatsRepository
func (r *StatsRepository) Save(ctx context.Context, stats entities.Stats) error {
	update := bson.M{
		"$set": bson.M{
			"totalCalls":        stats.TotalCalls,
			"reviewsCollected":  stats.ReviewsCollected,
			"totalCallDuration": stats.TotalCallDuration,
			"updatedAt":         time.Now(),
		},
	}

	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": r.clientID},
		update,
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to save stats: %w", err)
	}
	return nil
}
