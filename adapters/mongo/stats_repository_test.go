package mongo

import (
	"context"
	"os"
	"testing"

	"go.uber.org/zap"

	"github.com/satriahrh/voicecall/domain/entities"
)

// TestStatsRepository_Integration requires a running MongoDB instance (skipped if MONGODB_URI is not set)
func TestStatsRepository_Integration(t *testing.T) {
	mongoURI := os.Getenv("MONGODB_URI")
	if mongoURI == "" {
		t.Skip("Skipping MongoDB integration test - MONGODB_URI not set")
	}

	ctx := context.Background()
	client, err := NewClient(ctx, mongoURI, "voicecall_test", zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer client.Close(ctx)
	defer client.Database.Drop(ctx)

	repo := NewStatsRepository(client.Database, "test-client")

	t.Run("Load missing document", func(t *testing.T) {
		stored, err := repo.Load(ctx)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if stored.TotalCalls != nil || stored.ReviewsCollected != nil || stored.TotalCallDuration != nil {
			t.Errorf("Expected empty stats, got %+v", stored)
		}
	})

	t.Run("Save and load", func(t *testing.T) {
		want := entities.Stats{TotalCalls: 2, ReviewsCollected: 4, TotalCallDuration: 61000}
		if err := repo.Save(ctx, want); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		stored, err := repo.Load(ctx)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if got := (entities.Stats{}).Merge(stored); got != want {
			t.Errorf("Expected %+v, got %+v", want, got)
		}
	})

	t.Run("Save overwrites", func(t *testing.T) {
		want := entities.Stats{TotalCalls: 3, ReviewsCollected: 4, TotalCallDuration: 90000}
		if err := repo.Save(ctx, want); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		count, err := client.Database.Collection(statsCollection).CountDocuments(ctx, map[string]string{})
		if err != nil {
			t.Fatalf("CountDocuments failed: %v", err)
		}
		if count != 1 {
			t.Errorf("Expected a single stats document, got %d", count)
		}
	})
}
