// Package filestore persists usage statistics as a JSON document on local disk.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/satriahrh/voicecall/domain/entities"
)

// StatsRepository stores stats in a single JSON file
type StatsRepository struct {
	path   string
	logger *zap.Logger
	mu     sync.Mutex
}

// NewStatsRepository creates a repository writing to path
func NewStatsRepository(path string, logger *zap.Logger) *StatsRepository {
	return &StatsRepository{path: path, logger: logger}
}

// Load implements repositories.StatsRepository. A missing or unreadable file yields empty stats.
func (r *StatsRepository) Load(ctx context.Context) (entities.StoredStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return entities.StoredStats{}, nil
	}
	if err != nil {
		return entities.StoredStats{}, fmt.Errorf("read stats file: %w", err)
	}

	var stored entities.StoredStats
	if err := json.Unmarshal(data, &stored); err != nil {
		r.logger.Warn("Ignoring corrupt stats file", zap.String("path", r.path), zap.Error(err))
		return entities.StoredStats{}, nil
	}
	return stored, nil
}

// Save implements repositories.StatsRepository. The file is replaced atomically.
func (r *StatsRepository) Save(ctx context.Context, stats entities.Stats) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create stats directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".stats-*.json")
	if err != nil {
		return fmt.Errorf("create temp stats file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write stats: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close stats file: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("replace stats file: %w", err)
	}
	return nil
}
