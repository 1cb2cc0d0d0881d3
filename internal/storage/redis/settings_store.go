package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/goodtune/snuskoll/internal/storage"
	"github.com/redis/go-redis/v9"
)

type settingsStore struct {
	client *redis.Client
}

// Load reads the settings document
func (s *settingsStore) Load(ctx context.Context) (*storage.Settings, error) {
	raw, err := s.client.Get(ctx, settingsKey()).Bytes()
	if err == redis.Nil {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var settings storage.Settings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}

	return &settings, nil
}

// Save replaces the settings document
func (s *settingsStore) Save(ctx context.Context, settings storage.Settings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	return s.client.Set(ctx, settingsKey(), raw, 0).Err()
}
