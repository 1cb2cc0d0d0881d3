package bolt

import (
	"context"

	"github.com/goodtune/snuskoll/internal/storage"
	"go.etcd.io/bbolt"
)

type settingsStore struct {
	db *bbolt.DB
}

func (s *settingsStore) Load(ctx context.Context) (*storage.Settings, error) {
	return getBucketValue[storage.Settings](ctx, s.db, bucketSettings, settingsKey)
}

func (s *settingsStore) Save(ctx context.Context, settings storage.Settings) error {
	return putBucketValue(ctx, s.db, bucketSettings, settingsKey, settings)
}
