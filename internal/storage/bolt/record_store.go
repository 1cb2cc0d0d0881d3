package bolt

import (
	"context"
	"fmt"

	"github.com/goodtune/snuskoll/internal/storage"
	"go.etcd.io/bbolt"
)

type recordStore struct {
	db *bbolt.DB
}

func (s *recordStore) Get(ctx context.Context, date string) (*storage.DailyRecord, error) {
	return getBucketValue[storage.DailyRecord](ctx, s.db, bucketDailyRecords, date)
}

// Set writes the day and its week bucket entry in one transaction.
func (s *recordStore) Set(ctx context.Context, date string, record storage.DailyRecord) error {
	week, err := storage.WeekKeyOf(date)
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", date, err)
	}

	record.Date = date
	dayData, err := marshal(record)
	if err != nil {
		return err
	}
	entryData, err := marshal(record.Entry())
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		days := tx.Bucket([]byte(bucketDailyRecords))
		if days == nil {
			return fmt.Errorf("daily records bucket missing")
		}
		if err := days.Put([]byte(date), dayData); err != nil {
			return err
		}

		weeks := tx.Bucket([]byte(bucketWeekBuckets))
		if weeks == nil {
			return fmt.Errorf("week buckets bucket missing")
		}
		bucket, err := weeks.CreateBucketIfNotExists([]byte(week))
		if err != nil {
			return fmt.Errorf("create week bucket %s: %w", week, err)
		}
		return bucket.Put([]byte(date), entryData)
	})
}

func (s *recordStore) GetWeekBucket(ctx context.Context, week string) (storage.WeekBucket, error) {
	var result storage.WeekBucket
	err := s.db.View(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		weeks := tx.Bucket([]byte(bucketWeekBuckets))
		if weeks == nil {
			return storage.ErrNotFound
		}
		bucket := weeks.Bucket([]byte(week))
		if bucket == nil {
			return storage.ErrNotFound
		}

		result = make(storage.WeekBucket)
		return bucket.ForEach(func(k, v []byte) error {
			var entry storage.WeekEntry
			if err := unmarshal(v, &entry); err != nil {
				return err
			}
			result[string(k)] = entry
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, storage.ErrNotFound
	}
	return result, nil
}

// ListWeekKeys returns the names of the nested week buckets, already sorted
// by bbolt's byte ordering.
func (s *recordStore) ListWeekKeys(ctx context.Context) ([]string, error) {
	keys := make([]string, 0)
	return keys, s.db.View(func(tx *bbolt.Tx) error {
		weeks := tx.Bucket([]byte(bucketWeekBuckets))
		if weeks == nil {
			return nil
		}
		c := weeks.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if v == nil { // nested bucket
				keys = append(keys, string(k))
			}
		}
		return nil
	})
}

func (s *recordStore) List(ctx context.Context) ([]storage.DailyRecord, error) {
	return listBucket[storage.DailyRecord](ctx, s.db, bucketDailyRecords)
}

func (s *recordStore) Clear(ctx context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		for _, name := range []string{bucketDailyRecords, bucketWeekBuckets} {
			if err := tx.DeleteBucket([]byte(name)); err != nil && err != bbolt.ErrBucketNotFound {
				return fmt.Errorf("delete bucket %s: %w", name, err)
			}
			if _, err := tx.CreateBucket([]byte(name)); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}
