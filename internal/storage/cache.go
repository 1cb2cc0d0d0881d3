package storage

import (
	"context"
	"errors"
	"maps"
	"sync"
	"time"

	"github.com/goodtune/snuskoll/internal/clock"
	"github.com/goodtune/snuskoll/internal/metrics"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedRecords is a read-through cache in front of a RecordStore.
//
// Only days before today and weeks that ended before today are cached:
// those are the ranges that stop changing once the day is over. Today's
// record and the current week always go to the backing store. Writes made
// through the cache invalidate the affected day and week once the backing
// write has landed. Writers in other processes bypass the cache entirely, so
// it is only safe for backends owned by a single process.
type CachedRecords struct {
	inner RecordStore
	clock clock.Clock
	days  *expirable.LRU[string, *DailyRecord]
	weeks *expirable.LRU[string, WeekBucket]

	// fill is held while a miss reads the backing store and populates the
	// cache, and while a write lands and invalidates.
	fill sync.Mutex
}

// NewCachedRecords wraps inner with an LRU of the given size and TTL.
func NewCachedRecords(inner RecordStore, clk clock.Clock, size int, ttl time.Duration) *CachedRecords {
	if size <= 0 {
		size = 1024
	}
	return &CachedRecords{
		inner: inner,
		clock: clk,
		days:  expirable.NewLRU[string, *DailyRecord](size, nil, ttl),
		weeks: expirable.NewLRU[string, WeekBucket](size/7+1, nil, ttl),
	}
}

// Get returns the record for date, serving settled days from the cache.
func (c *CachedRecords) Get(ctx context.Context, date string) (*DailyRecord, error) {
	if !c.settledDay(date) {
		return c.inner.Get(ctx, date)
	}

	if rec, ok := c.days.Get(date); ok {
		metrics.RecordCacheRequests.WithLabelValues("hit").Inc()
		if rec == nil {
			return nil, ErrNotFound
		}
		out := *rec
		return &out, nil
	}
	metrics.RecordCacheRequests.WithLabelValues("miss").Inc()

	c.fill.Lock()
	defer c.fill.Unlock()
	rec, err := c.inner.Get(ctx, date)
	switch {
	case errors.Is(err, ErrNotFound):
		c.days.Add(date, nil)
		return nil, err
	case err != nil:
		return nil, err
	}

	stored := *rec
	c.days.Add(date, &stored)
	return rec, nil
}

// Set writes through, then drops the cached day and week.
func (c *CachedRecords) Set(ctx context.Context, date string, record DailyRecord) error {
	c.fill.Lock()
	defer c.fill.Unlock()

	err := c.inner.Set(ctx, date, record)
	c.days.Remove(date)
	if weekKey, werr := WeekKeyOf(date); werr == nil {
		c.weeks.Remove(weekKey)
	}
	return err
}

// GetWeekBucket returns the bucket for weekKey, serving closed weeks from the cache.
func (c *CachedRecords) GetWeekBucket(ctx context.Context, weekKey string) (WeekBucket, error) {
	if !c.settledWeek(weekKey) {
		return c.inner.GetWeekBucket(ctx, weekKey)
	}

	if bucket, ok := c.weeks.Get(weekKey); ok {
		metrics.RecordCacheRequests.WithLabelValues("hit").Inc()
		if bucket == nil {
			return nil, ErrNotFound
		}
		return maps.Clone(bucket), nil
	}
	metrics.RecordCacheRequests.WithLabelValues("miss").Inc()

	c.fill.Lock()
	defer c.fill.Unlock()
	bucket, err := c.inner.GetWeekBucket(ctx, weekKey)
	switch {
	case errors.Is(err, ErrNotFound):
		c.weeks.Add(weekKey, nil)
		return nil, err
	case err != nil:
		return nil, err
	}

	c.weeks.Add(weekKey, maps.Clone(bucket))
	return bucket, nil
}

// ListWeekKeys is never cached; new weeks appear whenever a record is written.
func (c *CachedRecords) ListWeekKeys(ctx context.Context) ([]string, error) {
	return c.inner.ListWeekKeys(ctx)
}

// List passes through to the backing store.
func (c *CachedRecords) List(ctx context.Context) ([]DailyRecord, error) {
	return c.inner.List(ctx)
}

// Clear empties the backing store and the cache.
func (c *CachedRecords) Clear(ctx context.Context) error {
	c.fill.Lock()
	defer c.fill.Unlock()

	err := c.inner.Clear(ctx)
	c.days.Purge()
	c.weeks.Purge()
	return err
}

func (c *CachedRecords) settledDay(date string) bool {
	return date < DateKey(c.clock.Now())
}

func (c *CachedRecords) settledWeek(weekKey string) bool {
	start, err := ParseDate(weekKey)
	if err != nil {
		return false
	}
	return DateKey(start.AddDate(0, 0, 7)) <= DateKey(c.clock.Now())
}

type cachedStore struct {
	Store
	records *CachedRecords
}

func (s *cachedStore) Records() RecordStore { return s.records }

// WithCache returns store with its RecordStore wrapped in a CachedRecords.
func WithCache(store Store, clk clock.Clock, size int, ttl time.Duration) Store {
	return &cachedStore{
		Store:   store,
		records: NewCachedRecords(store.Records(), clk, size, ttl),
	}
}
