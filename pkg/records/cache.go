// Package records maintains the daily transaction cache: one immutable
// records.jsonl object per UTC day under the records prefix. The cache is the
// engine's read path for a day's transfer events; the remote source is only
// hit for days that have not been cached yet.
package records

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/OlympusDAO/token-holder-balances/pkg/date"
	"github.com/OlympusDAO/token-holder-balances/pkg/model"
	"github.com/OlympusDAO/token-holder-balances/pkg/storage"
)

// Source yields every transaction belonging to a UTC day.
type Source interface {
	FetchDay(ctx context.Context, day date.Day) ([]model.Transaction, error)
}

// Cache is a read-through cache of daily transaction sets.
type Cache struct {
	store  storage.ObjectStore
	prefix string
	source Source
	logger *zap.Logger
}

func NewCache(store storage.ObjectStore, prefix string, source Source, logger *zap.Logger) *Cache {
	return &Cache{store: store, prefix: prefix, source: source, logger: logger}
}

// FetchDay returns the day's transactions, loading from the cache when the
// day has already been persisted and pulling from the source otherwise.
// Historical partitions are append-only upstream, so a cached day is never
// refreshed here; retroactive corrections arrive as resume hints, whose read
// path is RefreshDay.
func (c *Cache) FetchDay(ctx context.Context, day date.Day) ([]model.Transaction, error) {
	key := storage.RecordsKey(c.prefix, day)

	data, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		transactions, decodeErr := storage.DecodeJSONL[model.Transaction](data)
		if decodeErr != nil {
			return nil, fmt.Errorf("cached records for %s: %w", day, decodeErr)
		}
		return transactions, nil
	case !isNotExist(err):
		return nil, fmt.Errorf("read records for %s: %w", day, err)
	}

	return c.fetchAndPersist(ctx, day, key)
}

// RefreshDay bypasses the cache: the day is pulled from the source again and
// the cached object overwritten. This is the read path for hinted
// recomputation, where upstream has amended an already-cached partition.
func (c *Cache) RefreshDay(ctx context.Context, day date.Day) ([]model.Transaction, error) {
	return c.fetchAndPersist(ctx, day, storage.RecordsKey(c.prefix, day))
}

func (c *Cache) fetchAndPersist(ctx context.Context, day date.Day, key string) ([]model.Transaction, error) {
	transactions, err := c.source.FetchDay(ctx, day)
	if err != nil {
		return nil, err
	}

	encoded, err := storage.EncodeJSONL(transactions)
	if err != nil {
		return nil, fmt.Errorf("encode records for %s: %w", day, err)
	}
	if err := c.store.Put(ctx, key, encoded); err != nil {
		return nil, fmt.Errorf("write records for %s: %w", day, err)
	}
	c.logger.Info("cached transactions for day",
		zap.String("day", day.String()),
		zap.Int("transactions", len(transactions)))
	return transactions, nil
}

// CachedDays lists the days with a cached transaction set, ascending.
// Placeholder objects under the prefix are ignored.
func (c *Cache) CachedDays(ctx context.Context) ([]date.Day, error) {
	keys, err := c.store.List(ctx, c.prefix+"/")
	if err != nil {
		return nil, fmt.Errorf("list records under %s: %w", c.prefix, err)
	}
	var days []date.Day
	for _, key := range keys {
		if !storage.IsRecordsKey(key) {
			continue
		}
		day, err := date.ExtractPartitionDay(key)
		if err != nil {
			return nil, err
		}
		days = append(days, day)
	}
	return days, nil
}

// LatestCachedDay returns the newest cached day; ok is false when the cache
// is empty.
func (c *Cache) LatestCachedDay(ctx context.Context) (day date.Day, ok bool, err error) {
	days, err := c.CachedDays(ctx)
	if err != nil || len(days) == 0 {
		return date.Day{}, false, err
	}
	return days[len(days)-1], true, nil
}

func isNotExist(err error) bool {
	return errors.Is(err, storage.ErrNotExist)
}
