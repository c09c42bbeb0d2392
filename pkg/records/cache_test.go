package records_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/OlympusDAO/token-holder-balances/pkg/date"
	"github.com/OlympusDAO/token-holder-balances/pkg/model"
	"github.com/OlympusDAO/token-holder-balances/pkg/records"
	"github.com/OlympusDAO/token-holder-balances/pkg/storage"
)

const recordsPrefix = "token-holder-transactions"

type countingSource struct {
	calls        map[string]int
	transactions map[string][]model.Transaction
	err          error
}

func newCountingSource() *countingSource {
	return &countingSource{
		calls:        map[string]int{},
		transactions: map[string][]model.Transaction{},
	}
}

func (s *countingSource) FetchDay(_ context.Context, day date.Day) ([]model.Transaction, error) {
	s.calls[day.String()]++
	if s.err != nil {
		return nil, s.err
	}
	return s.transactions[day.String()], nil
}

func sampleTransaction(id string, day date.Day) model.Transaction {
	return model.Transaction{
		ID:          id,
		Holder:      "0xf9704b03e94b8c19cfd8a8803d81c95e814d2a44",
		Token:       "gOHM",
		Blockchain:  "Ethereum",
		Value:       "0.1",
		Date:        day,
		Transaction: "0xabc",
	}
}

func TestFetchDayReadThrough(t *testing.T) {
	ctx := context.Background()
	day := date.MustParse("2021-11-24")

	source := newCountingSource()
	source.transactions[day.String()] = []model.Transaction{sampleTransaction("a", day)}

	cache := records.NewCache(storage.NewMemStore(), recordsPrefix, source, zap.NewNop())

	first, err := cache.FetchDay(ctx, day)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Second fetch is served from the cache, the source is not consulted.
	second, err := cache.FetchDay(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, source.calls[day.String()])
}

func TestFetchDayEmptyDayIsCached(t *testing.T) {
	ctx := context.Background()
	day := date.MustParse("2021-11-24")

	source := newCountingSource()
	cache := records.NewCache(storage.NewMemStore(), recordsPrefix, source, zap.NewNop())

	transactions, err := cache.FetchDay(ctx, day)
	require.NoError(t, err)
	assert.Empty(t, transactions)

	// Quiet days produce an empty object so they are not refetched.
	_, err = cache.FetchDay(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 1, source.calls[day.String()])
}

func TestFetchDaySourceErrorNotCached(t *testing.T) {
	ctx := context.Background()
	day := date.MustParse("2021-11-24")

	source := newCountingSource()
	source.err = errors.New("source down")

	store := storage.NewMemStore()
	cache := records.NewCache(store, recordsPrefix, source, zap.NewNop())

	_, err := cache.FetchDay(ctx, day)
	require.Error(t, err)

	exists, err := store.Exists(ctx, storage.RecordsKey(recordsPrefix, day))
	require.NoError(t, err)
	assert.False(t, exists)

	// Once the source recovers, the day is fetched for real.
	source.err = nil
	source.transactions[day.String()] = []model.Transaction{sampleTransaction("a", day)}
	transactions, err := cache.FetchDay(ctx, day)
	require.NoError(t, err)
	assert.Len(t, transactions, 1)
	assert.Equal(t, 2, source.calls[day.String()])
}

func TestRefreshDayReplacesCachedPartition(t *testing.T) {
	ctx := context.Background()
	day := date.MustParse("2021-11-24")

	source := newCountingSource()
	source.transactions[day.String()] = []model.Transaction{sampleTransaction("a", day)}

	cache := records.NewCache(storage.NewMemStore(), recordsPrefix, source, zap.NewNop())

	_, err := cache.FetchDay(ctx, day)
	require.NoError(t, err)

	// Upstream amends the partition after it was cached.
	amended := sampleTransaction("a", day)
	amended.Value = "0.5"
	source.transactions[day.String()] = []model.Transaction{amended}

	refreshed, err := cache.RefreshDay(ctx, day)
	require.NoError(t, err)
	require.Len(t, refreshed, 1)
	assert.Equal(t, "0.5", refreshed[0].Value)
	assert.Equal(t, 2, source.calls[day.String()])

	// The overwrite persists: subsequent cached reads see the amended data.
	cached, err := cache.FetchDay(ctx, day)
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, "0.5", cached[0].Value)
	assert.Equal(t, 2, source.calls[day.String()])
}

func TestFetchDayCorruptCacheFails(t *testing.T) {
	ctx := context.Background()
	day := date.MustParse("2021-11-24")

	store := storage.NewMemStore()
	require.NoError(t, store.Put(ctx, storage.RecordsKey(recordsPrefix, day), []byte("{not json\n")))

	cache := records.NewCache(store, recordsPrefix, newCountingSource(), zap.NewNop())
	_, err := cache.FetchDay(ctx, day)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cached records")
}

func TestCachedDays(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()

	for _, day := range []string{"2021-11-26", "2021-11-24", "2021-11-25"} {
		key := storage.RecordsKey(recordsPrefix, date.MustParse(day))
		require.NoError(t, store.Put(ctx, key, []byte("")))
	}
	// Placeholder objects under the prefix are ignored.
	require.NoError(t, store.Put(ctx, recordsPrefix+"/dt=2021-11-27/dummy.jsonl", []byte("")))

	cache := records.NewCache(store, recordsPrefix, newCountingSource(), zap.NewNop())

	days, err := cache.CachedDays(ctx)
	require.NoError(t, err)
	require.Len(t, days, 3)
	assert.Equal(t, "2021-11-24", days[0].String())
	assert.Equal(t, "2021-11-26", days[2].String())

	latest, ok, err := cache.LatestCachedDay(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2021-11-26", latest.String())
}

func TestLatestCachedDayEmpty(t *testing.T) {
	cache := records.NewCache(storage.NewMemStore(), recordsPrefix, newCountingSource(), zap.NewNop())
	_, ok, err := cache.LatestCachedDay(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}
