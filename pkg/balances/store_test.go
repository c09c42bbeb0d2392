package balances

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/OlympusDAO/token-holder-balances/pkg/date"
	"github.com/OlympusDAO/token-holder-balances/pkg/model"
	"github.com/OlympusDAO/token-holder-balances/pkg/storage"
)

func testRecords(day date.Day) []model.BalanceRecord {
	return []model.BalanceRecord{
		{Holder: holderTwo, Token: "gOHM", Blockchain: "Ethereum", Balance: "0.2", Date: day},
		{Holder: holderOne, Token: "gOHM", Blockchain: "Ethereum", Balance: "0.1", Date: day},
	}
}

func TestStoreSaveLoadExists(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemStore()
	store := NewStore(mem, "token-holder-balances", false, zap.NewNop())
	day := date.MustParse("2021-11-24")

	exists, err := store.Exists(ctx, day)
	require.NoError(t, err)
	assert.False(t, exists)

	// Absent snapshot loads as an empty set, not an error.
	records, err := store.Load(ctx, day)
	require.NoError(t, err)
	assert.Empty(t, records)

	saved := testRecords(day)
	require.NoError(t, store.Save(ctx, day, saved))

	exists, err = store.Exists(ctx, day)
	require.NoError(t, err)
	assert.True(t, exists)

	loaded, err := store.Load(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, saved, loaded)
}

func TestStoreSaveIsByteIdempotent(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemStore()
	store := NewStore(mem, "token-holder-balances", false, zap.NewNop())
	day := date.MustParse("2021-11-24")

	require.NoError(t, store.Save(ctx, day, testRecords(day)))
	first, err := mem.Get(ctx, storage.BalancesKey("token-holder-balances", day))
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, day, testRecords(day)))
	second, err := mem.Get(ctx, storage.BalancesKey("token-holder-balances", day))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestStoreSaveEmptySnapshot(t *testing.T) {
	ctx := context.Background()
	store := NewStore(storage.NewMemStore(), "token-holder-balances", false, zap.NewNop())
	day := date.MustParse("2021-11-24")

	// An empty snapshot is still a snapshot: its presence marks the day as
	// computed, which is what resumption probes for.
	require.NoError(t, store.Save(ctx, day, []model.BalanceRecord{}))

	exists, err := store.Exists(ctx, day)
	require.NoError(t, err)
	assert.True(t, exists)

	records, err := store.Load(ctx, day)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestStoreLoadRejectsCorruptBalances(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemStore()
	store := NewStore(mem, "token-holder-balances", false, zap.NewNop())
	day := date.MustParse("2021-11-24")

	corrupt := `{"holder":"a","token":"gOHM","blockchain":"Ethereum","balance":"oops","date":"2021-11-24"}` + "\n"
	require.NoError(t, mem.Put(ctx, storage.BalancesKey("token-holder-balances", day), []byte(corrupt)))

	_, err := store.Load(ctx, day)
	require.Error(t, err)
}

func TestStoreCSVMirror(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemStore()
	store := NewStore(mem, "token-holder-balances", true, zap.NewNop())
	day := date.MustParse("2021-11-24")

	require.NoError(t, store.Save(ctx, day, testRecords(day)))

	data, err := mem.Get(ctx, storage.BalancesCSVKey("token-holder-balances", day))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "date,holder,token,blockchain,balance", lines[0])
	assert.Contains(t, lines[1], "2021-11-24")
	assert.Contains(t, lines[1], "0.2")
}

func TestStoreSnapshotDays(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemStore()
	store := NewStore(mem, "token-holder-balances", false, zap.NewNop())

	// A placeholder object under the prefix must not show up as a day.
	require.NoError(t, mem.Put(ctx, "token-holder-balances/dt=2021-01-01/dummy.jsonl", []byte("{}")))

	days, err := store.SnapshotDays(ctx)
	require.NoError(t, err)
	assert.Empty(t, days)

	require.NoError(t, store.Save(ctx, date.MustParse("2021-11-25"), nil))
	require.NoError(t, store.Save(ctx, date.MustParse("2021-11-24"), nil))

	days, err = store.SnapshotDays(ctx)
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.Equal(t, "2021-11-24", days[0].String())
	assert.Equal(t, "2021-11-25", days[1].String())
}
