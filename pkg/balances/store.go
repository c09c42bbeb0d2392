// Package balances holds the core of the engine: the daily snapshot store,
// the balance accumulator and the run controller.
package balances

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/OlympusDAO/token-holder-balances/pkg/amount"
	"github.com/OlympusDAO/token-holder-balances/pkg/date"
	"github.com/OlympusDAO/token-holder-balances/pkg/model"
	"github.com/OlympusDAO/token-holder-balances/pkg/storage"
)

// Store persists one balance snapshot per UTC day as a JSONL object. A
// snapshot's presence doubles as the engine's resumption checkpoint: there is
// no separate cursor, the last computed day is whatever day's object exists.
type Store struct {
	store     storage.ObjectStore
	prefix    string
	mirrorCSV bool
	logger    *zap.Logger
}

func NewStore(store storage.ObjectStore, prefix string, mirrorCSV bool, logger *zap.Logger) *Store {
	return &Store{store: store, prefix: prefix, mirrorCSV: mirrorCSV, logger: logger}
}

// Exists reports whether a snapshot has been written for the day.
func (s *Store) Exists(ctx context.Context, day date.Day) (bool, error) {
	ok, err := s.store.Exists(ctx, storage.BalancesKey(s.prefix, day))
	if err != nil {
		return false, fmt.Errorf("probe snapshot for %s: %w", day, err)
	}
	return ok, nil
}

// Load returns the day's snapshot records. A missing snapshot yields an
// empty set, not an error: day one of a position's history has no
// predecessor. Records with unparseable balances fail the load, since a
// corrupt snapshot must never seed the next day's computation.
func (s *Store) Load(ctx context.Context, day date.Day) ([]model.BalanceRecord, error) {
	data, err := s.store.Get(ctx, storage.BalancesKey(s.prefix, day))
	if errors.Is(err, storage.ErrNotExist) {
		return []model.BalanceRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot for %s: %w", day, err)
	}

	records, err := storage.DecodeJSONL[model.BalanceRecord](data)
	if err != nil {
		return nil, fmt.Errorf("snapshot for %s: %w", day, err)
	}
	for _, rec := range records {
		if _, err := amount.Parse(rec.Balance); err != nil {
			return nil, fmt.Errorf("snapshot for %s, record %s: %w", day, rec.Key(), err)
		}
	}
	return records, nil
}

// Save writes the day's snapshot, overwriting any existing object for that
// exact day (last write wins). Records are expected in key order so that a
// re-run over identical inputs produces a byte-identical object.
func (s *Store) Save(ctx context.Context, day date.Day, records []model.BalanceRecord) error {
	encoded, err := storage.EncodeJSONL(records)
	if err != nil {
		return fmt.Errorf("encode snapshot for %s: %w", day, err)
	}
	if err := s.store.Put(ctx, storage.BalancesKey(s.prefix, day), encoded); err != nil {
		return fmt.Errorf("save snapshot for %s: %w", day, err)
	}

	if s.mirrorCSV {
		csvData, err := encodeCSV(records)
		if err != nil {
			return fmt.Errorf("encode csv mirror for %s: %w", day, err)
		}
		if err := s.store.Put(ctx, storage.BalancesCSVKey(s.prefix, day), csvData); err != nil {
			return fmt.Errorf("save csv mirror for %s: %w", day, err)
		}
	}

	s.logger.Info("saved snapshot",
		zap.String("day", day.String()),
		zap.Int("records", len(records)))
	return nil
}

// SnapshotDays lists the days with a persisted snapshot, ascending.
func (s *Store) SnapshotDays(ctx context.Context) ([]date.Day, error) {
	keys, err := s.store.List(ctx, s.prefix+"/")
	if err != nil {
		return nil, fmt.Errorf("list snapshots under %s: %w", s.prefix, err)
	}
	var days []date.Day
	for _, key := range keys {
		if !storage.IsBalancesKey(key) {
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

func encodeCSV(records []model.BalanceRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"date", "holder", "token", "blockchain", "balance"}); err != nil {
		return nil, err
	}
	for _, rec := range records {
		if err := w.Write([]string{rec.Date.String(), rec.Holder, rec.Token, rec.Blockchain, rec.Balance}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
