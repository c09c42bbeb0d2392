package balances

import (
	"fmt"
	"sort"

	"github.com/OlympusDAO/token-holder-balances/pkg/amount"
	"github.com/OlympusDAO/token-holder-balances/pkg/date"
	"github.com/OlympusDAO/token-holder-balances/pkg/model"
)

// Accumulate folds one day's transactions into the previous day's snapshot
// and returns the new snapshot, sorted by record key.
//
// The working map is seeded with every previous record re-stamped to day (the
// date on a record always names the snapshot it belongs to, not the day the
// balance last changed). Each transaction's signed value is then added to its
// key's running balance; an unseen key starts from zero with the
// transaction's token metadata. Addition is commutative, so transaction
// order within the day is irrelevant.
//
// Records that net to exactly zero are trimmed: a zeroed position is simply
// absent from the snapshot, and reappears naturally if a later day makes it
// nonzero again. Negative balances are possible under malformed source data
// and are passed through unchanged so downstream consumers can detect them.
func Accumulate(previous []model.BalanceRecord, transactions []model.Transaction, day date.Day) ([]model.BalanceRecord, error) {
	working := make(map[string]model.BalanceRecord, len(previous))
	for _, rec := range previous {
		rec.Date = day
		working[rec.Key()] = rec
	}

	for _, tx := range transactions {
		key := tx.Key()
		rec, ok := working[key]
		if !ok {
			rec = model.BalanceRecord{
				Holder:     tx.Holder,
				Token:      tx.Token,
				Blockchain: tx.Blockchain,
				Balance:    "0",
				Date:       day,
			}
		}

		balance, err := amount.Parse(rec.Balance)
		if err != nil {
			return nil, fmt.Errorf("balance of %s: %w", key, err)
		}
		value, err := amount.Parse(tx.Value)
		if err != nil {
			return nil, fmt.Errorf("transaction %s: %w", tx.ID, err)
		}

		rec.Balance = balance.Add(value).String()
		working[key] = rec
	}

	snapshot := make([]model.BalanceRecord, 0, len(working))
	for _, rec := range working {
		balance, err := amount.Parse(rec.Balance)
		if err != nil {
			return nil, fmt.Errorf("balance of %s: %w", rec.Key(), err)
		}
		if balance.IsZero() {
			continue
		}
		snapshot = append(snapshot, rec)
	}

	sort.Slice(snapshot, func(i, j int) bool {
		return snapshot[i].Key() < snapshot[j].Key()
	})
	return snapshot, nil
}
