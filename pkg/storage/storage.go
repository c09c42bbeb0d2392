// Package storage defines the object-store boundary used for the daily
// transaction caches and balance snapshots, plus the key layout shared by
// both. The production bucket lives behind the ObjectStore interface; the
// repo ships a filesystem-backed store and an in-memory store.
package storage

import (
	"context"
	"errors"

	"github.com/OlympusDAO/token-holder-balances/pkg/date"
)

// ErrNotExist is returned by Get when no object exists at the key.
var ErrNotExist = errors.New("object does not exist")

// ObjectStore is the minimal bucket surface the engine needs. Keys use
// forward slashes regardless of implementation.
//
// Put is all-or-nothing at the object granularity: a failed Put must not
// leave a partial object visible to a later Get or Exists.
type ObjectStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Exists(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

const (
	recordsArtifact     = "records.jsonl"
	balancesArtifact    = "balances.jsonl"
	balancesCSVArtifact = "balances.csv"
)

// RecordsKey returns the object key of a day's cached transactions,
// e.g. "token-holder-transactions/dt=2021-11-24/records.jsonl".
func RecordsKey(prefix string, day date.Day) string {
	return prefix + "/" + day.PartitionKey() + "/" + recordsArtifact
}

// BalancesKey returns the object key of a day's balance snapshot.
func BalancesKey(prefix string, day date.Day) string {
	return prefix + "/" + day.PartitionKey() + "/" + balancesArtifact
}

// BalancesCSVKey returns the object key of the optional CSV mirror of a
// day's balance snapshot.
func BalancesCSVKey(prefix string, day date.Day) string {
	return prefix + "/" + day.PartitionKey() + "/" + balancesCSVArtifact
}

// IsRecordsKey reports whether the object key names a daily transaction
// cache artifact. Used to skip placeholder objects during discovery.
func IsRecordsKey(key string) bool {
	return hasArtifact(key, recordsArtifact)
}

// IsBalancesKey reports whether the object key names a snapshot artifact.
func IsBalancesKey(key string) bool {
	return hasArtifact(key, balancesArtifact)
}

func hasArtifact(key, artifact string) bool {
	n := len(key) - len(artifact)
	return n > 0 && key[n:] == artifact && key[n-1] == '/'
}
