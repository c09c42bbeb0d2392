package model

import "github.com/OlympusDAO/token-holder-balances/pkg/date"

// BalanceRecord is the end-of-day position of one (holder, token, blockchain)
// triple. A snapshot is the complete set of nonzero records for one UTC day;
// zero-balance records are trimmed before persistence.
type BalanceRecord struct {
	Holder     string `json:"holder"`
	Token      string `json:"token"`
	Blockchain string `json:"blockchain"`

	// Balance is the canonical decimal balance as of end of Date.
	Balance string `json:"balance"`

	// Date duplicates the owning snapshot's day on every record for the
	// benefit of downstream consumers querying the flattened table.
	Date date.Day `json:"date"`
}

// Key returns the unique identity of the account position.
func (r BalanceRecord) Key() string {
	return r.Holder + "/" + r.Token + "/" + r.Blockchain
}
