// Package model defines the records exchanged between the transfer-event
// source, the daily caches and the balance snapshots.
package model

import "github.com/OlympusDAO/token-holder-balances/pkg/date"

// Transaction is a single ownership-transfer event for a tracked token.
// Transactions are sourced externally and never modified: the UTC day a
// transaction belongs to is its partition key, and a day's partition is
// append-only once written upstream.
type Transaction struct {
	ID string `json:"id"`

	// Holder is the hex-encoded holder address.
	Holder string `json:"holder"`

	// Token and Blockchain together address a token contract.
	Token      string `json:"token"`
	Blockchain string `json:"blockchain"`

	// Value is the signed transfer magnitude in canonical decimal form.
	// Credits are positive, debits negative; mints and burns carry no
	// special handling beyond sign.
	Value string `json:"value"`

	// Date is the partition day, distinct from any fine-grained timestamp.
	Date date.Day `json:"date"`

	// Transaction is the opaque on-chain transaction reference, kept for
	// traceability.
	Transaction string `json:"transaction"`
}

// Key returns the identity of the account position the transaction affects.
func (t Transaction) Key() string {
	return t.Holder + "/" + t.Token + "/" + t.Blockchain
}
