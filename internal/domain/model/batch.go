package model

import (
	"math/big"

	"github.com/google/uuid"
)

// Batch is the ordered set of deposits selected for one settlement
// transaction. It exists only within a single scheduler pass and is never
// persisted; the ledger rows are the durable record.
type Batch struct {
	ID       uuid.UUID
	Deposits []Deposit
	Total    *big.Int
}

// NewBatch selects deposits greedily in the given order, dropping any deposit
// whose raw amount exceeds the balance remaining after earlier selections.
// The running balance mirrors exactly how the settlement account is drained
// as the batch executes, so a later deposit can be dropped purely because
// earlier ones already consumed the balance.
func NewBatch(candidates []Deposit, available *big.Int) Batch {
	b := Batch{
		ID:    uuid.New(),
		Total: new(big.Int),
	}
	remaining := new(big.Int).Set(available)
	for _, c := range candidates {
		if remaining.Cmp(c.RawAmount) < 0 {
			continue
		}
		remaining.Sub(remaining, c.RawAmount)
		b.Total.Add(b.Total, c.RawAmount)
		b.Deposits = append(b.Deposits, c)
	}
	return b
}

// Recipients returns the destination addresses in batch order.
func (b Batch) Recipients() []string {
	out := make([]string, len(b.Deposits))
	for i, d := range b.Deposits {
		out[i] = d.SourceAddress
	}
	return out
}

// Amounts returns the raw amounts in batch order, parallel to Recipients.
func (b Batch) Amounts() []*big.Int {
	out := make([]*big.Int, len(b.Deposits))
	for i, d := range b.Deposits {
		out[i] = d.RawAmount
	}
	return out
}

// TxHashes returns the source transaction hashes in batch order.
func (b Batch) TxHashes() []string {
	out := make([]string, len(b.Deposits))
	for i, d := range b.Deposits {
		out[i] = d.SourceTxHash
	}
	return out
}
