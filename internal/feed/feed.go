// Package feed consumes an explorer's token-transfer API for the watched
// multisig address. The explorer is treated as an unreliable upstream: every
// numeric field arrives as a string and is validated before use.
package feed

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"
)

// TokenTransfer is one raw transfer candidate as reported by the explorer.
type TokenTransfer struct {
	Hash            string `json:"hash"`
	From            string `json:"from"`
	To              string `json:"to"`
	ContractAddress string `json:"contractAddress"`
	Value           string `json:"value"`
	BlockNumber     string `json:"blockNumber"`
	TimeStamp       string `json:"timeStamp"`
	Confirmations   string `json:"confirmations"`
}

// Feed lists token transfers for an address and resolves receipt outcomes.
type Feed interface {
	// ListTokenTransfers returns transfers to/from address within the block
	// range, oldest first.
	ListTokenTransfers(ctx context.Context, address string, fromBlock, toBlock int64) ([]TokenTransfer, error)

	// ReceiptStatus reports whether the transaction executed successfully.
	ReceiptStatus(ctx context.Context, txHash string) (bool, error)
}

// RawValue parses the transfer value as a smallest-unit integer.
func (t TokenTransfer) RawValue() (*big.Int, error) {
	v, ok := new(big.Int).SetString(t.Value, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("transfer %s: invalid value %q", t.Hash, t.Value)
	}
	return v, nil
}

// Block parses the block number.
func (t TokenTransfer) Block() (int64, error) {
	n, err := strconv.ParseInt(t.BlockNumber, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("transfer %s: invalid block number %q", t.Hash, t.BlockNumber)
	}
	return n, nil
}

// Time parses the unix timestamp.
func (t TokenTransfer) Time() (time.Time, error) {
	ts, err := strconv.ParseInt(t.TimeStamp, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("transfer %s: invalid timestamp %q", t.Hash, t.TimeStamp)
	}
	return time.Unix(ts, 0).UTC(), nil
}

// ConfirmationCount parses the confirmation count.
func (t TokenTransfer) ConfirmationCount() (int64, error) {
	n, err := strconv.ParseInt(t.Confirmations, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("transfer %s: invalid confirmations %q", t.Hash, t.Confirmations)
	}
	return n, nil
}
