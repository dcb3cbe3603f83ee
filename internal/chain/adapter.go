// Package chain abstracts the two RPC endpoints the bot talks to: the source
// chain it reads deposits from, and the destination chain it settles on.
package chain

import (
	"context"
	"math/big"
	"time"
)

// Reader provides read-only access to the source chain.
type Reader interface {
	// Ping verifies connectivity to the RPC endpoint.
	Ping(ctx context.Context) error

	// HeadBlock returns the latest block height.
	HeadBlock(ctx context.Context) (int64, error)

	// TransactionCallData returns the input data of a transaction.
	TransactionCallData(ctx context.Context, txHash string) ([]byte, error)

	// TransactionReceiptStatus reports whether a transaction executed
	// successfully.
	TransactionReceiptStatus(ctx context.Context, txHash string) (bool, error)

	// BlockTime returns the timestamp of a block.
	BlockTime(ctx context.Context, number int64) (time.Time, error)
}

// Settler submits batched payouts on the destination chain from a held
// account.
type Settler interface {
	// TokenBalance returns the settlement account's token balance in the
	// smallest unit.
	TokenBalance(ctx context.Context) (*big.Int, error)

	// GasBalance returns the settlement account's native balance in wei.
	GasBalance(ctx context.Context) (*big.Int, error)

	// Distribute submits one distribute(recipients, amounts, token) call and
	// waits for its receipt. It returns the transaction hash on success and
	// an error when the transaction reverts.
	Distribute(ctx context.Context, recipients []string, amounts []*big.Int) (string, error)
}
