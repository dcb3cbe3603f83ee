package model

import (
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TokenDecimals is the unit scale of the bridged ERC-20 token.
const TokenDecimals = 18

// Deposit is one qualifying incoming token transfer observed on the source
// chain. The ledger is append/update-only; rows are never deleted, so the
// table doubles as an audit trail.
type Deposit struct {
	ID               int64           `db:"id"`
	SourceTxHash     string          `db:"source_tx_hash"` // lowercase, natural key
	SourceAddress    string          `db:"source_address"` // lowercase
	Handle           *string         `db:"handle"`
	RawAmount        *big.Int        `db:"raw_amount"` // NUMERIC(78,0), smallest unit
	DisplayAmount    decimal.Decimal `db:"display_amount"`
	SourceBlock      int64           `db:"source_block"`
	SourceTime       time.Time       `db:"source_time"`
	DiscoveredAt     time.Time       `db:"discovered_at"`
	SettlementTxHash *string         `db:"settlement_tx_hash"`
	SettledAt        *time.Time      `db:"settled_at"`
	AcknowledgedAt   *time.Time      `db:"acknowledged_at"`
	NotifiedAt       *time.Time      `db:"notified_at"`
}

// DisplayAmountFor derives the display value from a raw smallest-unit amount.
// It is the only conversion between the two representations.
func DisplayAmountFor(raw *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(raw, -TokenDecimals)
}

// NormalizeHex lowercases a hash or address so comparisons and lookups are
// case-insensitive everywhere.
func NormalizeHex(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (d *Deposit) Settled() bool {
	return d.SettledAt != nil
}

func (d *Deposit) Resolved() bool {
	return d.Handle != nil && *d.Handle != ""
}

// HandleOrEmpty returns the resolved handle, or "" when unresolved.
func (d *Deposit) HandleOrEmpty() string {
	if d.Handle == nil {
		return ""
	}
	return *d.Handle
}

// LotteryEntrant is a distinct below-threshold depositor eligible for the
// lottery draw.
type LotteryEntrant struct {
	Handle  string `db:"handle"`
	Address string `db:"source_address"`
}
