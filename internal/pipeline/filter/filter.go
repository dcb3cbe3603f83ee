// Package filter decides which raw token transfers qualify as deposits.
package filter

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/mattg1981/arb-one-migration/internal/chain"
	"github.com/mattg1981/arb-one-migration/internal/domain/model"
	"github.com/mattg1981/arb-one-migration/internal/feed"
)

// transferSelector is the 4-byte selector of ERC-20 transfer(address,uint256).
const transferSelector = "a9059cbb"

// Verdict classifies a rejection as retryable or final.
type Verdict int

const (
	// Accept means the transfer qualifies as a deposit.
	Accept Verdict = iota

	// RejectPermanent means the transfer can never qualify and must not be
	// revisited.
	RejectPermanent

	// RejectRetry means the transfer does not qualify yet but may on a later
	// pass, so the scan cursor must not advance past it.
	RejectRetry
)

// Outcome is the filter's decision for one transfer.
type Outcome struct {
	Verdict Verdict
	Reason  string
}

func permanent(reason string) Outcome { return Outcome{Verdict: RejectPermanent, Reason: reason} }
func retry(reason string) Outcome     { return Outcome{Verdict: RejectRetry, Reason: reason} }

// Rules holds the static screening configuration.
type Rules struct {
	// AllowedTokens maps lowercase token contract addresses to their symbol.
	AllowedTokens map[string]string

	// IgnoredSenders is a lowercase set of addresses whose transfers are
	// never deposits, such as the collection address itself or known
	// exchange hot wallets.
	IgnoredSenders map[string]struct{}

	// CollectionAddress is the lowercase multisig address deposits must be
	// sent to.
	CollectionAddress string

	// MinConfirmations is the depth a transfer must reach before it is
	// trusted.
	MinConfirmations int64
}

// NewRules normalizes the configured address lists.
func NewRules(allowedTokens map[string]string, ignoredSenders []string, collectionAddress string, minConfirmations int64) Rules {
	tokens := make(map[string]string, len(allowedTokens))
	for addr, symbol := range allowedTokens {
		tokens[model.NormalizeHex(addr)] = symbol
	}
	senders := make(map[string]struct{}, len(ignoredSenders))
	for _, addr := range ignoredSenders {
		senders[model.NormalizeHex(addr)] = struct{}{}
	}
	return Rules{
		AllowedTokens:     tokens,
		IgnoredSenders:    senders,
		CollectionAddress: model.NormalizeHex(collectionAddress),
		MinConfirmations:  minConfirmations,
	}
}

// Screen applies the checks that need no chain access: token contract,
// sender, recipient, and confirmation depth.
func (r Rules) Screen(t feed.TokenTransfer) Outcome {
	if _, ok := r.AllowedTokens[model.NormalizeHex(t.ContractAddress)]; !ok {
		return permanent("token_not_allowed")
	}
	if _, ok := r.IgnoredSenders[model.NormalizeHex(t.From)]; ok {
		return permanent("ignored_sender")
	}
	if model.NormalizeHex(t.To) != r.CollectionAddress {
		return permanent("wrong_recipient")
	}

	confs, err := t.ConfirmationCount()
	if err != nil {
		return permanent("unparseable_confirmations")
	}
	if confs < r.MinConfirmations {
		return retry("unconfirmed")
	}
	return Outcome{Verdict: Accept}
}

// Verify applies the checks that need the source chain: the transaction must
// be a direct ERC-20 transfer call and must have executed successfully.
// Internal transfers from contract interactions share the token/recipient
// shape of a deposit but are not one.
func Verify(ctx context.Context, reader chain.Reader, t feed.TokenTransfer) (Outcome, error) {
	callData, err := reader.TransactionCallData(ctx, t.Hash)
	if err != nil {
		return Outcome{}, fmt.Errorf("fetch call data: %w", err)
	}
	if !hasTransferSelector(callData) {
		return permanent("not_direct_transfer"), nil
	}

	ok, err := reader.TransactionReceiptStatus(ctx, t.Hash)
	if err != nil {
		return Outcome{}, fmt.Errorf("fetch receipt status: %w", err)
	}
	if !ok {
		return permanent("execution_failed"), nil
	}
	return Outcome{Verdict: Accept}, nil
}

func hasTransferSelector(callData []byte) bool {
	if len(callData) < 4 {
		return false
	}
	return strings.EqualFold(hex.EncodeToString(callData[:4]), transferSelector)
}
