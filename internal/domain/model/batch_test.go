package model

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func wei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(TokenDecimals), nil))
}

func TestNewBatchGreedyBalanceSelection(t *testing.T) {
	candidates := []Deposit{
		{SourceTxHash: "0xa", SourceAddress: "0x1", RawAmount: wei(20)},
		{SourceTxHash: "0xb", SourceAddress: "0x2", RawAmount: wei(15)},
		{SourceTxHash: "0xc", SourceAddress: "0x3", RawAmount: wei(10)},
	}

	b := NewBatch(candidates, wei(30))

	// remaining after 20 is 10: 15 does not fit and is dropped, 10 still fits
	assert.Equal(t, []string{"0xa", "0xc"}, b.TxHashes())
	assert.Equal(t, wei(30), b.Total)
}

func TestNewBatchStopsWhenEarlierConsumedBalance(t *testing.T) {
	candidates := []Deposit{
		{SourceTxHash: "0xa", SourceAddress: "0x1", RawAmount: wei(20)},
		{SourceTxHash: "0xb", SourceAddress: "0x2", RawAmount: wei(15)},
	}

	b := NewBatch(candidates, wei(30))

	assert.Equal(t, []string{"0xa"}, b.TxHashes())
	assert.Equal(t, wei(20), b.Total)
}

func TestNewBatchEmptyCandidates(t *testing.T) {
	b := NewBatch(nil, wei(100))
	assert.Empty(t, b.Deposits)
	assert.Equal(t, int64(0), b.Total.Int64())
}

func TestBatchParallelArrays(t *testing.T) {
	candidates := []Deposit{
		{SourceTxHash: "0xa", SourceAddress: "0xaaa", RawAmount: wei(40)},
		{SourceTxHash: "0xb", SourceAddress: "0xbbb", RawAmount: wei(50)},
	}

	b := NewBatch(candidates, wei(100))

	assert.Equal(t, []string{"0xaaa", "0xbbb"}, b.Recipients())
	assert.Equal(t, []*big.Int{wei(40), wei(50)}, b.Amounts())
}
