package model

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisplayAmountFor(t *testing.T) {
	raw, ok := new(big.Int).SetString("30000000000000000000", 10)
	require.True(t, ok)

	assert.Equal(t, "30", DisplayAmountFor(raw).String())
	assert.Equal(t, "0.000000000000000001", DisplayAmountFor(big.NewInt(1)).String())
	assert.Equal(t, "0", DisplayAmountFor(big.NewInt(0)).String())
}

func TestNormalizeHex(t *testing.T) {
	assert.Equal(t, "0xabcdef", NormalizeHex("  0xABCdef "))
	assert.Equal(t, "", NormalizeHex(""))
}

func TestDepositResolvedAndSettled(t *testing.T) {
	d := &Deposit{}
	assert.False(t, d.Resolved())
	assert.False(t, d.Settled())
	assert.Equal(t, "", d.HandleOrEmpty())

	handle := "alice"
	d.Handle = &handle
	assert.True(t, d.Resolved())
	assert.Equal(t, "alice", d.HandleOrEmpty())
}
