package template

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	out, err := Render("hello #NAME#, you sent #AMOUNT# #TOKEN#", map[string]string{
		"NAME":   "alice",
		"AMOUNT": "30",
		"TOKEN":  "DONUT",
	})
	require.NoError(t, err)
	assert.Equal(t, "hello alice, you sent 30 DONUT", out)
}

func TestRenderUnusedVarsAreFine(t *testing.T) {
	out, err := Render("hi #NAME#", map[string]string{"NAME": "bob", "EXTRA": "x"})
	require.NoError(t, err)
	assert.Equal(t, "hi bob", out)
}

func TestRenderUnresolvedPlaceholderFails(t *testing.T) {
	_, err := Render("hi #NAME#, tx #TX_HASH#", map[string]string{"NAME": "bob"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "#TX_HASH#")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "templates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
deposit_found:
  subject: "Deposit found!"
  body: "Hi #NAME#, we found your deposit of #AMOUNT# #TOKEN#."
lottery_entry:
  subject: "Lottery entry!"
  body: "Hi #NAME#, #AMOUNT# is below the minimum of #MINIMUM#."
settled:
  subject: "Shuttle successful!"
  body: "Hi #NAME#, #AMOUNT# #TOKEN# arrived in tx #SETTLEMENT_TX_HASH#."
lottery_winner:
  subject: "Lottery winner!"
  body: "Congratulations #NAME#, you won #AMOUNT# #TOKEN#! Tx: #SETTLEMENT_TX_HASH#."
`), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Deposit found!", s.DepositFound.Subject)
	assert.Contains(t, s.Settled.Body, "#SETTLEMENT_TX_HASH#")
}

func TestLoadMissingMessageFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "templates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
deposit_found:
  subject: "Deposit found!"
  body: "Hi #NAME#."
`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
