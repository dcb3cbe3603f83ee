package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattg1981/arb-one-migration/internal/pipeline/retry"
)

func TestListTokenTransfers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "account", r.URL.Query().Get("module"))
		assert.Equal(t, "tokentx", r.URL.Query().Get("action"))
		assert.Equal(t, "0xmultisig", r.URL.Query().Get("address"))
		assert.Equal(t, "100", r.URL.Query().Get("startblock"))
		assert.Equal(t, "asc", r.URL.Query().Get("sort"))
		w.Write([]byte(`{"status":"1","message":"OK","result":[
			{"hash":"0xAA","from":"0xF1","to":"0xmultisig","contractAddress":"0xT",
			 "value":"30000000000000000000","blockNumber":"123","timeStamp":"1700000000","confirmations":"150"}
		]}`))
	}))
	defer srv.Close()

	c := NewBlockscoutClient(srv.URL, "key")
	transfers, err := c.ListTokenTransfers(context.Background(), "0xmultisig", 100, 99999999)
	require.NoError(t, err)
	require.Len(t, transfers, 1)

	tr := transfers[0]
	assert.Equal(t, "0xAA", tr.Hash)

	raw, err := tr.RawValue()
	require.NoError(t, err)
	assert.Equal(t, "30000000000000000000", raw.String())

	block, err := tr.Block()
	require.NoError(t, err)
	assert.Equal(t, int64(123), block)

	confs, err := tr.ConfirmationCount()
	require.NoError(t, err)
	assert.Equal(t, int64(150), confs)

	ts, err := tr.Time()
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), ts.Unix())
}

func TestListTokenTransfersNoRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"status":"0","message":"No transactions found","result":[]}`))
	}))
	defer srv.Close()

	c := NewBlockscoutClient(srv.URL, "")
	transfers, err := c.ListTokenTransfers(context.Background(), "0xmultisig", 0, 99999999)
	require.NoError(t, err)
	assert.Empty(t, transfers)
}

func TestListTokenTransfersThrottledEnvelopeIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"status":"0","message":"NOTOK","result":"Max rate limit reached, please use API Key for higher rate limit"}`))
	}))
	defer srv.Close()

	c := NewBlockscoutClient(srv.URL, "")
	transfers, err := c.ListTokenTransfers(context.Background(), "0xmultisig", 0, 99999999)
	require.Error(t, err)
	assert.Empty(t, transfers)
	assert.Contains(t, err.Error(), "Max rate limit reached")
	assert.True(t, retry.Classify(err).IsTransient())
}

func TestReceiptStatusErrorEnvelopeIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"status":"0","message":"NOTOK","result":"Error! Invalid txhash format"}`))
	}))
	defer srv.Close()

	c := NewBlockscoutClient(srv.URL, "")
	_, err := c.ReceiptStatus(context.Background(), "0xwhatever")
	require.Error(t, err)
	assert.True(t, retry.Classify(err).IsTransient())
}

func TestListTokenTransfersServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewBlockscoutClient(srv.URL, "")
	_, err := c.ListTokenTransfers(context.Background(), "0xmultisig", 0, 99999999)
	require.Error(t, err)
	assert.True(t, retry.Classify(err).IsTransient())
}

func TestReceiptStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "gettxreceiptstatus", r.URL.Query().Get("action"))
		if r.URL.Query().Get("txhash") == "0xgood" {
			w.Write([]byte(`{"status":"1","message":"OK","result":{"status":"1"}}`))
			return
		}
		w.Write([]byte(`{"status":"1","message":"OK","result":{"status":"0"}}`))
	}))
	defer srv.Close()

	c := NewBlockscoutClient(srv.URL, "")

	ok, err := c.ReceiptStatus(context.Background(), "0xgood")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.ReceiptStatus(context.Background(), "0xbad")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTokenTransferInvalidFields(t *testing.T) {
	tr := TokenTransfer{Hash: "0xAA", Value: "not-a-number", BlockNumber: "x", TimeStamp: "y", Confirmations: "z"}

	_, err := tr.RawValue()
	assert.Error(t, err)
	_, err = tr.Block()
	assert.Error(t, err)
	_, err = tr.Time()
	assert.Error(t, err)
	_, err = tr.ConfirmationCount()
	assert.Error(t, err)
}
