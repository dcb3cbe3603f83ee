package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mattg1981/arb-one-migration/internal/pipeline/retry"
)

// BlockscoutClient speaks the etherscan-compatible account/transaction API
// exposed by blockscout-style explorers.
type BlockscoutClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewBlockscoutClient(baseURL, apiKey string) *BlockscoutClient {
	return &BlockscoutClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

func (c *BlockscoutClient) ListTokenTransfers(ctx context.Context, address string, fromBlock, toBlock int64) ([]TokenTransfer, error) {
	q := url.Values{}
	q.Set("module", "account")
	q.Set("action", "tokentx")
	q.Set("address", address)
	q.Set("startblock", strconv.FormatInt(fromBlock, 10))
	q.Set("endblock", strconv.FormatInt(toBlock, 10))
	q.Set("sort", "asc")
	if c.apiKey != "" {
		q.Set("apikey", c.apiKey)
	}

	env, err := c.get(ctx, "list token transfers", q)
	if err != nil {
		return nil, err
	}

	// The API reports "no records found" with status 0 and HTTP 200, but it
	// reports throttling and faults the same way, with a string result.
	// Only an empty record set may succeed emptily; an error envelope must
	// surface as retryable so the caller never treats a skipped range as
	// scanned.
	if env.Status != "1" {
		if env.Message == "No transactions found" {
			return nil, nil
		}
		var transfers []TokenTransfer
		if err := json.Unmarshal(env.Result, &transfers); err == nil {
			return transfers, nil
		}
		var detail string
		_ = json.Unmarshal(env.Result, &detail)
		return nil, retry.Transient(fmt.Errorf("list token transfers: explorer error: %s: %s", env.Message, detail))
	}

	var transfers []TokenTransfer
	if err := json.Unmarshal(env.Result, &transfers); err != nil {
		return nil, fmt.Errorf("list token transfers: decode result: %w", err)
	}
	return transfers, nil
}

func (c *BlockscoutClient) ReceiptStatus(ctx context.Context, txHash string) (bool, error) {
	q := url.Values{}
	q.Set("module", "transaction")
	q.Set("action", "gettxreceiptstatus")
	q.Set("txhash", txHash)
	if c.apiKey != "" {
		q.Set("apikey", c.apiKey)
	}

	env, err := c.get(ctx, "receipt status", q)
	if err != nil {
		return false, err
	}
	if env.Status != "1" {
		var detail string
		_ = json.Unmarshal(env.Result, &detail)
		return false, retry.Transient(fmt.Errorf("receipt status: explorer error: %s: %s", env.Message, detail))
	}

	var result struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(env.Result, &result); err != nil {
		return false, fmt.Errorf("receipt status: decode result: %w", err)
	}
	return result.Status == "1", nil
}

func (c *BlockscoutClient) get(ctx context.Context, op string, q url.Values) (*envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", op, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &retry.StatusError{Op: op, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", op, err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%s: decode envelope: %w", op, err)
	}
	return &env, nil
}
