// Package directory resolves depositor addresses to user handles through an
// externally published address book.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mattg1981/arb-one-migration/internal/domain/model"
	"github.com/mattg1981/arb-one-migration/internal/pipeline/retry"
)

// Entry maps one address to one handle.
type Entry struct {
	Address string `json:"address"`
	Handle  string `json:"username"`
}

// Directory lists every known address→handle mapping.
type Directory interface {
	ListKnownAddresses(ctx context.Context) ([]Entry, error)
}

// Index builds a case-insensitive lookup from entries. Duplicate addresses
// keep the first handle seen, so resolution is deterministic for a stable
// entry order.
func Index(entries []Entry) map[string]string {
	idx := make(map[string]string, len(entries))
	for _, e := range entries {
		addr := model.NormalizeHex(e.Address)
		handle := strings.TrimSpace(e.Handle)
		if addr == "" || handle == "" {
			continue
		}
		if _, ok := idx[addr]; ok {
			continue
		}
		idx[addr] = handle
	}
	return idx
}

// HTTPDirectory fetches a JSON address book from a fixed URL.
type HTTPDirectory struct {
	url    string
	client *http.Client
}

func NewHTTPDirectory(url string) *HTTPDirectory {
	return &HTTPDirectory{
		url:    url,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (d *HTTPDirectory) ListKnownAddresses(ctx context.Context) ([]Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch directory: create request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch directory: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &retry.StatusError{Op: "fetch directory", Status: resp.StatusCode}
	}

	var entries []Entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("fetch directory: decode: %w", err)
	}
	return entries, nil
}
