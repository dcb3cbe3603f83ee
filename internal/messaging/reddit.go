package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mattg1981/arb-one-migration/internal/pipeline/retry"
)

const (
	redditTokenURL   = "https://www.reddit.com/api/v1/access_token"
	redditComposeURL = "https://oauth.reddit.com/api/compose"
)

// RedditConfig holds script-app credentials for the password OAuth grant.
type RedditConfig struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	UserAgent    string
}

// RedditMessenger sends private messages through the reddit API. The access
// token is cached and refreshed shortly before expiry.
type RedditMessenger struct {
	cfg    RedditConfig
	client *http.Client

	tokenURL   string
	composeURL string

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewRedditMessenger(cfg RedditConfig) *RedditMessenger {
	return &RedditMessenger{
		cfg:        cfg,
		client:     &http.Client{Timeout: 30 * time.Second},
		tokenURL:   redditTokenURL,
		composeURL: redditComposeURL,
	}
}

func (m *RedditMessenger) Send(ctx context.Context, recipient, subject, body string) error {
	token, err := m.accessToken(ctx)
	if err != nil {
		return fmt.Errorf("send to %s: %w", recipient, err)
	}

	form := url.Values{}
	form.Set("api_type", "json")
	form.Set("to", recipient)
	form.Set("subject", subject)
	form.Set("text", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.composeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("send to %s: create request: %w", recipient, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", m.cfg.UserAgent)

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("send to %s: %w", recipient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &retry.StatusError{Op: "compose message", Status: resp.StatusCode}
	}

	var composed struct {
		JSON struct {
			Errors [][]any `json:"errors"`
		} `json:"json"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&composed); err != nil {
		return fmt.Errorf("send to %s: decode response: %w", recipient, err)
	}
	if len(composed.JSON.Errors) > 0 {
		return fmt.Errorf("send to %s: api error: %v", recipient, composed.JSON.Errors[0])
	}
	return nil
}

func (m *RedditMessenger) accessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != "" && time.Now().Before(m.tokenExpiry) {
		return m.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", m.cfg.Username)
	form.Set("password", m.cfg.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("request token: %w", err)
	}
	req.SetBasicAuth(m.cfg.ClientID, m.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", m.cfg.UserAgent)

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &retry.StatusError{Op: "request token", Status: resp.StatusCode}
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("request token: decode: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("request token: empty access token")
	}

	m.token = tok.AccessToken
	// Refresh a minute early so in-flight sends never race expiry.
	m.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - time.Minute)
	return m.token, nil
}
