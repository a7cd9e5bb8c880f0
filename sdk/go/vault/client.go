// Package vault provides a thin Go client for the escrow vault REST API.
package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sync"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

// CallerHeader carries the caller address the server authorizes against.
const CallerHeader = "X-Vault-Caller"

// Client wraps the HTTP interactions with the escrow vault REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu     sync.RWMutex
	caller string
}

// Lock is the client-side view of a time-locked sub-balance.
type Lock struct {
	Owner     string `json:"owner"`
	ID        uint64 `json:"id"`
	Token     string `json:"token"`
	Amount    string `json:"amount"`
	ExpiresAt uint64 `json:"expires_at"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("vault api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("vault api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the vault API. When httpClient is nil,
// a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// SetCaller stores the caller address attached to subsequent requests.
func (c *Client) SetCaller(caller string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.caller = caller
}

// Caller returns the currently stored caller address.
func (c *Client) Caller() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.caller
}

// Init performs the one-time initialization with the given admin address.
func (c *Client) Init(ctx context.Context, admin string) error {
	payload := map[string]string{"admin": admin}
	return c.post(ctx, "/api/v1/vault/init", payload, nil)
}

// Owner returns the admin address recorded at initialization.
func (c *Client) Owner(ctx context.Context) (string, error) {
	var out struct {
		Admin string `json:"admin"`
	}
	if err := c.get(ctx, "/api/v1/vault/owner", &out); err != nil {
		return "", err
	}
	return out.Admin, nil
}

// Deposit credits amount of token to owner's free balance. Amount is a
// decimal string.
func (c *Client) Deposit(ctx context.Context, owner, token, amount string) error {
	payload := map[string]string{"owner": owner, "token": token, "amount": amount}
	return c.post(ctx, "/api/v1/vault/deposit", payload, nil)
}

// Withdraw debits amount of token from owner's free balance.
func (c *Client) Withdraw(ctx context.Context, owner, token, amount string) error {
	payload := map[string]string{"owner": owner, "token": token, "amount": amount}
	return c.post(ctx, "/api/v1/vault/withdraw", payload, nil)
}

// Balance returns owner's free balance of token as a decimal string.
func (c *Client) Balance(ctx context.Context, owner, token string) (string, error) {
	endpoint := fmt.Sprintf("/api/v1/vault/balance?owner=%s&token=%s",
		url.QueryEscape(owner), url.QueryEscape(token))
	var out struct {
		Balance string `json:"balance"`
	}
	if err := c.get(ctx, endpoint, &out); err != nil {
		return "", err
	}
	return out.Balance, nil
}

// CreateLock moves amount of token from owner's free balance into a new
// time-locked entry and returns its identifier.
func (c *Client) CreateLock(ctx context.Context, owner, token, amount string, expiresAt uint64) (uint64, error) {
	payload := map[string]any{
		"owner":      owner,
		"token":      token,
		"amount":     amount,
		"expires_at": expiresAt,
	}
	var out struct {
		LockID uint64 `json:"lock_id"`
	}
	if err := c.post(ctx, "/api/v1/vault/locks", payload, &out); err != nil {
		return 0, err
	}
	return out.LockID, nil
}

// GetLock fetches a lock entry by owner and identifier.
func (c *Client) GetLock(ctx context.Context, owner string, lockID uint64) (Lock, error) {
	endpoint := fmt.Sprintf("/api/v1/vault/locks?owner=%s&lock_id=%d",
		url.QueryEscape(owner), lockID)
	var out Lock
	if err := c.get(ctx, endpoint, &out); err != nil {
		return Lock{}, err
	}
	return out, nil
}

// Release sends an active lock's tokens to recipient before expiry.
func (c *Client) Release(ctx context.Context, owner string, lockID uint64, recipient string) error {
	payload := map[string]any{"owner": owner, "lock_id": lockID, "recipient": recipient}
	return c.post(ctx, "/api/v1/vault/locks/release", payload, nil)
}

// Reclaim returns an expired lock's amount to owner's free balance.
func (c *Client) Reclaim(ctx context.Context, owner string, lockID uint64) error {
	payload := map[string]any{"owner": owner, "lock_id": lockID}
	return c.post(ctx, "/api/v1/vault/locks/reclaim", payload, nil)
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	rel := &url.URL{Path: path.Join(c.baseURL.Path, parsed.Path), RawQuery: parsed.RawQuery}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if caller := c.Caller(); caller != "" {
		req.Header.Set(CallerHeader, caller)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
