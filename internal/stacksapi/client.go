// Package stacksapi is the Chain API Client (C7): a small HTTP client used
// by the readonly signature verifier (C3) for call-read requests and by
// the real dispute executor (C4) for broadcast. Grounded on the teacher's
// RPCNodeClient (services/payments-gateway/node_client.go): same bounded
// http.Client/bearer-token/typed-error shape, generalized from one fixed
// JSON-RPC method ("mint_with_sig") to the Stacks API's REST-ish
// call-read/broadcast endpoints, and from an unbounded call rate to one
// bounded by golang.org/x/time/rate (teacher's gateway/middleware/ratelimit.go
// pattern, applied here to outbound calls instead of inbound requests).
package stacksapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Client talks to a Stacks-style API node.
type Client struct {
	baseURL   string
	authToken string
	http      *http.Client
	limiter   *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithRateLimit bounds outbound calls to perSecond with the given burst
// (mirrors the teacher's per-key rate limiter, applied here to one
// outbound destination instead of many inbound client keys).
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			perSecond = 5
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithTimeout overrides the default 10s bounded deadline (spec.md §5:
// "outbound chain/KMS calls should impose bounded deadlines").
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// New constructs a Client against baseURL (the configured stacksApiUrl),
// optionally bearer-authenticated.
func New(baseURL, authToken string, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		authToken: authToken,
		http:      &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RPCError is returned when the API responds with any non-200 status; a 200
// response body is decoded as-is, without looking for an error field.
type RPCError struct {
	Status  int
	Code    string
	Message string
}

func (e *RPCError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("stacks api error (status=%d, code=%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("stacks api error (status=%d): %s", e.Status, e.Message)
}

// CallReadOnly POSTs to `/v2/contracts/call-read/{principal}/{name}/{function}`
// with the given Clarity-JSON-hex arguments and decodes the response
// envelope (spec.md §4.3: "call the pipe contract's verify-signature-request
// read-only function").
func (c *Client) CallReadOnly(ctx context.Context, contractPrincipal, contractName, function, sender string, argsHex []string) (*ReadOnlyResponse, error) {
	path := fmt.Sprintf("/v2/contracts/call-read/%s/%s/%s", contractPrincipal, contractName, function)
	body := map[string]interface{}{
		"sender":    sender,
		"arguments": argsHex,
	}
	var out ReadOnlyResponse
	if err := c.post(ctx, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReadOnlyResponse mirrors the Stacks `call-read` response envelope.
type ReadOnlyResponse struct {
	Okay   bool   `json:"okay"`
	Result string `json:"result"` // hex-encoded Clarity value
	Cause  string `json:"cause"`
}

// BroadcastResponse is returned by Broadcast on success.
type BroadcastResponse struct {
	Txid string `json:"txid"`
}

// Broadcast POSTs a raw signed transaction to `/v2/transactions` (spec.md
// §4.4: "broadcasts, returns the resulting txid").
func (c *Client) Broadcast(ctx context.Context, rawTx []byte) (*BroadcastResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/transactions", bytes.NewReader(rawTx))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	c.authorize(req)

	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &RPCError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}
	// Successful broadcast responses are a bare quoted txid string.
	var txid string
	if err := json.Unmarshal(raw, &txid); err == nil && txid != "" {
		return &BroadcastResponse{Txid: txid}, nil
	}
	var out BroadcastResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("stacksapi: decode broadcast response: %w", err)
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return &RPCError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) authorize(req *http.Request) {
	if strings.TrimSpace(c.authToken) != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
}

func (c *Client) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("stacksapi: rate limit wait: %w", err)
		}
	}
	return c.http.Do(req)
}
