// Package sakan provides the official Go SDK for the Sakan student-housing
// platform.
//
// The SDK is a thin state-orchestration layer over the platform's REST and
// realtime APIs: it caches remote collections locally, subscribes to
// push-based change notifications, reconciles incoming events into local
// state without duplication, and degrades gracefully when connectivity is
// lost.
//
// Example:
//
//	client := sakan.NewClient("eyJhbGciOi...")
//
//	app := sakan.NewApp(client, sakan.NewMemoryCache(), nil)
//	if err := app.Start(ctx); err != nil { ... }
//	defer app.Close()
//
//	for _, l := range app.Listings.Items() {
//		fmt.Println(l.Name, l.Price)
//	}
package sakan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ============================================================================
// Environment
// ============================================================================

type Environment string

const (
	Production Environment = "production"
)

var environments = map[Environment]string{
	Production: "https://api.sakanhub.com",
}

const (
	DefaultBaseURL = "https://api.sakanhub.com"
	DefaultTimeout = 30 * time.Second
)

// ============================================================================
// Gateway
// ============================================================================

// Gateway is the remote data gateway capability the stores consume: row-level
// CRUD over named collections. The concrete transport is *Client; tests use
// in-memory fakes.
type Gateway interface {
	ReadCollection(ctx context.Context, name string, q *Query) ([]Row, error)
	InsertRow(ctx context.Context, name string, payload Row) (Row, error)
	UpdateRow(ctx context.Context, name, id string, patch Row) error
	DeleteRow(ctx context.Context, name, id string) error
}

// Query narrows and orders a collection read or subscription.
type Query struct {
	// Filters are ANDed equality conditions.
	Filters []Filter
	// Any matches rows satisfying at least one of these equality
	// conditions.
	Any []Filter
	// Pair, when set, matches rows where (A sent to B) or (B sent to A).
	// Used for two-party message threads.
	Pair *PairFilter
	// OrderBy names the sort column; Descending flips the direction.
	OrderBy    string
	Descending bool
	Limit      int
}

// Filter is a single column equality condition.
type Filter struct {
	Column string
	Value  string
}

// PairFilter matches the two-party thread between A and B in either
// direction.
type PairFilter struct {
	SenderColumn   string
	ReceiverColumn string
	A, B           string
}

// Eq is a convenience constructor for a single-equality query.
func Eq(column, value string) *Query {
	return &Query{Filters: []Filter{{Column: column, Value: value}}}
}

// encode renders the query into URL parameters, PostgREST style.
func (q *Query) encode() map[string]string {
	if q == nil {
		return nil
	}
	params := map[string]string{}
	for _, f := range q.Filters {
		params[f.Column] = "eq." + f.Value
	}
	if len(q.Any) > 0 {
		parts := make([]string, 0, len(q.Any))
		for _, f := range q.Any {
			parts = append(parts, f.Column+".eq."+f.Value)
		}
		params["or"] = "(" + strings.Join(parts, ",") + ")"
	}
	if p := q.Pair; p != nil {
		params["or"] = fmt.Sprintf("(and(%s.eq.%s,%s.eq.%s),and(%s.eq.%s,%s.eq.%s))",
			p.SenderColumn, p.A, p.ReceiverColumn, p.B,
			p.SenderColumn, p.B, p.ReceiverColumn, p.A)
	}
	if q.OrderBy != "" {
		dir := "asc"
		if q.Descending {
			dir = "desc"
		}
		params["order"] = q.OrderBy + "." + dir
	}
	if q.Limit > 0 {
		params["limit"] = fmt.Sprintf("%d", q.Limit)
	}
	if len(params) == 0 {
		return nil
	}
	return params
}

// ============================================================================
// Client
// ============================================================================

// Client talks to the Sakan platform API. It implements Gateway.
type Client struct {
	token      string
	baseURL    string
	userAgent  string
	httpClient *http.Client
	session    *Session
}

type ClientOption func(*Client)

func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

func WithEnvironment(env Environment) ClientOption {
	return func(c *Client) {
		if u, ok := environments[env]; ok {
			c.baseURL = u
		}
	}
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

func WithUserAgent(agent string) ClientOption {
	return func(c *Client) { c.userAgent = agent }
}

// NewClient creates a new Sakan client. token is the caller's access token;
// pass "" for anonymous (guest) browsing.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.SetToken(token)
	return c
}

// SetToken sets or replaces the access token and re-derives the session
// claims from it. An empty token yields a guest session.
func (c *Client) SetToken(token string) {
	c.token = token
	c.session = sessionFromToken(token)
}

// Session returns the current caller's identity as carried in the access
// token. Never nil: anonymous callers get a guest session.
func (c *Client) Session() *Session {
	return c.session
}

// BaseURL returns the configured API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ============================================================================
// Internal request helper
// ============================================================================

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, query map[string]string) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		params := url.Values{}
		for k, v := range query {
			params.Set(k, v)
		}
		u += "?" + params.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

func decodeJSON[T any](data []byte) (*T, error) {
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}

// do issues a request and decodes the standard response envelope, mapping
// gateway error codes onto the SDK error taxonomy.
func (c *Client) do(ctx context.Context, method, path string, body interface{}, query map[string]string) (*Result, error) {
	data, err := c.doRequest(ctx, method, path, body, query)
	if err != nil {
		return nil, err
	}
	result, err := decodeJSON[Result](data)
	if err != nil {
		return nil, err
	}
	if !result.OK {
		return result, resultError(result)
	}
	return result, nil
}

// resultError maps a failed envelope to the taxonomy. Unknown codes are
// treated as transient.
func resultError(r *Result) error {
	if r.Error == nil {
		return fmt.Errorf("request failed")
	}
	switch r.Error.Code {
	case "PERMISSION_DENIED", "FORBIDDEN", "BANNED":
		return fmt.Errorf("%w: %s", ErrPermission, r.Error.Message)
	case "NOT_FOUND":
		return fmt.Errorf("%w: %s", ErrNotFound, r.Error.Message)
	case "INVALID_INPUT", "VALIDATION_FAILED":
		return fmt.Errorf("%w: %s", ErrValidation, r.Error.Message)
	}
	return r.Error
}

// ============================================================================
// Gateway implementation
// ============================================================================

const collectionsPrefix = "/api/v1/collections/"

// ReadCollection reads all rows of a named collection, optionally narrowed
// and ordered by the query.
func (c *Client) ReadCollection(ctx context.Context, name string, q *Query) ([]Row, error) {
	result, err := c.do(ctx, "GET", collectionsPrefix+name, nil, q.encode())
	if err != nil {
		return nil, err
	}
	var rows []Row
	if err := result.Decode(&rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// InsertRow inserts a row and returns it with the server-assigned identifier
// and timestamps.
func (c *Client) InsertRow(ctx context.Context, name string, payload Row) (Row, error) {
	result, err := c.do(ctx, "POST", collectionsPrefix+name, payload, nil)
	if err != nil {
		return nil, err
	}
	var row Row
	if err := result.Decode(&row); err != nil {
		return nil, err
	}
	return row, nil
}

// UpdateRow applies a partial update to one row by identifier.
func (c *Client) UpdateRow(ctx context.Context, name, id string, patch Row) error {
	_, err := c.do(ctx, "PATCH", collectionsPrefix+name+"/"+id, patch, nil)
	return err
}

// DeleteRow removes one row by identifier.
func (c *Client) DeleteRow(ctx context.Context, name, id string) error {
	_, err := c.do(ctx, "DELETE", collectionsPrefix+name+"/"+id, nil, nil)
	return err
}

// UpsertRow inserts or replaces a row keyed by a unique column (settings use
// this: created on first write).
func (c *Client) UpsertRow(ctx context.Context, name string, payload Row, conflictColumn string) error {
	_, err := c.do(ctx, "POST", collectionsPrefix+name, payload, map[string]string{
		"on_conflict": conflictColumn,
	})
	return err
}

// ============================================================================
// Realtime factory
// ============================================================================

// Realtime creates a realtime change-feed client bound to this API base URL
// and token. Call Connect to establish the connection.
func (c *Client) Realtime(config *RealtimeConfig) *RealtimeClient {
	cfg := RealtimeConfig{}
	if config != nil {
		cfg = *config
	}
	if cfg.Token == "" {
		cfg.Token = c.token
	}
	cfg.defaults()
	return newRealtimeClient(c.baseURL, &cfg)
}
