// Package supabase implements the repositories against a hosted Supabase
// project: PostgREST for tables and GoTrue for credentials.
package supabase

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

	"github.com/tidwall/gjson"
)

// Config holds client configuration
type Config struct {
	URL string
	// AnonKey identifies the project on every request
	AnonKey string
	// ServiceKey, when set, authorizes table access and admin calls
	ServiceKey string
	HTTPClient *http.Client
}

// Client is a Supabase REST API client
type Client struct {
	baseURL    string
	anonKey    string
	serviceKey string
	httpClient *http.Client
}

// New creates a new Supabase client
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("URL is required")
	}
	if cfg.AnonKey == "" {
		return nil, fmt.Errorf("AnonKey is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 30 * time.Second,
		}
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		anonKey:    cfg.AnonKey,
		serviceKey: cfg.ServiceKey,
		httpClient: httpClient,
	}, nil
}

// APIError is a non-2xx response from Supabase
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("supabase error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("supabase error: status %d", e.StatusCode)
}

// newAPIError probes the body for the message field used by PostgREST or
// GoTrue, whichever answered
func newAPIError(status int, body []byte) *APIError {
	e := &APIError{StatusCode: status}
	if !gjson.ValidBytes(body) {
		return e
	}
	res := gjson.ParseBytes(body)
	for _, path := range []string{"message", "msg", "error_description", "error"} {
		if v := res.Get(path); v.Exists() && v.Type == gjson.String {
			e.Message = v.String()
			break
		}
	}
	for _, path := range []string{"error_code", "code", "error"} {
		if v := res.Get(path); v.Exists() {
			e.Code = v.String()
			break
		}
	}
	return e
}

// tableKey is the key used for PostgREST requests
func (c *Client) tableKey() string {
	if c.serviceKey != "" {
		return c.serviceKey
	}
	return c.anonKey
}

// request performs an HTTP call. bearer overrides the Authorization token;
// an empty bearer sends the table key.
func (c *Client) request(ctx context.Context, method, path string, query url.Values, body any, bearer string, headers map[string]string) ([]byte, error) {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal data: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if bearer == "" {
		bearer = c.tableKey()
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, newAPIError(resp.StatusCode, data)
	}
	return data, nil
}

func restPath(table string) string {
	return "/rest/v1/" + url.PathEscape(table)
}

// selectRows runs a GET on a table and decodes the rows into dest
func (c *Client) selectRows(ctx context.Context, table string, query url.Values, dest any) error {
	if query == nil {
		query = url.Values{}
	}
	if query.Get("select") == "" {
		query.Set("select", "*")
	}
	data, err := c.request(ctx, http.MethodGet, restPath(table), query, nil, "", nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("unmarshal %s rows: %w", table, err)
	}
	return nil
}

// insertRow inserts one row and decodes the stored representation into dest
func (c *Client) insertRow(ctx context.Context, table string, row, dest any) error {
	data, err := c.request(ctx, http.MethodPost, restPath(table), nil, row, "", map[string]string{
		"Prefer": "return=representation",
	})
	if err != nil {
		return err
	}
	return decodeSingle(table, data, dest)
}

// updateRows patches every row matching query and returns how many changed
func (c *Client) updateRows(ctx context.Context, table string, query url.Values, patch any) (int, error) {
	data, err := c.request(ctx, http.MethodPatch, restPath(table), query, patch, "", map[string]string{
		"Prefer": "return=representation",
	})
	if err != nil {
		return 0, err
	}
	return len(gjson.ParseBytes(data).Array()), nil
}

func (c *Client) deleteRows(ctx context.Context, table string, query url.Values) error {
	_, err := c.request(ctx, http.MethodDelete, restPath(table), query, nil, "", nil)
	return err
}

// decodeSingle unwraps the single-element array PostgREST returns for
// return=representation
func decodeSingle(table string, data []byte, dest any) error {
	rows := gjson.ParseBytes(data).Array()
	if len(rows) == 0 {
		return fmt.Errorf("%s: no row returned", table)
	}
	if err := json.Unmarshal([]byte(rows[0].Raw), dest); err != nil {
		return fmt.Errorf("unmarshal %s row: %w", table, err)
	}
	return nil
}

func eq(v string) string {
	return "eq." + v
}
