// Package marketplace is the REST client for the cake-marketplace backend.
package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type tokenKey struct{}

// WithToken attaches the caller's bearer token to ctx. Every request made with the
// returned context forwards it in the Authorization header.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFrom returns the bearer token attached to ctx, if any.
func TokenFrom(ctx context.Context) string {
	if token, ok := ctx.Value(tokenKey{}).(string); ok {
		return token
	}
	return ""
}

// APIError is a non-2xx answer from the marketplace.
type APIError struct {
	Status  int
	Message string
	Body    []byte
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("marketplace: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("marketplace: status %d", e.Status)
}

// StatusOf returns the HTTP status of an APIError in err's chain, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// MessageOf returns the backend message of an APIError in err's chain.
func MessageOf(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}

// Client talks JSON to the marketplace backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a client for baseURL. A zero timeout leaves requests bounded only
// by the transport defaults.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return NewClientWithHTTP(baseURL, &http.Client{Timeout: timeout})
}

// NewClientWithHTTP builds a client on top of an existing http.Client.
func NewClientWithHTTP(baseURL string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// RequestOpts captures inputs for a marketplace call.
type RequestOpts struct {
	Method  string
	Path    string
	Query   map[string]string
	Body    any
	Headers map[string]string
}

// Response bundles the raw HTTP response.
type Response struct {
	Status int
	Body   []byte
}

// Do performs a request and returns the raw response. Non-2xx statuses are
// returned as *APIError.
func (c *Client) Do(ctx context.Context, opts RequestOpts) (*Response, error) {
	if opts.Method == "" {
		return nil, errors.New("request method is required")
	}
	path := strings.TrimLeft(opts.Path, "/")
	if path == "" {
		return nil, errors.New("request path is required")
	}

	u, err := url.Parse(c.baseURL + "/" + path)
	if err != nil {
		return nil, fmt.Errorf("parse marketplace URL: %w", err)
	}
	if len(opts.Query) > 0 {
		values := u.Query()
		for k, v := range opts.Query {
			values.Set(k, v)
		}
		u.RawQuery = values.Encode()
	}

	var bodyReader io.Reader
	if opts.Body != nil {
		payload, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, opts.Method, u.String(), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if opts.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
	if token := TokenFrom(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute %s %s: %w", opts.Method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{
			Status:  resp.StatusCode,
			Message: extractMessage(respBody),
			Body:    respBody,
		}
	}

	return &Response{Status: resp.StatusCode, Body: respBody}, nil
}

// call performs a request and decodes the response payload into out (may be nil).
func (c *Client) call(ctx context.Context, opts RequestOpts, out any) error {
	resp, err := c.Do(ctx, opts)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := decodeData(resp.Body, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", opts.Method, opts.Path, err)
	}
	return nil
}

// decodeData accepts both `{success, data, message}` envelopes and bare payloads.
func decodeData(body []byte, out any) error {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil
	}
	if body[0] == '{' {
		var env struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(body, &env); err == nil {
			data := bytes.TrimSpace(env.Data)
			if len(data) > 0 && !bytes.Equal(data, []byte("null")) {
				return json.Unmarshal(data, out)
			}
		}
	}
	return json.Unmarshal(body, out)
}

func extractMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   any    `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		msg := strings.TrimSpace(string(body))
		if len(msg) > 256 {
			msg = msg[:256]
		}
		return msg
	}
	if payload.Message != "" {
		return payload.Message
	}
	if s, ok := payload.Error.(string); ok {
		return s
	}
	return ""
}

func segment(value string) string {
	return url.PathEscape(value)
}
