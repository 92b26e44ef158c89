// Package testutil provides an API test client, an OpenAPI validator and
// a fake notifications server.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
)

// Client calls the agent's local API. When a validator is attached, every
// response is checked against api/openapi/openapi.yaml.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client

	validator *OpenAPIValidator
	validate  bool
	t         *testing.T
}

// NewClient returns a client that does not validate responses.
func NewClient(baseURL string) *Client {
	return &Client{BaseURL: baseURL, HTTPClient: &http.Client{}}
}

// NewClientWithValidator returns a validating client. Call SetT before the
// first request so failures are reported on the right test.
func NewClientWithValidator(baseURL string, v *OpenAPIValidator) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{},
		validator:  v,
		validate:   v != nil,
	}
}

// SetT binds validation failures to t.
func (c *Client) SetT(t *testing.T) {
	c.t = t
}

// WithoutValidation returns a copy that skips response validation, for
// requests the document intentionally does not describe.
func (c *Client) WithoutValidation() *Client {
	clone := *c
	clone.validate = false
	return &clone
}

// ClearToken drops the bearer token.
func (c *Client) ClearToken() {
	c.Token = ""
}

func (c *Client) GET(path string) (*http.Response, error) {
	return c.do(http.MethodGet, path, nil)
}

func (c *Client) POST(path string, body any) (*http.Response, error) {
	return c.do(http.MethodPost, path, body)
}

func (c *Client) PATCH(path string, body any) (*http.Response, error) {
	return c.do(http.MethodPatch, path, body)
}

func (c *Client) DELETE(path string) (*http.Response, error) {
	return c.do(http.MethodDelete, path, nil)
}

func (c *Client) newRequest(method, path string, payload []byte) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, c.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	return req, nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
	}

	req, err := c.newRequest(method, path, payload)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}

	if c.validate && c.t != nil {
		// The sent body was consumed; validation needs a fresh one.
		vreq, err := c.newRequest(method, path, payload)
		if err != nil {
			return nil, err
		}
		c.validator.ValidateResponse(c.t, vreq, resp)
	}
	return resp, nil
}

// DecodeJSON decodes and closes the response body.
func DecodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// DecodeData unwraps a {"data": ...} envelope.
func DecodeData[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var env struct {
		Data T `json:"data"`
	}
	DecodeJSON(t, resp, &env)
	return env.Data
}

// ErrorMessage returns error.message from an error envelope.
func ErrorMessage(t *testing.T, resp *http.Response) string {
	t.Helper()
	var env struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	DecodeJSON(t, resp, &env)
	return env.Error.Message
}
