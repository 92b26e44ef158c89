// Package remote is the HTTP client for the notifications server.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bissquit/notify-agent/internal/pkg/ctxlog"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout   = 15 * time.Second
	defaultRateLimit = 20
	defaultBurst     = 10
	maxBodySize      = 4 << 20
)

// Config holds notifications server client configuration.
type Config struct {
	BaseURL   string
	Token     string
	Timeout   time.Duration
	RateLimit float64 // requests per second
	Burst     int
}

// Client talks to the notifications server. Requests are form-encoded,
// responses are JSON, optionally wrapped in {"data": ...}.
type Client struct {
	baseURL    *url.URL
	token      string
	expiry     time.Time
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
}

// New creates a new notifications server client.
func New(config Config) (*Client, error) {
	base, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https, got %q", config.BaseURL)
	}

	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.RateLimit <= 0 {
		config.RateLimit = defaultRateLimit
	}
	if config.Burst <= 0 {
		config.Burst = defaultBurst
	}

	c := &Client{
		baseURL:    base,
		token:      config.Token,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(config.RateLimit), config.Burst),
		now:        time.Now,
	}
	c.expiry = tokenExpiry(config.Token)
	return c, nil
}

// BaseURL returns the server base URL.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// Get issues a GET request and decodes the response into out.
func (c *Client) Get(ctx context.Context, endpoint string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, endpoint, query, nil, out)
}

// Post issues a form-encoded POST request and decodes the response into out.
// out may be nil.
func (c *Client) Post(ctx context.Context, endpoint string, form url.Values, out any) error {
	return c.do(ctx, http.MethodPost, endpoint, nil, form, out)
}

func (c *Client) do(ctx context.Context, method, endpoint string, query, form url.Values, out any) error {
	if !c.expiry.IsZero() && !c.now().Before(c.expiry) {
		return ErrTokenExpired
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}

	u := c.baseURL.JoinPath(endpoint)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		requestDuration.WithLabelValues(endpoint, "error").Observe(time.Since(start).Seconds())
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()
	requestDuration.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	ctxlog.FromContext(ctx).Debug("notifications server request",
		"method", method,
		"endpoint", endpoint,
		"status", resp.StatusCode,
	)

	return decodeResponse(resp.StatusCode, raw, out)
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error json.RawMessage `json:"error"`
}

// decodeResponse handles both {"data": ...} and bare bodies, and turns
// {"error": "..."} or {"error": {"message": "..."}} into a StatusError.
func decodeResponse(status int, raw []byte, out any) error {
	trimmed := bytes.TrimSpace(raw)

	var env envelope
	isObject := len(trimmed) > 0 && trimmed[0] == '{'
	if isObject {
		if err := json.Unmarshal(trimmed, &env); err != nil {
			isObject = false
		}
	}

	if status >= http.StatusBadRequest || (isObject && len(env.Error) > 0 && !isNull(env.Error)) {
		code := status
		if code < http.StatusBadRequest {
			code = http.StatusBadRequest
		}
		msg := ""
		if isObject {
			msg = errorMessage(env.Error)
		}
		if msg == "" && !isObject {
			msg = strings.TrimSpace(string(trimmed))
		}
		return &StatusError{Code: code, Message: msg}
	}

	if out == nil || len(trimmed) == 0 {
		return nil
	}

	payload := trimmed
	if isObject && len(env.Data) > 0 {
		payload = env.Data
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func errorMessage(raw json.RawMessage) string {
	if len(raw) == 0 || isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Message
	}
	return ""
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// tokenExpiry reads the exp claim without verifying the signature.
// Opaque tokens have no expiry.
func tokenExpiry(token string) time.Time {
	if strings.Count(token, ".") != 2 {
		return time.Time{}
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
