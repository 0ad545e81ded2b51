package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"coderhack/core"
)

// Option configures the Client.
type Option func(*Client)

// Client provides typed access to the coderhack HTTP + WebSocket API.
type Client struct {
	baseURL    string
	wsURL      string
	httpClient *http.Client
	headers    http.Header
}

// NewClient constructs a client for the API mounted at baseURL
// (e.g. http://localhost:8080/coderhack/api/v1).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("baseURL is required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	c := &Client{
		baseURL:    baseURL,
		wsURL:      deriveWSURL(baseURL),
		httpClient: http.DefaultClient,
		headers:    make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithAuthToken adds an Authorization: Bearer token header to all requests (HTTP + WS).
func WithAuthToken(token string) Option {
	return func(c *Client) {
		if strings.TrimSpace(token) != "" {
			c.headers.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithAPIKey adds an X-API-Key header.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		if strings.TrimSpace(key) != "" {
			c.headers.Set("X-API-Key", key)
		}
	}
}

// WithHeader sets an arbitrary header applied to HTTP and WS calls.
func WithHeader(k, v string) Option {
	return func(c *Client) {
		if k != "" {
			c.headers.Set(k, v)
		}
	}
}

// Register creates a user with score 0.
func (c *Client) Register(ctx context.Context, userID, username string) (User, error) {
	if userID == "" {
		return User{}, ErrEmptyUserID
	}
	var u User
	err := c.do(ctx, http.MethodPost, "/users", map[string]string{"userId": userID, "username": username}, &u)
	return u, err
}

// GetUser fetches one user; the error matches ErrNotFound when it does not exist.
func (c *Client) GetUser(ctx context.Context, userID string) (User, error) {
	if userID == "" {
		return User{}, ErrEmptyUserID
	}
	var u User
	err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(userID), nil, &u)
	return u, err
}

// UpdateScore sets the user's score and returns the record with any newly earned badges.
func (c *Client) UpdateScore(ctx context.Context, userID string, score int) (User, error) {
	if userID == "" {
		return User{}, ErrEmptyUserID
	}
	var u User
	err := c.do(ctx, http.MethodPut, "/users/"+url.PathEscape(userID), map[string]int{"score": score}, &u)
	return u, err
}

// DeleteUser removes a user.
func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrEmptyUserID
	}
	return c.do(ctx, http.MethodDelete, "/users/"+url.PathEscape(userID), nil, nil)
}

// ListUsers returns all users ordered by ascending score.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	users := []User{}
	err := c.do(ctx, http.MethodGet, "/users", nil, &users)
	return users, err
}

// Health probes /healthz. A 503 still decodes and returns the unhealthy status.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return HealthStatus{}, err
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return HealthStatus{}, err
	}
	defer resp.Body.Close()

	var hs HealthStatus
	if resp.StatusCode == http.StatusServiceUnavailable {
		if err := json.NewDecoder(resp.Body).Decode(&hs); err != nil {
			return HealthStatus{}, err
		}
		return hs, nil
	}
	if err := decodeJSON(resp, &hs); err != nil {
		return HealthStatus{}, err
	}
	return hs, nil
}

// SubscribeEvents connects to the WebSocket stream and emits events, limited to
// types when any are given. The returned channel closes when ctx is done or the
// connection drops. Events are dropped if the consumer falls 32 behind.
func (c *Client) SubscribeEvents(ctx context.Context, types ...core.EventType) (<-chan Event, error) {
	if c.wsURL == "" {
		return nil, errors.New("wsURL is not set; ensure baseURL is http/https")
	}
	target := c.wsURL
	if len(types) > 0 {
		names := make([]string, len(types))
		for i, t := range types {
			names[i] = string(t)
		}
		target += "?types=" + url.QueryEscape(strings.Join(names, ","))
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, target, c.headers)
	if err != nil {
		return nil, err
	}

	out := make(chan Event, 32)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	go func() {
		defer close(out)
		defer close(done)
		defer conn.Close()
		for {
			var evt Event
			if err := conn.ReadJSON(&evt); err != nil {
				return
			}
			select {
			case out <- evt:
			default:
			}
		}
	}()
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeJSON(resp, out)
}

func (c *Client) applyHeaders(r *http.Request) {
	for k, vals := range c.headers {
		for _, v := range vals {
			r.Header.Add(k, v)
		}
	}
}

func deriveWSURL(httpBase string) string {
	u, err := url.Parse(httpBase)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return ""
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String()
}
