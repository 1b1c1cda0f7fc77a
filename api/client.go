package api

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/jrsteele09/solugarde-client/internal/config"
	"github.com/jrsteele09/solugarde-client/internal/metrics"
)

const (
	headerAuthorization = "Authorization"
	headerRequestID     = "X-Request-ID"
	bearerPrefix        = "Bearer "

	maxResponseBytes = 4 << 20
)

// TokenSource supplies the access token attached to outgoing requests
type TokenSource interface {
	AccessToken() string
}

// Refresher obtains a new access token after the API rejected the token named rejected
type Refresher interface {
	RefreshAccessToken(ctx context.Context, rejected string) (string, error)
}

// UnauthorizedHandler is told when the API has rejected the session for good
type UnauthorizedHandler func(err error)

// Client talks to the Solugarde REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	metrics    *metrics.Metrics

	refresher      Refresher
	onUnauthorized UnauthorizedHandler
	lock           sync.RWMutex
}

type Option func(*Client)

// WithBaseURL overrides the configured API base URL
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) {
		c.tokens = ts
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

func New(cfg config.APIConfig, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(cfg.GetAPIBaseURL(), "/"),
		httpClient: &http.Client{Timeout: cfg.GetAPITimeout()},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetTokenSource replaces the source of the bearer token
func (c *Client) SetTokenSource(ts TokenSource) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.tokens = ts
}

// SetRefresher installs the refresher consulted after a 401
func (c *Client) SetRefresher(r Refresher) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.refresher = r
}

// OnUnauthorized installs the handler told about terminal authentication failures
func (c *Client) OnUnauthorized(fn UnauthorizedHandler) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.onUnauthorized = fn
}

func (c *Client) accessToken() string {
	c.lock.RLock()
	ts := c.tokens
	c.lock.RUnlock()
	if ts == nil {
		return ""
	}
	return ts.AccessToken()
}

func (c *Client) getRefresher() Refresher {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.refresher
}

func (c *Client) unauthorized(err error) {
	c.lock.RLock()
	fn := c.onUnauthorized
	c.lock.RUnlock()
	if fn != nil {
		fn(err)
	}
}
