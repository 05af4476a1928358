// Package coinbase is an authenticated Coinbase Pro (GDAX) REST client that
// tracks the lifecycle of the orders it places.
package coinbase

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"gdax-broker/pkg/exchange"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	defaultUserAgent   = "gdax-broker/1.0"
	progressInterval   = 100 * time.Millisecond
)

// IDSource mints client order ids and keeps their exchange id mapping.
// *orderid.Generator satisfies it.
type IDSource interface {
	NextID(ctx context.Context) (int32, error)
	Record(ctx context.Context, id int32, exchangeID string) error
	Tombstone(ctx context.Context, id int32) error
	Lookup(ctx context.Context, id int32) (string, bool)
}

// TradeRecorder receives every closed trade.
type TradeRecorder interface {
	Record(ctx context.Context, trade exchange.ClosedTrade) error
}

// Client is the order lifecycle manager for one trading session.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	signer     *Signer
	clock      Clock
	progress   ProgressFunc
	ids        IDSource
	ledger     TradeRecorder
	stp        string

	publicRate     int
	privateRate    int
	publicThrottle *Throttler
	privThrottle   *Throttler

	pollInterval   time.Duration
	fillTimeout    time.Duration
	cancelAttempts int

	productsMu sync.Mutex
	products   []exchange.Product
	productIdx map[string]int

	ordersMu sync.Mutex
	orders   map[string]*exchange.Order
}

var _ exchange.Broker = (*Client)(nil)

// ClientOption customises the client.
type ClientOption func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithBaseURL points the client at another REST root, e.g. the sandbox.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		if url != "" {
			c.baseURL = strings.TrimRight(url, "/")
		}
	}
}

// WithUserAgent sets the User-Agent sent with every request.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithClock overrides the time source (primarily for testing).
func WithClock(clock Clock) ClientOption {
	return func(c *Client) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithProgress installs the host callback consulted by every wait loop.
func WithProgress(fn ProgressFunc) ClientOption {
	return func(c *Client) {
		c.progress = fn
	}
}

// WithOrderIDs wires the client order id source. Order submission requires it.
func WithOrderIDs(ids IDSource) ClientOption {
	return func(c *Client) {
		c.ids = ids
	}
}

// WithLedger records closed trades.
func WithLedger(rec TradeRecorder) ClientOption {
	return func(c *Client) {
		c.ledger = rec
	}
}

// WithRateLimits sets requests per second for public and private endpoints.
func WithRateLimits(public, private int) ClientOption {
	return func(c *Client) {
		if public > 0 {
			c.publicRate = public
		}
		if private > 0 {
			c.privateRate = private
		}
	}
}

// WithPollInterval sets the cadence of fill and cancel polling.
func WithPollInterval(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithFillTimeout bounds how long submission waits for a pending or
// immediate order to settle before cancelling it.
func WithFillTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.fillTimeout = d
		}
	}
}

// WithCancelAttempts bounds the status polls after an unconfirmed cancel.
func WithCancelAttempts(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.cancelAttempts = n
		}
	}
}

// WithSTP sets the self-trade prevention flag sent with orders.
func WithSTP(stp string) ClientOption {
	return func(c *Client) {
		c.stp = stp
	}
}

// OptionsFromConfig translates exchange config into client options. The id
// source and ledger are wired separately because they own resources.
func OptionsFromConfig(cfg *exchange.Config) []ClientOption {
	if cfg == nil {
		return nil
	}
	opts := []ClientOption{
		WithBaseURL(cfg.Endpoint()),
		WithUserAgent(cfg.UserAgent),
		WithRateLimits(cfg.PublicRate, cfg.PrivateRate),
		WithPollInterval(cfg.PollInterval),
		WithFillTimeout(cfg.FillTimeout),
		WithCancelAttempts(cfg.CancelAttempts),
		WithSTP(cfg.STP),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}
	return opts
}

// NewClient validates the credentials and builds a client. The secret must be
// valid base64.
func NewClient(creds exchange.Credentials, opts ...ClientOption) (*Client, error) {
	if creds.Key == "" || creds.Passphrase == "" {
		return nil, exchange.SigningError(fmt.Errorf("api key and passphrase are required"))
	}
	client := &Client{
		baseURL:        exchange.ProductionURL,
		userAgent:      defaultUserAgent,
		httpClient:     &http.Client{Timeout: defaultHTTPTimeout},
		clock:          systemClock{},
		publicRate:     exchange.DefaultPublicRate,
		privateRate:    exchange.DefaultPrivateRate,
		pollInterval:   exchange.DefaultPollInterval,
		fillTimeout:    exchange.DefaultFillTimeout,
		cancelAttempts: exchange.DefaultCancelAttempts,
		orders:         make(map[string]*exchange.Order),
	}
	for _, opt := range opts {
		opt(client)
	}
	signer, err := NewSigner(creds, client.clock)
	if err != nil {
		return nil, err
	}
	client.signer = signer
	client.publicThrottle = NewThrottler(client.publicRate, client.clock)
	client.privThrottle = NewThrottler(client.privateRate, client.clock)
	return client, nil
}

func (c *Client) throttler(class EndpointClass) *Throttler {
	if class == Private {
		return c.privThrottle
	}
	return c.publicThrottle
}

// pause sleeps one poll interval and consults the progress callback.
func (c *Client) pause(ctx context.Context, what string) *exchange.Error {
	if err := c.clock.Sleep(ctx, c.pollInterval); err != nil {
		return exchange.AbortedError(what + " cancelled: " + err.Error())
	}
	if c.progress != nil && !c.progress() {
		return exchange.AbortedError(what + " aborted by caller")
	}
	return nil
}
