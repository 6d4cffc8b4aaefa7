package tally

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ledgerlens/backend/internal/domain/dataset"
)

// maxResponseSize caps how much of an upstream response is read (10MB).
const maxResponseSize = 10 * 1024 * 1024

// DefaultTimeout bounds one upstream fetch. Hitting it is surfaced as
// ErrTimeout, not silently swallowed as a cancellation.
const DefaultTimeout = 60 * time.Second

// Failure classes the rest of the engine distinguishes. Everything the
// transport can go wrong with reduces to one of these; parse failures carry
// their own *ParseError type.
var (
	// ErrAuthExpired marks an upstream 401/403: the stored credential is
	// missing or expired and the user must re-authenticate. Not retryable.
	ErrAuthExpired = errors.New("tally: authentication expired")
	// ErrTimeout marks a fetch that exceeded the configured deadline.
	ErrTimeout = errors.New("tally: request timed out")
	// ErrUnavailable marks any other transport-level failure. Retryable.
	ErrUnavailable = errors.New("tally: upstream unavailable")
)

// Company identifies one accounting company at one location. Both fields
// participate in the cache key; the engine never caches for a company whose
// identity is incomplete.
type Company struct {
	LocationID string
	GUID       string
}

// Config holds client settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client fetches receivables result sets from the external accounting
// system over HTTP.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
}

// ClientOption is a functional option for Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client, for tests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithClientLogger sets the client logger.
func WithClientLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a client for the configured upstream endpoint.
func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("tally: base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	c := &Client{
		config:     cfg,
		httpClient: &http.Client{},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Fetch executes one query and returns the parsed, untyped dataset. The
// caller's context cancellation passes through unclassified so the service
// layer can suppress superseded fetches; only this client's own deadline
// becomes ErrTimeout.
func (c *Client) Fetch(ctx context.Context, company Company, formula string) (dataset.Dataset, error) {
	payload, err := BuildRequest(company, formula)
	if err != nil {
		return dataset.Dataset{}, err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodPost, c.config.BaseURL, bytes.NewReader(payload))
	if err != nil {
		return dataset.Dataset{}, fmt.Errorf("tally: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/xml")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return dataset.Dataset{}, c.classifyTransportError(ctx, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return dataset.Dataset{}, fmt.Errorf("%w (status %d)", ErrAuthExpired, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return dataset.Dataset{}, fmt.Errorf("%w (status %d)", ErrUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return dataset.Dataset{}, c.classifyTransportError(ctx, err)
	}

	d, err := ParseResponse(body)
	if err != nil {
		return dataset.Dataset{}, err
	}

	c.logger.Debug("upstream fetch complete",
		zap.String("location_id", company.LocationID),
		zap.String("company_guid", company.GUID),
		zap.String("formula", formula),
		zap.Int("rows", len(d.Rows)),
		zap.Duration("latency", time.Since(start)))
	return d, nil
}

// classifyTransportError reduces transport failures to the engine's error
// taxonomy. A parent-context cancellation is returned as-is: the service
// treats it as a superseded fetch, not a failure.
func (c *Client) classifyTransportError(parent context.Context, err error) error {
	if parent.Err() != nil && errors.Is(parent.Err(), context.Canceled) {
		return context.Canceled
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w after %s", ErrTimeout, c.config.Timeout)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
