package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const (
	defaultUpstreamTimeout  = 15 * time.Second
	defaultFailureThreshold = 5
	defaultBreakerOpenFor   = 30 * time.Second
	maxErrorBodyBytes       = 512
)

var (
	// ErrNotFound indicates the upstream catalog has no item for the identifier.
	ErrNotFound = errors.New("catalog: item not found")
	// ErrUpstream indicates the upstream catalog answered with an error status.
	ErrUpstream = errors.New("catalog: upstream request failed")
	// ErrUnavailable indicates the upstream circuit is open after repeated failures.
	ErrUnavailable = errors.New("catalog: upstream unavailable")
	// ErrMissingCredentials indicates a client was built without its API credentials.
	ErrMissingCredentials = errors.New("catalog: api credentials required")
)

type upstreamConfig struct {
	Name             string
	BaseURL          string
	HTTPClient       *http.Client
	Timeout          time.Duration
	FailureThreshold uint32
	Logger           *zap.Logger
}

// upstreamClient issues GET requests against one catalog API behind a circuit breaker.
// Failures are never retried.
type upstreamClient struct {
	name       string
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
	logger     *zap.Logger
}

func newUpstreamClient(cfg upstreamConfig) *upstreamClient {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultUpstreamTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = defaultFailureThreshold
	}

	settings := gobreaker.Settings{
		Name:    cfg.Name,
		Timeout: defaultBreakerOpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("catalog circuit state changed",
				zap.String("upstream", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &upstreamClient{
		name:       cfg.Name,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		breaker:    gobreaker.NewCircuitBreaker[[]byte](settings),
		logger:     logger,
	}
}

func (c *upstreamClient) getJSON(ctx context.Context, path string, query url.Values, target any) error {
	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.get(ctx, path, query)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %s: %v", ErrUnavailable, c.name, err)
		}
		return err
	}
	if err := json.Unmarshal(body, target); err != nil {
		c.logger.Warn("catalog response decode failed",
			zap.String("upstream", c.name),
			zap.String("path", path),
			zap.Error(err))
		return fmt.Errorf("%w: %s %s: decode: %v", ErrUpstream, c.name, path, err)
	}
	return nil
}

func (c *upstreamClient) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	endpoint := c.baseURL + path
	if encoded := query.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: build request: %v", ErrUpstream, c.name, err)
	}
	request.Header.Set("Accept", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		c.logger.Warn("catalog request failed",
			zap.String("upstream", c.name),
			zap.String("path", path),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %s %s: %v", ErrUpstream, c.name, path, err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: read body: %v", ErrUpstream, c.name, path, err)
	}

	switch {
	case response.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, c.name, path)
	case response.StatusCode >= http.StatusBadRequest:
		snippet := string(body)
		if len(snippet) > maxErrorBodyBytes {
			snippet = snippet[:maxErrorBodyBytes]
		}
		c.logger.Warn("catalog request rejected",
			zap.String("upstream", c.name),
			zap.String("path", path),
			zap.Int("status", response.StatusCode),
			zap.String("body", snippet))
		return nil, fmt.Errorf("%w: %s %s: status %d", ErrUpstream, c.name, path, response.StatusCode)
	}
	return body, nil
}
