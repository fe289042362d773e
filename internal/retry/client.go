// Package retry provides retry logic with exponential backoff for
// transient failures against venue and data-fetcher HTTP calls.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"
)

// Config contains retry configuration parameters.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration
}

// DefaultConfig provides sensible defaults for retry operations.
var DefaultConfig = Config{
	MaxRetries:     3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     30 * time.Second,
	Timeout:        2 * time.Minute,
}

// HistoricalPaginatorConfig is the client configuration for the
// historical OHLCV paginator. The paginator retries through
// DoFixedBackoff, which takes its attempt count and sleeps from the
// caller's schedule, so only Timeout bounds it there; MaxRetries and the
// backoff fields apply to Do.
var HistoricalPaginatorConfig = Config{
	MaxRetries:     5,
	InitialBackoff: 10 * time.Second,
	MaxBackoff:     10 * time.Second,
	Timeout:        5 * time.Minute,
}

// Client wraps retry/backoff bookkeeping around arbitrary operations. It
// carries no reference to any particular adapter; callers pass the
// operation itself to Do.
type Client struct {
	logger *log.Logger
	config Config
}

// NewClient creates a new retry client with the given optional config.
func NewClient(logger *log.Logger, config ...Config) *Client {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}

	if logger == nil {
		logger = log.Default()
	}

	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultConfig.MaxRetries
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultConfig.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultConfig.MaxBackoff
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig.Timeout
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}

	return &Client{logger: logger, config: cfg}
}

// ErrNonTransient wraps an operation error that Do decided not to retry.
var ErrNonTransient = errors.New("non-transient error")

// Do runs op up to config.MaxRetries+1 times, sleeping a jittered backoff
// between transient failures. A non-transient error, or exhausting the
// timeout, returns immediately without further attempts.
func (c *Client) Do(ctx context.Context, label string, op func(ctx context.Context) error) error {
	opCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var lastErr error
	backoff := c.config.InitialBackoff

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		select {
		case <-opCtx.Done():
			return fmt.Errorf("%s timed out after %v: %w", label, c.config.Timeout, opCtx.Err())
		default:
		}

		err := op(opCtx)
		if err == nil {
			return nil
		}

		lastErr = err
		c.logger.Printf("%s attempt %d/%d failed: %v", label, attempt+1, c.config.MaxRetries+1, err)

		if !c.isTransientError(err) || attempt == c.config.MaxRetries {
			break
		}

		c.logger.Printf("%s: transient error, retrying in %v", label, backoff)
		select {
		case <-time.After(backoff):
			backoff = c.calculateNextBackoff(backoff)
		case <-opCtx.Done():
			return fmt.Errorf("%s timed out during backoff: %w", label, opCtx.Err())
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", label, c.config.MaxRetries+1, lastErr)
}

// DoFixedBackoff is like Do but takes its sleep schedule from the caller:
// it makes len(sleeps)+1 attempts and sleeps sleeps[i] after the i-th
// transient failure, with no exponential growth or jitter. The
// historical OHLCV paginator passes its fixed 10s/5s ladder here.
func (c *Client) DoFixedBackoff(ctx context.Context, label string, sleeps []time.Duration, op func(ctx context.Context) error) error {
	opCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var lastErr error
	attempts := len(sleeps) + 1

	for attempt := 0; attempt < attempts; attempt++ {
		select {
		case <-opCtx.Done():
			return fmt.Errorf("%s timed out after %v: %w", label, c.config.Timeout, opCtx.Err())
		default:
		}

		err := op(opCtx)
		if err == nil {
			return nil
		}

		lastErr = err
		c.logger.Printf("%s attempt %d/%d failed: %v", label, attempt+1, attempts, err)

		if !c.isTransientError(err) || attempt == attempts-1 {
			break
		}

		sleep := sleeps[attempt]
		c.logger.Printf("%s: transient error, retrying in %v", label, sleep)
		select {
		case <-time.After(sleep):
		case <-opCtx.Done():
			return fmt.Errorf("%s timed out during backoff: %w", label, opCtx.Err())
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", label, attempts, lastErr)
}

func (c *Client) calculateNextBackoff(currentBackoff time.Duration) time.Duration {
	backoff := time.Duration(float64(currentBackoff) * 1.5)
	if backoff > c.config.MaxBackoff {
		backoff = c.config.MaxBackoff
	}

	maxJitter := int64(backoff / 4)
	if maxJitter > 0 {
		jitterVal, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
		if err != nil {
			c.logger.Printf("failed to generate jitter: %v", err)
		} else {
			jitter := time.Duration(jitterVal.Int64())
			backoff += jitter
		}
	}

	return backoff
}

func (c *Client) isTransientError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	transientPatterns := []string{
		"timeout",
		"i/o timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"temporarily unavailable",
		"server error",
		"rate limit",
		"429", // HTTP 429 Too Many Requests
		"502", // HTTP 502 Bad Gateway
		"503", // HTTP 503 Service Unavailable
		"504", // HTTP 504 Gateway Timeout
		"network",
		"dns",
		"tcp",
		"no such host",
		"deadline exceeded",
		"tls handshake",
		"broken pipe",
		"eof",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
