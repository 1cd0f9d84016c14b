// Package httpx is the outbound HTTP transport shared by the CTIS and
// Recorded Future clients.
package httpx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/hive-corporation/rf-ctis-bridge/internal/adapter/metrics"
)

// Doer is satisfied by *http.Client and *ResilientClient.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config tunes one upstream. A zero MaxFailures disables the breaker and a
// zero MaxRetries disables retries.
type Config struct {
	Name    string
	Timeout time.Duration

	Breaker BreakerConfig
	Retry   RetryConfig
}

type BreakerConfig struct {
	MaxFailures uint32
	OpenFor     time.Duration
}

type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultConfig returns the settings used for both upstreams.
func DefaultConfig(name string) Config {
	return Config{
		Name:    name,
		Timeout: 60 * time.Second,
		Breaker: BreakerConfig{MaxFailures: 5, OpenFor: 30 * time.Second},
		Retry: RetryConfig{
			MaxRetries:      3,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		},
	}
}

// ResilientClient retries safe requests on transient failures and trips a
// breaker when an upstream keeps answering 5xx. Requests with side effects
// (POST, PATCH) are sent exactly once: the platform may already have
// applied them.
type ResilientClient struct {
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	cfg     Config
}

func NewResilientClient(cfg Config) *ResilientClient {
	c := &ResilientClient{
		http: &http.Client{Timeout: cfg.Timeout},
		cfg:  cfg,
	}
	if cfg.Breaker.MaxFailures > 0 {
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        cfg.Name,
			MaxRequests: 1,
			Timeout:     cfg.Breaker.OpenFor,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.Breaker.MaxFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("circuit breaker state changed", "upstream", name, "from", from.String(), "to", to.String())
			},
		})
	}
	return c
}

// upstreamDown marks a 5xx answer so the breaker counts it. The response
// itself still goes back to the caller.
type upstreamDown struct {
	resp *http.Response
}

func (e *upstreamDown) Error() string {
	return fmt.Sprintf("upstream answered %d", e.resp.StatusCode)
}

// Do sends req. Any non-retryable answer is returned as is; the caller
// classifies 4xx bodies.
func (c *ResilientClient) Do(req *http.Request) (*http.Response, error) {
	if c.breaker == nil {
		return c.send(req)
	}

	out, err := c.breaker.Execute(func() (any, error) {
		resp, err := c.send(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, &upstreamDown{resp: resp}
		}
		return resp, nil
	})

	var down *upstreamDown
	switch {
	case errors.As(err, &down):
		return down.resp, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RecordTransportError("circuit_open")
		return nil, fmt.Errorf("%s unavailable: %w", c.cfg.Name, err)
	case err != nil:
		return nil, err
	}
	return out.(*http.Response), nil
}

func (c *ResilientClient) send(req *http.Request) (*http.Response, error) {
	rewind, err := bodyRewinder(req)
	if err != nil {
		return nil, err
	}

	if c.cfg.Retry.MaxRetries <= 0 || !safeToRepeat(req.Method) {
		if err := rewind(); err != nil {
			return nil, err
		}
		return c.once(req)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.Retry.InitialInterval
	policy.MaxInterval = c.cfg.Retry.MaxInterval
	policy.MaxElapsedTime = 0

	var resp *http.Response
	attempt := func() error {
		if err := rewind(); err != nil {
			return backoff.Permanent(err)
		}
		r, err := c.once(req)
		if err != nil {
			if transient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if retryableStatus(r.StatusCode) {
			r.Body.Close()
			return fmt.Errorf("%s %s: status %d", req.Method, req.URL.Path, r.StatusCode)
		}
		resp = r
		return nil
	}
	onRetry := func(err error, wait time.Duration) {
		slog.Debug("retrying request", "upstream", c.cfg.Name, "error", err, "wait", wait)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.cfg.Retry.MaxRetries)), req.Context())
	if err := backoff.RetryNotify(attempt, b, onRetry); err != nil {
		return nil, fmt.Errorf("%s: giving up after %d retries: %w", c.cfg.Name, c.cfg.Retry.MaxRetries, err)
	}
	return resp, nil
}

func (c *ResilientClient) once(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordTransportError("connection")
		return nil, err
	}
	if label := statusLabel(resp.StatusCode); label != "" {
		metrics.RecordTransportError(label)
	}
	return resp, nil
}

// bodyRewinder returns a func that restores req.Body before each attempt.
func bodyRewinder(req *http.Request) (func() error, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return func() error { return nil }, nil
	}
	if req.GetBody != nil {
		return func() error {
			body, err := req.GetBody()
			if err != nil {
				return err
			}
			req.Body = body
			return nil
		}, nil
	}

	data, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to buffer request body: %w", err)
	}
	return func() error {
		req.Body = io.NopCloser(bytes.NewReader(data))
		req.ContentLength = int64(len(data))
		return nil
	}, nil
}

func safeToRepeat(method string) bool {
	return method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
}

func transient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError && code != http.StatusNotImplemented
}

// statusLabel maps an error status to its transport_errors label; "" for
// statuses the caller handles (409, 422...).
func statusLabel(code int) string {
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return "auth"
	case code == http.StatusTooManyRequests:
		return "rate_limit"
	case code >= http.StatusInternalServerError:
		return "server_error"
	}
	return ""
}
