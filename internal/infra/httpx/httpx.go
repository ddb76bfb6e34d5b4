// Package httpx holds the pooled HTTP client and status mapping shared by
// every adapter that talks to a remote service.
package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"voicebot/internal/domain"
	"voicebot/internal/infra/config"
)

// MaxResponseBody is the maximum response body size read from remote APIs.
const MaxResponseBody = 10 * 1024 * 1024 // 10 MB

// Default connection pool settings: few hosts, long-lived connections.
const (
	defaultMaxIdleConns        = 20
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 20
	defaultIdleConnTimeout     = 120 * time.Second

	defaultConnTimeout = 30 * time.Second
	defaultRespTimeout = 120 * time.Second
)

// NewTransport creates an http.Transport with connection pooling.
// Zero values in pool fall back to defaults.
func NewTransport(connTimeout, respTimeout time.Duration, pool config.PoolConfig) *http.Transport {
	if connTimeout <= 0 {
		connTimeout = defaultConnTimeout
	}
	if respTimeout <= 0 {
		respTimeout = defaultRespTimeout
	}
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   connTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: respTimeout,
		MaxIdleConns:          orDefault(pool.MaxIdleConns, defaultMaxIdleConns),
		MaxIdleConnsPerHost:   orDefault(pool.MaxIdleConnsPerHost, defaultMaxIdleConnsPerHost),
		MaxConnsPerHost:       orDefault(pool.MaxConnsPerHost, defaultMaxConnsPerHost),
		IdleConnTimeout:       orDefaultDuration(pool.IdleConnTimeout, defaultIdleConnTimeout),
		ForceAttemptHTTP2:     true,
	}
}

// NewClient creates an *http.Client over NewTransport. The overall client
// timeout is the sum of the connect and response timeouts.
func NewClient(connTimeout, respTimeout time.Duration, pool config.PoolConfig) *http.Client {
	if connTimeout <= 0 {
		connTimeout = defaultConnTimeout
	}
	if respTimeout <= 0 {
		respTimeout = defaultRespTimeout
	}
	return &http.Client{
		Transport: NewTransport(connTimeout, respTimeout, pool),
		Timeout:   connTimeout + respTimeout,
	}
}

// NewProviderClient creates the client for a completion provider.
func NewProviderClient(cfg config.ProviderConfig) *http.Client {
	return NewClient(cfg.ConnTimeout, cfg.RespTimeout, cfg.Pool)
}

// ReadBody reads at most MaxResponseBody bytes and maps non-200 statuses
// through MapStatus.
func ReadBody(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, MapStatus(resp.StatusCode, body)
	}
	return body, nil
}

// maxErrorDetail bounds how much of an error body ends up in messages and logs.
const maxErrorDetail = 512

// MapStatus maps an HTTP status code and response body to a domain error so
// callers and the circuit breaker can classify remote failures.
func MapStatus(statusCode int, body []byte) error {
	if len(body) > maxErrorDetail {
		body = body[:maxErrorDetail]
	}
	detail := fmt.Sprintf("API error %d: %s", statusCode, body)

	switch {
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimit, detail)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrAuthInvalid, detail)
	case statusCode == http.StatusRequestEntityTooLarge:
		return fmt.Errorf("%w: %s", domain.ErrContextOverflow, detail)
	case statusCode >= 500:
		return fmt.Errorf("%w: %s", domain.ErrUpstream, detail)
	default:
		return fmt.Errorf("%w: %s", domain.ErrInvalidInput, detail)
	}
}

// Transport classifies a client.Do error: deadline expiry gains ErrTimeout.
func Transport(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	}
	return fmt.Errorf("http request: %w", err)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func orDefaultDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}
