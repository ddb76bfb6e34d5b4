package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"voicebot/internal/domain"
	"voicebot/internal/infra/config"
)

// CircuitBreakerProvider fails dialogue requests fast once a provider has
// failed MaxFailures times in a row, so a dead backend does not hold every
// voice turn until its timeout.
type CircuitBreakerProvider struct {
	inner   domain.LLMProvider
	breaker *gobreaker.CircuitBreaker[*domain.ChatResponse]
}

// NewCircuitBreakerProvider wraps inner. Zero fields in cfg take defaults
// (5 failures, 30s open, 60s counting interval).
func NewCircuitBreakerProvider(inner domain.LLMProvider, cfg config.CircuitBreakerConfig, logger *slog.Logger) *CircuitBreakerProvider {
	return &CircuitBreakerProvider{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker[*domain.ChatResponse](breakerSettings(inner.Name(), cfg, logger)),
	}
}

func breakerSettings(provider string, cfg config.CircuitBreakerConfig, logger *slog.Logger) gobreaker.Settings {
	trip := orDefault(cfg.MaxFailures, 5)
	return gobreaker.Settings{
		Name:        "llm:" + provider,
		MaxRequests: 1,
		Interval:    orDefault(cfg.Interval, 60*time.Second),
		Timeout:     orDefault(cfg.Timeout, 30*time.Second),
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= trip },
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("llm breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: providerHealthy,
	}
}

// providerHealthy reports whether err leaves the provider's health intact.
// Bad requests, oversized histories and caller cancellation are not the
// provider's fault.
func providerHealthy(err error) bool {
	switch {
	case err == nil,
		errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrContextOverflow),
		errors.Is(err, context.Canceled):
		return true
	}
	return false
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

// Chat implements domain.LLMProvider.
func (p *CircuitBreakerProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	resp, err := p.breaker.Execute(func() (*domain.ChatResponse, error) {
		return p.inner.Chat(ctx, req)
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, fmt.Errorf("provider %q circuit open: %w: %w", p.inner.Name(), domain.ErrUpstream, err)
	case err != nil:
		return nil, err
	}
	return resp, nil
}

// Name implements domain.LLMProvider.
func (p *CircuitBreakerProvider) Name() string { return p.inner.Name() }

// State exposes the breaker state.
func (p *CircuitBreakerProvider) State() gobreaker.State { return p.breaker.State() }

var _ domain.LLMProvider = (*CircuitBreakerProvider)(nil)
