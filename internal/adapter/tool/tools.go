package tool

import (
	"context"
	"log/slog"
	"time"

	"voicebot/internal/domain"
	"voicebot/internal/infra/config"
	"voicebot/internal/infra/httpx"
)

// NewLookupRegistry builds the registry with get_weather and get_exchange_rate
// sharing one HTTP client and one call budget.
func NewLookupRegistry(cfg config.ToolsConfig, logger *slog.Logger) (*Registry, error) {
	client := httpx.NewClient(cfg.Timeout, cfg.Timeout, config.PoolConfig{})
	limiter := NewRateLimiter(cfg.MaxCallsPerMinute, time.Minute)
	return NewRegistry(
		NewWeatherTool(cfg, client, limiter, logger),
		NewExchangeRateTool(cfg, client, limiter, logger),
	)
}

// withTimeout bounds one lookup. A zero timeout leaves ctx as is.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

var (
	_ domain.Tool         = (*WeatherTool)(nil)
	_ domain.Tool         = (*ExchangeRateTool)(nil)
	_ domain.Tool         = (*SchemaValidatingTool)(nil)
	_ domain.ToolExecutor = (*Registry)(nil)
)
