package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"voicebot/internal/domain"
	"voicebot/internal/infra/config"
	"voicebot/internal/infra/tracer"
)

var exchangeShape = mustCompileShape(`{
	"type": "object",
	"required": ["rates"],
	"properties": {
		"rates": {"type": "object"}
	}
}`)

// ExchangeRateTool quotes the configured currency pair (USD to KRW by default).
type ExchangeRateTool struct {
	client  *http.Client
	cfg     config.ToolsConfig
	limiter *RateLimiter
	logger  *slog.Logger
}

type exchangeParams struct{}

// NewExchangeRateTool creates the get_exchange_rate tool.
func NewExchangeRateTool(cfg config.ToolsConfig, client *http.Client, limiter *RateLimiter, logger *slog.Logger) *ExchangeRateTool {
	return &ExchangeRateTool{client: client, cfg: cfg, limiter: limiter, logger: logger}
}

func (t *ExchangeRateTool) Name() string        { return "get_exchange_rate" }
func (t *ExchangeRateTool) Description() string { return exchangeDescription }

func (t *ExchangeRateTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {},
			"additionalProperties": false
		}`),
		Strict: true,
	}
}

func (t *ExchangeRateTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.get_exchange_rate", t.logger, params, exchangeFailure,
		func(ctx context.Context, span trace.Span, _ exchangeParams) (string, error) {
			ex := t.cfg.Exchange
			span.SetAttributes(
				tracer.StringAttr("exchange.base", ex.Base),
				tracer.StringAttr("exchange.target", ex.Target),
			)
			if !t.limiter.Allow() {
				return "", errThrottled
			}

			ctx, cancel := withTimeout(ctx, t.cfg.Timeout)
			defer cancel()

			endpoint := strings.TrimRight(ex.BaseURL, "/") + "/" + url.PathEscape(ex.Base)
			data, err := fetchJSON(ctx, t.client, endpoint, exchangeShape)
			if err != nil {
				return "", err
			}

			rate := exchangeUnknown
			rates, _ := data["rates"].(map[string]any)
			if v, ok := rates[ex.Target]; ok && v != nil {
				rate = fmt.Sprint(v)
			}
			return fmt.Sprintf(exchangeFormat, rate), nil
		},
	)
}
