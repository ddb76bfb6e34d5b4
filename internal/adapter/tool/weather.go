package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"voicebot/internal/domain"
	"voicebot/internal/infra/config"
	"voicebot/internal/infra/tracer"
)

var weatherShape = mustCompileShape(`{
	"type": "object",
	"required": ["current_weather"],
	"properties": {
		"current_weather": {
			"type": "object",
			"required": ["temperature"],
			"properties": {"temperature": {"type": "number"}}
		}
	}
}`)

// WeatherTool reports the current temperature at the configured coordinate.
// The location argument only labels the answer; it does not move the query.
type WeatherTool struct {
	client  *http.Client
	cfg     config.ToolsConfig
	limiter *RateLimiter
	logger  *slog.Logger
}

type weatherParams struct {
	Location string `json:"location"`
}

// NewWeatherTool creates the get_weather tool.
func NewWeatherTool(cfg config.ToolsConfig, client *http.Client, limiter *RateLimiter, logger *slog.Logger) *WeatherTool {
	return &WeatherTool{client: client, cfg: cfg, limiter: limiter, logger: logger}
}

func (t *WeatherTool) Name() string        { return "get_weather" }
func (t *WeatherTool) Description() string { return weatherDescription }

func (t *WeatherTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"location": {"type": "string"}
			},
			"required": ["location"],
			"additionalProperties": false
		}`),
		Strict: true,
	}
}

func (t *WeatherTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.get_weather", t.logger, params, weatherFailure,
		func(ctx context.Context, span trace.Span, p weatherParams) (string, error) {
			span.SetAttributes(tracer.StringAttr("tool.location", p.Location))
			if !t.limiter.Allow() {
				return "", errThrottled
			}

			ctx, cancel := withTimeout(ctx, t.cfg.Timeout)
			defer cancel()

			data, err := fetchJSON(ctx, t.client, t.forecastURL(), weatherShape)
			if err != nil {
				return "", err
			}
			current, _ := data["current_weather"].(map[string]any)
			return fmt.Sprintf(weatherFormat, p.Location, fmt.Sprint(current["temperature"])), nil
		},
	)
}

func (t *WeatherTool) forecastURL() string {
	w := t.cfg.Weather
	return fmt.Sprintf("%s?latitude=%s&longitude=%s&current_weather=true",
		strings.TrimRight(w.BaseURL, "/"),
		strconv.FormatFloat(w.Latitude, 'f', -1, 64),
		strconv.FormatFloat(w.Longitude, 'f', -1, 64),
	)
}
