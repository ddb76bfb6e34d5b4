package llm

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"voicebot/internal/domain"
	"voicebot/internal/infra/httpx"
	"voicebot/internal/infra/tracer"
)

// doJSONRequest POSTs body as JSON and returns the response body.
// Non-200 responses become domain errors via httpx.MapStatus.
func doJSONRequest(ctx context.Context, client *http.Client, url string, body []byte, headers map[string]string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, httpx.Transport(err)
	}
	defer httpResp.Body.Close()

	return httpx.ReadBody(httpResp)
}

// logChatCompleted logs the standard debug message after a successful chat.
func logChatCompleted(logger *slog.Logger, providerName string, result *domain.ChatResponse) {
	logger.Debug("llm chat completed",
		"provider", providerName,
		"model", result.Model,
		"tokens", result.Usage.TotalTokens,
		"tool_calls", len(result.Message.ToolCalls),
	)
}

// setUsageAttrs adds token usage attributes to a trace span.
func setUsageAttrs(span trace.Span, usage domain.Usage) {
	span.SetAttributes(
		tracer.IntAttr("llm.prompt_tokens", usage.PromptTokens),
		tracer.IntAttr("llm.completion_tokens", usage.CompletionTokens),
	)
}

func chatSpanAttrs(provider, model string, req domain.ChatRequest) trace.SpanStartOption {
	return trace.WithAttributes(
		tracer.StringAttr("llm.provider", provider),
		tracer.StringAttr("llm.model", model),
		tracer.StringAttr("llm.tool_choice", string(req.ToolChoice)),
		tracer.IntAttr("llm.messages", len(req.Messages)),
	)
}
