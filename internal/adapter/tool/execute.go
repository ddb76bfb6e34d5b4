package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"voicebot/internal/domain"
	"voicebot/internal/infra/tracer"
)

// Execute is the standard tool pipeline: decode args -> start span -> run
// handler -> wrap text. Any handler error is logged and replaced by the
// tool's fixed failure text, so Execute never returns a Go error to the
// orchestrator.
func Execute[P any](
	ctx context.Context,
	spanName string,
	logger *slog.Logger,
	rawParams json.RawMessage,
	failure string,
	handler func(ctx context.Context, span trace.Span, params P) (string, error),
) (*domain.ToolResult, error) {
	ctx, span := tracer.StartSpan(ctx, spanName,
		trace.WithAttributes(tracer.StringAttr("tool.name", spanName)),
	)
	defer span.End()

	p, err := decodeArgs[P](rawParams)
	if err != nil {
		tracer.RecordError(span, domain.Kind(domain.ErrValidation, err))
		return invalidArgs(err.Error()), nil
	}

	text, err := handler(ctx, span, p)
	if err != nil {
		err = domain.Kind(domain.ErrToolExecution, err)
		tracer.RecordError(span, err)
		logger.Warn(spanName+" failed", "error", err)
		return &domain.ToolResult{IsError: true, Content: failure}, nil
	}

	tracer.SetOK(span)
	return &domain.ToolResult{Content: text}, nil
}

// errThrottled is returned by handlers when the shared limiter refuses a call.
var errThrottled = fmt.Errorf("%w: tool call budget exhausted", domain.ErrRateLimit)
