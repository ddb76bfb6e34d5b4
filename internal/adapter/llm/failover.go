package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"voicebot/internal/domain"
)

var _ domain.LLMProvider = (*FailoverProvider)(nil)

// FailoverProvider wraps a primary provider with fallback providers.
// If the primary fails, it tries each fallback in order.
type FailoverProvider struct {
	primary   domain.LLMProvider
	fallbacks []domain.LLMProvider
	logger    *slog.Logger
}

// NewFailoverProvider creates a failover-capable provider.
func NewFailoverProvider(primary domain.LLMProvider, fallbacks []domain.LLMProvider, logger *slog.Logger) *FailoverProvider {
	return &FailoverProvider{
		primary:   primary,
		fallbacks: fallbacks,
		logger:    logger,
	}
}

// Chat tries the primary provider first, then each fallback on failure.
// A cancelled or expired context stops the chain immediately.
func (f *FailoverProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	resp, err := f.primary.Chat(ctx, req)
	if err == nil {
		return resp, nil
	}
	errs := []error{fmt.Errorf("%s: %w", f.primary.Name(), err)}

	for _, fb := range f.fallbacks {
		if ctx.Err() != nil {
			break
		}
		f.logger.Warn("llm provider failed, trying fallback",
			"failed", f.primary.Name(), "fallback", fb.Name(), "error", err)

		// Fallbacks bring their own default model.
		fbReq := req
		fbReq.Model = ""
		resp, err = fb.Chat(ctx, fbReq)
		if err == nil {
			f.logger.Info("failover succeeded", "provider", fb.Name())
			return resp, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", fb.Name(), err))
	}

	return nil, fmt.Errorf("all providers failed: %w", errors.Join(errs...))
}

// Name returns a composite name.
func (f *FailoverProvider) Name() string {
	return f.primary.Name() + "+failover"
}
