package llm

import (
	"context"

	"voicebot/internal/domain"
)

type mockProvider struct {
	name     string
	calls    int
	chatFunc func(context.Context, domain.ChatRequest) (*domain.ChatResponse, error)
}

func (m *mockProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	m.calls++
	return m.chatFunc(ctx, req)
}

func (m *mockProvider) Name() string { return m.name }

func okProvider(name, text string) *mockProvider {
	return &mockProvider{
		name: name,
		chatFunc: func(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
			return &domain.ChatResponse{Message: domain.Message{Role: domain.RoleAssistant, Content: text}}, nil
		},
	}
}

func failingProvider(name string, err error) *mockProvider {
	return &mockProvider{
		name: name,
		chatFunc: func(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
			return nil, err
		},
	}
}
