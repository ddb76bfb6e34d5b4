package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"voicebot/internal/domain"
)

// --- Mocks ---

// mockLLM replays scripted replies and records every request it receives.
type mockLLM struct {
	mu       sync.Mutex
	replies  []llmReply
	requests []domain.ChatRequest
	latency  time.Duration
}

type llmReply struct {
	msg domain.Message
	err error
}

func textReply(s string) llmReply {
	return llmReply{msg: domain.Message{Role: domain.RoleAssistant, Content: s}}
}

func callsReply(calls ...domain.ToolCall) llmReply {
	return llmReply{msg: domain.Message{Role: domain.RoleAssistant, ToolCalls: calls}}
}

func errReply(err error) llmReply { return llmReply{err: err} }

func (m *mockLLM) Chat(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if m.latency > 0 {
		defer time.Sleep(m.latency)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := req
	cp.Messages = append([]domain.Message(nil), req.Messages...)
	m.requests = append(m.requests, cp)

	idx := len(m.requests) - 1
	if idx >= len(m.replies) {
		return &domain.ChatResponse{Message: domain.Message{Role: domain.RoleAssistant, Content: "fallback"}}, nil
	}
	r := m.replies[idx]
	if r.err != nil {
		return nil, r.err
	}
	return &domain.ChatResponse{Model: "mock-model", Message: r.msg, Usage: domain.Usage{TotalTokens: 10}}, nil
}

func (m *mockLLM) Name() string { return "mock" }

func (m *mockLLM) calls() []domain.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ChatRequest(nil), m.requests...)
}

type mockToolExecutor struct {
	tools map[string]domain.Tool
}

func newToolExecutor(tools ...domain.Tool) *mockToolExecutor {
	m := &mockToolExecutor{tools: make(map[string]domain.Tool)}
	for _, t := range tools {
		m.tools[t.Name()] = t
	}
	return m
}

func (m *mockToolExecutor) Get(name string) (domain.Tool, error) {
	t, ok := m.tools[name]
	if !ok {
		return nil, domain.ErrToolNotFound
	}
	return t, nil
}

func (m *mockToolExecutor) Schemas() []domain.ToolSchema {
	schemas := make([]domain.ToolSchema, 0, len(m.tools))
	for _, t := range m.tools {
		schemas = append(schemas, t.Schema())
	}
	return schemas
}

// staticTool returns a fixed result after an optional delay.
type staticTool struct {
	name   string
	result string
	delay  time.Duration

	mu   sync.Mutex
	args []json.RawMessage
}

func (t *staticTool) Name() string        { return t.name }
func (t *staticTool) Description() string { return "static test tool" }
func (t *staticTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{Name: t.name, Description: t.Description(), Parameters: json.RawMessage(`{"type":"object"}`), Strict: true}
}
func (t *staticTool) Execute(_ context.Context, args json.RawMessage) (*domain.ToolResult, error) {
	if t.delay > 0 {
		time.Sleep(t.delay)
	}
	t.mu.Lock()
	t.args = append(t.args, args)
	t.mu.Unlock()
	return &domain.ToolResult{Content: t.result}, nil
}

// errorTool breaks the never-return-an-error contract.
type errorTool struct{ name string }

func (t *errorTool) Name() string              { return t.name }
func (t *errorTool) Description() string       { return "error test tool" }
func (t *errorTool) Schema() domain.ToolSchema { return domain.ToolSchema{Name: t.name} }
func (t *errorTool) Execute(_ context.Context, _ json.RawMessage) (*domain.ToolResult, error) {
	return nil, fmt.Errorf("socket closed")
}

type panicTool struct{ name string }

func (t *panicTool) Name() string              { return t.name }
func (t *panicTool) Description() string       { return "panicking test tool" }
func (t *panicTool) Schema() domain.ToolSchema { return domain.ToolSchema{Name: t.name} }
func (t *panicTool) Execute(_ context.Context, _ json.RawMessage) (*domain.ToolResult, error) {
	panic("nil map write")
}

type mockTranscriber struct {
	text string
	err  error
}

func (m *mockTranscriber) Transcribe(_ context.Context, _ domain.AudioClip) (string, error) {
	return m.text, m.err
}
func (m *mockTranscriber) Name() string { return "mock-stt" }

type mockSynthesizer struct {
	mu    sync.Mutex
	err   error
	texts []string
}

func (m *mockSynthesizer) Synthesize(_ context.Context, text string) (domain.AudioClip, error) {
	m.mu.Lock()
	m.texts = append(m.texts, text)
	m.mu.Unlock()
	if m.err != nil {
		return domain.AudioClip{}, m.err
	}
	return domain.AudioClip{Data: []byte("mp3:" + text), Format: domain.AudioFormatMP3}, nil
}
func (m *mockSynthesizer) Name() string { return "mock-tts" }
