package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"voicebot/internal/domain"
	"voicebot/internal/infra/config"
	"voicebot/internal/infra/logger"
)

type mockGeminiClient struct {
	generate func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

func (m *mockGeminiClient) GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	if m.generate == nil {
		return nil, errors.New("generate not set")
	}
	return m.generate(ctx, model, contents, cfg)
}

func newTestGemini(client GeminiClient) *GeminiProvider {
	return NewGeminiProvider(config.ProviderConfig{Name: "gemini", Model: "gemini-2.0-flash"}, client, logger.Discard())
}

func TestGeminiChatText(t *testing.T) {
	client := &mockGeminiClient{generate: func(_ context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		assert.Equal(t, "gemini-2.0-flash", model)
		require.NotNil(t, cfg.SystemInstruction)
		assert.Equal(t, "sys", cfg.SystemInstruction.Parts[0].Text)
		require.Len(t, contents, 1, "system message is not part of contents")
		assert.Equal(t, "user", contents[0].Role)
		assert.Nil(t, cfg.ToolConfig)

		return &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{
				Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: "안녕"}, {Text: "하세요"}}},
			}},
			UsageMetadata: &genai.GenerateContentResponseUsageMetadata{TotalTokenCount: 12},
		}, nil
	}}

	resp, err := newTestGemini(client).Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: "sys"},
			{Role: domain.RoleUser, Content: "Hello"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "안녕하세요", resp.Message.Content)
	assert.Equal(t, 12, resp.Usage.TotalTokens)
}

func TestGeminiChatToolCallsAndMode(t *testing.T) {
	var gotCfg *genai.GenerateContentConfig
	client := &mockGeminiClient{generate: func(_ context.Context, _ string, _ []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		gotCfg = cfg
		return &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{
				Content: &genai.Content{Role: "model", Parts: []*genai.Part{
					{FunctionCall: &genai.FunctionCall{Name: "get_weather", Args: map[string]any{"location": "Seoul"}}},
					{FunctionCall: &genai.FunctionCall{ID: "fc-2", Name: "get_exchange_rate"}},
				}},
			}},
		}, nil
	}}

	resp, err := newTestGemini(client).Chat(context.Background(), domain.ChatRequest{
		Messages:   []domain.Message{{Role: domain.RoleUser, Content: "?"}},
		Tools:      []domain.ToolSchema{weatherSchema, {Name: "get_exchange_rate", Parameters: json.RawMessage(`{"type":"object","properties":{}}`)}},
		ToolChoice: domain.ToolChoiceAuto,
	})
	require.NoError(t, err)

	require.NotNil(t, gotCfg.ToolConfig)
	assert.Equal(t, genai.FunctionCallingConfigModeAuto, gotCfg.ToolConfig.FunctionCallingConfig.Mode)
	require.Len(t, gotCfg.Tools, 1)
	decls := gotCfg.Tools[0].FunctionDeclarations
	require.Len(t, decls, 2)
	require.NotNil(t, decls[0].Parameters)
	assert.Equal(t, genai.TypeString, decls[0].Parameters.Properties["location"].Type)
	assert.Equal(t, []string{"location"}, decls[0].Parameters.Required)
	assert.Nil(t, decls[1].Parameters)

	require.Len(t, resp.Message.ToolCalls, 2)
	assert.True(t, strings.HasPrefix(resp.Message.ToolCalls[0].ID, "gemini-call-"))
	assert.JSONEq(t, `{"location":"Seoul"}`, string(resp.Message.ToolCalls[0].Arguments))
	assert.Equal(t, "fc-2", resp.Message.ToolCalls[1].ID)
	assert.JSONEq(t, `{}`, string(resp.Message.ToolCalls[1].Arguments))
}

func TestGeminiToolChoiceNone(t *testing.T) {
	cfg, err := toGeminiConfig(domain.ChatRequest{
		Tools:      []domain.ToolSchema{weatherSchema},
		ToolChoice: domain.ToolChoiceNone,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, genai.FunctionCallingConfigModeNone, cfg.ToolConfig.FunctionCallingConfig.Mode)
}

func TestToGeminiContentsGroupsToolResults(t *testing.T) {
	contents, system := toGeminiContents([]domain.Message{
		{Role: domain.RoleSystem, Content: "sys"},
		{Role: domain.RoleUser, Content: "둘 다 알려줘"},
		{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{
			{ID: "a", Name: "get_weather", Arguments: json.RawMessage(`{"location":"Seoul"}`)},
			{ID: "b", Name: "get_exchange_rate", Arguments: json.RawMessage(`{}`)},
		}},
		{Role: domain.RoleTool, ToolCallID: "a", Name: "get_weather", Content: "w"},
		{Role: domain.RoleTool, ToolCallID: "b", Name: "get_exchange_rate", Content: "r"},
	})

	require.NotNil(t, system)
	require.Len(t, contents, 3)
	assert.Equal(t, "model", contents[1].Role)
	require.Len(t, contents[1].Parts, 2)
	assert.Equal(t, "Seoul", contents[1].Parts[0].FunctionCall.Args["location"])

	results := contents[2]
	assert.Equal(t, "user", results.Role)
	require.Len(t, results.Parts, 2)
	assert.Equal(t, "get_weather", results.Parts[0].FunctionResponse.Name)
	assert.Equal(t, "r", results.Parts[1].FunctionResponse.Response["content"])
}

func TestGeminiErrors(t *testing.T) {
	t.Run("no candidates", func(t *testing.T) {
		client := &mockGeminiClient{generate: func(context.Context, string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			return &genai.GenerateContentResponse{}, nil
		}}
		_, err := newTestGemini(client).Chat(context.Background(), domain.ChatRequest{})
		assert.ErrorIs(t, err, domain.ErrUpstream)
	})

	t.Run("safety", func(t *testing.T) {
		client := &mockGeminiClient{generate: func(context.Context, string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}}}, nil
		}}
		_, err := newTestGemini(client).Chat(context.Background(), domain.ChatRequest{})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("transport", func(t *testing.T) {
		_, err := newTestGemini(&mockGeminiClient{}).Chat(context.Background(), domain.ChatRequest{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "gemini: generate not set")
	})

	t.Run("bad schema", func(t *testing.T) {
		_, err := newTestGemini(&mockGeminiClient{}).Chat(context.Background(), domain.ChatRequest{
			Tools: []domain.ToolSchema{{Name: "broken", Parameters: json.RawMessage(`[`)}},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), `tool "broken"`)
	})
}

func TestGeminiGeneratedCallIDsUniqueAcrossResponses(t *testing.T) {
	client := &mockGeminiClient{generate: func(context.Context, string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		return &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{
				Content: &genai.Content{Role: "model", Parts: []*genai.Part{
					{FunctionCall: &genai.FunctionCall{Name: "get_weather"}},
					{FunctionCall: &genai.FunctionCall{Name: "get_exchange_rate"}},
				}},
			}},
		}, nil
	}}
	p := newTestGemini(client)

	seen := map[string]bool{}
	for range 2 {
		resp, err := p.Chat(context.Background(), domain.ChatRequest{
			Messages: []domain.Message{{Role: domain.RoleUser, Content: "?"}},
		})
		require.NoError(t, err)
		require.Len(t, resp.Message.ToolCalls, 2)
		for _, tc := range resp.Message.ToolCalls {
			assert.False(t, seen[tc.ID], "duplicate call id %s", tc.ID)
			seen[tc.ID] = true
		}
	}
	assert.Len(t, seen, 4)
}
