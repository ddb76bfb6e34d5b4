package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"google.golang.org/genai"

	"voicebot/internal/domain"
	"voicebot/internal/infra/config"
	"voicebot/internal/infra/tracer"
)

// Gemini content roles.
const (
	geminiRoleUser  = "user"
	geminiRoleModel = "model"
)

// GeminiClient is the slice of the genai SDK the provider uses.
type GeminiClient interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// SDKGeminiClient adapts *genai.Client to GeminiClient.
type SDKGeminiClient struct {
	client *genai.Client
}

// NewSDKGeminiClient dials the Gemini API with an API key.
func NewSDKGeminiClient(ctx context.Context, cfg config.ProviderConfig) (*SDKGeminiClient, error) {
	cc := &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &SDKGeminiClient{client: client}, nil
}

// GenerateContent calls the SDK's GenerateContent method.
func (c *SDKGeminiClient) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return c.client.Models.GenerateContent(ctx, model, contents, config)
}

// GeminiProvider implements domain.LLMProvider over the genai SDK.
type GeminiProvider struct {
	name   string
	model  string
	client GeminiClient
	logger *slog.Logger
}

// NewGeminiProvider creates a provider over client.
func NewGeminiProvider(cfg config.ProviderConfig, client GeminiClient, logger *slog.Logger) *GeminiProvider {
	return &GeminiProvider{
		name:   cfg.Name,
		model:  cfg.Model,
		client: client,
		logger: logger,
	}
}

// Chat implements domain.LLMProvider.
func (p *GeminiProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if req.Model == "" {
		req.Model = p.model
	}

	ctx, span := tracer.StartSpan(ctx, "llm.chat", chatSpanAttrs(p.name, req.Model, req))
	defer span.End()

	contents, system := toGeminiContents(req.Messages)
	gcfg, err := toGeminiConfig(req, system)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	resp, err := p.client.GenerateContent(ctx, req.Model, contents, gcfg)
	if err != nil {
		err = mapGeminiError(err)
		tracer.RecordError(span, err)
		return nil, err
	}

	result, err := fromGeminiResponse(resp, req.Model)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	setUsageAttrs(span, result.Usage)
	tracer.SetOK(span)
	logChatCompleted(p.logger, p.name, result)
	return result, nil
}

// Name implements domain.LLMProvider.
func (p *GeminiProvider) Name() string { return p.name }

// toGeminiContents maps the history onto Gemini contents. The system message
// moves to SystemInstruction and consecutive tool results share one content.
func toGeminiContents(msgs []domain.Message) ([]*genai.Content, *genai.Content) {
	var system *genai.Content
	contents := make([]*genai.Content, 0, len(msgs))

	for _, m := range msgs {
		switch m.Role {
		case domain.RoleSystem:
			if m.Content != "" {
				system = &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(m.Content)}}
			}
		case domain.RoleTool:
			part := &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					ID:       m.ToolCallID,
					Name:     m.Name,
					Response: map[string]any{"content": m.Content},
				},
			}
			if n := len(contents); n > 0 && isFunctionResponseContent(contents[n-1]) {
				contents[n-1].Parts = append(contents[n-1].Parts, part)
				continue
			}
			contents = append(contents, &genai.Content{Role: geminiRoleUser, Parts: []*genai.Part{part}})
		case domain.RoleAssistant:
			parts := make([]*genai.Part, 0, 1+len(m.ToolCalls))
			if m.Content != "" {
				parts = append(parts, genai.NewPartFromText(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var args map[string]any
				_ = json.Unmarshal(tc.Arguments, &args)
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Name, Args: args},
				})
			}
			if len(parts) > 0 {
				contents = append(contents, &genai.Content{Role: geminiRoleModel, Parts: parts})
			}
		default:
			if m.Content != "" {
				contents = append(contents, &genai.Content{
					Role:  geminiRoleUser,
					Parts: []*genai.Part{genai.NewPartFromText(m.Content)},
				})
			}
		}
	}
	return contents, system
}

func isFunctionResponseContent(c *genai.Content) bool {
	if c.Role != geminiRoleUser || len(c.Parts) == 0 {
		return false
	}
	for _, p := range c.Parts {
		if p.FunctionResponse == nil {
			return false
		}
	}
	return true
}

func toGeminiConfig(req domain.ChatRequest, system *genai.Content) (*genai.GenerateContentConfig, error) {
	gcfg := &genai.GenerateContentConfig{SystemInstruction: system}
	if req.MaxTokens > 0 {
		gcfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		t := float32(req.Temperature)
		gcfg.Temperature = &t
	}
	if len(req.Tools) == 0 {
		return gcfg, nil
	}

	decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
	for _, t := range req.Tools {
		schema, err := toGeminiSchema(t.Parameters)
		if err != nil {
			return nil, fmt.Errorf("tool %q: %w", t.Name, err)
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  schema,
		})
	}
	gcfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}

	mode := genai.FunctionCallingConfigModeAuto
	if req.ToolChoice == domain.ToolChoiceNone {
		mode = genai.FunctionCallingConfigModeNone
	}
	gcfg.ToolConfig = &genai.ToolConfig{
		FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: mode},
	}
	return gcfg, nil
}

// jsonSchemaObject is the subset of JSON Schema our tool declarations use.
type jsonSchemaObject struct {
	Type        string                      `json:"type"`
	Description string                      `json:"description"`
	Properties  map[string]jsonSchemaObject `json:"properties"`
	Required    []string                    `json:"required"`
	Enum        []string                    `json:"enum"`
}

// toGeminiSchema converts a JSON Schema document to a genai.Schema.
// Gemini declarations with no parameters carry a nil schema.
func toGeminiSchema(raw json.RawMessage) (*genai.Schema, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var js jsonSchemaObject
	if err := json.Unmarshal(raw, &js); err != nil {
		return nil, fmt.Errorf("parse parameters: %w", err)
	}
	if len(js.Properties) == 0 {
		return nil, nil
	}
	return convertSchema(js), nil
}

func convertSchema(js jsonSchemaObject) *genai.Schema {
	s := &genai.Schema{
		Type:        toGeminiType(js.Type),
		Description: js.Description,
		Required:    js.Required,
		Enum:        js.Enum,
	}
	if len(js.Properties) > 0 {
		s.Properties = make(map[string]*genai.Schema, len(js.Properties))
		for name, prop := range js.Properties {
			s.Properties[name] = convertSchema(prop)
		}
	}
	return s
}

func toGeminiType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	default:
		return genai.TypeObject
	}
}

func fromGeminiResponse(resp *genai.GenerateContentResponse, model string) (*domain.ChatResponse, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidates in response", domain.ErrUpstream)
	}
	cand := resp.Candidates[0]
	if cand.FinishReason == genai.FinishReasonSafety {
		return nil, fmt.Errorf("%w: content blocked by safety filters", domain.ErrInvalidInput)
	}

	now := time.Now()
	msg := domain.Message{Role: domain.RoleAssistant, Timestamp: now}
	if cand.Content != nil {
		var text strings.Builder
		for _, part := range cand.Content.Parts {
			if part.Text != "" {
				text.WriteString(part.Text)
			}
			if fc := part.FunctionCall; fc != nil {
				args, err := json.Marshal(fc.Args)
				if err != nil || fc.Args == nil {
					args = []byte("{}")
				}
				id := fc.ID
				if id == "" {
					// Older models omit call IDs. The generated one stays unique
					// across the whole session history.
					id = "gemini-call-" + ulid.Make().String()
				}
				msg.ToolCalls = append(msg.ToolCalls, domain.ToolCall{ID: id, Name: fc.Name, Arguments: args})
			}
		}
		msg.Content = text.String()
	}

	result := &domain.ChatResponse{
		ID:        resp.ResponseID,
		Model:     model,
		Message:   msg,
		CreatedAt: now,
	}
	if u := resp.UsageMetadata; u != nil {
		result.Usage = domain.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return result, nil
}

// mapGeminiError maps SDK API errors onto the status-derived domain errors.
func mapGeminiError(err error) error {
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErrPtr):
		apiErr = *apiErrPtr
	case errors.As(err, &apiErr):
	default:
		return fmt.Errorf("gemini: %w", err)
	}
	switch {
	case apiErr.Code == 429:
		return fmt.Errorf("%w: gemini: %s", domain.ErrRateLimit, apiErr.Message)
	case apiErr.Code == 401 || apiErr.Code == 403:
		return fmt.Errorf("%w: gemini: %s", domain.ErrAuthInvalid, apiErr.Message)
	case apiErr.Code >= 500:
		return fmt.Errorf("%w: gemini: %s", domain.ErrUpstream, apiErr.Message)
	default:
		return fmt.Errorf("%w: gemini %d: %s", domain.ErrInvalidInput, apiErr.Code, apiErr.Message)
	}
}
