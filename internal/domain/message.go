package domain

import "time"

// Role constants for message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message represents a single message in a conversation.
//
// Content is empty on an assistant message that only requests tool calls.
// Tool-result messages carry the ToolCallID they answer and the tool Name.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// ToolChoice controls whether the completion service may request tool calls.
type ToolChoice string

const (
	// ToolChoiceAuto lets the service decide whether a reply needs a tool.
	ToolChoiceAuto ToolChoice = "auto"
	// ToolChoiceNone keeps tool declarations visible but forbids new calls.
	ToolChoiceNone ToolChoice = "none"
)

// ChatRequest is sent to an LLM provider.
type ChatRequest struct {
	Model       string       `json:"model"`
	Messages    []Message    `json:"messages"`
	Tools       []ToolSchema `json:"tools,omitempty"`
	ToolChoice  ToolChoice   `json:"tool_choice,omitempty"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature float64      `json:"temperature,omitempty"`
}

// ChatResponse is returned from an LLM provider.
type ChatResponse struct {
	ID        string    `json:"id"`
	Model     string    `json:"model"`
	Message   Message   `json:"message"`
	Usage     Usage     `json:"usage"`
	CreatedAt time.Time `json:"created_at"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// NewSystemMessage returns the instruction message that seeds every history.
func NewSystemMessage(prompt string) Message {
	return Message{Role: RoleSystem, Content: prompt, Timestamp: time.Now()}
}
