package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	EventTurnStarted       EventType = "turn.started"
	EventTurnCompleted     EventType = "turn.completed"
	EventTurnFailed        EventType = "turn.failed"
	EventLLMCallStarted    EventType = "llm.call.started"
	EventLLMCallCompleted  EventType = "llm.call.completed"
	EventToolCallStarted   EventType = "tool.call.started"
	EventToolCallCompleted EventType = "tool.call.completed"
	EventSessionCreated    EventType = "session.created"
	EventSessionReaped     EventType = "session.reaped"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	SessionID string          `json:"session_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for domain events.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains in-flight handlers and prevents new publishes.
	Close()
}

// ToolCallPayload is the payload of tool.call.* events.
type ToolCallPayload struct {
	CallID   string `json:"call_id"`
	Name     string `json:"name"`
	IsError  bool   `json:"is_error,omitempty"`
	Duration int64  `json:"duration_ms,omitempty"`
}

// LLMCallPayload is the payload of llm.call.* events.
type LLMCallPayload struct {
	Provider   string     `json:"provider"`
	Round      int        `json:"round"`
	ToolChoice ToolChoice `json:"tool_choice"`
	ToolCalls  int        `json:"tool_calls,omitempty"`
	Tokens     int        `json:"tokens,omitempty"`
}

// TurnPayload is the payload of turn.* events.
type TurnPayload struct {
	ToolRounds int    `json:"tool_rounds"`
	Appended   int    `json:"appended,omitempty"`
	Error      string `json:"error,omitempty"`
}
