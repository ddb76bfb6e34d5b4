package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"voicebot/internal/domain"
	"voicebot/internal/infra/tracer"
	"voicebot/internal/usecase/eventbus"
)

// Tool-result texts used when no tool produced one.
const (
	toolNotFoundText = "기능을 찾을 수 없습니다."
	toolFailureText  = "도구 실행 중 오류가 발생했습니다."
)

// OrchestratorDeps holds injected dependencies for the orchestrator.
type OrchestratorDeps struct {
	LLM         domain.LLMProvider
	Tools       domain.ToolExecutor
	Logger      *slog.Logger
	Bus         domain.EventBus // optional, nil = no events
	Locker      *SessionLocker  // optional, nil = no session locking
	MaxTokens   int
	Temperature float64
	TurnTimeout time.Duration // zero = bounded by the caller's ctx only
}

// Orchestrator runs one tool-augmented dialogue turn: dispatch with tools
// on auto, run at most one round of requested tools, then dispatch once more
// with tool selection disabled.
type Orchestrator struct {
	deps OrchestratorDeps
	now  func() time.Time
}

// NewOrchestrator creates an orchestrator with the given dependencies.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	if deps.Locker == nil {
		deps.Locker = NewSessionLocker()
	}
	return &Orchestrator{deps: deps, now: time.Now}
}

// Submit appends utterance to the session, runs the turn and returns the
// final answer. The turn is staged on a copy of the history and committed
// only when it completes, so a failed turn leaves the session untouched
// and can be retried.
func (o *Orchestrator) Submit(ctx context.Context, session *Session, utterance string) (string, error) {
	unlock, err := o.lock(ctx, session)
	if err != nil {
		return "", err
	}
	defer unlock()
	return o.submitLocked(ctx, session, utterance)
}

func (o *Orchestrator) lock(ctx context.Context, session *Session) (func(), error) {
	unlock, err := o.deps.Locker.Lock(ctx, session.ID)
	if err != nil {
		return nil, domain.NewDomainError("Orchestrator.Submit", domain.Kind(domain.ErrSessionBusy, err), session.ID)
	}
	return unlock, nil
}

// submitLocked runs a turn. The caller holds the session lock.
func (o *Orchestrator) submitLocked(ctx context.Context, session *Session, utterance string) (string, error) {
	if o.deps.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.deps.TurnTimeout)
		defer cancel()
	}
	ctx = domain.ContextWithSessionID(ctx, session.ID)

	ctx, span := tracer.StartSpan(ctx, "dialogue.submit",
		trace.WithAttributes(tracer.StringAttr("session.id", session.ID)),
	)
	defer span.End()

	o.publish(ctx, domain.EventTurnStarted, session.ID, nil)

	history := session.Messages()
	base := len(history)
	staged := append(history, domain.Message{
		Role:      domain.RoleUser,
		Content:   utterance,
		Timestamp: o.now(),
	})

	text, updated, rounds, err := o.run(ctx, session.ID, staged)
	if err != nil {
		tracer.RecordError(span, err)
		o.deps.Logger.Warn("turn failed", "session", session.ID, "error", err)
		o.publish(ctx, domain.EventTurnFailed, session.ID, domain.TurnPayload{ToolRounds: rounds, Error: err.Error()})
		return "", err
	}

	appended := updated[base:]
	session.commit(appended)

	span.SetAttributes(
		tracer.IntAttr("dialogue.tool_rounds", rounds),
		tracer.IntAttr("dialogue.appended", len(appended)),
	)
	tracer.SetOK(span)
	o.publish(ctx, domain.EventTurnCompleted, session.ID, domain.TurnPayload{ToolRounds: rounds, Appended: len(appended)})
	return text, nil
}

// Dispatch runs a turn over a bare history whose last message is the user's.
// The input slice is not modified; the returned history extends a copy of it.
func (o *Orchestrator) Dispatch(ctx context.Context, history []domain.Message) (string, []domain.Message, error) {
	staged := make([]domain.Message, len(history), len(history)+4)
	copy(staged, history)
	text, updated, _, err := o.run(ctx, domain.SessionIDFromContext(ctx), staged)
	if err != nil {
		return "", nil, err
	}
	return text, updated, nil
}

// run is the turn state machine. It only appends to working.
func (o *Orchestrator) run(ctx context.Context, sessionID string, working []domain.Message) (string, []domain.Message, int, error) {
	resp, err := o.dispatch(ctx, sessionID, working, domain.ToolChoiceAuto, 1)
	if err != nil {
		return "", nil, 0, err
	}

	reply := resp.Message
	if len(reply.ToolCalls) == 0 {
		working = append(working, o.assistant(reply.Content))
		return reply.Content, working, 0, nil
	}

	working = append(working, domain.Message{
		Role:      domain.RoleAssistant,
		ToolCalls: reply.ToolCalls,
		Timestamp: o.now(),
	})
	working = append(working, o.executeAll(ctx, sessionID, reply.ToolCalls)...)

	final, err := o.dispatch(ctx, sessionID, working, domain.ToolChoiceNone, 2)
	if err != nil {
		return "", nil, 1, err
	}
	if n := len(final.Message.ToolCalls); n > 0 {
		o.deps.Logger.Warn("ignoring tool calls on follow-up dispatch",
			"session", sessionID,
			"tool_calls", n,
		)
	}
	working = append(working, o.assistant(final.Message.Content))
	return final.Message.Content, working, 1, nil
}

func (o *Orchestrator) assistant(content string) domain.Message {
	return domain.Message{Role: domain.RoleAssistant, Content: content, Timestamp: o.now()}
}

// dispatch sends one completion request. Failures wrap ErrDialogueService.
func (o *Orchestrator) dispatch(ctx context.Context, sessionID string, msgs []domain.Message, choice domain.ToolChoice, round int) (*domain.ChatResponse, error) {
	ctx, span := tracer.StartSpan(ctx, "dialogue.dispatch",
		trace.WithAttributes(
			tracer.IntAttr("dialogue.round", round),
			tracer.StringAttr("dialogue.tool_choice", string(choice)),
			tracer.IntAttr("dialogue.messages", len(msgs)),
		),
	)
	defer span.End()

	provider := o.deps.LLM.Name()
	o.publish(ctx, domain.EventLLMCallStarted, sessionID, domain.LLMCallPayload{
		Provider: provider, Round: round, ToolChoice: choice,
	})

	req := domain.ChatRequest{
		Messages:    msgs,
		Tools:       o.deps.Tools.Schemas(),
		ToolChoice:  choice,
		MaxTokens:   o.deps.MaxTokens,
		Temperature: o.deps.Temperature,
	}
	resp, err := o.deps.LLM.Chat(ctx, req)
	if err == nil && resp == nil {
		err = fmt.Errorf("%w: empty completion", domain.ErrUpstream)
	}
	if err != nil {
		err = domain.Kind(domain.ErrDialogueService, err)
		tracer.RecordError(span, err)
		return nil, err
	}

	o.deps.Logger.Debug("completion received",
		"provider", provider,
		"model", resp.Model,
		"round", round,
		"tool_calls", len(resp.Message.ToolCalls),
		"tokens", resp.Usage.TotalTokens,
	)
	o.publish(ctx, domain.EventLLMCallCompleted, sessionID, domain.LLMCallPayload{
		Provider:   provider,
		Round:      round,
		ToolChoice: choice,
		ToolCalls:  len(resp.Message.ToolCalls),
		Tokens:     resp.Usage.TotalTokens,
	})
	tracer.SetOK(span)
	return resp, nil
}

// executeAll runs the requested calls concurrently. Results are placed by
// index so they follow request order, one per call.
func (o *Orchestrator) executeAll(ctx context.Context, sessionID string, calls []domain.ToolCall) []domain.Message {
	out := make([]domain.Message, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(idx int, c domain.ToolCall) {
			defer wg.Done()
			out[idx] = o.executeTool(ctx, sessionID, c)
		}(i, call)
	}
	wg.Wait()
	return out
}

// executeTool always yields a tool-result message for call.
func (o *Orchestrator) executeTool(ctx context.Context, sessionID string, call domain.ToolCall) domain.Message {
	ctx, span := tracer.StartSpan(ctx, "dialogue.execute_tool",
		trace.WithAttributes(
			tracer.StringAttr("tool.name", call.Name),
			tracer.StringAttr("tool.call_id", call.ID),
		),
	)
	defer span.End()

	start := o.now()
	o.publish(ctx, domain.EventToolCallStarted, sessionID, domain.ToolCallPayload{CallID: call.ID, Name: call.Name})

	content, failed := o.runTool(ctx, call)
	if failed {
		span.SetAttributes(tracer.BoolAttr("tool.is_error", true))
	}
	tracer.SetOK(span)

	o.publish(ctx, domain.EventToolCallCompleted, sessionID, domain.ToolCallPayload{
		CallID:   call.ID,
		Name:     call.Name,
		IsError:  failed,
		Duration: o.now().Sub(start).Milliseconds(),
	})
	return domain.Message{
		Role:       domain.RoleTool,
		Name:       call.Name,
		Content:    content,
		ToolCallID: call.ID,
		Timestamp:  o.now(),
	}
}

// runTool resolves and executes call, absorbing every failure mode into text.
func (o *Orchestrator) runTool(ctx context.Context, call domain.ToolCall) (content string, failed bool) {
	tool, err := o.deps.Tools.Get(call.Name)
	if err != nil {
		o.deps.Logger.Warn("unknown tool requested", "tool", call.Name, "call_id", call.ID)
		return toolNotFoundText, true
	}

	defer func() {
		if r := recover(); r != nil {
			o.deps.Logger.Error("tool panicked",
				"tool", call.Name,
				"error", fmt.Errorf("%w: panic: %v", domain.ErrToolExecution, r),
			)
			content, failed = toolFailureText, true
		}
	}()

	result, err := tool.Execute(ctx, call.Arguments)
	if err != nil {
		o.deps.Logger.Warn("tool returned error", "tool", call.Name, "error", domain.Kind(domain.ErrToolExecution, err))
		return toolFailureText, true
	}
	if result == nil {
		return toolFailureText, true
	}
	return result.Content, result.IsError
}

func (o *Orchestrator) publish(ctx context.Context, eventType domain.EventType, sessionID string, payload any) {
	eventbus.Emit(ctx, o.deps.Bus, eventType, sessionID, payload)
}
