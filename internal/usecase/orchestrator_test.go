package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicebot/internal/domain"
	"voicebot/internal/infra/logger"
	"voicebot/internal/usecase/eventbus"
)

const testPrompt = "당신은 친절한 도우미입니다."

func weatherCall(id string) domain.ToolCall {
	return domain.ToolCall{ID: id, Name: "get_weather", Arguments: json.RawMessage(`{"location":"Seoul"}`)}
}

func newTestOrchestrator(llm domain.LLMProvider, tools domain.ToolExecutor) *Orchestrator {
	return NewOrchestrator(OrchestratorDeps{
		LLM:         llm,
		Tools:       tools,
		Logger:      logger.Discard(),
		MaxTokens:   256,
		Temperature: 0.5,
	})
}

func TestSubmit_PlainAnswer(t *testing.T) {
	llm := &mockLLM{replies: []llmReply{textReply("안녕하세요!")}}
	weather := &staticTool{name: "get_weather", result: "unused"}
	orch := newTestOrchestrator(llm, newToolExecutor(weather))
	session := NewSession("k", testPrompt)

	text, err := orch.Submit(context.Background(), session, "Hello")
	require.NoError(t, err)
	assert.Equal(t, "안녕하세요!", text)

	msgs := session.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, domain.RoleSystem, msgs[0].Role)
	assert.Equal(t, testPrompt, msgs[0].Content)
	assert.Equal(t, domain.Message{Role: domain.RoleUser, Content: "Hello"}, stripTime(msgs[1]))
	assert.Equal(t, domain.Message{Role: domain.RoleAssistant, Content: "안녕하세요!"}, stripTime(msgs[2]))
	assert.Empty(t, weather.args)

	reqs := llm.calls()
	require.Len(t, reqs, 1)
	assert.Equal(t, domain.ToolChoiceAuto, reqs[0].ToolChoice)
	assert.Len(t, reqs[0].Tools, 1)
	assert.Equal(t, 256, reqs[0].MaxTokens)
	assert.Equal(t, 0.5, reqs[0].Temperature)
	assert.Equal(t, "Hello", reqs[0].Messages[len(reqs[0].Messages)-1].Content, "user message is sent before dispatch")
}

func TestSubmit_WeatherToolRound(t *testing.T) {
	llm := &mockLLM{replies: []llmReply{
		callsReply(weatherCall("call_1")),
		textReply("서울은 지금 18.3°C예요."),
	}}
	weather := &staticTool{name: "get_weather", result: "현재 Seoul의 온도는 18.3°C 입니다."}
	orch := newTestOrchestrator(llm, newToolExecutor(weather))
	session := NewSession("k", testPrompt)
	before := session.Len()

	text, err := orch.Submit(context.Background(), session, "What's the weather?")
	require.NoError(t, err)
	assert.Equal(t, "서울은 지금 18.3°C예요.", text)
	assert.Equal(t, before+4, session.Len())

	msgs := session.Messages()[before:]
	assert.Equal(t, domain.RoleUser, msgs[0].Role)

	assert.Equal(t, domain.RoleAssistant, msgs[1].Role)
	assert.Empty(t, msgs[1].Content)
	require.Len(t, msgs[1].ToolCalls, 1)
	assert.Equal(t, "call_1", msgs[1].ToolCalls[0].ID)

	assert.Equal(t, domain.Message{
		Role:       domain.RoleTool,
		Name:       "get_weather",
		Content:    "현재 Seoul의 온도는 18.3°C 입니다.",
		ToolCallID: "call_1",
	}, stripTime(msgs[2]))
	assert.Equal(t, "서울은 지금 18.3°C예요.", msgs[3].Content)

	require.Len(t, weather.args, 1)
	assert.JSONEq(t, `{"location":"Seoul"}`, string(weather.args[0]))

	reqs := llm.calls()
	require.Len(t, reqs, 2)
	assert.Equal(t, domain.ToolChoiceAuto, reqs[0].ToolChoice)
	assert.Equal(t, domain.ToolChoiceNone, reqs[1].ToolChoice)
	assert.NotEmpty(t, reqs[1].Tools, "declarations stay visible on follow-up")
	assert.Len(t, reqs[1].Messages, before+3)
}

func TestSubmit_AtMostOneToolRound(t *testing.T) {
	llm := &mockLLM{replies: []llmReply{
		callsReply(weatherCall("call_1")),
		callsReply(weatherCall("call_2")),
		textReply("never requested"),
	}}
	weather := &staticTool{name: "get_weather", result: "현재 Seoul의 온도는 1°C 입니다."}
	orch := newTestOrchestrator(llm, newToolExecutor(weather))
	session := NewSession("k", testPrompt)

	text, err := orch.Submit(context.Background(), session, "weather again and again")
	require.NoError(t, err)
	assert.Empty(t, text, "follow-up text is final even when empty")
	assert.Len(t, llm.calls(), 2)
	assert.Len(t, weather.args, 1)

	last := session.Messages()[session.Len()-1]
	assert.Equal(t, domain.RoleAssistant, last.Role)
	assert.Empty(t, last.ToolCalls)
}

func TestSubmit_EveryCallAnsweredInOrder(t *testing.T) {
	llm := &mockLLM{replies: []llmReply{
		callsReply(
			domain.ToolCall{ID: "a", Name: "slow", Arguments: json.RawMessage(`{}`)},
			domain.ToolCall{ID: "b", Name: "fast", Arguments: json.RawMessage(`{}`)},
			domain.ToolCall{ID: "c", Name: "missing", Arguments: json.RawMessage(`{}`)},
			domain.ToolCall{ID: "d", Name: "broken", Arguments: json.RawMessage(`{}`)},
			domain.ToolCall{ID: "e", Name: "panics", Arguments: json.RawMessage(`{}`)},
		),
		textReply("done"),
	}}
	tools := newToolExecutor(
		&staticTool{name: "slow", result: "slow result", delay: 30 * time.Millisecond},
		&staticTool{name: "fast", result: "fast result"},
		&errorTool{name: "broken"},
		&panicTool{name: "panics"},
	)
	orch := newTestOrchestrator(llm, tools)
	session := NewSession("k", testPrompt)

	_, err := orch.Submit(context.Background(), session, "do everything")
	require.NoError(t, err)

	followUp := llm.calls()[1].Messages
	results := followUp[len(followUp)-5:]
	want := []struct{ id, content string }{
		{"a", "slow result"},
		{"b", "fast result"},
		{"c", "기능을 찾을 수 없습니다."},
		{"d", "도구 실행 중 오류가 발생했습니다."},
		{"e", "도구 실행 중 오류가 발생했습니다."},
	}
	for i, w := range want {
		assert.Equal(t, domain.RoleTool, results[i].Role)
		assert.Equal(t, w.id, results[i].ToolCallID)
		assert.Equal(t, w.content, results[i].Content)
	}
	assert.Equal(t, 1+1+1+5+1, session.Len())
}

func TestSubmit_ServiceUnreachableLeavesHistory(t *testing.T) {
	down := errors.New("dial tcp: connection refused")
	tests := []struct {
		name    string
		replies []llmReply
	}{
		{"first dispatch", []llmReply{errReply(down)}},
		{"follow-up dispatch", []llmReply{callsReply(weatherCall("call_1")), errReply(down)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &mockLLM{replies: tt.replies}
			orch := newTestOrchestrator(llm, newToolExecutor(&staticTool{name: "get_weather", result: "x"}))
			session := NewSession("k", testPrompt)
			before := session.Messages()

			_, err := orch.Submit(context.Background(), session, "What's the weather?")
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrDialogueService))
			assert.True(t, errors.Is(err, down))
			assert.Equal(t, domain.CodeDialogueService, domain.ErrorCodeOf(err))
			assert.Equal(t, before, session.Messages())
		})
	}
}

func TestSubmit_RetryAfterFailure(t *testing.T) {
	llm := &mockLLM{replies: []llmReply{errReply(errors.New("503")), textReply("이제 됩니다.")}}
	orch := newTestOrchestrator(llm, newToolExecutor())
	session := NewSession("k", testPrompt)

	_, err := orch.Submit(context.Background(), session, "Hello")
	require.Error(t, err)
	text, err := orch.Submit(context.Background(), session, "Hello")
	require.NoError(t, err)
	assert.Equal(t, "이제 됩니다.", text)
	assert.Equal(t, 3, session.Len())
}

func TestSubmit_SessionBusy(t *testing.T) {
	locker := NewSessionLocker()
	orch := NewOrchestrator(OrchestratorDeps{
		LLM:    &mockLLM{replies: []llmReply{textReply("hi")}},
		Tools:  newToolExecutor(),
		Logger: logger.Discard(),
		Locker: locker,
	})
	session := NewSession("k", testPrompt)

	unlock, err := locker.Lock(context.Background(), session.ID)
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = orch.Submit(ctx, session, "Hello")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrSessionBusy))
	assert.Equal(t, domain.CodeSessionBusy, domain.ErrorCodeOf(err))
	assert.Equal(t, 1, session.Len())
}

func TestSubmit_PublishesEvents(t *testing.T) {
	bus := eventbus.New(logger.Discard())
	var mu sync.Mutex
	seen := map[domain.EventType]int{}
	bus.SubscribeAll(func(_ context.Context, e domain.Event) {
		mu.Lock()
		seen[e.Type]++
		mu.Unlock()
	})

	orch := NewOrchestrator(OrchestratorDeps{
		LLM: &mockLLM{replies: []llmReply{
			callsReply(weatherCall("call_1")),
			textReply("ok"),
		}},
		Tools:  newToolExecutor(&staticTool{name: "get_weather", result: "x"}),
		Logger: logger.Discard(),
		Bus:    bus,
	})
	_, err := orch.Submit(context.Background(), NewSession("k", testPrompt), "weather")
	require.NoError(t, err)
	bus.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, seen[domain.EventTurnStarted])
	assert.Equal(t, 2, seen[domain.EventLLMCallStarted])
	assert.Equal(t, 2, seen[domain.EventLLMCallCompleted])
	assert.Equal(t, 1, seen[domain.EventToolCallStarted])
	assert.Equal(t, 1, seen[domain.EventToolCallCompleted])
	assert.Equal(t, 1, seen[domain.EventTurnCompleted])
	assert.Zero(t, seen[domain.EventTurnFailed])
}

func TestDispatch_PureHistory(t *testing.T) {
	llm := &mockLLM{replies: []llmReply{
		callsReply(weatherCall("call_1")),
		textReply("18.3°C입니다."),
	}}
	orch := newTestOrchestrator(llm, newToolExecutor(&staticTool{name: "get_weather", result: "현재 Seoul의 온도는 18.3°C 입니다."}))

	history := []domain.Message{
		domain.NewSystemMessage(testPrompt),
		{Role: domain.RoleUser, Content: "What's the weather?"},
	}
	text, updated, err := orch.Dispatch(context.Background(), history)
	require.NoError(t, err)
	assert.Equal(t, "18.3°C입니다.", text)
	assert.Len(t, history, 2, "input history is not modified")
	require.Len(t, updated, 5)
	assert.Equal(t, history, updated[:2])

	assertToolResultsMatchCalls(t, updated)

	llm.replies = append(llm.replies, errReply(errors.New("down")))
	_, out, err := orch.Dispatch(context.Background(), history)
	assert.True(t, errors.Is(err, domain.ErrDialogueService))
	assert.Nil(t, out)
}

// assertToolResultsMatchCalls checks that every tool result answers a call
// issued earlier in msgs and every call is answered exactly once.
func assertToolResultsMatchCalls(t *testing.T, msgs []domain.Message) {
	t.Helper()
	issued := map[string]int{}
	for _, m := range msgs {
		for _, c := range m.ToolCalls {
			issued[c.ID] = 0
		}
		if m.Role == domain.RoleTool {
			_, ok := issued[m.ToolCallID]
			require.True(t, ok, "result %q answers no issued call", m.ToolCallID)
			issued[m.ToolCallID]++
		}
	}
	for id, n := range issued {
		assert.Equal(t, 1, n, "call %q answered %d times", id, n)
	}
}

func stripTime(m domain.Message) domain.Message {
	m.Timestamp = time.Time{}
	return m
}
