package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicebot/internal/domain"
	"voicebot/internal/infra/logger"
)

func TestNewSession_SeedsSystemMessage(t *testing.T) {
	s := NewSession("http:abc", testPrompt)

	_, err := ulid.Parse(s.ID)
	require.NoError(t, err)
	assert.Equal(t, "http:abc", s.Key)

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.RoleSystem, msgs[0].Role)
	assert.Equal(t, testPrompt, msgs[0].Content)
}

func TestSession_MessagesIsACopy(t *testing.T) {
	s := NewSession("k", testPrompt)
	msgs := s.Messages()
	msgs[0].Content = "mutated"
	assert.Equal(t, testPrompt, s.Messages()[0].Content)
}

func TestSessionManager_GetOrCreate(t *testing.T) {
	sm := NewSessionManager(testPrompt, time.Minute, nil, logger.Discard())

	a := sm.GetOrCreate(context.Background(), "a")
	again := sm.GetOrCreate(context.Background(), "a")
	b := sm.GetOrCreate(context.Background(), "b")

	assert.Same(t, a, again)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, sm.Len())

	got, err := sm.Get("a")
	require.NoError(t, err)
	assert.Same(t, a, got)

	_, err = sm.Get("zzz")
	assert.True(t, errors.Is(err, domain.ErrSessionNotFound))
}

func TestSessionManager_Reap(t *testing.T) {
	sm := NewSessionManager(testPrompt, time.Minute, nil, logger.Discard())
	now := time.Now()
	sm.now = func() time.Time { return now }

	sm.GetOrCreate(context.Background(), "old")
	now = now.Add(45 * time.Second)
	sm.GetOrCreate(context.Background(), "fresh")

	now = now.Add(30 * time.Second)
	assert.Equal(t, 1, sm.Reap(context.Background()))

	_, err := sm.Get("old")
	assert.True(t, errors.Is(err, domain.ErrSessionNotFound))
	_, err = sm.Get("fresh")
	assert.NoError(t, err)
}

func TestSessionManager_NoTTLKeepsSessions(t *testing.T) {
	sm := NewSessionManager(testPrompt, 0, nil, logger.Discard())
	sm.GetOrCreate(context.Background(), "a")
	sm.now = func() time.Time { return time.Now().Add(24 * time.Hour) }
	assert.Zero(t, sm.Reap(context.Background()))
	assert.Equal(t, 1, sm.Len())
}

func TestSessionManager_RunReaperStopsOnCancel(t *testing.T) {
	sm := NewSessionManager(testPrompt, time.Millisecond, nil, logger.Discard())
	sm.GetOrCreate(context.Background(), "a")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sm.RunReaper(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return sm.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop")
	}
}
