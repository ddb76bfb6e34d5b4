package usecase

import (
	"context"
	"crypto/rand"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"voicebot/internal/domain"
	"voicebot/internal/usecase/eventbus"
)

// Session owns one conversation. Its history starts with the system
// message and only ever grows; the transcript is the rendered view of it.
type Session struct {
	mu         sync.RWMutex
	ID         string
	Key        string
	CreatedAt  time.Time
	msgs       []domain.Message
	turns      []domain.ChatTurn
	lastActive time.Time
}

// NewSession creates a session seeded with the system instruction.
func NewSession(key, systemPrompt string) *Session {
	now := time.Now()
	sys := domain.NewSystemMessage(systemPrompt)
	sys.Timestamp = now
	return &Session{
		ID:         ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		Key:        key,
		CreatedAt:  now,
		msgs:       []domain.Message{sys},
		lastActive: now,
	}
}

// Messages returns a copy of the conversation history.
func (s *Session) Messages() []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make([]domain.Message, len(s.msgs))
	copy(cp, s.msgs)
	return cp
}

// Len returns the number of messages in the history.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.msgs)
}

// Transcript returns a copy of the rendered turns.
func (s *Session) Transcript() []domain.ChatTurn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make([]domain.ChatTurn, len(s.turns))
	copy(cp, s.turns)
	return cp
}

// commit appends a completed turn's messages in one step.
func (s *Session) commit(msgs []domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msgs...)
}

func (s *Session) recordTurns(turns ...domain.ChatTurn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, turns...)
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastActive = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActive
}

// SessionManager keeps live sessions in memory, keyed by the channel's
// session key. Nothing is persisted.
type SessionManager struct {
	mu           sync.Mutex
	sessions     map[string]*Session
	systemPrompt string
	ttl          time.Duration
	bus          domain.EventBus
	logger       *slog.Logger
	now          func() time.Time
}

// NewSessionManager creates a manager. A ttl <= 0 keeps sessions forever.
func NewSessionManager(systemPrompt string, ttl time.Duration, bus domain.EventBus, logger *slog.Logger) *SessionManager {
	return &SessionManager{
		sessions:     make(map[string]*Session),
		systemPrompt: systemPrompt,
		ttl:          ttl,
		bus:          bus,
		logger:       logger,
		now:          time.Now,
	}
}

// GetOrCreate returns the session for key, creating a seeded one if needed.
func (sm *SessionManager) GetOrCreate(ctx context.Context, key string) *Session {
	sm.mu.Lock()
	s, ok := sm.sessions[key]
	if !ok {
		s = NewSession(key, sm.systemPrompt)
		sm.sessions[key] = s
	}
	sm.mu.Unlock()

	s.touch(sm.now())
	if !ok {
		sm.logger.Debug("session created", "session", s.ID, "key", key)
		eventbus.Emit(ctx, sm.bus, domain.EventSessionCreated, s.ID, nil)
	}
	return s
}

// Get returns the session for key or ErrSessionNotFound.
func (sm *SessionManager) Get(key string) (*Session, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s, ok := sm.sessions[key]
	if !ok {
		return nil, domain.NewDomainError("SessionManager.Get", domain.ErrSessionNotFound, key)
	}
	return s, nil
}

// Len returns the number of live sessions.
func (sm *SessionManager) Len() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.sessions)
}

// Reap drops sessions idle for longer than the TTL and returns how many.
func (sm *SessionManager) Reap(ctx context.Context) int {
	if sm.ttl <= 0 {
		return 0
	}
	cutoff := sm.now().Add(-sm.ttl)

	sm.mu.Lock()
	var reaped []*Session
	for key, s := range sm.sessions {
		if s.idleSince().Before(cutoff) {
			delete(sm.sessions, key)
			reaped = append(reaped, s)
		}
	}
	sm.mu.Unlock()

	for _, s := range reaped {
		sm.logger.Debug("session reaped", "session", s.ID, "key", s.Key)
		eventbus.Emit(ctx, sm.bus, domain.EventSessionReaped, s.ID, nil)
	}
	return len(reaped)
}

// RunReaper calls Reap every interval until ctx is done.
func (sm *SessionManager) RunReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 || sm.ttl <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sm.Reap(ctx); n > 0 {
				sm.logger.Info("reaped idle sessions", "count", n)
			}
		}
	}
}
