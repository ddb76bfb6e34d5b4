package channel

import (
	"context"
	"sync"
	"time"

	"voicebot/internal/domain"
)

var turnTime = time.Date(2026, 3, 1, 9, 5, 0, 0, time.UTC)

// fakeHandler answers every clip with a fixed reply and remembers what it saw.
type fakeHandler struct {
	mu    sync.Mutex
	clips []domain.AudioClip
	keys  []string
	turns map[string][]domain.ChatTurn

	reply string
	audio domain.AudioClip
	err   error
}

func newFakeHandler(reply string) *fakeHandler {
	return &fakeHandler{
		reply: reply,
		audio: domain.AudioClip{Data: []byte("mp3-bytes"), Format: domain.AudioFormatMP3},
		turns: make(map[string][]domain.ChatTurn),
	}
}

func (f *fakeHandler) SubmitUtterance(_ context.Context, key string, clip domain.AudioClip) (*domain.TurnResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clips = append(f.clips, clip)
	f.keys = append(f.keys, key)
	if f.err != nil && f.reply == "" {
		return nil, f.err
	}
	res := &domain.TurnResult{
		SessionID: key,
		User:      domain.ChatTurn{Speaker: domain.SpeakerUser, Time: turnTime, Text: string(clip.Data)},
		Bot:       domain.ChatTurn{Speaker: domain.SpeakerBot, Time: turnTime, Text: f.reply},
		Audio:     f.audio,
	}
	f.turns[key] = append(f.turns[key], res.User, res.Bot)
	return res, f.err
}

func (f *fakeHandler) Transcript(key string) ([]domain.ChatTurn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	turns, ok := f.turns[key]
	if !ok {
		return nil, domain.NewDomainError("Transcript", domain.ErrSessionNotFound, key)
	}
	return append([]domain.ChatTurn(nil), turns...), nil
}

func (f *fakeHandler) seen() ([]string, []domain.AudioClip) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keys...), append([]domain.AudioClip(nil), f.clips...)
}
