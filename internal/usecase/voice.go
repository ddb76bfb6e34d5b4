package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"voicebot/internal/domain"
	"voicebot/internal/infra/tracer"
)

// VoiceServiceDeps holds injected dependencies for the voice service.
type VoiceServiceDeps struct {
	Transcriber  domain.Transcriber
	Synthesizer  domain.Synthesizer
	Orchestrator *Orchestrator
	Sessions     *SessionManager
	Logger       *slog.Logger
}

// VoiceService is the boundary the channels call: audio in, texts and audio out.
type VoiceService struct {
	deps VoiceServiceDeps
	now  func() time.Time
}

// NewVoiceService creates a voice service.
func NewVoiceService(deps VoiceServiceDeps) *VoiceService {
	return &VoiceService{deps: deps, now: time.Now}
}

// SubmitUtterance transcribes clip, runs a dialogue turn on the session for
// sessionKey and synthesizes the answer.
//
// Transcription and dialogue failures return a nil result and leave the
// session unchanged. A synthesis failure still returns the committed turn's
// texts alongside the error.
func (v *VoiceService) SubmitUtterance(ctx context.Context, sessionKey string, clip domain.AudioClip) (*domain.TurnResult, error) {
	session := v.deps.Sessions.GetOrCreate(ctx, sessionKey)
	ctx = domain.ContextWithSessionID(ctx, session.ID)

	ctx, span := tracer.StartSpan(ctx, "voice.submit_utterance",
		trace.WithAttributes(
			tracer.StringAttr("session.id", session.ID),
			tracer.IntAttr("audio.bytes", len(clip.Data)),
		),
	)
	defer span.End()

	unlock, err := v.deps.Orchestrator.lock(ctx, session)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	defer unlock()

	question, err := v.transcribe(ctx, clip)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	asked := v.now()

	answer, err := v.deps.Orchestrator.submitLocked(ctx, session, question)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	result := &domain.TurnResult{
		SessionID: session.ID,
		User:      domain.ChatTurn{Speaker: domain.SpeakerUser, Time: asked, Text: question},
		Bot:       domain.ChatTurn{Speaker: domain.SpeakerBot, Time: v.now(), Text: answer},
	}
	session.recordTurns(result.User, result.Bot)

	if strings.TrimSpace(answer) == "" {
		tracer.SetOK(span)
		return result, nil
	}

	audio, err := v.deps.Synthesizer.Synthesize(ctx, answer)
	if err != nil {
		err = domain.Kind(domain.ErrSynthesis, err)
		tracer.RecordError(span, err)
		v.deps.Logger.Warn("synthesis failed", "session", session.ID, "error", err)
		return result, err
	}
	result.Audio = audio

	tracer.SetOK(span)
	return result, nil
}

func (v *VoiceService) transcribe(ctx context.Context, clip domain.AudioClip) (string, error) {
	text, err := v.deps.Transcriber.Transcribe(ctx, clip)
	if err != nil {
		return "", domain.Kind(domain.ErrTranscription, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: %w: no speech recognized", domain.ErrTranscription, domain.ErrInvalidInput)
	}
	return text, nil
}

// Transcript returns the rendered turns of the session for sessionKey.
func (v *VoiceService) Transcript(sessionKey string) ([]domain.ChatTurn, error) {
	session, err := v.deps.Sessions.Get(sessionKey)
	if err != nil {
		return nil, err
	}
	return session.Transcript(), nil
}

var _ domain.UtteranceHandler = (*VoiceService)(nil)
