package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"voicebot/internal/domain"
	"voicebot/internal/infra/config"
	"voicebot/internal/infra/httpx"
	"voicebot/internal/infra/tracer"
)

// OpenAISynthesizer turns replies into speech with a fixed voice and rate.
// Every call hits the backend; nothing is cached.
type OpenAISynthesizer struct {
	cfg    config.SpeechConfig
	client *http.Client
	logger *slog.Logger
}

// NewOpenAISynthesizer creates a synthesizer. A nil client gets a pooled
// client bounded by cfg.Timeout.
func NewOpenAISynthesizer(cfg config.SpeechConfig, client *http.Client, logger *slog.Logger) *OpenAISynthesizer {
	if client == nil {
		client = httpx.NewClient(0, cfg.Timeout, config.PoolConfig{})
	}
	return &OpenAISynthesizer{cfg: cfg, client: client, logger: logger}
}

func (s *OpenAISynthesizer) Name() string { return "openai-tts" }

type speechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	Speed          float64 `json:"speed,omitempty"`
	ResponseFormat string  `json:"response_format,omitempty"`
}

// Synthesize returns the spoken form of text. Every failure wraps ErrSynthesis.
func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text string) (domain.AudioClip, error) {
	ctx, span := tracer.StartSpan(ctx, "speech.synthesize",
		trace.WithAttributes(
			tracer.StringAttr("speech.model", s.cfg.TTSModel),
			tracer.StringAttr("speech.voice", s.cfg.Voice),
			tracer.IntAttr("speech.text_len", len(text)),
		),
	)
	defer span.End()

	clip, err := s.synthesize(ctx, text)
	tracer.Finish(span, err)
	return clip, err
}

func (s *OpenAISynthesizer) synthesize(ctx context.Context, text string) (domain.AudioClip, error) {
	if strings.TrimSpace(text) == "" {
		return domain.AudioClip{}, fmt.Errorf("%w: %w: nothing to say", domain.ErrSynthesis, domain.ErrInvalidInput)
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	payload, err := json.Marshal(speechRequest{
		Model:          s.cfg.TTSModel,
		Input:          text,
		Voice:          s.cfg.Voice,
		Speed:          s.cfg.Speed,
		ResponseFormat: s.cfg.OutputFormat,
	})
	if err != nil {
		return domain.AudioClip{}, domain.Kind(domain.ErrSynthesis, fmt.Errorf("marshal request: %w", err))
	}

	url := strings.TrimRight(s.cfg.BaseURL, "/") + "/audio/speech"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return domain.AudioClip{}, domain.Kind(domain.ErrSynthesis, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return domain.AudioClip{}, domain.Kind(domain.ErrSynthesis, httpx.Transport(err))
	}
	defer resp.Body.Close()

	audio, err := httpx.ReadBody(resp)
	if err != nil {
		return domain.AudioClip{}, domain.Kind(domain.ErrSynthesis, err)
	}
	if len(audio) == 0 {
		return domain.AudioClip{}, fmt.Errorf("%w: %w: empty audio", domain.ErrSynthesis, domain.ErrUpstream)
	}

	format := s.cfg.OutputFormat
	if format == "" {
		format = domain.AudioFormatMP3
	}
	s.logger.Debug("synthesis completed",
		"model", s.cfg.TTSModel,
		"voice", s.cfg.Voice,
		"bytes", len(audio),
		"duration", time.Since(start),
	)
	return domain.AudioClip{Data: audio, Format: format}, nil
}

var (
	_ domain.Transcriber = (*OpenAITranscriber)(nil)
	_ domain.Synthesizer = (*OpenAISynthesizer)(nil)
)
