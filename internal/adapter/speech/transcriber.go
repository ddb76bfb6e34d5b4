// Package speech adapts the OpenAI audio endpoints to the domain
// Transcriber and Synthesizer interfaces.
package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"voicebot/internal/domain"
	"voicebot/internal/infra/config"
	"voicebot/internal/infra/httpx"
	"voicebot/internal/infra/tracer"
)

// OpenAITranscriber sends clips to the Whisper transcription endpoint.
type OpenAITranscriber struct {
	cfg    config.SpeechConfig
	client *http.Client
	logger *slog.Logger
}

// NewOpenAITranscriber creates a transcriber. A nil client gets a pooled
// client bounded by cfg.Timeout.
func NewOpenAITranscriber(cfg config.SpeechConfig, client *http.Client, logger *slog.Logger) *OpenAITranscriber {
	if client == nil {
		client = httpx.NewClient(0, cfg.Timeout, config.PoolConfig{})
	}
	return &OpenAITranscriber{cfg: cfg, client: client, logger: logger}
}

func (t *OpenAITranscriber) Name() string { return "openai-whisper" }

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe returns the recognised text. Every failure wraps ErrTranscription.
func (t *OpenAITranscriber) Transcribe(ctx context.Context, clip domain.AudioClip) (string, error) {
	ctx, span := tracer.StartSpan(ctx, "speech.transcribe",
		trace.WithAttributes(
			tracer.StringAttr("speech.model", t.cfg.STTModel),
			tracer.IntAttr("speech.clip_bytes", len(clip.Data)),
		),
	)
	defer span.End()

	text, err := t.transcribe(ctx, clip)
	tracer.Finish(span, err)
	return text, err
}

func (t *OpenAITranscriber) transcribe(ctx context.Context, clip domain.AudioClip) (string, error) {
	minBytes := max(t.cfg.MinClipBytes, 1)
	if len(clip.Data) < minBytes {
		return "", fmt.Errorf("%w: %w: clip of %d bytes is too short", domain.ErrTranscription, domain.ErrInvalidInput, len(clip.Data))
	}
	if clip.Format == "" {
		clip.Format = t.cfg.InputFormat
	}

	if t.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	var out transcriptionResponse
	err := withTempClip(t.cfg.TempDir, clip, func(f *os.File) error {
		body, err := t.post(ctx, f)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, &out); err != nil {
			return fmt.Errorf("parse transcription: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", domain.Kind(domain.ErrTranscription, err)
	}

	t.logger.Debug("transcription completed",
		"model", t.cfg.STTModel,
		"bytes", len(clip.Data),
		"duration", time.Since(start),
	)
	return strings.TrimSpace(out.Text), nil
}

// post streams f as a multipart upload.
func (t *OpenAITranscriber) post(ctx context.Context, f *os.File) ([]byte, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	done := make(chan struct{})
	go func() {
		defer close(done)
		pw.CloseWithError(writeForm(mw, t.cfg.STTModel, f))
	}()
	defer func() {
		pr.Close()
		<-done
	}()

	url := strings.TrimRight(t.cfg.BaseURL, "/") + "/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, pr)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+t.cfg.APIKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, httpx.Transport(err)
	}
	defer resp.Body.Close()

	return httpx.ReadBody(resp)
}

func writeForm(mw *multipart.Writer, model string, f *os.File) error {
	if err := mw.WriteField("model", model); err != nil {
		return err
	}
	part, err := mw.CreateFormFile("file", filepath.Base(f.Name()))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return err
	}
	return mw.Close()
}
