package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"voicebot/internal/domain"
	"voicebot/internal/infra/config"
	"voicebot/internal/infra/middleware"
)

const defaultMaxUploadBytes = 25 << 20 // Whisper's upload cap

// HTTPChannel serves the voice turn over REST.
type HTTPChannel struct {
	cfg     config.HTTPChannelConfig
	logger  *slog.Logger
	server  *http.Server
	handler domain.UtteranceHandler

	// Actual bound address (set after Start)
	boundAddr string

	// Lifecycle of the rate limiter cleanup goroutine
	cancel context.CancelFunc
}

// NewHTTPChannel creates an HTTP API channel.
func NewHTTPChannel(cfg config.HTTPChannelConfig, logger *slog.Logger) *HTTPChannel {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	return &HTTPChannel{cfg: cfg, logger: logger}
}

// Name implements domain.Channel.
func (h *HTTPChannel) Name() string { return "http" }

// Addr returns the bound address. Only valid after Start.
func (h *HTTPChannel) Addr() string { return h.boundAddr }

// Start begins serving. Non-blocking.
func (h *HTTPChannel) Start(ctx context.Context, handler domain.UtteranceHandler) error {
	h.handler = handler

	var rlCtx context.Context
	rlCtx, h.cancel = context.WithCancel(ctx)

	h.server = &http.Server{
		Addr:              h.cfg.Addr,
		Handler:           h.routes(rlCtx),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      180 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", h.cfg.Addr)
	if err != nil {
		h.cancel()
		return fmt.Errorf("listen %s: %w", h.cfg.Addr, err)
	}
	h.boundAddr = ln.Addr().String()

	go func() {
		h.logger.Info("http channel started", "addr", h.boundAddr)
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("http server error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the server.
func (h *HTTPChannel) Stop(ctx context.Context) error {
	if h.cancel != nil {
		h.cancel()
	}
	if h.server == nil {
		return nil
	}
	h.logger.Info("http channel stopping")
	return h.server.Shutdown(ctx)
}

func (h *HTTPChannel) routes(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/voice", h.handleVoice)
	mux.HandleFunc("GET /api/v1/transcript", h.handleTranscript)
	mux.HandleFunc("GET /api/v1/health", h.handleHealth)

	mws := []middleware.Middleware{middleware.RequestLogger(h.logger), middleware.SecurityHeaders}
	if h.cfg.RequestsPerMin > 0 {
		mws = append(mws, middleware.RateLimit(ctx, middleware.RateLimitConfig{
			RequestsPerMin: h.cfg.RequestsPerMin,
			BurstSize:      max(h.cfg.Burst, 1),
		}))
	}
	return middleware.Chain(mux, mws...)
}

func (h *HTTPChannel) handleVoice(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("session_id")
	if key == "" {
		key = ulid.Make().String()
	}

	clip, err := h.readClip(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, voiceResponse{
			SessionID: key,
			Error:     err.Error(),
			Code:      string(domain.CodeInvalidInput),
		})
		return
	}

	res, err := h.handler.SubmitUtterance(r.Context(), key, clip)
	if err != nil {
		h.logger.Warn("voice turn failed", "session_key", key, "error", err)
	}
	writeJSON(w, statusFor(err), newVoiceResponse(key, res, err))
}

// readClip accepts either a raw audio body or a multipart form with an
// "audio" file field. An explicit ?format= wins over inferred formats.
func (h *HTTPChannel) readClip(w http.ResponseWriter, r *http.Request) (domain.AudioClip, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)

	var clip domain.AudioClip
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/form-data") {
		if err := r.ParseMultipartForm(h.cfg.MaxUploadBytes); err != nil {
			return clip, fmt.Errorf("parse form: %w", err)
		}
		f, hdr, err := r.FormFile("audio")
		if err != nil {
			return clip, fmt.Errorf("audio field: %w", err)
		}
		defer f.Close()
		if clip.Data, err = io.ReadAll(f); err != nil {
			return clip, fmt.Errorf("read audio: %w", err)
		}
		clip.Format = formatFromName(hdr.Filename)
		if clip.Format == "" {
			clip.Format = formatFromMIME(hdr.Header.Get("Content-Type"))
		}
	} else {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return clip, fmt.Errorf("read audio: %w", err)
		}
		clip.Data = data
		clip.Format = formatFromMIME(ct)
	}

	if f := r.URL.Query().Get("format"); f != "" {
		clip.Format = strings.ToLower(f)
	}
	if clip.Empty() {
		return clip, errors.New("audio is required")
	}
	return clip, nil
}

func (h *HTTPChannel) handleTranscript(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("session_id")
	if key == "" {
		writeJSON(w, http.StatusBadRequest, voiceResponse{Error: "session_id is required", Code: string(domain.CodeInvalidInput)})
		return
	}
	turns, err := h.handler.Transcript(key)
	if err != nil {
		writeJSON(w, statusFor(err), voiceResponse{SessionID: key, Error: err.Error(), Code: string(domain.ErrorCodeOf(err))})
		return
	}
	writeJSON(w, http.StatusOK, newTranscriptResponse(key, turns))
}

func (h *HTTPChannel) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

var _ domain.Channel = (*HTTPChannel)(nil)
