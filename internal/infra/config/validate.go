package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateAgent(cfg, ve)
	validateLLM(cfg, ve)
	validateSpeech(cfg, ve)
	validateTools(cfg, ve)
	validateSession(cfg, ve)
	validateChannels(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateAgent(cfg *Config, ve *ValidationError) {
	if strings.TrimSpace(cfg.Agent.SystemPrompt) == "" {
		ve.Add("agent.system_prompt must not be empty")
	}
	if cfg.Agent.TurnTimeout <= 0 {
		ve.Add("agent.turn_timeout must be > 0")
	}
	if cfg.Agent.MaxTokens < 0 {
		ve.Add("agent.max_tokens must be >= 0")
	}
	if cfg.Agent.Temperature < 0 || cfg.Agent.Temperature > 2 {
		ve.Add("agent.temperature must be within [0, 2]")
	}
}

var validProviderTypes = map[string]bool{
	"openai": true,
	"gemini": true,
}

func validateLLM(cfg *Config, ve *ValidationError) {
	if cfg.LLM.DefaultProvider == "" {
		ve.Add("llm.default_provider must not be empty")
	}
	if len(cfg.LLM.Providers) == 0 {
		ve.Add("llm.providers must contain at least one provider")
		return
	}

	seen := make(map[string]bool)
	for i, p := range cfg.LLM.Providers {
		if p.Name == "" {
			ve.Add("llm.providers[%d].name must not be empty", i)
			continue
		}
		if seen[p.Name] {
			ve.Add("llm.providers[%d]: duplicate provider name %q", i, p.Name)
		}
		seen[p.Name] = true

		if p.Type != "" && !validProviderTypes[p.Type] {
			ve.Add("llm.providers[%d].type %q is invalid (want: openai, gemini)", i, p.Type)
		}
		if p.APIKey == "" {
			ve.Add("llm.providers[%d] (%s): api_key is empty (set via VOICEBOT_LLM_PROVIDER_%s_API_KEY)",
				i, p.Name, strings.ToUpper(p.Name))
		}
		if p.Model == "" {
			ve.Add("llm.providers[%d] (%s): model must not be empty", i, p.Name)
		}
	}

	if cfg.LLM.DefaultProvider != "" && !seen[cfg.LLM.DefaultProvider] {
		ve.Add("llm.default_provider %q does not match any configured provider", cfg.LLM.DefaultProvider)
	}
	if cfg.LLM.Failover.Enabled {
		for _, name := range cfg.LLM.Failover.Fallbacks {
			if !seen[name] {
				ve.Add("llm.failover.fallbacks: unknown provider %q", name)
			}
		}
	}
	if cb := cfg.LLM.CircuitBreaker; cb.Enabled {
		if cb.MaxFailures == 0 {
			ve.Add("llm.circuit_breaker.max_failures must be > 0 when enabled")
		}
		if cb.Timeout <= 0 {
			ve.Add("llm.circuit_breaker.timeout must be > 0 when enabled")
		}
	}
}

var validAudioFormats = map[string]bool{
	"mp3":  true,
	"wav":  true,
	"opus": true,
	"aac":  true,
	"flac": true,
}

func validateSpeech(cfg *Config, ve *ValidationError) {
	s := cfg.Speech
	if s.APIKey == "" {
		ve.Add("speech.api_key is empty (set via VOICEBOT_SPEECH_API_KEY or OPENAI_API_KEY)")
	}
	if s.BaseURL == "" {
		ve.Add("speech.base_url must not be empty")
	}
	if s.STTModel == "" || s.TTSModel == "" {
		ve.Add("speech.stt_model and speech.tts_model must not be empty")
	}
	if s.Voice == "" {
		ve.Add("speech.voice must not be empty")
	}
	if s.Speed < 0.25 || s.Speed > 4.0 {
		ve.Add("speech.speed %.2f out of range [0.25, 4.0]", s.Speed)
	}
	if !validAudioFormats[s.InputFormat] {
		ve.Add("speech.input_format %q is not supported", s.InputFormat)
	}
	if !validAudioFormats[s.OutputFormat] {
		ve.Add("speech.output_format %q is not supported", s.OutputFormat)
	}
	if s.Timeout <= 0 {
		ve.Add("speech.timeout must be > 0")
	}
	if s.MinClipBytes < 1 {
		ve.Add("speech.min_clip_bytes must be >= 1")
	}
}

func validateTools(cfg *Config, ve *ValidationError) {
	t := cfg.Tools
	if t.Timeout <= 0 {
		ve.Add("tools.timeout must be > 0")
	}
	if t.MaxCallsPerMinute < 0 {
		ve.Add("tools.max_calls_per_minute must be >= 0 (0 disables throttling)")
	}
	if t.Weather.BaseURL == "" {
		ve.Add("tools.weather.base_url must not be empty")
	}
	if t.Weather.Latitude < -90 || t.Weather.Latitude > 90 {
		ve.Add("tools.weather.latitude %v out of range", t.Weather.Latitude)
	}
	if t.Weather.Longitude < -180 || t.Weather.Longitude > 180 {
		ve.Add("tools.weather.longitude %v out of range", t.Weather.Longitude)
	}
	if t.Exchange.BaseURL == "" {
		ve.Add("tools.exchange.base_url must not be empty")
	}
	if len(t.Exchange.Base) != 3 || len(t.Exchange.Target) != 3 {
		ve.Add("tools.exchange.base and tools.exchange.target must be ISO 4217 codes")
	}
}

func validateSession(cfg *Config, ve *ValidationError) {
	if cfg.Session.TTL <= 0 {
		ve.Add("session.ttl must be > 0")
	}
	if cfg.Session.ReapInterval <= 0 {
		ve.Add("session.reap_interval must be > 0")
	}
}

func validateChannels(cfg *Config, ve *ValidationError) {
	ch := cfg.Channels
	if !ch.HTTP.Enabled && !ch.WebSocket.Enabled && !ch.CLI.Enabled {
		ve.Add("channels: at least one of http, websocket, cli must be enabled")
	}
	if ch.HTTP.Enabled {
		validateAddr("channels.http.addr", ch.HTTP.Addr, ve)
		if ch.HTTP.RequestsPerMin <= 0 {
			ve.Add("channels.http.requests_per_min must be > 0")
		}
		if ch.HTTP.Burst <= 0 {
			ve.Add("channels.http.burst must be > 0")
		}
		if ch.HTTP.MaxUploadBytes <= 0 {
			ve.Add("channels.http.max_upload_bytes must be > 0")
		}
	}
	if ch.WebSocket.Enabled {
		validateAddr("channels.websocket.addr", ch.WebSocket.Addr, ve)
		if ch.HTTP.Enabled && ch.HTTP.Addr == ch.WebSocket.Addr {
			ve.Add("channels.websocket.addr must differ from channels.http.addr")
		}
	}
	if ch.CLI.Enabled && ch.CLI.OutputDir == "" {
		ve.Add("channels.cli.output_dir must not be empty")
	}
}

func validateAddr(field, addr string, ve *ValidationError) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		ve.Add("%s %q is invalid: %v", field, addr, err)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "stdout", "noop", "":
	default:
		ve.Add("tracer.exporter %q is invalid (want: stdout, noop)", cfg.Tracer.Exporter)
	}
	if cfg.Tracer.SampleRatio < 0 || cfg.Tracer.SampleRatio > 1 {
		ve.Add("tracer.sample_ratio must be within [0, 1]")
	}
}
