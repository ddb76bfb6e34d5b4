package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSystemPrompt is the instruction message seeded into every session.
const DefaultSystemPrompt = "당신은 친절한 도우미입니다. 30 단어 미만의 한국어로 답변해 주세요."

// Config is the root configuration.
type Config struct {
	Agent    AgentConfig   `yaml:"agent"`
	LLM      LLMConfig     `yaml:"llm"`
	Speech   SpeechConfig  `yaml:"speech"`
	Tools    ToolsConfig   `yaml:"tools"`
	Session  SessionConfig `yaml:"session"`
	Channels ChannelConfig `yaml:"channels"`
	Logger   LoggerConfig  `yaml:"logger"`
	Tracer   TracerConfig  `yaml:"tracer"`
}

// AgentConfig controls a single dialogue turn.
type AgentConfig struct {
	SystemPrompt string        `yaml:"system_prompt"`
	TurnTimeout  time.Duration `yaml:"turn_timeout"`
	MaxTokens    int           `yaml:"max_tokens"`
	Temperature  float64       `yaml:"temperature"`
}

// FailoverConfig holds model failover settings.
type FailoverConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Fallbacks []string `yaml:"fallbacks"`
}

// LLMConfig holds completion provider settings.
type LLMConfig struct {
	DefaultProvider string               `yaml:"default_provider"`
	Providers       []ProviderConfig     `yaml:"providers"`
	Failover        FailoverConfig       `yaml:"failover"`
	CircuitBreaker  CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig holds circuit breaker settings for LLM providers.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// PoolConfig holds HTTP connection pool settings.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// ProviderConfig holds settings for a single completion provider.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	Type        string        `yaml:"type"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
	Pool        PoolConfig    `yaml:"pool"`
}

// SpeechConfig holds transcription and synthesis settings.
type SpeechConfig struct {
	APIKey       string        `yaml:"api_key"`
	BaseURL      string        `yaml:"base_url"`
	STTModel     string        `yaml:"stt_model"`
	TTSModel     string        `yaml:"tts_model"`
	Voice        string        `yaml:"voice"`
	Speed        float64       `yaml:"speed"`
	InputFormat  string        `yaml:"input_format"`
	OutputFormat string        `yaml:"output_format"`
	Timeout      time.Duration `yaml:"timeout"`
	TempDir      string        `yaml:"temp_dir"`
	MinClipBytes int           `yaml:"min_clip_bytes"`
}

// ToolsConfig holds settings for the lookup tools.
type ToolsConfig struct {
	Timeout           time.Duration  `yaml:"timeout"`
	MaxCallsPerMinute int            `yaml:"max_calls_per_minute"`
	Weather           WeatherConfig  `yaml:"weather"`
	Exchange          ExchangeConfig `yaml:"exchange"`
}

// WeatherConfig points the weather tool at a fixed coordinate.
type WeatherConfig struct {
	BaseURL   string  `yaml:"base_url"`
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

// ExchangeConfig selects the currency pair quoted by the exchange tool.
type ExchangeConfig struct {
	BaseURL string `yaml:"base_url"`
	Base    string `yaml:"base"`
	Target  string `yaml:"target"`
}

// SessionConfig controls in-memory session lifetime.
type SessionConfig struct {
	TTL          time.Duration `yaml:"ttl"`
	ReapInterval time.Duration `yaml:"reap_interval"`
}

// ChannelConfig enables the user-facing shells.
type ChannelConfig struct {
	HTTP      HTTPChannelConfig      `yaml:"http"`
	WebSocket WebSocketChannelConfig `yaml:"websocket"`
	CLI       CLIChannelConfig       `yaml:"cli"`
}

// HTTPChannelConfig configures the REST shell.
type HTTPChannelConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Addr           string `yaml:"addr"`
	RequestsPerMin int    `yaml:"requests_per_min"`
	Burst          int    `yaml:"burst"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

// WebSocketChannelConfig configures the streaming shell.
type WebSocketChannelConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// CLIChannelConfig configures the terminal shell.
type CLIChannelConfig struct {
	Enabled   bool   `yaml:"enabled"`
	OutputDir string `yaml:"output_dir"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Defaults returns the stock assistant Config: gpt-4o-mini for
// dialogue, whisper-1 and tts-1 for speech, Seoul weather and USD/KRW rates.
func Defaults() *Config {
	return &Config{
		Agent: AgentConfig{
			SystemPrompt: DefaultSystemPrompt,
			TurnTimeout:  90 * time.Second,
			MaxTokens:    512,
			Temperature:  0.7,
		},
		LLM: LLMConfig{
			DefaultProvider: "openai",
			Providers: []ProviderConfig{
				{
					Name:        "openai",
					Type:        "openai",
					BaseURL:     "https://api.openai.com/v1",
					Model:       "gpt-4o-mini",
					ConnTimeout: 10 * time.Second,
					RespTimeout: 60 * time.Second,
				},
			},
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Speech: SpeechConfig{
			BaseURL:      "https://api.openai.com/v1",
			STTModel:     "whisper-1",
			TTSModel:     "tts-1",
			Voice:        "fable",
			Speed:        0.9,
			InputFormat:  "mp3",
			OutputFormat: "mp3",
			Timeout:      30 * time.Second,
			MinClipBytes: 1,
		},
		Tools: ToolsConfig{
			Timeout:           10 * time.Second,
			MaxCallsPerMinute: 30,
			Weather: WeatherConfig{
				BaseURL:   "https://api.open-meteo.com/v1/forecast",
				Latitude:  37.5665,
				Longitude: 126.9780,
			},
			Exchange: ExchangeConfig{
				BaseURL: "https://api.exchangerate-api.com/v4/latest",
				Base:    "USD",
				Target:  "KRW",
			},
		},
		Session: SessionConfig{
			TTL:          30 * time.Minute,
			ReapInterval: time.Minute,
		},
		Channels: ChannelConfig{
			HTTP: HTTPChannelConfig{
				Enabled:        true,
				Addr:           ":8080",
				RequestsPerMin: 60,
				Burst:          10,
				MaxUploadBytes: 25 << 20,
			},
			WebSocket: WebSocketChannelConfig{Addr: ":8081"},
			CLI:       CLIChannelConfig{OutputDir: "."},
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Exporter:    "stdout",
			SampleRatio: 1,
		},
	}
}

// Load reads a YAML config file over Defaults, applies VOICEBOT_* environment
// overrides and validates the result. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := validatePermissions(path); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides overwrites cfg fields from VOICEBOT_* variables.
// OPENAI_API_KEY fills any OpenAI credential still empty after that.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VOICEBOT_AGENT_SYSTEM_PROMPT"); v != "" {
		cfg.Agent.SystemPrompt = v
	}
	if v := os.Getenv("VOICEBOT_AGENT_TURN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Agent.TurnTimeout = d
		}
	}
	if v := os.Getenv("VOICEBOT_LLM_DEFAULT_PROVIDER"); v != "" {
		cfg.LLM.DefaultProvider = v
	}
	if v := os.Getenv("VOICEBOT_SPEECH_API_KEY"); v != "" {
		cfg.Speech.APIKey = v
	}
	if v := os.Getenv("VOICEBOT_SPEECH_BASE_URL"); v != "" {
		cfg.Speech.BaseURL = v
	}
	if v := os.Getenv("VOICEBOT_SPEECH_VOICE"); v != "" {
		cfg.Speech.Voice = v
	}
	if v := os.Getenv("VOICEBOT_SPEECH_SPEED"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Speech.Speed = f
		}
	}
	if v := os.Getenv("VOICEBOT_SPEECH_TEMP_DIR"); v != "" {
		cfg.Speech.TempDir = v
	}
	if v := os.Getenv("VOICEBOT_TOOLS_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Tools.Timeout = d
		}
	}
	if v := os.Getenv("VOICEBOT_TOOLS_WEATHER_BASE_URL"); v != "" {
		cfg.Tools.Weather.BaseURL = v
	}
	if v := os.Getenv("VOICEBOT_TOOLS_EXCHANGE_BASE_URL"); v != "" {
		cfg.Tools.Exchange.BaseURL = v
	}
	if v := os.Getenv("VOICEBOT_CHANNELS_HTTP_ADDR"); v != "" {
		cfg.Channels.HTTP.Addr = v
	}
	if v := os.Getenv("VOICEBOT_CHANNELS_WEBSOCKET_ENABLED"); v != "" {
		cfg.Channels.WebSocket.Enabled = v == "true"
	}
	if v := os.Getenv("VOICEBOT_CHANNELS_CLI_ENABLED"); v != "" {
		cfg.Channels.CLI.Enabled = v == "true"
	}
	if v := os.Getenv("VOICEBOT_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("VOICEBOT_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("VOICEBOT_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("VOICEBOT_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}

	// Per-provider API key overrides: VOICEBOT_LLM_PROVIDER_<NAME>_API_KEY
	for i := range cfg.LLM.Providers {
		envKey := fmt.Sprintf("VOICEBOT_LLM_PROVIDER_%s_API_KEY",
			strings.ToUpper(cfg.LLM.Providers[i].Name))
		if v := os.Getenv(envKey); v != "" {
			cfg.LLM.Providers[i].APIKey = v
		}
	}

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		for i := range cfg.LLM.Providers {
			p := &cfg.LLM.Providers[i]
			if p.APIKey == "" && (p.Type == "openai" || p.Type == "") {
				p.APIKey = key
			}
		}
		if cfg.Speech.APIKey == "" {
			cfg.Speech.APIKey = key
		}
	}
}

// Provider returns the provider config with the given name.
func (c *Config) Provider(name string) (ProviderConfig, bool) {
	for _, p := range c.LLM.Providers {
		if p.Name == name {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	// Config may hold API keys: group/other must not be able to write it.
	if mode := info.Mode().Perm(); mode&0o022 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
