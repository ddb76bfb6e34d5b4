package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"voicebot/internal/infra/config"
	"voicebot/internal/infra/logger"
	"voicebot/internal/infra/tracer"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
		if !strings.HasPrefix(os.Args[1], "-") {
			fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'voicebot help' for usage information.\n", os.Args[1])
			os.Exit(1)
		}
	}

	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`voicebot - voice assistant with weather and exchange-rate lookups

USAGE:
    voicebot [FLAGS]
    voicebot help

FLAGS:
    -h, --help         Show this help message
    --config PATH      Config file path (default: ./config.yaml, or $VOICEBOT_CONFIG)
    --provider NAME    LLM provider type (openai, gemini)
    --model NAME       Model name (e.g. gpt-4o-mini, gemini-2.0-flash)
    --key KEY          API key for the provider

CONFIGURATION:
    Environment: VOICEBOT_* variables override the config file.
    OPENAI_API_KEY fills the OpenAI and speech credentials when unset.

CHANNELS:
    http       POST /api/v1/voice, GET /api/v1/transcript
    websocket  /api/v1/voice/ws (one binary frame per clip)
    cli        type an audio file path per line

EXAMPLES:
    voicebot                                  # Run with config.yaml
    voicebot --config /etc/voicebot.yaml      # Custom config
    voicebot --provider openai --model gpt-4o-mini --key sk-...`)
}

// cliFlags holds the optional flags that bypass the config file.
type cliFlags struct {
	Config   string
	Provider string
	Model    string
	APIKey   string
}

// parseFlags extracts --config, --provider, --model and --key. Both
// "--flag value" and "--flag=value" are accepted.
func parseFlags(args []string) cliFlags {
	var flags cliFlags
	targets := map[string]*string{
		"--config":   &flags.Config,
		"--provider": &flags.Provider,
		"--model":    &flags.Model,
		"--key":      &flags.APIKey,
	}
	for i := 0; i < len(args); i++ {
		name, value, hasValue := strings.Cut(args[i], "=")
		dst, ok := targets[name]
		if !ok {
			continue
		}
		if hasValue {
			*dst = value
			continue
		}
		if i+1 < len(args) {
			*dst = args[i+1]
			i++
		}
	}
	return flags
}

func configPath(flags cliFlags) string {
	if flags.Config != "" {
		return flags.Config
	}
	if p := os.Getenv("VOICEBOT_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

// buildQuickConfig creates a config from flags alone. An OpenAI key also
// serves the speech endpoints.
func buildQuickConfig(flags cliFlags) (*config.Config, error) {
	if flags.Provider == "" || flags.Model == "" || flags.APIKey == "" {
		return nil, fmt.Errorf("--provider, --model, and --key must all be specified")
	}

	cfg := config.Defaults()
	pc := config.ProviderConfig{
		Name:        flags.Provider,
		Type:        flags.Provider,
		Model:       flags.Model,
		APIKey:      flags.APIKey,
		ConnTimeout: 10 * time.Second,
		RespTimeout: 60 * time.Second,
	}
	if flags.Provider == "openai" {
		pc.BaseURL = "https://api.openai.com/v1"
		cfg.Speech.APIKey = flags.APIKey
	}
	cfg.LLM.DefaultProvider = flags.Provider
	cfg.LLM.Providers = []config.ProviderConfig{pc}

	config.ApplyEnvOverrides(cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadConfig(flags cliFlags) (*config.Config, error) {
	if flags.Provider != "" {
		return buildQuickConfig(flags)
	}
	return config.Load(configPath(flags))
}

func run(args []string) error {
	// 1. Config
	cfg, err := loadConfig(parseFlags(args))
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx := context.Background()
	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(ctx)

	// 3. Graceful shutdown
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 4. Core services
	app, err := buildApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.bus.Close()

	// 5. Channels
	channels, done, err := startChannels(ctx, cfg, app.voice, log)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, ch := range channels {
			if err := ch.Stop(shutdownCtx); err != nil {
				log.Error("channel stop error", "channel", ch.Name(), "error", err)
			}
		}
	}()
	if err != nil {
		return err
	}

	log.Info("voicebot started",
		"provider", cfg.LLM.DefaultProvider,
		"tools", strings.Join(app.tools.Names(), ","),
		"channels", len(channels),
	)

	select {
	case <-ctx.Done():
	case <-done:
	}
	log.Info("voicebot shutting down")
	return nil
}
