package main

import (
	"context"
	"fmt"
	"log/slog"

	"voicebot/internal/adapter/channel"
	"voicebot/internal/adapter/llm"
	"voicebot/internal/adapter/speech"
	"voicebot/internal/adapter/tool"
	"voicebot/internal/domain"
	"voicebot/internal/infra/config"
	"voicebot/internal/infra/httpx"
	"voicebot/internal/usecase"
	"voicebot/internal/usecase/eventbus"
)

// app holds the long-lived core components.
type app struct {
	bus   *eventbus.Bus
	tools *tool.Registry
	voice *usecase.VoiceService
}

func buildApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	bus := eventbus.New(log)
	eventbus.LogEvents(bus, log)

	providers, err := llm.BuildRegistry(cfg.LLM, geminiFactory(ctx, log), log)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("llm: %w", err)
	}
	provider, err := providers.Resolve(cfg.LLM, log)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("llm: %w", err)
	}

	tools, err := tool.NewLookupRegistry(cfg.Tools, log)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("tools: %w", err)
	}

	speechClient := httpx.NewClient(cfg.Speech.Timeout, cfg.Speech.Timeout, config.PoolConfig{})
	sessions := usecase.NewSessionManager(cfg.Agent.SystemPrompt, cfg.Session.TTL, bus, log)
	go sessions.RunReaper(ctx, cfg.Session.ReapInterval)

	orch := usecase.NewOrchestrator(usecase.OrchestratorDeps{
		LLM:         provider,
		Tools:       tools,
		Logger:      log,
		Bus:         bus,
		MaxTokens:   cfg.Agent.MaxTokens,
		Temperature: cfg.Agent.Temperature,
		TurnTimeout: cfg.Agent.TurnTimeout,
	})

	voice := usecase.NewVoiceService(usecase.VoiceServiceDeps{
		Transcriber:  speech.NewOpenAITranscriber(cfg.Speech, speechClient, log),
		Synthesizer:  speech.NewOpenAISynthesizer(cfg.Speech, speechClient, log),
		Orchestrator: orch,
		Sessions:     sessions,
		Logger:       log,
	})

	return &app{bus: bus, tools: tools, voice: voice}, nil
}

func geminiFactory(ctx context.Context, log *slog.Logger) llm.GeminiFactory {
	return func(pc config.ProviderConfig) (domain.LLMProvider, error) {
		client, err := llm.NewSDKGeminiClient(ctx, pc)
		if err != nil {
			return nil, err
		}
		return llm.NewGeminiProvider(pc, client, log), nil
	}
}

// startChannels starts every enabled channel. The returned channel is
// closed when the CLI input ends; it never fires without a CLI.
func startChannels(ctx context.Context, cfg *config.Config, handler domain.UtteranceHandler, log *slog.Logger) ([]domain.Channel, <-chan struct{}, error) {
	var (
		started []domain.Channel
		done    <-chan struct{}
	)

	var candidates []domain.Channel
	if cfg.Channels.HTTP.Enabled {
		candidates = append(candidates, channel.NewHTTPChannel(cfg.Channels.HTTP, log))
	}
	if cfg.Channels.WebSocket.Enabled {
		candidates = append(candidates, channel.NewWebSocketChannel(cfg.Channels.WebSocket, log))
	}
	if cfg.Channels.CLI.Enabled {
		cli := channel.NewCLIChannel(cfg.Channels.CLI, nil, nil, log)
		done = cli.Done()
		candidates = append(candidates, cli)
	}

	for _, ch := range candidates {
		if err := ch.Start(ctx, handler); err != nil {
			return started, nil, fmt.Errorf("channel %s: %w", ch.Name(), err)
		}
		started = append(started, ch)
	}
	return started, done, nil
}
