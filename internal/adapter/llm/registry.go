package llm

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"voicebot/internal/domain"
	"voicebot/internal/infra/config"
)

// Registry holds named LLM providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]domain.LLMProvider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]domain.LLMProvider),
	}
}

// Register adds a provider. Returns error if name already registered.
func (r *Registry) Register(provider domain.LLMProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := provider.Name()
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("provider %q already registered", name)
	}
	r.providers[name] = provider
	return nil
}

// Get retrieves a provider by name.
func (r *Registry) Get(name string) (domain.LLMProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrProviderNotFound, name)
	}
	return p, nil
}

// List returns all registered provider names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GeminiFactory builds a Gemini provider. It is injected so the registry
// does not dial the SDK in tests.
type GeminiFactory func(cfg config.ProviderConfig) (domain.LLMProvider, error)

// BuildRegistry constructs every configured provider, each wrapped in a
// circuit breaker when enabled.
func BuildRegistry(cfg config.LLMConfig, gemini GeminiFactory, logger *slog.Logger) (*Registry, error) {
	reg := NewRegistry()
	for _, pc := range cfg.Providers {
		var p domain.LLMProvider
		switch pc.Type {
		case "openai", "":
			p = NewOpenAIProvider(pc, logger)
		case "gemini":
			if gemini == nil {
				return nil, fmt.Errorf("provider %q: gemini support not configured", pc.Name)
			}
			gp, err := gemini(pc)
			if err != nil {
				return nil, fmt.Errorf("provider %q: %w", pc.Name, err)
			}
			p = gp
		default:
			return nil, fmt.Errorf("provider %q: unknown type %q", pc.Name, pc.Type)
		}

		if cfg.CircuitBreaker.Enabled {
			p = NewCircuitBreakerProvider(p, cfg.CircuitBreaker, logger)
		}
		if err := reg.Register(p); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Resolve returns the default provider, wrapped with failover when enabled.
func (r *Registry) Resolve(cfg config.LLMConfig, logger *slog.Logger) (domain.LLMProvider, error) {
	primary, err := r.Get(cfg.DefaultProvider)
	if err != nil {
		return nil, err
	}
	if !cfg.Failover.Enabled || len(cfg.Failover.Fallbacks) == 0 {
		return primary, nil
	}

	fallbacks := make([]domain.LLMProvider, 0, len(cfg.Failover.Fallbacks))
	for _, name := range cfg.Failover.Fallbacks {
		if name == cfg.DefaultProvider {
			continue
		}
		fb, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		fallbacks = append(fallbacks, fb)
	}
	return NewFailoverProvider(primary, fallbacks, logger), nil
}
