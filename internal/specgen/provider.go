package specgen

import (
	"context"
	"errors"
	"fmt"

	"github.com/bizmatters/calculator-studio/internal/config"
)

// ErrEmptyResponse is returned by a provider that answered without any text
var ErrEmptyResponse = errors.New("no response content from model")

// Provider is a remote text-generation backend
type Provider interface {
	Name() string
	Complete(ctx context.Context, system, user string) (string, error)
	Ping(ctx context.Context) error
}

// NewProvider builds the provider selected in cfg.
// It returns nil, nil when no credential is configured.
func NewProvider(ctx context.Context, cfg config.GeneratorConfig) (Provider, error) {
	if !cfg.HasCredential() {
		return nil, nil
	}

	switch cfg.Provider {
	case ProviderGemini:
		p, err := NewGeminiProvider(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return p, nil
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown generator provider %q", cfg.Provider)
	}
}

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)
