package embedder

import (
	"fmt"
	"os"
	"strings"
)

// Environment variables consulted by the factory.
const (
	EnvProvider     = "COGNICORE_EMBEDDING_PROVIDER"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	EnvOllamaHost   = "OLLAMA_HOST"
	EnvOllamaModel  = "COGNICORE_OLLAMA_MODEL"
)

// Config holds embedder configuration
type Config struct {
	Provider   string
	APIKey     string
	OllamaHost string
	Model      string
	CacheSize  int
}

// NewFromEnv creates a provider based on environment variables.
// Priority:
//  1. COGNICORE_EMBEDDING_PROVIDER (ollama, openai, local)
//  2. OPENAI_API_KEY set -> openai
//  3. Default to ollama (local-first)
func NewFromEnv() (Provider, error) {
	provider := strings.ToLower(os.Getenv(EnvProvider))
	openaiKey := os.Getenv(EnvOpenAIAPIKey)

	cache := NewCache(10000)

	if provider != "" {
		switch provider {
		case ProviderOllama:
			return NewOllamaProvider(os.Getenv(EnvOllamaHost), os.Getenv(EnvOllamaModel), cache), nil
		case ProviderOpenAI:
			return NewOpenAIProvider(openaiKey, cache)
		case ProviderLocal:
			return NewLocalProvider(cache), nil
		default:
			return nil, fmt.Errorf("%w: unknown provider %s", ErrNoProviderEnabled, provider)
		}
	}

	if openaiKey != "" {
		return NewOpenAIProvider(openaiKey, cache)
	}

	return NewOllamaProvider(os.Getenv(EnvOllamaHost), os.Getenv(EnvOllamaModel), cache), nil
}

// New creates a provider with explicit configuration.
func New(cfg Config) (Provider, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	switch strings.ToLower(cfg.Provider) {
	case ProviderOllama:
		return NewOllamaProvider(cfg.OllamaHost, cfg.Model, cache), nil
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg.APIKey, cache)
	case ProviderLocal:
		return NewLocalProvider(cache), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrNoProviderEnabled, cfg.Provider)
	}
}
