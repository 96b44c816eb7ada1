package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Ollama defaults.
const (
	ProviderOllama         = "ollama"
	DefaultOllamaHost      = "http://localhost:11434"
	DefaultOllamaModel     = "nomic-embed-text"
	DefaultOllamaDimension = 768
)

// OllamaProvider implements Provider against a local Ollama instance.
type OllamaProvider struct {
	host       string
	model      string
	dimension  int
	httpClient *http.Client
	cache      *Cache
}

// NewOllamaProvider creates an Ollama embedder. Empty host/model fall back
// to the defaults.
func NewOllamaProvider(host, model string, cache *Cache) *OllamaProvider {
	if host == "" {
		host = DefaultOllamaHost
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	return &OllamaProvider{
		host:      host,
		model:     model,
		dimension: DefaultOllamaDimension,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		cache: cache,
	}
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// EmbedBatch returns one vector per input text.
func (o *OllamaProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ValidateBatch(texts); err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(texts))
	missing := make([]int, 0, len(texts))
	if o.cache != nil {
		for i, text := range texts {
			if v, ok := o.cache.Get(ComputeHash(text)); ok {
				vectors[i] = v
			} else {
				missing = append(missing, i)
			}
		}
		if len(missing) == 0 {
			return vectors, nil
		}
	} else {
		for i := range texts {
			missing = append(missing, i)
		}
	}

	input := make([]string, len(missing))
	for j, i := range missing {
		input[j] = texts[i]
	}

	body, err := json.Marshal(ollamaEmbedRequest{Model: o.model, Input: input})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: ollama embed request: %v", ErrProviderFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: ollama status %d: %s", ErrProviderFailed, resp.StatusCode, string(bodyBytes))
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(result.Embeddings) != len(input) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrProviderFailed, len(result.Embeddings), len(input))
	}

	for j, i := range missing {
		vectors[i] = result.Embeddings[j]
		if o.cache != nil {
			o.cache.Set(ComputeHash(texts[i]), result.Embeddings[j])
		}
	}
	return vectors, nil
}

// Dimension returns the embedding dimension.
func (o *OllamaProvider) Dimension() int {
	return o.dimension
}

// Name returns the provider name.
func (o *OllamaProvider) Name() string {
	return ProviderOllama
}

// Close releases idle connections.
func (o *OllamaProvider) Close() error {
	o.httpClient.CloseIdleConnections()
	return nil
}
