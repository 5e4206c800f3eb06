// Package embedding turns document text into L2-normalized vectors through a
// remote embedding model.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ppiankov/lexsearch/internal/model"
)

// ErrUnexpectedDimension is returned when the model answers with vectors of
// a different length than configured.
var ErrUnexpectedDimension = errors.New("unexpected embedding dimension")

// Embedder is what the pipeline and the search service depend on.
type Embedder interface {
	// Embed returns one unit-length vector per text, in input order
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension is the length of every returned vector
	Dimension() int
}

// Provider is an Embedder backed by a named service.
type Provider interface {
	Embedder

	// Name returns the provider name
	Name() string

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// Config holds embedding provider configuration
type Config struct {
	// Provider name: "openai", "ollama", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI-compatible services
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama, a local OpenAI-compatible server)
	BaseURL string

	// Dimension every vector must have
	Dimension int

	// BatchSize bounds the texts sent per request
	BatchSize int

	// Timeout per request
	Timeout time.Duration

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// ConfigFromModel converts the application config
func ConfigFromModel(cfg model.EmbeddingConfig, httpCfg model.HTTPConfig) Config {
	return Config{
		Provider:   cfg.Provider,
		Model:      cfg.Model,
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Dimension:  cfg.Dimension,
		BatchSize:  cfg.BatchSize,
		Timeout:    cfg.Timeout,
		HTTPProxy:  httpCfg.HTTPProxy,
		HTTPSProxy: httpCfg.HTTPSProxy,
		NoProxy:    httpCfg.NoProxy,
	}
}

// embedBatchFunc embeds one request-sized batch.
type embedBatchFunc func(ctx context.Context, batch []string) ([][]float32, error)

// embedInBatches splits texts into batches of at most size, checks every
// returned vector and normalizes it.
func embedInBatches(ctx context.Context, texts []string, size, dim int, fn embedBatchFunc) ([][]float32, error) {
	if size <= 0 {
		size = 32
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))

		vectors, err := fn(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		if len(vectors) != end-start {
			return nil, fmt.Errorf("embed batch %d-%d: expected %d vectors, got %d", start, end, end-start, len(vectors))
		}

		for i, v := range vectors {
			if len(v) != dim {
				return nil, fmt.Errorf("%w: text %d has %d, expected %d", ErrUnexpectedDimension, start+i, len(v), dim)
			}
			Normalize(v)
		}
		out = append(out, vectors...)
	}
	return out, nil
}

// Normalize scales v to unit length in place so that inner product equals
// cosine similarity. Zero vectors are left alone.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= norm
	}
}
