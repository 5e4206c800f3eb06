package embedding

import (
	"fmt"
	"strings"
)

// NewProvider creates an embedding provider based on configuration. An empty
// provider name disables embedding and returns nil.
func NewProvider(config Config) (Provider, error) {
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", config.Dimension)
	}

	switch strings.ToLower(config.Provider) {
	case "openai":
		return NewOpenAIProvider(config)

	case "ollama":
		return NewOllamaProvider(config)

	case "":
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: openai, ollama)", config.Provider)
	}
}
