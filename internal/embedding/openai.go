package embedding

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/ppiankov/lexsearch/internal/util"
)

// OpenAIProvider embeds through the OpenAI embeddings API or any server
// that speaks it.
type OpenAIProvider struct {
	client *openai.Client
	config Config
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(config Config) (*OpenAIProvider, error) {
	if config.APIKey == "" && config.BaseURL == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if config.Model == "" {
		config.Model = string(openai.SmallEmbedding3)
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			Proxy: util.NewProxyFunc(config.HTTPProxy, config.HTTPSProxy, config.NoProxy),
		},
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}, nil
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Dimension returns the configured vector length
func (p *OpenAIProvider) Dimension() int {
	return p.config.Dimension
}

// IsAvailable embeds a single short text
func (p *OpenAIProvider) IsAvailable(ctx context.Context) bool {
	_, err := p.Embed(ctx, []string{"ping"})
	return err == nil
}

// Embed embeds texts in batches
func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return embedInBatches(ctx, texts, p.config.BatchSize, p.config.Dimension, p.embedBatch)
}

func (p *OpenAIProvider) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	req := openai.EmbeddingRequestStrings{
		Input: batch,
		Model: openai.EmbeddingModel(p.config.Model),
	}
	// Only the text-embedding-3 family accepts a reduced dimension.
	if strings.HasPrefix(p.config.Model, "text-embedding-3") {
		req.Dimensions = p.config.Dimension
	}

	resp, err := p.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	vectors := make([][]float32, len(data))
	for i, d := range data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}
