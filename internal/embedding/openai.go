package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

const (
	defaultOpenAIEndpoint = "https://api.openai.com/v1"
	defaultOpenAIModel    = "text-embedding-ada-002"
	adaDimension          = 1536
)

// OpenAIConfig configures OpenAIProvider. Empty fields take OpenAI defaults.
type OpenAIConfig struct {
	Endpoint string
	Model    string
	APIKey   string
}

// OpenAIProvider implements Provider using the OpenAI embeddings API.
type OpenAIProvider struct {
	endpoint string
	model    string
	apiKey   string
	client   *http.Client

	mu  sync.Mutex
	dim int
}

// NewOpenAIProvider creates a new OpenAIProvider from the given config.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultOpenAIEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	return &OpenAIProvider{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		client:   http.DefaultClient,
	}
}

type apiRequest struct {
	Model string   `json:"model,omitempty"`
	Input []string `json:"input"`
}

type apiEmbeddingData struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

type apiResponse struct {
	Data []apiEmbeddingData `json:"data"`
}

// Embed sends texts to the embeddings endpoint and returns one vector per text.
func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	req, err := newEmbedRequest(ctx, p.endpoint+"/embeddings", apiRequest{Model: p.model, Input: texts})
	if err != nil {
		return nil, err
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	vectors, err := doEmbed(p.client, req, len(texts))
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.dim = cacheDimension(p.dim, vectors)
	p.mu.Unlock()
	return vectors, nil
}

// Dimension returns the dimension of the last result, or the
// text-embedding-ada-002 dimension before any call.
func (p *OpenAIProvider) Dimension() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dim > 0 {
		return p.dim
	}
	return adaDimension
}

func newEmbedRequest(ctx context.Context, url string, body apiRequest) (*http.Request, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("embedding: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("embedding: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func doEmbed(client *http.Client, req *http.Request, want int) ([][]float32, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding: API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("embedding: decode response: %w", err)
	}
	if len(result.Data) != want {
		return nil, fmt.Errorf("embedding: got %d vectors for %d inputs", len(result.Data), want)
	}

	embeddings := make([][]float32, want)
	for i, d := range result.Data {
		idx := d.Index
		if idx < 0 || idx >= want || embeddings[idx] != nil {
			idx = i
		}
		embeddings[idx] = d.Embedding
	}
	return embeddings, nil
}

func cacheDimension(cur int, vectors [][]float32) int {
	if len(vectors) > 0 && len(vectors[0]) > 0 {
		return len(vectors[0])
	}
	return cur
}
