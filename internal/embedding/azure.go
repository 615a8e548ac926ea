package embedding

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

const azureAPIVersion = "2023-05-15"

// AzureConfig configures AzureProvider.
type AzureConfig struct {
	Endpoint   string // https://{resource}.openai.azure.com
	APIKey     string
	Deployment string // embedding model deployment name
}

// AzureProvider implements Provider using an Azure OpenAI embedding deployment.
type AzureProvider struct {
	url    string
	apiKey string
	client *http.Client

	mu  sync.Mutex
	dim int
}

// NewAzureProvider creates a new AzureProvider from the given config.
func NewAzureProvider(cfg AzureConfig) *AzureProvider {
	return &AzureProvider{
		url: fmt.Sprintf("%s/openai/deployments/%s/embeddings?api-version=%s",
			strings.TrimRight(cfg.Endpoint, "/"), url.PathEscape(cfg.Deployment), azureAPIVersion),
		apiKey: cfg.APIKey,
		client: http.DefaultClient,
	}
}

// Embed sends texts to the deployment. The model is implied by the deployment.
func (p *AzureProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	req, err := newEmbedRequest(ctx, p.url, apiRequest{Input: texts})
	if err != nil {
		return nil, err
	}
	req.Header.Set("api-key", p.apiKey)
	vectors, err := doEmbed(p.client, req, len(texts))
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.dim = cacheDimension(p.dim, vectors)
	p.mu.Unlock()
	return vectors, nil
}

// Dimension returns the dimension of the last result, or the ada-002
// dimension before any call.
func (p *AzureProvider) Dimension() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dim > 0 {
		return p.dim
	}
	return adaDimension
}
