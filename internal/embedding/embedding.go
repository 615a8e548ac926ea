package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/nidhogg/embedpref/internal/settings"
)

// Provider generates vector embeddings from text.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// ErrMissingCredentials is returned when the selected engine is not fully configured.
var ErrMissingCredentials = errors.New("embedding credentials not configured")

// FromSettings builds the provider for the engine named in snap. The
// snapshot must carry real secrets, not the masked form.
func FromSettings(snap settings.Snapshot) (Provider, error) {
	engine, ok := snap.Get(settings.KeyEmbeddingEngine)
	if !ok {
		engine = settings.EngineOpenAI
	}

	switch engine {
	case settings.EngineOpenAI:
		key, ok := snap.Get(settings.KeyOpenAiKey)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingCredentials, settings.KeyOpenAiKey)
		}
		return NewOpenAIProvider(OpenAIConfig{APIKey: key}), nil

	case settings.EngineAzure:
		cfg := AzureConfig{}
		var missing []string
		for key, dst := range map[string]*string{
			settings.KeyAzureOpenAiEndpoint:       &cfg.Endpoint,
			settings.KeyAzureOpenAiKey:            &cfg.APIKey,
			settings.KeyAzureOpenAiEmbeddingModel: &cfg.Deployment,
		} {
			v, ok := snap.Get(key)
			if !ok {
				missing = append(missing, key)
				continue
			}
			*dst = v
		}
		if len(missing) > 0 {
			return nil, fmt.Errorf("%w: %v", ErrMissingCredentials, missing)
		}
		return NewAzureProvider(cfg), nil

	default:
		return nil, fmt.Errorf("unsupported embedding engine: %s (supported: openai, azure)", engine)
	}
}
