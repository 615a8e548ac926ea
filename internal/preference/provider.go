package preference

import (
	"github.com/nidhogg/embedpref/internal/settings"
)

// InputType is the HTML input type of a credential field.
type InputType string

const (
	InputText     InputType = "text"
	InputURL      InputType = "url"
	InputPassword InputType = "password"
)

// Field is one credential input of a provider's field group.
type Field struct {
	Name        string
	Label       string
	Type        InputType
	Placeholder string
	Value       string
	Required    bool
}

// Provider is one selectable embedding provider. The set is closed: the
// unexported method keeps implementations inside this package, and each
// implementation must supply its own field group.
type Provider interface {
	ID() string
	Name() string
	Description() string
	Link() string
	fields(snap settings.Snapshot) []Field
}

var (
	OpenAI Provider = openAI{}
	Azure  Provider = azure{}
)

// DefaultProvider is selected when the snapshot names no embedding engine.
var DefaultProvider = OpenAI

// Providers returns the selectable providers in display order.
func Providers() []Provider {
	return []Provider{OpenAI, Azure}
}

// ParseProvider resolves an engine id.
func ParseProvider(id string) (Provider, bool) {
	for _, p := range Providers() {
		if p.ID() == id {
			return p, true
		}
	}
	return nil, false
}

// selfManaged lists LLM providers that embed on their own.
var selfManaged = map[string]bool{
	settings.EngineOpenAI: true,
	settings.EngineAzure:  true,
}

// ManagesEmbedding reports whether llmProvider supplies its own embeddings,
// in which case no embedding credentials are configured here.
func ManagesEmbedding(llmProvider string) bool {
	return selfManaged[llmProvider]
}

func maskIfSet(snap settings.Snapshot, key string) string {
	if _, ok := snap.Get(key); ok {
		return settings.Mask
	}
	return ""
}

type openAI struct{}

func (openAI) ID() string          { return settings.EngineOpenAI }
func (openAI) Name() string        { return "OpenAI" }
func (openAI) Description() string { return "Use OpenAI's text-embedding-ada-002 embedding model." }
func (openAI) Link() string        { return "openai.com" }

func (openAI) fields(snap settings.Snapshot) []Field {
	return []Field{{
		Name:        settings.KeyOpenAiKey,
		Label:       "API Key",
		Type:        InputText,
		Placeholder: "OpenAI API Key",
		Value:       maskIfSet(snap, settings.KeyOpenAiKey),
		Required:    true,
	}}
}

type azure struct{}

func (azure) ID() string          { return settings.EngineAzure }
func (azure) Name() string        { return "Azure OpenAI" }
func (azure) Description() string { return "The enterprise option of OpenAI hosted on Azure services." }
func (azure) Link() string        { return "azure.microsoft.com" }

func (azure) fields(snap settings.Snapshot) []Field {
	endpoint, _ := snap.Get(settings.KeyAzureOpenAiEndpoint)
	deployment, _ := snap.Get(settings.KeyAzureOpenAiEmbeddingModel)
	return []Field{
		{
			Name:        settings.KeyAzureOpenAiEndpoint,
			Label:       "Azure Service Endpoint",
			Type:        InputURL,
			Placeholder: "https://my-azure.openai.azure.com",
			Value:       endpoint,
			Required:    true,
		},
		{
			Name:        settings.KeyAzureOpenAiKey,
			Label:       "API Key",
			Type:        InputPassword,
			Placeholder: "Azure OpenAI API Key",
			Value:       maskIfSet(snap, settings.KeyAzureOpenAiKey),
			Required:    true,
		},
		{
			Name:        settings.KeyAzureOpenAiEmbeddingModel,
			Label:       "Embedding Deployment Name",
			Type:        InputText,
			Placeholder: "Azure OpenAI embedding model deployment name",
			Value:       deployment,
			Required:    true,
		},
	}
}
