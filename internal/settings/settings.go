package settings

import (
	"context"
	"errors"
	"sort"
	"strings"
)

// Setting names shared by the settings page and the backend.
const (
	KeyLLMProvider               = "LLMProvider"
	KeyEmbeddingEngine           = "EmbeddingEngine"
	KeyOpenAiKey                 = "OpenAiKey"
	KeyAzureOpenAiEndpoint       = "AzureOpenAiEndpoint"
	KeyAzureOpenAiKey            = "AzureOpenAiKey"
	KeyAzureOpenAiEmbeddingModel = "AzureOpenAiEmbeddingModelPref"
)

// Embedding engine ids.
const (
	EngineOpenAI = "openai"
	EngineAzure  = "azure"
)

// Mask stands in for a stored secret. Submitting it back for a secret key
// means "keep the existing value".
var Mask = strings.Repeat("*", 20)

var (
	ErrUnknownKey   = errors.New("unknown setting")
	ErrInvalidValue = errors.New("invalid setting value")
)

var knownKeys = map[string]bool{
	KeyLLMProvider:               true,
	KeyEmbeddingEngine:           true,
	KeyOpenAiKey:                 true,
	KeyAzureOpenAiEndpoint:       true,
	KeyAzureOpenAiKey:            true,
	KeyAzureOpenAiEmbeddingModel: true,
}

var secretKeys = map[string]bool{
	KeyOpenAiKey:      true,
	KeyAzureOpenAiKey: true,
}

var knownEngines = map[string]bool{
	EngineOpenAI: true,
	EngineAzure:  true,
}

// IsSecret reports whether key holds a credential that is never returned in clear.
func IsSecret(key string) bool { return secretKeys[key] }

// IsKnown reports whether key is a setting this service accepts.
func IsKnown(key string) bool { return knownKeys[key] }

// Snapshot maps setting names to values. Missing or empty means unset.
type Snapshot map[string]string

// Get returns the value for key and whether it is set.
func (s Snapshot) Get(key string) (string, bool) {
	v, ok := s[key]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Clone returns an independent copy.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Redacted returns a copy with every set secret replaced by Mask.
func (s Snapshot) Redacted() Snapshot {
	out := s.Clone()
	for k := range out {
		if IsSecret(k) && out[k] != "" {
			out[k] = Mask
		}
	}
	return out
}

// Store persists settings.
type Store interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, values map[string]string) error
}

// Auditor is told about every applied settings change.
type Auditor interface {
	Announce(ctx context.Context, text string) error
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
