package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nidhogg/embedpref/internal/settings"
	"go.uber.org/zap"
)

func TestOpenAIProviderEmbed(t *testing.T) {
	// OpenAIProvider posts to endpoint+"/embeddings", so we use a mux.
	var gotAuth string
	var gotReq apiRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/embeddings", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotReq)
		resp := apiResponse{
			Data: []apiEmbeddingData{
				{Index: 1, Embedding: []float32{0.4, 0.5, 0.6}},
				{Index: 0, Embedding: []float32{0.1, 0.2, 0.3}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{Endpoint: srv.URL, APIKey: "sk-test"})

	vectors, err := p.Embed(context.Background(), []string{"hello", "world"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vectors))
	}
	if vectors[0][0] != 0.1 || vectors[1][0] != 0.4 {
		t.Errorf("vectors not ordered by index: %v", vectors)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotReq.Model != "text-embedding-ada-002" {
		t.Errorf("model = %q", gotReq.Model)
	}
	if p.Dimension() != 3 {
		t.Errorf("got dimension %d, want 3", p.Dimension())
	}
}

func TestOpenAIProviderEmbed_Empty(t *testing.T) {
	p := NewOpenAIProvider(OpenAIConfig{Endpoint: "http://unused"})

	vectors, err := p.Embed(context.Background(), []string{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vectors != nil {
		t.Errorf("expected nil for empty input, got %v", vectors)
	}
	// Before any Embed call, Dimension should return the ada-002 default.
	if d := p.Dimension(); d != 1536 {
		t.Errorf("got dimension %d, want 1536", d)
	}
}

func TestOpenAIProviderEmbed_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"Incorrect API key provided"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{Endpoint: srv.URL, APIKey: "sk-bad"})
	if _, err := p.Embed(context.Background(), []string{"hello"}); err == nil {
		t.Fatal("expected error for 401")
	}
}

func TestAzureProviderEmbed(t *testing.T) {
	var gotPath, gotVersion, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotVersion = r.URL.Query().Get("api-version")
		gotKey = r.Header.Get("api-key")
		json.NewEncoder(w).Encode(apiResponse{
			Data: []apiEmbeddingData{{Embedding: []float32{1, 2}}},
		})
	}))
	defer srv.Close()

	p := NewAzureProvider(AzureConfig{Endpoint: srv.URL + "/", APIKey: "secret123", Deployment: "embed-v1"})
	vectors, err := p.Embed(context.Background(), []string{"hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 1 || len(vectors[0]) != 2 {
		t.Fatalf("vectors = %v", vectors)
	}
	if gotPath != "/openai/deployments/embed-v1/embeddings" {
		t.Errorf("path = %q", gotPath)
	}
	if gotVersion != "2023-05-15" {
		t.Errorf("api-version = %q", gotVersion)
	}
	if gotKey != "secret123" {
		t.Errorf("api-key = %q", gotKey)
	}
	if p.Dimension() != 2 {
		t.Errorf("dimension = %d", p.Dimension())
	}
}

func TestFromSettings(t *testing.T) {
	p, err := FromSettings(settings.Snapshot{settings.KeyOpenAiKey: "sk-1"})
	if err != nil {
		t.Fatalf("default engine: %v", err)
	}
	if _, ok := p.(*OpenAIProvider); !ok {
		t.Errorf("got %T, want *OpenAIProvider", p)
	}

	p, err = FromSettings(settings.Snapshot{
		settings.KeyEmbeddingEngine:           settings.EngineAzure,
		settings.KeyAzureOpenAiEndpoint:       "https://x.openai.azure.com",
		settings.KeyAzureOpenAiKey:            "secret123",
		settings.KeyAzureOpenAiEmbeddingModel: "embed-v1",
	})
	if err != nil {
		t.Fatalf("azure: %v", err)
	}
	if _, ok := p.(*AzureProvider); !ok {
		t.Errorf("got %T, want *AzureProvider", p)
	}

	_, err = FromSettings(settings.Snapshot{
		settings.KeyEmbeddingEngine:     settings.EngineAzure,
		settings.KeyAzureOpenAiEndpoint: "https://x.openai.azure.com",
	})
	if !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("err = %v, want ErrMissingCredentials", err)
	}

	if _, err := FromSettings(settings.Snapshot{settings.KeyEmbeddingEngine: "cohere"}); err == nil {
		t.Error("expected error for unsupported engine")
	}
}

func TestRegistryReloadAndWatch(t *testing.T) {
	store := settings.NewMemoryStore(settings.Snapshot{settings.KeyLLMProvider: "anthropic"})
	r := NewRegistry(store, zap.NewNop())

	if err := r.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if st := r.Status(); st.Ready || st.Error == "" || r.Provider() != nil {
		t.Errorf("status without key = %+v", st)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes := make(chan settings.Change)
	done := make(chan struct{})
	go func() {
		r.Watch(ctx, changes)
		close(done)
	}()

	store.Save(ctx, map[string]string{settings.KeyEmbeddingEngine: "openai", settings.KeyOpenAiKey: "sk-1"})
	changes <- settings.Change{ID: "1", Keys: []string{settings.KeyOpenAiKey}}

	deadline := time.Now().Add(5 * time.Second)
	for !r.Status().Ready {
		if time.Now().After(deadline) {
			t.Fatalf("registry not reloaded: %+v", r.Status())
		}
		time.Sleep(10 * time.Millisecond)
	}
	if r.Status().Engine != "openai" || r.Provider() == nil {
		t.Errorf("status = %+v", r.Status())
	}

	close(changes)
	<-done
}

func TestRegistryManagedLLM(t *testing.T) {
	store := settings.NewMemoryStore(settings.Snapshot{settings.KeyLLMProvider: "azure"})
	r := NewRegistry(store, zap.NewNop())
	if err := r.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	st := r.Status()
	if !st.Managed || st.Engine != "azure" || st.Error != "" {
		t.Errorf("status = %+v", st)
	}
}
