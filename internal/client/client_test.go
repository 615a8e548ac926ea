package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nidhogg/embedpref/internal/api"
	"github.com/nidhogg/embedpref/internal/notify"
	"github.com/nidhogg/embedpref/internal/preference"
	"github.com/nidhogg/embedpref/internal/settings"
	"go.uber.org/zap"
)

func newBackend(t *testing.T, initial settings.Snapshot) (*httptest.Server, *settings.MemoryStore) {
	t.Helper()
	logger := zap.NewNop()
	store := settings.NewMemoryStore(initial)
	service := settings.NewService(store, nil, logger)
	sessions := preference.NewSessions(service, logger)
	t.Cleanup(sessions.Close)
	ts := httptest.NewServer(api.NewHandler(service, sessions, nil, logger).Router())
	t.Cleanup(ts.Close)
	return ts, store
}

func TestFetchAndUpdate(t *testing.T) {
	ts, store := newBackend(t, settings.Snapshot{
		settings.KeyLLMProvider: "anthropic",
		settings.KeyOpenAiKey:   "sk-old",
	})
	c := New(ts.URL + "/")

	snap, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if snap[settings.KeyOpenAiKey] != settings.Mask {
		t.Errorf("key = %q, want mask", snap[settings.KeyOpenAiKey])
	}

	err = c.Update(context.Background(), map[string]string{
		settings.KeyEmbeddingEngine: "openai",
		settings.KeyOpenAiKey:       "sk-live-abc",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	raw, _ := store.Load(context.Background())
	if raw[settings.KeyOpenAiKey] != "sk-live-abc" {
		t.Errorf("stored = %q", raw[settings.KeyOpenAiKey])
	}
}

func TestUpdateReturnsBackendMessage(t *testing.T) {
	ts, _ := newBackend(t, nil)
	err := New(ts.URL).Update(context.Background(), map[string]string{settings.KeyEmbeddingEngine: "cohere"})
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != `invalid setting value: unsupported embedding engine "cohere"` {
		t.Errorf("error = %q", err.Error())
	}
}

func TestUpdateErrorFieldOn200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"error":"Invalid API key"}`))
	}))
	defer srv.Close()

	err := New(srv.URL).Update(context.Background(), map[string]string{})
	if err == nil || err.Error() != "Invalid API key" {
		t.Fatalf("err = %v", err)
	}
}

func TestFetchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "database offline", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Fetch(context.Background())
	if err == nil || !strings.Contains(err.Error(), "database offline") {
		t.Fatalf("err = %v", err)
	}
}

// The form works unchanged against a remote backend.
func TestFormOverClient(t *testing.T) {
	ts, store := newBackend(t, settings.Snapshot{settings.KeyLLMProvider: "anthropic"})
	flash := notify.NewFlash()
	f := preference.NewForm(New(ts.URL), flash, zap.NewNop())
	defer f.Unmount()

	if err := f.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := f.Select("azure"); err != nil {
		t.Fatal(err)
	}
	err := f.Submit(context.Background(), map[string]string{
		settings.KeyAzureOpenAiEndpoint:       "https://x.openai.azure.com",
		settings.KeyAzureOpenAiKey:            "secret123",
		settings.KeyAzureOpenAiEmbeddingModel: "embed-v1",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	raw, _ := store.Load(context.Background())
	if raw[settings.KeyEmbeddingEngine] != "azure" || raw[settings.KeyAzureOpenAiKey] != "secret123" {
		t.Errorf("stored = %v", raw)
	}
	if toasts := flash.Drain(); len(toasts) != 1 || toasts[0].Severity != notify.Success {
		t.Errorf("toasts = %+v", toasts)
	}
}
