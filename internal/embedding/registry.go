package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/nidhogg/embedpref/internal/preference"
	"github.com/nidhogg/embedpref/internal/settings"
	"go.uber.org/zap"
)

// Status describes the active embedder.
type Status struct {
	Engine    string `json:"engine"`
	Managed   bool   `json:"managed"`
	Ready     bool   `json:"ready"`
	Dimension int    `json:"dimension,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Registry holds the embedder built from the current settings and rebuilds it
// when they change.
type Registry struct {
	store  settings.Store
	logger *zap.Logger

	mu       sync.RWMutex
	provider Provider
	status   Status
}

func NewRegistry(store settings.Store, logger *zap.Logger) *Registry {
	return &Registry{store: store, logger: logger}
}

// Reload rebuilds the embedder from the stored settings.
func (r *Registry) Reload(ctx context.Context) error {
	snap, err := r.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	llm, _ := snap.Get(settings.KeyLLMProvider)
	engine, ok := snap.Get(settings.KeyEmbeddingEngine)
	if !ok {
		engine = settings.EngineOpenAI
	}
	status := Status{Engine: engine, Managed: preference.ManagesEmbedding(llm)}

	var p Provider
	if status.Managed {
		status.Engine = llm
	} else {
		p, err = FromSettings(snap)
		if err != nil {
			status.Error = err.Error()
		} else {
			status.Ready = true
			status.Dimension = p.Dimension()
		}
	}

	r.mu.Lock()
	r.provider = p
	r.status = status
	r.mu.Unlock()

	r.logger.Info("embedder reloaded",
		zap.String("engine", status.Engine),
		zap.Bool("managed", status.Managed),
		zap.Bool("ready", status.Ready))
	return nil
}

// Watch reloads on every change until changes closes or ctx is cancelled.
func (r *Registry) Watch(ctx context.Context, changes <-chan settings.Change) {
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			r.logger.Debug("settings changed", zap.String("id", change.ID), zap.Strings("keys", change.Keys))
			if err := r.Reload(ctx); err != nil {
				r.logger.Warn("embedder reload failed", zap.Error(err))
			}
		}
	}
}

// Provider returns the active embedder, or nil when none is configured.
func (r *Registry) Provider() Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.provider
}

// Status reports the active embedder.
func (r *Registry) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}
