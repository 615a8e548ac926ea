package settings

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// Service is the settings backend consumed by the settings page and the
// /api/system routes.
type Service struct {
	store   Store
	auditor Auditor
	logger  *zap.Logger
	hooks   []func(ctx context.Context, keys []string)
}

// OnUpdate registers fn to run after every applied update.
func (s *Service) OnUpdate(fn func(ctx context.Context, keys []string)) {
	s.hooks = append(s.hooks, fn)
}

// NewService creates a Service over store. auditor may be nil.
func NewService(store Store, auditor Auditor, logger *zap.Logger) *Service {
	return &Service{store: store, auditor: auditor, logger: logger}
}

// Fetch returns the current settings with secrets masked.
func (s *Service) Fetch(ctx context.Context) (Snapshot, error) {
	snap, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	return snap.Redacted(), nil
}

// Update validates payload and persists it. Secret values equal to Mask are
// dropped so the stored secret is kept.
func (s *Service) Update(ctx context.Context, payload map[string]string) error {
	values, err := s.prepare(payload)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}
	if err := s.store.Save(ctx, values); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}

	keys := sortedKeys(values)
	s.logger.Info("settings updated", zap.Strings("keys", keys))

	if s.auditor != nil {
		text := fmt.Sprintf("Settings updated: %s", strings.Join(keys, ", "))
		if engine, ok := values[KeyEmbeddingEngine]; ok {
			text += fmt.Sprintf(" (embedding engine: %s)", engine)
		}
		if err := s.auditor.Announce(ctx, text); err != nil {
			s.logger.Warn("settings audit failed", zap.Error(err))
		}
	}
	for _, fn := range s.hooks {
		fn(ctx, keys)
	}
	return nil
}

func (s *Service) prepare(payload map[string]string) (map[string]string, error) {
	values := make(map[string]string, len(payload))
	for k, v := range payload {
		if !IsKnown(k) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownKey, k)
		}
		v = strings.TrimSpace(v)
		if IsSecret(k) && v == Mask {
			continue
		}
		if err := validate(k, v); err != nil {
			return nil, err
		}
		values[k] = v
	}
	return values, nil
}

func validate(key, value string) error {
	switch key {
	case KeyEmbeddingEngine:
		if !knownEngines[value] {
			return fmt.Errorf("%w: unsupported embedding engine %q", ErrInvalidValue, value)
		}
	case KeyAzureOpenAiEndpoint:
		if value == "" {
			return nil
		}
		u, err := url.Parse(value)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: %s must be an http(s) URL", ErrInvalidValue, key)
		}
	case KeyOpenAiKey, KeyAzureOpenAiKey:
		if strings.Trim(value, "*") == "" && value != "" {
			return fmt.Errorf("%w: %s cannot consist only of mask characters", ErrInvalidValue, key)
		}
	}
	return nil
}
