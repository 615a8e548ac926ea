package notify

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Severity classifies a user notification.
type Severity string

const (
	Success Severity = "success"
	Error   Severity = "error"
)

// Notifier shows a transient message to the user. Fire and forget.
type Notifier interface {
	Notify(message string, severity Severity)
}

// Toast is one queued notification.
type Toast struct {
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Flash queues toasts for one visitor until the next page render drains them.
type Flash struct {
	mu     sync.Mutex
	toasts []Toast
}

func NewFlash() *Flash { return &Flash{} }

func (f *Flash) Notify(message string, severity Severity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toasts = append(f.toasts, Toast{Message: message, Severity: severity})
}

// Drain returns and clears the queued toasts.
func (f *Flash) Drain() []Toast {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.toasts
	f.toasts = nil
	return out
}

// Auditors fans an announcement out to every configured channel. Failures
// are logged and joined; one broken channel does not stop the others.
type Auditors struct {
	targets []namedAuditor
	logger  *zap.Logger
}

// Announcer posts a short text to an operator channel.
type Announcer interface {
	Announce(ctx context.Context, text string) error
}

type namedAuditor struct {
	name string
	a    Announcer
}

func NewAuditors(logger *zap.Logger) *Auditors {
	return &Auditors{logger: logger}
}

// Add registers a channel under name.
func (m *Auditors) Add(name string, a Announcer) {
	m.targets = append(m.targets, namedAuditor{name: name, a: a})
}

// Len reports how many channels are registered.
func (m *Auditors) Len() int { return len(m.targets) }

func (m *Auditors) Announce(ctx context.Context, text string) error {
	var errs []error
	for _, t := range m.targets {
		if err := t.a.Announce(ctx, text); err != nil {
			m.logger.Warn("audit announce failed", zap.String("channel", t.name), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
