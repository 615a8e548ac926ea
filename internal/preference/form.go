package preference

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/nidhogg/embedpref/internal/notify"
	"github.com/nidhogg/embedpref/internal/settings"
	"go.uber.org/zap"
)

// Settings is the settings backend the form reads from and writes to.
type Settings interface {
	Fetch(ctx context.Context) (settings.Snapshot, error)
	Update(ctx context.Context, payload map[string]string) error
}

var (
	ErrNotReady        = errors.New("settings not loaded")
	ErrGated           = errors.New("embedding is managed by the current LLM provider")
	ErrUnknownProvider = errors.New("unknown embedding provider")
	ErrUnknownField    = errors.New("field is not part of the selected provider")
	ErrNothingToSave   = errors.New("no pending changes")
	ErrSaveInFlight    = errors.New("save already in progress")
	ErrInvalidField    = errors.New("invalid field")
	ErrUnmounted       = errors.New("form unmounted")
)

const (
	msgSaved      = "Embedding preferences saved successfully."
	msgSaveFailed = "Failed to save embedding preferences: %s"
)

// Phase is the load state of a Form.
type Phase int

const (
	Loading Phase = iota
	Failed
	Ready
)

func (p Phase) String() string {
	switch p {
	case Loading:
		return "loading"
	case Failed:
		return "failed"
	case Ready:
		return "ready"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Form holds the state of one mounted embedding preference screen.
//
// The save action is reachable only while hasChanges is set, and at most one
// submission is in flight. Results that arrive after Unmount are dropped.
type Form struct {
	settings Settings
	notifier notify.Notifier
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	phase      Phase
	fetching   bool
	loadErr    string
	snap       settings.Snapshot
	choice     Provider
	values     map[string]string
	invalid    map[string]string
	hasChanges bool
	saving     bool
}

// NewForm mounts a form. Call Unmount when the screen goes away.
func NewForm(s Settings, n notify.Notifier, logger *zap.Logger) *Form {
	ctx, cancel := context.WithCancel(context.Background())
	return &Form{
		settings: s,
		notifier: n,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		phase:    Loading,
		choice:   DefaultProvider,
	}
}

// Unmount cancels in-flight requests and freezes the form.
func (f *Form) Unmount() { f.cancel() }

// bind returns a context cancelled when either ctx or the form lifetime ends.
func (f *Form) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(f.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// Load fetches the settings snapshot. It is a no-op once loaded or while
// another fetch is running; from Failed it retries.
func (f *Form) Load(ctx context.Context) error {
	f.mu.Lock()
	if f.phase == Ready || f.fetching {
		f.mu.Unlock()
		return nil
	}
	if f.ctx.Err() != nil {
		f.mu.Unlock()
		return ErrUnmounted
	}
	f.phase = Loading
	f.fetching = true
	f.mu.Unlock()

	ctx, done := f.bind(ctx)
	defer done()
	snap, err := f.settings.Fetch(ctx)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetching = false
	if f.ctx.Err() != nil {
		return ErrUnmounted
	}
	if err != nil {
		f.phase = Failed
		f.loadErr = err.Error()
		f.logger.Warn("embedding preference load failed", zap.Error(err))
		return err
	}

	f.snap = snap.Clone()
	f.choice = DefaultProvider
	if id, ok := snap.Get(settings.KeyEmbeddingEngine); ok {
		if p, ok := ParseProvider(id); ok {
			f.choice = p
		} else {
			f.logger.Warn("stored embedding engine is not selectable", zap.String("engine", id))
		}
	}
	f.values = defaults(f.choice, f.snap)
	f.invalid = nil
	f.loadErr = ""
	f.phase = Ready
	return nil
}

// Select switches the provider. Edits to the previous field group are discarded.
// The form is read-only while a save is in flight.
func (f *Form) Select(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.editableLocked(); err != nil {
		return err
	}
	if f.saving {
		return ErrSaveInFlight
	}
	p, ok := ParseProvider(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, id)
	}
	f.choice = p
	f.values = defaults(p, f.snap)
	f.invalid = nil
	f.hasChanges = true
	return nil
}

// Change edits one visible field.
func (f *Form) Change(name, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.editableLocked(); err != nil {
		return err
	}
	if f.saving {
		return ErrSaveInFlight
	}
	if _, ok := f.values[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	f.values[name] = value
	delete(f.invalid, name)
	f.hasChanges = true
	return nil
}

// Submit applies the submitted values of the visible fields, validates them
// and sends EmbeddingEngine plus the visible fields to the settings backend.
// Values for fields of other providers are ignored.
func (f *Form) Submit(ctx context.Context, submitted map[string]string) error {
	f.mu.Lock()
	if err := f.editableLocked(); err != nil {
		f.mu.Unlock()
		return err
	}
	if f.saving {
		f.mu.Unlock()
		return ErrSaveInFlight
	}
	for name := range f.values {
		if v, ok := submitted[name]; ok && v != f.values[name] {
			f.values[name] = v
			f.hasChanges = true
		}
	}
	if !f.hasChanges {
		f.mu.Unlock()
		return ErrNothingToSave
	}
	if err := f.validateLocked(); err != nil {
		f.mu.Unlock()
		return err
	}

	payload := make(map[string]string, len(f.values)+1)
	payload[settings.KeyEmbeddingEngine] = f.choice.ID()
	for k, v := range f.values {
		payload[k] = v
	}
	f.saving = true
	f.mu.Unlock()

	ctx, done := f.bind(ctx)
	defer done()
	err := f.settings.Update(ctx, payload)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ctx.Err() != nil {
		return ErrUnmounted
	}
	f.saving = false
	if err != nil {
		f.logger.Warn("embedding preference save failed", zap.Error(err))
		f.notifier.Notify(SaveFailedMessage(err), notify.Error)
		return err
	}

	for k, v := range payload {
		if settings.IsSecret(k) && v != "" {
			v = settings.Mask
		}
		f.snap[k] = v
	}
	f.values = defaults(f.choice, f.snap)
	f.hasChanges = false
	f.notifier.Notify(msgSaved, notify.Success)
	f.logger.Info("embedding preference saved", zap.String("engine", f.choice.ID()))
	return nil
}

// SaveFailedMessage is the toast text shown when a save does not go through.
func SaveFailedMessage(err error) string {
	return fmt.Sprintf(msgSaveFailed, err.Error())
}

func (f *Form) editableLocked() error {
	if f.ctx.Err() != nil {
		return ErrUnmounted
	}
	if f.phase != Ready {
		return ErrNotReady
	}
	if f.gatedLocked() {
		return ErrGated
	}
	return nil
}

func (f *Form) gatedLocked() bool {
	llm, _ := f.snap.Get(settings.KeyLLMProvider)
	return ManagesEmbedding(llm)
}

func (f *Form) validateLocked() error {
	f.invalid = nil
	var first error
	for _, field := range f.choice.fields(f.snap) {
		v := f.values[field.Name]
		reason := ""
		switch {
		case field.Required && v == "":
			reason = "Please fill out this field."
		case field.Type == InputURL && v != "" && !validURL(v):
			reason = "Please enter a URL."
		}
		if reason == "" {
			continue
		}
		if f.invalid == nil {
			f.invalid = make(map[string]string)
		}
		f.invalid[field.Name] = reason
		if first == nil {
			first = fmt.Errorf("%w: %s: %s", ErrInvalidField, field.Label, reason)
		}
	}
	return first
}

func validURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func defaults(p Provider, snap settings.Snapshot) map[string]string {
	fields := p.fields(snap)
	values := make(map[string]string, len(fields))
	for _, field := range fields {
		values[field.Name] = field.Value
	}
	return values
}
