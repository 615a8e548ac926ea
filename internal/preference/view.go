package preference

import (
	"github.com/nidhogg/embedpref/internal/settings"
)

// SaveState is the visibility of the save control.
type SaveState int

const (
	SaveHidden SaveState = iota
	SaveEnabled
	SaveBusy
)

// Label is the button text for the state. A hidden button keeps the enabled
// label so a field edit can reveal it without a round trip.
func (s SaveState) Label() string {
	if s == SaveBusy {
		return "Saving..."
	}
	return "Save changes"
}

// Option is one entry of the provider selector.
type Option struct {
	ID          string
	Name        string
	Description string
	Link        string
	Checked     bool
}

// View is an immutable render model of a Form.
type View struct {
	Phase   Phase
	Error   string
	Gated   bool
	Options []Option
	// Engine mirrors the selected provider and is always submitted.
	Engine  string
	Fields  []Field
	Invalid map[string]string
	Dirty   bool
	Save    SaveState
}

// View snapshots the form for rendering.
func (f *Form) View() View {
	f.mu.Lock()
	defer f.mu.Unlock()

	v := View{Phase: f.phase, Error: f.loadErr}
	if f.phase != Ready {
		return v
	}
	if f.gatedLocked() {
		v.Gated = true
		return v
	}

	for _, p := range Providers() {
		v.Options = append(v.Options, Option{
			ID:          p.ID(),
			Name:        p.Name(),
			Description: p.Description(),
			Link:        p.Link(),
			Checked:     p.ID() == f.choice.ID(),
		})
	}
	v.Engine = f.choice.ID()
	for _, field := range f.choice.fields(f.snap) {
		field.Value = f.values[field.Name]
		v.Fields = append(v.Fields, field)
	}
	if len(f.invalid) > 0 {
		v.Invalid = make(map[string]string, len(f.invalid))
		for k, msg := range f.invalid {
			v.Invalid[k] = msg
		}
	}
	v.Dirty = f.hasChanges
	switch {
	case f.saving:
		v.Save = SaveBusy
	case f.hasChanges:
		v.Save = SaveEnabled
	}
	return v
}

// Payload is what a submit would send right now.
func (v View) Payload() map[string]string {
	if v.Engine == "" {
		return nil
	}
	out := map[string]string{settings.KeyEmbeddingEngine: v.Engine}
	for _, field := range v.Fields {
		out[field.Name] = field.Value
	}
	return out
}
