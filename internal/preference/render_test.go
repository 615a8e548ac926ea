package preference

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nidhogg/embedpref/internal/notify"
	"github.com/nidhogg/embedpref/internal/settings"
	"go.uber.org/zap"
)

func render(t *testing.T, v View, toasts []notify.Toast) string {
	t.Helper()
	var buf bytes.Buffer
	if err := Render(&buf, v, toasts); err != nil {
		t.Fatalf("render: %v", err)
	}
	return buf.String()
}

func TestRenderLoading(t *testing.T) {
	out := render(t, View{Phase: Loading}, nil)
	if !strings.Contains(out, `aria-busy="true"`) {
		t.Error("missing loading placeholder")
	}
	if strings.Contains(out, "<input") {
		t.Error("inputs rendered while loading")
	}
}

func TestRenderFailed(t *testing.T) {
	out := render(t, View{Phase: Failed, Error: "connection refused"}, nil)
	if !strings.Contains(out, "Could not load settings: connection refused") {
		t.Error("missing error message")
	}
	if !strings.Contains(out, `action="`+RetryPath+`"`) {
		t.Error("missing retry action")
	}
}

func TestRenderGated(t *testing.T) {
	f, _ := newLoadedForm(t, &fakeSettings{snap: settings.Snapshot{settings.KeyLLMProvider: "azure"}})
	out := render(t, f.View(), nil)
	if !strings.Contains(out, "does not require you to set up") {
		t.Error("missing gate message")
	}
	if strings.Contains(out, "<input") || strings.Contains(out, `name="provider"`) {
		t.Error("gated page renders inputs")
	}
}

func TestRenderAzureFields(t *testing.T) {
	f, _ := newLoadedForm(t, &fakeSettings{snap: azureSnapshot()})
	out := render(t, f.View(), nil)

	for _, want := range []string{
		`type="hidden" name="EmbeddingEngine" value="azure"`,
		`type="url" name="AzureOpenAiEndpoint"`,
		`value="https://x.openai.azure.com"`,
		`type="password" name="AzureOpenAiKey"`,
		`value="` + settings.Mask + `"`,
		`value="embed-v1"`,
		`name="provider" value="openai"`,
		`name="provider" value="azure" aria-pressed="true"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("page missing %s", want)
		}
	}
	if strings.Contains(out, "secret123") {
		t.Error("page leaks the stored secret")
	}
	if !strings.Contains(out, `<button type="submit" class="save" hidden>Save changes</button>`) {
		t.Error("save button should be present but hidden without changes")
	}
	if !strings.Contains(out, `oninput="this.querySelector('button.save').hidden = false"`) {
		t.Error("field edits do not reveal the save button")
	}
}

func TestRenderSaveAndToasts(t *testing.T) {
	f, _ := newLoadedForm(t, &fakeSettings{snap: settings.Snapshot{}})
	if err := f.Select("azure"); err != nil {
		t.Fatal(err)
	}
	out := render(t, f.View(), []notify.Toast{{Message: "Failed to save embedding preferences: <boom>", Severity: notify.Error}})
	if !strings.Contains(out, `<button type="submit" class="save">Save changes</button>`) {
		t.Error("missing enabled save button")
	}
	if !strings.Contains(out, "toast-error") || !strings.Contains(out, "&lt;boom&gt;") {
		t.Error("toast missing or not escaped")
	}

	busy := f.View()
	busy.Save = SaveBusy
	if out := render(t, busy, nil); !strings.Contains(out, `<button type="submit" class="save" disabled>Saving...</button>`) {
		t.Error("missing disabled saving button")
	}
}

func TestRenderInvalidField(t *testing.T) {
	f, _ := newLoadedForm(t, &fakeSettings{snap: settings.Snapshot{}})
	err := f.Submit(context.Background(), map[string]string{settings.KeyOpenAiKey: ""})
	if !errors.Is(err, ErrNothingToSave) {
		t.Fatalf("err = %v", err)
	}
	if err := f.Select("openai"); err != nil {
		t.Fatal(err)
	}
	if err := f.Submit(context.Background(), nil); !errors.Is(err, ErrInvalidField) {
		t.Fatalf("err = %v", err)
	}
	out := render(t, f.View(), nil)
	if !strings.Contains(out, "Please fill out this field.") {
		t.Error("missing field error")
	}
}

func TestSessionsSweep(t *testing.T) {
	s := NewSessions(&fakeSettings{snap: settings.Snapshot{}}, zap.NewNop())
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	old := s.Mount()
	now = now.Add(20 * time.Minute)
	fresh := s.Mount()

	if n := s.Sweep(10 * time.Minute); n != 1 {
		t.Fatalf("swept %d, want 1", n)
	}
	if _, ok := s.Get(old.ID); ok {
		t.Error("idle session survived sweep")
	}
	if _, ok := s.Get(fresh.ID); !ok {
		t.Error("fresh session swept")
	}
	if err := old.Form.Load(context.Background()); !errors.Is(err, ErrUnmounted) {
		t.Errorf("swept form load err = %v, want ErrUnmounted", err)
	}

	s.Close()
	if _, ok := s.Get(fresh.ID); ok {
		t.Error("session survived Close")
	}
}
