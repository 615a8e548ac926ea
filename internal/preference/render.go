package preference

import (
	"html/template"
	"io"

	"github.com/nidhogg/embedpref/internal/notify"
)

// Routes the rendered page posts to.
const (
	PagePath     = "/settings/embedding-preference"
	ProviderPath = PagePath + "/provider"
	RetryPath    = PagePath + "/retry"
)

type page struct {
	View         View
	Toasts       []notify.Toast
	PagePath     string
	ProviderPath string
	RetryPath    string
}

var pageTmpl = template.Must(template.New("embedding-preference").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Embedding Preference</title>
</head>
<body>
{{range .Toasts}}<div class="toast toast-{{.Severity}}" role="status">{{.Message}}</div>
{{end}}
{{- with .View}}
{{- if eq .Phase 0}}
<main class="loading" aria-busy="true"><div class="preloader"></div></main>
{{- else if eq .Phase 1}}
<main class="failed">
  <p role="alert">Could not load settings: {{.Error}}</p>
  <form method="post" action="{{$.RetryPath}}"><button type="submit">Retry</button></form>
</main>
{{- else}}
<main>
  <form id="embedding-preference" method="post" action="{{$.PagePath}}" oninput="this.querySelector('button.save').hidden = false">
    <div class="header">
      <p class="title">Embedding Preference</p>
      {{- if not .Gated}}
      <button type="submit" class="save"{{if not .Save}} hidden{{end}}{{if eq .Save 2}} disabled{{end}}>{{.Save.Label}}</button>
      {{- end}}
    </div>
    <p class="description">
      When using an LLM that does not natively support an embedding engine - you may need to additionally specify credentials for embedding text.
      <br>
      Embedding is the process of turning text into vectors. These credentials are required to turn your files and prompts into a format which can be processed.
    </p>
    {{- if .Gated}}
    <p class="gated">
      Your current LLM preference does not require you to set up this part of the application.
      <br>
      Embedding is being automatically managed.
    </p>
    {{- else}}
    <input type="hidden" name="EmbeddingEngine" value="{{.Engine}}">
    <div class="fields">
      {{- range .Fields}}
      <div class="field">
        <label for="{{.Name}}">{{.Label}}</label>
        <input id="{{.Name}}" type="{{.Type}}" name="{{.Name}}" placeholder="{{.Placeholder}}" value="{{.Value}}"{{if .Required}} required{{end}} autocomplete="off" spellcheck="false">
        {{- with index $.View.Invalid .Name}}
        <span class="invalid">{{.}}</span>
        {{- end}}
      </div>
      {{- end}}
    </div>
    {{- end}}
  </form>
  {{- if not .Gated}}
  <div class="providers-label">Embedding Providers</div>
  <form class="providers" method="post" action="{{$.ProviderPath}}">
    {{- range .Options}}
    <label class="provider{{if .Checked}} checked{{end}}">
      <button type="submit" name="provider" value="{{.ID}}"{{if .Checked}} aria-pressed="true"{{end}}>{{.Name}}</button>
      <span class="provider-description">{{.Description}}</span>
      <a href="https://{{.Link}}" target="_blank" rel="noreferrer">{{.Link}}</a>
    </label>
    {{- end}}
  </form>
  {{- end}}
</main>
{{- end}}
{{- end}}
</body>
</html>
`))

// Render writes the page for view with the given toasts.
func Render(w io.Writer, view View, toasts []notify.Toast) error {
	return pageTmpl.Execute(w, page{
		View:         view,
		Toasts:       toasts,
		PagePath:     PagePath,
		ProviderPath: ProviderPath,
		RetryPath:    RetryPath,
	})
}
