package render

import (
	"bytes"
	"embed"
	"fmt"
	"io"
	"text/template"
	"time"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// Engine renders templates embedded in the package.
type Engine struct {
	templates *template.Template
}

var funcs = template.FuncMap{
	"timestamp": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.UTC().Format(time.RFC3339)
	},
	"elapsed": func(from, to time.Time) string {
		if from.IsZero() || to.IsZero() {
			return "-"
		}
		return to.Sub(from).Round(time.Millisecond).String()
	},
	"dash": func(s string) string {
		if s == "" {
			return "-"
		}
		return s
	},
}

// New initialises an Engine by parsing all embedded templates.
func New() (*Engine, error) {
	t, err := template.New("render").Funcs(funcs).ParseFS(templatesFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Engine{templates: t}, nil
}

// Render executes the named template with the provided data and returns the rendered string.
func (e *Engine) Render(name string, data any) (string, error) {
	buf := bytes.NewBuffer(nil)
	if err := e.Write(buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Write executes the named template into w.
func (e *Engine) Write(w io.Writer, name string, data any) error {
	if e == nil || e.templates == nil {
		return fmt.Errorf("nil engine")
	}
	return e.templates.ExecuteTemplate(w, name, data)
}
