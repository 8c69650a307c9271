package render

import (
	"strings"
	"testing"
	"time"
)

func TestTemplatesParse(t *testing.T) {
	e, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, name := range []string{"summary.tmpl", "history.tmpl", "inspect.tmpl"} {
		if e.templates.Lookup(name) == nil {
			t.Errorf("template %s not defined", name)
		}
	}
}

func TestNilEngine(t *testing.T) {
	var e *Engine
	if _, err := e.Render("summary.tmpl", nil); err == nil {
		t.Fatal("Render on nil engine succeeded")
	}
}

func TestFuncs(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"timestamp", funcs["timestamp"].(func(time.Time) string)(start), "2026-03-01T10:00:00Z"},
		{"timestamp zero", funcs["timestamp"].(func(time.Time) string)(time.Time{}), "-"},
		{"elapsed", funcs["elapsed"].(func(time.Time, time.Time) string)(start, start.Add(1500*time.Millisecond)), "1.5s"},
		{"elapsed open", funcs["elapsed"].(func(time.Time, time.Time) string)(start, time.Time{}), "-"},
		{"dash", funcs["dash"].(func(string) string)(""), "-"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestInspectTemplate(t *testing.T) {
	e, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := e.Render("inspect.tmpl", map[string]any{
		"Address":     "10.0.0.5",
		"Identifier":  "FCH1234",
		"MaskedToken": "TOK***",
		"Systems":     []map[string]any{{"Model": "UCS-FI-6454"}},
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for _, want := range []string{"10.0.0.5", "FCH1234", "TOK***", "UCS-FI-6454"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
