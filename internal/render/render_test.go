package render_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/notifyhub/dispatch/internal/render"
)

func TestSubstitute(t *testing.T) {
	vars := map[string]any{"name": "World", "count": 3}

	tests := []struct {
		name string
		tmpl string
		want string
	}{
		{"double braces", "Hello {{name}}!", "Hello World!"},
		{"single braces", "Hello {name}!", "Hello World!"},
		{"mixed braces", "{{name}} has {count} items", "World has 3 items"},
		{"whitespace inside braces", "Hello {{ name }}!", "Hello World!"},
		{"no placeholders", "plain text", "plain text"},
		{"empty template", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := render.Substitute(tt.tmpl, vars)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestSubstitute_MissingVariable(t *testing.T) {
	_, err := render.Substitute("Hello {{name}}, you have {{count}} items", map[string]any{"name": "Ada"})
	if err == nil {
		t.Fatal("expected error for unresolved variable")
	}
	if !strings.Contains(err.Error(), "count") {
		t.Fatalf("expected error to name the missing variable, got: %v", err)
	}
}

func TestStaticRenderer_Render(t *testing.T) {
	r := render.NewStaticRenderer(map[string]render.Template{
		"welcome": {
			Subject: "Welcome, {{name}}!",
			Body:    "<p>Hi {name}.</p>",
		},
	})

	out, err := r.Render(context.Background(), "welcome", map[string]any{"name": "Ada"}, "en")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Subject != "Welcome, Ada!" {
		t.Fatalf("unexpected subject: %q", out.Subject)
	}
	if out.Body != "<p>Hi Ada.</p>" {
		t.Fatalf("unexpected body: %q", out.Body)
	}
}

func TestStaticRenderer_UnknownTemplate(t *testing.T) {
	r := render.NewStaticRenderer(nil)
	_, err := r.Render(context.Background(), "missing", nil, "en")
	if !errors.Is(err, render.ErrTemplateNotFound) {
		t.Fatalf("expected ErrTemplateNotFound, got %v", err)
	}
}
