// Package render resolves template content into deliverable subject/body
// pairs. Production workers call the external template service over HTTP;
// StaticRenderer serves tests and degraded setups with in-process templates.
package render

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Rendered is the output of a template render: Subject doubles as the push
// notification title.
type Rendered struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Renderer produces deliverable content from a template code and variables.
type Renderer interface {
	Render(ctx context.Context, templateCode string, variables map[string]any, language string) (*Rendered, error)
}

// ErrTemplateNotFound indicates a missing or inactive template.
var ErrTemplateNotFound = errors.New("template not found")

var (
	doubleBraceRe = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)
	singleBraceRe = regexp.MustCompile(`\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}`)
)

// Substitute replaces template placeholders with variable values. Both the
// `{{name}}` syntax and the legacy `{name}` syntax are accepted and render
// identically. An unresolvable placeholder is an error, not silent output.
func Substitute(tmpl string, vars map[string]any) (string, error) {
	if tmpl == "" {
		return "", nil
	}

	var missing []string
	expand := func(match string, re *regexp.Regexp) string {
		name := re.FindStringSubmatch(match)[1]
		v, ok := vars[name]
		if !ok {
			missing = append(missing, name)
			return match
		}
		return fmt.Sprint(v)
	}

	out := doubleBraceRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		return expand(m, doubleBraceRe)
	})
	out = singleBraceRe.ReplaceAllStringFunc(out, func(m string) string {
		return expand(m, singleBraceRe)
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("unresolved template variables: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// Template is one static template definition.
type Template struct {
	Subject string
	Body    string
}

// StaticRenderer renders from an in-process template set.
type StaticRenderer struct {
	templates map[string]Template
}

func NewStaticRenderer(templates map[string]Template) *StaticRenderer {
	return &StaticRenderer{templates: templates}
}

func (r *StaticRenderer) Render(_ context.Context, templateCode string, variables map[string]any, _ string) (*Rendered, error) {
	t, ok := r.templates[templateCode]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, templateCode)
	}
	subject, err := Substitute(t.Subject, variables)
	if err != nil {
		return nil, fmt.Errorf("render subject %s: %w", templateCode, err)
	}
	body, err := Substitute(t.Body, variables)
	if err != nil {
		return nil, fmt.Errorf("render body %s: %w", templateCode, err)
	}
	return &Rendered{Subject: subject, Body: body}, nil
}

var _ Renderer = (*StaticRenderer)(nil)
