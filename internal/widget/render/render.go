// Package render turns a widget view into HTML fragments for the booking page.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"github.com/wolfman30/detailing-booking-widget/internal/widget"
)

//go:embed templates/*.html
var templateFS embed.FS

// Fragments are the independently swappable regions of the widget.
type Fragments struct {
	Nav      string `json:"nav"`
	Calendar string `json:"calendar"`
	Slots    string `json:"slots"`
	Summary  string `json:"summary"`
	Form     string `json:"form"`
	Feedback string `json:"feedback"`
}

// Renderer executes the widget templates.
type Renderer struct {
	tmpl *template.Template
}

// New parses the embedded templates.
func New() (*Renderer, error) {
	t, err := template.New("widget").Option("missingkey=error").ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("render: parse templates: %w", err)
	}
	return &Renderer{tmpl: t}, nil
}

// Must is New for package initialisation; it panics on a template error.
func Must() *Renderer {
	r, err := New()
	if err != nil {
		panic(err)
	}
	return r
}

// Render builds every fragment for v.
func (r *Renderer) Render(v widget.View) (Fragments, error) {
	var (
		f   Fragments
		err error
	)
	parts := []struct {
		name string
		data any
		dst  *string
	}{
		{"nav", v, &f.Nav},
		{"calendar", v.Calendar, &f.Calendar},
		{"slots", v.Slots, &f.Slots},
		{"summary", v.Summary, &f.Summary},
		{"form", v.Form, &f.Form},
		{"feedback", v.Feedback, &f.Feedback},
	}
	for _, p := range parts {
		if *p.dst, err = r.execute(p.name, p.data); err != nil {
			return Fragments{}, err
		}
	}
	return f, nil
}

func (r *Renderer) execute(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render: execute %s: %w", name, err)
	}
	return buf.String(), nil
}
