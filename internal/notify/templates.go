package notify

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
)

//go:embed templates/*
var templateFS embed.FS

const (
	TemplateWelcome       = "welcome"
	TemplatePurchase      = "purchase"
	TemplatePasswordReset = "password_reset"
	TemplateCancellation  = "cancellation"
)

var subjects = map[string]string{
	TemplateWelcome:       "Welcome to the studio",
	TemplatePurchase:      "Your order is confirmed",
	TemplatePasswordReset: "Reset your password",
	TemplateCancellation:  "Your subscription is scheduled to end",
}

// Renderer turns a template name and data into a ready message body.
type Renderer struct {
	html *htmltemplate.Template
	text *texttemplate.Template
}

func NewRenderer() (*Renderer, error) {
	html, err := htmltemplate.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse html templates: %w", err)
	}
	text, err := texttemplate.ParseFS(templateFS, "templates/*.txt")
	if err != nil {
		return nil, fmt.Errorf("parse text templates: %w", err)
	}
	return &Renderer{html: html, text: text}, nil
}

func (r *Renderer) Render(name, to string, data any) (Message, error) {
	subject, ok := subjects[name]
	if !ok {
		return Message{}, fmt.Errorf("unknown template %q", name)
	}
	var html, text bytes.Buffer
	if err := r.html.ExecuteTemplate(&html, name+".html", data); err != nil {
		return Message{}, fmt.Errorf("render %s html: %w", name, err)
	}
	if err := r.text.ExecuteTemplate(&text, name+".txt", data); err != nil {
		return Message{}, fmt.Errorf("render %s text: %w", name, err)
	}
	return Message{To: to, Subject: subject, HTML: html.String(), Text: text.String()}, nil
}
