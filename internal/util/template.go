package util

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// Funcs are the helpers available to every template parsed by this package.
var Funcs = template.FuncMap{
	"default": func(defaultVal any, val any) any {
		if val == nil || val == "" {
			return defaultVal
		}
		return val
	},
	"title": func(s string) string {
		if s == "" {
			return s
		}
		return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
	},
	"join": func(sep string, items []string) string {
		return strings.Join(items, sep)
	},
	"bullets": func(items []string) string {
		if len(items) == 0 {
			return ""
		}
		return "- " + strings.Join(items, "\n- ")
	},
}

// ParseTemplate parses text with Funcs installed. Briefings and documents
// are markdown, not HTML, so nothing is escaped.
func ParseTemplate(name, text string) (*template.Template, error) {
	tmpl, err := template.New(name).Funcs(Funcs).Option("missingkey=zero").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}
	return tmpl, nil
}

// MustParseTemplate is ParseTemplate for package-level templates.
func MustParseTemplate(name, text string) *template.Template {
	tmpl, err := ParseTemplate(name, text)
	if err != nil {
		panic(err)
	}
	return tmpl
}

// Execute renders tmpl with data.
func Execute(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
