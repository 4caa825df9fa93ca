package util

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecute(t *testing.T) {
	tests := []struct {
		name string
		text string
		data any
		want string
	}{
		{name: "no html escaping", text: "{{.Q}} & {{title .W}}", data: map[string]any{"Q": "<a>", "W": "pRICING"}, want: "<a> & Pricing"},
		{name: "bullets and join", text: `{{bullets .Items}}|{{join ", " .Items}}`, data: map[string]any{"Items": []string{"a", "b"}}, want: "- a\n- b|a, b"},
		{name: "empty bullets", text: `[{{bullets .Items}}]`, data: map[string]any{"Items": []string(nil)}, want: "[]"},
		{name: "default", text: `{{default "unknown" .Goal}}`, data: map[string]any{"Goal": ""}, want: "unknown"},
		{name: "missing key", text: `{{default "unknown" .Goal}}`, data: map[string]any{}, want: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Execute(MustParseTemplate(tt.name, tt.text), tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestParseTemplate_Error(t *testing.T) {
	_, err := ParseTemplate("broken", "{{")
	assert.Error(t, err)
	assert.Panics(t, func() { MustParseTemplate("broken", "{{") })
}

func TestStableID(t *testing.T) {
	ns := uuid.MustParse("6ba7b811-9dad-11d1-80b4-00c04fd430c8")

	assert.Equal(t, StableID(ns, "a", "b"), StableID(ns, "a", "b"))
	assert.NotEqual(t, StableID(ns, "a", "b"), StableID(ns, "ab"))
	assert.Len(t, NewID(), 12)
}
