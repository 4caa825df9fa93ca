package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type source struct {
	URL string `json:"url"`
}

type claim struct {
	Text    string   `json:"text"`
	Sources []source `json:"sources"`
}

type record struct {
	Name    string    `json:"name"`
	Count   int       `json:"count"`
	Tags    []string  `json:"tags,omitempty"`
	At      time.Time `json:"at"`
	Comment *string   `json:"comment"`
	Claims  []claim   `json:"claims,omitempty"`
	hidden  bool
}

func TestSchemaFor(t *testing.T) {
	s := SchemaFor(record{})

	assert.Equal(t, "object", s.Type)
	assert.Equal(t, "string", s.Properties["at"].Type)
	assert.Equal(t, "integer", s.Properties["count"].Type)
	assert.Equal(t, []string{"name", "count", "at"}, s.Required)
	assert.Equal(t, "string", s.Properties["claims"].Items.Properties["sources"].Items.Properties["url"].Type)
	assert.NotContains(t, s.Properties, "hidden")
	assert.Same(t, s, SchemaFor(&record{}))
}

func TestValidateJSON(t *testing.T) {
	tests := []struct {
		name string
		data string
		path string
	}{
		{name: "valid", data: `{"name":"a","count":2,"at":"2024-01-01T00:00:00Z","comment":null}`},
		{name: "null slice", data: `{"name":"a","count":2,"at":"x","claims":null}`},
		{name: "missing", data: `{"name":"a","at":"x"}`, path: "count"},
		{name: "wrong type", data: `{"name":"a","count":"two","at":"x"}`, path: "count"},
		{name: "fraction", data: `{"name":"a","count":1.5,"at":"x"}`, path: "count"},
		{name: "nested", data: `{"name":"a","count":1,"at":"x","claims":[{"text":"t","sources":[]},{"text":"u","sources":[{"url":3}]}]}`, path: "claims[1].sources[0].url"},
		{name: "nested missing", data: `{"name":"a","count":1,"at":"x","claims":[{"sources":[]}]}`, path: "claims[0].text"},
		{name: "not an object", data: `[1,2]`, path: "$"},
		{name: "malformed", data: `{`, path: "$"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateJSON([]byte(tt.data), record{})
			if tt.path == "" {
				assert.NoError(t, err)
				return
			}
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.path, ve.Path)
		})
	}
}
