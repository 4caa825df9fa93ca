package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milehighfry405/gtm-factory-sub000/model"
)

func TestParams(t *testing.T) {
	m := NewModelFromClient(nil, func(o *Options) { o.Model = "gpt-4.1" })

	params, err := m.params(model.Request{
		System: "You are a research worker.",
		Messages: []model.Message{
			{Role: model.RoleUser, Text: "Mission"},
			{Role: model.RoleUser, Text: "  "},
			{Role: model.RoleAssistant, Text: "Ack"},
		},
		MaxTokens: 300,
		JSON:      true,
	})
	require.NoError(t, err)

	assert.Equal(t, "gpt-4.1", params.Model)
	assert.Equal(t, int64(300), params.MaxCompletionTokens.Value)
	require.Len(t, params.Messages, 3)
	assert.NotNil(t, params.Messages[0].OfSystem)
	require.NotNil(t, params.Messages[1].OfUser)
	assert.Equal(t, "Mission", params.Messages[1].OfUser.Content.OfString.Value)
	assert.NotNil(t, params.Messages[2].OfAssistant)
	assert.NotNil(t, params.ResponseFormat.OfJSONObject)
}

func TestParams_PlainText(t *testing.T) {
	m := NewModelFromClient(nil)

	params, err := m.params(model.Request{Messages: []model.Message{{Role: model.RoleUser, Text: "q"}}})
	require.NoError(t, err)
	assert.Nil(t, params.ResponseFormat.OfJSONObject)
	assert.Equal(t, int64(4096), params.MaxCompletionTokens.Value)
	assert.Len(t, params.Messages, 1)
}

func TestParams_NoUserMessage(t *testing.T) {
	_, err := NewModelFromClient(nil).params(model.Request{})
	assert.Error(t, err)
}

func TestInfo(t *testing.T) {
	assert.Equal(t, "openai", NewModelFromClient(nil).Info().Provider)
}
