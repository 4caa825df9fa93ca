package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milehighfry405/gtm-factory-sub000/core"
	"github.com/milehighfry405/gtm-factory-sub000/model"
)

func TestModelExtractor(t *testing.T) {
	turns := []core.Turn{user("Tell me about ACME.")}
	m := model.NewMockModel("mock", "mock")
	m.AddResponse(Transcript(turns), `{"goal":"Map ACME's pricing","constraints":["public sources only","unknown"],"success_criteria":"unknown","decision_context":"Pick a price point","hypothesis":"unknown","angles":["pricing","partners","Pricing"]}`)

	res, err := NewModel(m).Extract(context.Background(), turns)
	require.NoError(t, err)

	assert.Equal(t, "Map ACME's pricing", res.Brief.Goal)
	assert.Equal(t, []string{"public sources only"}, res.Brief.Constraints)
	assert.Equal(t, []string{"pricing", "partners"}, res.Brief.Angles)
	assert.Empty(t, res.Brief.Hypothesis)
	assert.Equal(t, []string{"success_criteria"}, res.Unknown)
	assert.Len(t, res.Questions, 1)
}

func TestModelExtractor_FallsBackOnGarbage(t *testing.T) {
	turns := []core.Turn{user("I want to research ACME's pricing.")}
	m := model.NewMockModel("mock", "mock")
	m.AddResponse(Transcript(turns), "Sure! The user wants pricing.")

	res, err := NewModel(m).Extract(context.Background(), turns)
	require.NoError(t, err)
	assert.Equal(t, "I want to research ACME's pricing.", res.Brief.Goal)
}

func TestModelExtractor_ModelError(t *testing.T) {
	m := model.NewMockModel("mock", "mock")
	m.FailNext(errors.New("down"))

	_, err := NewModel(m).Extract(context.Background(), []core.Turn{user("x")})
	assert.Error(t, err)
}
