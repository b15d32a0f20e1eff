package tool

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParametersFor(t *testing.T) {
	var schema struct {
		Schema     string                    `json:"$schema"`
		Type       string                    `json:"type"`
		Properties map[string]map[string]any `json:"properties"`
		Required   []string                  `json:"required"`
	}
	require.NoError(t, json.Unmarshal(ParametersFor(&equationParams{}), &schema))

	assert.Empty(t, schema.Schema)
	assert.Equal(t, "object", schema.Type)
	assert.Equal(t, []string{"equation"}, schema.Required)
	assert.Contains(t, schema.Properties, "variable")
	assert.Equal(t, "string", schema.Properties["equation"]["type"])
	assert.NotEmpty(t, schema.Properties["equation"]["description"])
}

func TestParametersFor_Enum(t *testing.T) {
	var schema struct {
		Properties map[string]struct {
			Enum []string `json:"enum"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	require.NoError(t, json.Unmarshal(ParametersFor(&formulaParams{}), &schema))

	assert.Equal(t, []string{"lookup", "list"}, schema.Properties["action"].Enum)
	assert.Equal(t, []string{"math", "physics"}, schema.Properties["subject"].Enum)
	assert.Equal(t, []string{"action"}, schema.Required)
}
