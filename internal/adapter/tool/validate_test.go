package tool

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckParams(t *testing.T) {
	long := strings.Repeat("1+", maxExpressionLength)

	tests := []struct {
		name    string
		params  any
		wantErr string
	}{
		{"expression ok", calculatorParams{Expression: "2+2"}, ""},
		{"blank expression", calculatorParams{Expression: "  \t"}, "'expression' is required"},
		{"long expression", calculatorParams{Expression: long}, "'expression' exceeds maximum length of 500 characters"},
		{"equation ok", equationParams{Equation: "2x = 4"}, ""},
		{"missing equation", equationParams{Variable: "x"}, "'equation' is required"},
		{"subject unset", formulaParams{Action: "list"}, ""},
		{"subject ok", formulaParams{Action: "list", Subject: "physics"}, ""},
		{"subject bad", formulaParams{Action: "list", Subject: "chemistry"}, `invalid subject "chemistry" (want: math, physics)`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkParams(tt.params)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
}

func TestRequireText(t *testing.T) {
	assert.NoError(t, requireText("name", "kinetic energy"))
	for _, v := range []string{"", "   ", "\t\n"} {
		err := requireText("name", v)
		require.Error(t, err, "value %q", v)
		assert.Equal(t, "'name' is required", err.Error())
	}
}
