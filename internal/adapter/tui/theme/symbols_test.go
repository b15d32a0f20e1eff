package theme

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectUnicodeSupport(t *testing.T) {
	tests := []struct {
		name  string
		ascii string
		lcAll string
		lang  string
		want  bool
	}{
		{"forced ascii", "1", "", "en_US.UTF-8", false},
		{"utf8 lang", "", "", "en_US.UTF-8", true},
		{"c locale", "", "", "C", false},
		{"lc_all wins over lang", "", "POSIX", "en_US.UTF-8", false},
		{"no locale", "", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TUTOR_ASCII_SYMBOLS", tt.ascii)
			t.Setenv("LC_ALL", tt.lcAll)
			t.Setenv("LC_CTYPE", "")
			t.Setenv("LANG", tt.lang)
			assert.Equal(t, tt.want, DetectUnicodeSupport())
		})
	}
}

func TestInitSymbolsASCII(t *testing.T) {
	t.Cleanup(InitSymbols) // runs after the env is restored
	t.Setenv("TUTOR_ASCII_SYMBOLS", "1")
	InitSymbols()

	assert.Equal(t, "->", SymbolArrowR)
	assert.Equal(t, "[ERR]", SymbolError)
}

func TestConfidenceStyle(t *testing.T) {
	assert.Equal(t, TextSuccess.Render("x"), ConfidenceStyle(0.9).Render("x"))
	assert.Equal(t, TextWarning.Render("x"), ConfidenceStyle(0.7).Render("x"))
	assert.Equal(t, TextError.Render("x"), ConfidenceStyle(0.1).Render("x"))
}
