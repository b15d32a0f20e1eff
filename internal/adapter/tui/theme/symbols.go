package theme

import (
	"os"
	"strings"
)

// Glyphs used in terminal output. InitSymbols swaps them for ASCII when the
// locale does not look like UTF-8 or TUTOR_ASCII_SYMBOLS is set.
var (
	SymbolError  string
	SymbolBullet string
	SymbolArrowR string
	SymbolUser   = "You"
	SymbolTutor  = "Tutor"
)

// DetectUnicodeSupport reports whether the terminal likely renders Unicode.
// Without any locale variable it assumes yes.
func DetectUnicodeSupport() bool {
	if v := os.Getenv("TUTOR_ASCII_SYMBOLS"); v == "1" || strings.EqualFold(v, "true") {
		return false
	}
	for _, key := range []string{"LC_ALL", "LC_CTYPE", "LANG"} {
		v := strings.ToLower(os.Getenv(key))
		if v == "" {
			continue
		}
		return strings.Contains(v, "utf-8") || strings.Contains(v, "utf8")
	}
	return true
}

func InitSymbols() {
	if DetectUnicodeSupport() {
		SymbolError, SymbolBullet, SymbolArrowR = "✗", "•", "→"
		return
	}
	SymbolError, SymbolBullet, SymbolArrowR = "[ERR]", "*", "->"
}

func init() { InitSymbols() }
