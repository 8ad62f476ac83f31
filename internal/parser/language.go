package parser

import (
	"unicode"

	"signalrelay/internal/models"
)

// DetectLanguage classifies text as ru (Cyrillic present, no 3+ letter
// Latin run), mixed (both), or en (otherwise), per §4.2.
func DetectLanguage(text string) models.Language {
	hasCyrillic := false
	latinRun := 0
	hasLatinRun := false

	for _, r := range text {
		switch {
		case unicode.Is(unicode.Cyrillic, r):
			hasCyrillic = true
			latinRun = 0
		case unicode.IsLetter(r) && r <= unicode.MaxASCII:
			latinRun++
			if latinRun >= 3 {
				hasLatinRun = true
			}
		default:
			latinRun = 0
		}
	}

	switch {
	case hasCyrillic && hasLatinRun:
		return models.LanguageMixed
	case hasCyrillic:
		return models.LanguageRU
	default:
		return models.LanguageEN
	}
}
