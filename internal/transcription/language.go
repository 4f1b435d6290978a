package transcription

import (
	"strings"

	"github.com/codebuildervaibhav/transcribe-worker/internal/types"
)

var languageNames = map[string]string{
	"czech":      "cs",
	"english":    "en",
	"spanish":    "es",
	"french":     "fr",
	"german":     "de",
	"italian":    "it",
	"portuguese": "pt",
	"russian":    "ru",
	"japanese":   "ja",
	"korean":     "ko",
	"chinese":    "zh",
	"hindi":      "hi",
	"arabic":     "ar",
	"dutch":      "nl",
	"polish":     "pl",
	"swedish":    "sv",
	"danish":     "da",
	"norwegian":  "no",
	"finnish":    "fi",
}

// NormalizeLanguage maps a caller-supplied language onto an ISO-639-1 code.
// Empty input and "auto" both mean language identification.
func NormalizeLanguage(language string) string {
	lang := strings.ToLower(strings.TrimSpace(language))
	if lang == "" || lang == types.LanguageAuto {
		return types.LanguageAuto
	}
	if len(lang) == 2 {
		return lang
	}
	if code, ok := languageNames[lang]; ok {
		return code
	}
	return lang
}
