package language

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type entry struct {
	code    string // BCP 47 style code accepted at submission
	base    string // bare ISO 639-1 part, used for source-language matching
	display string
}

// Catalogue of languages the translation providers are known to handle.
// Regional Chinese variants keep their region tag because the translator
// distinguishes Simplified from Traditional output.
var languages = []entry{
	{"en", "en", "English"},
	{"zh-CN", "zh", "Chinese (Simplified)"},
	{"zh-TW", "zh", "Chinese (Traditional)"},
	{"ja", "ja", "Japanese"},
	{"ko", "ko", "Korean"},
	{"fr", "fr", "French"},
	{"de", "de", "German"},
	{"es", "es", "Spanish"},
	{"it", "it", "Italian"},
	{"ru", "ru", "Russian"},
	{"pt", "pt", "Portuguese"},
	{"ar", "ar", "Arabic"},
	{"hi", "hi", "Hindi"},
	{"th", "th", "Thai"},
	{"vi", "vi", "Vietnamese"},
}

var byCode = func() map[string]*entry {
	m := make(map[string]*entry, len(languages))
	for i := range languages {
		m[strings.ToLower(languages[i].code)] = &languages[i]
	}
	return m
}()

// Info describes one supported language for API and CLI listings.
type Info struct {
	Code        string `json:"code"`
	DisplayName string `json:"display_name"`
}

// List returns the supported languages in catalogue order.
func List() []Info {
	out := make([]Info, 0, len(languages))
	for _, e := range languages {
		out = append(out, Info{Code: e.code, DisplayName: e.display})
	}
	return out
}

// Normalize canonicalizes a submitted language code to its catalogue form.
// The second return is false when the code is not supported.
func Normalize(code string) (string, bool) {
	e, ok := byCode[strings.ToLower(strings.TrimSpace(code))]
	if !ok {
		return "", false
	}
	return e.code, true
}

// Supported reports whether a submitted code is in the catalogue.
func Supported(code string) bool {
	_, ok := Normalize(code)
	return ok
}

// Display returns a human-readable name for a catalogue code. Unknown codes
// are title-cased as a fallback so log output stays readable.
func Display(code string) string {
	if e, ok := byCode[strings.ToLower(strings.TrimSpace(code))]; ok {
		return e.display
	}
	return cases.Title(language.Und).String(strings.TrimSpace(code))
}

// MatchesSource reports whether a requested target language is the same
// language the recognizer detected, ignoring region subtags. Whisper-style
// recognizers report bare ISO 639-1 codes ("zh", "en").
func MatchesSource(target, detected string) bool {
	e, ok := byCode[strings.ToLower(strings.TrimSpace(target))]
	if !ok {
		return false
	}
	detected = strings.ToLower(strings.TrimSpace(detected))
	if detected == "" {
		return false
	}
	if base, _, found := strings.Cut(detected, "-"); found {
		detected = base
	}
	return e.base == detected
}
