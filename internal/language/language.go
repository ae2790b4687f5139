// Package language detects the response language for voice selection.
//
// The assistant speaks English and German. Detection is intentionally
// lightweight: umlaut characters or common German function words mark a
// text as German, anything else falls back to the caller's hint.
package language

import "strings"

var germanChars = map[rune]bool{
	'ä': true, 'ö': true, 'ü': true, 'ß': true,
	'Ä': true, 'Ö': true, 'Ü': true,
}

// germanFunctionWords are high-frequency words that rarely appear in
// English text.
var germanFunctionWords = map[string]bool{
	"ich": true, "und": true, "der": true, "das": true, "ist": true,
	"ein": true, "eine": true, "nicht": true, "auf": true, "mit": true,
	"den": true, "dem": true, "sich": true, "von": true, "für": true,
	"aber": true, "wenn": true, "nur": true, "noch": true, "nach": true,
	"auch": true, "schon": true, "dann": true, "kann": true, "wir": true,
	"uns": true, "ihr": true, "wird": true, "oder": true, "sind": true,
	"bei": true, "haben": true, "hatte": true, "habe": true, "dir": true,
	"sehr": true, "hier": true, "diese": true, "dieser": true, "geht": true,
	"gibt": true, "bitte": true, "gerne": true, "danke": true, "jetzt": true,
	"kein": true, "keine": true, "mein": true, "meine": true, "dein": true,
	"immer": true, "dort": true, "denn": true, "weil": true,
}

const wordTrimCutset = ".,!?;:\"'()[]"

// Detect reports whether text is German or English. fallback is returned
// when neither signal fires; fallbacks outside {en, de} collapse to "en".
func Detect(text, fallback string) string {
	for _, r := range text {
		if germanChars[r] {
			return "de"
		}
	}

	for _, w := range strings.Fields(strings.ToLower(text)) {
		if germanFunctionWords[strings.Trim(w, wordTrimCutset)] {
			return "de"
		}
	}

	fallback = strings.ToLower(fallback)
	if fallback == "en" || fallback == "de" {
		return fallback
	}
	return "en"
}
