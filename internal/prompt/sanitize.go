package prompt

import (
	"regexp"
	"strings"
)

// Models asked not to cite still cite, especially with web search enabled.
// CleanForTTS strips everything a listener should never hear: citation
// markers, URLs, markdown, and source-list lines. The rules run in order;
// the structural rewrites (newlines to sentence breaks) come last. Applying
// the function twice yields the same output.
var sanitizeRules = []struct {
	re          *regexp.Regexp
	replacement string
}{
	// Private-use citation delimiters some providers embed in responses.
	{regexp.MustCompile(`(?s)\x{E200}.*?\x{E201}`), ""},
	// CJK-bracketed citation runs, e.g. 【3†source】.
	{regexp.MustCompile(`[\x{3010}\x{3016}][^\x{3011}\x{3017}]+[\x{3011}\x{3017}]`), ""},
	// Markdown links keep their label.
	{regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`), "${1}"},
	{regexp.MustCompile(`https?://\S+`), ""},
	// Bracketed reference numbers: [1], [1, 2], [3 4].
	{regexp.MustCompile(`\[\d+(?:[,\s]*\d+)*\]`), ""},
	{regexp.MustCompile(`(?i)\[(?:source|citation|ref)\w*\]`), ""},
	{regexp.MustCompile(`(?i)\[(?:source|sources|citation|citations|ref\w*|quelle|quellen)[^\]]*\]`), ""},
	// Footnote markers: [^1], [^source].
	{regexp.MustCompile(`(?i)\[\^(?:\d+|source|ref\w*)\]`), ""},
	// Parenthesized attributions: (Source: ...), (Quelle: ...).
	{regexp.MustCompile(`(?i)\((?:source|sources|citation|citations|reference|references|quelle|quellen)\s*:[^)]+\)`), ""},
	{regexp.MustCompile(`(?im)^[ \t]*(?:sources?|references?|citations?|quellen?)\s*:\s*$`), ""},
	// Superscript digits.
	{regexp.MustCompile(`[¹²³⁴⁵⁶⁷⁸⁹⁰]+`), ""},
	// Bold and italics keep their text.
	{regexp.MustCompile(`\*{1,3}([^*]+)\*{1,3}`), "${1}"},
	{regexp.MustCompile(`(?m)^#{1,6}\s+`), ""},
	// Bullet markers.
	{regexp.MustCompile(`(?m)^[ \t]*[-*•]\s+`), ""},
}

// Line-level filters: whole lines that carry only citation residue.
var dropLineRules = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(?:sources?|references?|citations?|quellen?)\s*:?\s*$`),
	regexp.MustCompile(`^(?:\[\d+\]|\d+[.)])\s*$`),
	regexp.MustCompile(`(?i)^(?:\[\d+\]|\d+[.)])\s*(?:https?://\S+|www\.\S+)\s*$`),
	regexp.MustCompile(`(?i)^(?:https?://\S+|www\.\S+)\s*$`),
}

// Structural cleanup after the content rules.
var (
	trailingSpaceRe = regexp.MustCompile(`[ \t]+\n`)
	paragraphRe     = regexp.MustCompile(`\n{2,}`)
	newlineRe       = regexp.MustCompile(`\n`)
	multiSpaceRe    = regexp.MustCompile(`  +`)
	spaceBeforeRe   = regexp.MustCompile(`\s+([,.;:!?])`)
	duplicatePunct  = regexp.MustCompile(`([,.;:!?]){2,}`)
)

// CleanForTTS strips citations, URLs, markdown, and other non-speakable
// artifacts from an LLM response. The result is a single line.
func CleanForTTS(text string) string {
	for _, rule := range sanitizeRules {
		text = rule.re.ReplaceAllString(text, rule.replacement)
	}

	var kept []string
	for _, line := range strings.Split(text, "\n") {
		stripped := strings.TrimSpace(line)
		if stripped == "" {
			kept = append(kept, line)
			continue
		}
		drop := false
		for _, re := range dropLineRules {
			if re.MatchString(stripped) {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, line)
		}
	}
	text = strings.Join(kept, "\n")

	text = trailingSpaceRe.ReplaceAllString(text, "\n")
	text = paragraphRe.ReplaceAllString(text, ". ")
	text = newlineRe.ReplaceAllString(text, " ")
	text = multiSpaceRe.ReplaceAllString(text, " ")
	text = spaceBeforeRe.ReplaceAllString(text, "${1}")
	text = duplicatePunct.ReplaceAllString(text, "${1}")
	return strings.TrimSpace(text)
}
