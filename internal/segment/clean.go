package segment

import (
	"regexp"
	"strings"
	"unicode"
)

// Text sanitization for speech synthesis: utterances come straight out of a
// language model and may carry markdown, URLs, or other markup that reads
// badly aloud.

var (
	reCodeBlock   = regexp.MustCompile("```[\\s\\S]*?```")
	reInlineCode  = regexp.MustCompile("`([^`]+)`")
	reBoldStars   = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	reBoldUnder   = regexp.MustCompile(`__([^_]+)__`)
	reItalicStars = regexp.MustCompile(`\*([^*]+)\*`)
	reItalicUnder = regexp.MustCompile(`_([^_]+)_`)
	reHeader      = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	reMarkdownURL = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	reHTTPURL     = regexp.MustCompile(`https?://\S+`)
	reWWWURL      = regexp.MustCompile(`www\.\S+`)
	reEmail       = regexp.MustCompile(`\S+@\S+\.\S+`)
	reBangRun     = regexp.MustCompile(`!{2,}`)
	reQuestionRun = regexp.MustCompile(`\?{2,}`)
	reDotRun      = regexp.MustCompile(`\.{3,}`)
	reCommaRun    = regexp.MustCompile(`,{2,}`)
	reSymbols     = regexp.MustCompile("[@#$%^&*|\\\\/<>~`=+]+")
	reDashRun     = regexp.MustCompile(`-{2,}`)
	reEmptyBraces = regexp.MustCompile(`[(\[{]\s*[)\]}]`)
	reNumParens   = regexp.MustCompile(`\([0-9\s]+\)`)
	reWhitespace  = regexp.MustCompile(`\s+`)
)

// Clean strips markup and collapses noise so the text is speakable.
// Returns "" when nothing speakable remains.
func Clean(text string) string {
	cleaned := strings.TrimSpace(text)
	if cleaned == "" {
		return ""
	}

	cleaned = reCodeBlock.ReplaceAllString(cleaned, "")
	cleaned = reInlineCode.ReplaceAllString(cleaned, "$1")
	cleaned = reBoldStars.ReplaceAllString(cleaned, "$1")
	cleaned = reBoldUnder.ReplaceAllString(cleaned, "$1")
	cleaned = reItalicStars.ReplaceAllString(cleaned, "$1")
	cleaned = reItalicUnder.ReplaceAllString(cleaned, "$1")
	cleaned = reHeader.ReplaceAllString(cleaned, "")
	cleaned = reMarkdownURL.ReplaceAllString(cleaned, "$1")
	cleaned = reHTTPURL.ReplaceAllString(cleaned, "link")
	cleaned = reWWWURL.ReplaceAllString(cleaned, "link")
	cleaned = reEmail.ReplaceAllString(cleaned, "email address")
	cleaned = reBangRun.ReplaceAllString(cleaned, "!")
	cleaned = reQuestionRun.ReplaceAllString(cleaned, "?")
	cleaned = reDotRun.ReplaceAllString(cleaned, "...")
	cleaned = reCommaRun.ReplaceAllString(cleaned, ",")
	cleaned = reSymbols.ReplaceAllString(cleaned, " ")
	cleaned = reDashRun.ReplaceAllString(cleaned, " ")
	cleaned = reEmptyBraces.ReplaceAllString(cleaned, "")
	cleaned = reNumParens.ReplaceAllString(cleaned, "")
	cleaned = reWhitespace.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(cleaned)

	if purePunctuation(cleaned) {
		return ""
	}
	return cleaned
}

// Speakable reports whether cleaned text carries enough real content for
// synthesis: at least minWords words and an alphabetic character ratio of at
// least alphaRatio.
func Speakable(cleaned string, minWords int, alphaRatio float64) bool {
	if cleaned == "" {
		return false
	}
	if len(strings.Fields(cleaned)) < minWords {
		return false
	}
	var alpha int
	runes := []rune(cleaned)
	for _, r := range runes {
		if unicode.IsLetter(r) {
			alpha++
		}
	}
	return float64(alpha)/float64(len(runes)) >= alphaRatio
}

// CleanAndValidate sanitizes text and checks it is worth synthesizing.
// Returns the cleaned text and false when the utterance should be skipped.
func CleanAndValidate(text string, minWords int, alphaRatio float64) (string, bool) {
	cleaned := Clean(text)
	if !Speakable(cleaned, minWords, alphaRatio) {
		return "", false
	}
	return cleaned, true
}
