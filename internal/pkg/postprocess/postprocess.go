package postprocess

import (
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	spaceBeforePunct = regexp.MustCompile(`\s+([,.;:!?])`)
	missingSpace     = regexp.MustCompile(`([,;:])(\S)`)
	repeatedPunct    = regexp.MustCompile(`([,;:])(\s*[,;:])+`)
	articleBeforeVow = regexp.MustCompile(`\b([Aa]) ([aeiouAEIOU])`)
)

// Clean turns generated tokens into a caption sentence. Special tokens such
// as <eos> are dropped.
func Clean(tokens []string) string {
	words := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" || isSpecial(tok) {
			continue
		}
		words = append(words, tok)
	}

	s := strings.Join(strings.Fields(strings.Join(words, " ")), " ")
	s = spaceBeforePunct.ReplaceAllString(s, "$1")
	s = repeatedPunct.ReplaceAllString(s, "$1")
	s = missingSpace.ReplaceAllString(s, "$1 $2")
	s = articleBeforeVow.ReplaceAllString(s, "${1}n $2")
	s = strings.TrimLeft(s, ",;: ")
	s = strings.TrimRight(s, ",;: ")
	if s == "" {
		return ""
	}

	r, size := utf8.DecodeRuneInString(s)
	s = string(unicode.ToUpper(r)) + s[size:]

	switch s[len(s)-1] {
	case '.', '!', '?':
	default:
		s += "."
	}
	return s
}

func isSpecial(tok string) bool {
	return len(tok) > 2 && strings.HasPrefix(tok, "<") && strings.HasSuffix(tok, ">")
}

// ClampConfidence maps NaN to 0 and clamps the value to [0,1].
func ClampConfidence(c float64) float64 {
	if math.IsNaN(c) {
		return 0
	}
	return math.Min(math.Max(c, 0), 1)
}

// WordCount counts words in a caption, ignoring punctuation.
func WordCount(caption string) int {
	return len(strings.FieldsFunc(caption, func(r rune) bool {
		return unicode.IsSpace(r) || (unicode.IsPunct(r) && r != '\'' && r != '-')
	}))
}
