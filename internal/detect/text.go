package detect

import (
	"regexp"
	"strings"

	"github.com/rivo/uniseg"
)

var sentenceSplitRe = regexp.MustCompile(`[.!?\n]+`)

// charLen counts user-perceived characters.
func charLen(s string) int {
	return uniseg.GraphemeClusterCount(s)
}

// tail returns the last n grapheme clusters of s.
func tail(s string, n int) string {
	total := charLen(s)
	if total <= n {
		return s
	}
	g := uniseg.NewGraphemes(s)
	for i := 0; i < total-n && g.Next(); i++ {
	}
	if !g.Next() {
		return ""
	}
	start, _ := g.Positions()
	return s[start:]
}

// lastSentence returns the last non-blank sentence of s, split on . ! ? and
// newlines.
func lastSentence(s string) string {
	parts := sentenceSplitRe.Split(s, -1)
	for i := len(parts) - 1; i >= 0; i-- {
		if strings.TrimSpace(parts[i]) != "" {
			return parts[i]
		}
	}
	return ""
}

// RecentWindow returns the slice of text the controller weighs most: the last
// sentence when it is longer than minSentence characters, otherwise the trailing
// window characters.
func RecentWindow(text string, minSentence, window int) string {
	if last := lastSentence(text); charLen(strings.TrimSpace(last)) > minSentence {
		return last
	}
	return tail(text, window)
}

// AtSentenceBoundary reports whether the cursor sits at a natural break: the
// text ends with terminal punctuation, a newline, or two spaces. Empty text
// counts as a boundary.
func AtSentenceBoundary(text string) bool {
	if strings.HasSuffix(text, "  ") {
		return true
	}
	if strings.HasSuffix(strings.TrimRight(text, " \t"), "\n") {
		return true
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return true
	}
	switch trimmed[len(trimmed)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}
