package actions

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// A command is recognized only at a command boundary: the start of the input or the
// start of any line, optionally preceded by spaces or tabs on that line. The token
// runs from the prefix to the next whitespace. Text such as "see /help" never matches.

// lineStarts returns the byte offset of every line start in text.
func lineStarts(text string) []int {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// lineStartBefore returns the start of the line containing offset pos.
func lineStartBefore(text string, pos int) int {
	if pos > len(text) {
		pos = len(text)
	}
	return strings.LastIndexByte(text[:pos], '\n') + 1
}

// skipIndent advances past horizontal whitespace.
func skipIndent(text string, pos int) int {
	for pos < len(text) && (text[pos] == ' ' || text[pos] == '\t') {
		pos++
	}
	return pos
}

// tokenEnd returns the offset of the first whitespace rune at or after pos.
func tokenEnd(text string, pos int) int {
	for pos < len(text) {
		r, size := utf8.DecodeRuneInString(text[pos:])
		if unicode.IsSpace(r) {
			return pos
		}
		pos += size
	}
	return pos
}

// commandToken returns the span of the prefixed token at the line starting at
// lineStart, if there is one.
func commandToken(text string, lineStart int, prefix string) (start, end int, ok bool) {
	start = skipIndent(text, lineStart)
	if !strings.HasPrefix(text[start:], prefix) {
		return 0, 0, false
	}
	return start, tokenEnd(text, start), true
}

// findCommand scans line starts in order and returns the first prefixed token that
// accept agrees is a command.
func findCommand(text, prefix string, accept func(token string) bool) (start, end int, ok bool) {
	if prefix == "" {
		return 0, 0, false
	}
	for _, ls := range lineStarts(text) {
		s, e, found := commandToken(text, ls, prefix)
		if found && accept(text[s:e]) {
			return s, e, true
		}
	}
	return 0, 0, false
}
