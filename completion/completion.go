// Package completion produces Tab-completion candidates for the input buffer.
package completion

import (
	"context"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Candidate is one possible completion. Applying it replaces text[Start:End] with
// Text.
type Candidate struct {
	Text  string
	Start int
	End   int
	// Display is shown when several candidates are listed. Defaults to Text.
	Display string
}

// Label returns the string shown for the candidate in listings.
func (c Candidate) Label() string {
	if c.Display != "" {
		return c.Display
	}
	return c.Text
}

// Completer returns candidates for text with the cursor at byte offset cursor.
type Completer interface {
	Complete(ctx context.Context, text string, cursor int) []Candidate
}

// Func adapts a function to Completer.
type Func func(ctx context.Context, text string, cursor int) []Candidate

func (f Func) Complete(ctx context.Context, text string, cursor int) []Candidate {
	return f(ctx, text, cursor)
}

// Apply replaces the candidate's span in text and returns the new text and cursor.
func Apply(text string, c Candidate) (string, int) {
	start, end := clamp(c.Start, len(text)), clamp(c.End, len(text))
	if end < start {
		end = start
	}
	return text[:start] + c.Text + text[end:], start + len(c.Text)
}

// CommonPrefix returns the longest prefix shared by candidates replacing the same
// span. ok is false when the spans differ or there are no candidates.
func CommonPrefix(cands []Candidate) (Candidate, bool) {
	if len(cands) == 0 {
		return Candidate{}, false
	}
	prefix := cands[0].Text
	for _, c := range cands[1:] {
		if c.Start != cands[0].Start || c.End != cands[0].End {
			return Candidate{}, false
		}
		for !strings.HasPrefix(c.Text, prefix) {
			_, size := utf8.DecodeLastRuneInString(prefix)
			prefix = prefix[:len(prefix)-size]
		}
	}
	return Candidate{Text: prefix, Start: cands[0].Start, End: cands[0].End}, true
}

// Merge combines completers, dropping candidates that repeat an earlier one.
func Merge(completers ...Completer) Completer {
	return Func(func(ctx context.Context, text string, cursor int) []Candidate {
		type key struct {
			text       string
			start, end int
		}
		seen := make(map[key]bool)
		var out []Candidate
		for _, c := range completers {
			if c == nil {
				continue
			}
			for _, cand := range c.Complete(ctx, text, cursor) {
				k := key{cand.Text, cand.Start, cand.End}
				if seen[k] {
					continue
				}
				seen[k] = true
				out = append(out, cand)
			}
		}
		return out
	})
}

// Prefix completes the word under the cursor from a fixed word list.
type Prefix struct {
	Words      []string
	IgnoreCase bool
}

// NewPrefix returns a Prefix completer over words.
func NewPrefix(words []string, ignoreCase bool) *Prefix {
	return &Prefix{Words: append([]string(nil), words...), IgnoreCase: ignoreCase}
}

func (p *Prefix) Complete(_ context.Context, text string, cursor int) []Candidate {
	cursor = clamp(cursor, len(text))
	start := WordStart(text, cursor)
	word := text[start:cursor]
	if word == "" {
		return nil
	}

	var out []Candidate
	for _, w := range p.Words {
		if p.match(w, word) {
			out = append(out, Candidate{Text: w, Start: start, End: cursor})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Text < out[j].Text })
	return out
}

func (p *Prefix) match(word, typed string) bool {
	if len(word) < len(typed) {
		return false
	}
	if p.IgnoreCase {
		return strings.EqualFold(word[:len(typed)], typed)
	}
	return strings.HasPrefix(word, typed)
}

// WordStart returns the offset where the whitespace-delimited word ending at cursor
// begins.
func WordStart(text string, cursor int) int {
	cursor = clamp(cursor, len(text))
	i := cursor
	for i > 0 {
		r, size := utf8.DecodeLastRuneInString(text[:i])
		if unicode.IsSpace(r) {
			break
		}
		i -= size
	}
	return i
}

func clamp(v, n int) int {
	if v < 0 {
		return 0
	}
	if v > n {
		return n
	}
	return v
}
