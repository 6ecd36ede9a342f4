package actions

import (
	"context"
	"sort"
	"strings"

	"repl-toolkit/completion"
)

// Complete offers registered command names for a partial command typed at a command
// boundary. It follows the same boundary rule as LookupCommand, so "see /he" gets
// no candidates, and neither does a cursor placed before the prefix. Disabled and
// hidden actions are not offered.
func (r *Registry) Complete(_ context.Context, text string, cursor int) []completion.Candidate {
	if cursor < 0 || cursor > len(text) {
		cursor = len(text)
	}
	start, end, ok := commandToken(text, lineStartBefore(text, cursor), r.prefix)
	if !ok || cursor <= start || cursor > end {
		return nil
	}
	partial := text[start:cursor]

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []completion.Candidate
	for cmd, name := range r.commands {
		e := r.actions[name]
		if !e.enabled || e.action.Hidden || !strings.HasPrefix(cmd, partial) {
			continue
		}
		out = append(out, completion.Candidate{Text: cmd, Start: start, End: end, Display: cmd})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Text < out[j].Text })
	return out
}

var _ completion.Completer = (*Registry)(nil)
