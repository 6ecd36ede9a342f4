package ui

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repl-toolkit/actions"
	"repl-toolkit/completion"
)

func typeText(m *PromptModel, text string) {
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
}

func press(m *PromptModel, t tea.KeyType) tea.Cmd {
	_, cmd := m.Update(tea.KeyMsg{Type: t})
	return cmd
}

func submit(m *PromptModel) tea.Cmd {
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter, Alt: true})
	return cmd
}

func TestEnterInsertsNewlineForPlainText(t *testing.T) {
	m := NewPromptModel("> ", "")
	typeText(m, "first")
	press(m, tea.KeyEnter)
	typeText(m, "second")
	assert.Equal(t, "first\nsecond", m.Value())

	cmd := submit(m)
	require.NotNil(t, cmd)
	text, err := m.Result()
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond", text)
}

func TestEnterSubmitsCommands(t *testing.T) {
	isCommand := func(s string) bool { return strings.HasPrefix(s, "/") }
	m := NewPromptModel("> ", "", WithCommandCheck(isCommand))
	typeText(m, "/help")
	cmd := press(m, tea.KeyEnter)
	require.NotNil(t, cmd)

	text, err := m.Result()
	require.NoError(t, err)
	assert.Equal(t, "/help", text)
}

func TestInitialValue(t *testing.T) {
	m := NewPromptModel("> ", "restored text")
	typeText(m, "!")
	assert.Equal(t, "restored text!", m.Value())
}

func TestInterruptAndEOF(t *testing.T) {
	m := NewPromptModel("> ", "")
	typeText(m, "draft")
	press(m, tea.KeyCtrlC)
	_, err := m.Result()
	assert.ErrorIs(t, err, ErrInterrupted)
	assert.ErrorIs(t, err, io.EOF)

	m = NewPromptModel("> ", "")
	press(m, tea.KeyCtrlD)
	_, err = m.Result()
	assert.Equal(t, io.EOF, err)

	// ctrl+d only ends input on an empty buffer.
	m = NewPromptModel("> ", "text")
	assert.Nil(t, press(m, tea.KeyCtrlD))
	submit(m)
	text, err := m.Result()
	require.NoError(t, err)
	assert.Equal(t, "text", text)
}

func TestKeysIgnoredAfterFinish(t *testing.T) {
	m := NewPromptModel("> ", "")
	typeText(m, "done")
	submit(m)
	typeText(m, " more")
	assert.Equal(t, "done", m.Value())
	assert.Contains(t, m.View(), "done")
}

func TestTabCompletesSingleCandidate(t *testing.T) {
	var gotCursor int
	c := completion.Func(func(_ context.Context, text string, cursor int) []completion.Candidate {
		gotCursor = cursor
		return []completion.Candidate{{Text: "/help", Start: 0, End: cursor}}
	})
	m := NewPromptModel("> ", "", WithCompleter(c))
	typeText(m, "/he")
	press(m, tea.KeyTab)

	assert.Equal(t, 3, gotCursor)
	assert.Equal(t, "/help", m.Value())
	typeText(m, " x")
	assert.Equal(t, "/help x", m.Value())
}

func TestTabListsSeveralCandidates(t *testing.T) {
	c := completion.NewPrefix([]string{"/help", "/hello", "/shell"}, false)
	m := NewPromptModel("> ", "", WithCompleter(c))
	typeText(m, "/h")
	press(m, tea.KeyTab)

	assert.Equal(t, "/hel", m.Value())
	require.Len(t, m.Candidates(), 2)
	assert.Contains(t, m.View(), "/hello")

	// Any other key clears the listing.
	typeText(m, "p")
	assert.Empty(t, m.Candidates())
	assert.Equal(t, "/help", m.Value())
}

func TestHistoryNavigation(t *testing.T) {
	m := NewPromptModel("> ", "", WithHistory([]string{"one", "two"}))
	typeText(m, "draft")

	press(m, tea.KeyCtrlP)
	assert.Equal(t, "two", m.Value())
	press(m, tea.KeyCtrlP)
	assert.Equal(t, "one", m.Value())
	press(m, tea.KeyCtrlN)
	assert.Equal(t, "two", m.Value())
	press(m, tea.KeyCtrlN)
	assert.Equal(t, "draft", m.Value())
}

func TestShortcutInsertsAndPrints(t *testing.T) {
	var keysSeen []string
	fn := func(k string, insert func(string), print func(string)) (bool, error) {
		keysSeen = append(keysSeen, k)
		if k != "f1" {
			return false, nil
		}
		print("help text")
		insert("[inserted]")
		return true, nil
	}
	m := NewPromptModel("> ", "", WithShortcuts(fn))
	typeText(m, "a")

	cmd := press(m, tea.KeyF1)
	assert.NotNil(t, cmd)
	assert.Equal(t, "a[inserted]", m.Value())

	press(m, tea.KeyF2)
	assert.Equal(t, []string{"a", "f1", "f2"}, keysSeen)
}

func TestReservedKeysNeverReachShortcuts(t *testing.T) {
	called := false
	fn := func(string, func(string), func(string)) (bool, error) {
		called = true
		return true, nil
	}
	m := NewPromptModel("> ", "", WithShortcuts(fn))
	press(m, tea.KeyTab)
	press(m, tea.KeyCtrlP)
	assert.False(t, called)
}

func TestShortcutCanEndTheRead(t *testing.T) {
	exit := actions.Action{Name: actions.ActionExit}
	fn := func(string, func(string), func(string)) (bool, error) {
		return true, &actions.MainLoopError{Action: exit}
	}
	m := NewPromptModel("> ", "", WithShortcuts(fn))
	require.NotNil(t, press(m, tea.KeyF9))

	_, err := m.Result()
	var mainLoop *actions.MainLoopError
	require.True(t, errors.As(err, &mainLoop))
	assert.Equal(t, actions.ActionExit, mainLoop.Action.Name)
}
