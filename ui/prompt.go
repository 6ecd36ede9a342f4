package ui

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"repl-toolkit/completion"
	"repl-toolkit/history"
	"repl-toolkit/keys"
)

// ErrInterrupted is returned by ReadLine when the user presses ctrl+c at the prompt.
// It wraps io.EOF: both end the session cleanly.
var ErrInterrupted = fmt.Errorf("interrupted: %w", io.EOF)

// maxVisibleLines caps the height of the input area; longer input scrolls.
const maxVisibleLines = 10

// ShortcutFunc handles a key press the editor does not own. insert places text at
// the cursor and print emits output above the prompt. handled reports whether the
// key was bound; a non-nil stop ends the read with that error.
type ShortcutFunc func(key string, insert func(string), print func(string)) (handled bool, stop error)

// PromptModel is the bubbletea model for a single ReadLine. Enter inserts a newline
// unless the buffer holds a command; alt+enter always submits.
type PromptModel struct {
	textarea textarea.Model
	prompt   string

	promptStyle    lipgloss.Style
	candidateStyle lipgloss.Style

	isCommand func(string) bool
	completer completion.Completer
	shortcut  ShortcutFunc
	nav       *history.Navigator
	ctx       context.Context

	candidates []completion.Candidate

	submitted bool
	err       error
	done      bool
}

// PromptOption configures a PromptModel.
type PromptOption func(*PromptModel)

// WithCommandCheck makes enter submit when check reports the buffer is a command.
func WithCommandCheck(check func(string) bool) PromptOption {
	return func(m *PromptModel) {
		m.isCommand = check
	}
}

// WithCompleter enables tab completion.
func WithCompleter(c completion.Completer) PromptOption {
	return func(m *PromptModel) {
		m.completer = c
	}
}

// WithShortcuts routes unowned keys to fn.
func WithShortcuts(fn ShortcutFunc) PromptOption {
	return func(m *PromptModel) {
		m.shortcut = fn
	}
}

// WithHistory enables ctrl+p/ctrl+n (and up/down at the buffer edges) over entries.
func WithHistory(entries []string) PromptOption {
	return func(m *PromptModel) {
		m.nav = history.NewNavigator(entries)
	}
}

// WithPromptContext sets the context passed to completers.
func WithPromptContext(ctx context.Context) PromptOption {
	return func(m *PromptModel) {
		m.ctx = ctx
	}
}

// NewPromptModel creates a prompt showing prompt and pre-filled with initial.
func NewPromptModel(prompt, initial string, opts ...PromptOption) *PromptModel {
	ta := textarea.New()
	ta.ShowLineNumbers = false
	ta.Prompt = ""
	ta.Placeholder = ""
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()

	// Ensure no character limit
	ta.CharLimit = 0
	// Ensure no maximum height limit
	ta.MaxHeight = 0

	m := &PromptModel{
		textarea:       ta,
		prompt:         prompt,
		promptStyle:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#36CFC9")),
		candidateStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4")),
		ctx:            context.Background(),
	}
	for _, opt := range opts {
		opt(m)
	}

	promptWidth := runewidth.StringWidth(prompt)
	indent := strings.Repeat(" ", promptWidth)
	m.textarea.SetPromptFunc(promptWidth, func(lineIdx int) string {
		if lineIdx == 0 {
			return m.promptStyle.Render(prompt)
		}
		return indent
	})

	m.textarea.SetValue(initial)
	m.textarea.Focus()
	m.fitHeight()
	return m
}

// Init initializes the prompt model
func (m *PromptModel) Init() tea.Cmd {
	return textarea.Blink
}

// Value returns the current buffer.
func (m *PromptModel) Value() string {
	return m.textarea.Value()
}

// Result returns the submitted text, or the error that ended the read.
func (m *PromptModel) Result() (string, error) {
	if m.err != nil {
		return "", m.err
	}
	if !m.submitted {
		return "", ErrInterrupted
	}
	return m.textarea.Value(), nil
}

// Candidates returns the completion candidates currently listed.
func (m *PromptModel) Candidates() []completion.Candidate {
	return m.candidates
}

func (m *PromptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.textarea.SetWidth(max(10, msg.Width-1))
		return m, nil
	case tea.KeyMsg:
		cmd := m.HandleKeyPress(msg)
		m.fitHeight()
		return m, cmd
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	return m, cmd
}

// HandleKeyPress processes a key press and returns the command to run next.
func (m *PromptModel) HandleKeyPress(msg tea.KeyMsg) tea.Cmd {
	if m.done {
		return nil
	}
	listed := m.candidates
	m.candidates = nil
	k := msg.String()

	switch {
	case key.Matches(msg, keys.GlobalkeyBindings[keys.KeySubmit]):
		return m.finish(nil)
	case key.Matches(msg, keys.GlobalkeyBindings[keys.KeyNewline]):
		if m.isCommand != nil && m.isCommand(m.textarea.Value()) {
			return m.finish(nil)
		}
	case key.Matches(msg, keys.GlobalkeyBindings[keys.KeyInterrupt]):
		return m.finish(ErrInterrupted)
	case key.Matches(msg, keys.GlobalkeyBindings[keys.KeyEOF]):
		if m.textarea.Value() == "" {
			return m.finish(io.EOF)
		}
	case key.Matches(msg, keys.GlobalkeyBindings[keys.KeyComplete]):
		m.complete(listed)
		return nil
	case key.Matches(msg, keys.GlobalkeyBindings[keys.KeyHistoryPrev]),
		k == "up" && m.textarea.Line() == 0:
		if m.historyPrev() {
			return nil
		}
	case key.Matches(msg, keys.GlobalkeyBindings[keys.KeyHistoryNext]),
		k == "down" && m.textarea.Line() >= m.textarea.LineCount()-1:
		if m.historyNext() {
			return nil
		}
	default:
		if handled, cmd := m.routeShortcut(k); handled {
			return cmd
		}
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	return cmd
}

func (m *PromptModel) finish(err error) tea.Cmd {
	m.err = err
	m.submitted = err == nil
	m.done = true
	m.textarea.Blur()
	return tea.Quit
}

// routeShortcut hands k to the shortcut callback. Output is collected and printed
// through a command: printing synchronously from inside Update would block the
// program's own event loop.
func (m *PromptModel) routeShortcut(k string) (bool, tea.Cmd) {
	if m.shortcut == nil || keys.Reserved(k) {
		return false, nil
	}

	var printed []string
	var inserted strings.Builder
	handled, stop := m.shortcut(k,
		func(text string) { inserted.WriteString(text) },
		func(text string) { printed = append(printed, text) },
	)
	if !handled {
		return false, nil
	}
	if inserted.Len() > 0 {
		m.textarea.InsertString(inserted.String())
	}

	var cmds []tea.Cmd
	if len(printed) > 0 {
		cmds = append(cmds, tea.Println(strings.Join(printed, "\n")))
	}
	if stop != nil {
		cmds = append(cmds, m.finish(stop))
	}
	if len(cmds) == 0 {
		return true, nil
	}
	return true, tea.Sequence(cmds...)
}

func (m *PromptModel) complete(listed []completion.Candidate) {
	if m.completer == nil {
		return
	}
	text := m.textarea.Value()
	cursor := m.cursorOffset()
	cands := m.completer.Complete(m.ctx, text, cursor)

	switch len(cands) {
	case 0:
		return
	case 1:
		m.setValue(completion.Apply(text, cands[0]))
		return
	}

	if common, ok := completion.CommonPrefix(cands); ok && common.Start <= cursor && len(common.Text) > cursor-common.Start {
		m.setValue(completion.Apply(text, common))
	} else if len(listed) > 0 && sameCandidates(listed, cands) {
		// A second tab on the same list takes the first candidate.
		m.setValue(completion.Apply(text, cands[0]))
		return
	}
	m.candidates = cands
}

func sameCandidates(a, b []completion.Candidate) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (m *PromptModel) historyPrev() bool {
	if m.nav == nil {
		return false
	}
	entry, ok := m.nav.Prev(m.textarea.Value())
	if !ok {
		return false
	}
	m.textarea.SetValue(entry)
	return true
}

func (m *PromptModel) historyNext() bool {
	if m.nav == nil {
		return false
	}
	entry, ok := m.nav.Next()
	if !ok {
		return false
	}
	m.textarea.SetValue(entry)
	return true
}

// cursorOffset converts the textarea's row and column into a byte offset.
func (m *PromptModel) cursorOffset() int {
	lines := strings.Split(m.textarea.Value(), "\n")
	row := m.textarea.Line()
	if row >= len(lines) {
		row = len(lines) - 1
	}
	offset := 0
	for _, l := range lines[:row] {
		offset += len(l) + 1
	}
	info := m.textarea.LineInfo()
	col := info.StartColumn + info.ColumnOffset
	runes := []rune(lines[row])
	if col > len(runes) {
		col = len(runes)
	}
	return offset + len(string(runes[:col]))
}

// setValue replaces the buffer and puts the cursor at byte offset cursor.
func (m *PromptModel) setValue(text string, cursor int) {
	m.textarea.SetValue(text)
	if cursor > len(text) {
		cursor = len(text)
	}
	row := strings.Count(text[:cursor], "\n")
	for m.textarea.Line() > row {
		m.textarea.CursorUp()
	}
	lineStart := strings.LastIndexByte(text[:cursor], '\n') + 1
	m.textarea.SetCursor(len([]rune(text[lineStart:cursor])))
}

func (m *PromptModel) fitHeight() {
	lines := m.textarea.LineCount()
	if lines < 1 {
		lines = 1
	}
	if lines > maxVisibleLines {
		lines = maxVisibleLines
	}
	m.textarea.SetHeight(lines)
}

// View renders the prompt. Once the read is over only the plain text remains, so
// the transcript keeps what was entered.
func (m *PromptModel) View() string {
	if m.done {
		if m.err != nil && m.err != ErrInterrupted {
			return ""
		}
		indent := strings.Repeat(" ", runewidth.StringWidth(m.prompt))
		body := strings.ReplaceAll(m.textarea.Value(), "\n", "\n"+indent)
		return m.promptStyle.Render(m.prompt) + body + "\n"
	}

	view := m.textarea.View()
	if len(m.candidates) > 0 {
		labels := make([]string, len(m.candidates))
		for i, c := range m.candidates {
			labels[i] = c.Label()
		}
		view += "\n" + m.candidateStyle.Render(strings.Join(labels, "  "))
	}
	return view
}
