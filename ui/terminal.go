package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/muesli/termenv"

	"repl-toolkit/actions"
	"repl-toolkit/completion"
	"repl-toolkit/formatting"
	"repl-toolkit/history"
	"repl-toolkit/log"
)

// Terminal is the interactive line editor. It reads one entry at a time with a
// short-lived bubbletea program and prints above whichever program is running.
type Terminal struct {
	in     io.Reader
	out    io.Writer
	prompt string

	registry  *actions.Registry
	completer completion.Completer
	history   history.Store
	renderer  *formatting.Renderer
	logs      *log.SessionLoggers

	// programOpts are appended to every program, for tests.
	programOpts []tea.ProgramOption

	mu      sync.Mutex
	program *tea.Program
}

// TerminalOption configures a Terminal.
type TerminalOption func(*Terminal)

// WithInput reads key presses from r instead of stdin.
func WithInput(r io.Reader) TerminalOption {
	return func(t *Terminal) {
		t.in = r
	}
}

// WithOutput writes to w instead of stdout.
func WithOutput(w io.Writer) TerminalOption {
	return func(t *Terminal) {
		t.out = w
	}
}

// WithPrompt sets the prompt shown on the first line of input.
func WithPrompt(prompt string) TerminalOption {
	return func(t *Terminal) {
		t.prompt = prompt
	}
}

// WithRegistry enables command submission on enter, shortcuts and command completion.
func WithRegistry(r *actions.Registry) TerminalOption {
	return func(t *Terminal) {
		t.registry = r
	}
}

// WithCompletion replaces the default completer.
func WithCompletion(c completion.Completer) TerminalOption {
	return func(t *Terminal) {
		t.completer = c
	}
}

// WithHistoryStore keeps submitted entries in s.
func WithHistoryStore(s history.Store) TerminalOption {
	return func(t *Terminal) {
		t.history = s
	}
}

// WithProfile renders tagged output for profile. Without it text is printed as is.
func WithProfile(profile termenv.Profile) TerminalOption {
	return func(t *Terminal) {
		t.renderer = formatting.NewRenderer(profile)
	}
}

// WithTerminalLoggers routes diagnostics to l.
func WithTerminalLoggers(l *log.SessionLoggers) TerminalOption {
	return func(t *Terminal) {
		t.logs = l
	}
}

// WithProgramOptions adds options to every bubbletea program the terminal starts.
func WithProgramOptions(opts ...tea.ProgramOption) TerminalOption {
	return func(t *Terminal) {
		t.programOpts = append(t.programOpts, opts...)
	}
}

// NewTerminal creates a terminal. The default completer is the registry's command
// completion.
func NewTerminal(opts ...TerminalOption) *Terminal {
	t := &Terminal{
		out:    os.Stdout,
		prompt: "> ",
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.completer == nil && t.registry != nil {
		t.completer = t.registry
	}
	return t
}

// ReadLine shows the prompt pre-filled with initial and returns the submitted text.
// It returns io.EOF (or ErrInterrupted, which wraps it) when the user ends input,
// and *actions.MainLoopError when a shortcut fires a main-loop action.
func (t *Terminal) ReadLine(ctx context.Context, initial string) (string, error) {
	var entries []string
	if t.history != nil {
		entries = t.history.Entries()
	}

	popts := []PromptOption{
		WithPromptContext(ctx),
		WithCompleter(t.completer),
		WithHistory(entries),
	}
	if t.registry != nil {
		popts = append(popts,
			WithCommandCheck(t.registry.IsRegisteredCommand),
			WithShortcuts(t.shortcutHandler(ctx)),
		)
	}
	model := NewPromptModel(t.prompt, initial, popts...)

	final, err := t.run(ctx, model)
	if err != nil {
		return "", err
	}
	text, err := final.(*PromptModel).Result()
	if err != nil {
		return "", err
	}

	if t.history != nil && strings.TrimSpace(text) != "" {
		if herr := t.history.Append(text); herr != nil {
			t.warnf("failed to save history entry: %v", herr)
		}
	}
	return text, nil
}

// run starts a program for model and makes it the print target until it exits.
func (t *Terminal) run(ctx context.Context, model tea.Model) (tea.Model, error) {
	opts := []tea.ProgramOption{tea.WithOutput(t.out), tea.WithContext(ctx)}
	if t.in != nil {
		opts = append(opts, tea.WithInput(t.in))
	}
	opts = append(opts, t.programOpts...)

	p := tea.NewProgram(model, opts...)
	t.setProgram(p)
	defer t.clearProgram(p)

	final, err := p.Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("terminal: %w", err)
	}
	return final, nil
}

func (t *Terminal) setProgram(p *tea.Program) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.program = p
}

// clearProgram drops p as the print target unless another program replaced it.
func (t *Terminal) clearProgram(p *tea.Program) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.program == p {
		t.program = nil
	}
}

func (t *Terminal) activeProgram() *tea.Program {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.program
}

// Print writes text above the running prompt or spinner, or directly when neither
// is running. Safe for concurrent use. It never blocks on a program that has been
// killed; output sent while such a program shuts down is dropped.
func (t *Terminal) Print(text string) {
	if t.renderer != nil {
		text = t.renderer.Render(text)
	}
	if p := t.activeProgram(); p != nil {
		p.Send(tea.Println(text)())
		return
	}
	fmt.Fprintln(t.out, text)
}

// shortcutHandler dispatches unowned keys through the registry.
func (t *Terminal) shortcutHandler(ctx context.Context) ShortcutFunc {
	return func(k string, insert func(string), print func(string)) (bool, error) {
		printer := print
		if t.renderer != nil {
			printer = func(text string) { print(t.renderer.Render(text)) }
		}

		a, status := t.registry.HandleShortcut(ctx, k, actions.Invocation{
			Printer: printer,
			Insert:  insert,
		})
		switch status {
		case actions.StatusNotFound:
			return false, nil
		case actions.StatusMainLoop:
			return true, &actions.MainLoopError{Action: a}
		default:
			t.debugf("shortcut %s -> %s: %s", k, a.Name, status)
			return true, nil
		}
	}
}

func (t *Terminal) debugf(format string, args ...any) {
	if t.logs != nil {
		t.logs.DebugLog.Printf(format, args...)
		return
	}
	log.DebugLog.Printf(format, args...)
}

func (t *Terminal) warnf(format string, args ...any) {
	if t.logs != nil {
		t.logs.WarningLog.Printf(format, args...)
		return
	}
	log.WarningLog.Printf(format, args...)
}
