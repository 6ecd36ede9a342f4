package actions

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode"

	"repl-toolkit/backend"
)

// Handler is the function signature for action implementations.
type Handler func(ctx *Context) error

// Printer emits text for the user. Sessions supply one that is safe to call while a
// prompt is being edited.
type Printer func(text string)

// Trigger records how an action was invoked.
type Trigger int

const (
	TriggerProgrammatic Trigger = iota
	TriggerCommand
	TriggerShortcut
)

func (t Trigger) String() string {
	switch t {
	case TriggerCommand:
		return "command"
	case TriggerShortcut:
		return "shortcut"
	default:
		return "programmatic"
	}
}

// Action is a named unit of behavior bound to a command and/or keyboard shortcuts.
// The registry keeps its own copy; an Action is never modified after registration
// except for its enabled state.
type Action struct {
	Name        string
	Description string
	Category    Category
	// Handler runs the action. A nil handler marks a main-loop action: dispatching it
	// does nothing and the session decides what it means (e.g. exit).
	Handler Handler

	// Command is the typed trigger including its prefix, e.g. "/help".
	Command      string
	CommandUsage string

	// Keys are shortcut specs, e.g. "F1" or "ctrl-s". They are normalized on
	// registration.
	Keys            []string
	KeysDescription string

	Disabled        bool
	Hidden          bool
	RequiresBackend bool
}

// HasCommand reports whether the action has a command binding.
func (a Action) HasCommand() bool {
	return a.Command != ""
}

// HasShortcut reports whether the action has at least one key binding.
func (a Action) HasShortcut() bool {
	return len(a.Keys) > 0
}

// IsMainLoop reports whether the session, not the registry, handles the action.
func (a Action) IsMainLoop() bool {
	return a.Handler == nil
}

// Validate checks the action definition against the registry's command prefix.
func (a Action) Validate(prefix string) error {
	if strings.TrimSpace(a.Name) == "" {
		return &DefinitionError{Message: "action name cannot be empty"}
	}
	if a.Command != "" {
		if !strings.HasPrefix(a.Command, prefix) || len(a.Command) == len(prefix) {
			return &DefinitionError{Action: a.Name, Message: fmt.Sprintf("command %q must start with %q", a.Command, prefix)}
		}
		if strings.IndexFunc(a.Command, unicode.IsSpace) >= 0 {
			return &DefinitionError{Action: a.Name, Message: fmt.Sprintf("command %q cannot contain whitespace", a.Command)}
		}
	}
	if !a.HasCommand() && !a.HasShortcut() && !a.IsMainLoop() {
		return &DefinitionError{Action: a.Name, Message: "action must have either a command or a key binding"}
	}
	return nil
}

func (a Action) clone() Action {
	if a.Keys != nil {
		a.Keys = append([]string(nil), a.Keys...)
	}
	return a
}

// Context is built fresh for every dispatch and must not be retained after the
// handler returns.
type Context struct {
	Registry *Registry
	// Backend is nil until a backend has been bound to the session.
	Backend backend.Backend
	// Args are the whitespace-separated tokens after the command. Empty for shortcuts.
	Args    []string
	Trigger Trigger
	// UserInput is the raw input line for command triggers.
	UserInput string
	// Key is the normalized shortcut for shortcut triggers.
	Key     string
	Printer Printer

	// Buffer is the text accumulated so far in headless mode.
	Buffer   string
	Headless bool
	// Insert places text into the pending input: the next prompt in interactive mode,
	// the accumulation buffer in headless mode. May be nil.
	Insert func(text string)

	ctx context.Context
}

// Context returns the context.Context of the dispatch.
func (c *Context) Context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// WithContext returns a shallow copy of c carrying ctx.
func (c *Context) WithContext(ctx context.Context) *Context {
	cp := *c
	cp.ctx = ctx
	return &cp
}

// Print writes through the context's printer.
func (c *Context) Print(a ...any) {
	c.emit(fmt.Sprint(a...))
}

// Printf writes a formatted line through the context's printer.
func (c *Context) Printf(format string, a ...any) {
	c.emit(fmt.Sprintf(format, a...))
}

func (c *Context) emit(text string) {
	if c.Printer != nil {
		c.Printer(text)
		return
	}
	fmt.Fprintln(os.Stdout, text)
}

// ValidateArgs checks the argument count, returning a ValidationError when it is
// out of range. max < 0 means unlimited.
func (c *Context) ValidateArgs(min, max int) error {
	if len(c.Args) < min {
		return Invalid("requires at least %d argument(s), got %d", min, len(c.Args))
	}
	if max >= 0 && len(c.Args) > max {
		return Invalid("accepts at most %d argument(s), got %d", max, len(c.Args))
	}
	return nil
}
