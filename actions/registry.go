// Package actions maps typed commands and keyboard shortcuts onto handlers.
package actions

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"repl-toolkit/backend"
	"repl-toolkit/keys"
	"repl-toolkit/log"
)

// DefaultPrefix starts every command unless the registry is configured otherwise.
const DefaultPrefix = "/"

// Status is the result of dispatching an action.
type Status int

const (
	// StatusExecuted means the handler ran and returned without error.
	StatusExecuted Status = iota
	// StatusMainLoop means the action has no handler and the session must act on it.
	StatusMainLoop
	StatusDisabled
	StatusNotFound
	// StatusNoBackend means the action requires a backend and none is bound.
	StatusNoBackend
	// StatusFailed means the handler returned an error or panicked. It has been logged.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusExecuted:
		return "executed"
	case StatusMainLoop:
		return "main-loop"
	case StatusDisabled:
		return "disabled"
	case StatusNotFound:
		return "not-found"
	case StatusNoBackend:
		return "no-backend"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Match is a command recognized in user input.
type Match struct {
	Action  Action
	Command string
	Args    []string
	// Before is the input preceding the command's line, without its final newline.
	Before string
}

// Invocation carries the session-specific parts of a dispatch Context.
type Invocation struct {
	Printer  Printer
	Buffer   string
	Headless bool
	Insert   func(text string)
}

// Option configures a Registry.
type Option func(*Registry)

// WithPrefix sets the command prefix.
func WithPrefix(prefix string) Option {
	return func(r *Registry) {
		r.prefix = prefix
	}
}

// WithPrinter sets the default printer handed to handlers.
func WithPrinter(p Printer) Option {
	return func(r *Registry) {
		r.printer = p
	}
}

// WithoutBuiltins skips registering help, shortcuts, shell, exit and quit.
func WithoutBuiltins() Option {
	return func(r *Registry) {
		r.builtins = false
	}
}

// WithShellTimeout bounds commands run by the shell action.
func WithShellTimeout(d time.Duration) Option {
	return func(r *Registry) {
		r.shellTimeout = d
	}
}

// WithLoggers routes the registry's logging through session loggers.
func WithLoggers(l *log.SessionLoggers) Option {
	return func(r *Registry) {
		r.logs = l
	}
}

type entry struct {
	action  Action
	enabled bool
}

// Registry is the central registry for all actions, commands and shortcuts. It is
// safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	prefix    string
	actions   map[string]*entry
	order     []string
	commands  map[string]string // command -> action name
	shortcuts map[string]string // normalized key -> action name
	handle    backend.Handle
	printer   Printer

	builtins     bool
	shellTimeout time.Duration
	logs         *log.SessionLoggers
}

// NewRegistry creates a registry with the built-in actions registered.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		prefix:       DefaultPrefix,
		actions:      make(map[string]*entry),
		commands:     make(map[string]string),
		shortcuts:    make(map[string]string),
		builtins:     true,
		shellTimeout: DefaultShellTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.builtins {
		for _, a := range builtinActions(r.prefix) {
			if err := r.Register(a); err != nil {
				panic(fmt.Sprintf("registering built-in action %s: %v", a.Name, err))
			}
		}
	}
	return r
}

// Prefix returns the command prefix.
func (r *Registry) Prefix() string {
	return r.prefix
}

// Register adds an action. Either all of its name, command and keys are claimed or,
// on error, none are.
func (r *Registry) Register(a Action) error {
	if err := a.Validate(r.prefix); err != nil {
		return err
	}

	a = a.clone()
	normalized := make([]string, 0, len(a.Keys))
	seen := make(map[string]bool, len(a.Keys))
	for _, spec := range a.Keys {
		k, err := keys.Normalize(spec)
		if err != nil {
			return &DefinitionError{Action: a.Name, Message: err.Error()}
		}
		if keys.Reserved(k) {
			return &DefinitionError{Action: a.Name, Message: fmt.Sprintf("key %q is reserved by the line editor", spec)}
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		normalized = append(normalized, k)
	}
	if len(normalized) > 0 {
		a.Keys = normalized
	} else {
		a.Keys = nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.actions[a.Name]; exists {
		return &DuplicateActionError{Kind: "name", Value: a.Name}
	}
	if a.Command != "" {
		if owner, exists := r.commands[a.Command]; exists {
			return &DuplicateActionError{Kind: "command", Value: a.Command, Existing: owner}
		}
	}
	for _, k := range a.Keys {
		if owner, exists := r.shortcuts[k]; exists {
			return &DuplicateActionError{Kind: "shortcut", Value: k, Existing: owner}
		}
	}

	r.actions[a.Name] = &entry{action: a, enabled: !a.Disabled}
	r.order = append(r.order, a.Name)
	if a.Command != "" {
		r.commands[a.Command] = a.Name
	}
	for _, k := range a.Keys {
		r.shortcuts[k] = a.Name
	}

	r.debugf("registered action %s (command=%q keys=%v)", a.Name, a.Command, a.Keys)
	return nil
}

// Get returns a copy of the named action with Disabled reflecting its current state.
func (r *Registry) Get(name string) (Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.actions[name]
	if !exists {
		return Action{}, false
	}
	return e.snapshot(), true
}

func (e *entry) snapshot() Action {
	a := e.action.clone()
	a.Disabled = !e.enabled
	return a
}

// SetEnabled enables or disables an action. Repeating the same call has no further
// effect.
func (r *Registry) SetEnabled(name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.actions[name]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	e.enabled = enabled
	return nil
}

// Enabled reports whether the named action exists and is enabled.
func (r *Registry) Enabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.actions[name]
	return exists && e.enabled
}

// LookupCommand finds the first registered command at a command boundary in text.
func (r *Registry) LookupCommand(text string) (Match, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	start, end, ok := findCommand(text, r.prefix, func(token string) bool {
		_, exists := r.commands[token]
		return exists
	})
	if !ok {
		return Match{}, false
	}

	token := text[start:end]
	before := text[:lineStartBefore(text, start)]
	return Match{
		Action:  r.actions[r.commands[token]].snapshot(),
		Command: token,
		Args:    strings.Fields(text[end:]),
		Before:  strings.TrimSuffix(before, "\n"),
	}, true
}

// IsRegisteredCommand reports whether text contains a registered command at a
// command boundary.
func (r *Registry) IsRegisteredCommand(text string) bool {
	_, ok := r.LookupCommand(text)
	return ok
}

// LookupShortcut returns the action bound to key. Both human specs ("F1") and
// bubbletea key strings ("f1") are accepted.
func (r *Registry) LookupShortcut(key string) (Action, bool) {
	k, err := keys.Normalize(key)
	if err != nil {
		k = key
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	name, exists := r.shortcuts[k]
	if !exists {
		return Action{}, false
	}
	return r.actions[name].snapshot(), true
}

// Bind attaches the backend handlers will see. It may be called at any time; each
// dispatch reads the binding current at that moment.
func (r *Registry) Bind(h backend.Handle) {
	r.mu.Lock()
	r.handle = h
	r.mu.Unlock()
}

// Handle returns the currently bound backend handle.
func (r *Registry) Handle() backend.Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handle
}

// Backend returns the bound backend, or nil.
func (r *Registry) Backend() backend.Backend {
	return r.Handle().Backend()
}

// SetPrinter replaces the default printer.
func (r *Registry) SetPrinter(p Printer) {
	r.mu.Lock()
	r.printer = p
	r.mu.Unlock()
}

// Printer returns the default printer. It is never nil.
func (r *Registry) Printer() Printer {
	r.mu.RLock()
	p := r.printer
	r.mu.RUnlock()
	if p == nil {
		return func(text string) { fmt.Fprintln(os.Stdout, text) }
	}
	return p
}

// NewContext builds a dispatch context for the current binding.
func (r *Registry) NewContext(ctx context.Context, inv Invocation) *Context {
	p := inv.Printer
	if p == nil {
		p = r.Printer()
	}
	return &Context{
		Registry: r,
		Backend:  r.Backend(),
		Printer:  p,
		Buffer:   inv.Buffer,
		Headless: inv.Headless,
		Insert:   inv.Insert,
		ctx:      ctx,
	}
}

// Dispatch runs the named action. Handler errors and panics are logged and reported
// as StatusFailed; they never propagate to the caller.
func (r *Registry) Dispatch(name string, actx *Context) Status {
	r.mu.RLock()
	e, exists := r.actions[name]
	var a Action
	enabled := false
	if exists {
		a = e.action
		enabled = e.enabled
	}
	r.mu.RUnlock()

	if !exists {
		r.warnf("action not found: %s", name)
		return StatusNotFound
	}
	if !enabled {
		r.debugf("action %s is disabled", name)
		return StatusDisabled
	}
	if a.IsMainLoop() {
		return StatusMainLoop
	}
	if actx == nil {
		actx = r.NewContext(context.Background(), Invocation{})
	}
	if actx.Registry == nil {
		actx.Registry = r
	}
	if a.RequiresBackend && actx.Backend == nil {
		r.warnf("action %s requires a backend but none is bound", name)
		return StatusNoBackend
	}

	return r.invoke(a, actx)
}

func (r *Registry) invoke(a Action, actx *Context) (status Status) {
	defer func() {
		if p := recover(); p != nil {
			r.errorf("action %s panicked: %v\n%s", a.Name, p, debug.Stack())
			status = StatusFailed
		}
	}()

	if err := a.Handler(actx); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			r.warnf("action %s: %v", a.Name, err)
		} else {
			r.errorf("action %s failed: %v", a.Name, err)
		}
		return StatusFailed
	}
	return StatusExecuted
}

// HandleCommand recognizes and dispatches the command in text.
func (r *Registry) HandleCommand(ctx context.Context, text string, inv Invocation) (Match, Status) {
	m, ok := r.LookupCommand(text)
	if !ok {
		r.debugf("no registered command in input")
		return Match{}, StatusNotFound
	}

	actx := r.NewContext(ctx, inv)
	actx.Trigger = TriggerCommand
	actx.UserInput = text
	actx.Args = m.Args
	return m, r.Dispatch(m.Action.Name, actx)
}

// HandleShortcut dispatches the action bound to key.
func (r *Registry) HandleShortcut(ctx context.Context, key string, inv Invocation) (Action, Status) {
	a, ok := r.LookupShortcut(key)
	if !ok {
		return Action{}, StatusNotFound
	}

	actx := r.NewContext(ctx, inv)
	actx.Trigger = TriggerShortcut
	actx.Key = key
	return a, r.Dispatch(a.Name, actx)
}

// ListActions returns the registered actions in registration order, optionally
// restricted to one category.
func (r *Registry) ListActions(category Category) []Action {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Action, 0, len(r.order))
	for _, name := range r.order {
		e := r.actions[name]
		if category != "" && e.action.Category != category {
			continue
		}
		result = append(result, e.snapshot())
	}
	return result
}

// Categories returns every category in use, in display order.
func (r *Registry) Categories() []Category {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[Category]bool)
	var cats []Category
	for _, name := range r.order {
		c := r.actions[name].action.Category
		if !seen[c] {
			seen[c] = true
			cats = append(cats, c)
		}
	}
	sort.SliceStable(cats, func(i, j int) bool {
		return GetCategoryPriority(cats[i]) < GetCategoryPriority(cats[j])
	})
	return cats
}

// Commands returns every registered command, sorted.
func (r *Registry) Commands() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cmds := make([]string, 0, len(r.commands))
	for c := range r.commands {
		cmds = append(cmds, c)
	}
	sort.Strings(cmds)
	return cmds
}

// Shortcuts returns a copy of the key to action name bindings.
func (r *Registry) Shortcuts() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]string, len(r.shortcuts))
	for k, name := range r.shortcuts {
		result[k] = name
	}
	return result
}

// String returns a debug string representation of the registry
func (r *Registry) String() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sb strings.Builder
	sb.WriteString("Registry:\n")
	for _, name := range r.order {
		e := r.actions[name]
		sb.WriteString(fmt.Sprintf("  %s: %q %v enabled=%t\n", name, e.action.Command, e.action.Keys, e.enabled))
	}
	return sb.String()
}

func (r *Registry) debugf(format string, args ...any) {
	if r.logs != nil {
		r.logs.DebugLog.Printf(format, args...)
		return
	}
	log.DebugLog.Printf(format, args...)
}

func (r *Registry) warnf(format string, args ...any) {
	if r.logs != nil {
		r.logs.WarningLog.Printf(format, args...)
		return
	}
	log.WarningLog.Printf(format, args...)
}

func (r *Registry) errorf(format string, args ...any) {
	if r.logs != nil {
		r.logs.ErrorLog.Printf(format, args...)
		return
	}
	log.ErrorLog.Printf(format, args...)
}
