// Package app runs the interactive read, classify, dispatch loop.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"time"

	"github.com/muesli/termenv"

	"repl-toolkit/actions"
	"repl-toolkit/attachments"
	"repl-toolkit/backend"
	"repl-toolkit/cancellation"
	"repl-toolkit/completion"
	"repl-toolkit/config"
	"repl-toolkit/history"
	"repl-toolkit/log"
	"repl-toolkit/ui"
)

// LineEditor reads user input and prints without corrupting an active prompt.
type LineEditor interface {
	// ReadLine returns the next entry, pre-filled with initial. io.EOF ends the
	// session; *actions.MainLoopError reports a main-loop shortcut.
	ReadLine(ctx context.Context, initial string) (string, error)
	Print(text string)
}

// ThinkingIndicator is implemented by editors that show progress while a request
// runs and can feed cancel key presses to the coordinator.
type ThinkingIndicator interface {
	Thinking(ctx context.Context) cancellation.Listener
}

// REPL is an interactive session.
type REPL struct {
	cfg         *config.Config
	registry    *actions.Registry
	coordinator *cancellation.Coordinator
	editor      LineEditor
	attachments *attachments.Store
	listeners   []cancellation.Listener
	profile     termenv.Profile
	logs        *log.SessionLoggers
	// dropped rate-limits the warning for input sent with no backend bound.
	dropped *log.Every

	// pending pre-fills the next prompt.
	pending string
}

// Option configures a REPL.
type Option func(*REPL)

// WithConfig sets the session configuration.
func WithConfig(cfg *config.Config) Option {
	return func(r *REPL) {
		r.cfg = cfg
	}
}

// WithEditor replaces the default terminal editor.
func WithEditor(e LineEditor) Option {
	return func(r *REPL) {
		r.editor = e
	}
}

// WithAttachments shares an attachment store with the session.
func WithAttachments(s *attachments.Store) Option {
	return func(r *REPL) {
		r.attachments = s
	}
}

// WithListener adds a cancel signal source to every backend request.
func WithListener(l cancellation.Listener) Option {
	return func(r *REPL) {
		r.listeners = append(r.listeners, l)
	}
}

// WithProfile sets the colour profile of the default terminal editor.
func WithProfile(p termenv.Profile) Option {
	return func(r *REPL) {
		r.profile = p
	}
}

// WithLoggers routes the session's logging through l.
func WithLoggers(l *log.SessionLoggers) Option {
	return func(r *REPL) {
		r.logs = l
	}
}

// New creates a session with its own registry holding the built-in actions plus
// attach and paste.
func New(opts ...Option) (*REPL, error) {
	r := &REPL{
		cfg:     config.DefaultConfig(),
		profile: termenv.EnvColorProfile(),
		dropped: log.NewEvery(30 * time.Second),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.attachments == nil {
		r.attachments = attachments.NewStore()
	}

	r.registry = actions.NewRegistry(
		actions.WithPrefix(r.cfg.Prefix),
		actions.WithShellTimeout(r.cfg.ShellTimeout),
		actions.WithLoggers(r.logs),
	)
	for _, a := range []actions.Action{
		attachments.NewAttachAction(r.attachments, r.cfg.Prefix),
		ui.NewPasteAction(r.cfg.Prefix),
	} {
		if err := r.registry.Register(a); err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", a.Name, err)
		}
	}

	r.coordinator = cancellation.New(
		cancellation.WithGrace(r.cfg.CancelGrace),
		cancellation.WithLoggers(r.logs),
	)

	if r.editor == nil {
		r.editor = r.newTerminal()
	}
	r.registry.SetPrinter(r.editor.Print)
	return r, nil
}

func (r *REPL) newTerminal() *ui.Terminal {
	expansion := completion.NewShellExpansion(true)
	expansion.Timeout = r.cfg.ExpansionTimeout
	expansion.Logs = r.logs

	opts := []ui.TerminalOption{
		ui.WithPrompt(r.cfg.Prompt),
		ui.WithRegistry(r.registry),
		ui.WithCompletion(completion.Merge(r.registry, expansion)),
		ui.WithHistoryStore(history.OpenOrMemory(r.cfg.HistoryFile)),
		ui.WithTerminalLoggers(r.logs),
	}
	if r.cfg.AutoFormat {
		opts = append(opts, ui.WithProfile(r.profile))
	}
	return ui.NewTerminal(opts...)
}

// Registry returns the session's registry, for registering application actions
// before Run.
func (r *REPL) Registry() *actions.Registry {
	return r.registry
}

// Attachments returns the store attachments are collected in.
func (r *REPL) Attachments() *attachments.Store {
	return r.attachments
}

// Cancel cancels the in-flight backend request, if any.
func (r *REPL) Cancel(reason string) bool {
	return r.coordinator.Cancel(reason)
}

// Run binds h and reads input until the user exits, input ends, or the backend
// returns false. A non-empty initial is processed first as if typed. h may be
// unbound: plain input is then dropped and actions see no backend.
func (r *REPL) Run(ctx context.Context, h backend.Handle, initial string) error {
	r.registry.Bind(h)
	if h.Bound() {
		r.infof("session started with %s backend", h.Capability())
	} else {
		r.infof("session started without a backend")
	}

	if strings.TrimSpace(initial) != "" && !r.process(ctx, h, initial) {
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		prefill := r.pending
		r.pending = ""
		text, err := r.editor.ReadLine(ctx, prefill)
		if err != nil {
			var mainLoop *actions.MainLoopError
			switch {
			case errors.As(err, &mainLoop):
				if r.mainLoop(mainLoop.Action) {
					return nil
				}
				r.pending = prefill
				continue
			case errors.Is(err, io.EOF):
				r.infof("input ended: %v", err)
				return nil
			default:
				return err
			}
		}

		if !r.process(ctx, h, text) {
			return nil
		}
	}
}

// process classifies one entry and reports whether the loop continues.
func (r *REPL) process(ctx context.Context, h backend.Handle, text string) bool {
	if m, ok := r.registry.LookupCommand(text); ok {
		return r.executeCommand(ctx, text, m)
	}
	if strings.TrimSpace(text) == "" {
		return true
	}
	return r.send(ctx, h, text)
}

func (r *REPL) executeCommand(ctx context.Context, text string, m actions.Match) bool {
	// Text typed above the command line is kept for the next prompt.
	r.pending = m.Before

	_, status := r.registry.HandleCommand(ctx, text, actions.Invocation{
		Printer: r.editor.Print,
		Insert:  r.insert,
	})
	r.debugf("command %s: %s", m.Command, status)

	if status == actions.StatusMainLoop && r.mainLoop(m.Action) {
		return false
	}

	// Give goroutines the command started a chance to run before the next input.
	runtime.Gosched()
	return true
}

// mainLoop handles an action without a handler and reports whether it ends the
// session.
func (r *REPL) mainLoop(a actions.Action) bool {
	if actions.IsExit(a.Name) {
		r.infof("exit requested via %s", a.Name)
		return true
	}
	r.debugf("main-loop action %s has no meaning in an interactive session", a.Name)
	return false
}

func (r *REPL) insert(text string) {
	if r.pending != "" && !strings.HasSuffix(r.pending, "\n") && !strings.HasPrefix(text, " ") {
		r.pending += "\n"
	}
	r.pending += text
}

// send hands text to the backend through the coordinator. Backend errors and
// cancellations are logged and the session continues.
func (r *REPL) send(ctx context.Context, h backend.Handle, text string) bool {
	req := backend.Request{
		Input:       text,
		Attachments: r.attachments.Referenced(text),
	}
	defer r.attachments.Clear()

	listeners := append([]cancellation.Listener(nil), r.listeners...)
	if ti, ok := r.editor.(ThinkingIndicator); ok {
		listeners = append(listeners, ti.Thinking(ctx))
	}

	out, err := r.coordinator.Run(ctx, h, req, listeners...)
	if err != nil {
		if errors.Is(err, backend.ErrUnbound) {
			if r.dropped.ShouldLog() {
				r.warnf("no backend bound; input dropped")
			}
		} else {
			r.errorf("request not sent: %v", err)
		}
		return true
	}

	switch {
	case out.Cancelled:
		r.infof("request cancelled: %s", out.Reason)
		return true
	case out.Err != nil:
		r.errorf("backend failed: %v", out.Err)
		return true
	case !out.Result:
		r.infof("backend ended the session")
		return false
	}
	return true
}

func (r *REPL) debugf(format string, args ...any) {
	if r.logs != nil {
		r.logs.DebugLog.Printf(format, args...)
		return
	}
	log.DebugLog.Printf(format, args...)
}

func (r *REPL) infof(format string, args ...any) {
	if r.logs != nil {
		r.logs.InfoLog.Printf(format, args...)
		return
	}
	log.InfoLog.Printf(format, args...)
}

func (r *REPL) warnf(format string, args ...any) {
	if r.logs != nil {
		r.logs.WarningLog.Printf(format, args...)
		return
	}
	log.WarningLog.Printf(format, args...)
}

func (r *REPL) errorf(format string, args ...any) {
	if r.logs != nil {
		r.logs.ErrorLog.Printf(format, args...)
		return
	}
	log.ErrorLog.Printf(format, args...)
}
