// Package headless drives a backend from line-oriented input without a terminal.
//
// Plain lines accumulate in a buffer. Registered commands run as they are read;
// the send command flushes the buffer to the backend, and whatever is left in the
// buffer at end of input is flushed the same way.
package headless

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/muesli/termenv"

	"repl-toolkit/actions"
	"repl-toolkit/attachments"
	"repl-toolkit/backend"
	"repl-toolkit/config"
	"repl-toolkit/formatting"
	"repl-toolkit/log"
)

// ActionSend is the name of the send action.
const ActionSend = "send_buffer"

// maxLineSize bounds a single input line.
const maxLineSize = 1024 * 1024

// Session is a headless batch session.
type Session struct {
	cfg         *config.Config
	registry    *actions.Registry
	attachments *attachments.Store
	in          io.Reader
	out         io.Writer
	profile     termenv.Profile
	logs        *log.SessionLoggers
	printer     actions.Printer

	buffer    strings.Builder
	sendCount int
	success   bool
	stopped   bool
}

// Option configures a Session.
type Option func(*Session)

// WithConfig sets the session configuration.
func WithConfig(cfg *config.Config) Option {
	return func(s *Session) {
		s.cfg = cfg
	}
}

// WithInput reads lines from r instead of stdin.
func WithInput(r io.Reader) Option {
	return func(s *Session) {
		s.in = r
	}
}

// WithOutput prints action output to w instead of stdout.
func WithOutput(w io.Writer) Option {
	return func(s *Session) {
		s.out = w
	}
}

// WithProfile sets the colour profile used to render tagged output.
func WithProfile(p termenv.Profile) Option {
	return func(s *Session) {
		s.profile = p
	}
}

// WithAttachments shares an attachment store with the session.
func WithAttachments(store *attachments.Store) Option {
	return func(s *Session) {
		s.attachments = store
	}
}

// WithLoggers routes the session's logging through l.
func WithLoggers(l *log.SessionLoggers) Option {
	return func(s *Session) {
		s.logs = l
	}
}

// New creates a session whose registry holds the built-ins, attach and send.
func New(opts ...Option) (*Session, error) {
	s := &Session{
		cfg:     config.DefaultConfig(),
		in:      os.Stdin,
		out:     os.Stdout,
		profile: termenv.Ascii,
		success: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.attachments == nil {
		s.attachments = attachments.NewStore()
	}

	s.printer = func(text string) {
		fmt.Fprintln(s.out, text)
	}
	if s.cfg.AutoFormat {
		s.printer = formatting.AutoPrinter(s.printer, s.profile)
	}

	s.registry = actions.NewRegistry(
		actions.WithPrefix(s.cfg.Prefix),
		actions.WithShellTimeout(s.cfg.ShellTimeout),
		actions.WithPrinter(s.printer),
		actions.WithLoggers(s.logs),
	)
	send := actions.Action{
		Name:        ActionSend,
		Description: "Send the accumulated input to the backend",
		Category:    actions.CategoryControl,
		Command:     s.cfg.SendCommand,
	}
	for _, a := range []actions.Action{send, attachments.NewAttachAction(s.attachments, s.cfg.Prefix)} {
		if err := s.registry.Register(a); err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", a.Name, err)
		}
	}
	return s, nil
}

// Registry returns the session's registry, for registering application actions
// before Run.
func (s *Session) Registry() *actions.Registry {
	return s.registry
}

// SendCount returns the number of non-empty sends so far.
func (s *Session) SendCount() int {
	return s.sendCount
}

// Buffer returns the text accumulated since the last send.
func (s *Session) Buffer() string {
	return s.buffer.String()
}

// Run binds h, sends initial if non-empty, then processes input until it ends. It
// reports whether every send succeeded. A backend returning false stops the run;
// a backend error stops it and is returned.
func (s *Session) Run(ctx context.Context, h backend.Handle, initial string) (bool, error) {
	s.registry.Bind(h)

	if strings.TrimSpace(initial) != "" {
		s.infof("processing initial message")
		if err := s.send(ctx, h, strings.TrimSpace(initial), "initial message"); err != nil || s.stopped {
			return false, err
		}
	}

	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lineNum := 0
	for !s.stopped && scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		lineNum++
		line := strings.TrimRight(scanner.Text(), "\r")

		m, ok := s.registry.LookupCommand(line)
		if !ok {
			s.addToBuffer(line)
			continue
		}
		if err := s.executeCommand(ctx, h, line, m, lineNum); err != nil {
			return false, err
		}
	}
	if err := scanner.Err(); err != nil {
		return false, fmt.Errorf("failed to read input: %w", err)
	}
	if s.stopped && !s.success {
		return false, nil
	}

	if strings.TrimSpace(s.buffer.String()) != "" {
		s.infof("end of input with non-empty buffer, sending")
		if err := s.flush(ctx, h, "EOF"); err != nil {
			return false, err
		}
	} else {
		s.debugf("end of input with empty buffer")
	}
	return s.success, nil
}

func (s *Session) addToBuffer(line string) {
	if s.buffer.Len() > 0 {
		s.buffer.WriteByte('\n')
	}
	s.buffer.WriteString(line)
	s.debugf("added line to buffer, total length: %d", s.buffer.Len())
}

func (s *Session) executeCommand(ctx context.Context, h backend.Handle, line string, m actions.Match, lineNum int) error {
	_, status := s.registry.HandleCommand(ctx, line, actions.Invocation{
		Printer:  s.printer,
		Buffer:   s.buffer.String(),
		Headless: true,
		Insert:   s.addToBuffer,
	})
	s.debugf("line %d: command %s: %s", lineNum, m.Command, status)

	if status == actions.StatusMainLoop {
		switch {
		case m.Action.Name == ActionSend:
			if err := s.flush(ctx, h, fmt.Sprintf("line %d", lineNum)); err != nil {
				return err
			}
		case actions.IsExit(m.Action.Name):
			// Exit ends the input; the buffer is still flushed.
			s.infof("line %d: %s, ignoring remaining input", lineNum, m.Command)
			s.stopped = true
			return nil
		default:
			s.debugf("main-loop action %s has no meaning in a headless session", m.Action.Name)
		}
	}

	runtime.Gosched()
	return nil
}

// flush sends the trimmed buffer, skipping an empty one, and clears it.
func (s *Session) flush(ctx context.Context, h backend.Handle, where string) error {
	content := strings.TrimSpace(s.buffer.String())
	s.buffer.Reset()
	if content == "" {
		s.debugf("send #%d at %s: empty buffer, skipping", s.sendCount+1, where)
		return nil
	}
	return s.send(ctx, h, content, where)
}

func (s *Session) send(ctx context.Context, h backend.Handle, content, where string) error {
	s.sendCount++
	n := s.sendCount
	s.infof("send #%d at %s: sending %d characters", n, where, len(content))

	req := backend.Request{
		Input:       content,
		Attachments: s.attachments.Referenced(content),
	}
	defer s.attachments.Clear()

	ok, err := s.call(ctx, h, req)
	if err != nil {
		s.errorf("send #%d failed: %v", n, err)
		s.success = false
		s.stopped = true
		return fmt.Errorf("send #%d failed: %w", n, err)
	}
	if !ok {
		s.warnf("send #%d: backend reported failure, stopping", n)
		s.success = false
		s.stopped = true
		return nil
	}
	s.infof("send #%d completed successfully", n)
	return nil
}

// call runs the backend on the caller's goroutine, turning a panic into an error.
func (s *Session) call(ctx context.Context, h backend.Handle, req backend.Request) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("backend panicked: %v\n%s", r, debug.Stack())
		}
	}()
	return h.HandleInput(ctx, req)
}

func (s *Session) debugf(format string, args ...any) {
	if s.logs != nil {
		s.logs.DebugLog.Printf(format, args...)
		return
	}
	log.DebugLog.Printf(format, args...)
}

func (s *Session) infof(format string, args ...any) {
	if s.logs != nil {
		s.logs.InfoLog.Printf(format, args...)
		return
	}
	log.InfoLog.Printf(format, args...)
}

func (s *Session) warnf(format string, args ...any) {
	if s.logs != nil {
		s.logs.WarningLog.Printf(format, args...)
		return
	}
	log.WarningLog.Printf(format, args...)
}

func (s *Session) errorf(format string, args ...any) {
	if s.logs != nil {
		s.logs.ErrorLog.Printf(format, args...)
		return
	}
	log.ErrorLog.Printf(format, args...)
}
