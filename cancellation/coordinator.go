// Package cancellation runs one backend request at a time and lets it be aborted.
//
// A request moves Idle -> Armed -> (SignalSent) -> Idle. While Armed, the backend call
// races a one-shot cancel signal. If the signal wins, a backend tagged as cancellable
// gets its Cancel call first, and only then is the call's context cancelled. The
// signal and every listener feeding it live for exactly one request.
package cancellation

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"repl-toolkit/backend"
	"repl-toolkit/log"
)

// State is the coordinator's position in the request lifecycle.
type State int32

const (
	StateIdle State = iota
	StateArmed
	StateSignalSent
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateSignalSent:
		return "signal-sent"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ErrBusy is returned when Run is entered while another request is in flight.
var ErrBusy = errors.New("a cancellable request is already in flight")

// DefaultGrace bounds the wait for a backend call to return after its context has
// been cancelled.
const DefaultGrace = 5 * time.Second

// Outcome describes how a request ended.
type Outcome struct {
	// Result is the backend's continue/stop answer. Only meaningful when the call
	// completed, i.e. Cancelled is false and Err is nil.
	Result bool
	// Cancelled is set when the cancel signal won the race.
	Cancelled bool
	// Reason is the reason attached to the winning cancel signal.
	Reason string
	// Err is the error returned by (or recovered from) the backend call.
	Err error
}

// Completed reports whether the backend call ran to completion without error.
func (o Outcome) Completed() bool {
	return !o.Cancelled && o.Err == nil
}

// Listener feeds a request's cancel signal, e.g. from a key press. Listen is called
// when the request is armed; the returned stop function is called exactly once when
// the request ends, on every path.
type Listener interface {
	Listen(trigger func(reason string)) (stop func())
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(trigger func(reason string)) (stop func())

func (f ListenerFunc) Listen(trigger func(reason string)) func() {
	return f(trigger)
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithGrace sets how long to wait for a cancelled backend call to return before
// abandoning it.
func WithGrace(d time.Duration) Option {
	return func(c *Coordinator) {
		c.grace = d
	}
}

// WithLoggers routes the coordinator's logging through session loggers.
func WithLoggers(l *log.SessionLoggers) Option {
	return func(c *Coordinator) {
		c.logs = l
	}
}

// Coordinator manages a single in-flight cancellable request.
type Coordinator struct {
	state atomic.Int32
	grace time.Duration
	logs  *log.SessionLoggers

	mu      sync.Mutex
	current *signal
}

// New returns an idle coordinator.
func New(opts ...Option) *Coordinator {
	c := &Coordinator{grace: DefaultGrace}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Cancel fires the in-flight request's cancel signal. It returns false when no
// request is armed; a late call never reaches a later request.
func (c *Coordinator) Cancel(reason string) bool {
	c.mu.Lock()
	sig := c.current
	c.mu.Unlock()
	if sig == nil {
		return false
	}
	return sig.fire(reason)
}

type callResult struct {
	ok  bool
	err error
}

// Run hands req to the backend behind h and waits until the call completes or the
// request is cancelled. Cancellation is never reported as an error: the returned
// error is only for misuse (ErrBusy, backend.ErrUnbound).
func (c *Coordinator) Run(ctx context.Context, h backend.Handle, req backend.Request, listeners ...Listener) (Outcome, error) {
	if !h.Bound() {
		return Outcome{}, backend.ErrUnbound
	}
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateArmed)) {
		return Outcome{}, ErrBusy
	}

	sig := newSignal()
	c.mu.Lock()
	c.current = sig
	c.mu.Unlock()

	stops := make([]func(), 0, len(listeners))
	defer func() {
		for i := len(stops) - 1; i >= 0; i-- {
			stops[i]()
		}
		sig.close()
		c.mu.Lock()
		if c.current == sig {
			c.current = nil
		}
		c.mu.Unlock()
		c.state.Store(int32(StateIdle))
	}()

	// The call's context is detached from ctx: task-level cancellation must come
	// after the cooperative Cancel, so a cancelled parent is treated as a signal.
	callCtx, cancelCall := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelCall()

	req.RequestCancel = func(reason string) {
		sig.fire(reason)
	}

	done := make(chan callResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- callResult{err: fmt.Errorf("backend panicked: %v\n%s", r, debug.Stack())}
			}
		}()
		ok, err := h.HandleInput(callCtx, req)
		done <- callResult{ok: ok, err: err}
	}()

	for _, l := range listeners {
		if l == nil {
			continue
		}
		stop := l.Listen(func(reason string) { sig.fire(reason) })
		if stop != nil {
			stops = append(stops, stop)
		}
	}

	var reason string
	select {
	case res := <-done:
		return Outcome{Result: res.ok, Err: res.err}, nil
	case reason = <-sig.fired:
	case <-ctx.Done():
		reason = fmt.Sprintf("context done: %v", ctx.Err())
	}

	// A call that finished in the same instant as the signal still counts.
	select {
	case res := <-done:
		return Outcome{Result: res.ok, Err: res.err}, nil
	default:
	}

	c.state.Store(int32(StateSignalSent))
	c.debugf("cancelling request: %s", reason)

	if delivered, err := h.Cancel(reason); err != nil {
		c.errorf("backend cancel failed: %v", err)
	} else if delivered {
		c.debugf("cooperative cancel delivered to %s backend", h.Capability())
	}

	cancelCall()

	if c.grace > 0 {
		timer := time.NewTimer(c.grace)
		defer timer.Stop()
		select {
		case res := <-done:
			if res.err != nil && !errors.Is(res.err, context.Canceled) {
				c.debugf("cancelled request returned: %v", res.err)
			}
		case <-timer.C:
			c.warnf("backend did not return within %s of cancellation; abandoning it", c.grace)
		}
	} else {
		res := <-done
		if res.err != nil && !errors.Is(res.err, context.Canceled) {
			c.debugf("cancelled request returned: %v", res.err)
		}
	}

	return Outcome{Cancelled: true, Reason: reason}, nil
}

func (c *Coordinator) debugf(format string, args ...any) {
	if c.logs != nil {
		c.logs.DebugLog.Printf(format, args...)
		return
	}
	log.DebugLog.Printf(format, args...)
}

func (c *Coordinator) warnf(format string, args ...any) {
	if c.logs != nil {
		c.logs.WarningLog.Printf(format, args...)
		return
	}
	log.WarningLog.Printf(format, args...)
}

func (c *Coordinator) errorf(format string, args ...any) {
	if c.logs != nil {
		c.logs.ErrorLog.Printf(format, args...)
		return
	}
	log.ErrorLog.Printf(format, args...)
}
