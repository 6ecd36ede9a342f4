// Package backend defines the contract between a REPL session and the application code
// that processes user input.
//
// A backend is bound to a session through a Handle. The handle carries an explicit
// capability tag: Plain for backends that only process input, Cancel for backends that
// also accept a cooperative cancellation request. Sessions check the tag, never the
// dynamic type, when deciding whether to call Cancel.
package backend

import (
	"context"
	"errors"
	"fmt"
)

// Attachment is auxiliary binary content sent along with the input text, e.g. a pasted
// image. The input text references it through a placeholder token containing its ID.
type Attachment struct {
	ID        string
	MediaType string
	Data      []byte
}

// Request is one unit of input handed to a backend.
type Request struct {
	Input       string
	Attachments map[string]Attachment

	// RequestCancel asks the session to cancel this request. It is safe to call from
	// any goroutine, any number of times, and is a no-op once the request has ended.
	// Work spawned by the backend can use it without access to session internals.
	RequestCancel func(reason string)
}

// Cancel calls RequestCancel when it is set.
func (r Request) Cancel(reason string) {
	if r.RequestCancel != nil {
		r.RequestCancel(reason)
	}
}

// Backend processes user input. It returns true to keep the session running and
// false to end it. The context is cancelled when the request is cancelled.
type Backend interface {
	HandleInput(ctx context.Context, req Request) (bool, error)
}

// Canceller is the cooperative cancellation entry point. Cancel must not block: it
// should set a flag, signal a subprocess, or similar, and return.
type Canceller interface {
	Cancel(reason string)
}

// CancellableBackend is a backend that also supports cooperative cancellation.
type CancellableBackend interface {
	Backend
	Canceller
}

// Func adapts a plain function to Backend.
type Func func(ctx context.Context, req Request) (bool, error)

func (f Func) HandleInput(ctx context.Context, req Request) (bool, error) {
	return f(ctx, req)
}

// Capability classifies a bound backend.
type Capability uint8

const (
	// CapabilityPlain backends only handle input.
	CapabilityPlain Capability = iota
	// CapabilityCancel backends also take cooperative cancel requests.
	CapabilityCancel
)

func (c Capability) String() string {
	switch c {
	case CapabilityPlain:
		return "plain"
	case CapabilityCancel:
		return "cancellable"
	default:
		return fmt.Sprintf("capability(%d)", uint8(c))
	}
}

// ErrUnbound is returned when a session is asked to use a Handle with no backend.
var ErrUnbound = errors.New("no backend bound")

// Handle is a tagged reference to a backend. The zero value is unbound.
type Handle struct {
	backend    Backend
	canceller  Canceller
	capability Capability
}

// Plain binds a backend without cooperative cancellation, even if its dynamic type
// happens to have a Cancel method.
func Plain(b Backend) Handle {
	if b == nil {
		return Handle{}
	}
	return Handle{backend: b, capability: CapabilityPlain}
}

// Cancellable binds a backend that takes cooperative cancel requests.
func Cancellable(b CancellableBackend) Handle {
	if b == nil {
		return Handle{}
	}
	return Handle{backend: b, canceller: b, capability: CapabilityCancel}
}

// Bound reports whether the handle refers to a backend.
func (h Handle) Bound() bool {
	return h.backend != nil
}

// Backend returns the bound backend, or nil.
func (h Handle) Backend() Backend {
	return h.backend
}

// Capability returns the handle's capability tag.
func (h Handle) Capability() Capability {
	return h.capability
}

// HandleInput forwards to the bound backend.
func (h Handle) HandleInput(ctx context.Context, req Request) (bool, error) {
	if h.backend == nil {
		return false, ErrUnbound
	}
	return h.backend.HandleInput(ctx, req)
}

// Cancel delivers a cooperative cancel request when the handle is tagged cancellable.
// A panic inside the backend's Cancel is recovered and returned as an error so that
// cancellation cleanup never takes down the caller.
func (h Handle) Cancel(reason string) (delivered bool, err error) {
	if h.capability != CapabilityCancel || h.canceller == nil {
		return false, nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("backend cancel panicked: %v", r)
		}
	}()
	h.canceller.Cancel(reason)
	return true, nil
}
