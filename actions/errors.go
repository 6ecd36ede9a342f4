package actions

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicate is wrapped by every DuplicateActionError.
	ErrDuplicate = errors.New("duplicate action")
	// ErrNotFound is returned for operations on an unknown action name.
	ErrNotFound = errors.New("action not found")
)

// DuplicateActionError reports a registration that collides with an existing action.
type DuplicateActionError struct {
	// Kind is "name", "command" or "shortcut".
	Kind     string
	Value    string
	Existing string
}

func (e *DuplicateActionError) Error() string {
	if e.Kind == "name" {
		return fmt.Sprintf("action %q already exists", e.Value)
	}
	return fmt.Sprintf("%s %q already bound to action %q", e.Kind, e.Value, e.Existing)
}

func (e *DuplicateActionError) Unwrap() error {
	return ErrDuplicate
}

// DefinitionError reports a malformed action passed to Register.
type DefinitionError struct {
	Action  string
	Message string
}

func (e *DefinitionError) Error() string {
	if e.Action == "" {
		return "invalid action: " + e.Message
	}
	return fmt.Sprintf("invalid action %q: %s", e.Action, e.Message)
}

// ValidationError is returned by handlers whose arguments or state are invalid. The
// registry logs it at warning level instead of error level.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Invalid builds a ValidationError.
func Invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// MainLoopError reports a main-loop action triggered outside command dispatch, such
// as a shortcut bound to exit. The session decides what it means.
type MainLoopError struct {
	Action Action
}

func (e *MainLoopError) Error() string {
	return fmt.Sprintf("main-loop action %q", e.Action.Name)
}
