package backend

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// Echo is a demonstration backend. It walks through a few simulated work steps,
// checking its cancel flag between them, and then echoes the input.
type Echo struct {
	// Print receives all output. It must be safe to call while a prompt is active.
	Print func(text string)
	// Step is the simulated duration of each work step.
	Step time.Duration
	// Steps is the number of simulated work steps.
	Steps int

	cancelled  atomic.Bool
	operations atomic.Int64
}

// NewEcho returns an Echo backend printing through print.
func NewEcho(print func(string), step time.Duration, steps int) *Echo {
	return &Echo{Print: print, Step: step, Steps: steps}
}

// Cancel sets the cancel flag; the running request stops at its next checkpoint.
func (e *Echo) Cancel(reason string) {
	e.cancelled.Store(true)
}

// Operations returns the number of requests that ran to completion.
func (e *Echo) Operations() int64 {
	return e.operations.Load()
}

func (e *Echo) HandleInput(ctx context.Context, req Request) (bool, error) {
	e.cancelled.Store(false)

	for i := 1; i <= e.Steps; i++ {
		if e.cancelled.Load() {
			e.printf("cancelled at step %d/%d", i, e.Steps)
			return true, nil
		}
		e.printf("  step %d/%d", i, e.Steps)

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(e.Step):
		}
	}

	if e.cancelled.Load() {
		e.printf("cancelled before output")
		return true, nil
	}

	e.operations.Add(1)
	e.printf("%s", req.Input)
	for id, att := range req.Attachments {
		e.printf("  [attachment %s: %s, %d bytes]", id, att.MediaType, len(att.Data))
	}
	return true, nil
}

func (e *Echo) printf(format string, args ...any) {
	if e.Print == nil {
		return
	}
	e.Print(fmt.Sprintf(format, args...))
}
