package actions

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// DefaultShellTimeout bounds a command run by the shell action.
const DefaultShellTimeout = 30 * time.Second

func runShell(ctx *Context) error {
	if len(ctx.Args) == 0 {
		if ctx.Headless {
			return Invalid("an interactive shell is not available in headless mode")
		}
		return interactiveShell(ctx)
	}

	runCtx := ctx.Context()
	timeout := ctx.Registry.shellTimeout
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, ctx.Args[0], ctx.Args[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	ctx.Registry.debugf("shell: running %s", strings.Join(ctx.Args, " "))
	err := cmd.Run()

	if errors.Is(err, exec.ErrNotFound) {
		return Invalid("command not found: %s", ctx.Args[0])
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return Invalid("command timed out after %s", timeout)
	}

	if out := strings.TrimSpace(stdout.String()); out != "" {
		if ctx.Insert != nil {
			ctx.Insert(out)
		} else {
			ctx.Print(out)
		}
	}
	if errOut := strings.TrimSpace(stderr.String()); errOut != "" {
		ctx.Printf("Error output: %s", errOut)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		ctx.Registry.warnf("shell: command exited with code %d", exitErr.ExitCode())
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to run %s: %w", ctx.Args[0], err)
	}
	return nil
}

// interactiveShell hands the terminal to $SHELL until it exits. The caller must not
// be rendering a prompt at the same time.
func interactiveShell(ctx *Context) error {
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/sh"
	}

	ctx.Registry.debugf("shell: dropping to %s", shell)
	cmd := exec.CommandContext(ctx.Context(), shell)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil
		}
		return fmt.Errorf("failed to start %s: %w", shell, err)
	}
	ctx.Registry.debugf("shell: returned from %s", shell)
	return nil
}
