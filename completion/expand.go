package completion

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"repl-toolkit/log"
)

// DefaultExpansionTimeout bounds a $(command) expansion.
const DefaultExpansionTimeout = 2 * time.Second

var (
	envRef     = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}$`)
	commandRef = regexp.MustCompile(`\$\(([^()]*)\)$`)
)

// ShellExpansion expands the ${VAR} or $(command) reference that ends at the cursor.
// A command producing several lines yields one candidate per line, plus one
// carrying all of them when MultilineAll is set.
type ShellExpansion struct {
	Timeout      time.Duration
	MultilineAll bool

	// LookupEnv and Run default to os.LookupEnv and "sh -c".
	LookupEnv func(name string) (string, bool)
	Run       func(ctx context.Context, command string) (string, error)

	// Logs receives expansion failures; nil uses the package loggers.
	Logs *log.SessionLoggers
}

// NewShellExpansion returns an expander with the default timeout.
func NewShellExpansion(multilineAll bool) *ShellExpansion {
	return &ShellExpansion{Timeout: DefaultExpansionTimeout, MultilineAll: multilineAll}
}

func (s *ShellExpansion) Complete(ctx context.Context, text string, cursor int) []Candidate {
	cursor = clamp(cursor, len(text))
	before := text[:cursor]

	if m := envRef.FindStringSubmatchIndex(before); m != nil {
		name := before[m[2]:m[3]]
		value, ok := s.lookupEnv(name)
		if !ok {
			return nil
		}
		return []Candidate{{Text: value, Start: m[0], End: cursor, Display: fmt.Sprintf("${%s}", name)}}
	}

	m := commandRef.FindStringSubmatchIndex(before)
	if m == nil {
		return nil
	}
	command := strings.TrimSpace(before[m[2]:m[3]])
	if command == "" {
		return nil
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultExpansionTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := s.run(runCtx, command)
	if err != nil {
		s.warnf("expansion of $(%s) failed: %v", command, err)
		return nil
	}

	var lines []string
	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	switch len(lines) {
	case 0:
		return nil
	case 1:
		return []Candidate{{Text: lines[0], Start: m[0], End: cursor}}
	}

	cands := make([]Candidate, 0, len(lines)+1)
	if s.MultilineAll {
		cands = append(cands, Candidate{
			Text:    strings.Join(lines, " "),
			Start:   m[0],
			End:     cursor,
			Display: fmt.Sprintf("ALL (%d lines)", len(lines)),
		})
	}
	for _, line := range lines {
		cands = append(cands, Candidate{Text: line, Start: m[0], End: cursor})
	}
	return cands
}

func (s *ShellExpansion) lookupEnv(name string) (string, bool) {
	if s.LookupEnv != nil {
		return s.LookupEnv(name)
	}
	return os.LookupEnv(name)
}

func (s *ShellExpansion) run(ctx context.Context, command string) (string, error) {
	if s.Run != nil {
		return s.Run(ctx, command)
	}
	out, err := exec.CommandContext(ctx, "sh", "-c", command).Output()
	if err != nil {
		return "", fmt.Errorf("failed to run %q: %w", command, err)
	}
	return string(out), nil
}

func (s *ShellExpansion) warnf(format string, args ...any) {
	if s.Logs != nil {
		s.Logs.WarningLog.Printf(format, args...)
		return
	}
	log.WarningLog.Printf(format, args...)
}
