// Package history persists interactive input across sessions.
//
// The file format is line oriented and shared with prompt_toolkit's FileHistory:
// every entry is a "# <timestamp>" line followed by one "+<text>" line per line of
// the entry, with a blank line between entries.
package history

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"repl-toolkit/log"
)

const (
	// DefaultLockTimeout is the default timeout for acquiring locks
	DefaultLockTimeout = 5 * time.Second
	// DefaultLimit caps the number of entries kept in memory.
	DefaultLimit = 1000

	timestampLayout = "2006-01-02 15:04:05.000000"
	lockRetryDelay  = 100 * time.Millisecond
)

// File is a history file guarded by an advisory lock so several sessions can
// append to it concurrently.
type File struct {
	path        string
	lockFile    *flock.Flock
	lockTimeout time.Duration
	limit       int
	now         func() time.Time

	mu      sync.Mutex
	entries []string
}

// Open returns a history backed by path. Nothing is read until Load.
func Open(path string) *File {
	return &File{
		path:        path,
		lockFile:    flock.New(path + ".lock"),
		lockTimeout: DefaultLockTimeout,
		limit:       DefaultLimit,
		now:         time.Now,
	}
}

// Path returns the history file path.
func (f *File) Path() string {
	return f.path
}

// Load reads the file under a shared lock, replacing the in-memory entries. A missing
// file is an empty history.
func (f *File) Load() ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), f.lockTimeout)
	defer cancel()

	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	locked, err := f.lockFile.TryRLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire read lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("could not acquire read lock within timeout")
	}
	defer f.lockFile.Unlock()

	file, err := os.Open(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			f.setEntries(nil)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open history file: %w", err)
	}
	defer file.Close()

	entries, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}
	f.setEntries(entries)
	return f.Entries(), nil
}

// Append records entry in memory and on disk under an exclusive lock. Blank entries
// and repeats of the newest entry are ignored.
func (f *File) Append(entry string) error {
	if strings.TrimSpace(entry) == "" {
		return nil
	}

	f.mu.Lock()
	if n := len(f.entries); n > 0 && f.entries[n-1] == entry {
		f.mu.Unlock()
		return nil
	}
	f.entries = append(f.entries, entry)
	f.trim()
	f.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), f.lockTimeout)
	defer cancel()

	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}
	locked, err := f.lockFile.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("failed to acquire write lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("could not acquire write lock within timeout")
	}
	defer f.lockFile.Unlock()

	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open history file: %w", err)
	}
	defer file.Close()

	if err := Write(file, entry, f.now()); err != nil {
		return fmt.Errorf("failed to append history entry: %w", err)
	}
	return nil
}

// Entries returns the history oldest first.
func (f *File) Entries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.entries...)
}

func (f *File) setEntries(entries []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = entries
	f.trim()
}

func (f *File) trim() {
	if f.limit > 0 && len(f.entries) > f.limit {
		f.entries = append([]string(nil), f.entries[len(f.entries)-f.limit:]...)
	}
}

// Parse reads entries in file order.
func Parse(r io.Reader) ([]string, error) {
	var (
		entries []string
		current []string
	)
	flush := func() {
		if len(current) > 0 {
			entries = append(entries, strings.Join(current, "\n"))
			current = nil
		}
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if strings.HasPrefix(line, "+") {
			current = append(current, line[1:])
			continue
		}
		flush()
	}
	if err := scanner.Err(); err != nil {
		return entries, err
	}
	flush()
	return entries, nil
}

// Write appends one entry in file format.
func Write(w io.Writer, entry string, at time.Time) error {
	var sb strings.Builder
	sb.WriteString("\n# ")
	sb.WriteString(at.Format(timestampLayout))
	sb.WriteString("\n")
	for _, line := range strings.Split(entry, "\n") {
		sb.WriteString("+")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

// Navigator walks a history snapshot for the line editor. Index len(entries) is the
// draft being typed.
type Navigator struct {
	entries []string
	index   int
	draft   string
}

// NewNavigator starts past the newest entry.
func NewNavigator(entries []string) *Navigator {
	return &Navigator{entries: entries, index: len(entries)}
}

// Prev moves to the older entry. current is the text in the editor, kept as the
// draft when leaving it.
func (n *Navigator) Prev(current string) (string, bool) {
	if n.index == 0 || len(n.entries) == 0 {
		return "", false
	}
	if n.index == len(n.entries) {
		n.draft = current
	}
	n.index--
	return n.entries[n.index], true
}

// Next moves to the newer entry, ending at the saved draft.
func (n *Navigator) Next() (string, bool) {
	if n.index >= len(n.entries) {
		return "", false
	}
	n.index++
	if n.index == len(n.entries) {
		return n.draft, true
	}
	return n.entries[n.index], true
}

// Reset returns to the draft position with a new snapshot.
func (n *Navigator) Reset(entries []string) {
	n.entries = entries
	n.index = len(entries)
	n.draft = ""
}

// Store is what the line editor needs from a history.
type Store interface {
	Entries() []string
	Append(entry string) error
}

// Memory is a Store that is not persisted.
type Memory struct {
	mu      sync.Mutex
	entries []string
}

func (m *Memory) Entries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.entries...)
}

func (m *Memory) Append(entry string) error {
	if strings.TrimSpace(entry) == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := len(m.entries); n > 0 && m.entries[n-1] == entry {
		return nil
	}
	m.entries = append(m.entries, entry)
	return nil
}

// OpenOrMemory loads the file at path, falling back to an in-memory history when
// path is empty or unusable.
func OpenOrMemory(path string) Store {
	if strings.TrimSpace(path) == "" {
		return &Memory{}
	}
	f := Open(path)
	if _, err := f.Load(); err != nil {
		log.WarningLog.Printf("history disabled, could not load %s: %v", path, err)
		return &Memory{}
	}
	return f
}
