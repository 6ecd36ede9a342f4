package actions

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repl-toolkit/backend"
)

type capture struct {
	mu    sync.Mutex
	lines []string
}

func (c *capture) print(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, text)
}

func (c *capture) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.Join(c.lines, "\n")
}

func noop(*Context) error { return nil }

type markerKey struct{}

func TestCommandBoundary(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name    string
		input   string
		command string
		args    []string
		before  string
		matched bool
	}{
		{name: "whole input", input: "/help", command: "/help", matched: true},
		{name: "leading whitespace", input: "  \t/help", command: "/help", matched: true},
		{name: "with args", input: "/help show_help", command: "/help", args: []string{"show_help"}, matched: true},
		{name: "tab separated args", input: "/shell\tls -la", command: "/shell", args: []string{"ls", "-la"}, matched: true},
		{name: "later line", input: "some text\n/exit", command: "/exit", before: "some text", matched: true},
		{name: "indented later line", input: "one\ntwo\n   /quit now", command: "/quit", args: []string{"now"}, before: "one\ntwo", matched: true},
		{name: "mid sentence", input: "please see /help", matched: false},
		{name: "mid sentence on later line", input: "intro\nsee /help for more", matched: false},
		{name: "longer token", input: "/helpme", matched: false},
		{name: "unknown command", input: "/nope", matched: false},
		{name: "plain text", input: "hello world", matched: false},
		{name: "empty", input: "", matched: false},
		{name: "first registered wins", input: "/nope\n/exit", command: "/exit", before: "/nope", matched: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := r.LookupCommand(tt.input)
			assert.Equal(t, tt.matched, ok)
			assert.Equal(t, tt.matched, r.IsRegisteredCommand(tt.input))
			if !tt.matched {
				return
			}
			assert.Equal(t, tt.command, m.Command)
			if len(tt.args) == 0 {
				assert.Empty(t, m.Args)
			} else {
				assert.Equal(t, tt.args, m.Args)
			}
			assert.Equal(t, tt.before, m.Before)
		})
	}
}

func TestCustomPrefix(t *testing.T) {
	r := NewRegistry(WithPrefix("!"))
	assert.True(t, r.IsRegisteredCommand("!help"))
	assert.False(t, r.IsRegisteredCommand("/help"))

	err := r.Register(Action{Name: "x", Command: "/x", Handler: noop})
	var defErr *DefinitionError
	assert.ErrorAs(t, err, &defErr)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := NewRegistry(WithoutBuiltins())
	require.NoError(t, r.Register(Action{Name: "save", Command: "/save", Keys: []string{"ctrl-s"}, Handler: noop}))

	tests := []struct {
		name   string
		action Action
		kind   string
	}{
		{name: "same name", action: Action{Name: "save", Command: "/other", Handler: noop}, kind: "name"},
		{name: "same command", action: Action{Name: "other", Command: "/save", Handler: noop}, kind: "command"},
		{name: "same key different spelling", action: Action{Name: "other", Keys: []string{"Ctrl+S"}, Handler: noop}, kind: "shortcut"},
		{name: "same key c- alias", action: Action{Name: "other", Keys: []string{"c-s"}, Handler: noop}, kind: "shortcut"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Register(tt.action)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrDuplicate)
			var dup *DuplicateActionError
			require.ErrorAs(t, err, &dup)
			assert.Equal(t, tt.kind, dup.Kind)
		})
	}
}

func TestFunctionKeyCaseCollides(t *testing.T) {
	r := NewRegistry(WithoutBuiltins())
	require.NoError(t, r.Register(Action{Name: "a", Keys: []string{"F1"}, Handler: noop}))
	err := r.Register(Action{Name: "b", Keys: []string{"f1"}, Handler: noop})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestRegisterIsAtomic(t *testing.T) {
	r := NewRegistry(WithoutBuiltins())
	require.NoError(t, r.Register(Action{Name: "owner", Keys: []string{"f5"}, Handler: noop}))

	// The command is free but the key is not: nothing may be claimed.
	err := r.Register(Action{Name: "loser", Command: "/claim", Keys: []string{"f5"}, Handler: noop})
	require.ErrorIs(t, err, ErrDuplicate)

	_, exists := r.Get("loser")
	assert.False(t, exists)
	assert.False(t, r.IsRegisteredCommand("/claim"))

	require.NoError(t, r.Register(Action{Name: "winner", Command: "/claim", Handler: noop}))
	m, ok := r.LookupCommand("/claim")
	require.True(t, ok)
	assert.Equal(t, "winner", m.Action.Name)
}

func TestRegisterValidation(t *testing.T) {
	r := NewRegistry(WithoutBuiltins())

	tests := []struct {
		name   string
		action Action
	}{
		{name: "empty name", action: Action{Command: "/x", Handler: noop}},
		{name: "missing prefix", action: Action{Name: "x", Command: "x", Handler: noop}},
		{name: "bare prefix", action: Action{Name: "x", Command: "/", Handler: noop}},
		{name: "whitespace in command", action: Action{Name: "x", Command: "/a b", Handler: noop}},
		{name: "no trigger", action: Action{Name: "x", Handler: noop}},
		{name: "bad key", action: Action{Name: "x", Keys: []string{"hyper+x"}, Handler: noop}},
		{name: "reserved key", action: Action{Name: "x", Keys: []string{"ctrl-c"}, Handler: noop}},
		{name: "reserved submit", action: Action{Name: "x", Keys: []string{"escape enter"}, Handler: noop}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Register(tt.action)
			var defErr *DefinitionError
			assert.ErrorAs(t, err, &defErr)
		})
	}

	// A main-loop action needs no trigger.
	assert.NoError(t, r.Register(Action{Name: "loop"}))
}

func TestRegisteredActionIsACopy(t *testing.T) {
	r := NewRegistry(WithoutBuiltins())
	a := Action{Name: "x", Keys: []string{"F2"}, Handler: noop}
	require.NoError(t, r.Register(a))

	a.Keys[0] = "F3"
	got, ok := r.Get("x")
	require.True(t, ok)
	assert.Equal(t, []string{"f2"}, got.Keys)

	got.Keys[0] = "f9"
	_, ok = r.LookupShortcut("f2")
	assert.True(t, ok)
}

func TestDispatchIsolatesHandlerFailures(t *testing.T) {
	r := NewRegistry(WithoutBuiltins())
	ran := 0
	require.NoError(t, r.Register(Action{Name: "fails", Command: "/fails", Handler: func(*Context) error {
		return errors.New("broken")
	}}))
	require.NoError(t, r.Register(Action{Name: "panics", Command: "/panics", Handler: func(*Context) error {
		panic("boom")
	}}))
	require.NoError(t, r.Register(Action{Name: "invalid", Command: "/invalid", Handler: func(ctx *Context) error {
		return ctx.ValidateArgs(1, 1)
	}}))
	require.NoError(t, r.Register(Action{Name: "works", Command: "/works", Handler: func(*Context) error {
		ran++
		return nil
	}}))

	ctx := context.Background()
	_, status := r.HandleCommand(ctx, "/fails", Invocation{})
	assert.Equal(t, StatusFailed, status)
	_, status = r.HandleCommand(ctx, "/panics", Invocation{})
	assert.Equal(t, StatusFailed, status)
	_, status = r.HandleCommand(ctx, "/invalid", Invocation{})
	assert.Equal(t, StatusFailed, status)
	_, status = r.HandleCommand(ctx, "/invalid a", Invocation{})
	assert.Equal(t, StatusExecuted, status)
	_, status = r.HandleCommand(ctx, "/works", Invocation{})
	assert.Equal(t, StatusExecuted, status)
	assert.Equal(t, 1, ran)
}

func TestDispatchStatuses(t *testing.T) {
	r := NewRegistry(WithoutBuiltins())
	require.NoError(t, r.Register(Action{Name: "loop", Command: "/loop"}))
	require.NoError(t, r.Register(Action{Name: "off", Command: "/off", Handler: noop, Disabled: true}))
	require.NoError(t, r.Register(Action{Name: "needs", Command: "/needs", Handler: noop, RequiresBackend: true}))

	assert.Equal(t, StatusMainLoop, r.Dispatch("loop", nil))
	assert.Equal(t, StatusDisabled, r.Dispatch("off", nil))
	assert.Equal(t, StatusNotFound, r.Dispatch("missing", nil))
	assert.Equal(t, StatusNoBackend, r.Dispatch("needs", nil))

	r.Bind(backend.Plain(backend.Func(func(context.Context, backend.Request) (bool, error) { return true, nil })))
	assert.Equal(t, StatusExecuted, r.Dispatch("needs", nil))

	_, status := r.HandleCommand(context.Background(), "nothing here", Invocation{})
	assert.Equal(t, StatusNotFound, status)

	assert.Equal(t, "main-loop", StatusMainLoop.String())
	assert.Equal(t, "no-backend", StatusNoBackend.String())
}

func TestLateBackendBinding(t *testing.T) {
	r := NewRegistry(WithoutBuiltins())
	var seen []backend.Backend
	require.NoError(t, r.Register(Action{Name: "peek", Command: "/peek", Handler: func(ctx *Context) error {
		seen = append(seen, ctx.Backend)
		return nil
	}}))

	_, status := r.HandleCommand(context.Background(), "/peek", Invocation{})
	require.Equal(t, StatusExecuted, status)

	b := backend.Func(func(context.Context, backend.Request) (bool, error) { return true, nil })
	r.Bind(backend.Plain(b))
	_, status = r.HandleCommand(context.Background(), "/peek", Invocation{})
	require.Equal(t, StatusExecuted, status)

	require.Len(t, seen, 2)
	assert.Nil(t, seen[0])
	assert.NotNil(t, seen[1])
	assert.Equal(t, backend.CapabilityPlain, r.Handle().Capability())
}

func TestSetEnabledIsIdempotent(t *testing.T) {
	r := NewRegistry(WithoutBuiltins())
	require.NoError(t, r.Register(Action{Name: "x", Command: "/x", Handler: noop}))

	require.NoError(t, r.SetEnabled("x", false))
	require.NoError(t, r.SetEnabled("x", false))
	assert.False(t, r.Enabled("x"))
	assert.Equal(t, StatusDisabled, r.Dispatch("x", nil))

	got, _ := r.Get("x")
	assert.True(t, got.Disabled)

	require.NoError(t, r.SetEnabled("x", true))
	require.NoError(t, r.SetEnabled("x", true))
	assert.True(t, r.Enabled("x"))
	assert.Equal(t, StatusExecuted, r.Dispatch("x", nil))

	assert.ErrorIs(t, r.SetEnabled("missing", true), ErrNotFound)
}

func TestHandleCommandBuildsContext(t *testing.T) {
	r := NewRegistry(WithoutBuiltins())
	var got *Context
	require.NoError(t, r.Register(Action{Name: "grab", Command: "/grab", Handler: func(ctx *Context) error {
		got = ctx
		return nil
	}}))

	out := &capture{}
	inserted := ""
	ctx := context.WithValue(context.Background(), markerKey{}, "marker")
	_, status := r.HandleCommand(ctx, "draft\n/grab a b", Invocation{
		Printer:  out.print,
		Buffer:   "draft",
		Headless: true,
		Insert:   func(s string) { inserted = s },
	})
	require.Equal(t, StatusExecuted, status)
	require.NotNil(t, got)

	assert.Same(t, r, got.Registry)
	assert.Equal(t, TriggerCommand, got.Trigger)
	assert.Equal(t, []string{"a", "b"}, got.Args)
	assert.Equal(t, "draft\n/grab a b", got.UserInput)
	assert.Equal(t, "draft", got.Buffer)
	assert.True(t, got.Headless)
	assert.Equal(t, "marker", got.Context().Value(markerKey{}))

	got.Printf("n=%d", 3)
	assert.Equal(t, "n=3", out.String())
	got.Insert("x")
	assert.Equal(t, "x", inserted)
}

func TestHandleShortcut(t *testing.T) {
	r := NewRegistry(WithoutBuiltins())
	var trigger Trigger
	var key string
	require.NoError(t, r.Register(Action{Name: "hit", Keys: []string{"alt-h", "F6"}, Handler: func(ctx *Context) error {
		trigger = ctx.Trigger
		key = ctx.Key
		return nil
	}}))

	a, status := r.HandleShortcut(context.Background(), "alt+h", Invocation{})
	assert.Equal(t, StatusExecuted, status)
	assert.Equal(t, "hit", a.Name)
	assert.Equal(t, TriggerShortcut, trigger)
	assert.Equal(t, "alt+h", key)

	_, status = r.HandleShortcut(context.Background(), "f6", Invocation{})
	assert.Equal(t, StatusExecuted, status)

	_, status = r.HandleShortcut(context.Background(), "f7", Invocation{})
	assert.Equal(t, StatusNotFound, status)
}

func TestBuiltinsArePerRegistry(t *testing.T) {
	a := NewRegistry()
	b := NewRegistry()

	require.NoError(t, a.SetEnabled(ActionHelp, false))
	assert.True(t, b.Enabled(ActionHelp))

	for _, name := range []string{ActionHelp, ActionShortcuts, ActionShell, ActionExit, ActionQuit} {
		_, ok := b.Get(name)
		assert.True(t, ok, name)
	}
	assert.Equal(t, StatusMainLoop, b.Dispatch(ActionExit, nil))
	assert.True(t, IsExit(ActionQuit))
	assert.False(t, IsExit(ActionHelp))

	empty := NewRegistry(WithoutBuiltins())
	assert.Empty(t, empty.ListActions(""))
	assert.Empty(t, empty.Commands())
}

func TestListActionsAndCategories(t *testing.T) {
	r := NewRegistry(WithoutBuiltins())
	require.NoError(t, r.Register(Action{Name: "z", Command: "/z", Category: CategoryControl, Handler: noop}))
	require.NoError(t, r.Register(Action{Name: "a", Command: "/a", Category: CategoryGeneral, Handler: noop}))
	require.NoError(t, r.Register(Action{Name: "m", Command: "/m", Category: CategoryControl, Handler: noop}))

	names := func(as []Action) []string {
		var out []string
		for _, a := range as {
			out = append(out, a.Name)
		}
		return out
	}
	assert.Equal(t, []string{"z", "a", "m"}, names(r.ListActions("")))
	assert.Equal(t, []string{"z", "m"}, names(r.ListActions(CategoryControl)))
	assert.Equal(t, []Category{CategoryGeneral, CategoryControl}, r.Categories())
	assert.Equal(t, []string{"/a", "/m", "/z"}, r.Commands())
}

func TestConcurrentDispatch(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := "act" + string(rune('a'+i))
			_ = r.Register(Action{Name: name, Command: "/" + name, Handler: noop})
			r.IsRegisteredCommand("/" + name)
			r.Dispatch(name, nil)
			r.Bind(backend.Handle{})
		}(i)
	}
	wg.Wait()
	assert.Len(t, r.ListActions(""), 25)
}
