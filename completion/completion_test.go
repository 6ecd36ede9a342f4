package completion

import (
	"bytes"
	"context"
	"errors"
	golog "log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repl-toolkit/log"
)

func TestPrefixCompletesWordUnderCursor(t *testing.T) {
	p := NewPrefix([]string{"/help", "/history", "/exit"}, false)

	cands := p.Complete(context.Background(), "/h", 2)
	require.Len(t, cands, 2)
	assert.Equal(t, "/help", cands[0].Text)
	assert.Equal(t, "/history", cands[1].Text)
	assert.Equal(t, 0, cands[0].Start)
	assert.Equal(t, 2, cands[0].End)

	assert.Empty(t, p.Complete(context.Background(), "/h ", 3))
	assert.Empty(t, p.Complete(context.Background(), "/H", 2))
}

func TestPrefixIgnoreCase(t *testing.T) {
	p := NewPrefix([]string{"/help"}, true)
	cands := p.Complete(context.Background(), "say /HE", 7)
	require.Len(t, cands, 1)
	assert.Equal(t, 4, cands[0].Start)

	text, cursor := Apply("say /HE", cands[0])
	assert.Equal(t, "say /help", text)
	assert.Equal(t, 9, cursor)
}

func TestCommonPrefix(t *testing.T) {
	c, ok := CommonPrefix([]Candidate{
		{Text: "/history", Start: 0, End: 2},
		{Text: "/hist", Start: 0, End: 2},
	})
	require.True(t, ok)
	assert.Equal(t, "/hist", c.Text)

	_, ok = CommonPrefix([]Candidate{{Text: "a", Start: 0}, {Text: "a", Start: 1}})
	assert.False(t, ok)

	_, ok = CommonPrefix(nil)
	assert.False(t, ok)
}

func TestMergeDeduplicates(t *testing.T) {
	a := NewPrefix([]string{"/help"}, false)
	b := NewPrefix([]string{"/help", "/hello"}, false)

	cands := Merge(a, nil, b).Complete(context.Background(), "/he", 3)
	require.Len(t, cands, 2)
	assert.Equal(t, "/help", cands[0].Text)
	assert.Equal(t, "/hello", cands[1].Text)
}

func TestShellExpansionEnv(t *testing.T) {
	s := &ShellExpansion{LookupEnv: func(name string) (string, bool) {
		if name == "USER" {
			return "alice", true
		}
		return "", false
	}}

	text := "User is ${USER}"
	cands := s.Complete(context.Background(), text, len(text))
	require.Len(t, cands, 1)
	out, cursor := Apply(text, cands[0])
	assert.Equal(t, "User is alice", out)
	assert.Equal(t, len(out), cursor)

	assert.Empty(t, s.Complete(context.Background(), "${NOPE}", 7))
	assert.Empty(t, s.Complete(context.Background(), "${USER} x", 9))
}

func TestShellExpansionCommand(t *testing.T) {
	s := &ShellExpansion{Run: func(ctx context.Context, command string) (string, error) {
		assert.Equal(t, "date", command)
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return "Mon Jan 1\n", nil
	}}

	text := "Date is $(date)"
	cands := s.Complete(context.Background(), text, len(text))
	require.Len(t, cands, 1)
	out, _ := Apply(text, cands[0])
	assert.Equal(t, "Date is Mon Jan 1", out)
}

func TestShellExpansionMultiline(t *testing.T) {
	run := func(ctx context.Context, command string) (string, error) {
		return "a\nb\n\nc\n", nil
	}

	cands := (&ShellExpansion{Run: run}).Complete(context.Background(), "$(ls)", 5)
	require.Len(t, cands, 3)
	assert.Equal(t, "a", cands[0].Text)

	cands = (&ShellExpansion{Run: run, MultilineAll: true}).Complete(context.Background(), "$(ls)", 5)
	require.Len(t, cands, 4)
	assert.Equal(t, "a b c", cands[0].Text)
	assert.Equal(t, "ALL (3 lines)", cands[0].Label())
}

func TestShellExpansionFailureYieldsNothing(t *testing.T) {
	s := &ShellExpansion{Run: func(ctx context.Context, command string) (string, error) {
		return "", errors.New("exit status 1")
	}}
	assert.Empty(t, s.Complete(context.Background(), "$(false)", 8))
	assert.Empty(t, s.Complete(context.Background(), "$( )", 4))
}

func TestShellExpansionLogsToSession(t *testing.T) {
	var buf bytes.Buffer
	logs := &log.SessionLoggers{WarningLog: golog.New(&buf, "[s1] WARNING: ", 0)}
	s := &ShellExpansion{
		Logs: logs,
		Run: func(ctx context.Context, command string) (string, error) {
			return "", errors.New("exit status 2")
		},
	}

	assert.Empty(t, s.Complete(context.Background(), "$(nope)", 7))
	assert.Equal(t, "[s1] WARNING: expansion of $(nope) failed: exit status 2\n", buf.String())
}
