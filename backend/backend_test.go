package backend

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type panickyCanceller struct{}

func (panickyCanceller) HandleInput(ctx context.Context, req Request) (bool, error) { return true, nil }
func (panickyCanceller) Cancel(reason string)                                        { panic("boom") }

func TestZeroHandleIsUnbound(t *testing.T) {
	var h Handle
	assert.False(t, h.Bound())
	assert.Nil(t, h.Backend())

	ok, err := h.HandleInput(context.Background(), Request{Input: "x"})
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrUnbound)
}

func TestPlainIgnoresCancelMethod(t *testing.T) {
	echo := NewEcho(nil, 0, 0)
	h := Plain(echo)
	require.True(t, h.Bound())
	assert.Equal(t, CapabilityPlain, h.Capability())

	delivered, err := h.Cancel("stop")
	assert.NoError(t, err)
	assert.False(t, delivered)
	assert.False(t, echo.cancelled.Load())
}

func TestCancellableDeliversCancel(t *testing.T) {
	echo := NewEcho(nil, 0, 0)
	h := Cancellable(echo)
	assert.Equal(t, CapabilityCancel, h.Capability())

	delivered, err := h.Cancel("stop")
	assert.NoError(t, err)
	assert.True(t, delivered)
	assert.True(t, echo.cancelled.Load())
}

func TestCancelPanicIsRecovered(t *testing.T) {
	h := Cancellable(panickyCanceller{})
	delivered, err := h.Cancel("stop")
	assert.False(t, delivered)
	assert.ErrorContains(t, err, "boom")
}

func TestFuncAdapter(t *testing.T) {
	var got string
	h := Plain(Func(func(ctx context.Context, req Request) (bool, error) {
		got = req.Input
		return false, nil
	}))

	ok, err := h.HandleInput(context.Background(), Request{Input: "hello"})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "hello", got)
}

func TestRequestCancelNilSafe(t *testing.T) {
	var req Request
	req.Cancel("nothing happens")
}

func TestEchoCompletes(t *testing.T) {
	var mu sync.Mutex
	var lines []string
	echo := NewEcho(func(s string) {
		mu.Lock()
		lines = append(lines, s)
		mu.Unlock()
	}, time.Millisecond, 2)

	ok, err := echo.HandleInput(context.Background(), Request{
		Input:       "hi there",
		Attachments: map[string]Attachment{"img-1": {ID: "img-1", MediaType: "image/png", Data: []byte{1, 2}}},
	})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 1, echo.Operations())
	assert.Contains(t, lines, "hi there")
	assert.Contains(t, lines, "  [attachment img-1: image/png, 2 bytes]")
}

func TestEchoStopsAtCheckpoint(t *testing.T) {
	echo := NewEcho(nil, 20*time.Millisecond, 10)

	done := make(chan bool)
	go func() {
		ok, _ := echo.HandleInput(context.Background(), Request{Input: "slow"})
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	echo.Cancel("user")

	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("echo did not observe cancellation")
	}
	assert.EqualValues(t, 0, echo.Operations())
}

func TestEchoHonoursContext(t *testing.T) {
	echo := NewEcho(nil, time.Second, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok, err := echo.HandleInput(ctx, Request{Input: "x"})
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}
