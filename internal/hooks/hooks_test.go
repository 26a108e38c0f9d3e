package hooks

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/soyeahso/maestro/internal/config"
	"github.com/soyeahso/maestro/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManager() *Manager {
	return NewManager(logging.New(nil, "silent"))
}

func noop(context.Context, Payload) error { return nil }

func TestEmit_RunsInRegistrationOrder(t *testing.T) {
	m := testManager()

	var order []string
	m.On(EventAfterDispatch, "first", func(_ context.Context, p Payload) error {
		order = append(order, "first:"+p.Data["pattern"].(string))
		return nil
	})
	m.On(EventAfterDispatch, "second", func(_ context.Context, p Payload) error {
		assert.Equal(t, EventAfterDispatch, p.Event)
		order = append(order, "second")
		return nil
	})

	m.Emit(context.Background(), EventAfterDispatch, map[string]any{"pattern": "parallel"})
	assert.Equal(t, []string{"first:parallel", "second"}, order)
}

func TestEmit_ErrorsAndPanicsDoNotStopOthers(t *testing.T) {
	m := testManager()

	var lastCalled bool
	m.On(EventResponderFailed, "failing", func(context.Context, Payload) error {
		return errors.New("handler broke")
	})
	m.On(EventResponderFailed, "panicking", func(context.Context, Payload) error {
		panic("boom")
	})
	m.On(EventResponderFailed, "last", func(context.Context, Payload) error {
		lastCalled = true
		return nil
	})

	m.Emit(context.Background(), EventResponderFailed, nil)
	assert.True(t, lastCalled)
}

func TestNilManager(t *testing.T) {
	var m *Manager
	m.Emit(context.Background(), EventGatewayStart, nil)
	m.EmitAsync(context.Background(), EventGatewayStart, nil)
	m.Wait()
	assert.Zero(t, m.Count(EventGatewayStart))
}

func TestOff_KeepsOthers(t *testing.T) {
	m := testManager()

	var kept int
	m.On(EventGatewayStart, "remove-me", noop)
	m.On(EventGatewayStart, "keep-me", func(context.Context, Payload) error {
		kept++
		return nil
	})

	m.Off(EventGatewayStart, "remove-me")
	m.Emit(context.Background(), EventGatewayStart, nil)
	assert.Equal(t, 1, kept)
	assert.Equal(t, 1, m.Count(EventGatewayStart))
}

func TestEmitAsync_WaitsForHandlers(t *testing.T) {
	m := testManager()

	var count atomic.Int32
	for _, name := range []string{"a", "b", "c"} {
		m.On(EventQueryRejected, name, func(context.Context, Payload) error {
			count.Add(1)
			return nil
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.EmitAsync(ctx, EventQueryRejected, map[string]any{"stage": "shape"})
	cancel()
	m.Wait()
	assert.Equal(t, int32(3), count.Load())
}

func TestEvents(t *testing.T) {
	m := testManager()
	m.On(EventGatewayStart, "h1", noop)
	m.On(EventRequestReceived, "h2", noop)

	assert.Equal(t, []string{EventGatewayStart, EventRequestReceived}, m.Events())
	assert.Len(t, AllEvents, 7)
}

func TestShellHandler(t *testing.T) {
	out := filepath.Join(t.TempDir(), "payload.json")
	h := ShellHandler(`cat > "$OUT"; echo "$MAESTRO_EVENT" >> "$OUT"`, 0)
	t.Setenv("OUT", out)

	err := h(context.Background(), Payload{Event: EventAfterDispatch, Data: map[string]any{"sessionId": "s1"}})
	require.NoError(t, err)

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"sessionId":"s1"`)
	assert.Contains(t, string(b), EventAfterDispatch+"\n")
}

func TestShellHandler_Failure(t *testing.T) {
	err := ShellHandler("echo nope >&2; exit 3", 0)(context.Background(), Payload{Event: EventGatewayStop})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestRegisterConfig(t *testing.T) {
	m := testManager()
	n := m.RegisterConfig(config.HooksConfig{
		RequestReceived: []config.HookEntry{{Command: "true"}, {Command: ""}},
		QueryRejected:   []config.HookEntry{{Command: "true", Timeout: 500}},
	})
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, m.Count(EventRequestReceived))
	assert.Equal(t, 1, m.Count(EventQueryRejected))
	assert.Zero(t, m.Count(EventGatewayStart))
}
