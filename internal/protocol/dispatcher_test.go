package protocol

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type testHandler struct {
	opcode uint16
	name   string
	reply  []byte
	err    error
}

func (h *testHandler) Opcode() uint16 { return h.opcode }
func (h *testHandler) Name() string   { return h.name }
func (h *testHandler) Handle(_ context.Context, _ uint16, _ []byte, _ *GameContext) ([]byte, error) {
	return h.reply, h.err
}

func TestDispatcherRoutesToHandler(t *testing.T) {
	registry := NewHandlerRegistry()
	registry.Register(&testHandler{opcode: 0x1001, name: "Test", reply: []byte{1, 2, 3, 4}})
	dispatcher := NewDispatcher(registry)

	gctx := NewGameContext("127.0.0.1:1234")
	reply, err := dispatcher.Dispatch(context.Background(), 0x1001, []byte{1, 2, 3}, gctx)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4}, reply)

	stats := dispatcher.Stats()
	require.Equal(t, uint64(1), stats.Processed)
	require.Equal(t, uint64(1), stats.Succeeded)
}

func TestDispatcherUnhandledOpcode(t *testing.T) {
	dispatcher := NewDispatcher(NewHandlerRegistry())
	gctx := NewGameContext("127.0.0.1:1234")

	reply, err := dispatcher.Dispatch(context.Background(), 0x9999, []byte{1, 2, 3}, gctx)
	require.NoError(t, err)
	require.Nil(t, reply)

	stats := dispatcher.Stats()
	require.Equal(t, uint64(1), stats.Processed)
	require.Equal(t, uint64(1), stats.Unhandled)
}

func TestDispatcherHandlerFailure(t *testing.T) {
	registry := NewHandlerRegistry()
	registry.Register(&testHandler{opcode: 0x1001, name: "Test", err: errors.New("boom")})
	dispatcher := NewDispatcher(registry)
	gctx := NewGameContext("127.0.0.1:1234")

	_, err := dispatcher.Dispatch(context.Background(), 0x1001, nil, gctx)
	require.Error(t, err)
	require.Equal(t, uint64(1), dispatcher.Stats().Failed)
}

func TestHandlerRegistryHasHandler(t *testing.T) {
	registry := NewHandlerRegistry()
	registry.Register(&testHandler{opcode: 0x1001, name: "Test"})

	require.True(t, registry.HasHandler(0x1001))
	require.False(t, registry.HasHandler(0x1002))
	require.Equal(t, []uint16{0x1001}, registry.RegisteredOpcodes())
}

func TestDispatcherResetStats(t *testing.T) {
	registry := NewHandlerRegistry()
	registry.Register(&testHandler{opcode: 0x1001, name: "Test"})
	dispatcher := NewDispatcher(registry)
	gctx := NewGameContext("127.0.0.1:1234")

	_, _ = dispatcher.Dispatch(context.Background(), 0x1001, nil, gctx)
	dispatcher.ResetStats()

	stats := dispatcher.Stats()
	require.Zero(t, stats.Processed)
	require.Zero(t, stats.Succeeded)
	require.Zero(t, stats.Failed)
	require.Zero(t, stats.Unhandled)
}
