package protocol

import (
	"context"
	"log"
	"sync/atomic"
)

// MessageHandler is the contract every dispatcher handler implements.
// Handle may mutate ctx (e.g., advance GameState, set AccountID).
type MessageHandler interface {
	Opcode() uint16
	Name() string
	Handle(ctx context.Context, opcode uint16, payload []byte, gctx *GameContext) ([]byte, error)
}

// DispatcherStats are the four monotonically increasing counters spec.md
// §4.4 requires: processed, succeeded, failed, unhandled.
type DispatcherStats struct {
	Processed uint64
	Succeeded uint64
	Failed    uint64
	Unhandled uint64
}

// HandlerRegistry maps inner opcode to handler. Registration happens only
// during initialization; lookups afterward are read-only.
type HandlerRegistry struct {
	handlers map[uint16]MessageHandler
}

// NewHandlerRegistry returns an empty registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[uint16]MessageHandler)}
}

// Register adds handler, keyed by its self-reported opcode.
func (r *HandlerRegistry) Register(handler MessageHandler) {
	r.handlers[handler.Opcode()] = handler
}

// Get looks up the handler for opcode, if any.
func (r *HandlerRegistry) Get(opcode uint16) (MessageHandler, bool) {
	h, ok := r.handlers[opcode]
	return h, ok
}

// HasHandler reports whether opcode has a registered handler.
func (r *HandlerRegistry) HasHandler(opcode uint16) bool {
	_, ok := r.handlers[opcode]
	return ok
}

// RegisteredOpcodes returns every opcode with a registered handler, in no
// particular order.
func (r *HandlerRegistry) RegisteredOpcodes() []uint16 {
	opcodes := make([]uint16, 0, len(r.handlers))
	for op := range r.handlers {
		opcodes = append(opcodes, op)
	}
	return opcodes
}

// Dispatcher routes decrypted inner messages to registered handlers and
// tracks the four stats counters. Safe for concurrent use: the registry is
// built once at startup and read-only thereafter, and the stats counters are
// atomic.
type Dispatcher struct {
	registry *HandlerRegistry
	stats    DispatcherStats
}

// NewDispatcher wraps registry in a Dispatcher with zeroed stats.
func NewDispatcher(registry *HandlerRegistry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// Dispatch looks up opcode in the registry and invokes its handler. A
// missing handler is not an error: it increments Unhandled and returns nil.
func (d *Dispatcher) Dispatch(ctx context.Context, opcode uint16, payload []byte, gctx *GameContext) ([]byte, error) {
	atomic.AddUint64(&d.stats.Processed, 1)

	handler, ok := d.registry.Get(opcode)
	if !ok {
		atomic.AddUint64(&d.stats.Unhandled, 1)
		log.Printf("[Dispatcher] no handler registered for opcode 0x%04x (session %d)", opcode, gctx.SessionID)
		return nil, nil
	}

	log.Printf("[Dispatcher] dispatching opcode 0x%04x to %s (session %d)", opcode, handler.Name(), gctx.SessionID)
	reply, err := handler.Handle(ctx, opcode, payload, gctx)
	if err != nil {
		atomic.AddUint64(&d.stats.Failed, 1)
		log.Printf("[Dispatcher] handler %s failed: %v (session %d)", handler.Name(), err, gctx.SessionID)
		return nil, err
	}
	atomic.AddUint64(&d.stats.Succeeded, 1)
	return reply, nil
}

// Stats returns a snapshot of the dispatcher's counters.
func (d *Dispatcher) Stats() DispatcherStats {
	return DispatcherStats{
		Processed: atomic.LoadUint64(&d.stats.Processed),
		Succeeded: atomic.LoadUint64(&d.stats.Succeeded),
		Failed:    atomic.LoadUint64(&d.stats.Failed),
		Unhandled: atomic.LoadUint64(&d.stats.Unhandled),
	}
}

// ResetStats zeroes every counter.
func (d *Dispatcher) ResetStats() {
	atomic.StoreUint64(&d.stats.Processed, 0)
	atomic.StoreUint64(&d.stats.Succeeded, 0)
	atomic.StoreUint64(&d.stats.Failed, 0)
	atomic.StoreUint64(&d.stats.Unhandled, 0)
}
