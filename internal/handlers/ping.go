package handlers

import (
	"context"

	"rag2login/internal/protocol"
)

// PingOpcode is the inner opcode PingHandler answers.
const PingOpcode uint16 = 0x1002

// PingHandler echoes its payload back unchanged. Registered by cmd/rag2login
// as a minimal liveness probe for connected clients.
type PingHandler struct{}

func (h *PingHandler) Opcode() uint16 { return PingOpcode }

func (h *PingHandler) Name() string { return "PingHandler" }

func (h *PingHandler) Handle(_ context.Context, _ uint16, payload []byte, _ *protocol.GameContext) ([]byte, error) {
	echoed := make([]byte, len(payload))
	copy(echoed, payload)
	return echoed, nil
}
