// Package handlers holds the example dispatcher handlers registered by
// cmd/rag2login: the example message handler spec.md §1 calls for as the
// one gameplay-adjacent non-goal exception.
package handlers

import (
	"context"
	"log"

	"rag2login/internal/accounts"
	"rag2login/internal/protocol"
)

// AccountLoginOpcode is the inner opcode AccountLoginHandler answers.
const AccountLoginOpcode uint16 = 0x1001

// AccountLoginHandler verifies credentials against an accounts.Store once
// the encrypted envelope carrying them has been decrypted by the session
// state machine. Payload layout: a length-prefixed username, then a
// length-prefixed password (both single-byte-length ASCII).
type AccountLoginHandler struct {
	Store accounts.Store
}

func (h *AccountLoginHandler) Opcode() uint16 { return AccountLoginOpcode }

func (h *AccountLoginHandler) Name() string { return "AccountLoginHandler" }

func (h *AccountLoginHandler) Handle(ctx context.Context, opcode uint16, payload []byte, gctx *protocol.GameContext) ([]byte, error) {
	username, rest, ok := readLengthPrefixed(payload)
	if !ok {
		log.Printf("[AccountLoginHandler] malformed payload: missing username")
		return []byte{0x00}, nil
	}
	password, _, ok := readLengthPrefixed(rest)
	if !ok {
		log.Printf("[AccountLoginHandler] malformed payload: missing password")
		return []byte{0x00}, nil
	}

	ok, err := h.Store.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []byte{0x00}, nil
	}

	gctx.GameState = protocol.GameStateLobby
	return []byte{0x01}, nil
}

func readLengthPrefixed(buf []byte) (string, []byte, bool) {
	if len(buf) < 1 {
		return "", nil, false
	}
	n := int(buf[0])
	if len(buf) < 1+n {
		return "", nil, false
	}
	return string(buf[1 : 1+n]), buf[1+n:], true
}
