package protocol

import (
	"context"
	"crypto/rsa"
	"encoding/binary"
	"fmt"
	"log"
	"math/rand"
	"strings"

	"github.com/google/uuid"
)

// Phase is the handshake phase of a connection. Modeled as a tagged
// enumeration rather than a bag of booleans so combinations like
// Authenticated-without-EncryptionReady are unrepresentable.
type Phase int

const (
	PhaseAwaitingPolicy Phase = iota
	PhaseEncryptionOffered
	PhaseEncryptionReady
	PhaseAuthenticated
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingPolicy:
		return "AwaitingPolicy"
	case PhaseEncryptionOffered:
		return "EncryptionOffered"
	case PhaseEncryptionReady:
		return "EncryptionReady"
	case PhaseAuthenticated:
		return "Authenticated"
	case PhaseClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// PolicyRequestASCII is the unframed Flash policy request the client may
// send instead of a framed 0x2F payload.
const PolicyRequestASCII = "<policy-file-request/>"

const policyReplyXML = `<?xml version="1.0"?><cross-domain-policy><allow-access-from domain="*" to-ports="*" /></cross-domain-policy>`

// Outer opcodes, as defined in spec.md §4.3/§6.
const (
	OpDisconnect          byte = 0x01
	OpFlashPolicy         byte = 0x2F
	OpEncryptionHandshake byte = 0x04
	OpSessionKey          byte = 0x05
	OpSessionKeyAck       byte = 0x06
	OpVersionCheck        byte = 0x07
	OpConnectionSuccess   byte = 0x0A
	OpHeartbeatRequest    byte = 0x1B
	OpHeartbeatReply      byte = 0x1D
	OpKeepAlive           byte = 0x1C
	OpEnvelope            byte = 0x25
	OpEnvelopeAlt         byte = 0x26
)

// Session drives one connection through the handshake state machine
// described in spec.md §4.3. It owns one Engine instance and the shared
// dispatcher reference.
type Session struct {
	phase      Phase
	engine     *Engine
	dispatcher *Dispatcher
	ctx        *GameContext
	remoteIP   string

	clientVersion uint16
	clientGUID    [16]byte
}

// NewSession creates a session for a freshly accepted connection. rsaKey and
// rsaPubDER are the process-wide shared keypair; dispatcher is the
// process-wide shared handler registry.
func NewSession(rsaKey *rsa.PrivateKey, rsaPubDER []byte, dispatcher *Dispatcher, remoteAddr string) *Session {
	return &Session{
		phase:      PhaseAwaitingPolicy,
		engine:     NewEngine(rsaKey, rsaPubDER),
		dispatcher: dispatcher,
		ctx:        NewGameContext(remoteAddr),
		remoteIP:   stripPort(remoteAddr),
	}
}

// Phase returns the session's current handshake phase.
func (s *Session) Phase() Phase {
	return s.phase
}

// PublicKeyDER exposes the process-wide RSA public key this session's
// engine was built with, for callers (tests, diagnostics) that need it
// outside the handshake itself.
func (s *Session) PublicKeyDER() []byte {
	return s.engine.PublicKeyDER()
}

// GameContext exposes the session's mutable per-connection state.
func (s *Session) GameContext() *GameContext {
	return s.ctx
}

func stripPort(addr string) string {
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		return addr[:i]
	}
	return addr
}

// HandlePolicyRequest answers a Flash policy request, framed or raw, the
// same way: an unframed 110-byte XML reply followed unconditionally by a
// framed encryption handshake. Returns the writes in order.
func (s *Session) HandlePolicyRequest() ([][]byte, error) {
	reply := append([]byte(policyReplyXML), 0x00)

	handshake, err := s.buildEncryptionHandshake()
	if err != nil {
		s.phase = PhaseClosed
		return nil, fmt.Errorf("protocol: build encryption handshake: %w", err)
	}

	s.phase = PhaseEncryptionOffered
	return [][]byte{reply, handshake}, nil
}

func (s *Session) buildEncryptionHandshake() ([]byte, error) {
	der := s.engine.PublicKeyDER()

	payload := make([]byte, 0, 1+len(SettingsBlock)+2+len(der))
	payload = append(payload, OpEncryptionHandshake)
	payload = append(payload, SettingsBlock...)

	derLen := make([]byte, 2)
	binary.LittleEndian.PutUint16(derLen, uint16(len(der)))
	payload = append(payload, derLen...)
	payload = append(payload, der...)

	// The reference client's parser rejects a 1-byte VarInt width here.
	return EncodeFrameWidth(payload, 2)
}

// HandleFrame processes one decoded frame's payload, keyed by its outer
// opcode, and returns the bytes to write (zero or more complete writes, in
// order). Per spec.md §5, callers must write every returned slice before
// decoding the next frame.
func (s *Session) HandleFrame(ctx context.Context, payload []byte) ([][]byte, error) {
	outer, ok := OuterOpcode(payload)
	if !ok {
		return nil, nil
	}

	switch outer {
	case OpFlashPolicy:
		return s.HandlePolicyRequest()

	case OpSessionKey:
		return s.handleSessionKey(payload)

	case OpVersionCheck:
		return s.handleVersionCheck(payload)

	case OpHeartbeatRequest:
		return s.handleHeartbeat(payload)

	case OpKeepAlive:
		return nil, nil

	case OpDisconnect:
		log.Printf("[Session] client disconnect notification (session %d)", s.ctx.SessionID)
		return nil, nil

	case OpEnvelope, OpEnvelopeAlt:
		return s.handleEnvelope(ctx, payload)

	default:
		log.Printf("[Session] ignoring unknown outer opcode 0x%02x", outer)
		return nil, nil
	}
}

func (s *Session) handleSessionKey(payload []byte) ([][]byte, error) {
	// 05 02 <len:u16 LE=0x0080> <128 bytes ciphertext> [trailing, ignored]
	const headerLen = 4
	if len(payload) < headerLen {
		return nil, fmt.Errorf("protocol: 0x05 payload too short")
	}
	keyLen := int(binary.LittleEndian.Uint16(payload[2:4]))
	if len(payload) < headerLen+keyLen {
		return nil, fmt.Errorf("protocol: 0x05 payload shorter than declared key length")
	}
	ciphertext := payload[headerLen : headerLen+keyLen]

	if err := s.engine.InstallSessionKeyFromRSA(ciphertext); err != nil {
		// Diagnostic exception (spec.md §7): keep the connection open
		// briefly rather than closing immediately.
		log.Printf("[Session] rsa session key decryption failed: %v", err)
		return nil, err
	}

	s.phase = PhaseEncryptionReady
	ack, err := EncodeFrame([]byte{OpSessionKeyAck})
	if err != nil {
		return nil, err
	}
	return [][]byte{ack}, nil
}

func (s *Session) handleVersionCheck(payload []byte) ([][]byte, error) {
	// 07 <ver:u16 LE> <guid:16> <flags:3>
	const minLen = 1 + 2 + 16 + 3
	if len(payload) < minLen {
		return nil, fmt.Errorf("protocol: 0x07 payload too short")
	}
	s.clientVersion = binary.LittleEndian.Uint16(payload[1:3])
	copy(s.clientGUID[:], payload[3:19])

	s.ctx.SessionID = rand.Uint32()

	reply := s.buildConnectionSuccess()
	s.phase = PhaseAuthenticated

	framed, err := EncodeFrame(reply)
	if err != nil {
		return nil, err
	}
	return [][]byte{framed}, nil
}

func (s *Session) buildConnectionSuccess() []byte {
	serverGUID := uuid.New()

	out := make([]byte, 0, 1+4+16+2+2+1+len(s.remoteIP)+2)
	out = append(out, OpConnectionSuccess)

	sid := make([]byte, 4)
	binary.LittleEndian.PutUint32(sid, s.ctx.SessionID)
	out = append(out, sid...)

	out = append(out, serverGUID[:]...)

	out = append(out, 0x01, 0x00)
	out = append(out, 0x01, 0x01)
	out = append(out, byte(len(s.remoteIP)))
	out = append(out, []byte(s.remoteIP)...)
	out = append(out, 0xAC, 0xF6)
	return out
}

func (s *Session) handleHeartbeat(payload []byte) ([][]byte, error) {
	if len(payload) < 3 {
		return nil, fmt.Errorf("protocol: 0x1B payload too short")
	}
	reply := make([]byte, 17)
	reply[0] = OpHeartbeatReply
	reply[1] = payload[1]
	reply[2] = payload[2]

	framed, err := EncodeFrame(reply)
	if err != nil {
		return nil, err
	}
	return [][]byte{framed}, nil
}

func (s *Session) handleEnvelope(ctx context.Context, payload []byte) ([][]byte, error) {
	if s.phase != PhaseEncryptionReady && s.phase != PhaseAuthenticated {
		log.Printf("[Session] ignoring encrypted envelope before handshake is ready (phase %s)", s.phase)
		return nil, nil
	}

	inner, err := s.engine.DecryptEnvelope(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: decrypt envelope: %w", err)
	}

	opcode, ok := InnerOpcode(inner)
	if !ok {
		log.Printf("[Session] decrypted inner message too short to carry an opcode")
		return nil, nil
	}

	s.ctx.Touch()
	reply, err := s.dispatcher.Dispatch(ctx, opcode, inner[2:], s.ctx)
	if err != nil {
		// Not connection-fatal: the dispatcher's failure counter already
		// reflects this, no reply is sent, and the next frame is processed
		// normally.
		log.Printf("[Session] handler for opcode 0x%04x failed: %v", opcode, err)
		return nil, nil
	}
	if reply == nil {
		return nil, nil
	}

	innerReply := make([]byte, 0, 2+len(reply))
	opBytes := make([]byte, 2)
	binary.LittleEndian.PutUint16(opBytes, opcode)
	innerReply = append(innerReply, opBytes...)
	innerReply = append(innerReply, reply...)

	envelope, err := s.engine.EncryptEnvelope(innerReply)
	if err != nil {
		return nil, fmt.Errorf("protocol: encrypt envelope reply: %w", err)
	}
	framed, err := EncodeFrame(envelope)
	if err != nil {
		return nil, err
	}
	return [][]byte{framed}, nil
}
