package server

import (
	"context"
	"crypto/rsa"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"rag2login/internal/protocol"
)

const readChunkSize = 4096

// LoginServer is the TCP connection runtime for the login core: one
// accepting socket, one goroutine per connection, a shared read-only RSA
// keypair and dispatcher registry.
type LoginServer struct {
	ip         string
	port       int
	rsaKey     *rsa.PrivateKey
	rsaPubDER  []byte
	dispatcher *protocol.Dispatcher

	listener net.Listener
	wg       sync.WaitGroup
	shutdown chan struct{}
}

// NewLoginServer creates a login server instance. rsaKey/rsaPubDER should be
// generated once at startup (protocol.GenerateRSAKeypair) and shared across
// every connection.
func NewLoginServer(ip string, port int, rsaKey *rsa.PrivateKey, rsaPubDER []byte, dispatcher *protocol.Dispatcher) *LoginServer {
	return &LoginServer{
		ip:         ip,
		port:       port,
		rsaKey:     rsaKey,
		rsaPubDER:  rsaPubDER,
		dispatcher: dispatcher,
		shutdown:   make(chan struct{}),
	}
}

// Start binds the listener and runs the accept loop. Returns an error only
// when the listener cannot be bound; otherwise blocks until Stop is called.
// Accept errors outside shutdown are logged and the loop keeps accepting.
func (s *LoginServer) Start() error {
	address := fmt.Sprintf("%s:%d", s.ip, s.port)

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("server: failed to listen on %s: %w", address, err)
	}
	s.listener = listener
	log.Printf("[Server] listening on %s", address)

	for {
		select {
		case <-s.shutdown:
			return nil
		default:
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.shutdown:
					return nil
				default:
					log.Printf("[Server] error accepting connection: %v", err)
					continue
				}
			}

			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.handleConnection(conn)
			}()
		}
	}
}

// Stop closes the listener and drains in-flight connections.
func (s *LoginServer) Stop() {
	log.Println("[Server] shutting down...")
	close(s.shutdown)
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
	log.Println("[Server] shutdown complete")
}

func (s *LoginServer) handleConnection(conn net.Conn) {
	defer conn.Close()

	remoteAddr := conn.RemoteAddr().String()
	log.Printf("[Server] accepted connection from %s", remoteAddr)

	sess := protocol.NewSession(s.rsaKey, s.rsaPubDER, s.dispatcher, remoteAddr)
	ctx := context.Background()

	buf := make([]byte, 0, readChunkSize)
	scratch := make([]byte, readChunkSize)

	for {
		n, err := conn.Read(scratch)
		if n > 0 {
			buf = append(buf, scratch[:n]...)

			consumed, writes, perr := s.processBuffer(ctx, sess, buf)
			buf = buf[consumed:]
			if writeErr := writeAll(conn, writes); writeErr != nil {
				log.Printf("[Server] write error to %s: %v", remoteAddr, writeErr)
				return
			}
			if perr != nil {
				log.Printf("[Server] protocol error from %s: %v", remoteAddr, perr)
				return
			}
			if sess.Phase() == protocol.PhaseClosed {
				return
			}
		}
		if err != nil {
			log.Printf("[Server] connection from %s closed: %v", remoteAddr, err)
			return
		}
	}
}

// processBuffer consumes whatever complete unframed policy requests and
// framed messages are available at the front of buf, returning the number
// of bytes consumed and every write produced, in order.
func (s *LoginServer) processBuffer(ctx context.Context, sess *protocol.Session, buf []byte) (int, [][]byte, error) {
	var writes [][]byte
	consumed := 0

	if sess.Phase() == protocol.PhaseAwaitingPolicy {
		if n, ok := rawPolicyRequestLength(buf); ok {
			w, err := sess.HandlePolicyRequest()
			if err != nil {
				return consumed, writes, err
			}
			writes = append(writes, w...)
			consumed += n
			buf = buf[n:]
		}
	}

	frames, n, err := protocol.DecodeFrames(buf)
	consumed += n
	for _, frame := range frames {
		outer, _ := protocol.OuterOpcode(frame.Payload)
		w, ferr := sess.HandleFrame(ctx, frame.Payload)
		if outer == protocol.OpSessionKey {
			// The reference server answers the first encrypted handshake
			// message after a short delay; the client tolerates its
			// absence but the timing is preserved to match observed
			// captures.
			time.Sleep(20 * time.Millisecond)
		}
		writes = append(writes, w...)
		if ferr != nil {
			return consumed, writes, ferr
		}
	}
	return consumed, writes, err
}

// rawPolicyRequestLength reports whether buf begins with the unframed ASCII
// policy request, and how many bytes to consume: the request itself, plus a
// trailing NUL if present.
func rawPolicyRequestLength(buf []byte) (int, bool) {
	req := protocol.PolicyRequestASCII
	if !strings.HasPrefix(string(buf), req) {
		return 0, false
	}
	n := len(req)
	if len(buf) > n && buf[n] == 0x00 {
		n++
	}
	return n, true
}

func writeAll(conn net.Conn, writes [][]byte) error {
	for _, w := range writes {
		if _, err := conn.Write(w); err != nil {
			return err
		}
	}
	return nil
}
