package daemon

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/entrhq/browserd/pkg/browser"
	"github.com/entrhq/browserd/pkg/logging"
	"github.com/entrhq/browserd/pkg/session"
	"github.com/entrhq/browserd/pkg/state"
)

// shutdownGrace is the delay between flushing the close response and
// closing the listener, so the client reads its reply before the connection
// drops.
const shutdownGrace = 150 * time.Millisecond

// Server is the daemon core: one listener, one browser handle, one global
// command gate. Commands from all connections are serialized through the
// gate, so the browser and the lifecycle phase only ever change under it.
type Server struct {
	ctx   *Context
	addr  *session.Address
	store *state.Store
	log   *logging.Logger

	grace time.Duration

	mu      sync.Mutex // global command gate
	phase   Phase
	browser browser.Browser

	listener net.Listener
	done     chan struct{}
	stopOnce sync.Once
	runErr   error // set before Shutdown on fatal accept failures
}

// New assembles a server from its collaborators. The browser handle starts
// idle; nothing launches until the first command needs it.
func New(ctx *Context, addr *session.Address, store *state.Store, b browser.Browser, log *logging.Logger) *Server {
	return &Server{
		ctx:     ctx,
		addr:    addr,
		store:   store,
		log:     log,
		grace:   shutdownGrace,
		phase:   PhaseIdle,
		browser: b,
		done:    make(chan struct{}),
	}
}

// SetGrace overrides the close-response delivery delay.
func (s *Server) SetGrace(d time.Duration) {
	s.grace = d
}

// Run claims the session identity, sweeps expired state, binds the control
// channel, and serves connections until a close command shuts the daemon
// down. Lifecycle files are removed on every exit path.
func (s *Server) Run() error {
	if session.Alive(s.addr.PIDFile) {
		return fmt.Errorf("daemon already running for session %q", s.ctx.SessionID)
	}

	// Expired state must be gone before any command can load it.
	if deleted := state.Sweep(s.store.Dir(), s.ctx.MaxAgeDays); len(deleted) > 0 {
		s.log.Infof("expired %d state file(s): %v", len(deleted), deleted)
	}

	if s.addr.Network == "unix" {
		// A socket left by an unclean exit blocks the bind; the pid
		// check above already proved no daemon owns it.
		_ = os.Remove(s.addr.Addr)
	}

	listener, err := net.Listen(s.addr.Network, s.addr.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s address %s: %w", s.addr.Network, s.addr.Addr, err)
	}
	s.listener = listener
	if s.addr.Network == "unix" {
		_ = os.Chmod(s.addr.Addr, 0o600)
	}

	if err := session.WritePID(s.addr.PIDFile); err != nil {
		listener.Close()
		s.addr.Cleanup()
		return fmt.Errorf("failed to write pid file: %w", err)
	}
	if err := s.addr.WriteDiscovery(); err != nil {
		listener.Close()
		s.addr.Cleanup()
		return fmt.Errorf("failed to write discovery file: %w", err)
	}

	s.log.Infof("daemon listening on %s (session=%s name=%s)",
		s.addr.Addr, s.ctx.SessionID, s.ctx.SessionName)

	go s.acceptLoop()

	<-s.done
	listener.Close()

	// Wait for any in-flight command to release the gate before tearing
	// down lifecycle files.
	s.mu.Lock()
	s.addr.Cleanup()
	s.mu.Unlock()
	s.log.Infof("daemon exited")
	return s.runErr
}

// Shutdown closes the listener and releases the session identity. Invoked
// by the close command after its response is flushed, and available to
// signal handlers.
func (s *Server) Shutdown() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
			default:
				s.log.Errorf("accept failed: %v", err)
				s.runErr = fmt.Errorf("accept failed: %w", err)
				s.Shutdown()
			}
			return
		}
		go s.handleConn(conn)
	}
}

// handleConn reassembles newline-delimited frames and answers them in
// order. One goroutine per connection; ordering across connections is
// whatever order commands win the global gate.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	s.log.Debugf("connection opened from %v", conn.RemoteAddr())

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)
	writer := bufio.NewWriter(conn)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		resp, terminate := s.dispatch(line)
		if err := writeFrame(writer, resp); err != nil {
			s.log.Errorf("failed to write response %s: %v", resp.ID, err)
			return
		}

		if terminate {
			// Give the client time to read the close reply before the
			// listener goes away.
			time.AfterFunc(s.grace, s.Shutdown)
			return
		}
	}
	if err := scanner.Err(); err != nil {
		s.log.Debugf("connection read error: %v", err)
	}
	s.log.Debugf("connection closed")
}

func writeFrame(w *bufio.Writer, resp Response) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		// Data contained something unserializable; degrade to a bare
		// error frame rather than dropping the reply.
		payload, _ = json.Marshal(Response{
			ID:      resp.ID,
			Success: false,
			Error:   fmt.Sprintf("failed to serialize response: %v", err),
			Code:    CodeIOError,
		})
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	if err := w.WriteByte('\n'); err != nil {
		return err
	}
	return w.Flush()
}
