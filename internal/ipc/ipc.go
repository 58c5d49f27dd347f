// Package ipc exposes a running build over a local socket: a Unix domain
// socket on Linux/macOS, a named pipe on Windows. The server broadcasts the
// build's events as newline-delimited JSON and answers status, kill and
// health requests. Clients that connect late first receive a replay of the
// most recent events.
package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"runtime"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/pypackstudio/pypack/internal/process"
)

// ReplayLimit is the number of past events kept for late clients.
const ReplayLimit = 512

// drainTimeout bounds how long Close waits for clients to receive the
// events still queued for them.
const drainTimeout = 2 * time.Second

// Message types.
const (
	TypeStarted  = "started"
	TypeLine     = "line"
	TypeFinished = "finished"
	TypeResponse = "response"
)

// Request is a single request line sent by a client.
type Request struct {
	Method string `json:"method"`
}

// Message is one line written to clients: a build event or a response.
type Message struct {
	Type     string   `json:"type"`
	BuildID  string   `json:"build_id,omitempty"`
	Command  []string `json:"command,omitempty"`
	Text     string   `json:"text,omitempty"`
	ExitCode *int     `json:"exit_code,omitempty"`

	Status string `json:"status,omitempty"`
	State  string `json:"state,omitempty"`
	Error  string `json:"error,omitempty"`
}

// FromEvent converts a worker event into its wire form.
func FromEvent(buildID string, ev process.Event) Message {
	switch ev.Kind {
	case process.EventStarted:
		return Message{Type: TypeStarted, BuildID: buildID, Command: ev.Command}
	case process.EventLine:
		return Message{Type: TypeLine, Text: ev.Text}
	default:
		code := ev.ExitCode
		return Message{Type: TypeFinished, BuildID: buildID, ExitCode: &code}
	}
}

// Controller is the build the server reports on and may kill.
type Controller interface {
	BuildState() string
	Kill() error
}

// Server broadcasts build events to every connected client.
type Server struct {
	socketPath string
	listener   net.Listener
	ctrl       Controller
	logger     hclog.Logger

	mu      sync.Mutex
	history []Message
	clients map[*client]struct{}
	closed  bool
	writers sync.WaitGroup
}

type client struct {
	conn net.Conn
	out  chan Message
	once sync.Once
}

// finish closes the queue and leaves the connection to writeLoop, which
// closes it once the queued messages are written or the deadline passes.
func (c *client) finish(deadline time.Time) {
	c.once.Do(func() {
		c.conn.SetWriteDeadline(deadline)
		close(c.out)
	})
}

func (c *client) close() {
	c.once.Do(func() { close(c.out) })
	c.conn.Close()
}

// SocketPath returns the platform-appropriate socket path for a build ID.
func SocketPath(buildID string) string {
	if runtime.GOOS == "windows" {
		return `\\.\pipe\pypack-` + buildID
	}
	return "/tmp/pypack-" + buildID + ".sock"
}

// NewServer creates the listener and returns a Server ready to call Serve on.
func NewServer(socketPath string, ctrl Controller, logger hclog.Logger) (*Server, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	ln, err := newListener(socketPath)
	if err != nil {
		return nil, fmt.Errorf("create event socket: %w", err)
	}
	return &Server{
		socketPath: socketPath,
		listener:   ln,
		ctrl:       ctrl,
		logger:     logger.Named("events"),
		clients:    make(map[*client]struct{}),
	}, nil
}

// Path returns the socket path clients dial.
func (s *Server) Path() string { return s.socketPath }

// Serve accepts connections until ctx is cancelled. Returns nil on clean shutdown.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			return fmt.Errorf("event socket accept: %w", err)
		}
		s.register(conn)
	}
}

// Publish records msg for replay and sends it to every client. A client whose
// queue is full is disconnected rather than allowed to stall the build.
func (s *Server) Publish(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.history = append(s.history, msg)
	if over := len(s.history) - ReplayLimit; over > 0 {
		s.history = append(s.history[:0], s.history[over:]...)
	}

	for c := range s.clients {
		select {
		case c.out <- msg:
		default:
			s.logger.Warn("dropping slow client", "remote", c.conn.RemoteAddr())
			delete(s.clients, c)
			c.close()
		}
	}
}

// Close stops accepting and removes the socket file (Unix) or pipe handle
// (Windows). Connected clients receive what is already queued for them,
// the final event included, before their connection is closed.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	deadline := time.Now().Add(drainTimeout)
	for c := range s.clients {
		delete(s.clients, c)
		c.finish(deadline)
	}
	s.mu.Unlock()

	err := s.listener.Close()
	cleanupListener(s.socketPath)
	s.writers.Wait()
	return err
}

func (s *Server) register(conn net.Conn) {
	c := &client{
		conn: conn,
		out:  make(chan Message, ReplayLimit+64),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	// The queue holds the whole history, so the replay never blocks.
	for _, msg := range s.history {
		c.out <- msg
	}
	s.clients[c] = struct{}{}
	s.writers.Add(1)
	s.mu.Unlock()

	s.logger.Debug("client connected", "replayed", len(s.history))
	go s.writeLoop(c)
	go s.readLoop(c)
}

func (s *Server) writeLoop(c *client) {
	defer s.writers.Done()
	defer c.conn.Close()

	encoder := json.NewEncoder(c.conn)
	for msg := range c.out {
		if err := encoder.Encode(msg); err != nil {
			s.drop(c)
			return
		}
	}
}

func (s *Server) readLoop(c *client) {
	defer s.drop(c)
	scanner := bufio.NewScanner(c.conn)

	for scanner.Scan() {
		var req Request
		var resp Message
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			resp = Message{Type: TypeResponse, Status: "error", Error: "malformed request"}
		} else {
			resp = s.handleRequest(req)
		}
		if !s.reply(c, resp) {
			return
		}
	}
}

func (s *Server) reply(c *client, msg Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; !ok {
		return false
	}
	select {
	case c.out <- msg:
		return true
	default:
		delete(s.clients, c)
		c.close()
		return false
	}
}

func (s *Server) drop(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	c.close()
}

func (s *Server) handleRequest(req Request) Message {
	switch req.Method {
	case "status":
		if s.ctrl == nil {
			return Message{Type: TypeResponse, Status: "ok", State: "idle"}
		}
		return Message{Type: TypeResponse, Status: "ok", State: s.ctrl.BuildState()}

	case "kill":
		if s.ctrl == nil {
			return Message{Type: TypeResponse, Status: "error", Error: "no build attached"}
		}
		s.logger.Info("kill requested over event socket")
		if err := s.ctrl.Kill(); err != nil {
			return Message{Type: TypeResponse, Status: "error", Error: err.Error()}
		}
		return Message{Type: TypeResponse, Status: "ok"}

	case "health":
		return Message{Type: TypeResponse, Status: "ok"}

	default:
		return Message{Type: TypeResponse, Status: "error", Error: fmt.Sprintf("unknown method: %s", req.Method)}
	}
}
