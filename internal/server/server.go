package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/lotas/doctrack/internal/applog"
	"github.com/lotas/doctrack/internal/types"
	"nhooyr.io/websocket"
)

var (
	// ErrNotConnected is returned when no extension is connected.
	ErrNotConnected = errors.New("server: extension not connected")
	// ErrDisconnected is returned when the connection drops before a
	// response arrives.
	ErrDisconnected = errors.New("server: extension disconnected")
)

// Message types exchanged with the extension.
const (
	TypeGetDocStructure = "getDocStructure"
	TypeDocStructure    = "docStructure"
	TypeStateChanged    = "stateChanged"
	TypeHello           = "hello"
)

// IncomingMsg is a message from the extension.
type IncomingMsg struct {
	Type string `json:"type"`
	// ID echoes the id of the request this message answers.
	ID    string `json:"id,omitempty"`
	OK    *bool  `json:"ok,omitempty"`
	Error string `json:"error,omitempty"`

	URL      string          `json:"url,omitempty"`
	Title    string          `json:"title,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Headings json.RawMessage `json:"headings,omitempty"`
}

// OutgoingMsg is a request or notification sent to the extension.
type OutgoingMsg struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	URL      string          `json:"url,omitempty"`
	Changes  []types.Change  `json:"changes,omitempty"`
	Progress *types.Progress `json:"progress,omitempty"`
}

// connection is one accepted extension socket.
type connection struct {
	ws   *websocket.Conn
	ctx  context.Context
	done chan struct{}
}

// Server manages the WebSocket connection to the extension.
type Server struct {
	port    int
	msgs    chan IncomingMsg
	mu      sync.Mutex
	conn    *connection
	pending map[string]chan IncomingMsg
}

// New creates a new Server. Port 0 means the caller manages the listener.
func New(port int) *Server {
	return &Server{
		port:    port,
		msgs:    make(chan IncomingMsg, 64),
		pending: make(map[string]chan IncomingMsg),
	}
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.port
}

// Messages returns the channel of unsolicited messages from the extension.
func (s *Server) Messages() <-chan IncomingMsg {
	return s.msgs
}

// Connected reports whether an extension is connected.
func (s *Server) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Send sends a notification to the connected extension. It is a no-op when
// nothing is connected.
func (s *Server) Send(msg OutgoingMsg) error {
	s.mu.Lock()
	c := s.conn
	s.mu.Unlock()

	if c == nil {
		return nil
	}
	return s.write(c, msg)
}

func (s *Server) write(c *connection, msg OutgoingMsg) error {
	applog.Info("ws.send", "type", msg.Type, "id", msg.ID)
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.ws.Write(c.ctx, websocket.MessageText, data)
}

// Request sends msg and waits for the message carrying the same id. Exactly
// one of a response or an error is returned.
func (s *Server) Request(ctx context.Context, msg OutgoingMsg) (IncomingMsg, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	ch := make(chan IncomingMsg, 1)

	s.mu.Lock()
	c := s.conn
	if c == nil {
		s.mu.Unlock()
		return IncomingMsg{}, ErrNotConnected
	}
	s.pending[msg.ID] = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, msg.ID)
		s.mu.Unlock()
	}()

	if err := s.write(c, msg); err != nil {
		return IncomingMsg{}, fmt.Errorf("send %s: %w", msg.Type, err)
	}

	select {
	case resp := <-ch:
		if resp.Error != "" || (resp.OK != nil && !*resp.OK) {
			return resp, fmt.Errorf("extension: %s", resp.Error)
		}
		return resp, nil
	case <-c.done:
		return IncomingMsg{}, ErrDisconnected
	case <-ctx.Done():
		applog.Info("ws.request.timeout", "type", msg.Type, "id", msg.ID)
		return IncomingMsg{}, ctx.Err()
	}
}

// RequestStructure asks the extension for the table of contents of its
// active page.
func (s *Server) RequestStructure(ctx context.Context) (types.Structure, error) {
	resp, err := s.Request(ctx, OutgoingMsg{Type: TypeGetDocStructure})
	if err != nil {
		return types.Structure{}, err
	}
	if resp.Type != TypeDocStructure {
		return types.Structure{}, fmt.Errorf("expected %q response, got %q", TypeDocStructure, resp.Type)
	}
	return ParseStructure(resp)
}

// deliver routes a response to its waiting request. It reports false for
// messages nobody is waiting for.
func (s *Server) deliver(msg IncomingMsg) bool {
	if msg.ID == "" {
		return false
	}
	s.mu.Lock()
	ch, ok := s.pending[msg.ID]
	if ok {
		delete(s.pending, msg.ID)
	}
	s.mu.Unlock()
	if ok {
		ch <- msg
	}
	return ok
}

// Handler returns an http.Handler that accepts WebSocket upgrades.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			applog.Error("ws.accept", err)
			return
		}

		ws.SetReadLimit(16 << 20) // 16 MB, large manuals produce big trees

		c := &connection{ws: ws, ctx: r.Context(), done: make(chan struct{})}
		s.mu.Lock()
		if s.conn != nil {
			applog.Info("ws.replaced")
			s.conn.ws.CloseNow()
		}
		s.conn = c
		s.mu.Unlock()

		applog.Info("ws.connected", "remote", r.RemoteAddr)

		defer func() {
			s.mu.Lock()
			if s.conn == c {
				s.conn = nil
			}
			s.mu.Unlock()
			close(c.done)
			ws.CloseNow()
			applog.Info("ws.disconnected")
		}()

		for {
			_, data, err := ws.Read(c.ctx)
			if err != nil {
				return
			}
			var msg IncomingMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				applog.Error("ws.parse", err)
				continue
			}
			applog.Info("ws.recv", "type", msg.Type, "id", msg.ID)
			if s.deliver(msg) {
				continue
			}
			select {
			case s.msgs <- msg:
			default:
			}
		}
	})
}

// ListenAndServe starts the WebSocket server on the configured port.
func (s *Server) ListenAndServe(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/", s.Handler())

	addr := fmt.Sprintf("127.0.0.1:%d", s.port)
	applog.Info("server.start", "addr", addr)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	return srv.ListenAndServe()
}
