package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/1ureka/flashsort/internal/util"
)

const (
	displayBufferSize = 16              // queued packets per renderer before drops
	frameBufferSize   = 64              // queued scanner frames
	writeTimeout      = 5 * time.Second // per-message write deadline
	shutdownTimeout   = 2 * time.Second // graceful HTTP shutdown
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// display is one connected renderer.
type display struct {
	id   string
	conn *websocket.Conn
	out  chan Message
}

// Server is the WebSocket bridge. Renderers connect to /display, scanners to
// /scan. When a PIN is set, both require a matching ?pin= query parameter.
type Server struct {
	pin string

	httpSrv  *http.Server
	listener net.Listener

	mu       sync.Mutex
	displays map[string]*display
	scanners map[string]*websocket.Conn

	frames chan []string
	seq    atomic.Uint64

	done      chan struct{}
	closeOnce sync.Once
}

// NewServer creates a bridge server. An empty pin disables authentication.
func NewServer(pin string) *Server {
	return &Server{
		pin:      pin,
		displays: make(map[string]*display),
		scanners: make(map[string]*websocket.Conn),
		frames:   make(chan []string, frameBufferSize),
		done:     make(chan struct{}),
	}
}

// Handler returns the HTTP handler serving /display and /scan.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/display", s.handleDisplay)
	mux.HandleFunc("/scan", s.handleScan)
	return mux
}

// Start begins listening on addr (":0" picks a free port) and returns the
// bound address.
func (s *Server) Start(addr string) (string, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to start bridge server: %w", err)
	}
	s.listener = listener
	s.httpSrv = &http.Server{Handler: s.Handler()}

	go func() {
		if err := s.httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.LogError("bridge server stopped: %v", err)
		}
	}()

	return listener.Addr().String(), nil
}

// Frames delivers the candidate list of every frame reported by a scanner.
func (s *Server) Frames() <-chan []string {
	return s.frames
}

// Publish queues wire for every connected renderer. A renderer that falls
// behind loses packets, which the protocol tolerates. It returns the number of
// renderers the packet was queued for.
func (s *Server) Publish(wire string) int {
	msg := Message{Type: MsgTypePacket, Seq: s.seq.Add(1), Data: wire}

	s.mu.Lock()
	defer s.mu.Unlock()

	queued := 0
	for _, d := range s.displays {
		select {
		case d.out <- msg:
			queued++
		default:
			util.LogDebug("[%s] renderer queue full, dropping packet %d", d.id, msg.Seq)
		}
	}
	return queued
}

// Clients returns the IDs of connected renderers and scanners, sorted.
func (s *Server) Clients() (displays, scanners []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range s.displays {
		displays = append(displays, id)
	}
	for id := range s.scanners {
		scanners = append(scanners, id)
	}
	slices.Sort(displays)
	slices.Sort(scanners)
	return displays, scanners
}

// Close disconnects every client and stops the listener.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)

		s.mu.Lock()
		for _, d := range s.displays {
			d.conn.Close()
		}
		for _, c := range s.scanners {
			c.Close()
		}
		s.mu.Unlock()

		if s.httpSrv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			err = s.httpSrv.Shutdown(ctx)
		}
	})
	return err
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (s *Server) authorize(w http.ResponseWriter, r *http.Request) bool {
	if s.pin != "" && r.URL.Query().Get("pin") != s.pin {
		http.Error(w, "Invalid PIN", http.StatusUnauthorized)
		return false
	}
	return true
}

func (s *Server) handleDisplay(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r) {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	d := &display{
		id:   uuid.NewString(),
		conn: conn,
		out:  make(chan Message, displayBufferSize),
	}

	s.mu.Lock()
	s.displays[d.id] = d
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.displays, d.id)
		s.mu.Unlock()
		conn.Close()
		util.LogInfo("[%s] renderer disconnected", d.id)
	}()

	// Packets queue in d.out until the loop below runs, so hello is always
	// the first message a renderer sees.
	if err := writeMessage(conn, Message{Type: MsgTypeHello, ClientID: d.id}); err != nil {
		return
	}
	util.LogInfo("[%s] renderer connected from %s", d.id, r.RemoteAddr)

	// The read loop only detects disconnects; renderers have nothing to say.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg := <-d.out:
			if err := writeMessage(conn, msg); err != nil {
				util.LogDebug("[%s] write failed: %v", d.id, err)
				return
			}
		case <-closed:
			return
		case <-s.done:
			return
		}
	}
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r) {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	id := uuid.NewString()

	s.mu.Lock()
	s.scanners[id] = conn
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.scanners, id)
		s.mu.Unlock()
		conn.Close()
		util.LogInfo("[%s] scanner disconnected", id)
	}()

	if err := writeMessage(conn, Message{Type: MsgTypeHello, ClientID: id}); err != nil {
		return
	}
	util.LogInfo("[%s] scanner connected from %s", id, r.RemoteAddr)

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Type != MsgTypeFrame {
			util.LogDebug("[%s] ignoring %q message", id, msg.Type)
			continue
		}

		select {
		case s.frames <- msg.Candidates:
		case <-s.done:
			return
		}
	}
}

func writeMessage(conn *websocket.Conn, msg Message) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(msg)
}
