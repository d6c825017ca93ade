package signaling

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/flashsort/internal/util"
)

// PINLength is the number of digits in a generated signaling PIN.
const PINLength = 6

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// server accepts exactly one receiver on /ws. Later connections are closed
// with a policy violation.
type server struct {
	pin     string
	httpSrv *http.Server
	connCh  chan *websocket.Conn
}

func newServer(pin string) *server {
	s := &server{
		pin:    pin,
		connCh: make(chan *websocket.Conn, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	s.httpSrv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	return s
}

// start listens on addr and returns the bound address, useful with port 0.
func (s *server) start(addr string) (string, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to start signaling server: %w", err)
	}

	go func() {
		if err := s.httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.LogError("signaling server stopped: %v", err)
		}
	}()

	return listener.Addr().String(), nil
}

func (s *server) handleWS(w http.ResponseWriter, r *http.Request) {
	if subtle.ConstantTimeCompare([]byte(r.URL.Query().Get("pin")), []byte(s.pin)) != 1 {
		http.Error(w, "Invalid PIN", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	select {
	case s.connCh <- conn:
	default:
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "link already taken"))
		conn.Close()
	}
}

// accept blocks until the receiver connects or ctx is done.
func (s *server) accept(ctx context.Context) (*websocket.Conn, error) {
	select {
	case conn := <-s.connCh:
		return conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// close stops accepting connections. Hijacked WebSocket connections stay open.
func (s *server) close() {
	s.httpSrv.Close()
}

// dial connects to the sender's signaling endpoint.
func dial(ctx context.Context, url string) (*websocket.Conn, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("signaling server refused the PIN: %w", err)
		}
		return nil, fmt.Errorf("failed to connect to signaling server: %w", err)
	}
	return conn, nil
}

// GeneratePIN returns a random numeric PIN of the given length.
func GeneratePIN(length int) string {
	digits := make([]byte, length)
	for i := range digits {
		n, _ := rand.Int(rand.Reader, big.NewInt(10))
		digits[i] = byte('0') + byte(n.Int64())
	}
	return string(digits)
}
