package bridge

import (
	"context"
	"fmt"
	"net/url"

	"github.com/gorilla/websocket"
)

// Dial connects to a bridge endpoint ("display" or "scan") on addr and
// consumes the hello message. It is used by companion renderer/scanner
// programs and by tests.
func Dial(ctx context.Context, addr, endpoint, pin string) (*websocket.Conn, string, error) {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/" + endpoint}
	if pin != "" {
		u.RawQuery = url.Values{"pin": {pin}}.Encode()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to connect to bridge: %w", err)
	}

	var hello Message
	if err := conn.ReadJSON(&hello); err != nil {
		conn.Close()
		return nil, "", fmt.Errorf("failed to read hello: %w", err)
	}
	if hello.Type != MsgTypeHello {
		conn.Close()
		return nil, "", fmt.Errorf("unexpected first message %q", hello.Type)
	}

	return conn, hello.ClientID, nil
}
