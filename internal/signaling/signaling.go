package signaling

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/pterm/pterm"

	"github.com/1ureka/flashsort/internal/transport"
	"github.com/1ureka/flashsort/internal/util"
)

// EstablishAsSender serves signaling on addr behind a fresh PIN, prints the
// URL the receiver needs, and returns once the link's DataChannel is open.
// ann travels with the offer.
func EstablishAsSender(ctx context.Context, addr string, ann Announcement, opts ...transport.Option) (*transport.Transport, error) {
	if err := ann.validate(); err != nil {
		return nil, err
	}

	srv := newServer(GeneratePIN(PINLength))
	bound, err := srv.start(addr)
	if err != nil {
		return nil, err
	}
	defer srv.close()

	pterm.DefaultBox.WithTitle("Link Signaling").Println(
		fmt.Sprintf("URL : ws://%s/ws?pin=%s", bound, srv.pin),
	)

	return offerLink(ctx, srv, ann, opts...)
}

// offerLink waits for the receiver on an already started server and offers
// the link to it.
func offerLink(ctx context.Context, srv *server, ann Announcement, opts ...transport.Option) (*transport.Transport, error) {
	util.LogInfo("waiting for the receiver to connect...")
	conn, err := srv.accept(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to wait for receiver: %w", err)
	}
	defer conn.Close()
	util.LogInfo("receiver connected")

	tr, _, err := negotiate(ctx, conn, &ann, opts)
	return tr, err
}

// EstablishAsReceiver dials the sender's signaling URL, answers its offer and
// returns the open link along with the transfer the sender announced.
func EstablishAsReceiver(ctx context.Context, wsURL string, opts ...transport.Option) (*transport.Transport, Announcement, error) {
	util.LogInfo("connecting to sender...")
	conn, err := dial(ctx, wsURL)
	if err != nil {
		return nil, Announcement{}, err
	}
	defer conn.Close()
	util.LogDebug("signaling connected: %s", wsURL)

	return negotiate(ctx, conn, nil, opts)
}

// negotiate runs the exchange on conn. A non-nil ann makes this side the
// offerer; otherwise it answers and reports the peer's announcement.
func negotiate(ctx context.Context, conn *websocket.Conn, ann *Announcement, opts []transport.Option) (*transport.Transport, Announcement, error) {
	tr, err := transport.NewTransport(ctx, opts...)
	if err != nil {
		return nil, Announcement{}, fmt.Errorf("failed to create link: %w", err)
	}

	n := newNegotiator(tr, conn)
	tr.OnICECandidate(n.forward)

	errCh := make(chan error, 1)
	go func() {
		errCh <- n.run() // returns once the caller closes conn
	}()

	if ann != nil {
		if err := n.offer(*ann); err != nil {
			tr.Close()
			return nil, Announcement{}, fmt.Errorf("failed to send offer: %w", err)
		}
	}

	select {
	case <-tr.Ready():
		util.LogSuccess("link DataChannel open")
		if ann != nil {
			return tr, *ann, nil
		}
		// The offer is applied before the channel can open.
		return tr, <-n.announced, nil

	case err := <-errCh:
		tr.Close()
		return nil, Announcement{}, fmt.Errorf("signaling failed: %w", err)

	case <-ctx.Done():
		tr.Close()
		return nil, Announcement{}, ctx.Err()
	}
}
