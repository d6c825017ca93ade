package signaling

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/flashsort/internal/transport"
	"github.com/1ureka/flashsort/internal/util"
)

// negotiator runs one side of the SDP/ICE exchange. Writes may come from the
// ICE callback and the read loop at once, so they share a mutex. Everything
// else is touched only by the read loop.
type negotiator struct {
	tr   *transport.Transport
	conn *websocket.Conn

	writeMu sync.Mutex

	remoteSet bool
	pending   []webrtc.ICECandidateInit // candidates that beat the remote description

	announced chan Announcement
}

func newNegotiator(tr *transport.Transport, conn *websocket.Conn) *negotiator {
	return &negotiator{
		tr:        tr,
		conn:      conn,
		announced: make(chan Announcement, 1),
	}
}

func (n *negotiator) write(msg message) error {
	n.writeMu.Lock()
	defer n.writeMu.Unlock()
	return n.conn.WriteJSON(msg)
}

// offer applies a local offer and sends it together with the announcement.
func (n *negotiator) offer(ann Announcement) error {
	desc, err := n.tr.CreateOffer()
	if err != nil {
		return fmt.Errorf("failed to create offer: %w", err)
	}
	if err := n.tr.SetLocalDescription(desc); err != nil {
		return err
	}
	return n.write(message{Kind: kindOffer, SDP: desc.SDP, Transfer: &ann})
}

func (n *negotiator) answer() error {
	desc, err := n.tr.CreateAnswer()
	if err != nil {
		return fmt.Errorf("failed to create answer: %w", err)
	}
	if err := n.tr.SetLocalDescription(desc); err != nil {
		return err
	}
	return n.write(message{Kind: kindAnswer, SDP: desc.SDP})
}

// forward is the local ICE candidate callback. Sending is best effort: a
// lost candidate only narrows the set of paths ICE can try.
func (n *negotiator) forward(c *webrtc.ICECandidate) {
	if c == nil {
		return
	}
	init := c.ToJSON()
	if err := n.write(message{Kind: kindCandidate, Candidate: &init}); err != nil {
		util.LogDebug("candidate not sent: %v", err)
	}
}

// run applies incoming messages until the WebSocket closes or one fails.
func (n *negotiator) run() error {
	for {
		var msg message
		if err := n.conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("failed to read signaling message: %w", err)
		}
		if err := n.apply(msg); err != nil {
			return err
		}
	}
}

func (n *negotiator) apply(msg message) error {
	switch msg.Kind {
	case kindOffer:
		if msg.Transfer == nil {
			return fmt.Errorf("%w: offer carries none", ErrBadAnnouncement)
		}
		if err := msg.Transfer.validate(); err != nil {
			return err
		}
		if err := n.setRemote(webrtc.SDPTypeOffer, msg.SDP); err != nil {
			return err
		}
		select {
		case n.announced <- *msg.Transfer:
		default:
		}
		return n.answer()

	case kindAnswer:
		return n.setRemote(webrtc.SDPTypeAnswer, msg.SDP)

	case kindCandidate:
		if msg.Candidate == nil {
			return errors.New("candidate message without candidate")
		}
		if !n.remoteSet {
			n.pending = append(n.pending, *msg.Candidate)
			return nil
		}
		return n.tr.AddICECandidate(*msg.Candidate)

	default:
		return fmt.Errorf("unknown signaling message %q", msg.Kind)
	}
}

// setRemote applies the peer's description and flushes queued candidates.
func (n *negotiator) setRemote(kind webrtc.SDPType, sdp string) error {
	if err := n.tr.SetRemoteDescription(webrtc.SessionDescription{Type: kind, SDP: sdp}); err != nil {
		return fmt.Errorf("failed to apply remote %s: %w", kind, err)
	}
	n.remoteSet = true

	for _, c := range n.pending {
		if err := n.tr.AddICECandidate(c); err != nil {
			return err
		}
	}
	n.pending = nil
	return nil
}
