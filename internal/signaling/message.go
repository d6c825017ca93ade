// Package signaling sets up the WebRTC link between a sender and a receiver
// over a short-lived, PIN-protected WebSocket.
package signaling

import (
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/flashsort/internal/protocol"
)

// ErrBadAnnouncement is returned when an offer does not describe a usable transfer.
var ErrBadAnnouncement = errors.New("bad transfer announcement")

// Announcement describes the transfer the sender is about to stream. It rides
// on the offer so the receiver knows what to expect before any packet arrives.
type Announcement struct {
	TransferID string `json:"transfer_id"`
	TotalCount int    `json:"total_count"`
	Size       int    `json:"size"` // bytes
}

func (a Announcement) validate() error {
	if err := protocol.ValidateTransferID(a.TransferID); err != nil {
		return fmt.Errorf("%w: %v", ErrBadAnnouncement, err)
	}
	if a.TotalCount < 1 || a.Size < 0 {
		return fmt.Errorf("%w: %d packets, %d bytes", ErrBadAnnouncement, a.TotalCount, a.Size)
	}
	return nil
}

type messageKind string

const (
	kindOffer     messageKind = "offer"
	kindAnswer    messageKind = "answer"
	kindCandidate messageKind = "candidate"
)

// message is one JSON frame on the signaling WebSocket.
type message struct {
	Kind      messageKind              `json:"kind"`
	SDP       string                   `json:"sdp,omitempty"`
	Transfer  *Announcement            `json:"transfer,omitempty"` // offer only
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}
