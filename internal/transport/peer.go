package transport

import (
	"github.com/pion/webrtc/v4"
)

// STUN servers for ICE candidate gathering. No TURN; the link is meant for
// direct connectivity between two machines.
var stunServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

type peerOptions struct {
	stun     bool
	loopback bool
}

// Option adjusts how a Transport gathers ICE candidates.
type Option func(*peerOptions)

// WithoutSTUN skips the public STUN servers and uses host candidates only.
func WithoutSTUN() Option {
	return func(o *peerOptions) { o.stun = false }
}

// WithLoopback gathers loopback candidates, for two peers on one machine.
func WithLoopback() Option {
	return func(o *peerOptions) { o.loopback = true }
}

// newPeerConnection creates a data-only PeerConnection.
func newPeerConnection(opts ...Option) (*webrtc.PeerConnection, error) {
	o := peerOptions{stun: true}
	for _, opt := range opts {
		opt(&o)
	}

	var config webrtc.Configuration
	if o.stun {
		config.ICEServers = []webrtc.ICEServer{{URLs: stunServers}}
	}

	var settings webrtc.SettingEngine
	if o.loopback {
		settings.SetIncludeLoopbackCandidate(true)
	}

	api := webrtc.NewAPI(webrtc.WithSettingEngine(settings))
	return api.NewPeerConnection(config)
}

// newDataChannel creates a pre-negotiated DataChannel that behaves like the
// optical channel: unordered, and with zero retransmits so lost messages stay
// lost. Negotiated mode (ID 0) lets both sides create it independently.
func newDataChannel(pc *webrtc.PeerConnection) (*webrtc.DataChannel, error) {
	ordered := false
	negotiated := true
	maxRetransmits := uint16(0)
	id := uint16(0)

	return pc.CreateDataChannel("packets", &webrtc.DataChannelInit{
		Ordered:        &ordered,
		MaxRetransmits: &maxRetransmits,
		Negotiated:     &negotiated,
		ID:             &id,
	})
}
