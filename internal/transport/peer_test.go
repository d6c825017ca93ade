package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDataChannelIsLossy checks that the link is configured like the optical
// channel: unordered and never retransmitting.
func TestDataChannelIsLossy(t *testing.T) {
	pc, err := newPeerConnection()
	require.NoError(t, err)
	defer pc.Close()

	dc, err := newDataChannel(pc)
	require.NoError(t, err)

	assert.False(t, dc.Ordered())
	require.NotNil(t, dc.MaxRetransmits())
	assert.Equal(t, uint16(0), *dc.MaxRetransmits())
	assert.True(t, dc.Negotiated())
	require.NotNil(t, dc.ID())
	assert.Equal(t, uint16(0), *dc.ID())
}

func TestPeerOptions(t *testing.T) {
	for _, opts := range [][]Option{nil, {WithoutSTUN()}, {WithoutSTUN(), WithLoopback()}} {
		pc, err := newPeerConnection(opts...)
		require.NoError(t, err)

		o := peerOptions{stun: true}
		for _, opt := range opts {
			opt(&o)
		}
		assert.Equal(t, o.stun, len(pc.GetConfiguration().ICEServers) > 0)
		require.NoError(t, pc.Close())
	}
}
