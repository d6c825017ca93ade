// Package session binds one logical file transfer to the polling calls of its
// host: one packet per display tick on the send side, one decode pass per
// observed frame on the receive side.
package session

import (
	"sync"

	"github.com/1ureka/flashsort/internal/chunker"
)

// Sender hands out the packets of one sequence, one per Tick. It is safe for
// concurrent use.
type Sender struct {
	seq  *chunker.Sequence
	loop bool

	mu    sync.Mutex
	next  int // position returned by the next Tick
	shown int // packets returned so far, across passes
	pass  int // completed passes over the sequence
}

// NewSender creates a Sender over seq. With loop set, the sequence restarts
// from position 0 after the last packet instead of ending.
func NewSender(seq *chunker.Sequence, loop bool) *Sender {
	return &Sender{seq: seq, loop: loop}
}

// TransferID returns the identifier of the transfer being sent.
func (s *Sender) TransferID() string { return s.seq.TransferID() }

// Tick returns the next wire string. ok is false once a non-looping sender
// has emitted every packet.
func (s *Sender) Tick() (wire string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.next >= s.seq.Len() {
		if !s.loop {
			return "", false
		}
		s.next = 0
	}

	wire = s.seq.Packet(s.next)
	s.next++
	s.shown++
	if s.next == s.seq.Len() {
		s.pass++
	}

	return wire, true
}

// SenderProgress describes how far a Sender has got.
type SenderProgress struct {
	Position int // position of the next packet; equals Total at the end of a pass
	Total    int // packets per pass
	Shown    int // packets emitted so far
	Passes   int // completed passes
}

// Progress returns the current position.
func (s *Sender) Progress() SenderProgress {
	s.mu.Lock()
	defer s.mu.Unlock()

	return SenderProgress{
		Position: s.next,
		Total:    s.seq.Len(),
		Shown:    s.shown,
		Passes:   s.pass,
	}
}

// Done reports whether a non-looping sender has emitted every packet.
func (s *Sender) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.loop && s.next >= s.seq.Len()
}

// Reset rewinds the sender to position 0 and clears its counters.
func (s *Sender) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next, s.shown, s.pass = 0, 0, 0
}
