package session

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/1ureka/flashsort/internal/protocol"
	"github.com/1ureka/flashsort/internal/reassembly"
	"github.com/1ureka/flashsort/internal/util"
)

// ErrNoTransfer is returned by Receiver.Extract before any chunk was accepted.
var ErrNoTransfer = errors.New("no transfer observed yet")

// FrameResult summarizes one Observe call.
type FrameResult struct {
	Accepted  int // candidates that added a new chunk
	Duplicate int // valid candidates for positions already held or files already extracted
	Malformed int // candidates that did not parse
	Corrupt   int // candidates whose checksum did not match
	Rejected  int // valid packets refused by the reassembler

	TransferID string              // transfer of the last candidate the reassembler took (new or duplicate)
	Progress   reassembly.Progress // progress of TransferID after this frame
}

// Valid returns the number of candidates that decoded successfully.
func (f FrameResult) Valid() int {
	return f.Accepted + f.Duplicate + f.Rejected
}

// Receiver feeds decoded candidates into a shared Reassembler and tracks the
// transfer the user is currently scanning. The Reassembler may be shared with
// other receivers; all state here is guarded by the Receiver's own mutex.
type Receiver struct {
	r *reassembly.Reassembler

	mu       sync.Mutex
	current  string
	progress reassembly.Progress
	seen     map[string]struct{} // "id:position" keys observed this session
	finished map[string]struct{} // transfers already extracted; a looping sender keeps repeating them
}

// NewReceiver creates a Receiver accumulating into r.
func NewReceiver(r *reassembly.Reassembler) *Receiver {
	return &Receiver{
		r:        r,
		seen:     make(map[string]struct{}),
		finished: make(map[string]struct{}),
	}
}

// Observe processes every candidate string found in one frame. Each candidate
// is judged on its own; noise never affects the others.
func (rc *Receiver) Observe(candidates ...string) FrameResult {
	var res FrameResult

	for _, candidate := range candidates {
		util.Stats.AddCandidate()

		chunk, err := protocol.Decode(candidate)
		if err != nil {
			if errors.Is(err, protocol.ErrIntegrityFailure) {
				res.Corrupt++
				util.Stats.AddCorrupt()
				util.LogDrop("integrity", err, candidate)
			} else {
				res.Malformed++
				util.Stats.AddMalformed()
				util.LogDrop("malformed", err, candidate)
			}
			continue
		}

		if rc.isFinished(chunk.TransferID) {
			res.Duplicate++
			util.Stats.AddDuplicate()
			continue
		}

		progress, added, err := rc.r.Accept(chunk)
		if err != nil {
			res.Rejected++
			util.Stats.AddRejected()
			util.LogWarning("[%s] packet %d refused: %v", chunk.TransferID, chunk.Position, err)
			continue
		}

		if added {
			res.Accepted++
			util.Stats.AddAccepted()
		} else {
			res.Duplicate++
			util.Stats.AddDuplicate()
		}

		res.TransferID = chunk.TransferID
		res.Progress = progress

		rc.mu.Lock()
		rc.current = chunk.TransferID
		rc.progress = progress
		rc.seen[chunk.Key()] = struct{}{}
		rc.mu.Unlock()
	}

	return res
}

func (rc *Receiver) isFinished(id string) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	_, ok := rc.finished[id]
	return ok
}

// Current returns the transfer of the most recently accepted packet.
func (rc *Receiver) Current() string {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.current
}

// Progress returns the last reported progress of the current transfer.
func (rc *Receiver) Progress() reassembly.Progress {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.progress
}

// UniqueScans returns the number of distinct packets observed this session.
func (rc *Receiver) UniqueScans() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.seen)
}

// IsComplete reports whether the current transfer has every chunk.
func (rc *Receiver) IsComplete() bool {
	id := rc.Current()
	return id != "" && rc.r.IsComplete(id)
}

// Extract returns the bytes of the current transfer once complete and
// releases its reassembly state. Later packets of the same transfer are
// counted as duplicates until ResetAll.
func (rc *Receiver) Extract() (transferID string, data []byte, err error) {
	id := rc.Current()
	if id == "" {
		return "", nil, ErrNoTransfer
	}

	data, err = rc.r.Extract(id)
	if err != nil {
		return id, nil, err
	}

	rc.mu.Lock()
	rc.finished[id] = struct{}{}
	rc.mu.Unlock()
	return id, data, nil
}

// Expire drops partial transfers idle for longer than maxIdle. When the
// current transfer is among them the session bookkeeping is cleared too.
func (rc *Receiver) Expire(maxIdle time.Duration) []string {
	expired := rc.r.Expire(maxIdle)
	if current := rc.Current(); current != "" && slices.Contains(expired, current) {
		rc.Reset()
	}
	return expired
}

// Reset clears session bookkeeping so the next file can be scanned. Partial
// reassembly state of other transfers and the set of extracted transfers are
// kept.
func (rc *Receiver) Reset() {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	rc.current = ""
	rc.progress = reassembly.Progress{}
	clear(rc.seen)
}

// ResetAll starts a fresh session: it discards the current transfer's partial
// state and forgets which transfers were already extracted.
func (rc *Receiver) ResetAll() {
	if id := rc.Current(); id != "" {
		rc.r.Discard(id)
	}
	rc.Reset()

	rc.mu.Lock()
	clear(rc.finished)
	rc.mu.Unlock()
}
