// Package reassembly accumulates chunks that arrive in any order, any number
// of times, and rebuilds the original file once every position is present.
package reassembly

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/1ureka/flashsort/internal/protocol"
)

// ErrIncompleteTransfer is returned by Extract before every chunk has arrived.
var ErrIncompleteTransfer = errors.New("transfer incomplete")

// ErrInvalidChunk indicates a chunk that cannot belong to any transfer: empty
// transfer ID, non-positive total count, or position out of range.
var ErrInvalidChunk = errors.New("invalid chunk")

// ErrTotalCountConflict indicates a chunk whose total count disagrees with the
// total recorded for its transfer. The concrete error is a
// *TotalCountConflictError.
var ErrTotalCountConflict = errors.New("total count conflict")

// TotalCountConflictError reports both totals of a conflicting chunk.
type TotalCountConflictError struct {
	TransferID string
	Recorded   int
	Declared   int
}

func (e *TotalCountConflictError) Error() string {
	return fmt.Sprintf("%s: transfer %s has %d chunks, packet declares %d",
		ErrTotalCountConflict, e.TransferID, e.Recorded, e.Declared)
}

// Is makes errors.Is(err, ErrTotalCountConflict) hold.
func (e *TotalCountConflictError) Is(target error) bool {
	return target == ErrTotalCountConflict
}

// Progress is the number of distinct chunks received out of the total.
type Progress struct {
	Received int
	Total    int
}

// Complete reports whether every chunk has been received.
func (p Progress) Complete() bool {
	return p.Total > 0 && p.Received == p.Total
}

// Fraction returns Received/Total in [0, 1].
func (p Progress) Fraction() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Received) / float64(p.Total)
}

// TimeProvider abstracts the clock for deterministic expiry tests.
type TimeProvider interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// transferState is the accumulation state of one transfer. received always
// equals len(chunks).
type transferState struct {
	chunks     map[int][]byte
	total      int
	received   int
	lastAccept time.Time
}

func (s *transferState) progress() Progress {
	return Progress{Received: s.received, Total: s.total}
}

// Reassembler owns the per-transfer state of a receiver. All methods are safe
// for concurrent use; a single mutex guards the whole map.
type Reassembler struct {
	mu        sync.Mutex
	transfers map[string]*transferState
	clock     TimeProvider
}

// New creates an empty Reassembler.
func New() *Reassembler {
	return &Reassembler{
		transfers: make(map[string]*transferState),
		clock:     systemClock{},
	}
}

// SetTimeProvider replaces the clock used to stamp accepted chunks.
func (r *Reassembler) SetTimeProvider(tp TimeProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock = tp
}

// Accept records c and returns the progress of its transfer. added is true
// only when c carried a position not seen before; a repeated position leaves
// the stored payload untouched.
//
// On error no state is created or modified.
func (r *Reassembler) Accept(c protocol.Chunk) (p Progress, added bool, err error) {
	if c.TransferID == "" {
		return Progress{}, false, fmt.Errorf("%w: empty transfer id", ErrInvalidChunk)
	}
	if c.TotalCount < 1 {
		return Progress{}, false, fmt.Errorf("%w: total count %d", ErrInvalidChunk, c.TotalCount)
	}
	if c.Position < 0 || c.Position >= c.TotalCount {
		return Progress{}, false, fmt.Errorf("%w: position %d out of range [0, %d)", ErrInvalidChunk, c.Position, c.TotalCount)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.transfers[c.TransferID]
	if !ok {
		state = &transferState{
			chunks: make(map[int][]byte, c.TotalCount),
			total:  c.TotalCount,
		}
		r.transfers[c.TransferID] = state
	} else if state.total != c.TotalCount {
		return state.progress(), false, &TotalCountConflictError{
			TransferID: c.TransferID,
			Recorded:   state.total,
			Declared:   c.TotalCount,
		}
	}

	if _, seen := state.chunks[c.Position]; !seen {
		state.chunks[c.Position] = append([]byte(nil), c.Payload...)
		state.received++
		state.lastAccept = r.clock.Now()
		added = true
	}

	return state.progress(), added, nil
}

// IsComplete reports whether transferID exists and has all of its chunks.
func (r *Reassembler) IsComplete(transferID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.transfers[transferID]
	return ok && state.received == state.total
}

// Progress returns the progress of transferID and whether it is known.
func (r *Reassembler) Progress(transferID string) (Progress, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.transfers[transferID]
	if !ok {
		return Progress{}, false
	}
	return state.progress(), true
}

// Missing returns the positions of transferID not yet received, ascending.
func (r *Reassembler) Missing(transferID string) []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.transfers[transferID]
	if !ok {
		return nil
	}

	missing := make([]int, 0, state.total-state.received)
	for i := 0; i < state.total; i++ {
		if _, seen := state.chunks[i]; !seen {
			missing = append(missing, i)
		}
	}
	return missing
}

// Extract concatenates the payloads of a complete transfer in position order
// and discards its state. Only one caller can extract a given transfer.
func (r *Reassembler) Extract(transferID string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.transfers[transferID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown transfer %s", ErrIncompleteTransfer, transferID)
	}
	if state.received != state.total {
		return nil, fmt.Errorf("%w: %s has %d of %d chunks", ErrIncompleteTransfer, transferID, state.received, state.total)
	}

	size := 0
	for _, payload := range state.chunks {
		size += len(payload)
	}

	out := make([]byte, 0, size)
	for i := 0; i < state.total; i++ {
		out = append(out, state.chunks[i]...)
	}

	delete(r.transfers, transferID)
	return out, nil
}

// Discard drops all state of transferID. It reports whether anything was held.
func (r *Reassembler) Discard(transferID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.transfers[transferID]
	delete(r.transfers, transferID)
	return ok
}

// Reset drops every transfer.
func (r *Reassembler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.transfers)
}

// Transfers returns the identifiers of all held transfers, sorted.
func (r *Reassembler) Transfers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.transfers))
	for id := range r.transfers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// PendingCount returns the number of held transfers.
func (r *Reassembler) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.transfers)
}

// Expire drops transfers that have not accepted a new chunk for longer than
// maxIdle and returns their identifiers, sorted. Complete transfers are kept
// until extracted.
func (r *Reassembler) Expire(maxIdle time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	var expired []string
	for id, state := range r.transfers {
		if state.received == state.total {
			continue
		}
		if now.Sub(state.lastAccept) > maxIdle {
			delete(r.transfers, id)
			expired = append(expired, id)
		}
	}
	slices.Sort(expired)
	return expired
}
