// Package chunker splits a file into fixed-size chunks and exposes them as a
// lazy, restartable sequence of encoded packets.
package chunker

import (
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"

	"github.com/1ureka/flashsort/internal/protocol"
	"github.com/1ureka/flashsort/internal/util"
)

// ErrInvalidChunkSize indicates a chunk size that is not positive.
var ErrInvalidChunkSize = errors.New("chunk size must be positive")

// IDMode selects how a transfer identifier is derived when none is supplied.
type IDMode string

const (
	IDFromPath    IDMode = "path"    // hash of the file path
	IDFromContent IDMode = "content" // hash of the file bytes
)

// TransferIDFromName derives a transfer identifier from a stable name such as
// a file path. Two different files presented under the same name share an ID.
func TransferIDFromName(name string) string {
	return util.ShortHash([]byte(name))
}

// TransferIDFromContent derives a transfer identifier from the file bytes.
func TransferIDFromContent(data []byte) string {
	return util.ShortHash(data)
}

// Sequence is the ordered list of chunks of one file. It is immutable and
// safe for concurrent use; packets are encoded on demand.
type Sequence struct {
	transferID string
	data       []byte
	chunkSize  int
	total      int
}

// Split partitions data into consecutive spans of chunkSize bytes; the last
// span may be shorter. An empty input yields a single empty chunk so that the
// transfer still completes on the receiving side.
//
// data is copied once; later changes to the caller's slice are not observed.
func Split(data []byte, chunkSize int, transferID string) (*Sequence, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChunkSize, chunkSize)
	}
	if err := protocol.ValidateTransferID(transferID); err != nil {
		return nil, err
	}

	total := (len(data) + chunkSize - 1) / chunkSize
	if total == 0 {
		total = 1
	}

	return &Sequence{
		transferID: transferID,
		data:       append([]byte(nil), data...),
		chunkSize:  chunkSize,
		total:      total,
	}, nil
}

// SplitFile reads the file at path once and splits it. When transferID is
// empty it is derived according to mode.
func SplitFile(path string, chunkSize int, transferID string, mode IDMode) (*Sequence, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if transferID == "" {
		switch mode {
		case IDFromContent:
			transferID = TransferIDFromContent(data)
		case IDFromPath, "":
			transferID = TransferIDFromName(filepath.Clean(path))
		default:
			return nil, fmt.Errorf("unknown id mode %q", mode)
		}
	}

	return Split(data, chunkSize, transferID)
}

// TransferID returns the identifier carried by every chunk.
func (s *Sequence) TransferID() string { return s.transferID }

// TotalCount returns the number of chunks.
func (s *Sequence) TotalCount() int { return s.total }

// Len is an alias of TotalCount.
func (s *Sequence) Len() int { return s.total }

// Size returns the number of source bytes.
func (s *Sequence) Size() int { return len(s.data) }

// Chunk returns the chunk at position i. It panics if i is out of range.
func (s *Sequence) Chunk(i int) protocol.Chunk {
	if i < 0 || i >= s.total {
		panic(fmt.Sprintf("chunker: position %d out of range [0, %d)", i, s.total))
	}

	start := i * s.chunkSize
	end := min(start+s.chunkSize, len(s.data))

	return protocol.Chunk{
		TransferID: s.transferID,
		Position:   i,
		TotalCount: s.total,
		Payload:    append([]byte(nil), s.data[start:end]...),
	}
}

// Packet returns the encoded wire string of the chunk at position i.
func (s *Sequence) Packet(i int) string {
	return protocol.Encode(s.Chunk(i))
}

// Chunks yields every chunk in position order.
func (s *Sequence) Chunks() iter.Seq[protocol.Chunk] {
	return func(yield func(protocol.Chunk) bool) {
		for i := 0; i < s.total; i++ {
			if !yield(s.Chunk(i)) {
				return
			}
		}
	}
}

// Packets yields (position, wire string) pairs in order. Ranging over it again
// restarts from position 0.
func (s *Sequence) Packets() iter.Seq2[int, string] {
	return func(yield func(int, string) bool) {
		for i := 0; i < s.total; i++ {
			if !yield(i, s.Packet(i)) {
				return
			}
		}
	}
}
