// Package protocol defines the chunk type and the text wire format used to
// carry file chunks over a one-way visual channel.
package protocol

import (
	"fmt"
	"strings"
)

// Delimiter separates the fields of a wire string. The payload field is
// base64-encoded and never contains it.
const Delimiter = ":"

// FieldCount is the number of delimited fields in a wire string:
// transfer_id, position, total_count, checksum, payload.
const FieldCount = 5

// Chunk is one positional slice of a source file.
type Chunk struct {
	TransferID string // Opaque token shared by every chunk of one transfer
	Position   int    // Zero-based index, 0 <= Position < TotalCount
	TotalCount int    // Number of chunks the file was split into
	Payload    []byte // Raw bytes of this slice
}

// Key returns "transfer_id:position", the identity of the packet carrying c.
func (c Chunk) Key() string {
	return fmt.Sprintf("%s%s%d", c.TransferID, Delimiter, c.Position)
}

// ValidateTransferID reports whether id can be carried in a wire string.
func ValidateTransferID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTransferID)
	}
	if strings.Contains(id, Delimiter) {
		return fmt.Errorf("%w: %q contains %q", ErrInvalidTransferID, id, Delimiter)
	}
	return nil
}
