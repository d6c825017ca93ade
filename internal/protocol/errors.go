package protocol

import (
	"errors"
	"fmt"
)

// ErrMalformedPacket is returned by Decode for input that does not have the
// shape of a wire string: wrong field count, non-integer numeric fields or an
// undecodable payload.
var ErrMalformedPacket = errors.New("malformed packet")

// ErrIntegrityFailure is returned by Decode when the payload checksum does not
// match the claimed one. The concrete error is an *IntegrityError.
var ErrIntegrityFailure = errors.New("integrity failure")

// ErrInvalidTransferID indicates a transfer identifier that cannot be encoded.
var ErrInvalidTransferID = errors.New("invalid transfer id")

// IntegrityError carries both checksums of a corrupted packet.
type IntegrityError struct {
	Claimed  uint32
	Computed uint32
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%s: claimed crc32 %d, computed %d", ErrIntegrityFailure, e.Claimed, e.Computed)
}

// Is makes errors.Is(err, ErrIntegrityFailure) hold for *IntegrityError.
func (e *IntegrityError) Is(target error) bool {
	return target == ErrIntegrityFailure
}
