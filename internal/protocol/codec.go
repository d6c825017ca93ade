package protocol

import (
	"encoding/base64"
	"fmt"
	"hash/crc32"
	"strconv"
	"strings"
)

// Checksum returns the CRC-32 (IEEE) of payload.
func Checksum(payload []byte) uint32 {
	return crc32.ChecksumIEEE(payload)
}

// Encode serializes a Chunk into its wire string:
//
//	transfer_id:position:total_count:checksum:payload_b64
//
// The checksum covers the raw payload, not its base64 form.
func Encode(c Chunk) string {
	var b strings.Builder
	b.Grow(len(c.TransferID) + 32 + base64.StdEncoding.EncodedLen(len(c.Payload)))

	b.WriteString(c.TransferID)
	b.WriteString(Delimiter)
	b.WriteString(strconv.Itoa(c.Position))
	b.WriteString(Delimiter)
	b.WriteString(strconv.Itoa(c.TotalCount))
	b.WriteString(Delimiter)
	b.WriteString(strconv.FormatUint(uint64(Checksum(c.Payload)), 10))
	b.WriteString(Delimiter)
	b.WriteString(base64.StdEncoding.EncodeToString(c.Payload))

	return b.String()
}

// Decode parses a wire string back into a Chunk.
//
// Every input yields exactly one of: a valid Chunk, an error matching
// ErrMalformedPacket, or an *IntegrityError. Position and total count are not
// range-checked here.
func Decode(s string) (Chunk, error) {
	fields := strings.Split(s, Delimiter)
	if len(fields) != FieldCount {
		return Chunk{}, fmt.Errorf("%w: got %d fields (need %d)", ErrMalformedPacket, len(fields), FieldCount)
	}

	position, err := parseCount(fields[1])
	if err != nil {
		return Chunk{}, fmt.Errorf("%w: position: %v", ErrMalformedPacket, err)
	}

	total, err := parseCount(fields[2])
	if err != nil {
		return Chunk{}, fmt.Errorf("%w: total count: %v", ErrMalformedPacket, err)
	}

	claimed, err := parseDigits(fields[3], 32)
	if err != nil {
		return Chunk{}, fmt.Errorf("%w: checksum: %v", ErrMalformedPacket, err)
	}

	payload, err := base64.StdEncoding.DecodeString(fields[4])
	if err != nil {
		return Chunk{}, fmt.Errorf("%w: payload: %v", ErrMalformedPacket, err)
	}

	if computed := Checksum(payload); computed != uint32(claimed) {
		return Chunk{}, &IntegrityError{Claimed: uint32(claimed), Computed: computed}
	}

	return Chunk{
		TransferID: fields[0],
		Position:   position,
		TotalCount: total,
		Payload:    payload,
	}, nil
}

// parseCount parses a non-negative decimal that fits in an int, so every
// position or count Encode emits decodes back on the same platform.
func parseCount(s string) (int, error) {
	v, err := parseDigits(s, strconv.IntSize-1)
	if err != nil {
		return 0, err
	}
	return int(v), nil
}

// parseDigits parses an unsigned base-10 field. Signs are rejected.
func parseDigits(s string, bitSize int) (uint64, error) {
	return strconv.ParseUint(s, 10, bitSize)
}
