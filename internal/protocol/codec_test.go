package protocol_test

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/flashsort/internal/protocol"
)

func TestEncodeDecodeHelloWorld(t *testing.T) {
	wire := protocol.Encode(protocol.Chunk{
		TransferID: "file1",
		Position:   0,
		TotalCount: 1,
		Payload:    []byte("Hello World"),
	})

	chunk, err := protocol.Decode(wire)
	require.NoError(t, err)
	assert.Equal(t, []byte("Hello World"), chunk.Payload)
	assert.Equal(t, "file1", chunk.TransferID)
	assert.Equal(t, 0, chunk.Position)
	assert.Equal(t, 1, chunk.TotalCount)
}

func TestEncodeWireLayout(t *testing.T) {
	payload := []byte("Hello World")
	wire := protocol.Encode(protocol.Chunk{TransferID: "file1", Position: 3, TotalCount: 7, Payload: payload})

	want := fmt.Sprintf("file1:3:7:%d:%s", protocol.Checksum(payload), base64.StdEncoding.EncodeToString(payload))
	assert.Equal(t, want, wire)
	assert.Equal(t, protocol.FieldCount, len(strings.Split(wire, protocol.Delimiter)))
}

// TestEncodeDecodeRoundTrip verifies that Decode inverts Encode for assorted
// payload sizes and byte values.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	allBytes := make([]byte, 256)
	for i := range allBytes {
		allBytes[i] = byte(i)
	}

	testCases := []struct {
		name  string
		chunk protocol.Chunk
	}{
		{"empty payload", protocol.Chunk{TransferID: "a1b2c3d4", Position: 0, TotalCount: 1, Payload: []byte{}}},
		{"single byte", protocol.Chunk{TransferID: "x", Position: 4, TotalCount: 5, Payload: []byte{0x00}}},
		{"every byte value", protocol.Chunk{TransferID: "bytes", Position: 9, TotalCount: 10, Payload: allBytes}},
		{"colons in payload", protocol.Chunk{TransferID: "c", Position: 1, TotalCount: 2, Payload: []byte("::::")}},
		{"large payload", protocol.Chunk{TransferID: "big", Position: 1 << 20, TotalCount: 1<<20 + 1, Payload: make([]byte, 16*1024)}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			decoded, err := protocol.Decode(protocol.Encode(tc.chunk))
			require.NoError(t, err)

			assert.Equal(t, tc.chunk.TransferID, decoded.TransferID)
			assert.Equal(t, tc.chunk.Position, decoded.Position)
			assert.Equal(t, tc.chunk.TotalCount, decoded.TotalCount)
			assert.Equal(t, len(tc.chunk.Payload), len(decoded.Payload))
			assert.Equal(t, string(tc.chunk.Payload), string(decoded.Payload))
		})
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	c := protocol.Chunk{TransferID: "det", Position: 2, TotalCount: 3, Payload: []byte("same")}
	assert.Equal(t, protocol.Encode(c), protocol.Encode(c))
}

// TestDecodePayloadBitFlip flips each bit of the payload after the checksum
// was computed; every variant must be reported as an integrity failure.
func TestDecodePayloadBitFlip(t *testing.T) {
	payload := []byte("optical")
	crc := protocol.Checksum(payload)

	for i := 0; i < len(payload)*8; i++ {
		corrupted := append([]byte(nil), payload...)
		corrupted[i/8] ^= 1 << (i % 8)

		wire := fmt.Sprintf("f:0:1:%d:%s", crc, base64.StdEncoding.EncodeToString(corrupted))
		_, err := protocol.Decode(wire)

		require.Error(t, err, "bit %d", i)
		assert.True(t, errors.Is(err, protocol.ErrIntegrityFailure), "bit %d: %v", i, err)
		assert.False(t, errors.Is(err, protocol.ErrMalformedPacket), "bit %d", i)
	}
}

// TestDecodeChecksumBitFlip flips each bit of the transported checksum value.
func TestDecodeChecksumBitFlip(t *testing.T) {
	payload := []byte("checksum field")
	crc := protocol.Checksum(payload)
	encoded := base64.StdEncoding.EncodeToString(payload)

	for i := 0; i < 32; i++ {
		claimed := crc ^ (1 << i)
		_, err := protocol.Decode(fmt.Sprintf("f:0:1:%d:%s", claimed, encoded))

		var integrityErr *protocol.IntegrityError
		require.True(t, errors.As(err, &integrityErr), "bit %d: %v", i, err)
		assert.Equal(t, claimed, integrityErr.Claimed)
		assert.Equal(t, crc, integrityErr.Computed)
	}
}

func TestDecodeMalformed(t *testing.T) {
	good := protocol.Encode(protocol.Chunk{TransferID: "file1", Position: 0, TotalCount: 1, Payload: []byte("Hello World")})
	fields := strings.Split(good, protocol.Delimiter)

	testCases := []struct {
		name string
		wire string
	}{
		{"empty", ""},
		{"one field", "file1"},
		{"four fields", strings.Join(fields[:4], protocol.Delimiter)},
		{"six fields", good + ":extra"},
		{"non-integer position", "file1:zero:1:" + fields[3] + ":" + fields[4]},
		{"negative position", "file1:-1:1:" + fields[3] + ":" + fields[4]},
		{"signed total", "file1:0:+1:" + fields[3] + ":" + fields[4]},
		{"empty total", "file1:0::" + fields[3] + ":" + fields[4]},
		{"non-integer checksum", "file1:0:1:abc:" + fields[4]},
		{"checksum overflow", "file1:0:1:4294967296:" + fields[4]},
		{"position overflow", "file1:99999999999999999999:1:" + fields[3] + ":" + fields[4]},
		{"payload not base64", "file1:0:1:" + fields[3] + ":!!not base64!!"},
		{"payload bad padding", "file1:0:1:" + fields[3] + ":SGVsbG8"},
		{"only delimiters", "::::"},
		{"binary noise", "\x00\xff:\x01:\x02:\x03:\x04"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := protocol.Decode(tc.wire)
			require.Error(t, err)
			assert.True(t, errors.Is(err, protocol.ErrMalformedPacket), "got %v", err)
			assert.False(t, errors.Is(err, protocol.ErrIntegrityFailure))
		})
	}
}

// TestDecodeTruncation cuts a valid wire string at every length; no prefix may
// decode successfully unless it is the full string.
func TestDecodeTruncation(t *testing.T) {
	good := protocol.Encode(protocol.Chunk{TransferID: "trunc", Position: 1, TotalCount: 2, Payload: []byte("truncate me please")})

	for n := 0; n < len(good); n++ {
		_, err := protocol.Decode(good[:n])
		assert.Error(t, err, "prefix length %d", n)
	}
}

func TestDecodeDoesNotRangeCheck(t *testing.T) {
	payload := []byte("x")
	wire := "id:9:3:" + strconv.FormatUint(uint64(protocol.Checksum(payload)), 10) + ":" + base64.StdEncoding.EncodeToString(payload)

	chunk, err := protocol.Decode(wire)
	require.NoError(t, err)
	assert.Equal(t, 9, chunk.Position)
	assert.Equal(t, 3, chunk.TotalCount)
}

func TestEncodeDecodeLargestCounts(t *testing.T) {
	in := protocol.Chunk{TransferID: "big", Position: math.MaxInt - 1, TotalCount: math.MaxInt, Payload: []byte("edge")}

	out, err := protocol.Decode(protocol.Encode(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	fields := strings.Split(protocol.Encode(in), protocol.Delimiter)
	fields[2] = strconv.FormatUint(uint64(math.MaxInt)+1, 10)
	_, err = protocol.Decode(strings.Join(fields, protocol.Delimiter))
	assert.ErrorIs(t, err, protocol.ErrMalformedPacket)
}

func TestValidateTransferID(t *testing.T) {
	assert.NoError(t, protocol.ValidateTransferID("a1b2c3d4"))
	assert.ErrorIs(t, protocol.ValidateTransferID(""), protocol.ErrInvalidTransferID)
	assert.ErrorIs(t, protocol.ValidateTransferID("a:b"), protocol.ErrInvalidTransferID)
}

func TestChunkKey(t *testing.T) {
	assert.Equal(t, "file1:4", protocol.Chunk{TransferID: "file1", Position: 4}.Key())
}
