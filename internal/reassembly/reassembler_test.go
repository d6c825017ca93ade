package reassembly_test

import (
	"bytes"
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/flashsort/internal/chunker"
	"github.com/1ureka/flashsort/internal/protocol"
	"github.com/1ureka/flashsort/internal/reassembly"
)

// mockClock is a manually advanced TimeProvider.
type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func split(t *testing.T, data []byte, chunkSize int, id string) []protocol.Chunk {
	t.Helper()
	seq, err := chunker.Split(data, chunkSize, id)
	require.NoError(t, err)

	var chunks []protocol.Chunk
	for c := range seq.Chunks() {
		chunks = append(chunks, c)
	}
	return chunks
}

func randomBytes(rng *rand.Rand, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(rng.UintN(256))
	}
	return b
}

// TestReverseOrderScenario splits 2000 bytes at 800 and accepts the three
// chunks back to front.
func TestReverseOrderScenario(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	data := randomBytes(rng, 2000)
	chunks := split(t, data, 800, "file1")
	require.Len(t, chunks, 3)
	assert.Equal(t, 800, len(chunks[0].Payload))
	assert.Equal(t, 800, len(chunks[1].Payload))
	assert.Equal(t, 400, len(chunks[2].Payload))

	r := reassembly.New()
	for i := len(chunks) - 1; i >= 0; i-- {
		_, added, err := r.Accept(chunks[i])
		require.NoError(t, err)
		assert.True(t, added)
	}

	require.True(t, r.IsComplete("file1"))
	out, err := r.Extract("file1")
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestAcceptIdempotent(t *testing.T) {
	chunks := split(t, []byte("abcdefghij"), 3, "idem")

	once := reassembly.New()
	p1, _, err := once.Accept(chunks[1])
	require.NoError(t, err)

	twice := reassembly.New()
	_, added, err := twice.Accept(chunks[1])
	require.NoError(t, err)
	assert.True(t, added)

	p2, added, err := twice.Accept(chunks[1])
	require.NoError(t, err)
	assert.False(t, added)

	assert.Equal(t, p1, p2)
	assert.Equal(t, reassembly.Progress{Received: 1, Total: 4}, p2)
}

func TestDuplicateDoesNotOverwrite(t *testing.T) {
	r := reassembly.New()
	first := protocol.Chunk{TransferID: "dup", Position: 0, TotalCount: 1, Payload: []byte("first")}
	second := protocol.Chunk{TransferID: "dup", Position: 0, TotalCount: 1, Payload: []byte("second")}

	_, _, err := r.Accept(first)
	require.NoError(t, err)
	_, added, err := r.Accept(second)
	require.NoError(t, err)
	assert.False(t, added)

	out, err := r.Extract("dup")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), out)
}

func TestAcceptCopiesPayload(t *testing.T) {
	r := reassembly.New()
	payload := []byte("mutable")
	_, _, err := r.Accept(protocol.Chunk{TransferID: "cp", Position: 0, TotalCount: 1, Payload: payload})
	require.NoError(t, err)

	payload[0] = 'X'
	out, err := r.Extract("cp")
	require.NoError(t, err)
	assert.Equal(t, []byte("mutable"), out)
}

// TestOrderIndependence accepts shuffled chunks with random duplicates
// interleaved and expects the same output every time.
func TestOrderIndependence(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))

	for trial := 0; trial < 50; trial++ {
		size := rng.IntN(5000)
		chunkSize := 1 + rng.IntN(300)
		data := randomBytes(rng, size)
		chunks := split(t, data, chunkSize, "perm")

		stream := append([]protocol.Chunk(nil), chunks...)
		for i := rng.IntN(len(chunks) + 1); i > 0; i-- {
			stream = append(stream, chunks[rng.IntN(len(chunks))])
		}
		rng.Shuffle(len(stream), func(i, j int) { stream[i], stream[j] = stream[j], stream[i] })

		r := reassembly.New()
		for _, c := range stream {
			p, _, err := r.Accept(c)
			require.NoError(t, err)
			assert.LessOrEqual(t, p.Received, p.Total)
		}

		out, err := r.Extract("perm")
		require.NoError(t, err, "trial %d", trial)
		require.True(t, bytes.Equal(data, out), "trial %d: size=%d chunk=%d", trial, size, chunkSize)
	}
}

func TestCompletionBoundary(t *testing.T) {
	for n := 1; n <= 20; n++ {
		chunks := split(t, make([]byte, n*4), 4, "edge")
		require.Len(t, chunks, n)

		order := rand.New(rand.NewPCG(uint64(n), 0)).Perm(n)
		r := reassembly.New()
		for i, idx := range order[:n-1] {
			p, _, err := r.Accept(chunks[idx])
			require.NoError(t, err)
			assert.Equal(t, i+1, p.Received)
			assert.False(t, p.Complete())
		}
		assert.False(t, r.IsComplete("edge"), "n=%d after n-1", n)

		_, err := r.Extract("edge")
		assert.ErrorIs(t, err, reassembly.ErrIncompleteTransfer)

		p, _, err := r.Accept(chunks[order[n-1]])
		require.NoError(t, err)
		assert.True(t, p.Complete())
		assert.True(t, r.IsComplete("edge"), "n=%d after n", n)
	}
}

func TestIsCompleteUnknownTransfer(t *testing.T) {
	r := reassembly.New()
	assert.False(t, r.IsComplete("nope"))

	_, ok := r.Progress("nope")
	assert.False(t, ok)

	_, err := r.Extract("nope")
	assert.ErrorIs(t, err, reassembly.ErrIncompleteTransfer)
}

func TestExtractDiscardsState(t *testing.T) {
	r := reassembly.New()
	_, _, err := r.Accept(protocol.Chunk{TransferID: "once", Position: 0, TotalCount: 1, Payload: []byte("x")})
	require.NoError(t, err)

	_, err = r.Extract("once")
	require.NoError(t, err)

	assert.Equal(t, 0, r.PendingCount())
	assert.False(t, r.IsComplete("once"))
	_, err = r.Extract("once")
	assert.ErrorIs(t, err, reassembly.ErrIncompleteTransfer)
}

func TestTotalCountConflictRejected(t *testing.T) {
	r := reassembly.New()
	_, _, err := r.Accept(protocol.Chunk{TransferID: "c", Position: 0, TotalCount: 3, Payload: []byte("a")})
	require.NoError(t, err)

	p, added, err := r.Accept(protocol.Chunk{TransferID: "c", Position: 1, TotalCount: 5, Payload: []byte("b")})
	require.Error(t, err)
	assert.False(t, added)
	assert.True(t, errors.Is(err, reassembly.ErrTotalCountConflict))

	var conflict *reassembly.TotalCountConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, 3, conflict.Recorded)
	assert.Equal(t, 5, conflict.Declared)

	assert.Equal(t, reassembly.Progress{Received: 1, Total: 3}, p)
	assert.Equal(t, []int{1, 2}, r.Missing("c"))
}

func TestInvalidChunks(t *testing.T) {
	testCases := []struct {
		name  string
		chunk protocol.Chunk
	}{
		{"empty id", protocol.Chunk{TransferID: "", Position: 0, TotalCount: 1}},
		{"zero total", protocol.Chunk{TransferID: "x", Position: 0, TotalCount: 0}},
		{"position equals total", protocol.Chunk{TransferID: "x", Position: 2, TotalCount: 2}},
		{"negative position", protocol.Chunk{TransferID: "x", Position: -1, TotalCount: 2}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := reassembly.New()
			_, added, err := r.Accept(tc.chunk)
			assert.ErrorIs(t, err, reassembly.ErrInvalidChunk)
			assert.False(t, added)
			assert.Equal(t, 0, r.PendingCount())
		})
	}
}

func TestTransfersAreIsolated(t *testing.T) {
	a := split(t, []byte("aaaaaaaaaa"), 4, "A")
	b := split(t, []byte("bbbbbbbbbbbbbbbbbbbb"), 4, "B")

	r := reassembly.New()
	for _, c := range a {
		_, _, err := r.Accept(c)
		require.NoError(t, err)
	}
	_, _, err := r.Accept(b[0])
	require.NoError(t, err)

	// A conflicting chunk for B must not affect A.
	_, _, err = r.Accept(protocol.Chunk{TransferID: "B", Position: 0, TotalCount: 99})
	assert.ErrorIs(t, err, reassembly.ErrTotalCountConflict)

	assert.Equal(t, []string{"A", "B"}, r.Transfers())
	assert.True(t, r.IsComplete("A"))
	assert.False(t, r.IsComplete("B"))

	out, err := r.Extract("A")
	require.NoError(t, err)
	assert.Equal(t, []byte("aaaaaaaaaa"), out)

	p, ok := r.Progress("B")
	require.True(t, ok)
	assert.Equal(t, reassembly.Progress{Received: 1, Total: 5}, p)
}

func TestDiscardAndReset(t *testing.T) {
	r := reassembly.New()
	for _, id := range []string{"x", "y", "z"} {
		_, _, err := r.Accept(protocol.Chunk{TransferID: id, Position: 0, TotalCount: 2})
		require.NoError(t, err)
	}

	assert.True(t, r.Discard("y"))
	assert.False(t, r.Discard("y"))
	assert.Equal(t, []string{"x", "z"}, r.Transfers())

	r.Reset()
	assert.Equal(t, 0, r.PendingCount())
	assert.Empty(t, r.Transfers())
}

func TestExpire(t *testing.T) {
	clock := &mockClock{now: time.Unix(1000, 0)}
	r := reassembly.New()
	r.SetTimeProvider(clock)

	_, _, err := r.Accept(protocol.Chunk{TransferID: "stale", Position: 0, TotalCount: 2})
	require.NoError(t, err)
	_, _, err = r.Accept(protocol.Chunk{TransferID: "done", Position: 0, TotalCount: 1})
	require.NoError(t, err)

	clock.Advance(20 * time.Second)
	_, _, err = r.Accept(protocol.Chunk{TransferID: "fresh", Position: 0, TotalCount: 2})
	require.NoError(t, err)

	// A duplicate does not refresh the idle timer.
	_, _, err = r.Accept(protocol.Chunk{TransferID: "stale", Position: 0, TotalCount: 2})
	require.NoError(t, err)

	clock.Advance(15 * time.Second)
	assert.Equal(t, []string{"stale"}, r.Expire(30*time.Second))
	assert.Equal(t, []string{"done", "fresh"}, r.Transfers())

	clock.Advance(time.Minute)
	assert.Equal(t, []string{"fresh"}, r.Expire(30*time.Second))
	assert.True(t, r.IsComplete("done"))
}

// TestConcurrentAccept feeds the same chunk stream from many goroutines.
func TestConcurrentAccept(t *testing.T) {
	rng := rand.New(rand.NewPCG(9, 9))
	data := randomBytes(rng, 10_000)
	chunks := split(t, data, 97, "conc")

	r := reassembly.New()
	var added atomic.Int64
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(seed uint64) {
			defer wg.Done()
			order := rand.New(rand.NewPCG(seed, 1)).Perm(len(chunks))
			for _, idx := range order {
				_, ok, err := r.Accept(chunks[idx])
				assert.NoError(t, err)
				if ok {
					added.Add(1)
				}
			}
		}(uint64(g))
	}
	wg.Wait()

	assert.Equal(t, int64(len(chunks)), added.Load())
	out, err := r.Extract("conc")
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

// TestConcurrentExtractSingleWinner races Extract callers on a complete
// transfer; exactly one may succeed.
func TestConcurrentExtractSingleWinner(t *testing.T) {
	r := reassembly.New()
	for _, c := range split(t, bytes.Repeat([]byte("z"), 100), 10, "race") {
		_, _, err := r.Accept(c)
		require.NoError(t, err)
	}

	var wins atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Extract("race"); err == nil {
				wins.Add(1)
			} else {
				assert.ErrorIs(t, err, reassembly.ErrIncompleteTransfer)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins.Load())
}

func TestProgressHelpers(t *testing.T) {
	assert.Equal(t, 0.0, reassembly.Progress{}.Fraction())
	assert.False(t, reassembly.Progress{}.Complete())
	assert.Equal(t, 0.5, reassembly.Progress{Received: 1, Total: 2}.Fraction())
	assert.True(t, reassembly.Progress{Received: 2, Total: 2}.Complete())
}
