package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide channel counter.
var Stats = &stats{}

type stats struct {
	Shown      atomic.Int64 // packets handed to display sinks
	Candidates atomic.Int64 // candidate strings observed by the receiver
	Accepted   atomic.Int64 // candidates that added a new chunk
	Duplicates atomic.Int64 // valid candidates for an already-held position
	Malformed  atomic.Int64 // candidates that failed to parse
	Corrupt    atomic.Int64 // candidates with a checksum mismatch
	Rejected   atomic.Int64 // valid packets the reassembler refused
}

func (s *stats) AddShown()     { s.Shown.Add(1) }
func (s *stats) AddCandidate() { s.Candidates.Add(1) }
func (s *stats) AddAccepted()  { s.Accepted.Add(1) }
func (s *stats) AddDuplicate() { s.Duplicates.Add(1) }
func (s *stats) AddMalformed() { s.Malformed.Add(1) }
func (s *stats) AddCorrupt()   { s.Corrupt.Add(1) }
func (s *stats) AddRejected()  { s.Rejected.Add(1) }

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Shown, Candidates, Accepted, Duplicates, Malformed, Corrupt, Rejected int64
}

// Snapshot loads every counter.
func (s *stats) Snapshot() Snapshot {
	return Snapshot{
		Shown:      s.Shown.Load(),
		Candidates: s.Candidates.Load(),
		Accepted:   s.Accepted.Load(),
		Duplicates: s.Duplicates.Load(),
		Malformed:  s.Malformed.Load(),
		Corrupt:    s.Corrupt.Load(),
		Rejected:   s.Rejected.Load(),
	}
}

// Sub returns the per-counter difference s - prev.
func (s Snapshot) Sub(prev Snapshot) Snapshot {
	return Snapshot{
		Shown:      s.Shown - prev.Shown,
		Candidates: s.Candidates - prev.Candidates,
		Accepted:   s.Accepted - prev.Accepted,
		Duplicates: s.Duplicates - prev.Duplicates,
		Malformed:  s.Malformed - prev.Malformed,
		Corrupt:    s.Corrupt - prev.Corrupt,
		Rejected:   s.Rejected - prev.Rejected,
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

const reportInterval = 10 * time.Second

// StartStatsReporter launches a goroutine that logs channel statistics
// every 10 seconds when anything moved. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(reportInterval)
		defer ticker.Stop()

		prev := Stats.Snapshot()
		for {
			select {
			case <-ticker.C:
				cur := Stats.Snapshot()
				delta := cur.Sub(prev)
				if delta != (Snapshot{}) {
					pterm.DefaultLogger.Info(formatStats(delta, reportInterval))
				}
				prev = cur

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// FormatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func FormatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats renders a delta over the given interval for the logger.
func formatStats(d Snapshot, interval time.Duration) string {
	secs := interval.Seconds()
	if d.Shown > 0 {
		return fmt.Sprintf("Shown: %5.1f pkt/s", float64(d.Shown)/secs)
	}

	return fmt.Sprintf("Scan: %5.1f/s | New: %3d | Dup: %3d | Bad: %3d | CRC: %3d | Rej: %3d",
		float64(d.Candidates)/secs,
		d.Accepted,
		d.Duplicates,
		d.Malformed,
		d.Corrupt,
		d.Rejected,
	)
}
