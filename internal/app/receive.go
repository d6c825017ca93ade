package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/1ureka/flashsort/internal/session"
	"github.com/1ureka/flashsort/internal/util"
)

// Saver persists a completed transfer and returns where it went.
type Saver func(transferID string, data []byte) (string, error)

// ReceiveOptions tunes RunReceiver.
type ReceiveOptions struct {
	Save         Saver                     // required
	Once         bool                      // return after the first saved file
	StaleTimeout time.Duration             // expire idle partial transfers; 0 disables
	OnFrame      func(session.FrameResult) // called after every observed frame
}

// RunReceiver observes frames until ctx is cancelled, frames is closed or,
// with Once, the first file has been saved. Completed transfers are extracted,
// saved, and the session is reset for the next file.
func RunReceiver(ctx context.Context, rx *session.Receiver, frames <-chan []string, opts ReceiveOptions) error {
	var staleTick <-chan time.Time
	if opts.StaleTimeout > 0 {
		ticker := time.NewTicker(opts.StaleTimeout / 2)
		defer ticker.Stop()
		staleTick = ticker.C
	}

	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				return nil
			}

			res := rx.Observe(frame...)
			if opts.OnFrame != nil {
				opts.OnFrame(res)
			}

			if !rx.IsComplete() {
				continue
			}

			id, data, err := rx.Extract()
			if err != nil {
				util.LogWarning("[%s] extract failed: %v", id, err)
				continue
			}

			path, err := opts.Save(id, data)
			if err != nil {
				return fmt.Errorf("failed to save transfer %s: %w", id, err)
			}
			util.LogSuccess("[%s] received %s → %s (%d unique scans)",
				id, util.FormatBytes(float64(len(data))), path, rx.UniqueScans())

			rx.Reset()
			if opts.Once {
				return nil
			}

		case <-staleTick:
			for _, id := range rx.Expire(opts.StaleTimeout) {
				util.LogWarning("[%s] dropped idle partial transfer", id)
			}

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// WriteToDir returns a Saver writing each transfer to dir/<transfer_id>.bin.
// The identifier comes off the wire, so it is reduced to a safe file name.
func WriteToDir(dir string) Saver {
	return func(transferID string, data []byte) (string, error) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}

		path := filepath.Join(dir, SafeFileName(transferID)+".bin")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return "", err
		}
		return path, nil
	}
}

// SafeFileName maps an arbitrary transfer ID onto [A-Za-z0-9_-] so it cannot
// escape the output directory. IDs that needed rewriting get a hash of the
// original appended, so "a/b" and "a_b" land in different files.
func SafeFileName(id string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, id)

	if name == "" {
		name = "_"
	}
	if name != id {
		name += "-" + util.ShortHash([]byte(id))
	}
	return name
}

// LossySource turns single packets into one-candidate frames on a channel
// holding up to size frames. push never blocks: when the channel is full the
// packet is dropped, the same as a frame the camera missed.
func LossySource(size int) (push Sink, frames <-chan []string) {
	ch := make(chan []string, size)
	push = func(wire string) {
		select {
		case ch <- []string{wire}:
		default:
			util.LogDebug("receive queue full, packet dropped")
		}
	}
	return push, ch
}

// Merge fans several frame sources into one channel, closed once every source
// is closed or ctx is cancelled.
func Merge(ctx context.Context, sources ...<-chan []string) <-chan []string {
	out := make(chan []string)
	var wg sync.WaitGroup

	for _, src := range sources {
		wg.Add(1)
		go func(src <-chan []string) {
			defer wg.Done()
			for {
				select {
				case frame, ok := <-src:
					if !ok {
						return
					}
					select {
					case out <- frame:
					case <-ctx.Done():
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}(src)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}
