// Package app contains the top-level send and receive loops that connect the
// transfer sessions to their outside world.
package app

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/1ureka/flashsort/internal/session"
	"github.com/1ureka/flashsort/internal/util"
)

// Sink receives every packet the sender emits, e.g. a renderer bridge or the
// WebRTC link.
type Sink func(wire string)

// NewPacer returns a limiter allowing fps ticks per second. A non-positive
// fps means unlimited.
func NewPacer(fps int) *rate.Limiter {
	if fps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(fps), 1)
}

// RunSender emits one packet per pacer tick to every sink until the sender is
// exhausted (nil) or ctx is cancelled (ctx.Err()). onTick, if set, is called
// after each packet.
func RunSender(ctx context.Context, tx *session.Sender, pacer *rate.Limiter, sinks []Sink, onTick func(session.SenderProgress)) error {
	util.LogInfo("[%s] sending %d packets", tx.TransferID(), tx.Progress().Total)

	for {
		if err := pacer.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		wire, ok := tx.Tick()
		if !ok {
			util.LogSuccess("[%s] all packets displayed", tx.TransferID())
			return nil
		}

		for _, sink := range sinks {
			sink(wire)
		}
		util.Stats.AddShown()

		if onTick != nil {
			onTick(tx.Progress())
		}
	}
}
