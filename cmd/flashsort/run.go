package main

import (
	"context"
	"fmt"
	"net"
	"net/url"

	"github.com/pterm/pterm"

	"github.com/1ureka/flashsort/internal/app"
	"github.com/1ureka/flashsort/internal/bridge"
	"github.com/1ureka/flashsort/internal/chunker"
	"github.com/1ureka/flashsort/internal/config"
	"github.com/1ureka/flashsort/internal/reassembly"
	"github.com/1ureka/flashsort/internal/session"
	"github.com/1ureka/flashsort/internal/signaling"
	"github.com/1ureka/flashsort/internal/transport"
	"github.com/1ureka/flashsort/internal/util"
)

// linkBufferSize is the number of link packets queued for the receive loop.
const linkBufferSize = 64

// runSend splits the file and paces its packets out to the bridge and link.
func runSend(ctx context.Context, cfg config.Config) error {
	seq, err := chunker.SplitFile(cfg.FilePath, cfg.ChunkSize, cfg.TransferID, cfg.IDMode)
	if err != nil {
		return err
	}

	util.LogInfo("[%s] %s in %d packets of up to %d bytes",
		seq.TransferID(), util.FormatBytes(float64(seq.Size())), seq.Len(), cfg.ChunkSize)

	var sinks []app.Sink

	if cfg.BridgeAddr != "" {
		srv := bridge.NewServer(cfg.BridgePIN)
		addr, err := srv.Start(cfg.BridgeAddr)
		if err != nil {
			return err
		}
		defer srv.Close()

		printBridge(addr, cfg.BridgePIN, "display")
		sinks = append(sinks, func(wire string) { srv.Publish(wire) })
	}

	if cfg.LinkListen != "" {
		host, _, _ := net.SplitHostPort(cfg.LinkListen)
		ann := signaling.Announcement{TransferID: seq.TransferID(), TotalCount: seq.Len(), Size: seq.Size()}
		tr, err := signaling.EstablishAsSender(ctx, cfg.LinkListen, ann, linkOptions(host)...)
		if err != nil {
			return fmt.Errorf("failed to establish link: %w", err)
		}
		defer tr.Close()

		sinks = append(sinks, tr.Publish)
	}

	util.StartStatsReporter(ctx)

	bar, _ := pterm.DefaultProgressbar.
		WithTotal(seq.Len()).
		WithTitle(fmt.Sprintf("Sending %s", seq.TransferID())).
		Start()
	defer bar.Stop()

	tx := session.NewSender(seq, cfg.Loop)
	return app.RunSender(ctx, tx, app.NewPacer(cfg.FPS), sinks, func(p session.SenderProgress) {
		bar.Current = p.Position
		bar.UpdateTitle(fmt.Sprintf("Sending %s (pass %d)", seq.TransferID(), p.Passes+1))
	})
}

// runReceive gathers frames from the bridge and link and writes every
// completed transfer to the output directory.
func runReceive(ctx context.Context, cfg config.Config) error {
	var sources []<-chan []string

	if cfg.BridgeAddr != "" {
		srv := bridge.NewServer(cfg.BridgePIN)
		addr, err := srv.Start(cfg.BridgeAddr)
		if err != nil {
			return err
		}
		defer srv.Close()

		printBridge(addr, cfg.BridgePIN, "scan")
		sources = append(sources, srv.Frames())
	}

	if cfg.LinkURL != "" {
		var host string
		if u, err := url.Parse(cfg.LinkURL); err == nil {
			host = u.Hostname()
		}

		tr, ann, err := signaling.EstablishAsReceiver(ctx, cfg.LinkURL, linkOptions(host)...)
		if err != nil {
			return fmt.Errorf("failed to establish link: %w", err)
		}
		defer tr.Close()
		util.LogInfo("[%s] sender announced %s in %d packets",
			ann.TransferID, util.FormatBytes(float64(ann.Size)), ann.TotalCount)

		push, linkFrames := app.LossySource(linkBufferSize)
		tr.OnPacket(push)
		sources = append(sources, linkFrames)
	}

	util.StartStatsReporter(ctx)

	rx := session.NewReceiver(reassembly.New())
	progress := &receiveProgress{}
	defer progress.stop()

	return app.RunReceiver(ctx, rx, app.Merge(ctx, sources...), app.ReceiveOptions{
		Save:         app.WriteToDir(cfg.OutputDir),
		Once:         cfg.Once,
		StaleTimeout: cfg.StaleTimeout,
		OnFrame:      progress.update,
	})
}

// receiveProgress keeps one progress bar per transfer being scanned.
type receiveProgress struct {
	bar        *pterm.ProgressbarPrinter
	transferID string
}

func (r *receiveProgress) update(res session.FrameResult) {
	if res.TransferID == "" {
		return
	}

	if r.bar == nil || r.transferID != res.TransferID {
		r.stop()
		r.transferID = res.TransferID
		r.bar, _ = pterm.DefaultProgressbar.
			WithTotal(res.Progress.Total).
			WithTitle(fmt.Sprintf("Receiving %s", res.TransferID)).
			Start()
	}

	if delta := res.Progress.Received - r.bar.Current; delta > 0 {
		r.bar.Add(delta)
	}
}

func (r *receiveProgress) stop() {
	if r.bar != nil {
		r.bar.Stop()
		r.bar = nil
	}
}

// linkOptions keeps ICE on the local machine when the link is set up over
// loopback, since both peers then run on the same host.
func linkOptions(host string) []transport.Option {
	ip := net.ParseIP(host)
	if host == "localhost" || (ip != nil && ip.IsLoopback()) {
		return []transport.Option{transport.WithoutSTUN(), transport.WithLoopback()}
	}
	return nil
}

// printBridge shows where external renderers or scanners should connect.
func printBridge(addr, pin, endpoint string) {
	target := fmt.Sprintf("ws://%s/%s", addr, endpoint)
	if pin != "" {
		target += "?pin=" + pin
	}
	pterm.DefaultBox.WithTitle("Bridge").Println(target)
	pterm.Println()
}
