// FlashSort CLI entry point.
//
// This tool moves a file across a one-way visual channel: the sender cycles
// through the file's packets at a fixed rate for an external renderer to show
// as optical codes, and the receiver reassembles whatever an external scanner
// manages to read, in any order, until the file is complete.
//
// It can be launched interactively (no flags) or non-interactively via CLI
// flags (-role, -file, -out, ...).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/pterm/pterm"

	"github.com/1ureka/flashsort/internal/chunker"
	"github.com/1ureka/flashsort/internal/config"
	"github.com/1ureka/flashsort/internal/util"
)

var version = "dev"

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg := config.Default()

	// CLI flags.
	role := flag.String("role", "", "Role: send or receive")
	flag.StringVar(&cfg.FilePath, "file", "", "File to send (send only)")
	flag.IntVar(&cfg.ChunkSize, "chunk", cfg.ChunkSize, fmt.Sprintf("Payload bytes per packet, 1~%d (send only)", config.MaxChunkSize))
	flag.IntVar(&cfg.FPS, "fps", cfg.FPS, fmt.Sprintf("Packets per second, %d~%d (send only)", config.MinFPS, config.MaxFPS))
	flag.StringVar(&cfg.TransferID, "id", "", "Explicit transfer ID (send only)")
	idFrom := flag.String("id-from", string(cfg.IDMode), "Derive the transfer ID from 'path' or 'content' (send only)")
	flag.BoolVar(&cfg.Loop, "loop", false, "Repeat the packet sequence until interrupted (send only)")
	flag.StringVar(&cfg.OutputDir, "out", cfg.OutputDir, "Directory for received files (receive only)")
	flag.BoolVar(&cfg.Once, "once", false, "Exit after the first received file (receive only)")
	flag.DurationVar(&cfg.StaleTimeout, "stale", 0, "Drop partial transfers idle for this long, e.g. 5m (receive only)")
	flag.StringVar(&cfg.BridgeAddr, "listen", cfg.BridgeAddr, "Renderer/scanner bridge listen address; empty disables")
	flag.StringVar(&cfg.BridgePIN, "pin", "", "PIN required by bridge clients")
	flag.StringVar(&cfg.LinkListen, "link-listen", "", "Serve a WebRTC link on this address (send only)")
	flag.StringVar(&cfg.LinkURL, "link-url", "", "Join a sender's WebRTC link at this ws:// URL (receive only)")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg.IDMode = chunker.IDMode(*idFrom)

	if *debugMode {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("FlashSort — v%s", version))
	pterm.Println()

	if *role == "" {
		// No -role flag → interactive mode.
		askInteractive(&cfg)
	} else {
		cfg.Role = config.Role(*role)
	}

	if err := cfg.Validate(); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	var err error
	switch cfg.Role {
	case config.RoleSend:
		err = runSend(ctx, cfg)
	case config.RoleReceive:
		err = runReceive(ctx, cfg)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		util.LogError("%v", err)
		os.Exit(1)
	}

	util.LogInfo("bye")
}

// ---------------------------------------------------------------------------
// Interactive prompts
// ---------------------------------------------------------------------------

// askInteractive fills cfg from prompts when no -role flag is provided.
func askInteractive(cfg *config.Config) {
	role, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{"Send    — Display a file as packets", "Receive — Reassemble scanned packets"}).
		WithDefaultText("Select your role").
		Show()

	pterm.Println()

	if strings.HasPrefix(role, "Send") {
		cfg.Role = config.RoleSend
		cfg.FilePath = askText("File to send", "")
		cfg.ChunkSize = askInt("Payload bytes per packet", cfg.ChunkSize, 1, config.MaxChunkSize)
		cfg.FPS = askInt("Packets per second", cfg.FPS, config.MinFPS, config.MaxFPS)
		cfg.Loop, _ = pterm.DefaultInteractiveConfirm.
			WithDefaultText("Repeat until interrupted?").
			WithDefaultValue(true).
			Show()
	} else {
		cfg.Role = config.RoleReceive
		cfg.OutputDir = askText("Output directory", cfg.OutputDir)
	}

	pterm.Println()
}

// askText prompts for a non-empty string, falling back to def when given.
func askText(prompt, def string) string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText(prompt).
			WithDefaultValue(def).
			Show()

		if v := strings.TrimSpace(raw); v != "" {
			return v
		}

		util.LogWarning("a value is required")
		pterm.Println()
	}
}

// askInt prompts for an integer in [lo, hi] until a valid one is entered.
func askInt(prompt string, def, lo, hi int) int {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText(fmt.Sprintf("%s (%d ~ %d)", prompt, lo, hi)).
			WithDefaultValue(strconv.Itoa(def)).
			Show()

		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err == nil && n >= lo && n <= hi {
			return n
		}

		util.LogWarning("invalid number: must be %d ~ %d", lo, hi)
		pterm.Println()
	}
}
