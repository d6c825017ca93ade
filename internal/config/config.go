// Package config holds the CLI configuration types.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/1ureka/flashsort/internal/chunker"
	"github.com/1ureka/flashsort/internal/protocol"
)

// Role represents the user's chosen role (send or receive).
type Role string

const (
	RoleSend    Role = "send"
	RoleReceive Role = "receive"
)

const (
	// DefaultChunkSize keeps a packet (base64 + header) around 300 characters,
	// which fits low-version QR symbols that scan reliably.
	DefaultChunkSize = 200
	// MaxChunkSize bounds a packet to what a single large symbol can carry.
	MaxChunkSize = 2048

	DefaultFPS = 10
	MinFPS     = 1
	MaxFPS     = 30

	DefaultBridgeAddr = "127.0.0.1:8765"
	DefaultOutputDir  = "."
)

// Config stores all parameters gathered from CLI flags or interactive prompts.
type Config struct {
	Role Role

	// Send side.
	FilePath   string         // File to transmit
	ChunkSize  int            // Payload bytes per packet
	FPS        int            // Packets displayed per second
	TransferID string         // Explicit transfer ID; derived when empty
	IDMode     chunker.IDMode // How to derive the transfer ID
	Loop       bool           // Repeat the sequence until interrupted

	// Receive side.
	OutputDir    string        // Directory for completed files
	Once         bool          // Stop after the first completed file
	StaleTimeout time.Duration // Drop idle partial transfers; 0 disables

	// Bridge to external renderers/scanners.
	BridgeAddr string // HTTP listen address for the WebSocket bridge; empty disables
	BridgePIN  string // Required ?pin= on bridge connections; empty disables the check

	// Optional WebRTC link.
	LinkListen string // Sender: WS signaling listen address
	LinkURL    string // Receiver: WS signaling URL of the sender
}

// Default returns a Config with every tunable at its default.
func Default() Config {
	return Config{
		ChunkSize:  DefaultChunkSize,
		FPS:        DefaultFPS,
		IDMode:     chunker.IDFromPath,
		OutputDir:  DefaultOutputDir,
		BridgeAddr: DefaultBridgeAddr,
	}
}

// Validate checks the fields relevant to the configured role.
func (c Config) Validate() error {
	var errs []error

	switch c.Role {
	case RoleSend:
		if c.FilePath == "" {
			errs = append(errs, errors.New("missing file to send"))
		}
		if c.ChunkSize < 1 || c.ChunkSize > MaxChunkSize {
			errs = append(errs, fmt.Errorf("chunk size must be 1~%d, got %d", MaxChunkSize, c.ChunkSize))
		}
		if c.FPS < MinFPS || c.FPS > MaxFPS {
			errs = append(errs, fmt.Errorf("fps must be %d~%d, got %d", MinFPS, MaxFPS, c.FPS))
		}
		if c.TransferID != "" {
			if err := protocol.ValidateTransferID(c.TransferID); err != nil {
				errs = append(errs, err)
			}
		}
		switch c.IDMode {
		case chunker.IDFromPath, chunker.IDFromContent, "":
		default:
			errs = append(errs, fmt.Errorf("id mode must be %q or %q, got %q", chunker.IDFromPath, chunker.IDFromContent, c.IDMode))
		}
		if c.BridgeAddr == "" && c.LinkListen == "" {
			errs = append(errs, errors.New("no output: enable the bridge or the link"))
		}

	case RoleReceive:
		if c.OutputDir == "" {
			errs = append(errs, errors.New("missing output directory"))
		}
		if c.StaleTimeout < 0 {
			errs = append(errs, fmt.Errorf("stale timeout must not be negative, got %s", c.StaleTimeout))
		}
		if c.BridgeAddr == "" && c.LinkURL == "" {
			errs = append(errs, errors.New("no input: enable the bridge or the link"))
		}

	default:
		errs = append(errs, fmt.Errorf("invalid role %q: must be %q or %q", c.Role, RoleSend, RoleReceive))
	}

	return errors.Join(errs...)
}
