// Package main is the entry point for the remote-desktop-rdp binary.
//
// remote-desktop-rdp is a terminal application that combines a TUI (built
// with Bubble Tea) and a CLI (built with Cobra) for hosting and joining
// remote desktop sessions brokered over Cloudflare quick tunnels.
//
// When invoked without arguments, it launches the interactive TUI.
// When invoked with subcommands (e.g. "host", "connect", "doctor"), it runs
// the corresponding CLI operation and exits.
//
// Usage:
//
//	remote-desktop-rdp                         # launch the TUI
//	remote-desktop-rdp host                    # expose the local RDP service
//	remote-desktop-rdp connect <tunnel-url>    # join a remote session headless
//	remote-desktop-rdp doctor                  # run preflight diagnostics
//
// The CLI is constructed in internal/cli and the TUI in internal/ui. This
// file simply wires them together and handles top-level error reporting.
package main

import (
	"fmt"
	"os"

	"github.com/kaykay0201/remote-desktop-rdp/internal/cli"
)

func main() {
	// Build the root Cobra command tree, which includes all subcommands
	// (host, connect, doctor, events) and defaults to launching the TUI
	// when no subcommand is provided.
	cmd := cli.NewRootCommand()

	// Execute the resolved command. Cobra handles argument parsing,
	// subcommand routing, and help/usage output automatically.
	// Any error returned by a RunE handler is printed to stderr
	// and the process exits with a non-zero status code.
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
