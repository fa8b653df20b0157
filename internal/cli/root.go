// Package cli provides the command-line interface for remote-desktop-rdp.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/kaykay0201/remote-desktop-rdp/internal/appconfig"
	"github.com/kaykay0201/remote-desktop-rdp/internal/doctor"
	"github.com/kaykay0201/remote-desktop-rdp/internal/events"
	"github.com/kaykay0201/remote-desktop-rdp/internal/history"
	"github.com/kaykay0201/remote-desktop-rdp/internal/model"
	"github.com/kaykay0201/remote-desktop-rdp/internal/rdp"
	"github.com/kaykay0201/remote-desktop-rdp/internal/tunnel"
	"github.com/kaykay0201/remote-desktop-rdp/internal/ui"
	"github.com/kaykay0201/remote-desktop-rdp/internal/util"
)

// NewRootCommand creates the root cobra command.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "remote-desktop-rdp",
		Short: "Remote desktop sessions brokered over Cloudflare quick tunnels",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ui.Run()
		},
	}

	root.AddCommand(newHostCmd())
	root.AddCommand(newConnectCmd())
	root.AddCommand(newDoctorCmd())
	root.AddCommand(newEventsCmd())
	return root
}

// newHostCmd runs the host side headless: spawn the tunnel, print the URL,
// stay up until interrupted.
func newHostCmd() *cobra.Command {
	var rdpPort int
	cmd := &cobra.Command{
		Use:   "host",
		Short: "Expose the local RDP service through a public tunnel URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load()
			if err != nil {
				return err
			}
			if rdpPort == 0 {
				rdpPort = cfg.HostRDPPort
			}
			if err := util.ValidatePort(rdpPort); err != nil {
				return fmt.Errorf("invalid RDP port: %w", err)
			}
			if err := tunnel.EnsureBinary(cfg.CloudflaredPath); err != nil {
				return err
			}

			mgr := tunnel.NewManager(tunnel.NewRunner(), cfg.CloudflaredPath)
			defer mgr.StopAll()
			inst := mgr.StartHost(rdpPort)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			fmt.Printf("starting tunnel for localhost:%d ...\n", rdpPort)
			for {
				select {
				case sig := <-sigCh:
					slog.Info("signal received, stopping tunnel", "signal", sig.String())
					inst.Stop()
				case evt, ok := <-inst.Events():
					if !ok {
						return nil
					}
					switch evt := evt.(type) {
					case tunnel.URLReady:
						fmt.Printf("\ntunnel URL: %s\n\nshare it with the connecting side; Ctrl+C stops hosting\n", evt.URL)
					case tunnel.OutputLine:
						slog.Debug("cloudflared", "line", evt.Line)
					case tunnel.ErrorEvent:
						fmt.Fprintln(os.Stderr, "tunnel error: "+evt.Message)
					case tunnel.Stopped:
						fmt.Println("tunnel stopped")
					}
				}
			}
		},
	}
	cmd.Flags().IntVar(&rdpPort, "rdp-port", 0, "local RDP port to expose (default from config)")
	return cmd
}

// newConnectCmd opens a session from the terminal without the TUI,
// printing lifecycle events as they happen. Useful for scripting and for
// debugging connection failures.
func newConnectCmd() *cobra.Command {
	var (
		username  string
		width     int
		height    int
		proxyPort int
	)
	cmd := &cobra.Command{
		Use:   "connect <tunnel-url>",
		Short: "Connect to a remote desktop via its tunnel URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tunnelURL := strings.TrimSpace(args[0])
			if !strings.Contains(tunnelURL, tunnel.TunnelDomainSuffix) {
				return fmt.Errorf("tunnel URL must be a %s address", tunnel.TunnelDomainSuffix)
			}
			cfg, err := appconfig.Load()
			if err != nil {
				return err
			}
			if err := tunnel.EnsureBinary(cfg.CloudflaredPath); err != nil {
				return err
			}
			if proxyPort == 0 {
				proxyPort = cfg.ProxyPort
			}

			password, err := promptPassword()
			if err != nil {
				return err
			}

			profile := model.ConnectionProfile{
				Hostname:  "localhost",
				Port:      model.DefaultRDPPort,
				Username:  username,
				Password:  password,
				Width:     width,
				Height:    height,
				ProxyPort: proxyPort,
			}
			if err := profile.Validate(); err != nil {
				return err
			}
			return runHeadlessSession(cfg, tunnelURL, profile)
		},
	}
	cmd.Flags().StringVar(&username, "user", "", "remote username (required)")
	cmd.Flags().IntVar(&width, "width", model.DefaultWidth, "desktop width")
	cmd.Flags().IntVar(&height, "height", model.DefaultHeight, "desktop height")
	cmd.Flags().IntVar(&proxyPort, "proxy-port", 0, "local tunnel proxy port (default from config)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Password: ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("password is required")
	}
	return string(raw), nil
}

func runHeadlessSession(cfg appconfig.Config, tunnelURL string, profile model.ConnectionProfile) error {
	mgr := tunnel.NewManager(tunnel.NewRunner(), cfg.CloudflaredPath)
	defer mgr.StopAll()

	inst := mgr.StartClient(tunnelURL, profile.ProxyPort)
	fmt.Printf("opening tunnel to %s via localhost:%d ...\n", tunnelURL, profile.ProxyPort)

	// Drain the tunnel stream in the background; its lines are diagnostics
	// here, not control flow.
	go func() {
		for evt := range inst.Events() {
			switch evt := evt.(type) {
			case tunnel.ErrorEvent:
				fmt.Fprintln(os.Stderr, "tunnel error: "+evt.Message)
			case tunnel.OutputLine:
				slog.Debug("cloudflared", "line", evt.Line)
			}
		}
	}()

	// The access process prints no ready line; give it a moment to bind the
	// local proxy port before negotiating.
	time.Sleep(util.ClientTunnelGrace)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	sessEvents := make(chan rdp.SessionEvent, 16)
	sess := &rdp.Session{Profile: profile}
	go sess.Run(ctx, sessEvents)

	var conn *rdp.Conn
	frames := 0
	for {
		select {
		case <-sigCh:
			if conn != nil {
				conn.Send(rdp.Disconnect{})
			} else {
				cancel()
			}
		case evt, ok := <-sessEvents:
			if !ok {
				return nil
			}
			switch evt := evt.(type) {
			case rdp.StatusChanged:
				fmt.Printf("status: %s\n", evt.Status)
			case rdp.Connected:
				conn = evt.Conn
				fmt.Println("session active (Ctrl+C disconnects)")
				if err := history.Touch(tunnelURL, profile); err != nil {
					slog.Warn("failed to record connection history", "error", err)
				}
			case rdp.Frame:
				frames++
				if frames == 1 || frames%100 == 0 {
					fmt.Printf("frames: %d (%dx%d)\n", frames, evt.Width, evt.Height)
				}
			case rdp.ErrorEvent:
				return fmt.Errorf("%s", evt.Message)
			case rdp.Disconnected:
				fmt.Println("disconnected")
				return nil
			}
		}
	}
}

func newDoctorCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run local preflight diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := doctor.Run()
			if err != nil {
				return err
			}
			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			} else if len(report.Issues) == 0 {
				fmt.Println("no issues found")
			} else {
				fmt.Printf("%-8s %-20s %-28s %s\n", "SEV", "CHECK", "TARGET", "MESSAGE")
				for _, issue := range report.Issues {
					fmt.Printf("%-8s %-20s %-28s %s\n", issue.Severity, issue.Check, issue.Target, issue.Message)
					if issue.Recommendation != "" {
						fmt.Printf("         fix: %s\n", issue.Recommendation)
					}
				}
			}
			if report.HasHigh() {
				return fmt.Errorf("diagnostics found blocking issues")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}

func newEventsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show recent session and tunnel lifecycle events",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := events.NewStore()
			recent, err := store.Recent(limit)
			if err != nil {
				return err
			}
			if len(recent) == 0 {
				fmt.Println("no events recorded")
				return nil
			}
			for _, evt := range recent {
				role := evt.Role
				if role != "" {
					role = "/" + role
				}
				fmt.Printf("%s  %-14s %-14s %s\n", evt.Timestamp.Format(time.RFC3339), evt.Source+role, evt.EventType, util.EmptyDash(evt.Message))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of events to show")
	return cmd
}
