// Package util provides common utility functions and constants used across the
// remote-desktop-rdp application. This package is intentionally kept
// dependency-free (no imports from other internal/* packages) to serve as a
// shared foundation without introducing circular dependencies.
package util

import "time"

const (
	// ConnectTimeout is the overall wall-clock budget for establishing an
	// RDP connection: TCP dial, protocol negotiation (including retries),
	// TLS upgrade, and credential exchange. If the whole sequence has not
	// produced an active session within this window, the attempt is
	// abandoned and reported as a timeout rather than retried.
	// Used by: internal/rdp/session.go (Session.Run).
	ConnectTimeout = 30 * time.Second

	// ConnectAttempts is the number of times the initial protocol
	// negotiation is tried before giving up. Each attempt opens a fresh TCP
	// connection; a failure at either the transport or the negotiation
	// layer consumes one attempt. TLS and authentication failures are never
	// retried — they happen after the attempt loop.
	// Used by: internal/rdp/negotiate.go (Negotiator.Connect).
	ConnectAttempts = 3

	// ConnectRetryBackoff is the fixed pause between failed negotiation
	// attempts. No backoff is applied after the final attempt.
	ConnectRetryBackoff = 1 * time.Second

	// DiagnosticProbeTimeout bounds the post-mortem probe that runs after
	// all negotiation attempts have failed: one more TCP connection is
	// opened and read for up to this duration to classify the likely root
	// cause (dead service, expired tunnel, foreign protocol).
	// Used by: internal/rdp/negotiate.go (Negotiator.diagnose).
	DiagnosticProbeTimeout = 2 * time.Second

	// InactivityTimeout is the maximum time the session loop waits for a
	// single inbound protocol frame. A server that stays silent longer is
	// treated as gone: the error is fatal and the session is not silently
	// reconnected.
	// Used by: internal/rdp/session.go (activeLoop).
	InactivityTimeout = 60 * time.Second

	// InputQueueCapacity bounds the session's input-command queue. When the
	// queue is full the UI-side sender blocks, applying backpressure rather
	// than dropping input silently.
	// Used by: internal/rdp/session.go and internal/rdp/events.go.
	InputQueueCapacity = 100

	// TunnelEventCapacity bounds a tunnel instance's event stream.
	TunnelEventCapacity = 100

	// ClientTunnelGrace is how long the orchestrator waits after spawning a
	// client-role cloudflared before starting RDP negotiation against the
	// local proxy port. cloudflared access prints no explicit ready line,
	// so readiness is approximated by this fixed delay.
	// Used by: internal/ui/ui.go and internal/cli/root.go.
	ClientTunnelGrace = 3 * time.Second

	// DefaultRefreshSeconds is the fallback interval (in seconds) for the
	// TUI's periodic status refresh when config.yaml has an invalid or
	// missing refresh_seconds value.
	DefaultRefreshSeconds = 3
)
