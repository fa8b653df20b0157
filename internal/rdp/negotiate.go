package rdp

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/kaykay0201/remote-desktop-rdp/internal/model"
	"github.com/kaykay0201/remote-desktop-rdp/internal/protocol"
	"github.com/kaykay0201/remote-desktop-rdp/internal/util"
)

// clientName is advertised to the server during negotiation.
const clientName = "remote-desktop-rdp"

// Negotiator establishes an authenticated RDP connection: TCP dial, initial
// protocol negotiation with bounded retries, TLS upgrade, and credential
// exchange. The zero value uses the registered protocol codec, a plain
// net.Dialer, and the default retry budget; fields exist so tests can
// inject fakes and shrink the backoff.
type Negotiator struct {
	// Codec overrides the registered protocol codec.
	Codec protocol.Codec
	// Dial overrides the transport dialer.
	Dial func(ctx context.Context, network, addr string) (net.Conn, error)
	// Attempts is the negotiation retry budget (default util.ConnectAttempts).
	Attempts int
	// Backoff is the fixed wait between failed attempts (default
	// util.ConnectRetryBackoff).
	Backoff time.Duration
	// OnStatus, if set, receives phase transitions as they happen.
	OnStatus func(model.ConnectionStatus)
}

func (n *Negotiator) dial(ctx context.Context, addr string) (net.Conn, error) {
	if n.Dial != nil {
		return n.Dial(ctx, "tcp", addr)
	}
	var d net.Dialer
	return d.DialContext(ctx, "tcp", addr)
}

func (n *Negotiator) status(s model.ConnectionStatus) {
	if n.OnStatus != nil {
		n.OnStatus(s)
	}
}

// Connect runs the full establishment sequence against the profile's local
// proxy address and returns the transport plus the codec's active session
// state. The caller imposes the overall deadline through ctx; on deadline
// expiry the returned error has KindTimeout.
//
// On total negotiation failure the returned ConnectError carries a
// diagnostic suffix from a short probe of the proxy port (see diagnose).
func (n *Negotiator) Connect(ctx context.Context, profile model.ConnectionProfile) (net.Conn, protocol.ActiveSession, error) {
	codec := n.Codec
	if codec == nil {
		active, err := protocol.Active()
		if err != nil {
			return nil, nil, &ConnectError{Kind: KindNegotiation, Err: err}
		}
		codec = active
	}

	addr := profile.ServerAddr()
	cfg := protocol.Config{
		Username:   profile.Username,
		Password:   profile.Password,
		Width:      profile.Width,
		Height:     profile.Height,
		ClientName: clientName,
	}

	n.status(model.StatusConnecting)
	conn, connector, upgrade, err := n.negotiate(ctx, codec, cfg, addr)
	if err != nil {
		return nil, nil, err
	}

	var transport net.Conn = conn
	var serverCert []byte
	if upgrade {
		n.status(model.StatusTLSUpgrade)
		slog.Info("TLS upgrade required, upgrading", "server", profile.Hostname)
		// Certificate path validation is deliberately disabled: tunnel
		// brokered endpoints present ephemeral certificates, and channel
		// security rests on the credential exchange's channel binding.
		tlsConn := tls.Client(conn, &tls.Config{
			ServerName:         profile.Hostname,
			InsecureSkipVerify: true,
		})
		stop := closeOnDone(ctx, conn)
		err := tlsConn.HandshakeContext(ctx)
		stop()
		if err != nil {
			conn.Close()
			if ctx.Err() != nil {
				return nil, nil, n.timeoutError()
			}
			return nil, nil, connectErrorf(KindTLS, "TLS handshake: %w", err)
		}
		if certs := tlsConn.ConnectionState().PeerCertificates; len(certs) > 0 {
			serverCert = certs[0].Raw
		}
		connector.MarkUpgraded()
		transport = tlsConn
	}

	n.status(model.StatusAuthenticating)
	stop := closeOnDone(ctx, transport)
	active, err := connector.Finalize(ctx, transport, profile.Hostname, serverCert)
	stop()
	if err != nil {
		transport.Close()
		if ctx.Err() != nil {
			return nil, nil, n.timeoutError()
		}
		return nil, nil, connectErrorf(KindAuth, "connection finalization: %w", err)
	}

	slog.Info("RDP connection established", "server", addr)
	return transport, active, nil
}

// negotiate runs the attempt loop: fresh transport plus initial negotiation,
// up to the configured budget, with a fixed backoff between non-final
// attempts.
func (n *Negotiator) negotiate(ctx context.Context, codec protocol.Codec, cfg protocol.Config, addr string) (net.Conn, protocol.Connector, bool, error) {
	attempts := n.Attempts
	if attempts <= 0 {
		attempts = util.ConnectAttempts
	}
	backoff := n.Backoff
	if backoff <= 0 {
		backoff = util.ConnectRetryBackoff
	}

	var lastErr *ConnectError
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return nil, nil, false, n.timeoutError()
		}
		conn, err := n.dial(ctx, addr)
		if err != nil {
			lastErr = connectErrorf(KindConnection, "dial %s: %w", addr, err)
		} else {
			connector := codec.NewConnector(cfg)
			stop := closeOnDone(ctx, conn)
			upgrade, err := connector.Begin(ctx, conn)
			stop()
			if err == nil {
				return conn, connector, upgrade, nil
			}
			conn.Close()
			lastErr = connectErrorf(KindNegotiation, "attempt %d: %w", attempt, err)
		}
		slog.Warn("negotiation attempt failed", "attempt", attempt, "of", attempts, "error", lastErr.Err)
		if attempt < attempts {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, nil, false, n.timeoutError()
			}
		}
	}

	// The final attempt may have been cut short by the overall deadline
	// rather than by the remote end; report that as a timeout and skip the
	// probe, whose verdict would be meaningless.
	if ctx.Err() != nil {
		return nil, nil, false, n.timeoutError()
	}

	lastErr.Diagnostic = n.diagnose(addr)
	return nil, nil, false, lastErr
}

func (n *Negotiator) timeoutError() *ConnectError {
	return connectErrorf(KindTimeout, "no connection after %s", util.ConnectTimeout)
}

// diagnose reopens a transport connection after total negotiation failure
// and classifies what is actually listening on the proxy port. The result
// is appended to the error text for the user; it never affects retry
// behavior. It runs on its own short deadline because the caller's context
// is typically already exhausted by the failed attempts.
func (n *Negotiator) diagnose(addr string) string {
	ctx, cancel := context.WithTimeout(context.Background(), util.DiagnosticProbeTimeout)
	defer cancel()

	conn, err := n.dial(ctx, addr)
	if err != nil {
		return "tunnel broker unreachable"
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(util.DiagnosticProbeTimeout))
	buf := make([]byte, 256)
	nr, _ := conn.Read(buf)
	if nr == 0 {
		return "remote service not running"
	}
	if strings.HasPrefix(string(buf[:nr]), "HTTP/") {
		return "tunnel expired or remote offline"
	}
	prefix := buf[:nr]
	if len(prefix) > 32 {
		prefix = prefix[:32]
	}
	return fmt.Sprintf("unexpected response %q", prefix)
}

// closeOnDone closes c if ctx expires before stop is called, unblocking
// codec I/O that has no deadline of its own.
func closeOnDone(ctx context.Context, c net.Conn) (stop func()) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-done:
		}
	}()
	return func() { close(done) }
}
