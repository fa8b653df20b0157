// Negotiator tests exercise the connection establishment sequence with a
// scripted codec and an in-memory transport (net.Pipe), so no network or
// real RDP implementation is involved. The scripted connector controls
// which attempt succeeds, whether an upgrade is requested, and whether the
// credential exchange passes, which is enough to cover the retry budget,
// the failure taxonomy, and the status callback sequence.
package rdp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kaykay0201/remote-desktop-rdp/internal/model"
	"github.com/kaykay0201/remote-desktop-rdp/internal/protocol"
)

// scriptedCodec implements protocol.Codec. Every NewConnector call counts
// as one negotiation attempt; Begin fails while attempts <= failBegins.
type scriptedCodec struct {
	mu          sync.Mutex
	attempts    int
	failBegins  int   // Begin fails for this many leading attempts
	upgrade     bool  // value Begin reports on success
	finalizeErr error // error Finalize returns, nil for success
	active      protocol.ActiveSession
}

func (c *scriptedCodec) Name() string { return "scripted" }

func (c *scriptedCodec) NewConnector(cfg protocol.Config) protocol.Connector {
	c.mu.Lock()
	c.attempts++
	n := c.attempts
	c.mu.Unlock()
	return &scriptedConnector{codec: c, attempt: n}
}

func (c *scriptedCodec) attemptCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

type scriptedConnector struct {
	codec   *scriptedCodec
	attempt int
}

func (s *scriptedConnector) Begin(ctx context.Context, rw io.ReadWriter) (bool, error) {
	if s.attempt <= s.codec.failBegins {
		return false, fmt.Errorf("negotiation refused on attempt %d", s.attempt)
	}
	return s.codec.upgrade, nil
}

func (s *scriptedConnector) MarkUpgraded() {}

func (s *scriptedConnector) Finalize(ctx context.Context, rw io.ReadWriter, serverName string, serverCert []byte) (protocol.ActiveSession, error) {
	if s.codec.finalizeErr != nil {
		return nil, s.codec.finalizeErr
	}
	return s.codec.active, nil
}

// pipeDialer returns a Dial function producing the client side of a fresh
// net.Pipe. The server side is handed to serve on its own goroutine;
// passing nil closes it immediately.
func pipeDialer(serve func(net.Conn)) func(context.Context, string, string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		client, server := net.Pipe()
		if serve == nil {
			server.Close()
		} else {
			go serve(server)
		}
		return client, nil
	}
}

func drainConn(c net.Conn) {
	_, _ = io.Copy(io.Discard, c)
	c.Close()
}

func testProfile() model.ConnectionProfile {
	p := model.DefaultProfile()
	p.Hostname = "localhost"
	p.Username = "admin"
	p.Password = "secret"
	return p
}

// TestNegotiatorSucceedsAfterRetries scripts two negotiation refusals
// followed by success. The third attempt must succeed within the default
// budget, each attempt must get a fresh connector, and the status sequence
// must show exactly one connecting and one authenticating transition.
func TestNegotiatorSucceedsAfterRetries(t *testing.T) {
	codec := &scriptedCodec{failBegins: 2}
	var statuses []model.ConnectionStatus
	neg := &Negotiator{
		Codec:    codec,
		Dial:     pipeDialer(drainConn),
		Attempts: 3,
		Backoff:  time.Millisecond,
		OnStatus: func(s model.ConnectionStatus) { statuses = append(statuses, s) },
	}

	conn, _, err := neg.Connect(context.Background(), testProfile())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	conn.Close()

	if got := codec.attemptCount(); got != 3 {
		t.Fatalf("attempts = %d, want 3", got)
	}
	want := []model.ConnectionStatus{model.StatusConnecting, model.StatusAuthenticating}
	if len(statuses) != len(want) {
		t.Fatalf("statuses = %v, want %v", statuses, want)
	}
	for i := range want {
		if statuses[i] != want[i] {
			t.Fatalf("statuses = %v, want %v", statuses, want)
		}
	}
}

// TestNegotiatorExhaustsBudget scripts permanent refusal. The error must be
// a negotiation-kind ConnectError carrying a diagnostic from the probe; the
// serving side closes immediately, which classifies as a dead service.
func TestNegotiatorExhaustsBudget(t *testing.T) {
	codec := &scriptedCodec{failBegins: 1 << 30}
	neg := &Negotiator{
		Codec:    codec,
		Dial:     pipeDialer(nil), // server side closes at once
		Attempts: 2,
		Backoff:  time.Millisecond,
	}

	_, _, err := neg.Connect(context.Background(), testProfile())
	if err == nil {
		t.Fatal("expected error after exhausted budget")
	}
	var ce *ConnectError
	if !errors.As(err, &ce) {
		t.Fatalf("error type %T, want *ConnectError", err)
	}
	if ce.Kind != KindNegotiation {
		t.Fatalf("kind = %s, want %s", ce.Kind, KindNegotiation)
	}
	if got := codec.attemptCount(); got != 2 {
		t.Fatalf("attempts = %d, want 2", got)
	}
	if ce.Diagnostic != "remote service not running" {
		t.Fatalf("diagnostic = %q, want dead-service classification", ce.Diagnostic)
	}
	if !strings.Contains(ce.Error(), "likely cause") {
		t.Fatalf("error text %q does not surface the diagnostic", ce.Error())
	}
}

// TestNegotiatorDialFailure covers a proxy port nobody is listening on:
// connection-kind error and the broker-unreachable diagnostic.
func TestNegotiatorDialFailure(t *testing.T) {
	neg := &Negotiator{
		Codec: &scriptedCodec{},
		Dial: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return nil, fmt.Errorf("connect: connection refused")
		},
		Attempts: 2,
		Backoff:  time.Millisecond,
	}

	_, _, err := neg.Connect(context.Background(), testProfile())
	var ce *ConnectError
	if !errors.As(err, &ce) {
		t.Fatalf("error type %T, want *ConnectError", err)
	}
	if ce.Kind != KindConnection {
		t.Fatalf("kind = %s, want %s", ce.Kind, KindConnection)
	}
	if ce.Diagnostic != "tunnel broker unreachable" {
		t.Fatalf("diagnostic = %q, want broker-unreachable classification", ce.Diagnostic)
	}
}

// TestNegotiatorDeadlineDuringFinalAttempt blocks the dial until the
// caller's deadline expires mid-attempt. The error must be timeout-kind,
// not a connection failure, and no post-failure probe may run (a second
// dial would block again, pushing the runtime past the probe budget).
func TestNegotiatorDeadlineDuringFinalAttempt(t *testing.T) {
	neg := &Negotiator{
		Codec: &scriptedCodec{},
		Dial: func(ctx context.Context, network, addr string) (net.Conn, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
		Attempts: 1,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, _, err := neg.Connect(ctx, testProfile())
	elapsed := time.Since(start)

	var ce *ConnectError
	if !errors.As(err, &ce) {
		t.Fatalf("error type %T, want *ConnectError", err)
	}
	if ce.Kind != KindTimeout {
		t.Fatalf("kind = %s, want %s", ce.Kind, KindTimeout)
	}
	if ce.Diagnostic != "" {
		t.Fatalf("diagnostic = %q, want none on timeout", ce.Diagnostic)
	}
	if elapsed > time.Second {
		t.Fatalf("Connect took %s, probe must be skipped on timeout", elapsed)
	}
}

// TestNegotiatorAuthFailure scripts a clean negotiation followed by a
// credential rejection. Authentication failures happen after the attempt
// loop and must not be retried.
func TestNegotiatorAuthFailure(t *testing.T) {
	codec := &scriptedCodec{finalizeErr: fmt.Errorf("logon denied")}
	neg := &Negotiator{
		Codec:    codec,
		Dial:     pipeDialer(drainConn),
		Attempts: 3,
		Backoff:  time.Millisecond,
	}

	_, _, err := neg.Connect(context.Background(), testProfile())
	var ce *ConnectError
	if !errors.As(err, &ce) {
		t.Fatalf("error type %T, want *ConnectError", err)
	}
	if ce.Kind != KindAuth {
		t.Fatalf("kind = %s, want %s", ce.Kind, KindAuth)
	}
	if got := codec.attemptCount(); got != 1 {
		t.Fatalf("attempts = %d, want 1 (auth failures are not retried)", got)
	}
}

// TestDiagnoseHTTPResponse scripts a listener that answers with an HTTP
// status line, which is what an expired quick tunnel does.
func TestDiagnoseHTTPResponse(t *testing.T) {
	neg := &Negotiator{
		Dial: pipeDialer(func(c net.Conn) {
			_, _ = c.Write([]byte("HTTP/1.1 530 \r\n\r\n"))
			c.Close()
		}),
	}
	if got := neg.diagnose("localhost:13389"); got != "tunnel expired or remote offline" {
		t.Fatalf("diagnose = %q, want expired-tunnel classification", got)
	}
}

// TestDiagnoseForeignProtocol scripts a listener speaking something else
// entirely; the diagnostic must quote a bounded prefix of the response.
func TestDiagnoseForeignProtocol(t *testing.T) {
	neg := &Negotiator{
		Dial: pipeDialer(func(c net.Conn) {
			_, _ = c.Write([]byte("SSH-2.0-OpenSSH_9.6\r\n"))
			c.Close()
		}),
	}
	got := neg.diagnose("localhost:13389")
	if !strings.HasPrefix(got, "unexpected response") || !strings.Contains(got, "SSH-2.0") {
		t.Fatalf("diagnose = %q, want quoted foreign response", got)
	}
}

// TestConnectErrorText pins the user-facing label of every failure kind.
func TestConnectErrorText(t *testing.T) {
	cases := []struct {
		kind FailureKind
		want string
	}{
		{KindConnection, "connection failed"},
		{KindNegotiation, "negotiation failed"},
		{KindTLS, "TLS upgrade failed"},
		{KindAuth, "authentication failed"},
		{KindTimeout, "connection timed out"},
	}
	for _, tc := range cases {
		e := &ConnectError{Kind: tc.kind, Err: fmt.Errorf("boom")}
		if !strings.HasPrefix(e.Error(), tc.want) {
			t.Errorf("kind %s: %q does not start with %q", tc.kind, e.Error(), tc.want)
		}
	}

	withDiag := &ConnectError{Kind: KindNegotiation, Err: fmt.Errorf("boom"), Diagnostic: "remote service not running"}
	if got := withDiag.Error(); got != "negotiation failed: boom (likely cause: remote service not running)" {
		t.Fatalf("error text = %q", got)
	}
}
