package rdp

import "fmt"

// FailureKind classifies where connection establishment failed. Transport
// and negotiation failures are retried during the attempt loop; TLS and
// authentication failures occur after it and are always fatal.
type FailureKind string

const (
	KindConnection  FailureKind = "connection"
	KindNegotiation FailureKind = "negotiation"
	KindTLS         FailureKind = "tls"
	KindAuth        FailureKind = "auth"
	KindTimeout     FailureKind = "timeout"
)

// ConnectError is a failed connection attempt with its phase and, when the
// retry budget was exhausted, a diagnostic suffix describing the likely root
// cause (see Negotiator.diagnose). The diagnostic is informational only and
// never drives retry decisions.
type ConnectError struct {
	Kind       FailureKind
	Err        error
	Diagnostic string
}

func (e *ConnectError) Error() string {
	var label string
	switch e.Kind {
	case KindConnection:
		label = "connection failed"
	case KindNegotiation:
		label = "negotiation failed"
	case KindTLS:
		label = "TLS upgrade failed"
	case KindAuth:
		label = "authentication failed"
	case KindTimeout:
		label = "connection timed out"
	default:
		label = "connection error"
	}
	msg := label
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Diagnostic != "" {
		msg += " (likely cause: " + e.Diagnostic + ")"
	}
	return msg
}

func (e *ConnectError) Unwrap() error { return e.Err }

func connectErrorf(kind FailureKind, format string, args ...any) *ConnectError {
	return &ConnectError{Kind: kind, Err: fmt.Errorf(format, args...)}
}
