// Package protocol defines the boundary to the external RDP codec library.
//
// This application does NOT implement the RDP wire protocol. PDU framing,
// capability negotiation, CredSSP, and bitmap decompression are supplied by a
// codec implementation linked into the binary; the engine in internal/rdp
// only drives the codec and reacts to its outputs. Everything here is
// interfaces and plain value types so that the session and negotiation logic
// can be exercised in tests with fakes.
//
// A codec integration calls Register at init time (the database/sql driver
// pattern); the engine resolves it through Active.
package protocol

import (
	"context"
	"io"
)

// Config carries the client-side parameters a connector needs to negotiate
// a session. The password is passed through to the credential exchange and
// is never retained by this package.
type Config struct {
	Username   string
	Password   string
	Domain     string
	Width      int
	Height     int
	ClientName string
}

// Image is one full decoded desktop frame in 32-bit RGBA order.
type Image struct {
	Width  int
	Height int
	Pixels []byte
}

// Connector performs the pre-session stages of the protocol over a caller
// supplied transport. The sequence is:
//
//  1. Begin — the initial negotiation exchange. Returns whether the server
//     requires a security-layer upgrade before continuing.
//  2. MarkUpgraded — informs the connector that the transport has been
//     replaced by its TLS-wrapped equivalent.
//  3. Finalize — the credential/authentication exchange, yielding the
//     active session state. serverCert is the peer's certificate in DER
//     form (empty if unavailable), used as channel-binding material.
//
// A Connector is single-use: after Finalize (successful or not) it must not
// be reused for another transport.
type Connector interface {
	Begin(ctx context.Context, rw io.ReadWriter) (upgrade bool, err error)
	MarkUpgraded()
	Finalize(ctx context.Context, rw io.ReadWriter, serverName string, serverCert []byte) (ActiveSession, error)
}

// ActiveSession is the post-authentication protocol state. The session loop
// owns the transport and performs all I/O; the ActiveSession only frames,
// parses, and mutates state.
type ActiveSession interface {
	// ReadFrame reads exactly one protocol frame from r. Deadline control
	// is the caller's responsibility (via the transport's read deadline).
	ReadFrame(r io.Reader) ([]byte, error)

	// Process consumes one inbound frame and returns the resulting output
	// effects in order.
	Process(frame []byte) ([]StageOutput, error)

	// ProcessInput applies a batch of input operations through the
	// fast-path encoding, returning frames to write.
	ProcessInput(ops []InputOp) ([]StageOutput, error)

	// Image returns the latest fully decoded desktop image.
	Image() Image
}

// StageOutput is one effect produced by processing inbound data or input
// operations. The concrete types below are the only implementations.
type StageOutput interface{ isStageOutput() }

// ResponseFrame is a frame that must be written back to the peer
// immediately; a write failure is fatal to the session.
type ResponseFrame struct{ Data []byte }

// GraphicsUpdate signals that a region of the desktop image changed. The
// session loop coalesces any number of these per processing step into a
// single frame event.
type GraphicsUpdate struct{}

// Terminate signals a graceful end of session initiated by the peer.
type Terminate struct{ Reason string }

// Reactivate signals a deactivation-reactivation sequence; the session
// continues.
type Reactivate struct{}

func (ResponseFrame) isStageOutput()  {}
func (GraphicsUpdate) isStageOutput() {}
func (Terminate) isStageOutput()      {}
func (Reactivate) isStageOutput()     {}
