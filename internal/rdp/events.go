// Package rdp drives one remote-desktop session: connection negotiation with
// bounded retries, the TLS security upgrade, and the active session loop
// that multiplexes inbound protocol frames with outbound user input.
//
// The protocol wire format itself lives behind the internal/protocol
// boundary; this package owns the transport, the timing rules, and the
// event/command plumbing between the session and the orchestration layer.
package rdp

import (
	"github.com/kaykay0201/remote-desktop-rdp/internal/model"
	"github.com/kaykay0201/remote-desktop-rdp/internal/protocol"
)

// SessionEvent is one item of the session's outbound event stream.
//
// Stream contract: exactly one Connected precedes any Frame; ErrorEvent and
// Disconnected are terminal and nothing follows them; the channel is closed
// after the terminal event.
type SessionEvent interface{ isSessionEvent() }

// Connected delivers the handle for sending input into the now-active
// session.
type Connected struct{ Conn *Conn }

// Frame is one full decoded desktop image. Graphics updates within a single
// processing step are coalesced: at most one Frame is emitted per step,
// carrying the latest image.
type Frame struct {
	Width  int
	Height int
	Pixels []byte
}

// StatusChanged reports a connection phase transition.
type StatusChanged struct{ Status model.ConnectionStatus }

// ErrorEvent is a terminal failure with a human-readable message.
type ErrorEvent struct{ Message string }

// Disconnected is the terminal event for a graceful end of session,
// initiated by either side.
type Disconnected struct{}

func (Connected) isSessionEvent()     {}
func (Frame) isSessionEvent()         {}
func (StatusChanged) isSessionEvent() {}
func (ErrorEvent) isSessionEvent()    {}
func (Disconnected) isSessionEvent()  {}

// InputCommand is one UI-originated command consumed by the session loop in
// submission order.
type InputCommand interface{ isInputCommand() }

type KeyPressed struct{ Scancode protocol.Scancode }

type KeyReleased struct{ Scancode protocol.Scancode }

type MouseMoved struct{ X, Y int }

type MouseButtonPressed struct{ Button protocol.MouseButton }

type MouseButtonReleased struct{ Button protocol.MouseButton }

// MouseWheel carries raw wheel movement; the delta is narrowed to the
// protocol's 16-bit rotation unit during translation.
type MouseWheel struct {
	Vertical bool
	Delta    int
}

// Disconnect asks the session loop to stop. It is a sentinel, not a
// hardware event: it never reaches the wire, and sending it again after the
// session ended is a harmless no-op.
type Disconnect struct{}

func (KeyPressed) isInputCommand()          {}
func (KeyReleased) isInputCommand()         {}
func (MouseMoved) isInputCommand()          {}
func (MouseButtonPressed) isInputCommand()  {}
func (MouseButtonReleased) isInputCommand() {}
func (MouseWheel) isInputCommand()          {}
func (Disconnect) isInputCommand()          {}

// Conn is the input handle delivered by the Connected event. It feeds the
// session's bounded command queue: when the queue is full, Send blocks,
// applying backpressure to the UI rather than dropping input.
type Conn struct {
	cmds chan<- InputCommand
	done <-chan struct{}
}

// Send queues cmd for the session loop. It returns false once the session
// has terminated; commands sent after that are discarded.
func (c *Conn) Send(cmd InputCommand) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.cmds <- cmd:
		return true
	case <-c.done:
		return false
	}
}
