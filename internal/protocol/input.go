package protocol

// Scancode is a PC/AT set-1 keyboard scancode. Extended keys carry the 0xE0
// prefix in the high byte (e.g. 0xE04B for left arrow).
type Scancode uint16

// MouseButton identifies one of the three buttons the protocol's fast-path
// input encoding distinguishes.
type MouseButton int

const (
	MouseLeft MouseButton = iota
	MouseMiddle
	MouseRight
)

// InputOp is one wire-level input operation handed to
// ActiveSession.ProcessInput. The concrete types below are the only
// implementations.
type InputOp interface{ isInputOp() }

type KeyPressedOp struct{ Code Scancode }

type KeyReleasedOp struct{ Code Scancode }

type MouseMoveOp struct{ X, Y int }

type MouseButtonPressedOp struct{ Button MouseButton }

type MouseButtonReleasedOp struct{ Button MouseButton }

// WheelRotationOp carries wheel movement in signed 16-bit rotation units,
// matching the protocol's narrow encoding.
type WheelRotationOp struct {
	Vertical bool
	Units    int16
}

func (KeyPressedOp) isInputOp()          {}
func (KeyReleasedOp) isInputOp()         {}
func (MouseMoveOp) isInputOp()           {}
func (MouseButtonPressedOp) isInputOp()  {}
func (MouseButtonReleasedOp) isInputOp() {}
func (WheelRotationOp) isInputOp()       {}
