package rdp

import (
	"math"
	"unicode"
	"unicode/utf8"

	"github.com/kaykay0201/remote-desktop-rdp/internal/protocol"
)

// namedScancodes maps non-character key names to set-1 scancodes. Names
// follow the vocabulary the TUI layer produces (bubbletea's KeyMsg.String),
// with a few aliases for callers that use longer spellings.
var namedScancodes = map[string]protocol.Scancode{
	"esc":          0x01,
	"escape":       0x01,
	"f1":           0x3B,
	"f2":           0x3C,
	"f3":           0x3D,
	"f4":           0x3E,
	"f5":           0x3F,
	"f6":           0x40,
	"f7":           0x41,
	"f8":           0x42,
	"f9":           0x43,
	"f10":          0x44,
	"f11":          0x57,
	"f12":          0x58,
	"backspace":    0x0E,
	"tab":          0x0F,
	"enter":        0x1C,
	"shift":        0x2A,
	"ctrl":         0x1D,
	"alt":          0x38,
	"caps_lock":    0x3A,
	"space":        0x39,
	" ":            0x39,
	"pgup":         0xE049,
	"pgdown":       0xE051,
	"end":          0xE04F,
	"home":         0xE047,
	"left":         0xE04B,
	"up":           0xE048,
	"right":        0xE04D,
	"down":         0xE050,
	"insert":       0xE052,
	"delete":       0xE053,
	"num_lock":     0x45,
	"scroll_lock":  0x46,
	"print_screen": 0xE037,
	"pause":        0xE11D,
}

var charScancodes = map[rune]protocol.Scancode{
	'a': 0x1E, 'b': 0x30, 'c': 0x2E, 'd': 0x20, 'e': 0x12,
	'f': 0x21, 'g': 0x22, 'h': 0x23, 'i': 0x17, 'j': 0x24,
	'k': 0x25, 'l': 0x26, 'm': 0x32, 'n': 0x31, 'o': 0x18,
	'p': 0x19, 'q': 0x10, 'r': 0x13, 's': 0x1F, 't': 0x14,
	'u': 0x16, 'v': 0x2F, 'w': 0x11, 'x': 0x2D, 'y': 0x15,
	'z': 0x2C,
	'1': 0x02, '2': 0x03, '3': 0x04, '4': 0x05, '5': 0x06,
	'6': 0x07, '7': 0x08, '8': 0x09, '9': 0x0A, '0': 0x0B,
	'-': 0x0C, '=': 0x0D, '[': 0x1A, ']': 0x1B, '\\': 0x2B,
	';': 0x27, '\'': 0x28, '`': 0x29, ',': 0x33, '.': 0x34,
	'/': 0x35,
}

// KeyToScancode maps a local key name to its keyboard scancode. It is a
// pure lookup: the same name always yields the same code, and unidentified
// keys yield ok=false so the caller can silently drop them.
func KeyToScancode(key string) (protocol.Scancode, bool) {
	if code, ok := namedScancodes[key]; ok {
		return code, true
	}
	r, size := utf8.DecodeRuneInString(key)
	if r == utf8.RuneError || size != len(key) {
		return 0, false
	}
	code, ok := charScancodes[unicode.ToLower(r)]
	return code, ok
}

// TranslateCommand converts one input command into its wire-level input
// operations. Disconnect is a control sentinel and translates to nothing;
// the session loop handles it before translation ever matters.
func TranslateCommand(cmd InputCommand) []protocol.InputOp {
	switch cmd := cmd.(type) {
	case KeyPressed:
		return []protocol.InputOp{protocol.KeyPressedOp{Code: cmd.Scancode}}
	case KeyReleased:
		return []protocol.InputOp{protocol.KeyReleasedOp{Code: cmd.Scancode}}
	case MouseMoved:
		return []protocol.InputOp{protocol.MouseMoveOp{X: cmd.X, Y: cmd.Y}}
	case MouseButtonPressed:
		return []protocol.InputOp{protocol.MouseButtonPressedOp{Button: cmd.Button}}
	case MouseButtonReleased:
		return []protocol.InputOp{protocol.MouseButtonReleasedOp{Button: cmd.Button}}
	case MouseWheel:
		return []protocol.InputOp{protocol.WheelRotationOp{
			Vertical: cmd.Vertical,
			Units:    clampWheelDelta(cmd.Delta),
		}}
	default:
		return nil
	}
}

// clampWheelDelta narrows a wheel delta to the protocol's signed 16-bit
// rotation unit. Out-of-range values are clamped rather than truncated:
// truncation can flip the sign, and direction is the only semantic the
// rotation unit carries.
func clampWheelDelta(d int) int16 {
	if d > math.MaxInt16 {
		return math.MaxInt16
	}
	if d < math.MinInt16 {
		return math.MinInt16
	}
	return int16(d)
}
