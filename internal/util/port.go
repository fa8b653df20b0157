package util

import "fmt"

// TCP port bounds shared by the host RDP port, the local proxy port, and the
// CLI flag validation.
const (
	MinPort = 1
	MaxPort = 65535
)

// ValidatePort reports whether port is usable as an RDP or proxy port.
func ValidatePort(port int) error {
	if port < MinPort || port > MaxPort {
		return fmt.Errorf("port %d out of range %d-%d", port, MinPort, MaxPort)
	}
	return nil
}
