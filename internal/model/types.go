package model

import (
	"fmt"

	"github.com/kaykay0201/remote-desktop-rdp/internal/util"
)

// Default desktop geometry and proxy port for new profiles. 13389 is the
// local port a client-role cloudflared binds; the RDP negotiator always
// connects there, never to the remote host directly.
const (
	DefaultWidth     = 1920
	DefaultHeight    = 1080
	DefaultProxyPort = 13389
	DefaultRDPPort   = 3389
)

// ConnectionProfile holds everything needed to negotiate one RDP session.
// The password is kept in memory only: it is excluded from every
// serialization path and must never reach disk.
//
// A profile is built from validated user input, is read-only once a session
// starts, and is discarded when the session ends or the user edits it.
type ConnectionProfile struct {
	Hostname  string `yaml:"hostname" json:"hostname"`
	Port      int    `yaml:"port" json:"port"`
	Username  string `yaml:"username" json:"username"`
	Password  string `yaml:"-" json:"-"`
	Width     int    `yaml:"width" json:"width"`
	Height    int    `yaml:"height" json:"height"`
	ProxyPort int    `yaml:"proxy_port" json:"proxy_port"`
}

// DefaultProfile returns a profile with default geometry and ports; hostname
// and credentials are left for the user to fill in.
func DefaultProfile() ConnectionProfile {
	return ConnectionProfile{
		Port:      DefaultRDPPort,
		Width:     DefaultWidth,
		Height:    DefaultHeight,
		ProxyPort: DefaultProxyPort,
	}
}

// Validate reports the first constraint violation, or nil.
func (p ConnectionProfile) Validate() error {
	if p.Hostname == "" {
		return fmt.Errorf("hostname is required")
	}
	if p.Username == "" {
		return fmt.Errorf("username is required")
	}
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("display size %dx%d invalid (both dimensions must be positive)", p.Width, p.Height)
	}
	if err := util.ValidatePort(p.ProxyPort); err != nil {
		return fmt.Errorf("invalid proxy port: %w", err)
	}
	return nil
}

// ServerAddr returns the address the negotiator dials. Connectivity is
// always brokered by the local tunnel proxy, so this is a loopback address
// regardless of the remote hostname.
func (p ConnectionProfile) ServerAddr() string {
	return fmt.Sprintf("localhost:%d", p.ProxyPort)
}

// ConnectionStatus is the phase of an in-flight or active RDP session,
// surfaced to the UI via StatusChanged events.
type ConnectionStatus string

const (
	StatusConnecting     ConnectionStatus = "connecting"
	StatusTLSUpgrade     ConnectionStatus = "tls-upgrade"
	StatusAuthenticating ConnectionStatus = "authenticating"
	StatusActive         ConnectionStatus = "active"
)
