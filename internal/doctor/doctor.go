// Package doctor runs local preflight diagnostics: everything that must be
// in place before hosting or connecting can work.
package doctor

import (
	"fmt"
	"net"
	"os"

	"github.com/kaykay0201/remote-desktop-rdp/internal/appconfig"
	"github.com/kaykay0201/remote-desktop-rdp/internal/protocol"
	"github.com/kaykay0201/remote-desktop-rdp/internal/tunnel"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type Issue struct {
	Severity       Severity `json:"severity"`
	Check          string   `json:"check"`
	Target         string   `json:"target"`
	Message        string   `json:"message"`
	Recommendation string   `json:"recommendation"`
}

type Report struct {
	Issues []Issue `json:"issues"`
}

func (r Report) HasHigh() bool {
	for _, i := range r.Issues {
		if i.Severity == SeverityHigh {
			return true
		}
	}
	return false
}

// Run executes local diagnostics.
func Run() (Report, error) {
	cfg, err := appconfig.Load()
	if err != nil {
		return Report{}, err
	}

	var issues []Issue

	if err := tunnel.EnsureBinary(cfg.CloudflaredPath); err != nil {
		issues = append(issues, Issue{
			Severity:       SeverityHigh,
			Check:          "cloudflared-binary",
			Target:         cfg.CloudflaredPath,
			Message:        err.Error(),
			Recommendation: "install cloudflared and ensure it is on PATH, or set cloudflared_path in config.yaml",
		})
	}

	if _, err := protocol.Active(); err != nil {
		issues = append(issues, Issue{
			Severity:       SeverityHigh,
			Check:          "protocol-codec",
			Target:         "binary",
			Message:        err.Error(),
			Recommendation: "build the binary with an RDP codec integration linked in",
		})
	}

	if dir, err := appconfig.ConfigDir(); err != nil {
		issues = append(issues, Issue{
			Severity:       SeverityMedium,
			Check:          "config-dir",
			Target:         "home",
			Message:        err.Error(),
			Recommendation: "ensure HOME or XDG_CONFIG_HOME is set",
		})
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		issues = append(issues, Issue{
			Severity:       SeverityMedium,
			Check:          "config-dir",
			Target:         dir,
			Message:        err.Error(),
			Recommendation: "make the config directory writable",
		})
	}

	issues = append(issues, portIssue("proxy-port", cfg.ProxyPort,
		"the client-role tunnel cannot bind its local proxy port",
		"free the port or change proxy_port in config.yaml")...)

	return Report{Issues: issues}, nil
}

// portIssue probes whether a local port can be bound right now. A port in
// use is only medium severity: the spawn will surface the real error later.
func portIssue(check string, port int, message, recommendation string) []Issue {
	ln, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", port))
	if err != nil {
		return []Issue{{
			Severity:       SeverityMedium,
			Check:          check,
			Target:         fmt.Sprintf("localhost:%d", port),
			Message:        message + ": " + err.Error(),
			Recommendation: recommendation,
		}}
	}
	_ = ln.Close()
	return nil
}
