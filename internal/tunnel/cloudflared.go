// Package tunnel manages the lifecycle of cloudflared broker subprocesses:
// spawning them in the correct role, scraping their output for the
// reachability URL, and guaranteeing cleanup.
//
// This package does NOT speak the tunnel protocol itself — it shells out to
// the cloudflared binary, which brokers TCP connectivity through the
// provider's edge network without inbound firewall rules. cloudflared
// communicates status exclusively through stderr log lines; there is no
// structured IPC.
//
// Two roles exist:
//
//   - Host: `cloudflared tunnel --url tcp://localhost:<port>` exposes the
//     fixed local RDP port over a fresh tunnel. The broker prints the
//     assigned reachability URL to stderr once the tunnel is up.
//
//   - Client: `cloudflared access tcp --hostname <url> --url localhost:<port>`
//     binds a remote tunnel address to a fixed local port that the RDP
//     negotiator then dials.
//
// All arguments are passed via exec.Command's argv (never shell
// interpolation), so hostnames containing metacharacters cannot inject
// commands.
package tunnel

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// DefaultBinary is the broker binary name resolved through PATH when the
// configuration does not pin an explicit path.
const DefaultBinary = "cloudflared"

// Process is one running cloudflared subprocess.
//
// The caller (Manager) owns the lifecycle: it drains Stderr to prevent the
// process from blocking on a full pipe, cancels the spawn context to kill
// the process, and calls Cmd.Wait to reap it.
type Process struct {
	Cmd    *exec.Cmd
	Stderr io.ReadCloser
}

// Starter abstracts cloudflared process creation so tests can substitute
// fake processes.
type Starter interface {
	StartHost(ctx context.Context, binary string, rdpPort int) (*Process, error)
	StartClient(ctx context.Context, binary, hostname string, localPort int) (*Process, error)
}

// Runner is the production Starter: it launches the real cloudflared
// binary. Runner is stateless and safe for concurrent use.
type Runner struct{}

// NewRunner creates a Runner.
func NewRunner() *Runner { return &Runner{} }

// BuildHostArgs composes the argv for a host-role broker advertising the
// local RDP port. Exposed separately so argument composition can be
// displayed and unit tested without spawning anything.
func BuildHostArgs(rdpPort int) []string {
	return []string{"tunnel", "--url", fmt.Sprintf("tcp://localhost:%d", rdpPort)}
}

// BuildClientArgs composes the argv for a client-role broker binding the
// given remote tunnel hostname to a local port.
func BuildClientArgs(hostname string, localPort int) []string {
	return []string{"access", "tcp", "--hostname", hostname, "--url", fmt.Sprintf("localhost:%d", localPort)}
}

// StartHost spawns a host-role broker.
func (r *Runner) StartHost(ctx context.Context, binary string, rdpPort int) (*Process, error) {
	return start(ctx, binary, BuildHostArgs(rdpPort))
}

// StartClient spawns a client-role broker.
func (r *Runner) StartClient(ctx context.Context, binary, hostname string, localPort int) (*Process, error) {
	return start(ctx, binary, BuildClientArgs(hostname, localPort))
}

func start(ctx context.Context, binary string, args []string) (*Process, error) {
	// CommandContext ties the subprocess lifetime to the context: the
	// Manager's cancel is the kill mechanism.
	cmd := exec.CommandContext(ctx, binary, args...)

	// cloudflared writes all status to stderr; stdout is noise and stdin
	// is never read.
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	cmd.Stdout = io.Discard
	cmd.Stdin = nil

	// Keep the broker from popping a console window on platforms where
	// spawned children inherit one.
	hideConsoleWindow(cmd)

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &Process{Cmd: cmd, Stderr: stderr}, nil
}

// EnsureBinary checks that the broker binary is launchable: an explicit
// path must exist, a bare name must resolve through PATH. Called early so
// the user gets a clear message instead of a confusing exec error later.
func EnsureBinary(binary string) error {
	if strings.ContainsRune(binary, '/') || strings.ContainsRune(binary, '\\') {
		if _, err := exec.LookPath(binary); err != nil {
			return fmt.Errorf("cloudflared binary not found at %s", binary)
		}
		return nil
	}
	if _, err := exec.LookPath(binary); err != nil {
		return fmt.Errorf("cloudflared binary not found in PATH")
	}
	return nil
}
