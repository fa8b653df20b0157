package tunnel

import (
	"bufio"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kaykay0201/remote-desktop-rdp/internal/util"
)

// Role selects which side of the tunnel a broker instance serves.
type Role string

const (
	RoleHost   Role = "host"
	RoleClient Role = "client"
)

// Event is one item of a tunnel instance's event stream.
//
// Stream contract: HandleReady is always first, before any output has been
// observed, so callers may request a stop at any time. Stopped is always
// the final event, on every exit path, and is the sole signal callers may
// rely on to release external resources. The channel is closed after
// Stopped.
type Event interface{ isTunnelEvent() }

// HandleReady delivers the stop capability for this instance.
type HandleReady struct{ Handle *Instance }

// URLReady carries the reachability URL assigned to a host-role tunnel.
// Emitted at most once per instance.
type URLReady struct{ URL string }

// OutputLine is one raw broker log line, forwarded for display.
type OutputLine struct{ Line string }

// ErrorEvent is a broker failure: a spawn error, a read error, or (client
// role) a log line carrying an explicit error marker. It is not necessarily
// terminal — only Stopped is.
type ErrorEvent struct{ Message string }

// Stopped is the terminal event.
type Stopped struct{}

func (HandleReady) isTunnelEvent() {}
func (URLReady) isTunnelEvent()    {}
func (OutputLine) isTunnelEvent()  {}
func (ErrorEvent) isTunnelEvent()  {}
func (Stopped) isTunnelEvent()     {}

// Instance is one broker subprocess lifecycle: its event stream and its
// stop capability.
type Instance struct {
	role     Role
	events   chan Event
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func newInstance(role Role) *Instance {
	return &Instance{
		role:   role,
		events: make(chan Event, util.TunnelEventCapacity),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Role returns which side of the tunnel this instance serves.
func (i *Instance) Role() Role { return i.role }

// Events returns the instance's event stream. The consumer must drain it
// until Stopped (or channel close).
func (i *Instance) Events() <-chan Event { return i.events }

// Done is closed once the instance has fully shut down (Stopped emitted,
// subprocess reaped).
func (i *Instance) Done() <-chan struct{} { return i.done }

// Stop requests subprocess termination. It is cooperative (honored at the
// read loop's next suspension point) and idempotent: the second and later
// calls are no-ops.
func (i *Instance) Stop() {
	i.stopOnce.Do(func() { close(i.stop) })
}

// Manager spawns and tracks broker subprocesses. It is the process-scope
// owner of every child this application starts: each spawned instance is
// registered here, and StopAll tears all of them down on shutdown so no
// broker outlives the application.
type Manager struct {
	mu      sync.Mutex
	starter Starter
	binary  string
	live    map[*Instance]struct{}
}

// NewManager creates a Manager that launches the given broker binary
// through starter.
func NewManager(starter Starter, binary string) *Manager {
	return &Manager{
		starter: starter,
		binary:  util.DefaultString(binary, DefaultBinary),
		live:    make(map[*Instance]struct{}),
	}
}

// StartHost spawns a host-role broker exposing the local RDP port and
// returns its instance. Spawn errors surface on the event stream, not as a
// return value, so the caller observes a uniform lifecycle.
func (m *Manager) StartHost(rdpPort int) *Instance {
	inst := newInstance(RoleHost)
	go m.run(inst, func(ctx context.Context) (*Process, error) {
		return m.starter.StartHost(ctx, m.binary, rdpPort)
	})
	return inst
}

// StartClient spawns a client-role broker binding the remote tunnel
// hostname to the given local port.
func (m *Manager) StartClient(hostname string, localPort int) *Instance {
	inst := newInstance(RoleClient)
	go m.run(inst, func(ctx context.Context) (*Process, error) {
		return m.starter.StartClient(ctx, m.binary, hostname, localPort)
	})
	return inst
}

// run owns one instance lifecycle end to end. Every exit path emits
// Stopped as the final event and closes the stream.
func (m *Manager) run(inst *Instance, spawn func(context.Context) (*Process, error)) {
	defer close(inst.done)
	defer close(inst.events)

	inst.events <- HandleReady{Handle: inst}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	proc, err := spawn(ctx)
	if err != nil {
		slog.Error("failed to start cloudflared", "role", inst.role, "error", err)
		inst.events <- ErrorEvent{Message: "failed to start cloudflared: " + err.Error()}
		inst.events <- Stopped{}
		return
	}
	m.track(inst)
	defer m.untrack(inst)

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(proc.Stderr)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-inst.stop:
				return
			}
		}
		readErr <- sc.Err()
	}()

	urlFound := false
loop:
	for {
		select {
		case line := <-lines:
			slog.Info("cloudflared", "role", inst.role, "line", line)
			switch inst.role {
			case RoleHost:
				if !urlFound {
					if url, ok := ExtractTunnelURL(line); ok {
						urlFound = true
						inst.events <- URLReady{URL: url}
					}
				}
				inst.events <- OutputLine{Line: line}
			case RoleClient:
				if IsErrorLine(line) {
					inst.events <- ErrorEvent{Message: line}
				} else {
					inst.events <- OutputLine{Line: line}
				}
			}

		case err := <-readErr:
			if err != nil {
				slog.Error("cloudflared read error", "role", inst.role, "error", err)
				inst.events <- ErrorEvent{Message: "read error: " + err.Error()}
			} else {
				slog.Info("cloudflared output stream closed", "role", inst.role)
			}
			break loop

		case <-inst.stop:
			slog.Info("stopping tunnel", "role", inst.role)
			cancel()
			break loop
		}
	}

	_ = proc.Cmd.Wait()
	inst.events <- Stopped{}
}

func (m *Manager) track(inst *Instance) {
	m.mu.Lock()
	m.live[inst] = struct{}{}
	m.mu.Unlock()
}

func (m *Manager) untrack(inst *Instance) {
	m.mu.Lock()
	delete(m.live, inst)
	m.mu.Unlock()
}

// Live returns the number of currently tracked broker subprocesses.
func (m *Manager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// StopAll stops every tracked instance and waits briefly for each to shut
// down. Called on application exit so no broker subprocess is orphaned.
func (m *Manager) StopAll() {
	m.mu.Lock()
	insts := make([]*Instance, 0, len(m.live))
	for inst := range m.live {
		insts = append(insts, inst)
	}
	m.mu.Unlock()

	for _, inst := range insts {
		inst.Stop()
		// Drain so the run goroutine is never wedged on a full stream.
		go func(inst *Instance) {
			for range inst.events {
			}
		}(inst)
		select {
		case <-inst.done:
		case <-time.After(5 * time.Second):
			slog.Warn("tunnel did not stop in time", "role", inst.role)
		}
	}
}
