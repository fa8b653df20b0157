// Package tunnel tests verify the Manager's subprocess lifecycle: the
// ordering guarantees of the event stream, URL detection for host-role
// instances, error classification for client-role instances, and cleanup of
// every instance on StopAll.
//
// These tests use a fakeStarter implementation of the Starter interface to
// simulate cloudflared without launching it. The fake runs a small shell
// script whose stderr output stands in for cloudflared's log stream, so
// each test can feed the scraper exactly the lines it wants and still
// exercise a real subprocess (real pipe, real PID, real Wait).
package tunnel

import (
	"context"
	"os/exec"
	"testing"
	"time"
)

// fakeStarter is a test double that implements the Starter interface. Both
// roles launch the same shell script: only the scraping rules differ by
// role, and those are what the tests assert on.
//
// The 'fail' field makes both Start methods return exec.ErrNotFound,
// simulating a missing cloudflared binary.
type fakeStarter struct {
	script string
	fail   bool
}

func (f fakeStarter) StartHost(ctx context.Context, binary string, rdpPort int) (*Process, error) {
	return f.start(ctx)
}

func (f fakeStarter) StartClient(ctx context.Context, binary, hostname string, localPort int) (*Process, error) {
	return f.start(ctx)
}

func (f fakeStarter) start(ctx context.Context) (*Process, error) {
	if f.fail {
		return nil, exec.ErrNotFound
	}
	cmd := exec.CommandContext(ctx, "sh", "-c", f.script)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	// Leave stdout unwired (devnull): the scripts only write to stderr, and
	// a stdout pipe would keep Cmd.Wait blocked if the shell leaves an
	// orphaned child holding the write end after the kill.
	cmd.Stdout = nil
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &Process{Cmd: cmd, Stderr: stderr}, nil
}

// drain collects every event until the stream closes, failing the test if
// the stream does not close within the deadline.
func drain(t *testing.T, inst *Instance) []Event {
	t.Helper()
	var got []Event
	deadline := time.After(10 * time.Second)
	for {
		select {
		case evt, ok := <-inst.Events():
			if !ok {
				return got
			}
			got = append(got, evt)
		case <-deadline:
			t.Fatalf("event stream did not close; got %d events so far", len(got))
		}
	}
}

// assertStreamContract checks the two ordering guarantees every instance
// must honor: HandleReady is the first event and Stopped is the last, with
// exactly one of each.
func assertStreamContract(t *testing.T, events []Event) {
	t.Helper()
	if len(events) < 2 {
		t.Fatalf("expected at least HandleReady and Stopped, got %d events", len(events))
	}
	if _, ok := events[0].(HandleReady); !ok {
		t.Fatalf("first event = %T, want HandleReady", events[0])
	}
	if _, ok := events[len(events)-1].(Stopped); !ok {
		t.Fatalf("last event = %T, want Stopped", events[len(events)-1])
	}
	stopped := 0
	for _, evt := range events {
		if _, ok := evt.(Stopped); ok {
			stopped++
		}
	}
	if stopped != 1 {
		t.Fatalf("got %d Stopped events, want exactly 1", stopped)
	}
}

// TestManagerHostURLDetection feeds a realistic stderr sequence through a
// host-role instance: a banner line without the URL, then the URL line,
// then more output. Exactly one URLReady must be emitted, carrying the
// first URL, and every line must also arrive as OutputLine.
func TestManagerHostURLDetection(t *testing.T) {
	script := `
echo "INF starting quick tunnel" >&2
echo "|  https://first.trycloudflare.com  |" >&2
echo "INF visit https://second.trycloudflare.com" >&2
`
	m := NewManager(fakeStarter{script: script}, "cloudflared")
	inst := m.StartHost(3389)
	events := drain(t, inst)
	assertStreamContract(t, events)

	var urls []string
	lines := 0
	for _, evt := range events {
		switch evt := evt.(type) {
		case URLReady:
			urls = append(urls, evt.URL)
		case OutputLine:
			lines++
		}
	}
	if len(urls) != 1 {
		t.Fatalf("got %d URLReady events, want 1 (%v)", len(urls), urls)
	}
	if urls[0] != "https://first.trycloudflare.com" {
		t.Fatalf("url = %q, want the first URL seen", urls[0])
	}
	if lines != 3 {
		t.Fatalf("got %d OutputLine events, want 3", lines)
	}
}

// TestManagerClientErrorClassification verifies that client-role instances
// split lines by error marker: marked lines become ErrorEvent, everything
// else OutputLine, and neither terminates the stream on its own.
func TestManagerClientErrorClassification(t *testing.T) {
	script := `
echo "INF connected to edge" >&2
echo "2026-01-01T00:00:00Z ERR failed to reach origin" >&2
echo "INF retrying" >&2
`
	m := NewManager(fakeStarter{script: script}, "cloudflared")
	inst := m.StartClient("https://a.trycloudflare.com", 13389)
	events := drain(t, inst)
	assertStreamContract(t, events)

	var errs, lines int
	for _, evt := range events {
		switch evt.(type) {
		case ErrorEvent:
			errs++
		case OutputLine:
			lines++
		case URLReady:
			t.Fatal("client-role instance must never emit URLReady")
		}
	}
	if errs != 1 {
		t.Fatalf("got %d ErrorEvent, want 1", errs)
	}
	if lines != 2 {
		t.Fatalf("got %d OutputLine, want 2", lines)
	}
}

// TestManagerNaturalExit covers the subprocess dying on its own: the stream
// must still end with exactly one Stopped, and Done must be closed.
func TestManagerNaturalExit(t *testing.T) {
	m := NewManager(fakeStarter{script: `echo "INF brief life" >&2`}, "cloudflared")
	inst := m.StartHost(3389)
	events := drain(t, inst)
	assertStreamContract(t, events)

	select {
	case <-inst.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Done not closed after natural exit")
	}
	if n := m.Live(); n != 0 {
		t.Fatalf("Live() = %d after exit, want 0", n)
	}
}

// TestManagerStopIsIdempotent issues Stop twice on a long-lived process.
// The second call must be a no-op and the stream must still carry exactly
// one Stopped.
func TestManagerStopIsIdempotent(t *testing.T) {
	m := NewManager(fakeStarter{script: `echo "INF up" >&2; sleep 30`}, "cloudflared")
	inst := m.StartHost(3389)

	// Wait for the handle before stopping so the spawn has happened.
	evt, ok := <-inst.Events()
	if !ok {
		t.Fatal("stream closed before HandleReady")
	}
	if _, isHandle := evt.(HandleReady); !isHandle {
		t.Fatalf("first event = %T, want HandleReady", evt)
	}

	inst.Stop()
	inst.Stop()

	events := drain(t, inst)
	stopped := 0
	for _, e := range events {
		if _, ok := e.(Stopped); ok {
			stopped++
		}
	}
	if stopped != 1 {
		t.Fatalf("got %d Stopped events after double Stop, want 1", stopped)
	}
}

// TestManagerSpawnFailure verifies the uniform-lifecycle rule: when the
// binary cannot be launched the caller still sees HandleReady, then an
// ErrorEvent naming the failure, then Stopped, and nothing is tracked.
func TestManagerSpawnFailure(t *testing.T) {
	m := NewManager(fakeStarter{fail: true}, "cloudflared")
	inst := m.StartClient("https://a.trycloudflare.com", 13389)
	events := drain(t, inst)
	assertStreamContract(t, events)

	foundErr := false
	for _, evt := range events {
		if _, ok := evt.(ErrorEvent); ok {
			foundErr = true
		}
	}
	if !foundErr {
		t.Fatal("expected an ErrorEvent for the spawn failure")
	}
	if n := m.Live(); n != 0 {
		t.Fatalf("Live() = %d after spawn failure, want 0", n)
	}
}

// TestManagerStopAll starts two long-lived instances and tears both down.
// StopAll must return with nothing still tracked and both Done channels
// closed.
func TestManagerStopAll(t *testing.T) {
	script := `echo "INF up" >&2; sleep 30`
	m := NewManager(fakeStarter{script: script}, "cloudflared")
	a := m.StartHost(3389)
	b := m.StartClient("https://a.trycloudflare.com", 13389)

	// Consume the HandleReady events so both run loops are past spawn.
	<-a.Events()
	<-b.Events()

	waitLive(t, m, 2)
	m.StopAll()

	if n := m.Live(); n != 0 {
		t.Fatalf("Live() = %d after StopAll, want 0", n)
	}
	for _, inst := range []*Instance{a, b} {
		select {
		case <-inst.Done():
		case <-time.After(5 * time.Second):
			t.Fatal("instance not done after StopAll")
		}
	}
}

// waitLive polls until the manager tracks the expected number of
// subprocesses. Tracking happens after spawn on the run goroutine, so a
// brief wait is needed even once HandleReady has been observed.
func waitLive(t *testing.T, m *Manager, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if m.Live() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Live() = %d, want %d", m.Live(), want)
}
