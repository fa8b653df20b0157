package rdp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/kaykay0201/remote-desktop-rdp/internal/model"
	"github.com/kaykay0201/remote-desktop-rdp/internal/protocol"
	"github.com/kaykay0201/remote-desktop-rdp/internal/util"
)

// Session owns one connection lifecycle from negotiation through
// termination. Run is the only entry point; everything else reaches the
// session through the event stream and the input handle it emits.
type Session struct {
	Profile model.ConnectionProfile

	// Negotiator overrides the connection establishment strategy; nil uses
	// defaults (registered codec, standard dialer, standard retry budget).
	Negotiator *Negotiator
}

// Run establishes the connection and drives the active session loop until
// termination, emitting SessionEvents on events. It closes events on
// return; the terminal event (ErrorEvent or Disconnected) is always the
// last one. Intended to be called on its own goroutine.
//
// No mid-session retries happen here: once active, any failure is fatal and
// reconnecting is an explicit user decision made upstream.
func (s *Session) Run(ctx context.Context, events chan<- SessionEvent) {
	defer close(events)

	neg := s.Negotiator
	if neg == nil {
		neg = &Negotiator{}
	}
	if neg.OnStatus == nil {
		neg.OnStatus = func(st model.ConnectionStatus) {
			events <- StatusChanged{Status: st}
		}
	}

	connectCtx, cancel := context.WithTimeout(ctx, util.ConnectTimeout)
	conn, active, err := neg.Connect(connectCtx, s.Profile)
	cancel()
	if err != nil {
		var ce *ConnectError
		if errors.As(err, &ce) && ce.Kind == KindTimeout {
			events <- ErrorEvent{Message: fmt.Sprintf("connection timed out after %s", util.ConnectTimeout)}
		} else {
			events <- ErrorEvent{Message: "connection failed: " + err.Error()}
		}
		return
	}
	defer conn.Close()

	cmds := make(chan InputCommand, util.InputQueueCapacity)
	done := make(chan struct{})
	defer close(done)

	events <- Connected{Conn: &Conn{cmds: cmds, done: done}}
	events <- StatusChanged{Status: model.StatusActive}
	slog.Info("RDP session active, entering main loop")

	s.activeLoop(ctx, conn, active, events, cmds, done)
}

type readResult struct {
	frame []byte
	err   error
}

// activeLoop multiplexes inbound protocol frames and outbound input
// commands until a terminal condition. Each return path emits exactly one
// terminal event; no event follows it.
func (s *Session) activeLoop(ctx context.Context, conn net.Conn, active protocol.ActiveSession, events chan<- SessionEvent, cmds <-chan InputCommand, done chan struct{}) {
	readCh := make(chan readResult)
	go func() {
		for {
			_ = conn.SetReadDeadline(time.Now().Add(util.InactivityTimeout))
			frame, err := active.ReadFrame(conn)
			select {
			case readCh <- readResult{frame: frame, err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			events <- Disconnected{}
			return

		case rr := <-readCh:
			if rr.err != nil {
				var ne net.Error
				if errors.As(rr.err, &ne) && ne.Timeout() {
					slog.Error("inbound read timed out", "timeout", util.InactivityTimeout)
					events <- ErrorEvent{Message: fmt.Sprintf("connection timed out — no data received for %s", util.InactivityTimeout)}
				} else {
					slog.Error("inbound read failed", "error", rr.err)
					events <- ErrorEvent{Message: "read error: " + rr.err.Error()}
				}
				return
			}
			outputs, err := active.Process(rr.frame)
			if err != nil {
				slog.Error("session processing error", "error", err)
				events <- ErrorEvent{Message: "session error: " + err.Error()}
				return
			}
			frameUpdated := false
			for _, out := range outputs {
				switch out := out.(type) {
				case protocol.ResponseFrame:
					if len(out.Data) == 0 {
						continue
					}
					if _, err := conn.Write(out.Data); err != nil {
						slog.Error("failed to write response frame", "error", err)
						events <- ErrorEvent{Message: "write error: " + err.Error()}
						return
					}
				case protocol.GraphicsUpdate:
					frameUpdated = true
				case protocol.Terminate:
					slog.Info("server terminated session", "reason", out.Reason)
					events <- Disconnected{}
					return
				case protocol.Reactivate:
					slog.Info("deactivation-reactivation sequence")
				}
			}
			if frameUpdated {
				img := active.Image()
				events <- Frame{Width: img.Width, Height: img.Height, Pixels: img.Pixels}
			}

		case cmd := <-cmds:
			if _, ok := cmd.(Disconnect); ok {
				slog.Info("user requested disconnect")
				events <- Disconnected{}
				return
			}
			ops := TranslateCommand(cmd)
			if len(ops) == 0 {
				continue
			}
			outputs, err := active.ProcessInput(ops)
			if err != nil {
				// Input encoding problems are not worth tearing the
				// session down over; the command is dropped.
				slog.Error("input processing error", "error", err)
				continue
			}
			for _, out := range outputs {
				rf, ok := out.(protocol.ResponseFrame)
				if !ok || len(rf.Data) == 0 {
					continue
				}
				if _, err := conn.Write(rf.Data); err != nil {
					slog.Error("failed to send input", "error", err)
					events <- ErrorEvent{Message: "input send error: " + err.Error()}
					return
				}
			}
		}
	}
}
