package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/kaykay0201/remote-desktop-rdp/internal/appconfig"
	"github.com/kaykay0201/remote-desktop-rdp/internal/events"
	"github.com/kaykay0201/remote-desktop-rdp/internal/history"
	"github.com/kaykay0201/remote-desktop-rdp/internal/model"
	"github.com/kaykay0201/remote-desktop-rdp/internal/protocol"
	"github.com/kaykay0201/remote-desktop-rdp/internal/rdp"
	"github.com/kaykay0201/remote-desktop-rdp/internal/tunnel"
	"github.com/kaykay0201/remote-desktop-rdp/internal/util"
)

// screen is the active TUI screen.
type screen int

const (
	screenModeSelect screen = iota
	screenLogin
	screenConnecting
	screenHosting
	screenViewing
	screenError
)

// maxTunnelLines bounds the broker output kept for display.
const maxTunnelLines = 8

type tickMsg time.Time

type statusMsg string

// tunnelEvtMsg delivers one tunnel event from the associated instance's
// stream. ok is false once the stream is closed.
type tunnelEvtMsg struct {
	gen int
	evt tunnel.Event
	ok  bool
}

// sessionEvtMsg delivers one session event. ok is false once the stream is
// closed.
type sessionEvtMsg struct {
	gen int
	evt rdp.SessionEvent
	ok  bool
}

// clientGraceMsg fires once the client-role tunnel has had its startup grace
// period. The access process prints no ready line, so connecting earlier
// would race the local proxy bind.
type clientGraceMsg struct{ gen int }

type modelUI struct {
	cfg     appconfig.Config
	mgr     *tunnel.Manager
	journal *events.Store

	screen  screen
	modeSel int // 0 = host, 1 = connect
	form    *loginForm

	// gen invalidates in-flight channel-wait messages after a teardown:
	// a message carrying an older generation is dropped.
	gen int

	tun         *tunnel.Instance
	tunnelURL   string
	tunnelLines []string

	profile    model.ConnectionProfile
	sessCancel context.CancelFunc
	sessEvents chan rdp.SessionEvent
	conn       *rdp.Conn

	frameCount int
	frameW     int
	frameH     int
	frameAt    time.Time

	status string
	errMsg string
	width  int
	height int
}

func initialModel() modelUI {
	cfg, _ := appconfig.Load()
	mgr := tunnel.NewManager(tunnel.NewRunner(), cfg.CloudflaredPath)
	m := modelUI{cfg: cfg, mgr: mgr, journal: events.NewStore()}
	m.status = "Choose a mode: host this machine or connect to a remote one."
	return m
}

func tickCmd(seconds int) tea.Cmd {
	if seconds <= 0 {
		seconds = util.DefaultRefreshSeconds
	}
	return tea.Tick(time.Duration(seconds)*time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// waitTunnel blocks on the tunnel event stream and republishes one event as
// a tea.Msg. Re-armed after each message until the stream closes.
func waitTunnel(gen int, ch <-chan tunnel.Event) tea.Cmd {
	return func() tea.Msg {
		evt, ok := <-ch
		return tunnelEvtMsg{gen: gen, evt: evt, ok: ok}
	}
}

func waitSession(gen int, ch <-chan rdp.SessionEvent) tea.Cmd {
	return func() tea.Msg {
		evt, ok := <-ch
		return sessionEvtMsg{gen: gen, evt: evt, ok: ok}
	}
}

func graceCmd(gen int) tea.Cmd {
	return tea.Tick(util.ClientTunnelGrace, func(time.Time) tea.Msg { return clientGraceMsg{gen: gen} })
}

func (m modelUI) Init() tea.Cmd {
	return tickCmd(m.cfg.UI.RefreshSeconds)
}

func (m modelUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		return m, tickCmd(m.cfg.UI.RefreshSeconds)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case statusMsg:
		m.status = string(msg)
		return m, nil
	case tunnelEvtMsg:
		return m.updateTunnelEvent(msg)
	case sessionEvtMsg:
		return m.updateSessionEvent(msg)
	case clientGraceMsg:
		if msg.gen != m.gen || m.screen != screenConnecting || m.tun == nil {
			return m, nil
		}
		return m.startSession()
	case tea.MouseMsg:
		if m.screen == screenViewing {
			m.forwardMouse(msg)
		}
		return m, nil
	case tea.KeyMsg:
		return m.updateKey(msg)
	}
	return m, nil
}

func (m modelUI) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m.quit()
	}

	switch m.screen {
	case screenModeSelect:
		switch msg.String() {
		case "q":
			return m.quit()
		case "j", "down":
			if m.modeSel < 1 {
				m.modeSel++
			}
		case "k", "up":
			if m.modeSel > 0 {
				m.modeSel--
			}
		case "h":
			return m.startHosting()
		case "c":
			return m.openLogin()
		case "enter":
			if m.modeSel == 0 {
				return m.startHosting()
			}
			return m.openLogin()
		}
		return m, nil

	case screenLogin:
		if msg.String() == "esc" {
			m.screen = screenModeSelect
			m.form = nil
			m.status = "Cancelled."
			return m, nil
		}
		res, cmd := m.form.update(msg)
		if res == nil {
			return m, cmd
		}
		return m.startConnecting(*res)

	case screenConnecting:
		if msg.String() == "esc" {
			return m.abortToModeSelect("Connection cancelled.")
		}
		return m, nil

	case screenHosting:
		switch msg.String() {
		case "q", "esc":
			return m.abortToModeSelect("Hosting stopped.")
		}
		return m, nil

	case screenViewing:
		if msg.String() == "esc" {
			if m.conn != nil {
				m.conn.Send(rdp.Disconnect{})
			}
			m.status = "Disconnecting..."
			return m, nil
		}
		m.forwardKey(msg)
		return m, nil

	case screenError:
		switch msg.String() {
		case "q":
			return m.quit()
		case "enter", "esc":
			m.screen = screenModeSelect
			m.errMsg = ""
			m.status = "Choose a mode: host this machine or connect to a remote one."
		}
		return m, nil
	}
	return m, nil
}

// startHosting spawns a host-role tunnel exposing the local RDP service.
func (m modelUI) startHosting() (tea.Model, tea.Cmd) {
	m.gen++
	m.tunnelURL = ""
	m.tunnelLines = nil
	m.tun = m.mgr.StartHost(m.cfg.HostRDPPort)
	m.screen = screenHosting
	m.status = fmt.Sprintf("Starting tunnel for localhost:%d ...", m.cfg.HostRDPPort)
	return m, waitTunnel(m.gen, m.tun.Events())
}

func (m modelUI) openLogin() (tea.Model, tea.Cmd) {
	m.screen = screenLogin
	m.form = newLoginForm(m.cfg.ProxyPort)
	m.status = "Enter the tunnel URL and credentials."
	return m, m.form.fields[0].Cursor.BlinkCmd()
}

// startConnecting spawns the client-role tunnel proxy and schedules the
// session start after the startup grace period.
func (m modelUI) startConnecting(res loginResult) (tea.Model, tea.Cmd) {
	m.gen++
	m.form = nil
	m.profile = res.profile
	m.tunnelURL = res.tunnelURL
	m.tunnelLines = nil
	m.tun = m.mgr.StartClient(res.tunnelURL, res.profile.ProxyPort)
	m.screen = screenConnecting
	m.status = fmt.Sprintf("Opening tunnel to %s ...", res.tunnelURL)
	return m, tea.Batch(waitTunnel(m.gen, m.tun.Events()), graceCmd(m.gen))
}

// startSession launches the RDP session goroutine against the local proxy.
func (m modelUI) startSession() (tea.Model, tea.Cmd) {
	ctx, cancel := context.WithCancel(context.Background())
	m.sessCancel = cancel
	m.sessEvents = make(chan rdp.SessionEvent, 16)
	m.frameCount = 0
	m.status = "Tunnel ready, negotiating RDP session..."
	sess := &rdp.Session{Profile: m.profile}
	go sess.Run(ctx, m.sessEvents)
	return m, waitSession(m.gen, m.sessEvents)
}

func (m modelUI) updateTunnelEvent(msg tunnelEvtMsg) (tea.Model, tea.Cmd) {
	if msg.gen != m.gen {
		return m, nil
	}
	if !msg.ok {
		m.tun = nil
		return m, nil
	}

	rearm := waitTunnel(msg.gen, m.tun.Events())
	switch evt := msg.evt.(type) {
	case tunnel.HandleReady:
		// The handle is already held; nothing to do.
	case tunnel.URLReady:
		m.tunnelURL = evt.URL
		m.status = "Tunnel ready. Share this URL with the connecting side."
		m.appendJournal("tunnel", "url-ready", evt.URL)
	case tunnel.OutputLine:
		m.tunnelLines = append(m.tunnelLines, evt.Line)
		if len(m.tunnelLines) > maxTunnelLines {
			m.tunnelLines = m.tunnelLines[len(m.tunnelLines)-maxTunnelLines:]
		}
	case tunnel.ErrorEvent:
		m.status = "Tunnel: " + evt.Message
		m.appendJournal("tunnel", "error", evt.Message)
	case tunnel.Stopped:
		m.appendJournal("tunnel", "stopped", "")
		switch m.screen {
		case screenHosting:
			m.screen = screenModeSelect
			m.status = "Tunnel exited."
		case screenConnecting:
			m.screen = screenError
			m.errMsg = "tunnel exited before the session could start"
		}
	}
	return m, rearm
}

func (m modelUI) updateSessionEvent(msg sessionEvtMsg) (tea.Model, tea.Cmd) {
	if msg.gen != m.gen {
		return m, nil
	}
	if !msg.ok {
		m.sessEvents = nil
		m.conn = nil
		return m, nil
	}

	rearm := waitSession(msg.gen, m.sessEvents)
	switch evt := msg.evt.(type) {
	case rdp.StatusChanged:
		m.status = statusLabel(evt.Status)
	case rdp.Connected:
		m.conn = evt.Conn
		m.screen = screenViewing
		m.status = "Session active. Esc disconnects."
		_ = history.Touch(m.tunnelURL, m.profile)
		m.appendJournal("session", "connected", m.tunnelURL)
	case rdp.Frame:
		m.frameCount++
		m.frameW = evt.Width
		m.frameH = evt.Height
		m.frameAt = time.Now()
	case rdp.ErrorEvent:
		m.appendJournal("session", "error", evt.Message)
		return m.sessionEnded(evt.Message), rearm
	case rdp.Disconnected:
		m.appendJournal("session", "disconnected", "")
		return m.sessionEnded(""), rearm
	}
	return m, rearm
}

// sessionEnded tears the client tunnel down and moves to the error screen
// (when errMsg is set) or back to mode select.
func (m modelUI) sessionEnded(errMsg string) modelUI {
	m.conn = nil
	if m.sessCancel != nil {
		m.sessCancel()
		m.sessCancel = nil
	}
	if m.tun != nil {
		m.tun.Stop()
	}
	m.profile = model.ConnectionProfile{}
	if errMsg != "" {
		m.screen = screenError
		m.errMsg = errMsg
	} else {
		m.screen = screenModeSelect
		m.status = "Session ended."
	}
	return m
}

func (m modelUI) abortToModeSelect(status string) (tea.Model, tea.Cmd) {
	if m.sessCancel != nil {
		m.sessCancel()
		m.sessCancel = nil
	}
	if m.tun != nil {
		m.tun.Stop()
	}
	m.conn = nil
	m.profile = model.ConnectionProfile{}
	m.screen = screenModeSelect
	m.status = status
	return m, nil
}

func (m modelUI) quit() (tea.Model, tea.Cmd) {
	if m.sessCancel != nil {
		m.sessCancel()
	}
	m.mgr.StopAll()
	return m, tea.Quit
}

// forwardKey translates one terminal key press into a scancode press and
// release pair. Terminals report presses only, so each key is released
// immediately; held modifiers cannot be expressed.
func (m modelUI) forwardKey(msg tea.KeyMsg) {
	if m.conn == nil {
		return
	}
	sc, ok := rdp.KeyToScancode(msg.String())
	if !ok {
		return
	}
	m.conn.Send(rdp.KeyPressed{Scancode: sc})
	m.conn.Send(rdp.KeyReleased{Scancode: sc})
}

// forwardMouse maps terminal cell coordinates onto the remote desktop by
// scaling against the negotiated geometry.
func (m modelUI) forwardMouse(msg tea.MouseMsg) {
	if m.conn == nil {
		return
	}
	x, y := m.scaleMouse(msg.X, msg.Y)

	switch msg.Button {
	case tea.MouseButtonWheelUp:
		m.conn.Send(rdp.MouseWheel{Vertical: true, Delta: 120})
		return
	case tea.MouseButtonWheelDown:
		m.conn.Send(rdp.MouseWheel{Vertical: true, Delta: -120})
		return
	case tea.MouseButtonWheelLeft:
		m.conn.Send(rdp.MouseWheel{Vertical: false, Delta: -120})
		return
	case tea.MouseButtonWheelRight:
		m.conn.Send(rdp.MouseWheel{Vertical: false, Delta: 120})
		return
	}

	switch msg.Action {
	case tea.MouseActionMotion:
		m.conn.Send(rdp.MouseMoved{X: x, Y: y})
	case tea.MouseActionPress:
		if btn, ok := mouseButton(msg.Button); ok {
			m.conn.Send(rdp.MouseMoved{X: x, Y: y})
			m.conn.Send(rdp.MouseButtonPressed{Button: btn})
		}
	case tea.MouseActionRelease:
		if btn, ok := mouseButton(msg.Button); ok {
			m.conn.Send(rdp.MouseButtonReleased{Button: btn})
		}
	}
}

func (m modelUI) scaleMouse(col, row int) (int, int) {
	w, h := m.profile.Width, m.profile.Height
	tw, th := m.width, m.height
	if tw <= 0 || th <= 0 || w <= 0 || h <= 0 {
		return col, row
	}
	return col * w / tw, row * h / th
}

func mouseButton(b tea.MouseButton) (protocol.MouseButton, bool) {
	switch b {
	case tea.MouseButtonLeft:
		return protocol.MouseLeft, true
	case tea.MouseButtonMiddle:
		return protocol.MouseMiddle, true
	case tea.MouseButtonRight:
		return protocol.MouseRight, true
	}
	return 0, false
}

func statusLabel(st model.ConnectionStatus) string {
	switch st {
	case model.StatusConnecting:
		return "Connecting..."
	case model.StatusTLSUpgrade:
		return "Upgrading to TLS..."
	case model.StatusAuthenticating:
		return "Authenticating..."
	case model.StatusActive:
		return "Session active."
	}
	return string(st)
}

func (m modelUI) appendJournal(source, eventType, message string) {
	role := ""
	if m.tun != nil {
		role = string(m.tun.Role())
	}
	_ = m.journal.Append(events.Event{
		Timestamp: time.Now(),
		Source:    source,
		Role:      role,
		EventType: eventType,
		Message:   message,
	})
}

func (m modelUI) View() string {
	head := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).Render("Remote Desktop over Cloudflare Tunnel")
	width := m.effectiveWidth()

	var body string
	switch m.screen {
	case screenModeSelect:
		body = m.renderPanel("Mode", m.modeSelectView(), width, lipgloss.Color("39"))
	case screenLogin:
		body = m.form.view(m.renderPanel, width)
	case screenConnecting:
		body = m.renderPanel("Connecting", m.connectingView(), width, lipgloss.Color("69"))
	case screenHosting:
		body = m.renderPanel("Hosting", m.hostingView(), width, lipgloss.Color("63"))
	case screenViewing:
		body = m.renderPanel("Session", m.viewingView(), width, lipgloss.Color("35"))
	case screenError:
		body = m.renderPanel("Error", m.errorView(), width, lipgloss.Color("196"))
	}

	status := m.renderPanel("Status", m.status, width, lipgloss.Color("205"))
	return lipgloss.JoinVertical(lipgloss.Left, head, body, status)
}

func (m modelUI) modeSelectView() string {
	var b strings.Builder
	b.WriteString("What do you want to do?\n\n")

	options := []struct {
		label string
		desc  string
	}{
		{"Host", "Expose this machine's RDP service through a public tunnel URL"},
		{"Connect", "Open a remote desktop session via a tunnel URL"},
	}
	for i, opt := range options {
		cursor := "  "
		if i == m.modeSel {
			cursor = "> "
		}
		b.WriteString(fmt.Sprintf("%s[%s]  %s\n", cursor, opt.label, opt.desc))
	}
	b.WriteString("\nj/k select, Enter confirm (or h / c directly), q quit")
	return b.String()
}

func (m modelUI) connectingView() string {
	var b strings.Builder
	b.WriteString("Target: " + m.tunnelURL + "\n")
	b.WriteString(fmt.Sprintf("Local proxy: localhost:%d\n\n", m.profile.ProxyPort))
	for _, line := range m.tunnelLines {
		b.WriteString("  " + line + "\n")
	}
	b.WriteString("\nEsc cancels")
	return b.String()
}

func (m modelUI) hostingView() string {
	var b strings.Builder
	if m.tunnelURL != "" {
		urlStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("48"))
		b.WriteString("Tunnel URL: " + urlStyle.Render(m.tunnelURL) + "\n\n")
	} else {
		b.WriteString("Waiting for the tunnel URL...\n\n")
	}
	b.WriteString("Broker output:\n")
	if len(m.tunnelLines) == 0 {
		b.WriteString("  (none yet)\n")
	}
	for _, line := range m.tunnelLines {
		b.WriteString("  " + line + "\n")
	}
	b.WriteString("\nq or Esc stops the tunnel")
	return b.String()
}

func (m modelUI) viewingView() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Connected to %s as %s\n\n", m.tunnelURL, m.profile.Username))
	if m.frameCount == 0 {
		b.WriteString("Waiting for the first desktop frame...\n")
	} else {
		b.WriteString(fmt.Sprintf("Desktop: %dx%d\n", m.frameW, m.frameH))
		b.WriteString(fmt.Sprintf("Frames received: %d (last %s ago)\n", m.frameCount, time.Since(m.frameAt).Round(time.Second)))
	}
	b.WriteString("\nKeys and mouse are forwarded to the remote desktop.\n")
	b.WriteString("Esc disconnects")
	return b.String()
}

func (m modelUI) errorView() string {
	var b strings.Builder
	b.WriteString(m.errMsg + "\n")
	b.WriteString("\nEnter or Esc returns to mode select, q quits")
	return b.String()
}

func (m modelUI) effectiveWidth() int {
	if m.width <= 0 {
		return 100
	}
	return m.width
}

func (m modelUI) renderPanel(title, body string, width int, accent lipgloss.Color) string {
	if width < 24 {
		width = 24
	}
	header := lipgloss.NewStyle().Bold(true).Foreground(accent).Render(title)
	content := strings.TrimSuffix(body, "\n")
	panel := strings.TrimSpace(header + "\n" + content)
	return lipgloss.NewStyle().
		Width(width).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accent).
		Padding(0, 1).
		Render(panel)
}

// Run starts the interactive TUI. All managed tunnels are stopped before it
// returns.
func Run() error {
	cfg, err := appconfig.Load()
	if err != nil {
		return err
	}
	if err := tunnel.EnsureBinary(cfg.CloudflaredPath); err != nil {
		return err
	}
	m := initialModel()
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseAllMotion())
	_, err = p.Run()
	m.mgr.StopAll()
	return err
}
