package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/kaykay0201/remote-desktop-rdp/internal/history"
	"github.com/kaykay0201/remote-desktop-rdp/internal/model"
	"github.com/kaykay0201/remote-desktop-rdp/internal/tunnel"
	"github.com/kaykay0201/remote-desktop-rdp/internal/util"
)

// Field indices for the login form.
const (
	fieldTunnelURL = iota
	fieldUsername
	fieldPassword
	fieldWidth
	fieldHeight
	fieldProxyPort
	fieldCount
)

// loginResult is returned when the user submits a valid form.
type loginResult struct {
	tunnelURL string
	profile   model.ConnectionProfile
}

// loginForm holds all state for the connection login screen.
type loginForm struct {
	fields   []textinput.Model
	focusIdx int
	errMsg   string
}

// newLoginForm creates the login form, prefilled from the most recent
// successful connection when one is on record. The password field always
// starts empty.
func newLoginForm(defaultProxyPort int) *loginForm {
	f := &loginForm{}

	placeholders := []string{
		"https://xyz.trycloudflare.com (required)",
		"Administrator (required)",
		"(required, never saved)",
		strconv.Itoa(model.DefaultWidth),
		strconv.Itoa(model.DefaultHeight),
		strconv.Itoa(defaultProxyPort),
	}
	limits := []int{256, 64, 128, 6, 6, 6}

	f.fields = make([]textinput.Model, fieldCount)
	for i := range f.fields {
		ti := textinput.New()
		ti.Placeholder = placeholders[i]
		ti.CharLimit = limits[i]
		ti.Width = 44
		f.fields[i] = ti
	}
	f.fields[fieldPassword].EchoMode = textinput.EchoPassword
	f.fields[fieldPassword].EchoCharacter = '*'

	if last, ok := history.MostRecent(); ok {
		f.fields[fieldTunnelURL].SetValue(last.TunnelURL)
		f.fields[fieldUsername].SetValue(last.Username)
		f.fields[fieldWidth].SetValue(strconv.Itoa(last.Width))
		f.fields[fieldHeight].SetValue(strconv.Itoa(last.Height))
		f.fields[fieldProxyPort].SetValue(strconv.Itoa(last.ProxyPort))
	}

	f.fields[0].Focus()
	return f
}

// update processes a key message and returns a loginResult on submit.
func (f *loginForm) update(msg tea.KeyMsg) (*loginResult, tea.Cmd) {
	switch msg.String() {
	case "tab", "shift+tab", "down", "up":
		f.fields[f.focusIdx].Blur()
		if msg.String() == "tab" || msg.String() == "down" {
			f.focusIdx = (f.focusIdx + 1) % fieldCount
		} else {
			f.focusIdx = (f.focusIdx - 1 + fieldCount) % fieldCount
		}
		f.fields[f.focusIdx].Focus()
		return nil, f.fields[f.focusIdx].Cursor.BlinkCmd()
	case "enter":
		res, err := f.buildResult()
		if err != nil {
			f.errMsg = err.Error()
			return nil, nil
		}
		return res, nil
	default:
		var cmd tea.Cmd
		f.fields[f.focusIdx], cmd = f.fields[f.focusIdx].Update(msg)
		f.errMsg = ""
		return nil, cmd
	}
}

// buildResult validates the form and assembles the tunnel URL plus the
// connection profile. The profile's hostname is the loopback proxy endpoint:
// the remote host is only ever reached through the local cloudflared access
// process, never dialed directly.
func (f *loginForm) buildResult() (*loginResult, error) {
	tunnelURL := strings.TrimSpace(f.fields[fieldTunnelURL].Value())
	username := strings.TrimSpace(f.fields[fieldUsername].Value())
	password := f.fields[fieldPassword].Value()

	if tunnelURL == "" {
		return nil, fmt.Errorf("tunnel URL is required")
	}
	if !strings.Contains(tunnelURL, tunnel.TunnelDomainSuffix) {
		return nil, fmt.Errorf("tunnel URL must be a %s address", tunnel.TunnelDomainSuffix)
	}
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if password == "" {
		return nil, fmt.Errorf("password is required")
	}

	width, err := intField(f.fields[fieldWidth].Value(), model.DefaultWidth)
	if err != nil || width <= 0 {
		return nil, fmt.Errorf("width must be a positive number")
	}
	height, err := intField(f.fields[fieldHeight].Value(), model.DefaultHeight)
	if err != nil || height <= 0 {
		return nil, fmt.Errorf("height must be a positive number")
	}
	proxyPort, err := intField(f.fields[fieldProxyPort].Value(), model.DefaultProxyPort)
	if err != nil {
		return nil, fmt.Errorf("proxy port must be a number")
	}
	if perr := util.ValidatePort(proxyPort); perr != nil {
		return nil, fmt.Errorf("invalid proxy port: %v", perr)
	}

	profile := model.ConnectionProfile{
		Hostname:  "localhost",
		Port:      model.DefaultRDPPort,
		Username:  username,
		Password:  password,
		Width:     width,
		Height:    height,
		ProxyPort: proxyPort,
	}
	if verr := profile.Validate(); verr != nil {
		return nil, verr
	}
	return &loginResult{tunnelURL: tunnelURL, profile: profile}, nil
}

func intField(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

// view renders the login panel.
func (f *loginForm) view(renderPanel func(string, string, int, lipgloss.Color) string, width int) string {
	labels := []string{"Tunnel URL:", "Username:", "Password:", "Width:", "Height:", "Proxy port:"}

	var b strings.Builder
	for i, label := range labels {
		cursor := "  "
		if i == f.focusIdx {
			cursor = "> "
		}
		b.WriteString(fmt.Sprintf("%s%-12s %s\n", cursor, label, f.fields[i].View()))
	}

	if f.errMsg != "" {
		errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
		b.WriteString("\n" + errStyle.Render("Error: "+f.errMsg) + "\n")
	}

	b.WriteString("\nTab/Shift-Tab navigate | Enter connect | Esc back")
	return renderPanel("Connect to Remote Desktop", b.String(), width, lipgloss.Color("214"))
}
