package ui

import (
	"strings"
	"testing"

	"github.com/kaykay0201/remote-desktop-rdp/internal/history"
	"github.com/kaykay0201/remote-desktop-rdp/internal/model"
)

func setField(f *loginForm, idx int, value string) {
	f.fields[idx].SetValue(value)
}

func filledForm() *loginForm {
	f := newLoginForm(model.DefaultProxyPort)
	setField(f, fieldTunnelURL, "https://a.trycloudflare.com")
	setField(f, fieldUsername, "admin")
	setField(f, fieldPassword, "secret")
	return f
}

func TestFormBuildResult(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	res, err := filledForm().buildResult()
	if err != nil {
		t.Fatalf("buildResult: %v", err)
	}
	if res.tunnelURL != "https://a.trycloudflare.com" {
		t.Fatalf("tunnelURL = %q", res.tunnelURL)
	}
	p := res.profile
	if p.Hostname != "localhost" {
		t.Fatalf("hostname = %q, want localhost (proxy-only dialing)", p.Hostname)
	}
	if p.Username != "admin" || p.Password != "secret" {
		t.Fatalf("credentials not carried: %+v", p)
	}
	// Empty geometry falls back to defaults.
	if p.Width != model.DefaultWidth || p.Height != model.DefaultHeight {
		t.Fatalf("geometry = %dx%d, want defaults", p.Width, p.Height)
	}
	if p.ProxyPort != model.DefaultProxyPort {
		t.Fatalf("proxy port = %d, want default", p.ProxyPort)
	}
}

func TestFormValidation(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cases := []struct {
		name    string
		mutate  func(*loginForm)
		wantErr string
	}{
		{
			name:    "missing url",
			mutate:  func(f *loginForm) { setField(f, fieldTunnelURL, "") },
			wantErr: "tunnel URL is required",
		},
		{
			name:    "foreign domain",
			mutate:  func(f *loginForm) { setField(f, fieldTunnelURL, "https://example.com") },
			wantErr: "trycloudflare.com",
		},
		{
			name:    "missing username",
			mutate:  func(f *loginForm) { setField(f, fieldUsername, "") },
			wantErr: "username is required",
		},
		{
			name:    "missing password",
			mutate:  func(f *loginForm) { setField(f, fieldPassword, "") },
			wantErr: "password is required",
		},
		{
			name:    "bad width",
			mutate:  func(f *loginForm) { setField(f, fieldWidth, "abc") },
			wantErr: "width",
		},
		{
			name:    "negative height",
			mutate:  func(f *loginForm) { setField(f, fieldHeight, "-1") },
			wantErr: "height",
		},
		{
			name:    "proxy port out of range",
			mutate:  func(f *loginForm) { setField(f, fieldProxyPort, "70000") },
			wantErr: "proxy port",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := filledForm()
			tc.mutate(f)
			_, err := f.buildResult()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

// TestFormPrefillsFromHistory checks that a remembered connection fills
// every field except the password, which must always start empty.
func TestFormPrefillsFromHistory(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	p := model.DefaultProfile()
	p.Hostname = "localhost"
	p.Username = "alice"
	p.Password = "never-stored"
	p.Width = 1280
	p.Height = 720
	if err := history.Touch("https://b.trycloudflare.com", p); err != nil {
		t.Fatal(err)
	}

	f := newLoginForm(model.DefaultProxyPort)
	if got := f.fields[fieldTunnelURL].Value(); got != "https://b.trycloudflare.com" {
		t.Fatalf("url prefill = %q", got)
	}
	if got := f.fields[fieldUsername].Value(); got != "alice" {
		t.Fatalf("username prefill = %q", got)
	}
	if got := f.fields[fieldWidth].Value(); got != "1280" {
		t.Fatalf("width prefill = %q", got)
	}
	if got := f.fields[fieldPassword].Value(); got != "" {
		t.Fatalf("password prefill = %q, must be empty", got)
	}
}
