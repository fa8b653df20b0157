// Package history remembers recent connection targets so the login form can
// prefill them. Passwords are never part of an entry and never reach disk.
package history

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/kaykay0201/remote-desktop-rdp/internal/appconfig"
	"github.com/kaykay0201/remote-desktop-rdp/internal/model"
)

// Entry is one remembered connection target.
type Entry struct {
	TunnelURL string `json:"tunnel_url"`
	Username  string `json:"username"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	ProxyPort int    `json:"proxy_port"`
	LastUsed  int64  `json:"last_used"`
}

type store struct {
	Entries []Entry `json:"entries"`
}

func filePath() (string, error) {
	dir, err := appconfig.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.json"), nil
}

// Touch records a successful connection to the given tunnel URL with the
// profile's non-secret fields. Re-touching an existing URL refreshes its
// timestamp and details.
func Touch(tunnelURL string, profile model.ConnectionProfile) error {
	st, err := load()
	if err != nil {
		return err
	}
	entry := Entry{
		TunnelURL: tunnelURL,
		Username:  profile.Username,
		Width:     profile.Width,
		Height:    profile.Height,
		ProxyPort: profile.ProxyPort,
		LastUsed:  time.Now().Unix(),
	}
	replaced := false
	for i := range st.Entries {
		if st.Entries[i].TunnelURL == tunnelURL {
			st.Entries[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		st.Entries = append(st.Entries, entry)
	}
	return save(st)
}

// Recent returns entries sorted by last use (most recent first), bounded by
// limit (0 = no bound).
func Recent(limit int) ([]Entry, error) {
	st, err := load()
	if err != nil {
		return nil, err
	}
	out := append([]Entry(nil), st.Entries...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastUsed != out[j].LastUsed {
			return out[i].LastUsed > out[j].LastUsed
		}
		return out[i].TunnelURL < out[j].TunnelURL
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MostRecent returns the latest entry, if any.
func MostRecent() (Entry, bool) {
	entries, err := Recent(1)
	if err != nil || len(entries) == 0 {
		return Entry{}, false
	}
	return entries[0], true
}

func load() (store, error) {
	path, err := filePath()
	if err != nil {
		return store{}, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return store{}, nil
		}
		return store{}, err
	}
	var st store
	if err := json.Unmarshal(b, &st); err != nil {
		return store{}, err
	}
	return st, nil
}

func save(st store) error {
	path, err := filePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}
