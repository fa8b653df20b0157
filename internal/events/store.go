// Package events keeps a local journal of session and tunnel lifecycle
// records (events.jsonl) for after-the-fact troubleshooting. Messages are
// lifecycle facts only — never credentials or frame data.
package events

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kaykay0201/remote-desktop-rdp/internal/appconfig"
)

// Event is one lifecycle record persisted as a JSON line.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`         // "session" or "tunnel"
	Role      string    `json:"role,omitempty"` // tunnel role, if any
	EventType string    `json:"event_type"`
	Message   string    `json:"message,omitempty"`
}

// Store provides append/read access to the local event journal.
type Store struct{}

func NewStore() *Store {
	return &Store{}
}

func filePath() (string, error) {
	dir, err := appconfig.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "events.jsonl"), nil
}

// Append writes a single event as one JSON line.
func (s *Store) Append(evt Event) error {
	path, err := filePath()
	if err != nil {
		return err
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// Recent returns the last n events in chronological order. A missing
// journal yields an empty slice.
func (s *Store) Recent(n int) ([]Event, error) {
	path, err := filePath()
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []Event
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var evt Event
		if err := json.Unmarshal(sc.Bytes(), &evt); err != nil {
			// Partial trailing lines from a crashed writer are skipped.
			continue
		}
		out = append(out, evt)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if n > 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out, nil
}
