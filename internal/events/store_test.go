package events

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStoreAppendAndRecent(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	s := NewStore()

	base := time.Now().Add(-time.Hour).UTC()
	seed := []Event{
		{Timestamp: base, Source: "tunnel", Role: "host", EventType: "url-ready", Message: "https://a.trycloudflare.com"},
		{Timestamp: base.Add(time.Minute), Source: "session", EventType: "connected"},
		{Timestamp: base.Add(2 * time.Minute), Source: "session", EventType: "disconnected"},
	}
	for _, evt := range seed {
		if err := s.Append(evt); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	all, err := s.Recent(0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 events, got %d", len(all))
	}
	if all[0].EventType != "url-ready" || all[2].EventType != "disconnected" {
		t.Fatalf("unexpected order: %+v", all)
	}

	tail, err := s.Recent(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(tail) != 1 || tail[0].EventType != "disconnected" {
		t.Fatalf("unexpected tail: %+v", tail)
	}
}

func TestStoreRecentMissingJournal(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	s := NewStore()
	got, err := s.Recent(10)
	if err != nil {
		t.Fatalf("recent on missing journal: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no events, got %d", len(got))
	}
}

// TestStoreSkipsCorruptLines simulates a partial trailing line from a
// crashed writer; later reads must skip it and keep the valid records.
func TestStoreSkipsCorruptLines(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	s := NewStore()
	if err := s.Append(Event{Source: "tunnel", EventType: "stopped"}); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(xdg, "remote-desktop-rdp", "events.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(`{"source":"sess`); err != nil {
		t.Fatal(err)
	}
	f.Close()

	got, err := s.Recent(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].EventType != "stopped" {
		t.Fatalf("unexpected events: %+v", got)
	}
}

func TestStoreFillsTimestamp(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	s := NewStore()
	if err := s.Append(Event{Source: "session", EventType: "connected"}); err != nil {
		t.Fatal(err)
	}
	got, err := s.Recent(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Timestamp.IsZero() {
		t.Fatalf("expected filled timestamp: %+v", got)
	}
}
