package protocol

import (
	"errors"
	"testing"
)

type stubCodec struct{ name string }

func (s stubCodec) Name() string                     { return s.name }
func (s stubCodec) NewConnector(cfg Config) Connector { return nil }

// The registry is process-global, so each test restores whatever was
// registered before it ran.
func swapRegistered(t *testing.T, c Codec) {
	t.Helper()
	registryMu.Lock()
	prev := registered
	registered = c
	registryMu.Unlock()
	t.Cleanup(func() {
		registryMu.Lock()
		registered = prev
		registryMu.Unlock()
	})
}

func TestActiveWithoutRegistration(t *testing.T) {
	swapRegistered(t, nil)
	if _, err := Active(); !errors.Is(err, ErrNoCodec) {
		t.Fatalf("err = %v, want ErrNoCodec", err)
	}
}

func TestRegisterAndActive(t *testing.T) {
	swapRegistered(t, nil)
	Register(stubCodec{name: "first"})
	got, err := Active()
	if err != nil {
		t.Fatal(err)
	}
	if got.Name() != "first" {
		t.Fatalf("active codec = %s, want first", got.Name())
	}
}

// TestRegisterReplaces pins the replacement behavior tests depend on for
// installing fakes.
func TestRegisterReplaces(t *testing.T) {
	swapRegistered(t, nil)
	Register(stubCodec{name: "first"})
	Register(stubCodec{name: "second"})
	got, err := Active()
	if err != nil {
		t.Fatal(err)
	}
	if got.Name() != "second" {
		t.Fatalf("active codec = %s, want second", got.Name())
	}
}
