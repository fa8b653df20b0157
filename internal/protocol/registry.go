package protocol

import (
	"errors"
	"sync"
)

// Codec is the factory a protocol library registers. One codec serves the
// whole process.
type Codec interface {
	// Name identifies the implementation in diagnostics.
	Name() string
	// NewConnector returns a fresh single-use connector for one session.
	NewConnector(cfg Config) Connector
}

// ErrNoCodec is returned by Active when no protocol codec has been linked
// into the binary.
var ErrNoCodec = errors.New("no RDP protocol codec registered")

var (
	registryMu sync.RWMutex
	registered Codec
)

// Register installs the codec used for all new sessions. Codec integrations
// call this from an init function. A second registration replaces the
// first; tests rely on that to install fakes.
func Register(c Codec) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registered = c
}

// Active returns the registered codec, or ErrNoCodec.
func Active() (Codec, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if registered == nil {
		return nil, ErrNoCodec
	}
	return registered, nil
}
