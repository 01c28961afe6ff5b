package websocket

import (
	"crypto/rand"
	"io"

	"github.com/rs/zerolog"
)

// Default configuration values.
const (
	// DefaultMaxMessageSize is the default ceiling on the total size of a
	// (possibly reassembled) incoming message, in bytes.
	DefaultMaxMessageSize = 64 << 20 // 64 MiB.

	// DefaultMaxFrameSize is the default ceiling on a single incoming
	// frame's payload length, in bytes. 0 disables the check; a
	// connection-level limit is still enforced via MaxMessageSize.
	DefaultMaxFrameSize = 0

	// DefaultReadBufferCapacity is the default size of the buffered
	// reader wrapped around the transport.
	DefaultReadBufferCapacity = 4096
)

// Config holds the tunable limits and collaborators of a connection. The
// zero value is not ready to use directly; call DefaultConfig to get
// sensible defaults, or adjust the fields it returns.
type Config struct {
	// MaxMessageSize bounds the total payload size accumulated across all
	// fragments of a single (re-)assembled message. Exceeding it closes
	// the connection with CloseMessageTooBig.
	MaxMessageSize int

	// MaxFrameSize bounds a single incoming frame's payload length. Zero
	// means "no per-frame limit beyond MaxMessageSize". Exceeding it is a
	// protocol violation (CloseProtocolError), distinct from
	// MaxMessageSize's CloseMessageTooBig.
	MaxFrameSize int

	// ReadBufferCapacity sizes the buffered reader wrapped around the
	// transport.
	ReadBufferCapacity int

	// RNG is the source of randomness for handshake nonces and frame
	// masks. It's a collaborator rather than a package-level singleton
	// so tests can inject a deterministic source; the default production
	// binding is crypto/rand.
	RNG io.Reader

	// Logger receives Debug-level diagnostic events for the opening
	// handshake's outcome; protocol violations and the closing handshake
	// are not logged. The zero value is a no-op logger.
	Logger zerolog.Logger
}

// DefaultConfig returns a Config with the package defaults: a 64 MiB
// message-size ceiling, no extra per-frame limit, a 4 KiB read buffer,
// crypto/rand as the randomness source, and a no-op logger.
func DefaultConfig() Config {
	return Config{
		MaxMessageSize:     DefaultMaxMessageSize,
		MaxFrameSize:       DefaultMaxFrameSize,
		ReadBufferCapacity: DefaultReadBufferCapacity,
		RNG:                rand.Reader,
		Logger:             zerolog.Nop(),
	}
}

func (c Config) rng() io.Reader {
	if c.RNG != nil {
		return c.RNG
	}
	return rand.Reader
}
