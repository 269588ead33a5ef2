package fwsnd

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Quirks adjusts for known kernel driver behaviors.
type Quirks struct {
	// EfwResponseShortfall is added to the length of every EFW response
	// record before it is decoded. The driver reports 4 bytes fewer than
	// it copies.
	EfwResponseShortfall int
}

var DefaultQuirks = Quirks{
	EfwResponseShortfall: 4,
}

type opts struct {
	open    func(path string) (Transport, error)
	timeout time.Duration
	quirks  Quirks
	idGen   func() ulid.ULID
}

type Option func(o *opts)

// WithOpener replaces OpenDevice, mostly for tests.
func WithOpener(f func(path string) (Transport, error)) Option {
	return func(o *opts) {
		o.open = f
	}
}

// WithTimeout sets the default Fireworks transaction timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *opts) {
		o.timeout = d
	}
}

func WithQuirks(q Quirks) Option {
	return func(o *opts) {
		o.quirks = q
	}
}

func WithIDGen(f func() ulid.ULID) Option {
	return func(o *opts) {
		o.idGen = f
	}
}
