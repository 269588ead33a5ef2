package fwsnd

import (
	"sync"

	"github.com/lab47/fwsnd/pkg/efw"
)

// Event is a notification fanned out to subscribers of a unit.
type Event interface {
	// Name is a short label used in logs, metrics and NATS subjects.
	Name() string
}

type LockChanged struct {
	Locked bool `cbor:"1,keyasint" json:"locked"`
}

type Disconnected struct{}

// Quadlet carries one message of a DICE notification, a Digi00x message
// or a MOTU notification.
type Quadlet struct {
	Message uint32 `cbor:"1,keyasint" json:"message"`
}

type TimestampedQuadlet struct {
	Message uint32 `cbor:"1,keyasint" json:"message"`
	Tstamp  uint16 `cbor:"2,keyasint" json:"tstamp"`
}

type TascamChange struct {
	Index  uint32 `cbor:"1,keyasint" json:"index"`
	Before uint32 `cbor:"2,keyasint" json:"before"`
	After  uint32 `cbor:"3,keyasint" json:"after"`
}

type MotuRegisterDspChange struct {
	Events []uint32 `cbor:"1,keyasint" json:"events"`
}

// EfwResponse is published for every decoded Fireworks response, whether
// or not a transaction was waiting for it.
type EfwResponse struct {
	Frame efw.Frame `cbor:"1,keyasint" json:"frame"`
}

func (LockChanged) Name() string           { return "lock" }
func (Disconnected) Name() string          { return "disconnected" }
func (Quadlet) Name() string               { return "quadlet" }
func (TimestampedQuadlet) Name() string    { return "timestamped-quadlet" }
func (TascamChange) Name() string          { return "tascam-change" }
func (MotuRegisterDspChange) Name() string { return "motu-register-dsp-change" }
func (EfwResponse) Name() string           { return "efw-response" }

type subscriber struct {
	fn func(Event)
}

// Notifier delivers events synchronously on the publishing goroutine, in
// subscription order. Subscribers must not block.
type Notifier struct {
	mu   sync.Mutex
	subs []*subscriber
}

func (n *Notifier) Subscribe(fn func(Event)) func() {
	s := &subscriber{fn: fn}

	n.mu.Lock()
	n.subs = append(n.subs, s)
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()

		for i, cur := range n.subs {
			if cur == s {
				n.subs = append(n.subs[:i:i], n.subs[i+1:]...)
				return
			}
		}
	}
}

func (n *Notifier) Publish(ev Event) {
	n.mu.Lock()
	subs := n.subs
	n.mu.Unlock()

	eventsPublished.WithLabelValues(ev.Name()).Inc()

	for _, s := range subs {
		s.fn(ev)
	}
}
