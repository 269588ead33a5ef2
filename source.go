package fwsnd

import (
	"context"
	"encoding/hex"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"
	"github.com/lab47/fwsnd/pkg/hwdep"
	"github.com/lab47/mode"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Condition is what the poller saw on the device fd.
type Condition uint8

const (
	CondReadable Condition = 1 << iota
	CondError
)

type SourceState int32

const (
	StateIdle SourceState = iota
	StateArmed
	StateReadable
	StateErrorSignaled
	StateTerminated
)

func (s SourceState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateReadable:
		return "readable"
	case StateErrorSignaled:
		return "error-signaled"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Source reads event records from a unit and dispatches them. Dispatch
// must only be called from one goroutine at a time.
type Source struct {
	u   *Unit
	log hclog.Logger
	buf []byte

	state atomic.Int32

	mu  sync.Mutex
	p   *poller
	err error
}

// NewSource creates the event source of the unit. The current lock state
// is probed so subscribers start from the right value.
func (u *Unit) NewSource() (*Source, error) {
	if _, err := u.transport(); err != nil {
		return nil, err
	}

	locked, err := u.probeLocked()
	if err != nil {
		return nil, err
	}

	u.setLocked(locked)

	s := &Source{
		u:   u,
		log: u.log.Named("source"),
		buf: make([]byte, unix.Getpagesize()),
	}

	s.state.Store(int32(StateArmed))

	u.mu.Lock()
	u.sources = append(u.sources, s)
	u.mu.Unlock()

	return s, nil
}

func (s *Source) State() SourceState {
	return SourceState(s.state.Load())
}

// setState moves to st unless the source is already terminated. It
// reports whether the source is in st afterwards.
func (s *Source) setState(st SourceState) bool {
	for {
		cur := s.state.Load()
		if SourceState(cur) == StateTerminated {
			return st == StateTerminated
		}

		if s.state.CompareAndSwap(cur, int32(st)) {
			return true
		}
	}
}

// Err returns the read error that terminated the source, if any.
func (s *Source) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.err
}

// Dispatch handles one wakeup. It returns false once the source is
// terminated and should no longer be polled.
func (s *Source) Dispatch(cond Condition) bool {
	if s.State() == StateTerminated {
		return false
	}

	if cond&CondError != 0 {
		if !s.setState(StateErrorSignaled) {
			return false
		}
		s.u.markDisconnected()
		s.setState(StateTerminated)
		return false
	}

	if cond&CondReadable == 0 {
		return true
	}

	if !s.setState(StateReadable) {
		return false
	}

	t, err := s.u.transport()
	if err != nil {
		s.terminate(err)
		return false
	}

	n, err := t.Read(s.buf)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return s.setState(StateArmed)
		}

		s.terminate(errors.Wrapf(err, "read"))
		return false
	}

	if n == 0 {
		s.terminate(nil)
		return false
	}

	recordsRead.Inc()
	bytesRead.Add(float64(n))

	if mode.Debug() {
		s.log.Trace("read record", "record", hex.EncodeToString(s.buf[:n]))
	}

	s.handle(n)

	// A subscriber may have closed the unit while handling the record.
	return s.setState(StateArmed)
}

func (s *Source) terminate(err error) {
	if err != nil {
		s.log.Error("event source terminated", "error", err)
	} else {
		s.log.Debug("event source reached end of file")
	}

	s.mu.Lock()
	s.err = err
	s.mu.Unlock()

	s.setState(StateTerminated)
}

func (s *Source) handle(n int) {
	rec := s.buf[:n]
	u := s.u

	typ, err := hwdep.TypeOf(rec)
	if err != nil {
		recordsDropped.Inc()
		s.log.Warn("dropping short record", "length", n)
		return
	}

	switch typ {
	case hwdep.EventLockStatus:
		locked, err := hwdep.LockStatus(rec)
		if err != nil {
			s.drop(typ, err)
			return
		}
		u.setLocked(locked)

	case hwdep.EventEfwResponse:
		// The driver reports fewer bytes than it copied into the buffer.
		end := min(n+u.opts.quirks.EfwResponseShortfall, len(s.buf))

		body, err := hwdep.EfwResponse(s.buf[:end])
		if err != nil {
			s.drop(typ, err)
			return
		}

		if e := u.responseSink(); e != nil {
			e.DeliverResponses(body)
		}

	case hwdep.EventDiceNotification, hwdep.EventDigi00xMessage, hwdep.EventMotuNotification:
		msg, err := hwdep.Quadlet(rec)
		if err != nil {
			s.drop(typ, err)
			return
		}
		u.notifier.Publish(Quadlet{Message: msg})

	case hwdep.EventFf400Message:
		msgs, err := hwdep.Ff400Messages(rec)
		if err != nil {
			s.drop(typ, err)
			return
		}
		for _, m := range msgs {
			u.notifier.Publish(TimestampedQuadlet{Message: m.Message, Tstamp: m.Tstamp})
		}

	case hwdep.EventTascamControl:
		changes, err := hwdep.TascamChanges(rec)
		if err != nil {
			s.drop(typ, err)
			return
		}
		for _, c := range changes {
			u.notifier.Publish(TascamChange{Index: c.Index, Before: c.Before, After: c.After})
		}

	case hwdep.EventMotuRegisterDspChange:
		events, err := hwdep.MotuRegisterDspChanges(rec)
		if err != nil {
			s.drop(typ, err)
			return
		}
		u.notifier.Publish(MotuRegisterDspChange{Events: events})

	default:
		recordsDropped.Inc()
		s.log.Trace("dropping record of unknown type", "type", typ)
	}
}

func (s *Source) drop(typ hwdep.EventType, err error) {
	recordsDropped.Inc()
	s.log.Warn("dropping malformed record", "type", typ, "error", err)
}

// Run polls the unit and dispatches until ctx is done or the source
// terminates. It returns nil on cancellation or disconnect and the read
// error otherwise.
func (s *Source) Run(ctx context.Context) error {
	t, err := s.u.transport()
	if err != nil {
		return err
	}

	p, err := newPoller(t.Fd())
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.p = p
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.p = nil

		if err := p.close(); err != nil {
			s.log.Error("error closing poller", "error", err)
		}
	}()

	stop := context.AfterFunc(ctx, func() {
		s.wake()
	})
	defer stop()

	for {
		if ctx.Err() != nil {
			return nil
		}

		cond, err := p.wait()
		if err != nil {
			return err
		}

		if cond == 0 {
			if s.State() == StateTerminated {
				return nil
			}
			continue
		}

		if !s.Dispatch(cond) {
			return s.Err()
		}
	}
}

func (s *Source) wake() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.p == nil {
		return nil
	}

	return s.p.wake()
}

// close terminates the source and wakes a running poll loop so Run
// returns.
func (s *Source) close() error {
	s.setState(StateTerminated)
	return s.wake()
}
