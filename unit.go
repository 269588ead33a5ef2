package fwsnd

import (
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/lab47/fwsnd/pkg/efw"
	"github.com/lab47/fwsnd/pkg/hwdep"
	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

// Unit is an open HwDep node of one FireWire sound unit.
type Unit struct {
	log  hclog.Logger
	id   ulid.ULID
	opts opts

	notifier Notifier

	mu           sync.Mutex
	path         string
	t            Transport
	info         hwdep.Info
	locked       bool
	disconnected bool
	engine       *efw.Engine
	sources      []*Source
}

func NewUnit(log hclog.Logger, options ...Option) *Unit {
	o := opts{
		open:    OpenDevice,
		timeout: efw.DefaultTimeout,
		quirks:  DefaultQuirks,
		idGen:   newID,
	}

	for _, opt := range options {
		opt(&o)
	}

	u := &Unit{
		id:   o.idGen(),
		opts: o,
	}

	u.log = log.With("unit", u.id.String())

	return u
}

// Open opens the node at path and caches its GET_INFO metadata.
func (u *Unit) Open(path string) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.t != nil {
		return ErrAlreadyOpen
	}

	t, err := u.opts.open(path)
	if err != nil {
		return err
	}

	buf := make([]byte, hwdep.InfoSize)
	if err := t.Ioctl(hwdep.IoctlGetInfo, buf); err != nil {
		return multierr.Append(mapOpenError(ioctlError(hwdep.IoctlGetInfo, err)), t.Close())
	}

	info, err := hwdep.DecodeInfo(buf)
	if err != nil {
		return multierr.Append(err, t.Close())
	}

	u.t = t
	u.path = path
	u.info = info
	u.locked = false
	u.disconnected = false

	unitsOpen.Inc()

	u.log.Debug("opened unit", "path", path, "kind", info.Kind, "card", info.Card,
		"node", info.DeviceName, "guid", info.GUID)

	return nil
}

func mapOpenError(err error) error {
	switch {
	case errors.Is(err, unix.ENODEV):
		return errors.Wrapf(ErrDisconnected, "%s", err)
	case errors.Is(err, unix.EBUSY):
		return errors.Wrapf(ErrBusy, "%s", err)
	default:
		return err
	}
}

// Close closes the sources created from the unit and the node itself.
// Pending transactions fail with ErrNotOpen.
func (u *Unit) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.t == nil {
		return ErrNotOpen
	}

	var err error

	for _, s := range u.sources {
		err = multierr.Append(err, s.close())
	}

	if u.engine != nil {
		u.engine.Abort(ErrNotOpen)
	}

	err = multierr.Append(err, u.t.Close())

	u.t = nil
	u.sources = nil
	u.engine = nil

	unitsOpen.Dec()

	return err
}

func (u *Unit) ID() ulid.ULID {
	return u.id
}

func (u *Unit) Path() string {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.path
}

// Info returns the metadata read when the unit was opened.
func (u *Unit) Info() (hwdep.Info, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.t == nil {
		return hwdep.Info{}, ErrNotOpen
	}

	return u.info, nil
}

func (u *Unit) Locked() bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.locked
}

func (u *Unit) Disconnected() bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.disconnected
}

// Subscribe registers fn for every event the unit publishes.
func (u *Unit) Subscribe(fn func(Event)) func() {
	return u.notifier.Subscribe(fn)
}

func (u *Unit) transport() (Transport, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.t == nil {
		return nil, ErrNotOpen
	}

	return u.t, nil
}

func (u *Unit) ioctl(req uint, arg []byte) error {
	t, err := u.transport()
	if err != nil {
		return err
	}

	if err := t.Ioctl(req, arg); err != nil {
		return ioctlError(req, err)
	}

	return nil
}

// Lock forbids the kernel driver from starting packet streaming.
func (u *Unit) Lock() error {
	err := u.ioctl(hwdep.IoctlLock, nil)
	if err != nil {
		if errors.Is(err, unix.EBUSY) {
			return ErrLocked
		}
		return err
	}

	u.setLocked(true)

	return nil
}

// Unlock releases a lock taken with Lock.
func (u *Unit) Unlock() error {
	err := u.ioctl(hwdep.IoctlUnlock, nil)
	if err != nil {
		if errors.Is(err, unix.EBADFD) {
			return ErrUnlocked
		}
		return err
	}

	u.setLocked(false)

	return nil
}

// probeLocked finds out whether another process holds the lock by taking
// and releasing it.
func (u *Unit) probeLocked() (bool, error) {
	err := u.ioctl(hwdep.IoctlLock, nil)
	if err != nil {
		if errors.Is(err, unix.EBUSY) {
			return true, nil
		}
		return false, err
	}

	if err := u.ioctl(hwdep.IoctlUnlock, nil); err != nil {
		return false, err
	}

	return false, nil
}

func (u *Unit) setLocked(locked bool) {
	u.mu.Lock()
	changed := u.locked != locked
	u.locked = locked
	u.mu.Unlock()

	if changed {
		u.log.Debug("lock state changed", "locked", locked)
		u.notifier.Publish(LockChanged{Locked: locked})
	}
}

// markDisconnected records the disconnect and fails pending transactions.
// It reports whether this call made the transition.
func (u *Unit) markDisconnected() bool {
	u.mu.Lock()
	if u.disconnected {
		u.mu.Unlock()
		return false
	}

	u.disconnected = true
	engine := u.engine
	u.mu.Unlock()

	disconnects.Inc()
	u.log.Warn("unit disconnected")

	if engine != nil {
		engine.Abort(ErrDisconnected)
	}

	u.notifier.Publish(Disconnected{})

	return true
}

// TransmitRequest writes a Fireworks request frame. The frame must be
// written in one piece.
func (u *Unit) TransmitRequest(frame []byte) error {
	t, err := u.transport()
	if err != nil {
		return err
	}

	n, err := t.Write(frame)
	if err != nil {
		return errors.Wrapf(err, "write %d bytes", len(frame))
	}

	if n != len(frame) {
		return errors.Wrapf(efw.StatusCommErr, "wrote %d of %d bytes", n, len(frame))
	}

	return nil
}

func (u *Unit) responseSink() *efw.Engine {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.engine
}

// attachEngine creates the Fireworks transaction engine on first use.
func (u *Unit) attachEngine() *efw.Engine {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.engine != nil {
		return u.engine
	}

	e := efw.NewEngine(u.log.Named("efw"), u, efw.WithTimeout(u.opts.timeout))

	e.OnResponse(func(f efw.Frame) {
		u.notifier.Publish(EfwResponse{Frame: f})
	})

	if u.disconnected {
		e.Abort(ErrDisconnected)
	}

	u.engine = e

	return e
}
