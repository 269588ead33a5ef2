package fwsnd

import (
	"context"
	"time"

	"github.com/lab47/fwsnd/pkg/efw"
	"github.com/lab47/fwsnd/pkg/hwdep"
	"github.com/pkg/errors"
)

func requireKind(u *Unit, kind hwdep.Kind) error {
	info, err := u.Info()
	if err != nil {
		return err
	}

	if info.Kind != kind {
		return errors.Wrapf(ErrWrongDeviceKind, "want %s, unit is %s", kind, info.Kind)
	}

	return nil
}

// Fireworks runs Echo Audio Fireworks transactions on a unit. Responses
// arrive through the unit's Source, which must be running.
type Fireworks struct {
	u *Unit
	e *efw.Engine
}

func NewFireworks(u *Unit) (*Fireworks, error) {
	if err := requireKind(u, hwdep.KindFireworks); err != nil {
		return nil, err
	}

	return &Fireworks{u: u, e: u.attachEngine()}, nil
}

// Transact sends a command and waits for its response, copying the
// response parameters into params. A zero timeout uses the unit default.
func (f *Fireworks) Transact(ctx context.Context, category, command uint32, args, params []uint32, timeout time.Duration) (int, error) {
	return f.e.Transact(ctx, category, command, args, params, timeout)
}

// Request sends a command without waiting. The response is published as
// an EfwResponse event carrying the returned sequence number.
func (f *Fireworks) Request(category, command uint32, args []uint32) (uint32, error) {
	return f.e.Request(category, command, args)
}

func (f *Fireworks) Engine() *efw.Engine {
	return f.e
}

// Motu exposes the MOTU specific ioctls and notifications.
type Motu struct {
	u *Unit
}

func NewMotu(u *Unit) (*Motu, error) {
	if err := requireKind(u, hwdep.KindMotu); err != nil {
		return nil, err
	}

	return &Motu{u: u}, nil
}

func (m *Motu) ReadRegisterDspParameter() (*hwdep.MotuRegisterDspParameter, error) {
	buf := make([]byte, hwdep.MotuRegisterDspParameterSize)
	if err := m.u.ioctl(hwdep.IoctlMotuRegisterDspParameter, buf); err != nil {
		return nil, err
	}

	return hwdep.NewMotuRegisterDspParameter(buf)
}

// ReadByteMeter returns the meter image of register DSP models.
func (m *Motu) ReadByteMeter() ([]byte, error) {
	buf := make([]byte, hwdep.MotuRegisterDspMeterCount)
	if err := m.u.ioctl(hwdep.IoctlMotuRegisterDspMeter, buf); err != nil {
		return nil, err
	}

	return buf, nil
}

// ReadFloatMeter returns the meter image of command DSP models.
func (m *Motu) ReadFloatMeter() ([]float32, error) {
	buf := make([]byte, hwdep.MotuCommandDspMeterSize)
	if err := m.u.ioctl(hwdep.IoctlMotuCommandDspMeter, buf); err != nil {
		return nil, err
	}

	return hwdep.MotuCommandDspMeter(buf)
}

func (m *Motu) OnNotification(fn func(message uint32)) func() {
	return m.u.Subscribe(func(ev Event) {
		if q, ok := ev.(Quadlet); ok {
			fn(q.Message)
		}
	})
}

func (m *Motu) OnRegisterDspChange(fn func(events []uint32)) func() {
	return m.u.Subscribe(func(ev Event) {
		if c, ok := ev.(MotuRegisterDspChange); ok {
			fn(c.Events)
		}
	})
}

type Tascam struct {
	u *Unit
}

func NewTascam(u *Unit) (*Tascam, error) {
	if err := requireKind(u, hwdep.KindTascam); err != nil {
		return nil, err
	}

	return &Tascam{u: u}, nil
}

// ReadState returns the image of the 64 control registers.
func (t *Tascam) ReadState() ([]uint32, error) {
	buf := make([]byte, hwdep.TascamStateSize)
	if err := t.u.ioctl(hwdep.IoctlTascamState, buf); err != nil {
		return nil, err
	}

	return hwdep.TascamState(buf)
}

func (t *Tascam) OnControl(fn func(TascamChange)) func() {
	return t.u.Subscribe(func(ev Event) {
		if c, ok := ev.(TascamChange); ok {
			fn(c)
		}
	})
}

type Dice struct {
	u *Unit
}

func NewDice(u *Unit) (*Dice, error) {
	if err := requireKind(u, hwdep.KindDice); err != nil {
		return nil, err
	}

	return &Dice{u: u}, nil
}

func (d *Dice) OnNotification(fn func(message uint32)) func() {
	return d.u.Subscribe(func(ev Event) {
		if q, ok := ev.(Quadlet); ok {
			fn(q.Message)
		}
	})
}

type Digi00x struct {
	u *Unit
}

func NewDigi00x(u *Unit) (*Digi00x, error) {
	if err := requireKind(u, hwdep.KindDigi00x); err != nil {
		return nil, err
	}

	return &Digi00x{u: u}, nil
}

func (d *Digi00x) OnMessage(fn func(message uint32)) func() {
	return d.u.Subscribe(func(ev Event) {
		if q, ok := ev.(Quadlet); ok {
			fn(q.Message)
		}
	})
}

// Fireface covers the RME Fireface 400 message stream.
type Fireface struct {
	u *Unit
}

func NewFireface(u *Unit) (*Fireface, error) {
	if err := requireKind(u, hwdep.KindFireface); err != nil {
		return nil, err
	}

	return &Fireface{u: u}, nil
}

func (f *Fireface) OnMessage(fn func(TimestampedQuadlet)) func() {
	return f.u.Subscribe(func(ev Event) {
		if m, ok := ev.(TimestampedQuadlet); ok {
			fn(m)
		}
	})
}
