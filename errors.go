package fwsnd

import (
	"github.com/lab47/fwsnd/pkg/efw"
	"github.com/pkg/errors"
)

var (
	ErrNotOpen         = errors.New("unit is not open")
	ErrAlreadyOpen     = errors.New("unit is already open")
	ErrBusy            = errors.New("device is used by another process")
	ErrLocked          = errors.New("packet streaming is already locked")
	ErrUnlocked        = errors.New("packet streaming is not locked")
	ErrWrongDeviceKind = errors.New("unit is of another device kind")

	// ErrDisconnected is shared with the transaction engine so a
	// disconnect seen by either layer matches with errors.Is.
	ErrDisconnected = efw.ErrDisconnected
)
