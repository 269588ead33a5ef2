package hwdep

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

// EventType is the leading tag of every record read from the character
// device. It is stored in host order.
type EventType uint32

const (
	EventLockStatus            EventType = 0x000010cc
	EventDiceNotification      EventType = 0xd1ce004e
	EventEfwResponse           EventType = 0x4e617475
	EventDigi00xMessage        EventType = 0x746e736c
	EventMotuNotification      EventType = 0x64776479
	EventTascamControl         EventType = 0x7473636d
	EventMotuRegisterDspChange EventType = 0x4d545244
	EventFf400Message          EventType = 0x4f6c6761
)

func (t EventType) String() string {
	switch t {
	case EventLockStatus:
		return "lock-status"
	case EventDiceNotification:
		return "dice-notification"
	case EventEfwResponse:
		return "efw-response"
	case EventDigi00xMessage:
		return "digi00x-message"
	case EventMotuNotification:
		return "motu-notification"
	case EventTascamControl:
		return "tascam-control"
	case EventMotuRegisterDspChange:
		return "motu-register-dsp-change"
	case EventFf400Message:
		return "ff400-message"
	default:
		return fmt.Sprintf("event(%#08x)", uint32(t))
	}
}

const tagSize = 4

// EfwSeqnumMax is the largest sequence number user space may put in an
// EFW request.
const EfwSeqnumMax = uint32(0xffff) - 1

// TypeOf returns the tag of the record at the start of b.
func TypeOf(b []byte) (EventType, error) {
	if len(b) < tagSize {
		return 0, errors.Wrapf(ErrShortRecord, "record is %d bytes", len(b))
	}

	return EventType(binary.NativeEndian.Uint32(b)), nil
}

// LockStatus decodes struct snd_firewire_event_lock_status.
func LockStatus(b []byte) (bool, error) {
	if len(b) < 2*tagSize {
		return false, errors.Wrapf(ErrShortRecord, "lock status is %d bytes", len(b))
	}

	return binary.NativeEndian.Uint32(b[tagSize:]) != 0, nil
}

// Quadlet decodes the single message of a DICE notification, Digi00x
// message or MOTU notification record.
func Quadlet(b []byte) (uint32, error) {
	if len(b) < 2*tagSize {
		return 0, errors.Wrapf(ErrShortRecord, "quadlet notification is %d bytes", len(b))
	}

	return binary.NativeEndian.Uint32(b[tagSize:]), nil
}

// EfwResponse returns the response frames that follow the tag. The frames
// themselves are big endian and parsed by the efw package.
func EfwResponse(b []byte) ([]byte, error) {
	if len(b) < tagSize {
		return nil, errors.Wrapf(ErrShortRecord, "efw response is %d bytes", len(b))
	}

	return b[tagSize:], nil
}

type TimestampedQuadlet struct {
	Message uint32

	// Tstamp holds the low three bits of the second field and the 13 bit
	// cycle field of the IEEE 1394 CYCLE_TIMER register.
	Tstamp uint16
}

// Ff400Messages decodes struct snd_firewire_event_ff400_message. The
// message count is clamped to the number of complete entries in b.
func Ff400Messages(b []byte) ([]TimestampedQuadlet, error) {
	if len(b) < 2*tagSize {
		return nil, errors.Wrapf(ErrShortRecord, "ff400 message is %d bytes", len(b))
	}

	count := int(binary.NativeEndian.Uint32(b[tagSize:]))
	body := b[2*tagSize:]
	count = min(count, len(body)/8)

	msgs := make([]TimestampedQuadlet, count)
	for i := range msgs {
		ent := body[i*8:]
		msgs[i] = TimestampedQuadlet{
			Message: binary.NativeEndian.Uint32(ent),
			Tstamp:  uint16(binary.NativeEndian.Uint32(ent[4:])),
		}
	}

	return msgs, nil
}

type TascamChange struct {
	Index  uint32
	Before uint32
	After  uint32
}

const tascamChangeSize = 12

// TascamChanges decodes struct snd_firewire_event_tascam_control. The
// index is in host order while the values are big endian. A trailing
// partial tuple is ignored.
func TascamChanges(b []byte) ([]TascamChange, error) {
	if len(b) < tagSize {
		return nil, errors.Wrapf(ErrShortRecord, "tascam control is %d bytes", len(b))
	}

	body := b[tagSize:]
	changes := make([]TascamChange, 0, len(body)/tascamChangeSize)

	for len(body) >= tascamChangeSize {
		changes = append(changes, TascamChange{
			Index:  binary.NativeEndian.Uint32(body),
			Before: binary.BigEndian.Uint32(body[4:]),
			After:  binary.BigEndian.Uint32(body[8:]),
		})
		body = body[tascamChangeSize:]
	}

	return changes, nil
}

// MotuRegisterDspChanges decodes struct
// snd_firewire_event_motu_register_dsp_change. Each event packs the
// message type in the top byte, two identifiers in the middle bytes and
// the value in the low byte.
func MotuRegisterDspChanges(b []byte) ([]uint32, error) {
	if len(b) < 2*tagSize {
		return nil, errors.Wrapf(ErrShortRecord, "register dsp change is %d bytes", len(b))
	}

	count := int(binary.NativeEndian.Uint32(b[tagSize:]))
	body := b[2*tagSize:]
	count = min(count, len(body)/4)

	events := make([]uint32, count)
	for i := range events {
		events[i] = binary.NativeEndian.Uint32(body[i*4:])
	}

	return events, nil
}
