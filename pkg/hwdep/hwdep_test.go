package hwdep

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func record(typ EventType, words ...uint32) []byte {
	b := binary.NativeEndian.AppendUint32(nil, uint32(typ))
	for _, w := range words {
		b = binary.NativeEndian.AppendUint32(b, w)
	}
	return b
}

func TestIoctlNumbers(t *testing.T) {
	r := require.New(t)

	r.Equal(uint(0x802048f8), IoctlGetInfo)
	r.Equal(uint(0x48f9), IoctlLock)
	r.Equal(uint(0x48fa), IoctlUnlock)
	r.Equal(uint(0x810048fb), IoctlTascamState)
	r.Equal(uint(0x803048fc), IoctlMotuRegisterDspMeter)
	r.Equal(uint(0x864048fd), IoctlMotuCommandDspMeter)
	r.Equal(uint(0x820048fe), IoctlMotuRegisterDspParameter)
	r.Equal("SNDRV_FIREWIRE_IOCTL_LOCK", IoctlName(IoctlLock))
}

func TestInfo(t *testing.T) {
	t.Run("decodes what the kernel writes", func(t *testing.T) {
		r := require.New(t)

		in := Info{
			Kind:       KindFireworks,
			Card:       3,
			GUID:       0x0014860a5b6bb8e2,
			DeviceName: "fw1",
		}

		out, err := DecodeInfo(EncodeInfo(in))
		r.NoError(err)
		r.Equal(in, out)
	})

	t.Run("rejects short blobs", func(t *testing.T) {
		r := require.New(t)

		_, err := DecodeInfo(make([]byte, 8))
		r.True(errors.Is(err, ErrShortRecord))
	})
}

func TestKind(t *testing.T) {
	r := require.New(t)

	k, err := ParseKind("Fireworks")
	r.NoError(err)
	r.Equal(KindFireworks, k)
	r.True(k.Valid())

	_, err = ParseKind("usb")
	r.ErrorIs(err, ErrUnknownKind)
	r.Contains(err.Error(), `"usb"`)

	r.False(Kind(42).Valid())
	r.Equal("kind(42)", Kind(42).String())
}

func TestEvents(t *testing.T) {
	t.Run("classifies by leading tag", func(t *testing.T) {
		r := require.New(t)

		typ, err := TypeOf(record(EventTascamControl))
		r.NoError(err)
		r.Equal(EventTascamControl, typ)

		_, err = TypeOf([]byte{1, 2})
		r.True(errors.Is(err, ErrShortRecord))
	})

	t.Run("lock status and quadlets", func(t *testing.T) {
		r := require.New(t)

		locked, err := LockStatus(record(EventLockStatus, 1))
		r.NoError(err)
		r.True(locked)

		msg, err := Quadlet(record(EventDiceNotification, 0xdeadbeef))
		r.NoError(err)
		r.Equal(uint32(0xdeadbeef), msg)

		_, err = Quadlet(record(EventMotuNotification))
		r.Error(err)
	})

	t.Run("ff400 messages clamp to bytes read", func(t *testing.T) {
		r := require.New(t)

		b := record(EventFf400Message, 3, 0x11, 0x12345, 0x22, 0x0002)

		msgs, err := Ff400Messages(b)
		r.NoError(err)
		r.Equal([]TimestampedQuadlet{
			{Message: 0x11, Tstamp: 0x2345},
			{Message: 0x22, Tstamp: 0x0002},
		}, msgs)
	})

	t.Run("tascam changes mix host and big endian", func(t *testing.T) {
		r := require.New(t)

		b := record(EventTascamControl)
		b = binary.NativeEndian.AppendUint32(b, 7)
		b = binary.BigEndian.AppendUint32(b, 0x10)
		b = binary.BigEndian.AppendUint32(b, 0x20)
		b = append(b, 0xff, 0xff)

		changes, err := TascamChanges(b)
		r.NoError(err)
		r.Equal([]TascamChange{{Index: 7, Before: 0x10, After: 0x20}}, changes)
	})

	t.Run("register dsp changes clamp count", func(t *testing.T) {
		r := require.New(t)

		events, err := MotuRegisterDspChanges(record(EventMotuRegisterDspChange, 10, 0x01020304))
		r.NoError(err)
		r.Equal([]uint32{0x01020304}, events)
	})

	t.Run("efw response strips the tag", func(t *testing.T) {
		r := require.New(t)

		payload, err := EfwResponse(record(EventEfwResponse, 6))
		r.NoError(err)
		r.Len(payload, 4)
	})
}

func TestMotuRegisterDspParameter(t *testing.T) {
	r := require.New(t)

	raw := make([]byte, MotuRegisterDspParameterSize)
	for i := range raw {
		raw[i] = byte(i)
	}

	p, err := NewMotuRegisterDspParameter(raw)
	r.NoError(err)

	gain, err := p.MixerSourceGain(1)
	r.NoError(err)
	r.Len(gain, MotuRegisterDspMixerSourceCount)
	r.Equal(byte(100), gain[0])

	width, err := p.MixerSourcePairedWidth(3)
	r.NoError(err)
	r.Equal(byte((3*100+80)&0xff), width[0])

	_, err = p.MixerSourcePan(4)
	r.True(errors.Is(err, ErrOutOfRange))

	r.Equal([]byte{144, 145, 146, 147}, p.MixerOutputPairedVolume())
	r.Equal(uint8(408&0xff), p.MainOutputPairedVolume())
	r.Equal(uint8(410&0xff), p.HeadphoneOutputPairedAssignment())
	r.Equal(uint8(416&0xff), p.LineInputBoostFlag())
	r.Len(p.InputGainAndInvert(), MotuRegisterDspInputCount)
	r.Equal(uint8(436&0xff), p.InputFlag()[0])

	_, err = NewMotuRegisterDspParameter(raw[:100])
	r.Error(err)
}

func TestMeters(t *testing.T) {
	r := require.New(t)

	b := make([]byte, MotuCommandDspMeterSize)
	binary.NativeEndian.PutUint32(b[4:], math.Float32bits(0.5))

	meter, err := MotuCommandDspMeter(b)
	r.NoError(err)
	r.Len(meter, MotuCommandDspMeterCount)
	r.Equal(float32(0.5), meter[1])

	s := make([]byte, TascamStateSize)
	binary.BigEndian.PutUint32(s[8:], 0xcafe)

	state, err := TascamState(s)
	r.NoError(err)
	r.Equal(uint32(0xcafe), state[2])
}
