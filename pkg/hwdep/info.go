package hwdep

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

var ErrShortRecord = errors.New("record shorter than its fixed layout")

// Info is the decoded form of struct snd_firewire_get_info.
type Info struct {
	Kind       Kind
	Card       uint32
	GUID       uint64
	DeviceName string
}

// DecodeInfo parses the 32 byte GET_INFO blob. The type and card fields
// are in host order, the GUID is big endian and the device name is a
// NUL terminated string of at most 16 bytes.
func DecodeInfo(b []byte) (Info, error) {
	if len(b) < InfoSize {
		return Info{}, errors.Wrapf(ErrShortRecord, "info is %d bytes", len(b))
	}

	name := b[16:32]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}

	return Info{
		Kind:       Kind(int32(binary.NativeEndian.Uint32(b[0:]))),
		Card:       binary.NativeEndian.Uint32(b[4:]),
		GUID:       binary.BigEndian.Uint64(b[8:]),
		DeviceName: string(name),
	}, nil
}

// EncodeInfo is the inverse of DecodeInfo, used to stand in for the kernel.
func EncodeInfo(info Info) []byte {
	b := make([]byte, InfoSize)
	binary.NativeEndian.PutUint32(b[0:], uint32(info.Kind))
	binary.NativeEndian.PutUint32(b[4:], info.Card)
	binary.BigEndian.PutUint64(b[8:], info.GUID)
	copy(b[16:31], info.DeviceName)
	return b
}

func (i Info) String() string {
	return fmt.Sprintf("%s card=%d node=%s guid=%016x", i.Kind, i.Card, i.DeviceName, i.GUID)
}
