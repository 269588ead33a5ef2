package hwdep

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// TascamState decodes the image of status and control info returned by
// the TASCAM_STATE ioctl.
func TascamState(b []byte) ([]uint32, error) {
	if len(b) < TascamStateSize {
		return nil, errors.Wrapf(ErrShortRecord, "tascam state is %d bytes", len(b))
	}

	state := make([]uint32, TascamStateCount)
	for i := range state {
		state[i] = binary.BigEndian.Uint32(b[i*4:])
	}

	return state, nil
}
