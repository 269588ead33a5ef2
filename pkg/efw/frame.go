package efw

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

const (
	// Version is the protocol version put in requests.
	Version = 1

	HeaderQuadlets = 6
	HeaderSize     = HeaderQuadlets * 4

	MaxFrameSize = 0x200
	MaxParams    = MaxFrameSize/4 - HeaderQuadlets
)

var (
	ErrFrameTooLarge  = errors.New("frame exceeds maximum size")
	ErrMalformedFrame = errors.New("malformed response frame")
)

// Frame is one request or response of the Fireworks protocol.
type Frame struct {
	Version  uint32
	Seqnum   uint32
	Category uint32
	Command  uint32
	Status   Status
	Params   []uint32
}

// EncodeRequest builds a request frame. The status field carries
// StatusInvalid, as the device fills it in the response.
func EncodeRequest(seqnum, category, command uint32, args []uint32) ([]byte, error) {
	if len(args) > MaxParams {
		return nil, errors.Wrapf(ErrFrameTooLarge, "%d arguments", len(args))
	}

	quads := HeaderQuadlets + len(args)
	b := make([]byte, quads*4)

	binary.BigEndian.PutUint32(b[0:], uint32(quads))
	binary.BigEndian.PutUint32(b[4:], Version)
	binary.BigEndian.PutUint32(b[8:], seqnum)
	binary.BigEndian.PutUint32(b[12:], category)
	binary.BigEndian.PutUint32(b[16:], command)
	binary.BigEndian.PutUint32(b[20:], uint32(StatusInvalid))

	for i, arg := range args {
		binary.BigEndian.PutUint32(b[HeaderSize+i*4:], arg)
	}

	return b, nil
}

// EncodeResponse builds a frame as the device would send it.
func EncodeResponse(f Frame) ([]byte, error) {
	if len(f.Params) > MaxParams {
		return nil, errors.Wrapf(ErrFrameTooLarge, "%d parameters", len(f.Params))
	}

	version := f.Version
	if version == 0 {
		version = Version
	}

	b, _ := EncodeRequest(f.Seqnum, f.Category, f.Command, f.Params)
	binary.BigEndian.PutUint32(b[4:], version)
	binary.BigEndian.PutUint32(b[20:], uint32(f.Status))

	return b, nil
}

func setSeqnum(frame []byte, seqnum uint32) {
	binary.BigEndian.PutUint32(frame[8:], seqnum)
}

// DecodeResponses splits buf into the response frames it holds, using the
// length field of each header to find the next one. Decoding stops once
// fewer bytes than a header remain. A frame whose length is shorter than
// the header or runs past the end of buf is malformed; the frames before
// it are returned along with the error.
func DecodeResponses(buf []byte) ([]Frame, error) {
	var frames []Frame

	for len(buf) >= HeaderSize {
		quads := binary.BigEndian.Uint32(buf)
		if quads < HeaderQuadlets {
			return frames, errors.Wrapf(ErrMalformedFrame, "length of %d quadlets is shorter than header", quads)
		}

		if uint64(quads)*4 > uint64(len(buf)) {
			return frames, errors.Wrapf(ErrMalformedFrame, "length of %d quadlets exceeds %d available bytes", quads, len(buf))
		}

		f := Frame{
			Version:  binary.BigEndian.Uint32(buf[4:]),
			Seqnum:   binary.BigEndian.Uint32(buf[8:]),
			Category: binary.BigEndian.Uint32(buf[12:]),
			Command:  binary.BigEndian.Uint32(buf[16:]),
			Status:   normalizeStatus(binary.BigEndian.Uint32(buf[20:])),
			Params:   make([]uint32, quads-HeaderQuadlets),
		}

		for i := range f.Params {
			f.Params[i] = binary.BigEndian.Uint32(buf[HeaderSize+i*4:])
		}

		frames = append(frames, f)
		buf = buf[quads*4:]
	}

	return frames, nil
}
