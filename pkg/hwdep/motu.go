package hwdep

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

const (
	MotuRegisterDspMixerCount       = 4
	MotuRegisterDspMixerSourceCount = 20
	MotuRegisterDspInputCount       = 10
	motuRegisterDspAlignedInputs    = MotuRegisterDspInputCount + 2
)

var ErrOutOfRange = errors.New("index out of range")

// Byte offsets inside struct snd_firewire_motu_register_dsp_parameter.
const (
	mixerSourceStride = 5 * MotuRegisterDspMixerSourceCount

	offMixerOutputPairedVolume = MotuRegisterDspMixerCount * mixerSourceStride
	offMixerOutputPairedFlag   = offMixerOutputPairedVolume + MotuRegisterDspMixerCount
	offMainPairedVolume        = offMixerOutputPairedFlag + MotuRegisterDspMixerCount
	offHpPairedVolume          = offMainPairedVolume + 1
	offHpPairedAssignment      = offHpPairedVolume + 1
	offLineInputBoost          = offMainPairedVolume + 8
	offLineInputNominalLevel   = offLineInputBoost + 1
	offInputGainAndInvert      = offLineInputBoost + 8
	offInputFlag               = offInputGainAndInvert + motuRegisterDspAlignedInputs
)

// MotuRegisterDspParameter is the 512 byte image returned by the
// MOTU_REGISTER_DSP_PARAMETER ioctl. Accessors return views into the
// image; callers must copy if they keep them past the next read.
type MotuRegisterDspParameter struct {
	raw [MotuRegisterDspParameterSize]byte
}

func NewMotuRegisterDspParameter(b []byte) (*MotuRegisterDspParameter, error) {
	if len(b) < MotuRegisterDspParameterSize {
		return nil, errors.Wrapf(ErrShortRecord, "register dsp parameter is %d bytes", len(b))
	}

	var p MotuRegisterDspParameter
	copy(p.raw[:], b)
	return &p, nil
}

// Bytes exposes the whole image, e.g. as an ioctl argument.
func (p *MotuRegisterDspParameter) Bytes() []byte {
	return p.raw[:]
}

func (p *MotuRegisterDspParameter) mixerSource(mixer, field int) ([]byte, error) {
	if mixer < 0 || mixer >= MotuRegisterDspMixerCount {
		return nil, errors.Wrapf(ErrOutOfRange, "mixer %d", mixer)
	}

	off := mixer*mixerSourceStride + field*MotuRegisterDspMixerSourceCount
	return p.raw[off : off+MotuRegisterDspMixerSourceCount], nil
}

func (p *MotuRegisterDspParameter) MixerSourceGain(mixer int) ([]byte, error) {
	return p.mixerSource(mixer, 0)
}

func (p *MotuRegisterDspParameter) MixerSourcePan(mixer int) ([]byte, error) {
	return p.mixerSource(mixer, 1)
}

func (p *MotuRegisterDspParameter) MixerSourceFlag(mixer int) ([]byte, error) {
	return p.mixerSource(mixer, 2)
}

func (p *MotuRegisterDspParameter) MixerSourcePairedBalance(mixer int) ([]byte, error) {
	return p.mixerSource(mixer, 3)
}

func (p *MotuRegisterDspParameter) MixerSourcePairedWidth(mixer int) ([]byte, error) {
	return p.mixerSource(mixer, 4)
}

func (p *MotuRegisterDspParameter) MixerOutputPairedVolume() []byte {
	return p.raw[offMixerOutputPairedVolume : offMixerOutputPairedVolume+MotuRegisterDspMixerCount]
}

func (p *MotuRegisterDspParameter) MixerOutputPairedFlag() []byte {
	return p.raw[offMixerOutputPairedFlag : offMixerOutputPairedFlag+MotuRegisterDspMixerCount]
}

func (p *MotuRegisterDspParameter) MainOutputPairedVolume() uint8 {
	return p.raw[offMainPairedVolume]
}

func (p *MotuRegisterDspParameter) HeadphoneOutputPairedVolume() uint8 {
	return p.raw[offHpPairedVolume]
}

func (p *MotuRegisterDspParameter) HeadphoneOutputPairedAssignment() uint8 {
	return p.raw[offHpPairedAssignment]
}

func (p *MotuRegisterDspParameter) LineInputBoostFlag() uint8 {
	return p.raw[offLineInputBoost]
}

func (p *MotuRegisterDspParameter) LineInputNominalLevelFlag() uint8 {
	return p.raw[offLineInputNominalLevel]
}

// InputGainAndInvert covers the ten inputs; the two alignment bytes the
// kernel reserves after them are not exposed.
func (p *MotuRegisterDspParameter) InputGainAndInvert() []byte {
	return p.raw[offInputGainAndInvert : offInputGainAndInvert+MotuRegisterDspInputCount]
}

func (p *MotuRegisterDspParameter) InputFlag() []byte {
	return p.raw[offInputFlag : offInputFlag+MotuRegisterDspInputCount]
}

// MotuCommandDspMeter decodes the float meter blob.
func MotuCommandDspMeter(b []byte) ([]float32, error) {
	if len(b) < MotuCommandDspMeterSize {
		return nil, errors.Wrapf(ErrShortRecord, "command dsp meter is %d bytes", len(b))
	}

	meter := make([]float32, MotuCommandDspMeterCount)
	for i := range meter {
		meter[i] = math.Float32frombits(binary.NativeEndian.Uint32(b[i*4:]))
	}

	return meter, nil
}
