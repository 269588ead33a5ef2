package hwdep

// Request numbers follow the asm-generic _IOC layout.
const (
	iocNrBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14

	iocNrShift   = 0
	iocTypeShift = iocNrShift + iocNrBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits

	iocNone = 0
	iocRead = 2

	ioctlType = 'H'
)

func ioc(dir, nr, size uint) uint {
	return dir<<iocDirShift | ioctlType<<iocTypeShift | nr<<iocNrShift | size<<iocSizeShift
}

func io(nr uint) uint {
	return ioc(iocNone, nr, 0)
}

func ior(nr, size uint) uint {
	return ioc(iocRead, nr, size)
}

// Sizes of the fixed-layout structures exchanged through ioctls.
const (
	InfoSize                     = 32
	TascamStateCount             = 64
	TascamStateSize              = TascamStateCount * 4
	MotuRegisterDspMeterCount    = 48
	MotuCommandDspMeterCount     = 400
	MotuCommandDspMeterSize      = MotuCommandDspMeterCount * 4
	MotuRegisterDspParameterSize = 512
)

var (
	IoctlGetInfo                  = ior(0xf8, InfoSize)
	IoctlLock                     = io(0xf9)
	IoctlUnlock                   = io(0xfa)
	IoctlTascamState              = ior(0xfb, TascamStateSize)
	IoctlMotuRegisterDspMeter     = ior(0xfc, MotuRegisterDspMeterCount)
	IoctlMotuCommandDspMeter      = ior(0xfd, MotuCommandDspMeterSize)
	IoctlMotuRegisterDspParameter = ior(0xfe, MotuRegisterDspParameterSize)
)

// IoctlName returns a label for logging and error messages.
func IoctlName(req uint) string {
	switch req {
	case IoctlGetInfo:
		return "SNDRV_FIREWIRE_IOCTL_GET_INFO"
	case IoctlLock:
		return "SNDRV_FIREWIRE_IOCTL_LOCK"
	case IoctlUnlock:
		return "SNDRV_FIREWIRE_IOCTL_UNLOCK"
	case IoctlTascamState:
		return "SNDRV_FIREWIRE_IOCTL_TASCAM_STATE"
	case IoctlMotuRegisterDspMeter:
		return "SNDRV_FIREWIRE_IOCTL_MOTU_REGISTER_DSP_METER"
	case IoctlMotuCommandDspMeter:
		return "SNDRV_FIREWIRE_IOCTL_MOTU_COMMAND_DSP_METER"
	case IoctlMotuRegisterDspParameter:
		return "SNDRV_FIREWIRE_IOCTL_MOTU_REGISTER_DSP_PARAMETER"
	default:
		return "unknown"
	}
}
