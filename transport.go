package fwsnd

import (
	"unsafe"

	"github.com/lab47/fwsnd/pkg/hwdep"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Transport is the character device behind a unit. Read and Write return
// raw errno values so callers can tell EAGAIN apart from failures.
type Transport interface {
	Read(b []byte) (int, error)
	Write(b []byte) (int, error)
	Ioctl(req uint, arg []byte) error
	Fd() int
	Close() error
}

type device struct {
	path string
	fd   int
}

// OpenDevice opens a HwDep node such as /dev/snd/hwC0D0 in non-blocking
// mode.
func OpenDevice(path string) (Transport, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		switch err {
		case unix.ENODEV:
			return nil, errors.Wrapf(ErrDisconnected, "open %s", path)
		case unix.EBUSY:
			return nil, errors.Wrapf(ErrBusy, "open %s", path)
		default:
			return nil, errors.Wrapf(err, "open %s", path)
		}
	}

	return &device{path: path, fd: fd}, nil
}

func (d *device) Read(b []byte) (int, error) {
	n, err := unix.Read(d.fd, b)
	if n < 0 {
		n = 0
	}
	return n, err
}

func (d *device) Write(b []byte) (int, error) {
	n, err := unix.Write(d.fd, b)
	if n < 0 {
		n = 0
	}
	return n, err
}

func (d *device) Ioctl(req uint, arg []byte) error {
	var ptr uintptr
	if len(arg) > 0 {
		ptr = uintptr(unsafe.Pointer(&arg[0]))
	}

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), uintptr(req), ptr)
	if errno != 0 {
		return errno
	}

	return nil
}

func (d *device) Fd() int {
	return d.fd
}

func (d *device) Close() error {
	if d.fd < 0 {
		return nil
	}

	err := unix.Close(d.fd)
	d.fd = -1

	if err != nil {
		return errors.Wrapf(err, "close %s", d.path)
	}

	return nil
}

// ioctlError wraps a failed ioctl with the request name, keeping the errno
// reachable through errors.Is.
func ioctlError(req uint, err error) error {
	return errors.Wrapf(err, "ioctl %s", hwdep.IoctlName(req))
}
