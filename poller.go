package fwsnd

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

const maxEpollEvents = 4

// poller waits on one device fd plus an eventfd used to interrupt the
// wait.
type poller struct {
	epfd   int
	wakefd int
	fd     int
}

func newPoller(fd int) (*poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errors.Wrapf(err, "epoll_create1")
	}

	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, errors.Wrapf(err, "eventfd")
	}

	p := &poller{
		epfd:   epfd,
		wakefd: wakefd,
		fd:     fd,
	}

	if err := p.add(wakefd, unix.EPOLLIN); err != nil {
		return nil, multierr.Append(err, p.close())
	}

	if err := p.add(fd, unix.EPOLLIN|unix.EPOLLERR|unix.EPOLLHUP); err != nil {
		return nil, multierr.Append(err, p.close())
	}

	return p, nil
}

func (p *poller) add(fd int, events uint32) error {
	ev := unix.EpollEvent{
		Events: events,
		Fd:     int32(fd),
	}

	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return errors.Wrapf(err, "epoll_ctl add fd %d", fd)
	}

	return nil
}

func (p *poller) wake() error {
	var buf [8]byte
	buf[0] = 1

	_, err := unix.Write(p.wakefd, buf[:])
	return err
}

// wait blocks until the device fd is ready or the poller is woken. It
// returns the condition seen on the device, or zero when only woken.
func (p *poller) wait() (Condition, error) {
	var events [maxEpollEvents]unix.EpollEvent

	for {
		n, err := unix.EpollWait(p.epfd, events[:], -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return 0, errors.Wrapf(err, "epoll_wait")
		}

		var cond Condition

		for _, ev := range events[:n] {
			if int(ev.Fd) == p.wakefd {
				var buf [8]byte
				unix.Read(p.wakefd, buf[:])
				return 0, nil
			}

			if ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
				cond |= CondError
			}

			if ev.Events&unix.EPOLLIN != 0 {
				cond |= CondReadable
			}
		}

		if cond != 0 {
			return cond, nil
		}
	}
}

func (p *poller) close() error {
	return multierr.Combine(
		errors.Wrapf(unix.Close(p.wakefd), "close eventfd"),
		errors.Wrapf(unix.Close(p.epfd), "close epoll"),
	)
}
