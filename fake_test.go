package fwsnd

import (
	"encoding/binary"
	"sync"

	"github.com/lab47/fwsnd/pkg/efw"
	"github.com/lab47/fwsnd/pkg/hwdep"
	"golang.org/x/sys/unix"
)

type fakeRead struct {
	data []byte
	n    int
}

// fakeTransport stands in for the kernel driver.
type fakeTransport struct {
	mu sync.Mutex

	info    hwdep.Info
	infoErr error

	reads   []fakeRead
	readErr error

	writes     [][]byte
	shortWrite bool
	onWrite    func(b []byte)

	locked bool
	blobs  map[uint][]byte
	closed bool
}

func newFakeTransport(kind hwdep.Kind) *fakeTransport {
	return &fakeTransport{
		info: hwdep.Info{
			Kind:       kind,
			Card:       1,
			GUID:       0x0014860000abcdef,
			DeviceName: "hw:1",
		},
		blobs: make(map[uint][]byte),
	}
}

func (f *fakeTransport) opener() func(string) (Transport, error) {
	return func(string) (Transport, error) {
		return f, nil
	}
}

// push queues a record. The read reports shortfall fewer bytes than it
// copies, like the EFW response path of the driver.
func (f *fakeTransport) push(rec []byte, shortfall int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.reads = append(f.reads, fakeRead{data: rec, n: len(rec) - shortfall})
}

func (f *fakeTransport) Read(b []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.readErr != nil {
		return 0, f.readErr
	}

	if len(f.reads) == 0 {
		return 0, unix.EAGAIN
	}

	r := f.reads[0]
	f.reads = f.reads[1:]

	copy(b, r.data)

	return min(r.n, len(b)), nil
}

func (f *fakeTransport) Write(b []byte) (int, error) {
	f.mu.Lock()
	f.writes = append(f.writes, append([]byte(nil), b...))
	short := f.shortWrite
	onWrite := f.onWrite
	f.mu.Unlock()

	if short {
		return len(b) / 2, nil
	}

	if onWrite != nil {
		onWrite(b)
	}

	return len(b), nil
}

func (f *fakeTransport) Ioctl(req uint, arg []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch req {
	case hwdep.IoctlGetInfo:
		if f.infoErr != nil {
			return f.infoErr
		}
		copy(arg, hwdep.EncodeInfo(f.info))
	case hwdep.IoctlLock:
		if f.locked {
			return unix.EBUSY
		}
		f.locked = true
	case hwdep.IoctlUnlock:
		if !f.locked {
			return unix.EBADFD
		}
		f.locked = false
	default:
		blob, ok := f.blobs[req]
		if !ok {
			return unix.ENOTTY
		}
		copy(arg, blob)
	}

	return nil
}

func (f *fakeTransport) Fd() int {
	return -1
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	return nil
}

func record(typ hwdep.EventType, words ...uint32) []byte {
	b := make([]byte, 4+4*len(words))
	binary.NativeEndian.PutUint32(b, uint32(typ))
	for i, w := range words {
		binary.NativeEndian.PutUint32(b[4+i*4:], w)
	}
	return b
}

func efwRecord(frames ...efw.Frame) []byte {
	b := record(hwdep.EventEfwResponse)
	for _, f := range frames {
		enc, err := efw.EncodeResponse(f)
		if err != nil {
			panic(err)
		}
		b = append(b, enc...)
	}
	return b
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) add(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, ev)
}

func (l *eventLog) all() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]Event(nil), l.events...)
}
