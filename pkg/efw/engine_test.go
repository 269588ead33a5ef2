package efw

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/lab47/fwsnd/pkg/hwdep"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// fakeUnit answers requests the way the device does, with the sequence
// number incremented.
type fakeUnit struct {
	mu       sync.Mutex
	requests []Frame
	err      error

	e       *Engine
	respond func(req Frame) *Frame
	async   bool
}

func (f *fakeUnit) TransmitRequest(frame []byte) error {
	f.mu.Lock()
	if f.err != nil {
		f.mu.Unlock()
		return f.err
	}

	reqs, err := DecodeResponses(frame)
	if err != nil {
		f.mu.Unlock()
		return err
	}

	req := reqs[0]
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.respond == nil {
		return nil
	}

	resp := f.respond(req)
	if resp == nil {
		return nil
	}

	b, err := EncodeResponse(*resp)
	if err != nil {
		return err
	}

	if f.async {
		go f.e.DeliverResponses(b)
	} else {
		f.e.DeliverResponses(b)
	}

	return nil
}

func (f *fakeUnit) Requests() []Frame {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]Frame(nil), f.requests...)
}

func reply(status Status, params ...uint32) func(req Frame) *Frame {
	return func(req Frame) *Frame {
		return &Frame{
			Seqnum:   req.Seqnum + 1,
			Category: req.Category,
			Command:  req.Command,
			Status:   status,
			Params:   params,
		}
	}
}

func newTestEngine(t *testing.T, respond func(req Frame) *Frame) (*Engine, *fakeUnit) {
	log := hclog.New(&hclog.LoggerOptions{
		Name:  "efw",
		Level: hclog.Trace,
	})

	unit := &fakeUnit{respond: respond, async: true}
	e := NewEngine(log, unit)
	unit.e = e

	return e, unit
}

func TestEngine(t *testing.T) {
	ctx := context.Background()

	t.Run("completes a transaction", func(t *testing.T) {
		r := require.New(t)

		e, unit := newTestEngine(t, reply(StatusOk, 7, 8))

		params := make([]uint32, 4)
		n, err := e.Transact(ctx, 3, 1, []uint32{0x11}, params, time.Second)
		r.NoError(err)
		r.Equal(2, n)
		r.Equal([]uint32{7, 8, 0, 0}, params)

		reqs := unit.Requests()
		r.Len(reqs, 1)
		r.Equal(uint32(3), reqs[0].Category)
		r.Equal(uint32(1), reqs[0].Command)
		r.Equal(StatusInvalid, reqs[0].Status)
		r.Equal([]uint32{0x11}, reqs[0].Params)

		r.Equal(0, e.Pending())
	})

	t.Run("handles a response delivered during transmission", func(t *testing.T) {
		r := require.New(t)

		e, unit := newTestEngine(t, reply(StatusOk, 42))
		unit.async = false

		params := make([]uint32, 1)
		n, err := e.Transact(ctx, 1, 1, nil, params, time.Second)
		r.NoError(err)
		r.Equal(1, n)
		r.Equal(uint32(42), params[0])
	})

	t.Run("advances the sequence number by two", func(t *testing.T) {
		r := require.New(t)

		e, unit := newTestEngine(t, nil)

		for i := 0; i < 3; i++ {
			seq, err := e.Request(1, 2, nil)
			r.NoError(err)
			r.Equal(uint32(i*2+1), seq)
		}

		reqs := unit.Requests()
		r.Equal(uint32(0), reqs[0].Seqnum)
		r.Equal(uint32(2), reqs[1].Seqnum)
		r.Equal(uint32(4), reqs[2].Seqnum)
	})

	t.Run("wraps the sequence number", func(t *testing.T) {
		r := require.New(t)

		e, _ := newTestEngine(t, nil)
		e.seqnum = hwdep.EfwSeqnumMax - 3

		seq, err := e.Request(1, 2, nil)
		r.NoError(err)
		r.Equal(hwdep.EfwSeqnumMax-2, seq)

		seq, err = e.Request(1, 2, nil)
		r.NoError(err)
		r.Equal(hwdep.EfwSeqnumMax, seq)

		seq, err = e.Request(1, 2, nil)
		r.NoError(err)
		r.Equal(uint32(1), seq)
	})

	t.Run("matches on category and command too", func(t *testing.T) {
		r := require.New(t)

		e, _ := newTestEngine(t, func(req Frame) *Frame {
			return &Frame{
				Seqnum:   req.Seqnum + 1,
				Category: req.Category,
				Command:  req.Command + 1,
				Params:   []uint32{9},
			}
		})

		params := make([]uint32, 1)
		_, err := e.Transact(ctx, 1, 1, nil, params, 20*time.Millisecond)
		r.ErrorIs(err, StatusTimeout)
		r.Equal(uint32(0), params[0])
	})

	t.Run("delivers only to the matching waiter", func(t *testing.T) {
		r := require.New(t)

		e, unit := newTestEngine(t, nil)

		type result struct {
			n   int
			err error
		}

		paramsA := make([]uint32, 2)
		paramsB := make([]uint32, 2)
		doneA := make(chan result, 1)
		doneB := make(chan result, 1)

		go func() {
			n, err := e.Transact(ctx, 4, 1, nil, paramsA, 10*time.Second)
			doneA <- result{n, err}
		}()

		go func() {
			n, err := e.Transact(ctx, 4, 2, nil, paramsB, 10*time.Second)
			doneB <- result{n, err}
		}()

		r.Eventually(func() bool {
			return e.Pending() == 2
		}, time.Second, time.Millisecond)

		var reqA, reqB Frame
		for _, req := range unit.Requests() {
			if req.Command == 1 {
				reqA = req
			} else {
				reqB = req
			}
		}

		respA, err := EncodeResponse(*reply(StatusOk, 0x42)(reqA))
		r.NoError(err)

		stray := reply(StatusOk, 0x99)(reqB)
		stray.Category++
		respStray, err := EncodeResponse(*stray)
		r.NoError(err)

		e.DeliverResponses(append(respA, respStray...))

		select {
		case res := <-doneA:
			r.NoError(res.err)
			r.Equal(1, res.n)
		case <-time.After(time.Second):
			r.FailNow("matching transaction did not complete")
		}

		r.Equal([]uint32{0x42, 0}, paramsA)
		r.Equal(1, e.Pending())

		select {
		case <-doneB:
			r.FailNow("transaction completed by a foreign response")
		default:
		}

		respB, err := EncodeResponse(*reply(StatusOk, 0x7, 0x8)(reqB))
		r.NoError(err)

		e.DeliverResponses(respB)

		res := <-doneB
		r.NoError(res.err)
		r.Equal(2, res.n)
		r.Equal([]uint32{0x7, 0x8}, paramsB)
		r.Equal(0, e.Pending())
	})

	t.Run("keeps the first of duplicate responses", func(t *testing.T) {
		r := require.New(t)

		e, unit := newTestEngine(t, nil)

		var seen int
		e.OnResponse(func(Frame) { seen++ })

		params := make([]uint32, 2)
		errs := make(chan error, 1)
		go func() {
			_, err := e.Transact(ctx, 1, 1, nil, params, 10*time.Second)
			errs <- err
		}()

		r.Eventually(func() bool {
			return e.Pending() == 1
		}, time.Second, time.Millisecond)

		req := unit.Requests()[0]

		first, err := EncodeResponse(*reply(StatusOk, 0x42)(req))
		r.NoError(err)

		second, err := EncodeResponse(*reply(StatusOk, 0x99, 0x98)(req))
		r.NoError(err)

		e.DeliverResponses(append(first, second...))

		r.NoError(<-errs)
		r.Equal([]uint32{0x42, 0}, params)
		r.Equal(0, e.Pending())
		r.Equal(2, seen)
	})

	t.Run("rejects more parameters than the caller holds", func(t *testing.T) {
		r := require.New(t)

		e, _ := newTestEngine(t, reply(StatusOk, 1, 2, 3, 4))

		params := make([]uint32, 2)
		_, err := e.Transact(ctx, 1, 1, nil, params, time.Second)
		r.ErrorIs(err, StatusBadQuadCount)
		r.Equal([]uint32{0, 0}, params)
	})

	t.Run("returns a failing status as an error", func(t *testing.T) {
		r := require.New(t)

		e, _ := newTestEngine(t, reply(StatusBadCommand))

		_, err := e.Transact(ctx, 1, 99, nil, nil, time.Second)
		r.ErrorIs(err, StatusBadCommand)
	})

	t.Run("times out and drops the late response", func(t *testing.T) {
		r := require.New(t)

		e, unit := newTestEngine(t, nil)

		var seen []Frame
		e.OnResponse(func(f Frame) {
			seen = append(seen, f)
		})

		params := make([]uint32, 2)

		start := time.Now()
		_, err := e.Transact(ctx, 2, 5, nil, params, 50*time.Millisecond)
		r.ErrorIs(err, StatusTimeout)
		r.GreaterOrEqual(time.Since(start), 50*time.Millisecond)
		r.Equal(0, e.Pending())

		reqs := unit.Requests()
		r.Len(reqs, 1)

		b, err := EncodeResponse(*reply(StatusOk, 1, 2)(reqs[0]))
		r.NoError(err)

		e.DeliverResponses(b)

		r.Equal([]uint32{0, 0}, params)
		r.Len(seen, 1)
		r.Equal(reqs[0].Seqnum+1, seen[0].Seqnum)
	})

	t.Run("survives a malformed buffer", func(t *testing.T) {
		r := require.New(t)

		e, _ := newTestEngine(t, nil)

		var seen int
		e.OnResponse(func(f Frame) {
			seen++
		})

		good, err := EncodeResponse(Frame{Seqnum: 1})
		r.NoError(err)

		bad := make([]byte, HeaderSize)
		bad[3] = 0x80

		e.DeliverResponses(append(good, bad...))
		r.Equal(1, seen)
	})

	t.Run("aborts waiting transactions", func(t *testing.T) {
		r := require.New(t)

		e, _ := newTestEngine(t, nil)

		errs := make(chan error, 1)
		go func() {
			_, err := e.Transact(ctx, 1, 1, nil, nil, 10*time.Second)
			errs <- err
		}()

		r.Eventually(func() bool {
			return e.Pending() == 1
		}, time.Second, time.Millisecond)

		e.Abort(ErrDisconnected)

		select {
		case err := <-errs:
			r.ErrorIs(err, ErrDisconnected)
		case <-time.After(time.Second):
			r.FailNow("transaction was not aborted")
		}

		_, err := e.Transact(ctx, 1, 1, nil, nil, 10*time.Second)
		r.ErrorIs(err, ErrDisconnected)

		_, err = e.Request(1, 1, nil)
		r.ErrorIs(err, ErrDisconnected)
	})

	t.Run("honors context cancellation", func(t *testing.T) {
		r := require.New(t)

		e, _ := newTestEngine(t, nil)

		cctx, cancel := context.WithCancel(ctx)

		errs := make(chan error, 1)
		go func() {
			_, err := e.Transact(cctx, 1, 1, nil, nil, 10*time.Second)
			errs <- err
		}()

		r.Eventually(func() bool {
			return e.Pending() == 1
		}, time.Second, time.Millisecond)

		cancel()

		r.ErrorIs(<-errs, ErrCancelled)
		r.Equal(0, e.Pending())
	})

	t.Run("reports transmit failures", func(t *testing.T) {
		r := require.New(t)

		e, unit := newTestEngine(t, nil)
		unit.err = errors.Wrapf(StatusCommErr, "wrote %d of %d bytes", 8, 24)

		_, err := e.Transact(ctx, 1, 1, nil, nil, time.Second)
		r.ErrorIs(err, ErrTransmit)
		r.ErrorIs(err, StatusCommErr)
		r.Equal(0, e.Pending())

		_, err = e.Request(1, 1, nil)
		r.ErrorIs(err, ErrTransmit)
	})

	t.Run("refuses oversized requests", func(t *testing.T) {
		r := require.New(t)

		e, unit := newTestEngine(t, nil)

		_, err := e.Transact(ctx, 1, 1, make([]uint32, MaxParams+1), nil, time.Second)
		r.ErrorIs(err, ErrFrameTooLarge)
		r.Empty(unit.Requests())
	})

	t.Run("stops observing after unsubscribe", func(t *testing.T) {
		r := require.New(t)

		e, _ := newTestEngine(t, nil)

		var a, b int
		stopA := e.OnResponse(func(Frame) { a++ })
		e.OnResponse(func(Frame) { b++ })

		frame, err := EncodeResponse(Frame{Seqnum: 1})
		r.NoError(err)

		e.DeliverResponses(frame)
		stopA()
		e.DeliverResponses(frame)

		r.Equal(1, a)
		r.Equal(2, b)
	})

	t.Run("runs concurrent transactions", func(t *testing.T) {
		r := require.New(t)

		e, _ := newTestEngine(t, func(req Frame) *Frame {
			return reply(StatusOk, req.Params[0]*2)(req)
		})

		const workers = 16

		var wg sync.WaitGroup
		errs := make([]error, workers)
		results := make([]uint32, workers)

		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()

				params := make([]uint32, 1)
				_, errs[i] = e.Transact(ctx, 1, 1, []uint32{uint32(i)}, params, time.Second)
				results[i] = params[0]
			}(i)
		}

		wg.Wait()

		for i := 0; i < workers; i++ {
			r.NoError(errs[i])
			r.Equal(uint32(i*2), results[i])
		}

		r.Equal(0, e.Pending())
	})
}
