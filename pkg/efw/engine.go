package efw

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/lab47/fwsnd/pkg/hwdep"
	"github.com/lab47/mode"
	"github.com/pkg/errors"
)

var (
	ErrTransmit     = errors.New("failed to transmit request")
	ErrCancelled    = errors.New("transaction cancelled")
	ErrDisconnected = errors.New("unit is disconnected")
)

// Transmitter writes one request frame to the unit.
type Transmitter interface {
	TransmitRequest(frame []byte) error
}

type transmitError struct {
	err error
}

func (t *transmitError) Error() string {
	return ErrTransmit.Error() + ": " + t.err.Error()
}

func (t *transmitError) Is(target error) bool {
	return target == ErrTransmit
}

func (t *transmitError) Unwrap() error {
	return t.err
}

// key identifies the response a waiter expects.
type key struct {
	seqnum, category, command uint32
}

type waiter struct {
	key    key
	params []uint32
	done   chan struct{}

	// Written by the delivering goroutine under the engine mutex, before
	// done is closed.
	status Status
	count  int
	err    error
}

type observer struct {
	fn func(Frame)
}

// Engine runs Fireworks transactions over a Transmitter. Responses are
// fed to it with DeliverResponses, normally by the unit's event Source.
type Engine struct {
	log     hclog.Logger
	tx      Transmitter
	timeout time.Duration

	mu      sync.Mutex
	seqnum  uint32
	waiters map[key]*waiter
	expired *lru.Cache[key, time.Time]
	aborted error

	obMu      sync.Mutex
	observers []*observer
}

func NewEngine(log hclog.Logger, tx Transmitter, options ...Option) *Engine {
	o := opts{
		timeout:     DefaultTimeout,
		expiredKeys: defaultExpiredKeys,
	}

	for _, opt := range options {
		opt(&o)
	}

	if o.expiredKeys <= 0 {
		o.expiredKeys = defaultExpiredKeys
	}

	// New only fails for a non-positive size.
	expired, _ := lru.New[key, time.Time](o.expiredKeys)

	return &Engine{
		log:     log,
		tx:      tx,
		timeout: o.timeout,
		waiters: make(map[key]*waiter),
		expired: expired,
	}
}

// nextSeqnum must be called with mu held.
func (e *Engine) nextSeqnum() uint32 {
	seq := e.seqnum

	e.seqnum += 2
	if e.seqnum > hwdep.EfwSeqnumMax {
		e.seqnum = 0
	}

	return seq
}

func (e *Engine) transmit(frame []byte) error {
	if mode.Debug() {
		e.log.Trace("transmit request", "frame", hex.EncodeToString(frame))
	}

	if err := e.tx.TransmitRequest(frame); err != nil {
		return &transmitError{err: err}
	}

	requestsSent.Inc()

	return nil
}

// Request transmits a request without waiting for its response and returns
// the sequence number the response will carry.
func (e *Engine) Request(category, command uint32, args []uint32) (uint32, error) {
	frame, err := EncodeRequest(0, category, command, args)
	if err != nil {
		return 0, err
	}

	e.mu.Lock()
	if e.aborted != nil {
		err := e.aborted
		e.mu.Unlock()
		return 0, err
	}
	seq := e.nextSeqnum()
	e.mu.Unlock()

	setSeqnum(frame, seq)

	if err := e.transmit(frame); err != nil {
		return 0, err
	}

	return seq + 1, nil
}

// Transact sends a request and waits for the matching response, copying
// its parameters into params. It returns the number of parameters copied.
// A zero timeout uses the engine default.
func (e *Engine) Transact(ctx context.Context, category, command uint32, args, params []uint32, timeout time.Duration) (int, error) {
	if timeout <= 0 {
		timeout = e.timeout
	}

	frame, err := EncodeRequest(0, category, command, args)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	deadline := start.Add(timeout)

	w := &waiter{
		params: params,
		status: StatusInvalid,
		done:   make(chan struct{}),
	}

	e.mu.Lock()
	if e.aborted != nil {
		err := e.aborted
		e.mu.Unlock()
		transactions.WithLabelValues("aborted").Inc()
		return 0, err
	}

	seq := e.nextSeqnum()
	w.key = key{seqnum: seq + 1, category: category, command: command}
	e.waiters[w.key] = w
	inflight.Inc()
	e.mu.Unlock()

	setSeqnum(frame, seq)

	if err := e.transmit(frame); err != nil {
		if !e.remove(w, false) {
			// Aborted while transmitting.
			return e.result(w, start)
		}

		transactions.WithLabelValues("transmit").Inc()
		return 0, err
	}

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case <-w.done:
	case <-timer.C:
		if e.remove(w, true) {
			transactions.WithLabelValues("timeout").Inc()
			e.log.Debug("transaction timed out",
				"seqnum", w.key.seqnum, "category", category, "command", command)
			return 0, errors.Wrapf(StatusTimeout, "seqnum %d category %d command %d",
				w.key.seqnum, category, command)
		}
	case <-ctx.Done():
		if e.remove(w, false) {
			transactions.WithLabelValues("cancelled").Inc()
			return 0, errors.Wrapf(ErrCancelled, "seqnum %d: %s", w.key.seqnum, ctx.Err())
		}
	}

	return e.result(w, start)
}

// remove takes w out of the live set. It reports false if w was already
// completed by a delivery or an abort.
func (e *Engine) remove(w *waiter, expired bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cur, ok := e.waiters[w.key]; !ok || cur != w {
		return false
	}

	delete(e.waiters, w.key)
	inflight.Dec()

	if expired {
		e.expired.Add(w.key, time.Now())
	}

	return true
}

func (e *Engine) result(w *waiter, start time.Time) (int, error) {
	// Pairs with the close under mu in deliver and Abort.
	<-w.done

	if w.err != nil {
		transactions.WithLabelValues("aborted").Inc()
		return 0, w.err
	}

	transactionLatency.Observe(time.Since(start).Seconds())

	if w.status != StatusOk {
		transactions.WithLabelValues("status").Inc()
		return 0, errors.Wrapf(w.status, "seqnum %d category %d command %d",
			w.key.seqnum, w.key.category, w.key.command)
	}

	transactions.WithLabelValues("ok").Inc()

	return w.count, nil
}

// DeliverResponses decodes buf and completes the transactions waiting for
// the frames in it. Frames nobody waits for are dropped.
func (e *Engine) DeliverResponses(buf []byte) {
	if mode.Debug() {
		e.log.Trace("deliver responses", "buffer", hex.EncodeToString(buf))
	}

	frames, err := DecodeResponses(buf)
	if err != nil {
		framesMalformed.Inc()
		e.log.Warn("error decoding response frames", "error", err, "decoded", len(frames))
	}

	for _, f := range frames {
		e.notify(f)
		e.deliver(f)
	}
}

func (e *Engine) deliver(f Frame) {
	k := key{seqnum: f.Seqnum, category: f.Category, command: f.Command}

	e.mu.Lock()
	defer e.mu.Unlock()

	w, ok := e.waiters[k]
	if !ok {
		if _, late := e.expired.Get(k); late {
			e.expired.Remove(k)
			responsesLate.Inc()
			e.log.Debug("late response", "seqnum", f.Seqnum, "status", f.Status)
		} else {
			responsesUnmatched.Inc()
			e.log.Trace("unmatched response", "seqnum", f.Seqnum,
				"category", f.Category, "command", f.Command)
		}
		return
	}

	delete(e.waiters, k)
	inflight.Dec()

	w.status = f.Status
	if f.Status == StatusOk && len(f.Params) > 0 {
		if len(f.Params) > len(w.params) {
			w.status = StatusBadQuadCount
		} else {
			w.count = copy(w.params, f.Params)
		}
	}

	close(w.done)
}

// Abort completes every live transaction with err. Later transactions fail
// with err immediately.
func (e *Engine) Abort(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.aborted == nil {
		e.aborted = err
	}

	if len(e.waiters) > 0 {
		e.log.Debug("aborting transactions", "count", len(e.waiters), "error", err)
	}

	for k, w := range e.waiters {
		delete(e.waiters, k)
		inflight.Dec()

		w.err = err
		close(w.done)
	}
}

// Pending returns the number of transactions waiting for a response.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.waiters)
}

// OnResponse registers fn to observe every decoded response frame, matched
// or not. fn runs on the delivering goroutine and must not block.
func (e *Engine) OnResponse(fn func(Frame)) func() {
	ob := &observer{fn: fn}

	e.obMu.Lock()
	e.observers = append(e.observers, ob)
	e.obMu.Unlock()

	return func() {
		e.obMu.Lock()
		defer e.obMu.Unlock()

		for i, o := range e.observers {
			if o == ob {
				e.observers = append(e.observers[:i:i], e.observers[i+1:]...)
				return
			}
		}
	}
}

func (e *Engine) notify(f Frame) {
	e.obMu.Lock()
	obs := e.observers
	e.obMu.Unlock()

	for _, o := range obs {
		o.fn(f)
	}
}
