package ccs

import (
	"net"
	"sync/atomic"
)

// API lets handler code reply to the request it is running for. It is
// bound to the execution context running the handler and must not be used
// from other goroutines; use DelayReply to answer later or elsewhere.
type API interface {
	// PE returns the index of the PE running the handler.
	PE() int
	// Scale returns the number of PEs of the job.
	Scale() int
	// Reply sends data to the client. It fails with ErrNoPendingRequest if
	// the request was already answered.
	Reply(data []byte) error
	// ReplyIfPending is like Reply but does nothing when no request is pending.
	ReplyIfPending(data []byte) error
	// EmptyReply tells the client there is no data.
	EmptyReply() error
	// EmptyReplyIfPending is like EmptyReply but does nothing when no
	// request is pending.
	EmptyReplyIfPending() error
	// DelayReply detaches the pending request so that it can be answered
	// after the handler returns.
	DelayReply() (*DelayedReply, error)
	// IsRemoteRequest reports whether a client request is pending.
	IsRemoteRequest() bool
	// CallerID returns the address of the client of the pending request.
	CallerID() (ip net.IP, port int, ok bool)
}

func (w *worker) PE() int    { return w.pe.index }
func (w *worker) Scale() int { return w.pe.job.Scale() }

func (w *worker) Reply(data []byte) error {
	if w.pending == nil {
		return ErrNoPendingRequest
	}
	env := w.pending
	w.pending = nil
	return w.pe.reply(env.Header, env.PEs, data)
}

func (w *worker) ReplyIfPending(data []byte) error {
	if w.pending == nil {
		return nil
	}
	return w.Reply(data)
}

func (w *worker) EmptyReply() error {
	return w.Reply(nil)
}

func (w *worker) EmptyReplyIfPending() error {
	return w.ReplyIfPending(nil)
}

func (w *worker) DelayReply() (*DelayedReply, error) {
	if w.pending == nil {
		return nil, ErrNoPendingRequest
	}
	d := &DelayedReply{
		pe:     w.pe,
		header: w.pending.Header,
		pes:    append([]int32(nil), w.pending.PEs...),
	}
	w.pending = nil
	return d, nil
}

func (w *worker) IsRemoteRequest() bool {
	return w.pending != nil
}

func (w *worker) CallerID() (net.IP, int, bool) {
	if w.pending == nil {
		return nil, 0, false
	}
	ip, port := w.pending.Header.Caller()
	return ip, port, true
}

// DelayedReply is a request detached from its execution context. It must
// be completed exactly once, with Reply or EmptyReply, from any goroutine.
type DelayedReply struct {
	pe     *PE
	header Header
	pes    []int32
	used   atomic.Bool
}

// Reply sends data to the client of the detached request.
func (d *DelayedReply) Reply(data []byte) error {
	if !d.used.CompareAndSwap(false, true) {
		return ErrReplyConsumed
	}
	return d.pe.reply(d.header, d.pes, data)
}

// EmptyReply tells the client of the detached request there is no data.
func (d *DelayedReply) EmptyReply() error {
	return d.Reply(nil)
}

// Caller returns the address of the client of the detached request.
func (d *DelayedReply) Caller() (net.IP, int) {
	return d.header.Caller()
}
