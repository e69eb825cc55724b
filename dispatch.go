package ccs

import (
	"bytes"
	"context"

	"github.com/rs/zerolog"
)

// worker is one execution context of a PE. It holds at most one pending
// request, between the start of its dispatch and its reply.
type worker struct {
	pe      *PE
	id      int
	log     zerolog.Logger
	pending *Envelope
}

func (w *worker) loop(ctx context.Context, inbox <-chan *Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-inbox:
			if !ok {
				return
			}
			h := w.pe.job.handler(m.Handler)
			if h == nil {
				w.log.Error().Int("handler", int(m.Handler)).Msg("message for unknown transport handler, dropping")
				continue
			}
			if err := h(ctx, w, m); err != nil {
				if fatal(err) {
					w.pe.job.abort(err)
					continue
				}
				w.log.Error().Err(err).Msg("handling message")
			}
		}
	}
}

// requestHandler receives a request forwarded by the router or relayed by
// another PE, relays it further when it is a broadcast or multicast, and
// dispatches it locally.
func requestHandler(ctx context.Context, w *worker, m *Message) error {
	env, err := ParseEnvelope(m.Data)
	if err != nil {
		return err
	}
	p := w.pe

	if env.Header.Reducing() {
		if p.index == head(env, p.job.Scale()) && !p.job.pes[ForwardingPE].canReduce(env.Header.HandlerName()) {
			// Nothing could merge the replies: answer once, from here.
			w.log.Warn().Str("handler", env.Header.HandlerName()).Int("selector", int(env.Header.PE)).
				Msg("handler cannot reduce broadcast replies, ignoring")
			return p.deliver(env.Header, env.PEs, nil)
		}
		for _, to := range p.job.fanOut.Children(p.index, env, p.job.Scale()) {
			if err := p.send(to, p.job.requestID, bytes.Clone(m.Data)); err != nil {
				return err
			}
		}
	}

	return w.handleRequest(ctx, env)
}

// handleRequest looks up and runs the handler named by env. Unless the
// handler took a delayed reply, exactly one reply leaves this call: the
// handler's own, or an empty one.
func (w *worker) handleRequest(ctx context.Context, env *Envelope) error {
	name := env.Header.HandlerName()
	rec := w.pe.table.Lookup(name)
	if rec == nil {
		w.log.Warn().Str("handler", name).Msg("unknown handler name requested, ignoring")
		w.pe.job.c.Metrics.unknownHandler()
		if env.Header.Reducing() {
			return w.pe.abstain(env.Header, env.PEs)
		}
		w.pending = env
		return w.EmptyReply()
	}

	w.pending = env
	if ic := w.pe.interceptor; ic != nil && ic.Active() {
		return w.intercept(ctx, ic)
	}

	rec.calls.Add(1)
	w.pe.job.c.Metrics.dispatch(name)
	w.log.Debug().Str("handler", name).Int("len", len(env.Payload)).Msg("dispatching request")

	switch cb := rec.cb.(type) {
	case BufferView:
		cb.Fn(w, cb.User, env.Payload)
	case OwnedMessage:
		cb.Fn(w, &Message{Handler: w.pe.job.requestID, Data: bytes.Clone(env.Payload)})
	}

	if w.pending != nil {
		return w.EmptyReply()
	}
	return nil
}

// intercept replies with what the interceptor yields in place of running
// the handler. When the interceptor fails, interception ends and the
// pending request is dropped without reply.
func (w *worker) intercept(ctx context.Context, ic Interceptor) error {
	data, err := ic.Await(ctx)
	if err != nil {
		ic.End()
		w.pending = nil
		w.log.Error().Err(err).Msg("interceptor failed, ending conditional delivery")
		return nil
	}
	return w.Reply(data)
}

// canReduce reports whether the PE can merge replies for name. Only the
// forwarding PE merges.
func (p *PE) canReduce(name string) bool {
	rec := p.table.Lookup(name)
	return rec != nil && rec.merge != nil
}
