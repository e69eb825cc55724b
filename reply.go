package ccs

import (
	"context"
	"fmt"
	"sync"
)

// reply sends data back for a request with header h. Replies to broadcast
// and multicast requests are reduced on the forwarding PE before reaching
// the client.
func (p *PE) reply(h Header, pes []int32, data []byte) error {
	h.Len = int32(len(data))
	if h.Reducing() {
		return p.contribute(h, pes, data)
	}
	return p.deliver(h, pes, data)
}

// deliver writes the reply to the client when running on the forwarding PE
// and forwards it there otherwise.
func (p *PE) deliver(h Header, pes []int32, data []byte) error {
	h.Len = int32(len(data))
	if p.index == ForwardingPE {
		p.job.c.Metrics.reply("direct")
		p.log.Debug().Str("handler", h.HandlerName()).Int("len", len(data)).Msg("sending reply")
		return p.job.c.Replies.SendReply(h, data)
	}
	p.job.c.Metrics.reply("forwarded")
	env := &Envelope{Header: h, PEs: pes, Payload: data}
	return p.send(ForwardingPE, p.job.replyID, env.Bytes())
}

// contribute sends this PE's part of a reduced reply to the forwarding PE,
// which holds the merge policy.
func (p *PE) contribute(h Header, pes []int32, data []byte) error {
	p.job.c.Metrics.reply("reduced")
	env := &Envelope{Header: h, PEs: pes, Payload: append([]byte(nil), data...)}
	return p.send(ForwardingPE, p.job.reduceID, env.Bytes())
}

// abstain tells the forwarding PE that this PE has no handler for a reduced
// request. The part counts towards completion but is left out of the merge.
func (p *PE) abstain(h Header, pes []int32) error {
	h.Len = 0
	p.job.c.Metrics.reply("absent")
	env := &Envelope{Header: h, PEs: pes}
	return p.send(ForwardingPE, p.job.absentID, env.Bytes())
}

// replyHandler runs on the forwarding PE and writes a reply forwarded by
// another PE to its client.
func replyHandler(_ context.Context, w *worker, m *Message) error {
	env, err := ParseEnvelope(m.Data)
	if err != nil {
		return err
	}
	m.Release()
	return w.pe.deliver(env.Header, env.PEs, env.Payload)
}

type reductionKey struct {
	id   int
	conn int32
}

type reductionPart struct {
	env    *Envelope
	absent bool
}

// reducer collects the parts of the reductions in progress on the
// forwarding PE.
type reducer struct {
	mu      sync.Mutex
	pending map[reductionKey][]reductionPart
}

func newReducer() *reducer {
	return &reducer{pending: make(map[reductionKey][]reductionPart)}
}

// add records one part and returns every part once expected of them have
// arrived.
func (r *reducer) add(key reductionKey, part reductionPart, expected int) []reductionPart {
	r.mu.Lock()
	defer r.mu.Unlock()

	parts := append(r.pending[key], part)
	if len(parts) < expected {
		r.pending[key] = parts
		return nil
	}
	delete(r.pending, key)
	return parts
}

// reduceHandler runs on the forwarding PE for every part of a broadcast or
// multicast reply.
func reduceHandler(_ context.Context, w *worker, m *Message) error {
	return w.pe.reduce(m, false)
}

// absentHandler runs on the forwarding PE for the parts of PEs lacking the
// requested handler.
func absentHandler(_ context.Context, w *worker, m *Message) error {
	return w.pe.reduce(m, true)
}

// reduce merges the parts of a broadcast or multicast reply and delivers the
// result once every PE taking part has answered. When no PE had the
// handler the client gets an empty reply.
func (p *PE) reduce(m *Message, absent bool) error {
	env, err := ParseEnvelope(m.Data)
	if err != nil {
		return err
	}
	name := env.Header.HandlerName()
	rec := p.table.Lookup(name)
	if rec == nil || rec.merge == nil {
		return fmt.Errorf("%w: reduction of %q", ErrNoMergeFunc, name)
	}

	expected := p.job.Scale()
	if n := env.Header.ListLen(); n > 0 {
		expected = n
	}
	key := reductionKey{id: rec.reductionID, conn: env.Header.ReplyFd}
	parts := p.reductions.add(key, reductionPart{env: env, absent: absent}, expected)
	if parts == nil {
		return nil
	}

	present := make([]*Envelope, 0, len(parts))
	for _, part := range parts {
		if !part.absent {
			present = append(present, part.env)
		}
	}
	if len(present) == 0 {
		return p.deliver(parts[0].env.Header, parts[0].env.PEs, nil)
	}

	merged, err := rec.merge(present[0], present[1:])
	if err != nil {
		return fmt.Errorf("merge %q: %w", name, err)
	}
	p.job.c.Metrics.merge()
	return p.deliver(merged.Header, merged.PEs, merged.Payload)
}
