package ccs

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// StartupBufferSize is the number of requests the router holds before it
// is ready. One more is a fatal overload.
const StartupBufferSize = 100

// ReplySender writes a reply down the still-open client connection
// identified by the header.
type ReplySender interface {
	SendReply(h Header, payload []byte) error
}

// Router runs on the forwarding PE. It validates the selector of every
// client request and forwards the request to the PE that handles it first.
type Router struct {
	scale   int
	net     Transport
	handler HandlerID
	replies ReplySender
	log     zerolog.Logger
	metrics *Metrics

	mu      sync.Mutex
	ready   bool
	startup []*Envelope
}

// NewRouter returns a router sending requests over net, tagged with the
// forwarded-request handler id. The router buffers requests until Ready is
// called.
func NewRouter(net Transport, handler HandlerID, replies ReplySender, log zerolog.Logger, metrics *Metrics) *Router {
	return &Router{
		scale:   net.Scale(),
		net:     net,
		handler: handler,
		replies: replies,
		log:     log.With().Str("component", "router").Logger(),
		metrics: metrics,
		startup: make([]*Envelope, 0, StartupBufferSize),
	}
}

// Route accepts one client request. data holds the multicast PE list, if
// the selector announces one, followed by the payload. Requests with a bad
// selector are answered with an empty reply and go no further.
func (r *Router) Route(h Header, data []byte) error {
	pe := int(h.PE)
	if pe <= -r.scale || pe >= r.scale {
		if pe == -r.scale {
			r.log.Warn().Int("selector", pe).Str("handler", h.HandlerName()).
				Msg("invalid PE index in request: are you trying to do a broadcast instead?")
		} else {
			r.log.Warn().Int("selector", pe).Str("handler", h.HandlerName()).
				Msg("invalid PE index in request")
		}
		r.metrics.request("rejected")
		return r.reject(h)
	}

	env, err := NewEnvelope(h, data)
	if err == nil {
		err = normalize(env, r.scale)
	}
	if err != nil {
		r.log.Warn().Err(err).Str("handler", h.HandlerName()).Msg("malformed request")
		r.metrics.request("rejected")
		return r.reject(h)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.ready {
		return r.buffer(env)
	}
	return r.forward(env)
}

// Ready marks the router initialized and routes the buffered requests in
// arrival order. The startup buffer is discarded for good.
func (r *Router) Ready() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ready {
		return nil
	}
	r.ready = true
	queued := r.startup
	r.startup = nil

	if len(queued) > 0 {
		r.log.Info().Int("count", len(queued)).Msg("releasing buffered requests")
	}
	var errs []error
	for _, env := range queued {
		if err := r.forward(env); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Buffered returns the number of requests waiting for Ready.
func (r *Router) Buffered() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.startup)
}

func (r *Router) buffer(env *Envelope) error {
	if len(r.startup) >= StartupBufferSize {
		return fmt.Errorf("%w: %d requests arrived before the router was ready", ErrStartupBufferFull, len(r.startup)+1)
	}
	r.log.Info().Str("handler", env.Header.HandlerName()).Msg("buffering request")
	r.metrics.request("buffered")
	r.startup = append(r.startup, env)
	return nil
}

func (r *Router) forward(env *Envelope) error {
	to := head(env, r.scale)
	switch {
	case env.Header.PE >= 0:
		r.metrics.request("unicast")
	case env.Header.PE == Broadcast:
		r.metrics.request("broadcast")
	default:
		r.metrics.request("multicast")
	}
	r.log.Debug().Int("selector", int(env.Header.PE)).Int("to", to).
		Str("handler", env.Header.HandlerName()).Msg("routing request")
	return r.net.Send(to, &Message{Handler: r.handler, Data: env.Bytes()})
}

func (r *Router) reject(h Header) error {
	h.Len = 0
	return r.replies.SendReply(h, nil)
}

// normalize maps the multicast list onto PE indices. A PE listed twice
// would take two places in the relay tree, so such lists are refused.
func normalize(env *Envelope, scale int) error {
	seen := make(map[int32]bool, len(env.PEs))
	for i, pe := range env.PEs {
		w := int32(wrap(int(pe), scale))
		if seen[w] {
			return fmt.Errorf("PE %d listed more than once", w)
		}
		seen[w] = true
		env.PEs[i] = w
	}
	return nil
}
