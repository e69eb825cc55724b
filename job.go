package ccs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// ForwardingPE is the PE that owns the client connections: requests enter
// the job there and every reply leaves from there.
const ForwardingPE = 0

// Config is used to initialize a new Job.
type Config struct {
	// Scale is the number of PEs of the job.
	Scale int
	// Workers is the number of execution contexts per PE. Each context
	// handles one request at a time. Defaults to 1.
	Workers int
	// Setup registers the handlers of PE pe. It is called once per PE
	// before any request is dispatched.
	Setup func(pe int, t *HandlerTable) error
	// Replies delivers replies to the client connections.
	Replies ReplySender
	// FanOut relays broadcast and multicast requests. Defaults to TreeFanOut.
	FanOut FanOut
	// Interceptor optionally returns the debugging interceptor of PE pe.
	Interceptor func(pe int) Interceptor
	// Logger receives the job's logs; the zero value discards them.
	Logger zerolog.Logger
	// Metrics is optional.
	Metrics *Metrics
	// Abort is called with the error of a violated internal contract. The
	// default logs and panics.
	Abort func(error)
	// Debug enables tracing of every routed message and reply.
	Debug bool
}

// messageHandler consumes one transport message on an execution context.
type messageHandler func(ctx context.Context, w *worker, m *Message) error

// Job is a set of PEs connected by a transport, fronted by a router on the
// forwarding PE.
type Job struct {
	c        *Config
	net      *Net
	pes      []*PE
	router   *Router
	fanOut   FanOut
	handlers []messageHandler
	log      zerolog.Logger
	abort    func(error)

	requestID HandlerID
	replyID   HandlerID
	reduceID  HandlerID
	absentID  HandlerID

	started atomic.Bool
}

// PE is one processing element: a handler table, its execution contexts
// and, on the forwarding PE, the reduction state.
type PE struct {
	index       int
	job         *Job
	table       *HandlerTable
	interceptor Interceptor
	reductions  *reducer
	workers     []*worker
	log         zerolog.Logger
}

// NewJob creates the PEs of a job and runs their setup. Requests submitted
// before Run are buffered by the router.
func NewJob(c *Config) (*Job, error) {
	if c.Scale <= 0 {
		return nil, ErrIncorrectScale
	}
	if c.Replies == nil {
		return nil, errors.New("job needs a reply sender")
	}

	log := c.Logger
	if c.Debug {
		log = log.Level(zerolog.DebugLevel)
	} else if log.GetLevel() < zerolog.InfoLevel {
		log = log.Level(zerolog.InfoLevel)
	}

	j := &Job{
		c:      c,
		net:    NewNet(c.Scale),
		pes:    make([]*PE, c.Scale),
		fanOut: c.FanOut,
		log:    log,
		abort:  c.Abort,
	}
	if j.fanOut == nil {
		j.fanOut = TreeFanOut{}
	}
	if j.abort == nil {
		j.abort = func(err error) {
			log.Error().Err(err).Msg("aborting")
			panic(err)
		}
	}

	j.requestID = j.registerHandler(requestHandler)
	j.replyID = j.registerHandler(replyHandler)
	j.reduceID = j.registerHandler(reduceHandler)
	j.absentID = j.registerHandler(absentHandler)

	workers := c.Workers
	if workers <= 0 {
		workers = 1
	}

	for i := range j.pes {
		p := &PE{
			index: i,
			job:   j,
			table: NewHandlerTable(),
			log:   log.With().Int("pe", i).Logger(),
		}
		if i == ForwardingPE {
			p.reductions = newReducer()
		}
		if c.Interceptor != nil {
			p.interceptor = c.Interceptor(i)
		}
		if err := registerBuiltins(p.table, c.Scale); err != nil {
			j.net.Close()
			return nil, err
		}
		if c.Setup != nil {
			if err := c.Setup(i, p.table); err != nil {
				j.net.Close()
				return nil, fmt.Errorf("setup PE %d: %w", i, err)
			}
		}
		for w := 0; w < workers; w++ {
			p.workers = append(p.workers, &worker{
				pe:  p,
				id:  w,
				log: p.log.With().Int("worker", w).Logger(),
			})
		}
		j.pes[i] = p
	}

	j.router = NewRouter(j.net, j.requestID, c.Replies, j.pes[ForwardingPE].log, c.Metrics)

	return j, nil
}

// registerHandler allocates the id of a transport message handler. Ids are
// allocated before any PE runs, so every PE agrees on them.
func (j *Job) registerHandler(h messageHandler) HandlerID {
	j.handlers = append(j.handlers, h)
	return HandlerID(len(j.handlers) - 1)
}

func (j *Job) handler(id HandlerID) messageHandler {
	if id < 0 || int(id) >= len(j.handlers) {
		return nil
	}
	return j.handlers[id]
}

// Run starts every execution context, then readies the router so buffered
// requests get routed. It returns once ctx is cancelled and every context
// has stopped. A job runs only once.
func (j *Job) Run(ctx context.Context) error {
	if !j.started.CompareAndSwap(false, true) {
		return errors.New("job already ran")
	}
	return j.run(ctx)
}

func (j *Job) run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, p := range j.pes {
		inbox, err := j.net.Recv(p.index)
		if err != nil {
			return err
		}
		for _, w := range p.workers {
			wg.Add(1)
			go func(w *worker) {
				defer wg.Done()
				w.loop(ctx, inbox)
			}(w)
		}
	}

	readyErr := j.router.Ready()
	if readyErr != nil {
		j.log.Error().Err(readyErr).Msg("routing buffered requests")
	}

	<-ctx.Done()
	j.net.Close()
	wg.Wait()

	return readyErr
}

// Submit hands a client request to the router. It is safe for concurrent
// use by the socket server.
func (j *Job) Submit(h Header, data []byte) error {
	err := j.router.Route(h, data)
	if err != nil && fatal(err) {
		j.abort(err)
	}
	return err
}

// Scale returns the number of PEs.
func (j *Job) Scale() int {
	return len(j.pes)
}

// PE returns PE i, or nil when i is out of range.
func (j *Job) PE(i int) *PE {
	if i < 0 || i >= len(j.pes) {
		return nil
	}
	return j.pes[i]
}

// Router returns the router of the forwarding PE.
func (j *Job) Router() *Router {
	return j.router
}

// Status returns a string providing insights on the transport.
func (j *Job) Status() string {
	receivedN, bufferedN, sentN := j.net.Stats()
	return fmt.Sprintf("net [%5d/%5d/%5d] buffered %d", receivedN, bufferedN, sentN, j.router.Buffered())
}

// BufferStats redirects the call to the underlying BufferStats of Net object
func (j *Job) BufferStats() string {
	return j.net.BufferStats()
}

// Index returns the PE index.
func (p *PE) Index() int { return p.index }

// Table returns the handler table of the PE.
func (p *PE) Table() *HandlerTable { return p.table }

func (p *PE) send(to int, id HandlerID, data []byte) error {
	return p.job.net.Send(to, &Message{Handler: id, Data: data})
}
