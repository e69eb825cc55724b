// Package server accepts client connections for a ccs job, reads one
// request per connection and keeps the connection open until the job
// replies.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stratumn/ccs"
)

// ErrNoConnection is returned by SendReply when the connection of a reply
// is unknown, e.g. because it was already answered.
var ErrNoConnection = errors.New("no open connection for reply")

// Submitter is the job side of the server.
type Submitter interface {
	Submit(h ccs.Header, data []byte) error
	Scale() int
}

// Server is a TCP socket server implementing ccs.ReplySender.
type Server struct {
	ln  net.Listener
	log zerolog.Logger

	// ReadTimeout bounds reading a request once a connection is accepted.
	ReadTimeout time.Duration

	mu    sync.Mutex
	conns map[int32]*conn
	next  int32
}

type conn struct {
	net.Conn
	session uuid.UUID
}

// Listen opens the client-facing port. Use port 0 to pick a free one.
func Listen(addr string, log zerolog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		ln:          ln,
		log:         log.With().Str("component", "server").Logger(),
		ReadTimeout: 10 * time.Second,
		conns:       make(map[int32]*conn),
	}, nil
}

// Addr returns the listening address.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Serve accepts connections until ctx is cancelled and submits each request
// to job.
func (s *Server) Serve(ctx context.Context, job Submitter) error {
	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()

	for {
		c, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.closeAll()
				return nil
			}
			return err
		}
		go s.handle(c, job)
	}
}

func (s *Server) handle(nc net.Conn, job Submitter) {
	c := &conn{Conn: nc, session: uuid.New()}
	log := s.log.With().Str("session", c.session.String()).Str("remote", nc.RemoteAddr().String()).Logger()

	if s.ReadTimeout > 0 {
		_ = nc.SetReadDeadline(time.Now().Add(s.ReadTimeout))
	}
	h, err := ccs.ReadRequestHeader(nc)
	if err != nil {
		log.Warn().Err(err).Msg("reading request")
		nc.Close()
		return
	}
	// The job rejects a selector out of range without looking at the data,
	// so the announced PE list is skipped instead of buffered.
	var data []byte
	if n := job.Scale(); int(h.PE) > -n && int(h.PE) < n {
		data, err = ccs.ReadRequestBody(nc, h)
	} else {
		err = ccs.DiscardRequestBody(nc, h)
	}
	if err != nil {
		log.Warn().Err(err).Msg("reading request")
		nc.Close()
		return
	}
	_ = nc.SetReadDeadline(time.Time{})

	if addr, ok := nc.RemoteAddr().(*net.TCPAddr); ok {
		h.SetCaller(addr.IP, addr.Port)
	}
	h.ReplyFd = s.track(c)

	log.Debug().Str("handler", h.HandlerName()).Int("selector", int(h.PE)).Msg("received request")
	if err := job.Submit(h, data); err != nil {
		log.Error().Err(err).Msg("submitting request")
		s.drop(h.ReplyFd)
	}
}

func (s *Server) track(c *conn) int32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next++
	s.conns[s.next] = c
	return s.next
}

func (s *Server) take(id int32) *conn {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.conns[id]
	delete(s.conns, id)
	return c
}

func (s *Server) drop(id int32) {
	if c := s.take(id); c != nil {
		c.Close()
	}
}

// SendReply implements ccs.ReplySender: it writes payload to the connection
// the request came from and closes it.
func (s *Server) SendReply(h ccs.Header, payload []byte) error {
	c := s.take(h.ReplyFd)
	if c == nil {
		return fmt.Errorf("%w: %d", ErrNoConnection, h.ReplyFd)
	}
	defer c.Close()

	if err := ccs.WriteReply(c, payload); err != nil {
		s.log.Warn().Err(err).Str("session", c.session.String()).Msg("writing reply")
		return err
	}
	return nil
}

// Pending returns the number of connections waiting for a reply.
func (s *Server) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.conns)
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, c := range s.conns {
		c.Close()
		delete(s.conns, id)
	}
}
