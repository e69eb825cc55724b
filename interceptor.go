package ccs

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"
)

// Interceptor replaces handler execution while a debugger is conditionally
// delivering requests: the reply comes from the interceptor instead of the
// handler. Await may block the execution context.
type Interceptor interface {
	// Active reports whether requests are currently intercepted.
	Active() bool
	// Await returns the reply for the pending request.
	Await(ctx context.Context) ([]byte, error)
	// End stops interception.
	End()
}

// PipeInterceptor reads length-prefixed replies from a pipe fed by an
// external process.
type PipeInterceptor struct {
	r       io.Reader
	timeout time.Duration
	active  atomic.Bool
}

// NewPipeInterceptor returns an active interceptor reading from r. A
// positive timeout bounds each Await.
func NewPipeInterceptor(r io.Reader, timeout time.Duration) *PipeInterceptor {
	p := &PipeInterceptor{r: r, timeout: timeout}
	p.active.Store(true)
	return p
}

// Active implements Interceptor.
func (p *PipeInterceptor) Active() bool { return p.active.Load() }

// End implements Interceptor.
func (p *PipeInterceptor) End() { p.active.Store(false) }

// Await implements Interceptor. The frame is a big-endian int32 length
// followed by that many bytes.
func (p *PipeInterceptor) Await(ctx context.Context) ([]byte, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	type result struct {
		data []byte
		err  error
	}
	c := make(chan result, 1)
	go func() {
		data, err := p.read()
		c <- result{data, err}
	}()

	select {
	case r := <-c:
		return r.data, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrInterceptorClosed, ctx.Err())
	}
}

func (p *PipeInterceptor) read() ([]byte, error) {
	var n int32
	if err := binary.Read(p.r, binary.BigEndian, &n); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrInterceptorClosed
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedInterceptor, err)
	}
	if n < 0 || n > MaxRequestSize {
		return nil, fmt.Errorf("%w: length %d", ErrMalformedInterceptor, n)
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(p.r, data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInterceptor, err)
	}
	return data, nil
}
