// Package client sends requests to a running ccs job from outside of it.
package client

import (
	"context"
	"errors"
	"net"

	"github.com/stratumn/ccs"
)

// Client lets a tool call the handlers of a job. Each call uses its own
// connection.
type Client struct {
	addr   string
	dialer net.Dialer
}

// New returns a client of the job listening at addr.
func New(addr string) *Client {
	return &Client{addr: addr}
}

// Call sends data to handler name on PE pe and returns the reply.
func (c *Client) Call(ctx context.Context, name string, pe int, data []byte) ([]byte, error) {
	return c.request(ctx, name, pe, nil, data)
}

// Broadcast sends data to handler name on every PE and returns the merged
// reply.
func (c *Client) Broadcast(ctx context.Context, name string, data []byte) ([]byte, error) {
	return c.request(ctx, name, ccs.Broadcast, nil, data)
}

// Multicast sends data to handler name on the listed PEs and returns the
// merged reply. A single PE is addressed directly, since a one-entry list
// would read as a broadcast selector.
func (c *Client) Multicast(ctx context.Context, name string, pes []int, data []byte) ([]byte, error) {
	switch len(pes) {
	case 0:
		return nil, errors.New("multicast needs at least one PE")
	case 1:
		return c.Call(ctx, name, pes[0], data)
	}
	list := make([]int32, len(pes))
	for i, pe := range pes {
		list[i] = int32(pe)
	}
	return c.request(ctx, name, -len(pes), list, data)
}

func (c *Client) request(ctx context.Context, name string, pe int, pes []int32, data []byte) ([]byte, error) {
	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	// Closing the connection unblocks the reads once ctx is done.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := ccs.WriteRequest(conn, name, pe, pes, data); err != nil {
		return nil, err
	}
	reply, err := ccs.ReadReply(conn)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return reply, nil
}
