// Package echo is a small job answering a handful of handlers over TCP,
// used to try clients against a live job.
package echo

import (
	"context"
	"encoding/binary"

	"github.com/stratumn/ccs"
	"github.com/stratumn/ccs/server"
	"golang.org/x/sync/errgroup"
)

// Handler names.
const (
	// Echo replies with the request payload.
	Echo = "echo"
	// Rank replies with the PE index; broadcast replies are concatenated.
	Rank = "rank"
	// Sum replies with the PE index plus one; broadcast replies are summed.
	Sum = "sum"
	// Later answers from another goroutine through a delayed reply.
	Later = "later"
	// Silent never replies, leaving the empty reply to the dispatcher.
	Silent = "silent"
)

// Setup registers the example handlers on PE pe.
func Setup(pe int, t *ccs.HandlerTable) error {
	if err := t.RegisterFunc(Echo, func(api ccs.API, _ interface{}, data []byte) {
		_ = api.Reply(data)
	}, nil); err != nil {
		return err
	}
	if err := t.AttachMerge(Echo, ccs.MergeConcat); err != nil {
		return err
	}

	if err := t.RegisterFunc(Rank, func(api ccs.API, _ interface{}, _ []byte) {
		_ = api.Reply(int32s(int32(api.PE())))
	}, nil); err != nil {
		return err
	}
	if err := t.AttachMerge(Rank, ccs.MergeConcat); err != nil {
		return err
	}

	if err := t.RegisterFunc(Sum, func(api ccs.API, _ interface{}, _ []byte) {
		_ = api.Reply(int32s(int32(api.PE() + 1)))
	}, nil); err != nil {
		return err
	}
	if err := t.AttachMerge(Sum, ccs.MergeSumInt); err != nil {
		return err
	}

	if err := t.RegisterMessage(Later, func(api ccs.API, msg *ccs.Message) {
		d, err := api.DelayReply()
		if err != nil {
			return
		}
		go func() {
			defer msg.Release()
			_ = d.Reply(msg.Data)
		}()
	}); err != nil {
		return err
	}

	return t.RegisterFunc(Silent, func(ccs.API, interface{}, []byte) {}, nil)
}

// Serve runs a job configured by c behind srv until ctx is cancelled. The
// example handlers and srv replace c.Setup and c.Replies.
func Serve(ctx context.Context, srv *server.Server, c ccs.Config) error {
	c.Setup = Setup
	c.Replies = srv
	job, err := ccs.NewJob(&c)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return job.Run(ctx)
	})
	g.Go(func() error {
		return srv.Serve(ctx, job)
	})
	return g.Wait()
}

func int32s(vs ...int32) []byte {
	b := make([]byte, 0, 4*len(vs))
	for _, v := range vs {
		b = binary.BigEndian.AppendUint32(b, uint32(v))
	}
	return b
}
