package echo

import (
	"context"
	"encoding/binary"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stratumn/ccs"
	"github.com/stratumn/ccs/client"
	"github.com/stratumn/ccs/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scale = 4

func startJob(t *testing.T) *client.Client {
	t.Helper()
	srv, err := server.Listen("127.0.0.1:0", zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, srv, ccs.Config{Scale: scale, Workers: 2, Logger: zerolog.Nop()})
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Errorf("job did not stop")
		}
	})
	return client.New(srv.Addr().String())
}

func decode(t *testing.T, b []byte) []int {
	t.Helper()
	require.Zero(t, len(b)%4)
	vs := make([]int, len(b)/4)
	for i := range vs {
		vs[i] = int(int32(binary.BigEndian.Uint32(b[4*i:])))
	}
	return vs
}

func call(t *testing.T, f func(ctx context.Context) ([]byte, error)) []byte {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	reply, err := f(ctx)
	require.NoError(t, err)
	return reply
}

func TestEcho(t *testing.T) {
	c := startJob(t)

	reply := call(t, func(ctx context.Context) ([]byte, error) {
		return c.Call(ctx, Echo, 3, []byte("hi"))
	})
	assert.Equal(t, []byte("hi"), reply)

	reply = call(t, func(ctx context.Context) ([]byte, error) {
		return c.Call(ctx, Echo, 6, []byte("wrapped"))
	})
	assert.Equal(t, []byte("wrapped"), reply)
}

func TestRank(t *testing.T) {
	c := startJob(t)

	reply := call(t, func(ctx context.Context) ([]byte, error) {
		return c.Call(ctx, Rank, 2, nil)
	})
	assert.Equal(t, []int{2}, decode(t, reply))

	reply = call(t, func(ctx context.Context) ([]byte, error) {
		return c.Broadcast(ctx, Rank, nil)
	})
	got := decode(t, reply)
	sort.Ints(got)
	assert.Equal(t, []int{0, 1, 2, 3}, got)

	reply = call(t, func(ctx context.Context) ([]byte, error) {
		return c.Multicast(ctx, Rank, []int{3, 1}, nil)
	})
	got = decode(t, reply)
	sort.Ints(got)
	assert.Equal(t, []int{1, 3}, got)
}

func TestSum(t *testing.T) {
	c := startJob(t)

	reply := call(t, func(ctx context.Context) ([]byte, error) {
		return c.Broadcast(ctx, Sum, nil)
	})
	assert.Equal(t, []int{1 + 2 + 3 + 4}, decode(t, reply))
}

func TestLater(t *testing.T) {
	c := startJob(t)

	reply := call(t, func(ctx context.Context) ([]byte, error) {
		return c.Call(ctx, Later, 1, []byte("eventually"))
	})
	assert.Equal(t, []byte("eventually"), reply)
}

func TestEmptyReplies(t *testing.T) {
	c := startJob(t)

	for _, tc := range []struct {
		name string
		pe   int
	}{
		{Silent, 1},
		{"missing", 2},
		{Echo, scale},
		{ccs.GetInfoHandler, -scale},
	} {
		reply := call(t, func(ctx context.Context) ([]byte, error) {
			if tc.pe < -1 {
				return c.Multicast(ctx, tc.name, make([]int, -tc.pe), nil)
			}
			return c.Call(ctx, tc.name, tc.pe, nil)
		})
		assert.Empty(t, reply, tc.name)
	}
}

func TestGetInfo(t *testing.T) {
	c := startJob(t)

	reply := call(t, func(ctx context.Context) ([]byte, error) {
		return c.Call(ctx, ccs.GetInfoHandler, 0, nil)
	})
	assert.Equal(t, []int{scale, 1, 1, 1, 1}, decode(t, reply))
}
