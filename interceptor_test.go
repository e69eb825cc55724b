package ccs

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(payload string) []byte {
	return append(ints(int32(len(payload))), payload...)
}

func TestPipeInterceptor(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(frame("first"))
	buf.Write(frame(""))

	p := NewPipeInterceptor(&buf, time.Second)
	require.True(t, p.Active())

	data, err := p.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), data)

	data, err = p.Await(context.Background())
	require.NoError(t, err)
	assert.Empty(t, data)

	_, err = p.Await(context.Background())
	assert.ErrorIs(t, err, ErrInterceptorClosed)

	p.End()
	assert.False(t, p.Active())
}

func TestPipeInterceptorMalformed(t *testing.T) {
	p := NewPipeInterceptor(bytes.NewReader([]byte{0, 0}), 0)
	_, err := p.Await(context.Background())
	assert.ErrorIs(t, err, ErrMalformedInterceptor)

	p = NewPipeInterceptor(bytes.NewReader(ints(-1)), 0)
	_, err = p.Await(context.Background())
	assert.ErrorIs(t, err, ErrMalformedInterceptor)

	p = NewPipeInterceptor(bytes.NewReader(append(ints(4), 'a')), 0)
	_, err = p.Await(context.Background())
	assert.ErrorIs(t, err, ErrMalformedInterceptor)
}

func TestPipeInterceptorTimeout(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()

	p := NewPipeInterceptor(r, 20*time.Millisecond)
	_, err := p.Await(context.Background())
	assert.ErrorIs(t, err, ErrInterceptorClosed)
}

func TestPipeInterceptorCancel(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewPipeInterceptor(r, 0)
	_, err := p.Await(ctx)
	assert.ErrorIs(t, err, ErrInterceptorClosed)
}
