package ccs

import (
	"encoding/binary"
	"math"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderEncoding(t *testing.T) {
	h, err := NewHeader("echo", 3)
	require.NoError(t, err)
	h.Len = 2
	h.SetCaller(net.ParseIP("10.1.2.3"), 4242)
	h.ReplyFd = 17

	b := h.AppendBinary(nil)
	require.Len(t, b, HeaderSize)
	assert.Equal(t, []byte{0, 0, 0, 2, 0, 0, 0, 3, 10, 1, 2, 3}, b[:12])

	got, err := DecodeHeader(b)
	require.NoError(t, err)
	assert.Equal(t, h, got)
	assert.Equal(t, "echo", got.HandlerName())

	ip, port := got.Caller()
	assert.True(t, ip.Equal(net.ParseIP("10.1.2.3")))
	assert.Equal(t, 4242, port)
}

func TestHeaderHandlerName(t *testing.T) {
	name := strings.Repeat("x", MaxHandlerName)
	h, err := NewHeader(name, 0)
	require.NoError(t, err)
	assert.Equal(t, name, h.HandlerName())

	require.NoError(t, h.SetHandlerName("ab"))
	assert.Equal(t, "ab", h.HandlerName())

	_, err = NewHeader(name+"y", 0)
	assert.ErrorIs(t, err, ErrHandlerNameTooLong)
}

func TestHeaderSelector(t *testing.T) {
	for _, tc := range []struct {
		pe       int32
		reducing bool
		list     int
	}{
		{pe: 0},
		{pe: 5},
		{pe: Broadcast, reducing: true},
		{pe: -2, reducing: true, list: 2},
		{pe: -7, reducing: true, list: 7},
		{pe: math.MinInt32, reducing: true, list: 1 << 31},
	} {
		h := Header{PE: tc.pe}
		assert.Equal(t, tc.reducing, h.Reducing(), "selector %d", tc.pe)
		assert.Equal(t, tc.list, h.ListLen(), "selector %d", tc.pe)
	}
}

func TestDecodeHeaderShort(t *testing.T) {
	_, err := DecodeHeader(make([]byte, HeaderSize-1))
	assert.ErrorIs(t, err, ErrShortMessage)
}

func TestEnvelopeMulticastList(t *testing.T) {
	h, err := NewHeader("list", -3)
	require.NoError(t, err)
	h.Len = 2

	data := []byte{}
	for _, pe := range []uint32{4, 1, 6} {
		data = binary.BigEndian.AppendUint32(data, pe)
	}
	data = append(data, "hi"...)

	env, err := NewEnvelope(h, data)
	require.NoError(t, err)
	assert.Equal(t, []int32{4, 1, 6}, env.PEs)
	assert.Equal(t, []byte("hi"), env.Payload)

	parsed, err := ParseEnvelope(env.Bytes())
	require.NoError(t, err)
	assert.Equal(t, env, parsed)
}

func TestEnvelopeShort(t *testing.T) {
	h := Header{PE: -2, Len: 1}
	_, err := NewEnvelope(h, make([]byte, 8))
	assert.ErrorIs(t, err, ErrShortMessage)

	h = Header{PE: math.MinInt32}
	_, err = NewEnvelope(h, make([]byte, 64))
	assert.ErrorIs(t, err, ErrShortMessage)

	h = Header{PE: 0, Len: -1}
	_, err = NewEnvelope(h, nil)
	assert.ErrorIs(t, err, ErrShortMessage)
}

func TestEnvelopeBytesSetsLength(t *testing.T) {
	env := &Envelope{Header: Header{PE: 1, Len: 99}, Payload: []byte("abc")}
	parsed, err := ParseEnvelope(env.Bytes())
	require.NoError(t, err)
	assert.Equal(t, int32(3), parsed.Header.Len)
	assert.Equal(t, []byte("abc"), parsed.Payload)
}
