package ccs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIncorrectPE(t *testing.T) {
	const scale = 4

	n := NewNet(scale)
	defer n.Close()

	var err error

	err = n.Send(5, &Message{})
	assert.ErrorIs(t, err, ErrIncorrectPE)

	err = n.Send(-1, &Message{})
	assert.ErrorIs(t, err, ErrIncorrectPE)

	_, err = n.Recv(5)
	assert.ErrorIs(t, err, ErrIncorrectPE)

	_, err = n.Recv(-1)
	assert.ErrorIs(t, err, ErrIncorrectPE)
}

func TestSingle(t *testing.T) {
	const scale = 4

	n := NewNet(scale)
	defer n.Close()

	m := &Message{Handler: 7, Data: []byte("data")}
	err := n.Send(2, m)
	require.NoError(t, err)

	recvC, err := n.Recv(2)
	require.NoError(t, err)

	select {
	case recv := <-recvC:
		assert.Same(t, m, recv)
	case <-time.After(1 * time.Second):
		t.Fatalf("timeout")
	}
}

func TestQueue(t *testing.T) {
	const scale = 4

	n := NewNet(scale)
	defer n.Close()

	data := make([]HandlerID, 100)
	for i := 0; i < len(data); i++ {
		data[i] = HandlerID(i)
	}

	doneC := make(chan error)

	go func() {
		for i := 0; i < len(data); i++ {
			if err := n.Send(1, &Message{Handler: data[i]}); err != nil {
				doneC <- err
				return
			}
		}
		doneC <- nil
	}()

	select {
	case err := <-doneC:
		require.NoError(t, err)
	case <-time.After(1 * time.Second):
		t.Fatalf("timeout")
	}

	recvC, err := n.Recv(1)
	require.NoError(t, err)

	recv := make([]HandlerID, 0, len(data))
	for len(recv) < len(data) {
		select {
		case m := <-recvC:
			recv = append(recv, m.Handler)
		case <-time.After(1 * time.Second):
			t.Fatalf("timeout")
		}
	}

	assert.Equal(t, data, recv)

	received, buffered, sent := n.Stats()
	assert.Equal(t, 100, received)
	assert.Equal(t, 0, buffered)
	assert.Equal(t, 100, sent)
}

func TestClose(t *testing.T) {
	n := NewNet(2)

	recvC, err := n.Recv(0)
	require.NoError(t, err)

	n.Close()
	n.Close()

	select {
	case _, ok := <-recvC:
		assert.False(t, ok)
	case <-time.After(1 * time.Second):
		t.Fatalf("timeout")
	}

	assert.ErrorIs(t, n.Send(1, &Message{}), ErrNetClosed)
}

func TestBufferStats(t *testing.T) {
	const scale = 4

	n := NewNet(scale)
	defer n.Close()

	for _, to := range []int{1, 1, 2, 2, 2, 3} {
		require.NoError(t, n.Send(to, &Message{}))
	}

	expected := `
  pe|   0|   1|   2|   3|
----+----+----+----+----+
    |    |   2|   3|   1|
`[1:] // remove first linebreak

	done := make(chan struct{})
	var actual string

	go func() {
		for {
			time.Sleep(10 * time.Millisecond)
			actual = n.BufferStats()
			if expected == actual {
				done <- struct{}{}
				return
			}
		}
	}()

	select {
	case <-done:
		break
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("expected: \n%s\n actual: \n%s\n", expected, actual)
	}
}

func TestMessageRelease(t *testing.T) {
	m := &Message{Data: []byte("x")}
	m.Release()
	assert.Nil(t, m.Data)
}
