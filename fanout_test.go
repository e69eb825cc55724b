package ccs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTreeFanOutBroadcast(t *testing.T) {
	f := TreeFanOut{}
	env := &Envelope{Header: Header{PE: Broadcast}}

	assert.Equal(t, []int{1, 2, 3}, f.Children(0, env, 4))
	assert.Empty(t, f.Children(2, env, 4))
	assert.Empty(t, f.Children(0, env, 1))
}

func TestTreeFanOutMulticast(t *testing.T) {
	f := TreeFanOut{Arity: 2}
	env := &Envelope{
		Header: Header{PE: -6},
		PEs:    []int32{5, 0, 3, 9, 7, 2},
	}

	assert.Equal(t, []int{0, 3}, f.Children(5, env, 8))
	assert.Equal(t, []int{1, 7}, f.Children(0, env, 8))
	assert.Equal(t, []int{2}, f.Children(3, env, 8))
	assert.Empty(t, f.Children(1, env, 8))
	assert.Empty(t, f.Children(4, env, 8))
}

func TestTreeFanOutDefaultArity(t *testing.T) {
	env := &Envelope{
		Header: Header{PE: -6},
		PEs:    []int32{0, 1, 2, 3, 4, 5},
	}

	assert.Equal(t, []int{1, 2, 3, 4}, TreeFanOut{}.Children(0, env, 8))
	assert.Equal(t, []int{5}, TreeFanOut{}.Children(1, env, 8))
}

func TestTreeFanOutUnicast(t *testing.T) {
	env := &Envelope{Header: Header{PE: 3}}
	assert.Empty(t, TreeFanOut{}.Children(3, env, 4))
}

func TestHead(t *testing.T) {
	assert.Equal(t, 3, head(&Envelope{Header: Header{PE: 3}}, 8))
	assert.Equal(t, 1, head(&Envelope{Header: Header{PE: 9}}, 8))
	assert.Equal(t, 0, head(&Envelope{Header: Header{PE: Broadcast}}, 8))
	assert.Equal(t, 6, head(&Envelope{Header: Header{PE: -2}, PEs: []int32{-2, 1}}, 8))
}
