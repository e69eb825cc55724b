package ccs

import (
	"encoding/binary"
	"fmt"
	"math"
)

// MergeFunc combines the replies sent by every PE taking part in a
// broadcast or multicast into one. The local envelope is owned by the merge
// and may be returned modified; remote envelopes are only read.
type MergeFunc func(local *Envelope, remote []*Envelope) (*Envelope, error)

// MergeConcat appends the remote payloads to the local one, in order. Use
// it for list-shaped replies of any length.
var MergeConcat MergeFunc = concat

func concat(local *Envelope, remote []*Envelope) (*Envelope, error) {
	total := len(local.Payload)
	for _, r := range remote {
		total += len(r.Payload)
	}
	payload := make([]byte, 0, total)
	payload = append(payload, local.Payload...)
	for _, r := range remote {
		payload = append(payload, r.Payload...)
	}
	merged := &Envelope{Header: local.Header, PEs: local.PEs, Payload: payload}
	merged.Header.Len = int32(total)
	return merged, nil
}

// Elementwise merges. Every input must declare the same payload length;
// elements are decoded in network byte order.
var (
	MergeLogicalAnd = elementwise(int32s, func(a, b int32) int32 { return bool32(a != 0 && b != 0) })
	MergeLogicalOr  = elementwise(int32s, func(a, b int32) int32 { return bool32(a != 0 || b != 0) })
	MergeBitAnd     = elementwise(int32s, func(a, b int32) int32 { return a & b })
	MergeBitOr      = elementwise(int32s, func(a, b int32) int32 { return a | b })

	MergeSumInt    = elementwise(int32s, sum[int32])
	MergeSumFloat  = elementwise(float32s, sum[float32])
	MergeSumDouble = elementwise(float64s, sum[float64])

	MergeProductInt    = elementwise(int32s, product[int32])
	MergeProductFloat  = elementwise(float32s, product[float32])
	MergeProductDouble = elementwise(float64s, product[float64])

	MergeMaxInt    = elementwise(int32s, greater[int32])
	MergeMaxFloat  = elementwise(float32s, greater[float32])
	MergeMaxDouble = elementwise(float64s, greater[float64])

	MergeMinInt    = elementwise(int32s, lesser[int32])
	MergeMinFloat  = elementwise(float32s, lesser[float32])
	MergeMinDouble = elementwise(float64s, lesser[float64])
)

type number interface {
	~int32 | ~float32 | ~float64
}

// layout describes how one element is laid out in a payload.
type layout[T number] struct {
	size int
	get  func([]byte) T
	put  func([]byte, T)
}

var (
	int32s = layout[int32]{
		size: 4,
		get:  func(b []byte) int32 { return int32(binary.BigEndian.Uint32(b)) },
		put:  func(b []byte, v int32) { binary.BigEndian.PutUint32(b, uint32(v)) },
	}
	float32s = layout[float32]{
		size: 4,
		get:  func(b []byte) float32 { return math.Float32frombits(binary.BigEndian.Uint32(b)) },
		put:  func(b []byte, v float32) { binary.BigEndian.PutUint32(b, math.Float32bits(v)) },
	}
	float64s = layout[float64]{
		size: 8,
		get:  func(b []byte) float64 { return math.Float64frombits(binary.BigEndian.Uint64(b)) },
		put:  func(b []byte, v float64) { binary.BigEndian.PutUint64(b, math.Float64bits(v)) },
	}
)

func elementwise[T number](l layout[T], op func(a, b T) T) MergeFunc {
	return func(local *Envelope, remote []*Envelope) (*Envelope, error) {
		n := len(local.Payload)
		if int(local.Header.Len) != n {
			return nil, fmt.Errorf("%w: local declares %d bytes, holds %d", ErrLengthMismatch, local.Header.Len, n)
		}
		for i, r := range remote {
			if r.Header.Len != local.Header.Len || len(r.Payload) != n {
				return nil, fmt.Errorf("%w: input %d declares %d bytes, local %d", ErrLengthMismatch, i+1, r.Header.Len, local.Header.Len)
			}
		}
		for off := 0; off+l.size <= n; off += l.size {
			acc := l.get(local.Payload[off:])
			for _, r := range remote {
				acc = op(acc, l.get(r.Payload[off:]))
			}
			l.put(local.Payload[off:], acc)
		}
		return local, nil
	}
}

func sum[T number](a, b T) T     { return a + b }
func product[T number](a, b T) T { return a * b }

func greater[T number](a, b T) T {
	if a < b {
		return b
	}
	return a
}

func lesser[T number](a, b T) T {
	if a > b {
		return b
	}
	return a
}

func bool32(v bool) int32 {
	if v {
		return 1
	}
	return 0
}
