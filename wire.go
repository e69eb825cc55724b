package ccs

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// RequestHeaderSize is the size of the frame header a client sends:
	// payload length, selector and handler name.
	RequestHeaderSize = 4 + 4 + MaxHandlerName
	// MaxRequestSize bounds the bytes a single client frame may announce.
	MaxRequestSize = 16 << 20
)

// WriteRequest sends one client request frame. For a multicast (pe <= -2)
// the list pes is written ahead of the payload and must hold -pe entries.
func WriteRequest(w io.Writer, name string, pe int, pes []int32, payload []byte) error {
	h, err := NewHeader(name, pe)
	if err != nil {
		return err
	}
	if h.ListLen() != len(pes) {
		return fmt.Errorf("selector %d needs %d PE indices, got %d", pe, h.ListLen(), len(pes))
	}
	b := make([]byte, 0, RequestHeaderSize+4*len(pes)+len(payload))
	b = binary.BigEndian.AppendUint32(b, uint32(len(payload)))
	b = binary.BigEndian.AppendUint32(b, uint32(h.PE))
	b = append(b, h.Handler[:]...)
	for _, p := range pes {
		b = binary.BigEndian.AppendUint32(b, uint32(p))
	}
	b = append(b, payload...)
	return writeAll(w, b)
}

// ReadRequest receives one client request frame. The returned data holds
// the multicast list, if any, followed by the payload. Caller address and
// reply id are left for the server to fill in.
func ReadRequest(r io.Reader) (Header, []byte, error) {
	h, err := ReadRequestHeader(r)
	if err != nil {
		return h, nil, err
	}
	data, err := ReadRequestBody(r, h)
	return h, data, err
}

// ReadRequestHeader receives the fixed part of a client request frame.
func ReadRequestHeader(r io.Reader) (Header, error) {
	var h Header
	raw := make([]byte, RequestHeaderSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return h, err
	}
	h.Len = int32(binary.BigEndian.Uint32(raw[0:]))
	h.PE = int32(binary.BigEndian.Uint32(raw[4:]))
	copy(h.Handler[:], raw[8:])
	return h, nil
}

// ReadRequestBody receives the multicast list and payload announced by h.
func ReadRequestBody(r io.Reader, h Header) ([]byte, error) {
	size, err := bodySize(h)
	if err != nil {
		return nil, err
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}

// DiscardRequestBody reads past the multicast list and payload announced by
// h without keeping them.
func DiscardRequestBody(r io.Reader, h Header) error {
	size, err := bodySize(h)
	if err != nil {
		return err
	}
	if _, err := io.CopyN(io.Discard, r, size); err != nil {
		if errors.Is(err, io.EOF) {
			return io.ErrUnexpectedEOF
		}
		return err
	}
	return nil
}

func bodySize(h Header) (int64, error) {
	if h.Len < 0 {
		return 0, fmt.Errorf("%w: negative payload length %d", ErrShortMessage, h.Len)
	}
	list := 4 * int64(h.ListLen())
	if list > MaxRequestSize {
		return 0, fmt.Errorf("%w: list of %d PEs", ErrRequestTooLarge, h.ListLen())
	}
	size := int64(h.Len) + list
	if size > MaxRequestSize {
		return 0, fmt.Errorf("%w: %d bytes", ErrRequestTooLarge, size)
	}
	return size, nil
}

// WriteReply sends one reply frame: a 4-byte length then the payload.
func WriteReply(w io.Writer, payload []byte) error {
	b := make([]byte, 0, 4+len(payload))
	b = binary.BigEndian.AppendUint32(b, uint32(len(payload)))
	return writeAll(w, append(b, payload...))
}

// ReadReply receives one reply frame.
func ReadReply(r io.Reader) ([]byte, error) {
	var n int32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	if n < 0 || n > MaxRequestSize {
		return nil, fmt.Errorf("invalid reply length %d", n)
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}

func writeAll(w io.Writer, b []byte) error {
	written := 0
	for written < len(b) {
		n, err := w.Write(b[written:])
		if err != nil {
			return err
		}
		written += n
	}
	return nil
}
