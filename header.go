package ccs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
)

const (
	// MaxHandlerName is the size of the handler name field of Header.
	MaxHandlerName = 32
	// HeaderSize is the encoded size of Header.
	HeaderSize = 4*5 + MaxHandlerName
	// Broadcast is the selector addressing every PE of the job.
	Broadcast = -1
)

// Header is the fixed-size envelope preceding every request and reply
// payload. Multi-byte integers travel in network byte order.
type Header struct {
	// Len is the number of user payload bytes. The multicast PE list is not
	// counted.
	Len int32
	// PE is the target selector: >= 0 addresses one PE, Broadcast addresses
	// all of them and a value <= -2 multicasts to -PE listed PEs.
	PE int32
	// IP and Port identify the requesting client.
	IP   [4]byte
	Port int32
	// ReplyFd identifies the client connection waiting for the reply. It is
	// assigned by the socket server and opaque to the core.
	ReplyFd int32
	Handler [MaxHandlerName]byte
}

// NewHeader returns a header addressed to handler name with selector pe.
func NewHeader(name string, pe int) (Header, error) {
	h := Header{PE: int32(pe)}
	if err := h.SetHandlerName(name); err != nil {
		return Header{}, err
	}
	return h, nil
}

// HandlerName returns the NUL-padded handler field as a string.
func (h Header) HandlerName() string {
	if i := bytes.IndexByte(h.Handler[:], 0); i >= 0 {
		return string(h.Handler[:i])
	}
	return string(h.Handler[:])
}

// SetHandlerName stores name in the handler field.
func (h *Header) SetHandlerName(name string) error {
	if len(name) > MaxHandlerName {
		return fmt.Errorf("%w: %q", ErrHandlerNameTooLong, name)
	}
	h.Handler = [MaxHandlerName]byte{}
	copy(h.Handler[:], name)
	return nil
}

// Reducing reports whether replies to this header are merged across PEs,
// which is the case for broadcast and multicast requests.
func (h Header) Reducing() bool {
	return h.PE <= Broadcast
}

// ListLen returns the number of PE indices prefixed to a multicast payload.
func (h Header) ListLen() int {
	if h.PE < Broadcast {
		return int(-int64(h.PE))
	}
	return 0
}

// Caller returns the address of the requesting client.
func (h Header) Caller() (net.IP, int) {
	return net.IPv4(h.IP[0], h.IP[1], h.IP[2], h.IP[3]), int(h.Port)
}

// SetCaller records the address of the requesting client. Non IPv4
// addresses are recorded as zero.
func (h *Header) SetCaller(ip net.IP, port int) {
	h.IP = [4]byte{}
	if v4 := ip.To4(); v4 != nil {
		copy(h.IP[:], v4)
	}
	h.Port = int32(port)
}

// AppendBinary appends the wire form of h to b.
func (h Header) AppendBinary(b []byte) []byte {
	b = binary.BigEndian.AppendUint32(b, uint32(h.Len))
	b = binary.BigEndian.AppendUint32(b, uint32(h.PE))
	b = append(b, h.IP[:]...)
	b = binary.BigEndian.AppendUint32(b, uint32(h.Port))
	b = binary.BigEndian.AppendUint32(b, uint32(h.ReplyFd))
	return append(b, h.Handler[:]...)
}

// DecodeHeader reads a Header from the first HeaderSize bytes of b.
func DecodeHeader(b []byte) (Header, error) {
	var h Header
	if len(b) < HeaderSize {
		return h, fmt.Errorf("%w: header needs %d bytes, got %d", ErrShortMessage, HeaderSize, len(b))
	}
	h.Len = int32(binary.BigEndian.Uint32(b[0:]))
	h.PE = int32(binary.BigEndian.Uint32(b[4:]))
	copy(h.IP[:], b[8:12])
	h.Port = int32(binary.BigEndian.Uint32(b[12:]))
	h.ReplyFd = int32(binary.BigEndian.Uint32(b[16:]))
	copy(h.Handler[:], b[20:HeaderSize])
	return h, nil
}

// Envelope is a header together with the multicast PE list (if any) and
// the user payload. Requests, replies and reduction inputs share it.
type Envelope struct {
	Header  Header
	PEs     []int32
	Payload []byte
}

// NewEnvelope splits data, as received from a client, into the multicast
// list announced by h and the user payload. The returned envelope aliases
// data.
func NewEnvelope(h Header, data []byte) (*Envelope, error) {
	if h.Len < 0 {
		return nil, fmt.Errorf("%w: negative payload length %d", ErrShortMessage, h.Len)
	}
	k := h.ListLen()
	if need := 4*int64(k) + int64(h.Len); int64(len(data)) < need {
		return nil, fmt.Errorf("%w: payload needs %d bytes, got %d", ErrShortMessage, need, len(data))
	}
	env := &Envelope{Header: h}
	if k > 0 {
		env.PEs = make([]int32, k)
		for i := range env.PEs {
			env.PEs[i] = int32(binary.BigEndian.Uint32(data[4*i:]))
		}
	}
	env.Payload = data[4*k : 4*k+int(h.Len)]
	return env, nil
}

// ParseEnvelope decodes the wire form produced by Bytes.
func ParseEnvelope(b []byte) (*Envelope, error) {
	h, err := DecodeHeader(b)
	if err != nil {
		return nil, err
	}
	return NewEnvelope(h, b[HeaderSize:])
}

// Bytes returns the wire form of e: header, PE list, payload. The header's
// length field is set from the payload.
func (e *Envelope) Bytes() []byte {
	h := e.Header
	h.Len = int32(len(e.Payload))
	b := make([]byte, 0, HeaderSize+4*len(e.PEs)+len(e.Payload))
	b = h.AppendBinary(b)
	for _, pe := range e.PEs {
		b = binary.BigEndian.AppendUint32(b, uint32(pe))
	}
	return append(b, e.Payload...)
}
