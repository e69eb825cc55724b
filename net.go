package ccs

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// HandlerID tags a transport message with the job-level handler that
// consumes it. The same id means the same handler on every PE.
type HandlerID int

// Message is one unit of work travelling between PEs. Once sent, its Data
// belongs to the receiver.
type Message struct {
	Handler HandlerID
	Data    []byte
}

// Release drops the message data. A message must not be used after it is
// released.
func (m *Message) Release() {
	m.Data = nil
}

// Transport moves messages between the PEs of a job.
type Transport interface {
	// Scale returns the number of PEs.
	Scale() int
	// Send hands m over to PE to; the caller gives up ownership of m.
	Send(to int, m *Message) error
	// Recv returns the inbox of PE pe.
	Recv(pe int) (<-chan *Message, error)
}

// Net is an in-memory Transport. Every PE owns an unbounded inbox so that a
// sender never waits for the receiver to be idle.
type Net struct {
	scale      int
	inputCs    []chan *Message
	outputCs   []chan *Message
	buffer     [][]*Message
	bufferLock sync.RWMutex
	bufferedN  int
	sentN      int
	receivedN  int
	done       chan struct{}
	closeOnce  sync.Once
}

// NewNet creates and returns a new instance of Net connecting scale PEs.
func NewNet(scale int) *Net {
	n := Net{
		scale:    scale,
		inputCs:  make([]chan *Message, scale),
		outputCs: make([]chan *Message, scale),
		buffer:   make([][]*Message, scale),
		done:     make(chan struct{}),
	}

	for i := 0; i < scale; i++ {
		n.inputCs[i] = make(chan *Message)
		n.outputCs[i] = make(chan *Message)
	}

	go n.loop()

	return &n
}

func (n *Net) loop() {
	cases := make([]reflect.SelectCase, 2*n.scale+1)
	for i := 0; i < n.scale; i++ {
		cases[i] = reflect.SelectCase{
			Dir:  reflect.SelectRecv,
			Chan: reflect.ValueOf(n.inputCs[i]),
		}
	}
	cases[2*n.scale] = reflect.SelectCase{
		Dir:  reflect.SelectRecv,
		Chan: reflect.ValueOf(n.done),
	}

	for {
		for i := n.scale; i < 2*n.scale; i++ {
			if head := n.peek(i - n.scale); head != nil {
				cases[i] = reflect.SelectCase{
					Dir:  reflect.SelectSend,
					Chan: reflect.ValueOf(n.outputCs[i-n.scale]),
					Send: reflect.ValueOf(head),
				}
			} else {
				// It's easier to add nil channel and keep the array length fixed
				cases[i] = reflect.SelectCase{
					Dir:  reflect.SelectSend,
					Chan: reflect.ValueOf((chan *Message)(nil)),
					Send: reflect.ValueOf((*Message)(nil)),
				}
			}
		}

		chosen, value, _ := reflect.Select(cases)

		switch {
		case chosen < n.scale: // send
			n.push(chosen, value.Interface().(*Message))
		case chosen < 2*n.scale: // receive
			// The value has already been delivered by Select
			n.pop(chosen - n.scale)
		default: // closed
			for i := range n.outputCs {
				close(n.outputCs[i])
			}
			return
		}
	}
}

// Scale returns the number of PEs.
func (n *Net) Scale() int {
	return n.scale
}

// Send delivers the message m to PE to. If to is out of range
// ErrIncorrectPE is returned, once the net is closed ErrNetClosed.
func (n *Net) Send(to int, m *Message) error {
	if to < 0 || to >= n.scale {
		return fmt.Errorf("%w: %d", ErrIncorrectPE, to)
	}

	select {
	case n.inputCs[to] <- m:
		return nil
	case <-n.done:
		return ErrNetClosed
	}
}

// Recv returns the channel of messages addressed to PE pe. The channel is
// closed when the net is closed.
func (n *Net) Recv(pe int) (<-chan *Message, error) {
	if pe < 0 || pe >= n.scale {
		return nil, fmt.Errorf("%w: %d", ErrIncorrectPE, pe)
	}

	return n.outputCs[pe], nil
}

// Close stops the delivery loop. Undelivered messages are dropped.
func (n *Net) Close() {
	n.closeOnce.Do(func() { close(n.done) })
}

// BufferStats returns an ASCII-formatted row of the inbox sizes (not yet
// delivered messages) per PE.
func (n *Net) BufferStats() string {
	s := "  pe|"
	for i := 0; i < n.scale; i++ {
		s += fmt.Sprintf("%4d|", i)
	}
	s += "\n"
	s += "----+" + strings.Repeat("----+", n.scale)
	s += "\n"
	s += "    |"

	func() {
		n.bufferLock.RLock()
		defer n.bufferLock.RUnlock()

		for i := 0; i < n.scale; i++ {
			nm := fmt.Sprintf("%4d|", len(n.buffer[i]))
			if nm == "   0|" {
				nm = "    |"
			}
			s += nm
		}
	}()

	s += "\n"

	return s
}

// Stats returns statistics of the network since its creation: number of
// received, buffered and sent messages.
func (n *Net) Stats() (int, int, int) {
	n.bufferLock.RLock()
	defer n.bufferLock.RUnlock()

	return n.receivedN, n.bufferedN, n.sentN
}

func (n *Net) push(index int, m *Message) {
	n.bufferLock.Lock()
	defer n.bufferLock.Unlock()

	n.buffer[index] = append(n.buffer[index], m)
	n.bufferedN++
	n.receivedN++
}

func (n *Net) peek(index int) *Message {
	n.bufferLock.RLock()
	defer n.bufferLock.RUnlock()

	if len(n.buffer[index]) == 0 {
		return nil
	}
	return n.buffer[index][0]
}

func (n *Net) pop(index int) *Message {
	n.bufferLock.Lock()
	defer n.bufferLock.Unlock()

	m := n.buffer[index][0]
	n.buffer[index][0] = nil
	n.buffer[index] = n.buffer[index][1:]
	n.bufferedN--
	n.sentN++

	return m
}
