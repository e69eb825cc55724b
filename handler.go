package ccs

import (
	"fmt"
	"sort"
	"sync/atomic"
)

// Callback is the code run for a request. It is either a BufferView or an
// OwnedMessage.
type Callback interface {
	callback()
}

// BufferViewFunc receives a read-only view of the request payload. The view
// is only valid for the duration of the call.
type BufferViewFunc func(api API, user interface{}, data []byte)

// MessageFunc receives a copy of the request payload it owns and must
// release once done with it.
type MessageFunc func(api API, msg *Message)

// BufferView is a callback handed a borrowed payload plus the opaque value
// given at registration.
type BufferView struct {
	Fn   BufferViewFunc
	User interface{}
}

// OwnedMessage is a callback handed a freshly allocated message.
type OwnedMessage struct {
	Fn MessageFunc
}

func (BufferView) callback()   {}
func (OwnedMessage) callback() {}

// HandlerRecord is the table entry of one handler name.
type HandlerRecord struct {
	name        string
	cb          Callback
	merge       MergeFunc
	reductionID int
	calls       atomic.Int64
}

// Name returns the registered name.
func (r *HandlerRecord) Name() string { return r.name }

// Calls returns how many requests were dispatched to the handler.
func (r *HandlerRecord) Calls() int64 { return r.calls.Load() }

// Merge returns the attached merge policy, nil when the handler cannot be
// used for broadcast or multicast requests.
func (r *HandlerRecord) Merge() MergeFunc { return r.merge }

// ReductionID returns the id allocated when the merge policy was attached,
// zero before that.
func (r *HandlerRecord) ReductionID() int { return r.reductionID }

// HandlerTable maps handler names to records. It is filled during startup
// and only read once dispatch begins, so it carries no lock.
type HandlerTable struct {
	records    map[string]*HandlerRecord
	reductions int
}

// NewHandlerTable returns an empty table.
func NewHandlerTable() *HandlerTable {
	return &HandlerTable{records: make(map[string]*HandlerRecord)}
}

// Register inserts or replaces the record for name.
func (t *HandlerTable) Register(name string, cb Callback) error {
	if len(name) > MaxHandlerName {
		return fmt.Errorf("%w: %q", ErrHandlerNameTooLong, name)
	}
	switch c := cb.(type) {
	case BufferView:
		if c.Fn == nil {
			return fmt.Errorf("register %q: nil callback", name)
		}
	case OwnedMessage:
		if c.Fn == nil {
			return fmt.Errorf("register %q: nil callback", name)
		}
	default:
		return fmt.Errorf("register %q: unsupported callback %T", name, cb)
	}
	t.records[name] = &HandlerRecord{name: name, cb: cb}
	return nil
}

// RegisterFunc registers fn as a BufferView handler.
func (t *HandlerTable) RegisterFunc(name string, fn BufferViewFunc, user interface{}) error {
	return t.Register(name, BufferView{Fn: fn, User: user})
}

// RegisterMessage registers fn as an OwnedMessage handler.
func (t *HandlerTable) RegisterMessage(name string, fn MessageFunc) error {
	return t.Register(name, OwnedMessage{Fn: fn})
}

// Lookup returns the record for name, or nil.
func (t *HandlerTable) Lookup(name string) *HandlerRecord {
	return t.records[name]
}

// AttachMerge sets the merge policy used to combine the replies of a
// broadcast or multicast request to name.
func (t *HandlerTable) AttachMerge(name string, merge MergeFunc) error {
	rec, ok := t.records[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownHandler, name)
	}
	if merge == nil {
		return fmt.Errorf("attach merge to %q: nil merge function", name)
	}
	t.reductions++
	rec.merge = merge
	rec.reductionID = t.reductions
	return nil
}

// Names returns the registered names in lexical order.
func (t *HandlerTable) Names() []string {
	names := make([]string, 0, len(t.records))
	for name := range t.records {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
