package ccs

// FanOut decides which PEs a broadcast or multicast request is relayed to
// by the PE that just received it.
type FanOut interface {
	Children(self int, env *Envelope, scale int) []int
}

// TreeFanOut relays a broadcast from PE 0 to every other PE in one step,
// and a multicast along a tree laid over the PE list: the entry at index i
// forwards to entries Arity*i+1 up to Arity*i+Arity. Arity defaults to 4.
type TreeFanOut struct {
	Arity int
}

// Children implements FanOut.
func (f TreeFanOut) Children(self int, env *Envelope, scale int) []int {
	switch {
	case env.Header.PE == Broadcast:
		if self != ForwardingPE {
			return nil
		}
		children := make([]int, 0, scale-1)
		for pe := 0; pe < scale; pe++ {
			if pe != self {
				children = append(children, pe)
			}
		}
		return children
	case env.Header.PE < Broadcast:
		arity := f.Arity
		if arity <= 0 {
			arity = 4
		}
		index := -1
		for i, pe := range env.PEs {
			if wrap(int(pe), scale) == self {
				index = i
				break
			}
		}
		if index < 0 {
			return nil
		}
		var children []int
		for i := arity*index + 1; i <= arity*index+arity && i < len(env.PEs); i++ {
			children = append(children, wrap(int(env.PEs[i]), scale))
		}
		return children
	}
	return nil
}

// head returns the PE a request is first delivered to.
func head(env *Envelope, scale int) int {
	switch {
	case env.Header.PE >= 0:
		return wrap(int(env.Header.PE), scale)
	case env.Header.PE == Broadcast:
		return ForwardingPE
	default:
		return wrap(int(env.PEs[0]), scale)
	}
}

// wrap maps any int onto a PE index, assuming round-robin placement.
func wrap(pe, scale int) int {
	return ((pe % scale) + scale) % scale
}
