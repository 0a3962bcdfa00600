package iconn

// Selector extracts a routing destination (an output index, or a source
// port for returns) from a message. A request crossbar selects by a
// bit-mask pext of the physical address; a return crossbar selects by the
// port popped off the destination stack.
type Selector[T any] func(msg T) int

// Crossbar routes messages from N input ports to M output ports. Each
// output has a one-slot holding register; a message that cannot be placed
// (output busy) stays queued on its input and is retried next cycle — the
// "write port busy" policy of §5.
type Crossbar[T any] struct {
	numInputs, numOutputs int
	selector              Selector[T]
	arbiters              []*Arbiter // one per output, arbitrates among inputs

	pending [][]T // per-input FIFO of messages awaiting routing
	output  []*T  // per-output, the message delivered this cycle (nil if none)
}

// NewCrossbar creates a Crossbar with the given port counts and selector.
func NewCrossbar[T any](numInputs, numOutputs int, selector Selector[T]) *Crossbar[T] {
	x := &Crossbar[T]{
		numInputs:  numInputs,
		numOutputs: numOutputs,
		selector:   selector,
		pending:    make([][]T, numInputs),
		output:     make([]*T, numOutputs),
		arbiters:   make([]*Arbiter, numOutputs),
	}
	for i := range x.arbiters {
		x.arbiters[i] = NewArbiter(numInputs)
	}
	return x
}

// Enqueue offers a message from the given input port. It is buffered on
// that input until the crossbar can route it.
func (x *Crossbar[T]) Enqueue(input int, msg T) {
	x.pending[input] = append(x.pending[input], msg)
}

// HasPending reports whether the given input still has unrouted messages.
func (x *Crossbar[T]) HasPending(input int) bool {
	return len(x.pending[input]) > 0
}

// Route performs one cycle of arbitrated routing: for each output, among
// the inputs whose head message selects that output, the output's arbiter
// grants one input and that message is placed in the output's holding
// register, consuming it from the input queue.
func (x *Crossbar[T]) Route() {
	for o := range x.output {
		x.output[o] = nil
	}

	for o := 0; o < x.numOutputs; o++ {
		requesting := make([]bool, x.numInputs)
		for i := 0; i < x.numInputs; i++ {
			if len(x.pending[i]) == 0 {
				continue
			}
			if x.selector(x.pending[i][0]) == o {
				requesting[i] = true
			}
		}

		granted := x.arbiters[o].Grant(requesting)
		if granted < 0 {
			continue
		}

		msg := x.pending[granted][0]
		x.pending[granted] = x.pending[granted][1:]
		m := msg
		x.output[o] = &m
	}
}

// Peek returns the message delivered to the given output this cycle, if
// any.
func (x *Crossbar[T]) Peek(output int) (msg T, ok bool) {
	if x.output[output] == nil {
		return msg, false
	}
	return *x.output[output], true
}
