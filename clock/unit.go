// Package clock implements the core's two-phase, unit-clock discrete-event
// kernel: every Unit is swept on the rising edge and again on the falling
// edge of each simulated cycle, in a fixed registration order.
package clock

import "strconv"

// Unit is a single clocked component of the simulated chip. Rise samples
// inputs that were driven on the previous cycle's Fall and updates internal
// shadow state; Fall commits outputs to crossbars and cascades. No Unit may
// observe another Unit's same-cycle writes.
type Unit interface {
	Name() string
	Rise(cycle uint64)
	Fall(cycle uint64)
}

// Violation is a protocol-violation panic value (MSHR illegal transition,
// oversized request, empty destination-stack pop, stray bucket-complete,
// ...). Abort stamps it with the cycle it occurred on; Simulator.Run
// recovers it and re-panics it so the caller sees a single diagnostic.
type Violation struct {
	Cycle   uint64
	Unit    string
	Message string
}

func (v *Violation) Error() string {
	return v.Unit + " @cycle " + strconv.FormatUint(v.Cycle, 10) + ": " + v.Message
}

// Abort raises a Violation tagged with the current cycle. Units should call
// this instead of a bare panic so every protocol violation carries the
// cycle and the offending unit's name.
func Abort(cycle uint64, unitName, message string) {
	panic(&Violation{Cycle: cycle, Unit: unitName, Message: message})
}
