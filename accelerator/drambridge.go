package accelerator

import (
	"github.com/sarchlab/rtxsim/dram"
	"github.com/sarchlab/rtxsim/iconn"
	"github.com/sarchlab/rtxsim/memreq"
)

// DRAMBridge adapts dram.Controller's single-slot request/return port
// interface to the cascade ports a cache.Bank's MissOut/RetIn expose,
// since the controller is deliberately not cascade-shaped (it models one
// DRAM command pipeline, not a fan-in router). Composes the controller
// (grounded on the black-box timing model of §4.6) with the cache's
// cascade discipline used everywhere else in the interconnect.
type DRAMBridge struct {
	name string
	ctrl *dram.Controller

	MissIn *iconn.Cascade[memreq.Request] // from a cache bank, or directly from an RT-core
	RetOut *iconn.Cascade[memreq.Return]
}

// NewDRAMBridge wraps ctrl behind the cascade-port interface.
func NewDRAMBridge(name string, ctrl *dram.Controller) *DRAMBridge {
	return &DRAMBridge{name: name, ctrl: ctrl}
}

func (b *DRAMBridge) Name() string { return b.name }

func (b *DRAMBridge) Rise(cycle uint64) {
	b.ctrl.Rise(cycle)

	if !b.ctrl.IsRequestPortWriteValid() || !b.MissIn.IsReadValid() {
		return
	}
	req, ok := b.MissIn.Read()
	if !ok {
		return
	}
	b.ctrl.WriteRequest(req)
}

func (b *DRAMBridge) Fall(cycle uint64) {
	b.ctrl.Fall(cycle)

	if !b.ctrl.IsReturnPortReadValid() || !b.RetOut.IsWriteValid() {
		return
	}
	ret, ok := b.ctrl.ReadReturn()
	if !ok {
		return
	}
	b.RetOut.Write(ret)
}

// Controller exposes the wrapped controller for power/error reporting.
func (b *DRAMBridge) Controller() *dram.Controller { return b.ctrl }
