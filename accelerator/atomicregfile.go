package accelerator

import (
	"github.com/sarchlab/rtxsim/iconn"
	"github.com/sarchlab/rtxsim/memreq"
)

// AtomicRegfile is the shared Unit FCHTHRD is routed through (spec §5
// "Ordering guarantees"): one fetch-and-increment register per counter
// id, guaranteeing at-most-one-consumer-per-value even across thread
// processors sharing the same port. Grounded on the original's
// `registers.cpp` global atomic counters.
type AtomicRegfile struct {
	name     string
	counters map[uint64]uint32

	ReqIn  *iconn.Cascade[memreq.Request]
	RetOut *iconn.Cascade[memreq.Return]

	staged *memreq.Return
}

// NewAtomicRegfile constructs an empty AtomicRegfile; counters start at
// zero and are created lazily per distinct Addr (the counter id).
func NewAtomicRegfile(name string) *AtomicRegfile {
	return &AtomicRegfile{name: name, counters: make(map[uint64]uint32)}
}

func (r *AtomicRegfile) Name() string { return r.name }

func (r *AtomicRegfile) Rise(cycle uint64) {
	if r.staged != nil || !r.ReqIn.IsReadValid() {
		return
	}
	req, ok := r.ReqIn.Peek()
	if !ok || req.Kind != memreq.FCHTHRD {
		return
	}
	r.ReqIn.Read()

	value := r.counters[req.Addr]
	r.counters[req.Addr] = value + 1

	var payload [memreq.MaxBlockSize]byte
	payload[0] = byte(value)
	payload[1] = byte(value >> 8)
	payload[2] = byte(value >> 16)
	payload[3] = byte(value >> 24)

	ret := memreq.FromRequest(&req, payload)
	r.staged = &ret
}

func (r *AtomicRegfile) Fall(cycle uint64) {
	if r.staged == nil {
		return
	}
	if !r.RetOut.IsWriteValid() {
		return
	}
	r.RetOut.Write(*r.staged)
	r.staged = nil
}
