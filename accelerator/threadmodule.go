package accelerator

import (
	"github.com/sarchlab/rtxsim/iconn"
	"github.com/sarchlab/rtxsim/memreq"
	"github.com/sarchlab/rtxsim/rtcore"
)

// ThreadModule is a thin stand-in for the guest thread processor
// (`original_source/src/arches-v2/units/ric/unit-tp.hpp`): it issues
// TRACERAY and CSHIT/LOAD_HIT op-kinds through the same request/return
// port pair every other cache client uses, without decoding a guest ISA.
// The expanded spec carries this only far enough to drive the round-trip
// property (§8.5) end to end: Trace enqueues a ray, Result reports the
// hit once the CSHIT readback it issues on its own behalf completes.
type ThreadModule struct {
	name string
	port int

	queue   []pendingTrace
	results map[uint32]rtcore.Hit

	ReqOut *iconn.Cascade[memreq.Request]
	RetIn  *iconn.Cascade[memreq.Return]

	// RegReqOut/RegRetIn carry FCHTHRD traffic to the shared
	// AtomicRegfile (spec §5 "Ordering guarantees"), kept on a separate
	// port pair from the trace/readback traffic above since a thread
	// processor issues both kinds independently.
	RegReqOut *iconn.Cascade[memreq.Request]
	RegRetIn  *iconn.Cascade[memreq.Return]

	fetches      []uint64
	fetchResults map[uint64]uint32
}

type traceState int

const (
	traceQueued traceState = iota
	traceIssued
	hitRequested
)

type pendingTrace struct {
	globalIndex uint32
	ray         rtcore.Ray
	state       traceState
}

// NewThreadModule constructs a ThreadModule issuing requests tagged with
// port.
func NewThreadModule(name string, port int) *ThreadModule {
	return &ThreadModule{
		name:         name,
		port:         port,
		results:      make(map[uint32]rtcore.Hit),
		fetchResults: make(map[uint64]uint32),
	}
}

func (t *ThreadModule) Name() string { return t.name }

// Trace enqueues a TRACERAY for ray, identified by globalIndex (the
// ray-state slot index used for the eventual LOAD_HIT readback).
func (t *ThreadModule) Trace(globalIndex uint32, ray rtcore.Ray) {
	t.queue = append(t.queue, pendingTrace{globalIndex: globalIndex, ray: ray})
}

// Result returns the hit recorded for globalIndex, if the LOAD_HIT
// readback has completed.
func (t *ThreadModule) Result(globalIndex uint32) (rtcore.Hit, bool) {
	h, ok := t.results[globalIndex]
	return h, ok
}

// Pending reports whether any trace is still in flight.
func (t *ThreadModule) Pending() bool { return len(t.queue) > 0 }

// FetchThread issues a fetch-and-increment FCHTHRD request against
// counterID, routed through the shared AtomicRegfile.
func (t *ThreadModule) FetchThread(counterID uint64) {
	t.fetches = append(t.fetches, counterID)
}

// FetchResult returns the pre-increment counter value counterID's most
// recent FetchThread call fetched, once the readback completes.
func (t *ThreadModule) FetchResult(counterID uint64) (uint32, bool) {
	v, ok := t.fetchResults[counterID]
	return v, ok
}

// Rise issues at most one request per cycle: first any queued TRACERAYs,
// then a LOAD_HIT readback for rays whose trace was already accepted. The
// readback request is written once and left parked at the head of the
// core's request cascade — the core re-peeks it every cycle without
// consuming it until the hit is ready (rtcore.Core.ingestTPRequest).
func (t *ThreadModule) Rise(cycle uint64) {
	for i := range t.queue {
		pt := &t.queue[i]
		if pt.state != traceQueued {
			continue
		}
		if !t.ReqOut.IsWriteValid() {
			return
		}
		var payload [memreq.MaxBlockSize]byte
		pt.ray.Encode(payload[:])
		t.ReqOut.Write(memreq.Request{
			Kind:    memreq.TRACERAY,
			Size:    uint8(rtcore.RayPayloadSize),
			Port:    t.port,
			Addr:    uint64(pt.globalIndex),
			Payload: payload,
		})
		pt.state = traceIssued
		return
	}

	for i := range t.queue {
		pt := &t.queue[i]
		if pt.state != traceIssued {
			continue
		}
		if !t.ReqOut.IsWriteValid() {
			return
		}
		t.ReqOut.Write(memreq.Request{
			Kind: memreq.CSHIT,
			Size: rtcore.HitPayloadSize,
			Port: t.port,
			Addr: uint64(pt.globalIndex),
		})
		pt.state = hitRequested
		return
	}

	if len(t.fetches) > 0 && t.RegReqOut.IsWriteValid() {
		counterID := t.fetches[0]
		t.fetches = t.fetches[1:]
		t.RegReqOut.Write(memreq.Request{
			Kind: memreq.FCHTHRD,
			Size: 4,
			Port: t.port,
			Addr: counterID,
		})
	}
}

func (t *ThreadModule) Fall(cycle uint64) {
	if t.RetIn.IsReadValid() {
		if ret, ok := t.RetIn.Read(); ok {
			t.results[uint32(ret.Addr)] = rtcore.DecodeHit(ret.Payload[:])
			t.queue = removeTrace(t.queue, uint32(ret.Addr))
		}
	}

	if t.RegRetIn.IsReadValid() {
		if ret, ok := t.RegRetIn.Read(); ok {
			v := uint32(ret.Payload[0]) | uint32(ret.Payload[1])<<8 |
				uint32(ret.Payload[2])<<16 | uint32(ret.Payload[3])<<24
			t.fetchResults[ret.Addr] = v
		}
	}
}

func removeTrace(q []pendingTrace, globalIndex uint32) []pendingTrace {
	out := q[:0]
	for _, pt := range q {
		if pt.globalIndex != globalIndex {
			out = append(out, pt)
		}
	}
	return out
}
