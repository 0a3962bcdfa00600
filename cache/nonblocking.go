package cache

import (
	"github.com/sarchlab/rtxsim/clock"
	"github.com/sarchlab/rtxsim/iconn"
	"github.com/sarchlab/rtxsim/memreq"
)

// IngressResult reports what happened to a request admitted into a bank,
// used by tests and by Stats.
type IngressResult int

const (
	ResultHit IngressResult = iota
	ResultHalfMiss
	ResultLFBHit
	ResultMiss
	ResultStall
	ResultBypass // forwarded verbatim to the next level; not counted in Stats
)

// Stats accumulates per-bank hit/half-miss/miss/stall counters for the
// final report (§6 "per-cache hit/half-miss/miss rates").
type Stats struct {
	Hits      int64
	HalfMiss  int64
	LFBHits   int64
	Misses    int64
	MSHRStall int64
}

// NonBlockingConfig adds MSHR-pool and timing parameters to the base cache
// geometry.
type NonBlockingConfig struct {
	Config       Config
	NumMSHRs     int
	NumBanks     int
	LFB          bool // sectored write-combining / line-fill-buffer mode
	DataArrayLat uint64
}

// Bank is one bank of a non-blocking cache: a tag/data array plus an MSHR
// pool, the request/return cascades connecting it to the crossbars on
// either side, and the miss/fill cascades connecting it to the next level.
type Bank struct {
	name string
	cfg  Config
	lfb  bool

	base  *Base
	mshrs []MSHR

	dataArrayPipe *iconn.Pipeline[int] // carries MSHR pool index

	// interconnect, wired by the owning NonBlocking cache
	ReqIn      *iconn.Cascade[memreq.Request] // from request crossbar
	PrefetchIn *iconn.Cascade[memreq.Request] // optional best-effort prefetch path, serviced only when ReqIn is idle
	RetIn      *iconn.Cascade[memreq.Return]  // fill from next level
	MissOut    *iconn.Cascade[memreq.Request] // toward next level
	RetOut     *iconn.Cascade[memreq.Return]  // toward response crossbar

	returnReady []int // MSHR indices with a sub-entry ready to drain

	nextAdmitSeq  uint64 // next MSHR admission sequence number to assign
	nextReturnSeq uint64 // oldest admission sequence not yet fully retired (Config.InOrder only)

	Stats Stats

	stagedMiss      *memreq.Request
	stagedReturn    *memreq.Return
	stagedReturnIdx int // MSHR index stagedReturn was built from, for Fall to pop its SubQueue
}

// NewBank constructs an empty bank with the given geometry and MSHR pool
// size. Cascades must be assigned by the caller (normally NonBlocking)
// before the bank is added to a clock.Simulator group.
func NewBank(name string, cfg Config, numMSHRs int, lfb bool, dataArrayLatency uint64) *Bank {
	return &Bank{
		name:          name,
		cfg:           cfg,
		lfb:           lfb,
		base:          NewBase(cfg),
		mshrs:         make([]MSHR, numMSHRs),
		dataArrayPipe: iconn.NewPipeline[int](max1(dataArrayLatency)),
	}
}

func max1(v uint64) uint64 {
	if v == 0 {
		return 1
	}
	return v
}

func (b *Bank) Name() string { return b.name }

func blockAddrOf(addr uint64, blockSize uint64) uint64 { return addr &^ (blockSize - 1) }

// findMSHR returns the index of a non-INVALID MSHR for (blockAddr, typ), or
// -1. At most one such MSHR may exist per bank (§8.2 invariant).
func (b *Bank) findMSHR(blockAddr uint64, typ MSHRType) int {
	for i := range b.mshrs {
		m := &b.mshrs[i]
		if m.State == INVALID {
			continue
		}
		if m.BlockAddr == blockAddr && m.Type == typ {
			return i
		}
	}
	return -1
}

// allocMSHR picks a free slot, preferring INVALID, else a RETIRED slot with
// the highest LRU value. Returns -1 if the pool is full of live entries.
func (b *Bank) allocMSHR() int {
	for i := range b.mshrs {
		if b.mshrs[i].State == INVALID {
			return i
		}
	}
	best, bestLRU := -1, -1
	for i := range b.mshrs {
		if b.mshrs[i].State == RETIRED && int(b.mshrs[i].LRU) > bestLRU {
			best, bestLRU = i, int(b.mshrs[i].LRU)
		}
	}
	return best
}

// Rise performs ingress processing (admit one request, drain at most one
// return) into staged outputs; Fall commits them.
func (b *Bank) Rise(cycle uint64) {
	b.stagedReturn = nil

	b.ageMSHRs()
	b.drainDataArrayPipeline(cycle)
	b.ingestFill(cycle)
	if b.stagedMiss == nil {
		b.serviceIngress(cycle)
	} else {
		b.Stats.MSHRStall++
	}
	b.prepareReturn(cycle)
}

func (b *Bank) ageMSHRs() {
	for i := range b.mshrs {
		if b.mshrs[i].State != INVALID {
			b.mshrs[i].LRU++
		}
	}
}

// drainDataArrayPipeline advances MSHRs whose tag-array hit completed the
// data-array latency: DATA_ARRAY -> FILLED.
func (b *Bank) drainDataArrayPipeline(cycle uint64) {
	for _, idx := range b.dataArrayPipe.Pop(cycle) {
		m := &b.mshrs[idx]
		m.transition(cycle, b.name, FILLED)
		b.returnReady = append(b.returnReady, idx)
	}
}

// ingestFill consumes one arriving fill from the next level and stages the
// owning MSHR for return.
func (b *Bank) ingestFill(cycle uint64) {
	if !b.RetIn.IsReadValid() {
		return
	}
	ret, ok := b.RetIn.Read()
	if !ok {
		return
	}

	blockAddr := blockAddrOf(ret.Addr, b.cfg.BlockSize)
	idx := b.findMSHR(blockAddr, READ)
	if idx < 0 {
		idx = b.findMSHR(blockAddr, WRITE)
	}
	if idx < 0 {
		clock.Abort(cycle, b.name, "fill return for block with no owning MSHR")
	}

	m := &b.mshrs[idx]
	copy(m.Staging[:], ret.Payload[:])
	m.transition(cycle, b.name, FILLED)
	b.returnReady = append(b.returnReady, idx)
}

// serviceIngress admits one request from the request crossbar this cycle,
// falling back to one prefetch request when the main ingress had nothing
// waiting (§4.5: prefetches never displace demand traffic).
func (b *Bank) serviceIngress(cycle uint64) {
	if b.serviceFrom(cycle, b.ReqIn) {
		return
	}
	b.serviceFrom(cycle, b.PrefetchIn)
}

func (b *Bank) serviceFrom(cycle uint64, in *iconn.Cascade[memreq.Request]) bool {
	if in == nil || !in.IsReadValid() {
		return false
	}
	req, ok := in.Peek()
	if !ok {
		return false
	}

	result, admitted := b.admit(cycle, req)
	if admitted {
		in.Read()
	}

	switch result {
	case ResultHit:
		b.Stats.Hits++
	case ResultHalfMiss:
		b.Stats.HalfMiss++
	case ResultLFBHit:
		b.Stats.LFBHits++
	case ResultMiss:
		b.Stats.Misses++
	case ResultStall:
		b.Stats.MSHRStall++
	}
	return true
}

// admit tries to place req into an existing or freshly allocated MSHR. It
// reports what happened to it, and whether it was consumed from ReqIn
// (false only when the MSHR pool has no free slot, leaving it queued for
// retry).
func (b *Bank) admit(cycle uint64, req memreq.Request) (IngressResult, bool) {
	blockAddr := blockAddrOf(req.Addr, b.cfg.BlockSize)

	if req.Bypass.HasLevel(b.cfg.Level) {
		b.stagedMiss = &req
		return ResultBypass, true
	}

	typ := READ
	if req.Kind == memreq.STORE && b.lfb {
		typ = WRITE_COMBINING
	} else if req.Kind == memreq.STORE || req.Kind.IsAtomic() {
		typ = WRITE
	}

	sub := SubEntry{Dst: req.Dst, Port: req.Port, Size: req.Size, Offset: uint16(req.Addr % b.cfg.BlockSize)}

	if idx := b.findMSHR(blockAddr, typ); idx >= 0 {
		m := &b.mshrs[idx]
		if typ != WRITE_COMBINING && req.Kind != memreq.PREFETCH {
			m.SubQueue = append(m.SubQueue, sub)
		}
		if typ == WRITE_COMBINING {
			b.applyWriteCombine(m, req)
			if m.Full(b.cfg.BlockSize) {
				b.flushWriteCombine(cycle, idx)
			}
		}
		if m.State == RETIRED {
			return ResultLFBHit, true
		}
		return ResultHalfMiss, true
	}

	idx := b.allocMSHR()
	if idx < 0 {
		return ResultStall, false
	}

	m := &b.mshrs[idx]
	*m = MSHR{BlockAddr: blockAddr, Type: typ, State: EMPTY, Seq: b.nextAdmitSeq}
	b.nextAdmitSeq++
	if typ == WRITE_COMBINING {
		b.applyWriteCombine(m, req)
		if m.Full(b.cfg.BlockSize) {
			b.flushWriteCombine(cycle, idx)
		}
		return ResultHalfMiss, true
	}
	if req.Kind != memreq.PREFETCH {
		m.SubQueue = append(m.SubQueue, sub)
	}

	if sector, ok := b.base.ReadSector(req.Addr); ok {
		copy(m.Staging[:], sector)
		m.transition(cycle, b.name, DATA_ARRAY)
		b.dataArrayPipe.Push(cycle, idx)
		return ResultHit, true
	}

	m.transition(cycle, b.name, MISSED)
	missReq := req
	missReq.Kind = memreq.LOAD
	missReq.Addr = blockAddr
	missReq.Size = uint8(b.cfg.BlockSize)
	b.stagedMiss = &missReq
	return ResultMiss, true
}

func (b *Bank) applyWriteCombine(m *MSHR, req memreq.Request) {
	off := req.Addr % b.cfg.BlockSize
	copy(m.Staging[off:uint64(off)+uint64(req.Size)], req.Payload[:req.Size])
	for i := uint64(0); i < uint64(req.Size) && off+i < 64; i++ {
		m.WriteMask |= 1 << (off + i)
	}
}

func (b *Bank) flushWriteCombine(cycle uint64, idx int) {
	m := &b.mshrs[idx]
	flush := memreq.Request{
		Kind:    memreq.STORE,
		Addr:    m.BlockAddr,
		Size:    uint8(b.cfg.BlockSize),
		Payload: m.Staging,
	}
	b.stagedMiss = &flush
	m.transition(cycle, b.name, RETIRED)
	m.WriteMask = 0
}

// prepareReturn drains one ready MSHR's head sub-entry into a staged
// Return, matching §4.3 "each cycle, drain one return". Normally the
// longest-ready MSHR is picked (completion order, per §5 "Ordering
// guarantees"); with Config.InOrder set, only the MSHR matching the oldest
// still-outstanding admission sequence is eligible, so returns reach
// RetOut in request order even though fills may complete out of order.
func (b *Bank) prepareReturn(cycle uint64) {
	if len(b.returnReady) == 0 {
		return
	}

	pos := 0
	if b.cfg.InOrder {
		pos = -1
		for i, idx := range b.returnReady {
			if b.mshrs[idx].Seq == b.nextReturnSeq {
				pos = i
				break
			}
		}
		if pos < 0 {
			return
		}
	}

	idx := b.returnReady[pos]
	m := &b.mshrs[idx]

	if len(m.SubQueue) == 0 {
		b.returnReady = append(b.returnReady[:pos], b.returnReady[pos+1:]...)
		b.retire(cycle, idx)
		return
	}

	sub := m.SubQueue[0]
	var payload [memreq.MaxBlockSize]byte
	copy(payload[:], m.Staging[:])

	ret := memreq.Return{
		Kind: memreq.LOAD_RETURN,
		Size: sub.Size,
		Dst:  sub.Dst,
		Port: sub.Port,
		Addr: m.BlockAddr + uint64(sub.Offset),
	}
	copy(ret.Payload[:], payload[sub.Offset:])
	b.stagedReturn = &ret
	b.stagedReturnIdx = idx
}

// removeReturnReady drops idx from the ready list wherever it sits;
// prepareReturn may have picked a non-head entry under Config.InOrder.
func (b *Bank) removeReturnReady(idx int) {
	for i, v := range b.returnReady {
		if v == idx {
			b.returnReady = append(b.returnReady[:i], b.returnReady[i+1:]...)
			return
		}
	}
}

func (b *Bank) retire(cycle uint64, idx int) {
	m := &b.mshrs[idx]
	if b.cfg.InOrder && m.Seq == b.nextReturnSeq {
		b.nextReturnSeq++
	}
	if b.lfb {
		m.transition(cycle, b.name, RETIRED)
	} else {
		m.transition(cycle, b.name, INVALID)
	}
}

// Fall commits this cycle's staged miss/return onto the outgoing cascades,
// if the destination has room; otherwise they remain queued (§4.3
// "Stalls").
func (b *Bank) Fall(cycle uint64) {
	if b.stagedMiss != nil && b.MissOut.IsWriteValid() {
		b.MissOut.Write(*b.stagedMiss)
		b.stagedMiss = nil
	}

	if b.stagedReturn != nil && b.RetOut.IsWriteValid() {
		b.RetOut.Write(*b.stagedReturn)

		idx := b.stagedReturnIdx
		m := &b.mshrs[idx]
		m.SubQueue = m.SubQueue[1:]
		if len(m.SubQueue) == 0 {
			b.removeReturnReady(idx)
			b.retire(cycle, idx)
		}
		b.stagedReturn = nil
	}
}
