package rtcore

import (
	"github.com/sarchlab/rtxsim/memreq"
	"github.com/sarchlab/rtxsim/treelet"
)

// ingestAdmissions admits at most one new ray this cycle: either a fresh
// TRACERAY/LOAD_HIT from the thread processor, or a continuing ray handed
// off by the coalescer's bucket dispatch.
func (c *Core) ingestAdmissions(cycle uint64) {
	if c.ingestTPRequest(cycle) {
		return
	}
	c.ingestBucketRay(cycle)
}

// rootChild is the stack seed every fresh TRACERAY starts from: the root
// node of treelet 0, as an interior-local reference to node index 0.
func rootChild() treelet.ChildSlot {
	return treelet.ChildSlot{Kind: treelet.ChildInteriorLocal, NodeIndex: 0}
}

func (c *Core) ingestTPRequest(cycle uint64) bool {
	if !c.ReqIn.IsReadValid() {
		return false
	}
	req, ok := c.ReqIn.Peek()
	if !ok {
		return false
	}

	switch req.Kind {
	case memreq.TRACERAY:
		slot := c.allocSlot()
		if slot < 0 {
			return false
		}
		c.ReqIn.Read()

		ray := DecodeRay(req.Payload[:RayPayloadSize])
		rs := &c.rays[slot]
		rs.reset()
		rs.occupied = true
		rs.ray = ray
		rs.invDir = ray.InvDir()
		rs.hit = Hit{T: ray.TMax}
		rs.globalIndex = uint32(req.Addr)
		rs.treeletIndex = 0
		rs.phase = Scheduler
		rs.pushStack(ray.TMin, rootChild())
		c.ready = append(c.ready, slot)
		c.Stats.RaysTraced++
		return true

	case memreq.CSHIT: // reused as LOAD_HIT: read back a previously committed hit
		hit, ok := c.completedHits[uint32(req.Addr)]
		if !ok {
			return false
		}
		c.ReqIn.Read()
		delete(c.completedHits, uint32(req.Addr))

		var payload [memreq.MaxBlockSize]byte
		encodeHit(hit, payload[:])
		c.stagedRet = &memreq.Return{
			Kind:    memreq.LOAD_RETURN,
			Size:    uint8(hitPayloadSize),
			Dst:     req.Dst,
			Port:    req.Port,
			Addr:    req.Addr,
			Payload: payload,
		}
		return true

	default:
		c.ReqIn.Read()
		return true
	}
}

func (c *Core) ingestBucketRay(cycle uint64) {
	if !c.BucketIn.IsReadValid() {
		return
	}
	br, ok := c.BucketIn.Peek()
	if !ok {
		return
	}
	slot := c.allocSlot()
	if slot < 0 {
		return
	}
	c.BucketIn.Read()

	t := c.segments[br.SegmentID]
	if t == nil {
		t = &segmentTracker{}
		c.segments[br.SegmentID] = t
	}
	t.rayCount++
	t.bucketsToRetire += br.BucketsToRetire

	rs := &c.rays[slot]
	rs.reset()
	rs.occupied = true
	rs.globalIndex = br.RayID
	rs.segmentID = br.SegmentID
	rs.orderHint = c.orderHints[br.RayID]
	rs.phase = RayFetch

	var dst memreq.DestStack
	dst.Push(uint32(slot), c.raybits)
	c.stagedMemReq = &memreq.Request{
		Kind: memreq.LOAD,
		Addr: c.rayStateAddr(br.RayID),
		Size: uint8(RayPayloadSize),
		Dst:  dst,
	}
}
