package rtcore

import (
	"github.com/sarchlab/rtxsim/memreq"
	"github.com/sarchlab/rtxsim/treelet"
)

// ingestMemReturn consumes one arriving memory return and routes it to its
// owning ray by the slot index encoded in the return's destination stack.
func (c *Core) ingestMemReturn(cycle uint64) {
	if !c.MemRetIn.IsReadValid() {
		return
	}
	ret, ok := c.MemRetIn.Read()
	if !ok {
		return
	}

	dst := ret.Dst
	slot := int(dst.Pop(c.raybits))
	rs := &c.rays[slot]

	if rs.phase == RayFetch {
		ray := DecodeRay(ret.Payload[:RayPayloadSize])
		rs.ray = ray
		rs.invDir = ray.InvDir()
		rs.hit = Hit{T: ray.TMax}
		rs.pushStack(ray.TMin, rootChild())
		rs.phase = Scheduler
		c.ready = append(c.ready, slot)
		return
	}

	rs.fetchBuf = append(rs.fetchBuf, ret.Payload[:ret.Size]...)
	if len(rs.fetchBuf) < rs.fetchWant {
		return
	}

	switch rs.fetch {
	case fetchNode:
		c.nodeIsectPipe.Push(cycle, slot)
		rs.phase = NodeIsect
	case fetchLeaf:
		c.triIsectPipe.Push(cycle, slot)
		rs.phase = TriIsect
	}
	rs.fetch = fetchNone
	c.activeFetchRay = -1
}

// continueFetch issues the next cache-line-bounded sub-request for a
// multi-part node/leaf fetch already in progress.
func (c *Core) continueFetch(cycle uint64, slot int) {
	if c.stagedMemReq != nil {
		return
	}
	rs := &c.rays[slot]
	remaining := rs.fetchWant - len(rs.fetchBuf)
	if remaining <= 0 {
		return
	}
	addr := rs.fetchBaseAddr()
	sz := remaining
	if toLineEnd := int(c.cfg.BlockSize - addr%c.cfg.BlockSize); sz > toLineEnd {
		sz = toLineEnd
	}

	var dst memreq.DestStack
	dst.Push(uint32(slot), c.raybits)
	c.stagedMemReq = &memreq.Request{
		Kind: memreq.LOAD,
		Addr: addr,
		Size: uint8(sz),
		Dst:  dst,
	}
}

// startNodeFetch begins fetching the Width child slots of node nodeIdx in
// the ray's current treelet, splitting across Config.BlockSize boundaries.
func (c *Core) startNodeFetch(slot int, nodeIdx uint32) {
	rs := &c.rays[slot]
	rs.fetch = fetchNode
	rs.fetchBuf = rs.fetchBuf[:0]
	rs.fetchWant = treelet.NodeSize(c.cfg.Width)
	rs.fetchCount = uint32(c.cfg.Width)
	rs.fetchBase = c.nodeAddr(rs.treeletIndex, nodeIdx)
	rs.phase = NodeFetch
	c.activeFetchRay = slot
	c.Stats.NodesVisited++
	c.continueFetch(0, slot)
}

// startLeafFetch begins fetching up to K triangles starting at primIndex.
func (c *Core) startLeafFetch(slot int, primIndex, numPrims uint32) {
	rs := &c.rays[slot]
	k := uint32(c.cfg.TrianglesPerLeaf)
	if numPrims < k {
		k = numPrims
	}
	rs.fetch = fetchLeaf
	rs.fetchBuf = rs.fetchBuf[:0]
	rs.fetchWant = int(k) * treelet.TriangleSize
	rs.fetchCount = k
	rs.fetchLeafIdx = primIndex
	rs.fetchBase = c.leafAddr(rs.treeletIndex, primIndex)
	rs.phase = TriFetch
	c.activeFetchRay = slot
	c.continueFetch(0, slot)
}
