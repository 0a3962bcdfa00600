package rtcore

import (
	"github.com/sarchlab/rtxsim/memreq"
	"github.com/sarchlab/rtxsim/treelet"
)

// drainPipelines finishes any node/triangle intersect that completed this
// cycle, updating the ray's stack or hit record and re-queuing it for
// scheduling (§4.4 "re-queue the ray for scheduling").
func (c *Core) drainPipelines(cycle uint64) {
	for _, slot := range c.nodeIsectPipe.Pop(cycle) {
		c.finishNodeIsect(slot)
	}
	for _, slot := range c.triIsectPipe.Pop(cycle) {
		c.finishTriIsect(slot)
	}
}

func (c *Core) finishNodeIsect(slot int) {
	rs := &c.rays[slot]
	children, err := treelet.DecodeChildSlots(rs.fetchBuf, uint8(rs.fetchCount))
	if err != nil {
		panic(err)
	}

	for _, child := range children {
		if child.Kind == treelet.ChildEmpty {
			continue
		}
		t, ok := intersectAABB(rs.ray, rs.invDir, child.Box, rs.ray.TMin, rs.hit.T)
		if !ok {
			continue
		}
		rs.insertNearFirst(StackEntry{T: t, Slot: child})
	}

	rs.fetchBuf = nil
	rs.phase = Scheduler
	c.ready = append(c.ready, slot)
}

func (c *Core) finishTriIsect(slot int) {
	rs := &c.rays[slot]
	tris, err := treelet.DecodeTriangles(rs.fetchBuf, int(rs.fetchCount))
	if err != nil {
		panic(err)
	}

	for i, tri := range tris {
		t, u, v, hit := intersectTriangle(rs.ray, tri, rs.hit.T)
		if !hit {
			continue
		}
		rs.hit = Hit{
			T: t, U: u, V: v,
			PrimID:     rs.fetchLeafIdx + uint32(i),
			TreeletIdx: rs.treeletIndex,
			Found:      true,
		}
		c.Stats.HitsFound++
	}
	c.Stats.TrianglesTested += int64(len(tris))

	rs.fetchBuf = nil
	rs.phase = Scheduler
	c.ready = append(c.ready, slot)
}

// scheduleOne pops one ready ray and advances it one step: dispatching a
// node/leaf fetch, handing it to the coalescer at a treelet boundary, or
// finalizing it once its stack is empty (§4.4).
func (c *Core) scheduleOne(cycle uint64) {
	if len(c.ready) == 0 {
		return
	}
	slot := c.ready[0]
	c.ready = c.ready[1:]
	rs := &c.rays[slot]

	entry, ok := rs.popStack()
	if !ok {
		c.finalizeRay(slot)
		return
	}
	if entry.T >= rs.hit.T {
		// Pop-cull: box/leaf cannot beat the current best hit.
		c.ready = append(c.ready, slot)
		return
	}

	switch entry.Slot.Kind {
	case treelet.ChildInteriorLocal:
		c.startNodeFetch(slot, entry.Slot.NodeIndex)
	case treelet.ChildLeaf:
		c.startLeafFetch(slot, entry.Slot.PrimIndex, entry.Slot.NumPrims)
	case treelet.ChildInteriorTreelet:
		c.dispatchToCoalescer(slot, entry.Slot.TreeletIndex)
	default:
		c.ready = append(c.ready, slot)
	}
}

// dispatchToCoalescer hands a ray off to the coalescer when traversal
// reaches a child-treelet reference. The ray's slot is released immediately
// (its state is re-fetched from the ray-state array on re-admission), so
// orderHint is persisted in c.orderHints across the round trip rather than
// on the ephemeral rayState, the way completedHits persists a finished
// ray's Hit across its slot's reuse.
func (c *Core) dispatchToCoalescer(slot int, treeletIdx uint32) {
	rs := &c.rays[slot]
	c.stagedWork = &memreq.WorkItem{
		RayID:     rs.globalIndex,
		SegmentID: treeletIdx,
		OrderHint: rs.orderHint,
	}
	c.orderHints[rs.globalIndex] = rs.orderHint + 1
	c.releaseRay(slot)
}

// finalizeRay is reached when a ray's stack empties: it commits whatever
// hit (or miss) it accumulated and releases its slot.
func (c *Core) finalizeRay(slot int) {
	rs := &c.rays[slot]
	c.completedHits[rs.globalIndex] = rs.hit
	delete(c.orderHints, rs.globalIndex)
	c.releaseRay(slot)
}

// releaseRay frees slot's ray state and, if it was part of a coalescer
// segment, advances that segment's completion bookkeeping (§4.5).
func (c *Core) releaseRay(slot int) {
	rs := &c.rays[slot]
	seg, tracked := c.segments[rs.segmentID]
	rs.occupied = false

	if !tracked {
		return
	}
	seg.rayCount--
	if seg.rayCount > 0 {
		return
	}
	for i := 0; i < seg.bucketsToRetire; i++ {
		c.bucketCompleteQueue = append(c.bucketCompleteQueue, rs.segmentID)
	}
	delete(c.segments, rs.segmentID)
}
