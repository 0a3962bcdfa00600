package coalescer

import (
	"sort"

	"github.com/sarchlab/rtxsim/clock"
	"github.com/sarchlab/rtxsim/memreq"
)

// ingestWork drains every work-item arrived this cycle, appending each ray
// to its segment's open write bucket and flushing full buckets to a channel
// write queue (§4.5 "Write path").
func (c *Coalescer) ingestWork(cycle uint64) {
	for c.WorkIn != nil && c.WorkIn.IsReadValid() {
		wi, ok := c.WorkIn.Read()
		if !ok {
			break
		}
		c.admitRay(cycle, wi)
	}
}

func (c *Coalescer) admitRay(cycle uint64, wi memreq.WorkItem) {
	s := c.segmentOf(wi.SegmentID)
	if s.open == nil {
		s.open = newBucket(wi.SegmentID)
	}
	s.open.Append(wi.RayID)
	s.addWeight(wi.OrderHint)

	if wi.SegmentID == 0 {
		c.rootRaysSeen++
		if c.rootRaysSeen == c.cfg.RootRayCount {
			s.parentFinished = true
			c.flushOpenBucket(cycle, s)
		}
	}

	if s.open != nil && s.open.Full() {
		c.flushOpenBucket(cycle, s)
	}
}

// flushOpenBucket enqueues s's open bucket to a channel write queue, round-
// robining the destination channel, and records it against the segment's
// bucket-conservation counters.
func (c *Coalescer) flushOpenBucket(cycle uint64, s *segment) {
	if s.open == nil || len(s.open.RayIDs) == 0 {
		s.open = nil
		return
	}
	b := s.open
	s.open = nil
	b.State = BucketQueued

	ch := s.nextChan % len(c.channels)
	s.nextChan++
	c.channels[ch].writePipe.Push(cycle, b)

	s.totalBuckets++
	c.Stats.BucketsWritten++
}

// ingestDone applies BUCKET_COMPLETE notifications, incrementing the
// owning segment's retired-bucket count, then retires any segment whose
// retirement condition (§3) now holds.
func (c *Coalescer) ingestDone(cycle uint64) {
	for c.DoneIn != nil && c.DoneIn.IsReadValid() {
		bc, ok := c.DoneIn.Read()
		if !ok {
			break
		}
		s, tracked := c.segments[bc.SegmentID]
		if !tracked {
			clock.Abort(cycle, c.name, "bucket-complete for unknown segment")
			return
		}
		s.retiredBuckets++
		if s.retiredBuckets > s.totalBuckets {
			clock.Abort(cycle, c.name, "bucket-complete exceeds outstanding buckets")
			return
		}
		if s.retirable() {
			c.retireSegment(cycle, s)
		}
	}
}

func (c *Coalescer) retireSegment(cycle uint64, s *segment) {
	c.Stats.SegmentsRetired++
	delete(c.segments, s.id)
	removeValue(&c.active, s.id)

	if c.cfg.Resolve == nil {
		return
	}
	info := c.cfg.Resolve(s.id)
	for i := uint32(0); i < info.NumChildren; i++ {
		childID := info.FirstChild + i
		child := c.segmentOf(childID)
		child.parentFinished = true
		if child.open != nil {
			c.flushOpenBucket(cycle, child)
		}
	}
}

func removeValue(s *[]uint32, v uint32) {
	out := (*s)[:0]
	for _, x := range *s {
		if x != v {
			out = append(out, x)
		}
	}
	*s = out
}

// advanceWritePipes drains any bucket whose write latency has elapsed into
// its segment's dispatch-ready queue.
func (c *Coalescer) advanceWritePipes(cycle uint64) {
	for i := range c.channels {
		for _, b := range c.channels[i].writePipe.Pop(cycle) {
			b.State = BucketInFlight
			s := c.segmentOf(b.SegmentID)
			s.readyQueue = append(s.readyQueue, b)
		}
	}
}

// admit runs the BFS or DFS admission-control policy, moving candidate
// segments into the active set while the byte budget allows (§4.5
// "Admission control").
func (c *Coalescer) admit() {
	c.revealChildrenOfActive()

	budget := c.cfg.MaxActiveSize
	used := c.activeSizeUsed()

	totalReady := 0
	for _, id := range c.active {
		totalReady += c.segmentOf(id).bucketsReady()
	}

	for {
		var candidate uint32
		var ok bool
		if c.cfg.Scheme == DFS {
			candidate, ok = c.popStack()
		} else {
			candidate, ok = c.popFIFO()
		}
		if !ok {
			return
		}
		s := c.segmentOf(candidate)
		fits := used+s.size <= budget
		unconditional := totalReady < c.cfg.ReadyBucketThreshold
		if !fits && !unconditional {
			c.pushBackCandidate(candidate)
			return
		}
		c.active = append(c.active, candidate)
		used += s.size
		c.Stats.SegmentsAdmitted++
	}
}

func (c *Coalescer) activeSizeUsed() uint64 {
	var total uint64
	for _, id := range c.active {
		total += c.segmentOf(id).size
	}
	return total
}

func (c *Coalescer) popFIFO() (uint32, bool) {
	if len(c.fifo) == 0 {
		return 0, false
	}
	v := c.fifo[0]
	c.fifo = c.fifo[1:]
	return v, true
}

func (c *Coalescer) popStack() (uint32, bool) {
	if len(c.stack) == 0 {
		return 0, false
	}
	v := c.stack[len(c.stack)-1]
	c.stack = c.stack[:len(c.stack)-1]
	return v, true
}

func (c *Coalescer) pushBackCandidate(id uint32) {
	if c.cfg.Scheme == DFS {
		c.stack = append(c.stack, id)
	} else {
		c.fifo = append([]uint32{id}, c.fifo...)
	}
}

// revealChildrenOfActive pushes the children of any active segment that has
// received at least one bucket and has not yet had its children revealed
// (an empty subtree never reveals children, per §4.5).
func (c *Coalescer) revealChildrenOfActive() {
	if c.cfg.Resolve == nil {
		return
	}
	for _, id := range c.active {
		if c.revealed[id] {
			continue
		}
		s := c.segmentOf(id)
		if s.totalBuckets == 0 && s.bucketsReady() == 0 {
			continue
		}
		c.revealed[id] = true
		s.childrenScheduled = true

		info := c.cfg.Resolve(id)
		children := make([]uint32, 0, info.NumChildren)
		for i := uint32(0); i < info.NumChildren; i++ {
			childID := info.FirstChild + i
			child := c.segmentOf(childID)
			childInfo := c.cfg.Resolve(childID)
			child.parent = id
			child.depth = s.depth + 1
			child.size = childInfo.SizeBytes
			child.baseAddr = childInfo.BaseAddr
			children = append(children, childID)
		}

		if c.cfg.Scheme == DFS {
			appearance := c.appearanceSeq
			c.appearanceSeq++
			sort.Slice(children, func(i, j int) bool {
				si, sj := c.segmentOf(children[i]), c.segmentOf(children[j])
				return si.dfsWeight(c.cfg.Weight, appearance) < sj.dfsWeight(c.cfg.Weight, appearance)
			})
			c.stack = append(c.stack, children...)
		} else {
			c.fifo = append(c.fifo, children...)
		}
	}
}

// prefetchSectorSize is the granularity a treelet body is striped into
// across prefetch lanes (§4.5 "sector-granular").
const prefetchSectorSize = 64

// issuePrefetches emits up to PrefetchLanes PREFETCH requests per cycle,
// one sector each, advancing each active segment's prefetch cursor through
// its treelet body until the whole body has been requested (§4.5 "pre-fetch
// its body into the L2 cache via a prefetch queue, sector-granular, striped
// across 16 prefetch lanes").
func (c *Coalescer) issuePrefetches() {
	if c.PrefetchOut == nil || c.cfg.PrefetchLanes <= 0 {
		return
	}
	lanes := c.cfg.PrefetchLanes
	for i := 0; i < len(c.active) && lanes > 0; i++ {
		s := c.segmentOf(c.active[i])
		if s.size == 0 || s.prefetchCursor >= s.size {
			continue
		}

		size := uint64(prefetchSectorSize)
		if remaining := s.size - s.prefetchCursor; remaining < size {
			size = remaining
		}

		c.stagedPrefetch = append(c.stagedPrefetch, memreq.Request{
			Kind: memreq.PREFETCH,
			Addr: s.baseAddr + s.prefetchCursor,
			Size: uint8(size),
		})
		s.prefetchCursor += size
		c.Stats.PrefetchesIssued++
		lanes--
	}
}

// serveDispatchRequest grants at most one pending bucket-request per cycle,
// preferring a segment already pinned to the requester, then an unpinned
// segment, then the segment minimizing num_tms/buckets_ready (§4.5 "Read
// path").
func (c *Coalescer) serveDispatchRequest(cycle uint64) {
	requesting := make([]bool, len(c.ReqIn))
	for i, q := range c.ReqIn {
		requesting[i] = q != nil && q.IsReadValid() && len(c.pendingDispatch[i]) == 0
	}
	port := c.arb.Grant(requesting)
	if port < 0 {
		return
	}
	req, ok := c.ReqIn[port].Read()
	if !ok {
		return
	}

	s := c.selectDispatchSegment(req.Port)
	if s == nil {
		return
	}
	bucket := s.readyQueue[0]
	s.readyQueue = s.readyQueue[1:]
	s.pinnedTMs[req.Port] = true

	for i, rayID := range bucket.RayIDs {
		c.pendingDispatch[port] = append(c.pendingDispatch[port], rtcoreBucketRay(rayID, s.id, i == len(bucket.RayIDs)-1))
	}
}

func (c *Coalescer) selectDispatchSegment(tmPort int) *segment {
	var pinned, unpinned *segment
	var best *segment
	var bestScore float64

	for _, id := range c.active {
		s := c.segmentOf(id)
		if s.bucketsReady() == 0 {
			continue
		}
		if s.pinnedTMs[tmPort] {
			pinned = s
			continue
		}
		if len(s.pinnedTMs) == 0 && unpinned == nil {
			unpinned = s
		}
		score := float64(s.numTMs()) / float64(s.bucketsReady())
		if best == nil || score < bestScore {
			best, bestScore = s, score
		}
	}

	switch {
	case pinned != nil:
		return pinned
	case unpinned != nil:
		return unpinned
	default:
		return best
	}
}
