package rtcore

import (
	"math/bits"

	"github.com/sarchlab/rtxsim/clock"
	"github.com/sarchlab/rtxsim/iconn"
	"github.com/sarchlab/rtxsim/memreq"
	"github.com/sarchlab/rtxsim/treelet"
)

// Config parametrizes one RT-core instance.
type Config struct {
	MaxRays           int
	Width             uint8  // tree width, 6 or 8
	BlockSize         uint64 // cache line size sub-fetches are split on
	TreeletStride     uint64 // bytes reserved per treelet slot in the flat address space
	PrimitiveOffset   uint64 // bytes from a treelet's base to its triangle payload
	TrianglesPerLeaf  int    // K, triangles read per leaf fetch
	RayStateBase      uint64 // base address of the ray-state array in DRAM
	RayStateStride    uint64 // bytes per ray-state record
	NodeIsectLatency  uint64 // cycles, fixed at 3 by §4.4
	TriIsectLatency   uint64 // cycles, fixed at 22 by §4.4
}

// BucketRay is one ray handed to a Core by the coalescer's bucket dispatch
// channel: only an id and the segment it belongs to, since the ray's full
// state is re-fetched from the ray-state array (phase RAY_FETCH).
type BucketRay struct {
	RayID           uint32
	SegmentID       uint32
	BucketsToRetire int // > 0 only on the ray whose completion should flush this many BucketComplete notifications
}

// Stats accumulates per-core counters for the final report.
type Stats struct {
	RaysTraced      int64
	NodesVisited    int64
	TrianglesTested int64
	HitsFound       int64
}

type segmentTracker struct {
	rayCount        int
	bucketsToRetire int
}

// Core is a fixed-function RT-core: up to Config.MaxRays rays in flight,
// each progressing through the Phase state machine at the rate it obtains
// memory and functional-unit capacity. It is a clock.Unit.
type Core struct {
	name string
	cfg  Config

	rays  []rayState
	ready []int // FIFO of ray-slot indices ready for scheduling

	nodeIsectPipe *iconn.Pipeline[int]
	triIsectPipe  *iconn.Pipeline[int]

	raybits uint8 // bits of DestStack used to tag an in-flight sub-fetch's owning ray

	activeFetchRay int // ray-slot index with a multi-part fetch in progress, or -1
	completedHits  map[uint32]Hit
	orderHints     map[uint32]uint8 // per-ray treelet-hop counter, survives slot release across bucket round trips (§4.5 priority weight)
	segments       map[uint32]*segmentTracker
	bucketCompleteQueue []uint32

	ReqIn  *iconn.Cascade[memreq.Request] // TRACERAY / LOAD_HIT from the thread processor
	RetOut *iconn.Cascade[memreq.Return]  // hit records back to the thread processor

	BucketIn *iconn.Cascade[BucketRay] // continuing rays from the coalescer's bucket dispatch

	MemReqOut *iconn.Cascade[memreq.Request] // node/tri/ray-state reads and CSHIT writes
	MemRetIn  *iconn.Cascade[memreq.Return]

	WorkOut           *iconn.Cascade[memreq.WorkItem]
	BucketCompleteOut *iconn.Cascade[memreq.BucketComplete]

	Stats Stats

	stagedMemReq *memreq.Request
	stagedRet    *memreq.Return
	stagedWork   *memreq.WorkItem
	stagedDone   *memreq.BucketComplete
}

// NewCore constructs an empty RT-core with cfg.MaxRays ray slots.
func NewCore(name string, cfg Config) *Core {
	raybits := uint8(bits.Len(uint(cfg.MaxRays - 1)))
	if raybits == 0 {
		raybits = 1
	}
	return &Core{
		name:           name,
		cfg:            cfg,
		rays:           make([]rayState, cfg.MaxRays),
		nodeIsectPipe:  iconn.NewPipeline[int](max1(cfg.NodeIsectLatency)),
		triIsectPipe:   iconn.NewPipeline[int](max1(cfg.TriIsectLatency)),
		raybits:        raybits,
		activeFetchRay: -1,
		completedHits:  make(map[uint32]Hit),
		orderHints:     make(map[uint32]uint8),
		segments:       make(map[uint32]*segmentTracker),
	}
}

func max1(v uint64) uint64 {
	if v == 0 {
		return 1
	}
	return v
}

func (c *Core) Name() string { return c.name }

func (c *Core) allocSlot() int {
	for i := range c.rays {
		if !c.rays[i].occupied {
			return i
		}
	}
	return -1
}

func (c *Core) nodeAddr(treeletIdx, nodeIdx uint32) uint64 {
	return uint64(treeletIdx)*c.cfg.TreeletStride +
		treelet.HeaderSize + uint64(nodeIdx)*uint64(treelet.NodeSize(c.cfg.Width))
}

func (c *Core) leafAddr(treeletIdx, primIndex uint32) uint64 {
	return uint64(treeletIdx)*c.cfg.TreeletStride +
		c.cfg.PrimitiveOffset + uint64(primIndex)*uint64(treelet.TriangleSize)
}

func (c *Core) rayStateAddr(globalIndex uint32) uint64 {
	return c.cfg.RayStateBase + uint64(globalIndex)*c.cfg.RayStateStride
}

// Rise ingests arriving memory returns and TP/bucket admissions, drains
// intersect pipelines, and — if the single memory-issue port is free —
// schedules one ready ray forward.
func (c *Core) Rise(cycle uint64) {
	c.ingestMemReturn(cycle)
	c.drainPipelines(cycle)
	c.ingestAdmissions(cycle)

	if c.activeFetchRay >= 0 {
		c.continueFetch(cycle, c.activeFetchRay)
		return
	}
	if c.stagedMemReq == nil && c.stagedWork == nil && c.stagedDone == nil {
		c.scheduleOne(cycle)
	}
}

// Fall commits this cycle's staged outputs, leaving anything that could not
// be written queued for retry next cycle (the §5 "write port busy" policy).
func (c *Core) Fall(cycle uint64) {
	if c.stagedMemReq != nil && c.MemReqOut.IsWriteValid() {
		c.MemReqOut.Write(*c.stagedMemReq)
		c.stagedMemReq = nil
	}
	if c.stagedRet != nil && c.RetOut.IsWriteValid() {
		c.RetOut.Write(*c.stagedRet)
		c.stagedRet = nil
	}
	if c.stagedWork != nil && c.WorkOut.IsWriteValid() {
		c.WorkOut.Write(*c.stagedWork)
		c.stagedWork = nil
	}
	if c.stagedDone != nil && c.BucketCompleteOut.IsWriteValid() {
		c.BucketCompleteOut.Write(*c.stagedDone)
		c.stagedDone = nil
	} else if c.stagedDone == nil && len(c.bucketCompleteQueue) > 0 && c.BucketCompleteOut.IsWriteValid() {
		seg := c.bucketCompleteQueue[0]
		c.bucketCompleteQueue = c.bucketCompleteQueue[1:]
		c.BucketCompleteOut.Write(memreq.BucketComplete{SegmentID: seg})
	}
}
