package coalescer

import (
	"github.com/sarchlab/rtxsim/iconn"
	"github.com/sarchlab/rtxsim/memreq"
	"github.com/sarchlab/rtxsim/rtcore"
)

// TraversalScheme selects the admission-control policy of §4.5.
type TraversalScheme int

const (
	BFS TraversalScheme = iota
	DFS
)

// BucketRequest is one RT-core port signaling it is ready to receive a
// dispatched bucket's rays.
type BucketRequest struct {
	Port int
}

// Config parametrizes a Coalescer.
type Config struct {
	NumChannels         int
	WriteLatency        uint64 // cycles a bucket spends in a channel's write queue before it is dispatchable
	PrefetchLanes       int    // lanes striped across, at most one prefetch issued per lane per cycle
	MaxActiveSize       uint64 // byte budget across the active segment set (max_active_segments_size)
	ReadyBucketThreshold int   // BFS unconditional-admit threshold on total ready buckets
	RootRayCount        int
	Scheme              TraversalScheme
	Weight              WeightScheme
	Resolve             ChildResolver
}

// Stats accumulates coalescer-wide counters for the final report.
type Stats struct {
	BucketsWritten   int64
	BucketsDispatched int64
	SegmentsAdmitted int64
	SegmentsRetired  int64
	PrefetchesIssued int64
}

// Coalescer is the ray coalescer and treelet scheduler, a clock.Unit wired
// between every RT-core and the L2 cache hierarchy.
type Coalescer struct {
	name string
	cfg  Config

	segments map[uint32]*segment
	active   []uint32 // admitted segment ids, in BFS/DFS pop order
	fifo     []uint32 // BFS candidate queue
	stack    []uint32 // DFS candidate stack
	appearanceSeq int

	channels []channelState

	rootRaysSeen int
	revealed     map[uint32]bool // segments whose children have been pushed to the candidate set

	WorkIn *iconn.Cascade[memreq.WorkItem]
	DoneIn *iconn.Cascade[memreq.BucketComplete]

	ReqIn  []*iconn.Cascade[BucketRequest]
	RetOut []*iconn.Cascade[rtcore.BucketRay]
	arb    *iconn.Arbiter

	PrefetchOut *iconn.Cascade[memreq.Request]

	Stats Stats

	pendingDispatch [][]rtcore.BucketRay // per port, rays of the bucket currently draining out

	stagedPrefetch []memreq.Request
}

type channelState struct {
	writePipe *iconn.Pipeline[*Bucket]
}

// NewCoalescer constructs a Coalescer serving numPorts RT-cores.
func NewCoalescer(name string, cfg Config, numPorts int) *Coalescer {
	channels := make([]channelState, cfg.NumChannels)
	latency := cfg.WriteLatency
	if latency == 0 {
		latency = 1
	}
	for i := range channels {
		channels[i] = channelState{writePipe: iconn.NewPipeline[*Bucket](latency)}
	}

	c := &Coalescer{
		name:            name,
		cfg:             cfg,
		segments:        make(map[uint32]*segment),
		revealed:        make(map[uint32]bool),
		channels:        channels,
		ReqIn:           make([]*iconn.Cascade[BucketRequest], numPorts),
		RetOut:          make([]*iconn.Cascade[rtcore.BucketRay], numPorts),
		arb:             iconn.NewArbiter(numPorts),
		pendingDispatch: make([][]rtcore.BucketRay, numPorts),
	}

	root := newSegment(0, 0, 0, 0)
	if cfg.Resolve != nil {
		info := cfg.Resolve(0)
		root.size = info.SizeBytes
		root.baseAddr = info.BaseAddr
	}
	c.segments[0] = root
	c.active = append(c.active, 0)
	return c
}

func (c *Coalescer) Name() string { return c.name }

func (c *Coalescer) segmentOf(id uint32) *segment {
	s, ok := c.segments[id]
	if !ok {
		s = newSegment(id, 0, 0, 0)
		c.segments[id] = s
	}
	return s
}

// Rise applies this cycle's completion/allocation notifications, advances
// write-cascades, runs admission control, issues prefetches, and serves one
// bucket-dispatch request — in that order, per §4.5 "Per-cycle ordering".
func (c *Coalescer) Rise(cycle uint64) {
	c.ingestWork(cycle)
	c.ingestDone(cycle)
	c.advanceWritePipes(cycle)
	c.admit()
	c.issuePrefetches()
	c.serveDispatchRequest(cycle)
}

func (c *Coalescer) Fall(cycle uint64) {
	for len(c.stagedPrefetch) > 0 && c.PrefetchOut != nil && c.PrefetchOut.IsWriteValid() {
		c.PrefetchOut.Write(c.stagedPrefetch[0])
		c.stagedPrefetch = c.stagedPrefetch[1:]
	}
	for port, queue := range c.pendingDispatch {
		if len(queue) == 0 {
			continue
		}
		if !c.RetOut[port].IsWriteValid() {
			continue
		}
		c.RetOut[port].Write(queue[0])
		c.pendingDispatch[port] = queue[1:]
		if queue[0].BucketsToRetire > 0 {
			c.Stats.BucketsDispatched++
		}
	}
}

// rtcoreBucketRay builds the BucketRay message handed to an RT-core for one
// ray of a dispatched bucket; only the last ray of the bucket carries the
// retirement signal.
func rtcoreBucketRay(rayID, segmentID uint32, last bool) rtcore.BucketRay {
	br := rtcore.BucketRay{RayID: rayID, SegmentID: segmentID}
	if last {
		br.BucketsToRetire = 1
	}
	return br
}
