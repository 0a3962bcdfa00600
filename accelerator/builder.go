// Package accelerator wires every Unit — clock, interconnect, cache,
// RT-core, coalescer, DRAM — into one clock.Simulator, the way the
// teacher's config.DeviceBuilder wires CGRA tiles into one cgra.Device.
// A single RT-core/L1+L2-bank/DRAM-channel configuration is wired by
// default; see DESIGN.md for the multi-core/multi-channel simplification
// this build stops short of.
package accelerator

import (
	"github.com/sarchlab/rtxsim/cache"
	"github.com/sarchlab/rtxsim/clock"
	"github.com/sarchlab/rtxsim/coalescer"
	"github.com/sarchlab/rtxsim/config"
	"github.com/sarchlab/rtxsim/dram"
	"github.com/sarchlab/rtxsim/iconn"
	"github.com/sarchlab/rtxsim/memreq"
	"github.com/sarchlab/rtxsim/rtcore"
	"github.com/sarchlab/rtxsim/simlog"
)

// Accelerator is a fully-wired simulation: one clock.Simulator, one
// RT-core, one ray coalescer, an L1/L2 cache pair, and one DRAM channel,
// plus the ThreadModule and AtomicRegfile collaborators.
type Accelerator struct {
	Sim *clock.Simulator

	Core      *rtcore.Core
	Coalescer *coalescer.Coalescer
	L1        *cache.Bank
	L2        *cache.Bank
	DRAM      *DRAMBridge
	Memory    *dram.SimpleModel
	Thread    *ThreadModule
	Regfile   *AtomicRegfile

	cfg *config.Config
}

// Builder assembles an Accelerator from a validated config.Config.
type Builder struct {
	cfg     *config.Config
	width   uint8
	resolve coalescer.ChildResolver

	treeletStride    uint64
	primitiveOffset  uint64
	trianglesPerLeaf int
	rayStateBase     uint64
	rayStateStride   uint64
	dramLatency      uint64
}

// NewBuilder starts a Builder from a validated config.Config, with the
// treelet/ray-state layout parameters a scene loader would otherwise
// supply.
func NewBuilder(cfg *config.Config) Builder {
	return Builder{
		cfg:              cfg,
		width:            8,
		treeletStride:    1 << 20, // 1 MiB per treelet slot
		primitiveOffset:  4096,
		trianglesPerLeaf: 4,
		rayStateBase:     1 << 24,
		rayStateStride:   uint64(rtcore.RayPayloadSize),
		dramLatency:      20,
	}
}

func (b Builder) WithTreeWidth(width uint8) Builder {
	b.width = width
	return b
}

func (b Builder) WithResolve(resolve coalescer.ChildResolver) Builder {
	b.resolve = resolve
	return b
}

func (b Builder) WithLayout(treeletStride, primitiveOffset, rayStateBase, rayStateStride uint64, trianglesPerLeaf int) Builder {
	b.treeletStride = treeletStride
	b.primitiveOffset = primitiveOffset
	b.rayStateBase = rayStateBase
	b.rayStateStride = rayStateStride
	b.trianglesPerLeaf = trianglesPerLeaf
	return b
}

func (b Builder) WithDRAMLatency(cycles uint64) Builder {
	b.dramLatency = cycles
	return b
}

const blockSize = 64

// prefetchLanes is the number of sector-granular prefetch lanes the
// coalescer stripes a segment's body across when it admits a treelet
// (spec §4.5).
const prefetchLanes = 16

// Build wires every Unit into groups and returns the assembled
// Accelerator. Every cross-Unit link is a Cascade, so no group ever
// needs same-cycle visibility into another group's output; the group
// split below (front-end / traversal / memory) exists only to make the
// registration order explicit per the §9 Design Note, not because any
// Unit depends on it for correctness.
func (b Builder) Build(name string) *Accelerator {
	sim := clock.NewSimulator()

	core := rtcore.NewCore(name+".RT0", rtcore.Config{
		MaxRays:          64,
		Width:            b.width,
		BlockSize:        blockSize,
		TreeletStride:    b.treeletStride,
		PrimitiveOffset:  b.primitiveOffset,
		TrianglesPerLeaf: b.trianglesPerLeaf,
		RayStateBase:     b.rayStateBase,
		RayStateStride:   b.rayStateStride,
		NodeIsectLatency: 3,
		TriIsectLatency:  22,
	})

	coal := coalescer.NewCoalescer(name+".Coalescer", coalescer.Config{
		NumChannels:          1,
		WriteLatency:         4,
		PrefetchLanes:        prefetchLanes,
		MaxActiveSize:        b.cfg.MaxActiveSetSize,
		ReadyBucketThreshold: 1,
		RootRayCount:         1 << 30,
		Scheme:               coalescer.TraversalScheme(b.cfg.TraversalScheme),
		Weight:               coalescer.WeightScheme(b.cfg.WeightScheme),
		Resolve:              b.resolve,
	}, 1)

	l1cfg := cache.Config{
		TotalSize:     nonZero(b.cfg.L1Size, 1<<15),
		BlockSize:     blockSize,
		Associativity: nonZeroInt(b.cfg.L1Associativity, 4),
		Policy:        cache.LRU,
		Level:         0,
		InOrder:       b.cfg.L1InOrder,
	}
	l1 := cache.NewBank(name+".L1", l1cfg, 16, false, 2)

	l2cfg := cache.Config{
		TotalSize:     nonZero(b.cfg.L2Size, 1<<20),
		BlockSize:     blockSize,
		Associativity: nonZeroInt(b.cfg.L2Associativity, 8),
		Policy:        cache.LRU,
		Level:         1,
		InOrder:       b.cfg.L2InOrder,
	}
	l2 := cache.NewBank(name+".L2", l2cfg, 16, false, 4)

	model := dram.NewSimpleModel(b.dramLatency, blockSize)
	addrs := dram.NewAddrMap(dram.RoRaBaChCo, 1, 0)
	ctrl := dram.NewController(name+".DRAM", model, addrs)
	bridge := NewDRAMBridge(name+".DRAMBridge", ctrl)

	thread := NewThreadModule(name+".TP0", 0)
	regfile := NewAtomicRegfile(name + ".Regfile")

	wire(core, coal, l1, l2, bridge, thread, regfile)

	pump := newBucketPump(name+".BucketPump0", 0, coal)

	front := sim.NewGroup("front-end") // thread module issues/reads back
	front.Add(thread)
	front.Add(regfile)

	traversal := sim.NewGroup("traversal") // RT-core + coalescer
	traversal.Add(core)
	traversal.Add(coal)
	traversal.Add(pump)

	memory := sim.NewGroup("memory") // L1 + L2 + DRAM
	memory.Add(l1)
	memory.Add(l2)
	memory.Add(bridge)

	return &Accelerator{
		Sim:       sim,
		Core:      core,
		Coalescer: coal,
		L1:        l1,
		L2:        l2,
		DRAM:      bridge,
		Memory:    model,
		Thread:    thread,
		Regfile:   regfile,
		cfg:       b.cfg,
	}
}

func nonZero(v, fallback uint64) uint64 {
	if v == 0 {
		return fallback
	}
	return v
}

func nonZeroInt(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}

// wire assigns every shared cascade between Units. A Cascade is a plain
// struct pointer shared by producer and consumer — there is no separate
// "connection" object, matching iconn's port-assignment idiom used
// throughout the core/bank tests.
func wire(core *rtcore.Core, coal *coalescer.Coalescer, l1, l2 *cache.Bank, bridge *DRAMBridge, thread *ThreadModule, regfile *AtomicRegfile) {
	tpReq := iconn.NewCascade[memreq.Request](4)
	tpRet := iconn.NewCascade[memreq.Return](4)
	thread.ReqOut, core.ReqIn = tpReq, tpReq
	thread.RetIn, core.RetOut = tpRet, tpRet

	regReq := iconn.NewCascade[memreq.Request](4)
	regRet := iconn.NewCascade[memreq.Return](4)
	thread.RegReqOut, regfile.ReqIn = regReq, regReq
	regfile.RetOut, thread.RegRetIn = regRet, regRet

	memReq := iconn.NewCascade[memreq.Request](4)
	memRet := iconn.NewCascade[memreq.Return](4)
	core.MemReqOut, l1.ReqIn = memReq, memReq
	l1.RetOut, core.MemRetIn = memRet, memRet

	l1Miss := iconn.NewCascade[memreq.Request](4)
	l1Fill := iconn.NewCascade[memreq.Return](4)
	l1.MissOut, l2.ReqIn = l1Miss, l1Miss
	l2.RetOut, l1.RetIn = l1Fill, l1Fill

	prefetch := iconn.NewCascade[memreq.Request](prefetchLanes)
	coal.PrefetchOut, l2.PrefetchIn = prefetch, prefetch

	miss := iconn.NewCascade[memreq.Request](4)
	fill := iconn.NewCascade[memreq.Return](4)
	l2.MissOut, bridge.MissIn = miss, miss
	bridge.RetOut, l2.RetIn = fill, fill

	work := iconn.NewCascade[memreq.WorkItem](256)
	done := iconn.NewCascade[memreq.BucketComplete](64)
	core.WorkOut, coal.WorkIn = work, work
	core.BucketCompleteOut, coal.DoneIn = done, done

	bucketRay := iconn.NewCascade[rtcore.BucketRay](4)
	coal.RetOut[0], core.BucketIn = bucketRay, bucketRay

	bucketReq := iconn.NewCascade[coalescer.BucketRequest](4)
	coal.ReqIn[0] = bucketReq
}

// Step advances the whole accelerator by one cycle.
func (a *Accelerator) Step() { a.Sim.Step() }

// Report assembles the final textual summary (spec §6 "Output") from the
// wired Units' Stats.
func (a *Accelerator) Report(framebuffer []byte) simlog.Report {
	return simlog.Report{
		Cycles: a.Sim.Cycle(),
		Caches: []simlog.CacheStats{
			{
				Name:       a.L1.Name(),
				Hits:       a.L1.Stats.Hits + a.L1.Stats.LFBHits,
				HalfMisses: a.L1.Stats.HalfMiss,
				Misses:     a.L1.Stats.Misses,
			},
			{
				Name:       a.L2.Name(),
				Hits:       a.L2.Stats.Hits + a.L2.Stats.LFBHits,
				HalfMisses: a.L2.Stats.HalfMiss,
				Misses:     a.L2.Stats.Misses,
			},
		},
		RTCores: map[string]int64{
			a.Core.Name(): a.Core.Stats.RaysTraced,
		},
		FramebufferWidth:  a.cfg.FramebufferWidth,
		FramebufferHeight: a.cfg.FramebufferHeight,
		Framebuffer:       framebuffer,
	}
}
