package rtcore_test

import (
	"bytes"
	"encoding/binary"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rtxsim/iconn"
	"github.com/sarchlab/rtxsim/memreq"
	"github.com/sarchlab/rtxsim/rtcore"
	"github.com/sarchlab/rtxsim/treelet"
)

func testConfig() rtcore.Config {
	return rtcore.Config{
		MaxRays:          4,
		Width:            8,
		BlockSize:        memreq.MaxBlockSize, // a node spans several sub-fetches
		TreeletStride:    8192,
		PrimitiveOffset:  treelet.HeaderSize + uint64(treelet.NodeSize(8)),
		TrianglesPerLeaf: 2,
		RayStateBase:     0x100000,
		RayStateStride:   32,
		NodeIsectLatency: 3,
		TriIsectLatency:  22,
	}
}

func wireCore(c *rtcore.Core) {
	c.ReqIn = iconn.NewCascade[memreq.Request](4)
	c.RetOut = iconn.NewCascade[memreq.Return](4)
	c.BucketIn = iconn.NewCascade[rtcore.BucketRay](4)
	c.MemReqOut = iconn.NewCascade[memreq.Request](4)
	c.MemRetIn = iconn.NewCascade[memreq.Return](4)
	c.WorkOut = iconn.NewCascade[memreq.WorkItem](4)
	c.BucketCompleteOut = iconn.NewCascade[memreq.BucketComplete](4)
}

// encodeRay mirrors rtcore.Ray.Encode into a fresh MaxBlockSize buffer.
func encodeRay(r rtcore.Ray) [memreq.MaxBlockSize]byte {
	var buf [memreq.MaxBlockSize]byte
	r.Encode(buf[:])
	return buf
}

// treeletMem builds the flat byte image of a single treelet: header, an
// eight-wide node array, then the triangle payload, exactly matching
// testConfig's address layout.
func treeletMem(node treelet.Node, tris []treelet.Triangle) []byte {
	layout := &treelet.Layout{
		Header:     treelet.Header{},
		Width:      8,
		Nodes:      []treelet.Node{node},
		Primitives: tris,
	}
	var buf bytes.Buffer
	Expect(layout.WriteTo(&buf)).To(Succeed())
	return buf.Bytes()
}

// stepMemory drains one pending MemReqOut request (if any) against mem and
// answers it one cycle later via MemRetIn, modeling one cycle of DRAM
// latency.
func stepMemory(c *rtcore.Core, mem []byte) {
	if !c.MemReqOut.IsReadValid() {
		return
	}
	req, ok := c.MemReqOut.Read()
	if !ok {
		return
	}
	var payload [memreq.MaxBlockSize]byte
	copy(payload[:req.Size], mem[req.Addr:req.Addr+uint64(req.Size)])
	c.MemRetIn.Write(memreq.Return{
		Kind:    memreq.LOAD_RETURN,
		Size:    req.Size,
		Dst:     req.Dst,
		Port:    req.Port,
		Addr:    req.Addr,
		Payload: payload,
	})
}

func decodeFloat(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

var _ = Describe("Core", func() {
	It("traces a ray through one node and one leaf to a hit, then answers a LOAD_HIT readback", func() {
		cfg := testConfig()
		core := rtcore.NewCore("RT0", cfg)
		wireCore(core)

		node := treelet.Node{}
		node.Children[0] = treelet.ChildSlot{
			Kind: treelet.ChildLeaf,
			Box:  treelet.AABB{MinX: 0, MinY: 0, MinZ: -0.1, MaxX: 1, MaxY: 1, MaxZ: 0.1},
			PrimIndex: 0, NumPrims: 1,
		}
		tri := treelet.Triangle{V0: [3]float32{0, 0, 0}, V1: [3]float32{1, 0, 0}, V2: [3]float32{0, 1, 0}, ID: 42}
		mem := treeletMem(node, []treelet.Triangle{tri})
		// pad so any trailing reads within BlockSize don't run off the slice
		mem = append(mem, make([]byte, 4096)...)

		ray := rtcore.Ray{Origin: [3]float32{0.3, 0.3, -1}, Dir: [3]float32{0, 0, 1}, TMin: 0, TMax: 100}
		req := memreq.Request{Kind: memreq.TRACERAY, Addr: 7, Payload: encodeRay(ray), Port: 3}
		core.ReqIn.Write(req)

		var cycle uint64
		for ; cycle < 200; cycle++ {
			core.Rise(cycle)
			core.Fall(cycle)
			stepMemory(core, mem)
			if core.Stats.HitsFound > 0 {
				break
			}
		}
		Expect(core.Stats.HitsFound).To(Equal(int64(1)))
		Expect(core.Stats.NodesVisited).To(Equal(int64(1)))
		Expect(core.Stats.TrianglesTested).To(BeNumerically(">=", 1))

		// drain the ray to completion (empty stack -> finalize)
		for ; cycle < 400; cycle++ {
			core.Rise(cycle)
			core.Fall(cycle)
			stepMemory(core, mem)
		}

		var dst memreq.DestStack
		dst.Push(9, 4)
		readback := memreq.Request{Kind: memreq.CSHIT, Addr: 7, Dst: dst, Port: 5}
		core.ReqIn.Write(readback)

		var ret memreq.Return
		var ok bool
		for ; cycle < 600; cycle++ {
			core.Rise(cycle)
			core.Fall(cycle)
			stepMemory(core, mem)
			if core.RetOut.IsReadValid() {
				ret, ok = core.RetOut.Read()
				if ok {
					break
				}
			}
		}
		Expect(ok).To(BeTrue())
		Expect(ret.Port).To(Equal(5))
		Expect(ret.Dst.Pop(4)).To(Equal(uint32(9)))
		Expect(ret.Payload[20]).To(Equal(byte(1))) // Hit.Found
		Expect(decodeFloat(ret.Payload[0:4])).To(BeNumerically("~", 1.0, 1e-4))
	})

	It("emits a WorkItem and frees the ray slot at a child-treelet reference", func() {
		cfg := testConfig()
		core := rtcore.NewCore("RT1", cfg)
		wireCore(core)

		node := treelet.Node{}
		node.Children[0] = treelet.ChildSlot{
			Kind:         treelet.ChildInteriorTreelet,
			Box:          treelet.AABB{MinX: -1, MinY: -1, MinZ: -1, MaxX: 1, MaxY: 1, MaxZ: 1},
			TreeletIndex: 3,
		}
		mem := treeletMem(node, nil)
		mem = append(mem, make([]byte, 4096)...)

		ray := rtcore.Ray{Origin: [3]float32{0, 0, -1}, Dir: [3]float32{0, 0, 1}, TMin: 0, TMax: 100}
		core.ReqIn.Write(memreq.Request{Kind: memreq.TRACERAY, Addr: 11, Payload: encodeRay(ray), Port: 1})

		var got memreq.WorkItem
		var ok bool
		for cycle := uint64(0); cycle < 200; cycle++ {
			core.Rise(cycle)
			core.Fall(cycle)
			stepMemory(core, mem)
			if core.WorkOut.IsReadValid() {
				got, ok = core.WorkOut.Read()
				if ok {
					break
				}
			}
		}
		Expect(ok).To(BeTrue())
		Expect(got.RayID).To(Equal(uint32(11)))
		Expect(got.SegmentID).To(Equal(uint32(3)))
	})

	It("rehydrates a bucket-dispatched ray via RAY_FETCH and reports segment completion", func() {
		cfg := testConfig()
		core := rtcore.NewCore("RT2", cfg)
		wireCore(core)

		// A trivial treelet whose root has no children, so the ray finishes
		// immediately after its single node fetch.
		treeletBytes := treeletMem(treelet.Node{}, nil)
		rayAddr := cfg.RayStateBase + uint64(5)*cfg.RayStateStride
		mem := make([]byte, rayAddr+uint64(rtcore.RayPayloadSize)+4096)
		copy(mem, treeletBytes)
		ray := rtcore.Ray{Origin: [3]float32{0, 0, -1}, Dir: [3]float32{0, 0, 1}, TMin: 0, TMax: 100}
		rayBytes := encodeRay(ray)
		copy(mem[rayAddr:rayAddr+uint64(rtcore.RayPayloadSize)], rayBytes[:rtcore.RayPayloadSize])

		core.BucketIn.Write(rtcore.BucketRay{RayID: 5, SegmentID: 2, BucketsToRetire: 1})

		var done memreq.BucketComplete
		var ok bool
		for cycle := uint64(0); cycle < 300; cycle++ {
			core.Rise(cycle)
			core.Fall(cycle)
			stepMemory(core, mem)
			if core.BucketCompleteOut.IsReadValid() {
				done, ok = core.BucketCompleteOut.Read()
				if ok {
					break
				}
			}
		}
		Expect(ok).To(BeTrue())
		Expect(done.SegmentID).To(Equal(uint32(2)))
	})
})
