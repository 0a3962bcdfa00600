package coalescer_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rtxsim/coalescer"
	"github.com/sarchlab/rtxsim/iconn"
	"github.com/sarchlab/rtxsim/memreq"
	"github.com/sarchlab/rtxsim/rtcore"
)

func wireCoalescer(c *coalescer.Coalescer) {
	c.WorkIn = iconn.NewCascade[memreq.WorkItem](coalescer.BucketCapacity + 8)
	c.DoneIn = iconn.NewCascade[memreq.BucketComplete](8)
	for i := range c.ReqIn {
		c.ReqIn[i] = iconn.NewCascade[coalescer.BucketRequest](4)
		c.RetOut[i] = iconn.NewCascade[rtcore.BucketRay](1)
	}
}

var _ = Describe("Coalescer", func() {
	It("flushes a full bucket to a channel and dispatches it ray-by-ray to a requester", func() {
		cfg := coalescer.Config{
			NumChannels:          1,
			WriteLatency:         1,
			ReadyBucketThreshold: 1,
			MaxActiveSize:        1 << 30,
			RootRayCount:         1 << 30,
			Scheme:               coalescer.BFS,
		}
		c := coalescer.NewCoalescer("CZ0", cfg, 1)
		wireCoalescer(c)

		for i := 0; i < coalescer.BucketCapacity; i++ {
			c.WorkIn.Write(memreq.WorkItem{RayID: uint32(i), SegmentID: 0, OrderHint: 0})
		}

		c.Rise(0)
		c.Fall(0)
		Expect(c.Stats.BucketsWritten).To(Equal(int64(1)))

		c.ReqIn[0].Write(coalescer.BucketRequest{Port: 0})
		c.Rise(1)
		c.Fall(1)

		var received []rtcore.BucketRay
		for cycle := uint64(2); cycle < uint64(coalescer.BucketCapacity)+10; cycle++ {
			c.Rise(cycle)
			c.Fall(cycle)
			if c.RetOut[0].IsReadValid() {
				br, ok := c.RetOut[0].Read()
				if ok {
					received = append(received, br)
				}
			}
		}
		Expect(received).To(HaveLen(coalescer.BucketCapacity))
		Expect(received[len(received)-1].BucketsToRetire).To(Equal(1))
		for _, br := range received[:len(received)-1] {
			Expect(br.BucketsToRetire).To(Equal(0))
		}
		Expect(c.Stats.BucketsDispatched).To(Equal(int64(1)))
	})

	It("retires a segment once its buckets are all retired and flushes its children's open buckets", func() {
		cfg := coalescer.Config{
			NumChannels:          1,
			WriteLatency:         1,
			ReadyBucketThreshold: 1,
			MaxActiveSize:        1 << 30,
			RootRayCount:         1,
			Scheme:               coalescer.BFS,
			Resolve: func(id uint32) coalescer.TreeletInfo {
				if id == 0 {
					return coalescer.TreeletInfo{NumChildren: 1, FirstChild: 1, SizeBytes: 64}
				}
				return coalescer.TreeletInfo{SizeBytes: 64}
			},
		}
		c := coalescer.NewCoalescer("CZ1", cfg, 1)
		wireCoalescer(c)

		// one ray completes the root: triggers parent_finished + flush of
		// its (partial, one-ray) open bucket.
		c.WorkIn.Write(memreq.WorkItem{RayID: 1, SegmentID: 0})
		c.Rise(0)
		c.Fall(0)
		Expect(c.Stats.BucketsWritten).To(Equal(int64(1)))

		// advance the write pipe and reveal children now that root has a
		// bucket.
		c.Rise(1)
		c.Fall(1)

		// a ray destined for the revealed child, to give it an open bucket
		// that retirement should flush.
		c.WorkIn.Write(memreq.WorkItem{RayID: 2, SegmentID: 1})
		c.Rise(2)
		c.Fall(2)

		c.DoneIn.Write(memreq.BucketComplete{SegmentID: 0})
		c.Rise(3)
		c.Fall(3)

		Expect(c.Stats.SegmentsRetired).To(Equal(int64(1)))
		// the child's bucket (one ray) was flushed on retirement, so a
		// second BucketsWritten increment should have landed.
		Expect(c.Stats.BucketsWritten).To(Equal(int64(2)))
	})

	It("issues real sector-addressed prefetches for an active segment's body", func() {
		cfg := coalescer.Config{
			NumChannels:          1,
			WriteLatency:         1,
			ReadyBucketThreshold: 1,
			MaxActiveSize:        1 << 30,
			RootRayCount:         1 << 30,
			Scheme:               coalescer.BFS,
			PrefetchLanes:        2,
			Resolve: func(id uint32) coalescer.TreeletInfo {
				return coalescer.TreeletInfo{SizeBytes: 200, BaseAddr: 0x10000}
			},
		}
		c := coalescer.NewCoalescer("CZ2", cfg, 1)
		wireCoalescer(c)
		c.PrefetchOut = iconn.NewCascade[memreq.Request](4)

		var prefetches []memreq.Request
		for cycle := uint64(0); cycle < 4; cycle++ {
			c.Rise(cycle)
			c.Fall(cycle)
			for c.PrefetchOut.IsReadValid() {
				req, _ := c.PrefetchOut.Read()
				prefetches = append(prefetches, req)
			}
		}

		Expect(prefetches).To(HaveLen(4))
		Expect(prefetches[0].Kind).To(Equal(memreq.PREFETCH))
		Expect(prefetches[0].Addr).To(Equal(uint64(0x10000)))
		Expect(prefetches[1].Addr).To(Equal(uint64(0x10000 + 64)))
		Expect(prefetches[2].Addr).To(Equal(uint64(0x10000 + 128)))
		Expect(prefetches[3].Addr).To(Equal(uint64(0x10000 + 192)))
		Expect(prefetches[3].Size).To(Equal(uint8(8)))
		Expect(c.Stats.PrefetchesIssued).To(Equal(int64(4)))
	})
})
