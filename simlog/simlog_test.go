package simlog_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rtxsim/simlog"
)

var _ = Describe("Poller", func() {
	It("batches accumulator deltas and fires only once the interval elapses", func() {
		var calls int
		var lastTotals map[string]map[string]int64
		p := simlog.NewPoller(4, func(cycle uint64, totals map[string]map[string]int64) {
			calls++
			lastTotals = totals
		})

		for cycle := uint64(0); cycle < 4; cycle++ {
			acc := simlog.NewCycleAccumulator("L2", cycle)
			acc.Add("hits", 1)
			p.Record(acc)
			p.Tick(cycle)
		}

		Expect(calls).To(Equal(1))
		Expect(lastTotals["L2"]["hits"]).To(Equal(int64(4)))
	})
})

var _ = Describe("Report", func() {
	It("renders without panicking on an empty report", func() {
		r := simlog.Report{Cycles: 100, MRaysPerSec: 12.5}
		Expect(r.Render()).To(ContainSubstring("Cycles"))
	})

	It("computes cache rates against the total of hits, half-misses, and misses", func() {
		r := simlog.Report{
			Caches: []simlog.CacheStats{{Name: "L1", Hits: 80, HalfMisses: 10, Misses: 10}},
		}
		out := r.Render()
		Expect(out).To(ContainSubstring("80.00"))
	})
})
