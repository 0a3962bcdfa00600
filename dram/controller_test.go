package dram_test

import (
	"errors"

	gomock "github.com/golang/mock/gomock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rtxsim/dram"
	"github.com/sarchlab/rtxsim/memreq"
)

var _ = Describe("Controller", func() {
	It("round-trips a load through the black-box model after its fixed latency", func() {
		model := dram.NewSimpleModel(5, 64)
		model.Write(0x1000, []byte{0xAB, 0xCD})

		addrs := dram.NewAddrMap(dram.RoRaBaChCo, 1, 6)
		ctrl := dram.NewController("DRAM", model, addrs)

		Expect(ctrl.IsRequestPortWriteValid()).To(BeTrue())
		ctrl.WriteRequest(memreq.Request{Kind: memreq.LOAD, Addr: 0x1000, Size: 64})
		Expect(ctrl.IsRequestPortWriteValid()).To(BeFalse())

		var cycle uint64
		for i := 0; i < 6; i++ {
			ctrl.Rise(cycle)
			ctrl.Fall(cycle)
			cycle++
		}

		Expect(ctrl.IsReturnPortReadValid()).To(BeTrue())
		ret, ok := ctrl.ReadReturn()
		Expect(ok).To(BeTrue())
		Expect(ret.Kind).To(Equal(memreq.LOAD_RETURN))
		Expect(ret.Payload[0]).To(Equal(byte(0xAB)))
		Expect(ret.Payload[1]).To(Equal(byte(0xCD)))
	})

	It("accumulates power counters per command", func() {
		model := dram.NewSimpleModel(2, 64)
		addrs := dram.NewAddrMap(dram.RoRaBaChCo, 1, 6)
		ctrl := dram.NewController("DRAM", model, addrs)

		ctrl.WriteRequest(memreq.Request{Kind: memreq.STORE, Addr: 0x0, Size: 64})
		ctrl.Rise(0)
		ctrl.Fall(0)

		Expect(ctrl.Power().Writes).To(Equal(int64(1)))
	})
})

var _ = Describe("Controller with a mocked Model", func() {
	It("holds a rejected request and surfaces LastError without retrying against a different channel", func() {
		mockCtrl := gomock.NewController(GinkgoT())
		model := NewMockModel(mockCtrl)
		addrs := dram.NewAddrMap(dram.RoRaBaChCo, 1, 6)
		ctrl := dram.NewController("DRAM", model, addrs)

		model.EXPECT().Tick(gomock.Any()).AnyTimes()
		model.EXPECT().Send(gomock.Any()).Return(errors.New("queue full")).Times(1)
		model.EXPECT().PollCompletions().Return(nil).AnyTimes()

		ctrl.WriteRequest(memreq.Request{Kind: memreq.LOAD, Addr: 0x2000, Size: 64})
		ctrl.Rise(0)
		ctrl.Fall(0)

		Expect(ctrl.LastError()).To(HaveOccurred())
		Expect(ctrl.IsRequestPortWriteValid()).To(BeFalse())
	})

	It("forwards the model's aggregated power counters unchanged", func() {
		mockCtrl := gomock.NewController(GinkgoT())
		model := NewMockModel(mockCtrl)
		addrs := dram.NewAddrMap(dram.RoRaBaChCo, 1, 6)
		ctrl := dram.NewController("DRAM", model, addrs)

		want := dram.PowerCounters{Reads: 3, Writes: 1}
		model.EXPECT().Power().Return(want)

		Expect(ctrl.Power()).To(Equal(want))
	})
})

var _ = Describe("AddrMap", func() {
	It("extracts a channel index from the configured bit field", func() {
		m := dram.NewAddrMap(dram.RoRaBaChCo, 4, 6)
		Expect(m.Channel(0x0)).To(Equal(0))
		Expect(m.Channel(1 << 6)).To(Equal(1))
		Expect(m.Channel(2 << 6)).To(Equal(2))
		Expect(m.Channel(3 << 6)).To(Equal(3))
	})

	It("always maps to channel 0 with a single channel", func() {
		m := dram.NewAddrMap(dram.RoRaBaChCo, 1, 6)
		Expect(m.Channel(0xDEADBEEF)).To(Equal(0))
	})
})
