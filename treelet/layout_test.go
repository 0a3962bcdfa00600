package treelet_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rtxsim/treelet"
)

var _ = Describe("Layout", func() {
	It("round-trips a header, a mixed-kind node, and a triangle through encoding/binary", func() {
		l := &treelet.Layout{
			Header: treelet.Header{Bytes: 256, NumChildren: 1, FirstChild: 7, Depth: 2},
			Width:  8,
			Nodes: []treelet.Node{
				{Children: [treelet.MaxWidth]treelet.ChildSlot{
					{Box: treelet.AABB{MinX: -1, MaxX: 1, MaxY: 1, MaxZ: 1}, Kind: treelet.ChildInteriorLocal, NodeIndex: 3},
					{Kind: treelet.ChildInteriorTreelet, TreeletIndex: 7},
					{Kind: treelet.ChildLeaf, PrimIndex: 12, NumPrims: 2},
					{Kind: treelet.ChildEmpty},
				}},
			},
			Primitives: []treelet.Triangle{
				{V0: [3]float32{0, 0, -1}, V1: [3]float32{1, 0, -1}, V2: [3]float32{0, 1, -1}, ID: 42},
			},
		}

		var buf bytes.Buffer
		Expect(l.WriteTo(&buf)).To(Succeed())

		decoded, err := treelet.ReadLayout(&buf, 8, 1, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(decoded.Header).To(Equal(l.Header))
		Expect(decoded.Nodes[0].Children[0].Kind).To(Equal(treelet.ChildInteriorLocal))
		Expect(decoded.Nodes[0].Children[0].NodeIndex).To(Equal(uint32(3)))
		Expect(decoded.Nodes[0].Children[1].TreeletIndex).To(Equal(uint32(7)))
		Expect(decoded.Nodes[0].Children[2].PrimIndex).To(Equal(uint32(12)))
		Expect(decoded.Nodes[0].Children[2].NumPrims).To(Equal(uint32(2)))
		Expect(decoded.Nodes[0].Children[3].Kind).To(Equal(treelet.ChildEmpty))
		Expect(decoded.Primitives[0].ID).To(Equal(uint32(42)))
	})

	It("rejects a width that is neither 6 nor 8", func() {
		l := &treelet.Layout{Width: 4}
		Expect(l.WriteTo(&bytes.Buffer{})).To(HaveOccurred())
		_, err := treelet.ReadLayout(&bytes.Buffer{}, 4, 0, 0)
		Expect(err).To(HaveOccurred())
	})
})
