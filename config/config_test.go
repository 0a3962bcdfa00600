package config_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rtxsim/config"
)

func validBuilder() config.Builder {
	return config.NewBuilder().
		WithSceneName("cornell-box").
		WithL1(32*1024, 4, true).
		WithL2(1<<20, 8, false)
}

var _ = Describe("Builder", func() {
	It("builds a valid config with defaults filled in", func() {
		cfg, err := validBuilder().Build()
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.NumRTCores).To(Equal(1))
		Expect(cfg.FramebufferWidth).To(Equal(64))
		Expect(cfg.TraversalScheme).To(Equal(config.BFS))
	})

	It("rejects an empty scene name", func() {
		_, err := config.NewBuilder().Build()
		Expect(err).To(HaveOccurred())
		var verr *config.ValidationError
		Expect(err).To(BeAssignableToTypeOf(verr))
		Expect(err.(*config.ValidationError).Field).To(Equal("SceneName"))
	})

	It("rejects an L1 size that isn't a multiple of its associativity", func() {
		_, err := validBuilder().WithL1(100, 3, false).Build()
		Expect(err).To(HaveOccurred())
		Expect(err.(*config.ValidationError).Field).To(Equal("L1Size"))
	})

	It("rejects an out-of-range weight scheme", func() {
		_, err := validBuilder().WithWeightScheme(config.WeightScheme(9)).Build()
		Expect(err).To(HaveOccurred())
		Expect(err.(*config.ValidationError).Field).To(Equal("WeightScheme"))
	})

	It("rejects a zero max active set size", func() {
		_, err := validBuilder().WithMaxActiveSetSize(0).Build()
		Expect(err).To(HaveOccurred())
		Expect(err.(*config.ValidationError).Field).To(Equal("MaxActiveSetSize"))
	})
})
