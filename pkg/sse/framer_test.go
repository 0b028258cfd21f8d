package sse

import (
	"slices"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LineFramer", func() {
	It("yields complete lines and carries the partial one", func() {
		f := NewLineFramer(false)

		Expect(slices.Collect(f.Feed("event: a\ndata: 1\nda"))).To(Equal([]string{"event: a", "data: 1"}))
		Expect(slices.Collect(f.Feed("ta: 2\n"))).To(Equal([]string{"data: 2"}))

		_, ok := f.Flush()
		Expect(ok).To(BeFalse())
	})

	It("yields blank lines", func() {
		f := NewLineFramer(false)
		Expect(slices.Collect(f.Feed("a\n\nb\n"))).To(Equal([]string{"a", "", "b"}))
	})

	It("keeps lines an early-stopping caller did not reach", func() {
		f := NewLineFramer(false)

		for line := range f.Feed("one\ntwo\nthree\n") {
			Expect(line).To(Equal("one"))
			break
		}

		Expect(slices.Collect(f.Feed(""))).To(Equal([]string{"two", "three"}))
	})

	It("keeps lines from a sequence that was never ranged over", func() {
		f := NewLineFramer(false)
		_ = f.Feed("one\n")
		Expect(slices.Collect(f.Feed("two\n"))).To(Equal([]string{"one", "two"}))
	})

	Context("at end of stream", func() {
		It("discards an unterminated final line by default", func() {
			f := NewLineFramer(false)
			Expect(slices.Collect(f.Feed("data: tail"))).To(BeEmpty())

			_, ok := f.Flush()
			Expect(ok).To(BeFalse())

			By("starting the next line from scratch")
			Expect(slices.Collect(f.Feed("x\n"))).To(Equal([]string{"x"}))
		})

		It("emits an unterminated final line when configured", func() {
			f := NewLineFramer(true)
			Expect(slices.Collect(f.Feed("data: tail"))).To(BeEmpty())

			line, ok := f.Flush()
			Expect(ok).To(BeTrue())
			Expect(line).To(Equal("data: tail"))
		})

		It("emits nothing when the stream ended on a terminator", func() {
			f := NewLineFramer(true)
			_ = slices.Collect(f.Feed("data: x\n"))

			_, ok := f.Flush()
			Expect(ok).To(BeFalse())
		})
	})
})
