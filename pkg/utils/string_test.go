package utils

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Truncate", func() {
	It("leaves short strings alone", func() {
		Expect(Truncate("hi", 10)).To(Equal("hi"))
	})

	It("leaves strings exactly at the limit alone", func() {
		Expect(Truncate("12345", 5)).To(Equal("12345"))
	})

	It("truncates long strings with an ellipsis", func() {
		Expect(Truncate("computer, draw me a map of the base", 9)).To(Equal("computer,..."))
	})

	It("handles a zero limit", func() {
		Expect(Truncate("abc", 0)).To(Equal("..."))
	})

	It("counts runes, not bytes", func() {
		Expect(Truncate("héllo wörld", 6)).To(Equal("héllo ..."))
		Expect(Truncate("héllo", 5)).To(Equal("héllo"))
	})
})
