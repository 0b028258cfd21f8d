package sse

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// feedLines runs every line through a and then flushes it.
func feedLines(a *Assembler, lines ...string) []Record {
	var out []Record
	for _, line := range lines {
		if rec, ok := a.Line(line); ok {
			out = append(out, rec)
		}
	}
	if rec, ok := a.Flush(); ok {
		out = append(out, rec)
	}
	return out
}

var _ = Describe("Assembler", func() {
	Describe("PolicyBuffered", func() {
		var a *Assembler

		BeforeEach(func() {
			a = NewAssembler(PolicyBuffered)
		})

		It("flushes the pending record when the next event line arrives", func() {
			rec, ok := a.Line("event: thinking")
			Expect(ok).To(BeFalse())
			_, ok = a.Line("data: analyzing")
			Expect(ok).To(BeFalse())

			rec, ok = a.Line("event: content")
			Expect(ok).To(BeTrue())
			Expect(rec.Type).To(Equal("thinking"))
			Expect(rec.Payload).To(Equal(TextPayload("analyzing")))
		})

		It("flushes on a blank line and at stream end", func() {
			recs := feedLines(a, "event: content", "data: Hello", "", "event: content", "data: World")
			Expect(recs).To(Equal([]Record{
				{Type: "content", Payload: TextPayload("Hello")},
				{Type: "content", Payload: TextPayload("World")},
			}))
		})

		It("concatenates consecutive data lines", func() {
			recs := feedLines(a, "event: content", "data: Hel", "data: lo")
			Expect(recs).To(HaveLen(1))
			Expect(recs[0].Payload.Text()).To(Equal("Hello"))
		})

		It("strips only the single space after the colon", func() {
			recs := feedLines(a, "event: content", "data:  World")
			Expect(recs[0].Payload.Raw()).To(Equal(" World"))

			recs = feedLines(NewAssembler(PolicyBuffered), "data:nospace")
			Expect(recs[0].Payload.Raw()).To(Equal("nospace"))
		})

		It("trims the event type and strips carriage returns", func() {
			recs := feedLines(a, "event:   content  \r", "data: x\r")
			Expect(recs).To(Equal([]Record{{Type: "content", Payload: TextPayload("x")}}))
		})

		It("preserves an empty payload", func() {
			recs := feedLines(a, "event: done", "data: ")
			Expect(recs).To(Equal([]Record{{Type: "done", Payload: TextPayload("")}}))

			recs = feedLines(NewAssembler(PolicyBuffered), "event: done", "data:")
			Expect(recs).To(Equal([]Record{{Type: "done", Payload: TextPayload("")}}))
		})

		It("does not emit an event line without data", func() {
			Expect(feedLines(a, "event: done")).To(BeEmpty())
		})

		It("uses the default type when no event line was seen", func() {
			recs := feedLines(a, "data: plain")
			Expect(recs[0].Type).To(Equal(DefaultEventType))
		})

		It("resets the type to the default after each record", func() {
			recs := feedLines(a, "event: content", "data: a", "", "data: b")
			Expect(recs[1].Type).To(Equal(DefaultEventType))
		})

		It("ignores comments, ids, retries and unknown fields", func() {
			recs := feedLines(a, ": keep-alive", "id: 7", "retry: 1000", "foo: bar", "event: content", "data: x")
			Expect(recs).To(Equal([]Record{{Type: "content", Payload: TextPayload("x")}}))
		})

		It("parses JSON payloads and falls back to text", func() {
			recs := feedLines(a,
				"event: error", `data: {"message":"boom"}`,
				"event: content", "data: {not json",
			)
			Expect(recs).To(HaveLen(2))

			Expect(recs[0].Payload.IsStructured()).To(BeTrue())
			msg, ok := recs[0].Payload.StringField("message")
			Expect(ok).To(BeTrue())
			Expect(msg).To(Equal("boom"))

			Expect(recs[1].Payload.IsStructured()).To(BeFalse())
			Expect(recs[1].Payload.Text()).To(Equal("{not json"))
		})
	})

	Describe("PolicyPerLine", func() {
		It("emits one record per data line with the current type", func() {
			a := NewAssembler(PolicyPerLine)
			recs := feedLines(a, "event: content", "data: a", "data: b", "", "data: c", "event: done", "data:")
			Expect(recs).To(Equal([]Record{
				{Type: "content", Payload: TextPayload("a")},
				{Type: "content", Payload: TextPayload("b")},
				{Type: "content", Payload: TextPayload("c")},
				{Type: "done", Payload: TextPayload("")},
			}))
		})
	})

	Describe("ParsePolicy", func() {
		It("parses known names", func() {
			Expect(ParsePolicy("")).To(Equal(PolicyBuffered))
			Expect(ParsePolicy("buffered")).To(Equal(PolicyBuffered))
			Expect(ParsePolicy("per_line")).To(Equal(PolicyPerLine))
			Expect(ParsePolicy("Per-Line")).To(Equal(PolicyPerLine))
		})

		It("rejects unknown names", func() {
			_, err := ParsePolicy("chunked")
			Expect(err).To(MatchError(ContainSubstring("unknown framing policy")))
		})
	})
})

var _ = Describe("Payload", func() {
	It("unquotes JSON strings for display", func() {
		p := ParsePayload(`"quoted"`)
		Expect(p.IsStructured()).To(BeTrue())
		Expect(p.Text()).To(Equal("quoted"))
		Expect(p.Raw()).To(Equal(`"quoted"`))
	})

	It("keeps the raw form of numbers", func() {
		p := ParsePayload("42")
		Expect(p.Kind()).To(Equal(KindStructured))
		Expect(p.Value()).To(BeNumerically("==", 42))
		Expect(p.Text()).To(Equal("42"))
	})

	It("treats the empty string as text", func() {
		p := ParsePayload("")
		Expect(p.Kind()).To(Equal(KindText))
		Expect(p.Value()).To(Equal(""))
	})

	It("reports missing fields", func() {
		_, ok := ParsePayload(`{"a":1}`).StringField("a")
		Expect(ok).To(BeFalse())
		_, ok = TextPayload("x").Field("a")
		Expect(ok).To(BeFalse())
	})
})
