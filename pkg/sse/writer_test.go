package sse

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Writer", func() {
	var (
		buf *bytes.Buffer
		w   *Writer
	)

	BeforeEach(func() {
		buf = &bytes.Buffer{}
		w = NewWriter(buf)
	})

	It("writes a data frame with the event delimiter", func() {
		Expect(w.WriteData(`{"x":1}`)).To(Succeed())
		Expect(buf.String()).To(Equal("data: {\"x\":1}\n\n"))
	})

	It("splits multi-line payloads across data lines", func() {
		Expect(w.WriteData("one\ntwo")).To(Succeed())
		Expect(buf.String()).To(Equal("data: one\ndata: two\n\n"))
	})

	It("writes comments", func() {
		Expect(w.WriteComment("keep-alive")).To(Succeed())
		Expect(buf.String()).To(Equal(": keep-alive\n\n"))
	})

	It("writes the termination sentinel", func() {
		Expect(w.WriteDone()).To(Succeed())
		Expect(buf.String()).To(Equal("data: [DONE]\n\n"))
	})

	It("round-trips through the framer and classifier", func() {
		Expect(w.WriteData(`{"x":1}`)).To(Succeed())
		Expect(w.WriteDone()).To(Succeed())

		f := &Framer{}
		var kinds []FrameKind
		var payloads []string
		for _, line := range f.Feed(buf.Bytes()) {
			fr := Classify(line)
			kinds = append(kinds, fr.Kind)
			if fr.Kind == FrameData {
				payloads = append(payloads, fr.Payload)
			}
		}

		Expect(kinds).To(Equal([]FrameKind{FrameData, FrameBlank, FrameTerminator, FrameBlank}))
		Expect(payloads).To(Equal([]string{`{"x":1}`}))
	})
})
