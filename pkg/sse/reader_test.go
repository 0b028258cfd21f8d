package sse

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing/iotest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// chunkReader serves a fixed sequence of chunks, one per Read.
type chunkReader struct {
	chunks [][]byte
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(c.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, c.chunks[0])
	if n < len(c.chunks[0]) {
		c.chunks[0] = c.chunks[0][n:]
	} else {
		c.chunks = c.chunks[1:]
	}
	return n, nil
}

// readAll drains r and returns the records and the terminal error, if any.
func readAll(r *Reader) ([]Record, error) {
	var recs []Record
	for rec, err := range r.All() {
		if err != nil {
			return recs, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

const transcriptStream = "event: thinking\ndata: analyzing\n" +
	"event: content\ndata: Hello\n" +
	"event: content\ndata:  World\n" +
	"event: content\ndata: 你好\n" +
	"event: done\ndata: \n"

var transcriptRecords = []Record{
	{Type: "thinking", Payload: TextPayload("analyzing")},
	{Type: "content", Payload: TextPayload("Hello")},
	{Type: "content", Payload: TextPayload(" World")},
	{Type: "content", Payload: TextPayload("你好")},
	{Type: "done", Payload: TextPayload("")},
}

var _ = Describe("Reader", func() {
	Describe("Next", func() {
		It("reads records until io.EOF", func() {
			r := NewReader(strings.NewReader(transcriptStream))

			for _, want := range transcriptRecords {
				rec, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(rec).To(Equal(want))
			}

			_, err := r.Next()
			Expect(err).To(MatchError(io.EOF))

			By("staying at io.EOF")
			_, err = r.Next()
			Expect(err).To(MatchError(io.EOF))
		})

		It("reads an empty body as an empty stream", func() {
			_, err := NewReader(strings.NewReader("")).Next()
			Expect(err).To(MatchError(io.EOF))
		})
	})

	Describe("chunk boundary independence", func() {
		It("produces the same records for every two-way split", func() {
			raw := []byte(transcriptStream)
			for i := 0; i <= len(raw); i++ {
				src := &chunkReader{chunks: [][]byte{
					append([]byte(nil), raw[:i]...),
					append([]byte(nil), raw[i:]...),
				}}
				recs, err := readAll(NewReader(src))
				Expect(err).NotTo(HaveOccurred(), "split at %d", i)
				Expect(recs).To(Equal(transcriptRecords), "split at %d", i)
			}
		})

		It("produces the same records when read one byte at a time", func() {
			recs, err := readAll(NewReader(iotest.OneByteReader(strings.NewReader(transcriptStream))))
			Expect(err).NotTo(HaveOccurred())
			Expect(recs).To(Equal(transcriptRecords))
		})

		It("produces the same records with a tiny read buffer", func() {
			recs, err := readAll(NewReader(strings.NewReader(transcriptStream), WithReadSize(3)))
			Expect(err).NotTo(HaveOccurred())
			Expect(recs).To(Equal(transcriptRecords))
		})
	})

	Describe("options", func() {
		It("emits a record per data line with PolicyPerLine", func() {
			src := strings.NewReader("event: content\ndata: a\ndata: b\n")
			recs, err := readAll(NewReader(src, WithPolicy(PolicyPerLine)))
			Expect(err).NotTo(HaveOccurred())
			Expect(recs).To(Equal([]Record{
				{Type: "content", Payload: TextPayload("a")},
				{Type: "content", Payload: TextPayload("b")},
			}))
		})

		It("drops an unterminated final line by default", func() {
			recs, err := readAll(NewReader(strings.NewReader("event: content\ndata: tail")))
			Expect(err).NotTo(HaveOccurred())
			Expect(recs).To(BeEmpty())
		})

		It("keeps an unterminated final line when configured", func() {
			recs, err := readAll(NewReader(strings.NewReader("event: content\ndata: tail"), WithTrailingLine(true)))
			Expect(err).NotTo(HaveOccurred())
			Expect(recs).To(Equal([]Record{{Type: "content", Payload: TextPayload("tail")}}))
		})

		It("tees the raw bytes verbatim", func() {
			var dst bytes.Buffer
			src := iotest.HalfReader(strings.NewReader(transcriptStream))

			_, err := readAll(NewReader(src, WithTee(&dst)))
			Expect(err).NotTo(HaveOccurred())
			Expect(dst.String()).To(Equal(transcriptStream))
		})
	})

	Describe("failures", func() {
		It("returns completed records before a read error", func() {
			boom := errors.New("connection reset")
			src := io.MultiReader(strings.NewReader("event: content\ndata: x\n\n"), iotest.ErrReader(boom))

			recs, err := readAll(NewReader(src))
			Expect(recs).To(Equal([]Record{{Type: "content", Payload: TextPayload("x")}}))
			Expect(err).To(MatchError(boom))
		})

		It("returns a DecodeError when the body ends inside a sequence", func() {
			src := bytes.NewReader([]byte{'d', 'a', 't', 'a', ':', ' ', 'o', 'k', '\n', 0xe4, 0xbd})

			recs, err := readAll(NewReader(src))
			Expect(recs).To(Equal([]Record{{Type: DefaultEventType, Payload: TextPayload("ok")}}))
			Expect(errors.Is(err, ErrDecode)).To(BeTrue())
		})

		It("returns a tee write error", func() {
			_, err := readAll(NewReader(strings.NewReader("data: x\n"), WithTee(failingWriter{})))
			Expect(err).To(MatchError("write refused"))
		})
	})
})

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("write refused")
}
