package api

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/llmcli/streamchat/pkg/sse"
)

func readRecords(body io.Reader) []sse.Record {
	var out []sse.Record
	r := sse.NewReader(body)
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		Expect(err).NotTo(HaveOccurred())
		out = append(out, rec)
	}
}

func eventTypes(recs []sse.Record) []string {
	types := make([]string, 0, len(recs))
	for _, r := range recs {
		types = append(types, r.Type)
	}
	return types
}

var _ = Describe("Chat stream handler", func() {
	var server *Server

	BeforeEach(func() {
		server = newTestServer()
	})

	It("streams the default script for a GET message", func() {
		req, err := http.NewRequest(http.MethodGet, "/api/chat/stream?message="+url.QueryEscape("hi there"), nil)
		Expect(err).NotTo(HaveOccurred())

		resp, err := server.app.Test(req)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
		Expect(resp.Header.Get("Content-Type")).To(HavePrefix("text/event-stream"))
		Expect(resp.Header.Get("Cache-Control")).To(Equal("no-cache"))
		Expect(resp.Header.Get("X-Accel-Buffering")).To(Equal("no"))

		recs := readRecords(resp.Body)
		Expect(eventTypes(recs)).To(Equal([]string{
			"thinking", "tool_call", "tool_result", "content", "content", "content", "done",
		}))
		Expect(recs[1].Payload.IsStructured()).To(BeTrue())
		Expect(recs[3].Payload.Text()).To(Equal(`Hello! I received: "hi there"`))
		Expect(recs[4].Payload.Text()).To(Equal(" This is a simulated streaming reply."))
		Expect(recs[6].Payload.Raw()).To(BeEmpty())
	})

	It("reads the message from a JSON body on POST", func() {
		req, err := http.NewRequest(http.MethodPost, "/api/chat/stream", strings.NewReader(`{"message":"posted"}`))
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("Content-Type", "application/json")

		resp, err := server.app.Test(req)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

		recs := readRecords(resp.Body)
		Expect(recs[3].Payload.Text()).To(ContainSubstring(`"posted"`))
	})

	It("rejects an empty message", func() {
		req, err := http.NewRequest(http.MethodGet, "/api/chat/stream?message=%20%20", nil)
		Expect(err).NotTo(HaveOccurred())

		resp, err := server.app.Test(req)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))

		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(body)).To(ContainSubstring(ErrEmptyMessage))
	})

	It("ends with an error record when the message trips the failure trigger", func() {
		req, err := http.NewRequest(http.MethodGet, "/api/chat/stream?message="+url.QueryEscape("please /fail"), nil)
		Expect(err).NotTo(HaveOccurred())

		resp, err := server.app.Test(req)
		Expect(err).NotTo(HaveOccurred())

		recs := readRecords(resp.Body)
		Expect(recs).To(HaveLen(8))
		Expect(recs[6].Type).To(Equal("error"))
		msg, ok := recs[6].Payload.StringField("message")
		Expect(ok).To(BeTrue())
		Expect(msg).To(Equal("scripted failure"))
		Expect(recs[7].Type).To(Equal("done"))
	})

	It("keeps newlines in the message intact", func() {
		req, err := http.NewRequest(http.MethodGet, "/api/chat/stream?message="+url.QueryEscape("line one\nline two"), nil)
		Expect(err).NotTo(HaveOccurred())

		resp, err := server.app.Test(req)
		Expect(err).NotTo(HaveOccurred())

		recs := readRecords(resp.Body)
		Expect(recs[3].Payload.Text()).To(Equal("Hello! I received: \"line one\nline two\""))
	})

	It("serves a replaced script", func() {
		server.scripts.Set(&Script{
			Name:  "echo",
			Steps: []Step{{Event: "content", Data: "{{message}}"}},
		})

		req, err := http.NewRequest(http.MethodGet, "/api/chat/stream?message=ping", nil)
		Expect(err).NotTo(HaveOccurred())

		resp, err := server.app.Test(req)
		Expect(err).NotTo(HaveOccurred())

		recs := readRecords(resp.Body)
		Expect(eventTypes(recs)).To(Equal([]string{"content", "done"}))
		Expect(recs[0].Payload.Text()).To(Equal("ping"))
	})
})
