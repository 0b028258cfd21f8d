package api

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/llmcli/streamchat/pkg/conversation"
	"github.com/llmcli/streamchat/pkg/conversation/inmemory"
	"github.com/llmcli/streamchat/pkg/logger"
)

var _ = Describe("Conversation handlers", func() {
	var server *Server

	BeforeEach(func() {
		server = newTestServer()
	})

	call := func(method, path string, params url.Values) (int, conversation.Envelope) {
		target := path
		if len(params) > 0 {
			target += "?" + params.Encode()
		}
		req, err := http.NewRequest(method, target, nil)
		Expect(err).NotTo(HaveOccurred())

		resp, err := server.app.Test(req)
		Expect(err).NotTo(HaveOccurred())

		var env conversation.Envelope
		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(json.Unmarshal(body, &env)).To(Succeed())
		return resp.StatusCode, env
	}

	create := func(title string) conversation.Conversation {
		status, env := call(http.MethodPost, "/api/conversations", url.Values{"title": {title}})
		Expect(status).To(Equal(fiber.StatusOK))
		Expect(env.Success).To(BeTrue())

		var c conversation.Conversation
		Expect(json.Unmarshal(env.Data, &c)).To(Succeed())
		return c
	}

	It("creates and lists conversations", func() {
		c := create("Trip planning")
		Expect(c.ID).To(HavePrefix("conv_"))
		Expect(c.Title).To(Equal("Trip planning"))

		status, env := call(http.MethodGet, "/api/conversations", nil)
		Expect(status).To(Equal(fiber.StatusOK))

		var list []conversation.Conversation
		Expect(json.Unmarshal(env.Data, &list)).To(Succeed())
		Expect(list).To(HaveLen(1))
		Expect(list[0].ID).To(Equal(c.ID))
	})

	It("serializes fields in camelCase", func() {
		create("x")
		_, env := call(http.MethodGet, "/api/conversations", nil)
		Expect(string(env.Data)).To(ContainSubstring(`"messageCount":0`))
		Expect(string(env.Data)).To(ContainSubstring(`"createTime":`))
	})

	It("patches only the given fields", func() {
		c := create("old")

		status, env := call(http.MethodPatch, "/api/conversations", url.Values{
			"id":           {c.ID},
			"preview":      {"latest words"},
			"messageCount": {"4"},
		})
		Expect(status).To(Equal(fiber.StatusOK))

		var updated conversation.Conversation
		Expect(json.Unmarshal(env.Data, &updated)).To(Succeed())
		Expect(updated.Title).To(Equal("old"))
		Expect(updated.Preview).To(Equal("latest words"))
		Expect(updated.MessageCount).To(Equal(4))
	})

	It("rejects a patch without fields", func() {
		c := create("old")
		status, env := call(http.MethodPatch, "/api/conversations", url.Values{"id": {c.ID}})
		Expect(status).To(Equal(fiber.StatusBadRequest))
		Expect(env.Success).To(BeFalse())
	})

	It("rejects a malformed message count", func() {
		c := create("old")
		status, _ := call(http.MethodPatch, "/api/conversations", url.Values{"id": {c.ID}, "messageCount": {"many"}})
		Expect(status).To(Equal(fiber.StatusBadRequest))
	})

	It("returns 404 when patching an unknown id", func() {
		status, env := call(http.MethodPatch, "/api/conversations", url.Values{"id": {"conv_nope"}, "title": {"x"}})
		Expect(status).To(Equal(fiber.StatusNotFound))
		Expect(env.Message).To(ContainSubstring("conv_nope"))
	})

	It("deletes conversations and reports unknown ids as unsuccessful", func() {
		c := create("doomed")

		status, env := call(http.MethodDelete, "/api/conversations", url.Values{"id": {c.ID}})
		Expect(status).To(Equal(fiber.StatusOK))
		var result conversation.DeleteResult
		Expect(json.Unmarshal(env.Data, &result)).To(Succeed())
		Expect(result.Success).To(BeTrue())

		status, env = call(http.MethodDelete, "/api/conversations", url.Values{"id": {c.ID}})
		Expect(status).To(Equal(fiber.StatusOK))
		Expect(json.Unmarshal(env.Data, &result)).To(Succeed())
		Expect(result.Success).To(BeFalse())
	})

	It("requires an id to delete", func() {
		status, _ := call(http.MethodDelete, "/api/conversations", nil)
		Expect(status).To(Equal(fiber.StatusBadRequest))
	})

	It("appends and lists messages", func() {
		c := create("chat")

		status, env := call(http.MethodPost, "/api/conversations/messages", url.Values{
			"conversationId": {c.ID},
			"role":           {"user"},
			"content":        {"hello"},
		})
		Expect(status).To(Equal(fiber.StatusOK))
		var msg conversation.Message
		Expect(json.Unmarshal(env.Data, &msg)).To(Succeed())
		Expect(msg.ConversationID).To(Equal(c.ID))

		status, env = call(http.MethodGet, "/api/conversations/messages", url.Values{"conversationId": {c.ID}})
		Expect(status).To(Equal(fiber.StatusOK))
		var page conversation.MessagesPage
		Expect(json.Unmarshal(env.Data, &page)).To(Succeed())
		Expect(page.ConversationID).To(Equal(c.ID))
		Expect(page.Messages).To(HaveLen(1))
		Expect(page.Messages[0].Content).To(Equal("hello"))
	})

	It("returns 404 for messages of an unknown conversation", func() {
		status, env := call(http.MethodGet, "/api/conversations/messages", url.Values{"conversationId": {"conv_nope"}})
		Expect(status).To(Equal(fiber.StatusNotFound))
		Expect(env.Success).To(BeFalse())
	})

	It("requires a role to append", func() {
		c := create("chat")
		status, _ := call(http.MethodPost, "/api/conversations/messages", url.Values{"conversationId": {c.ID}})
		Expect(status).To(Equal(fiber.StatusBadRequest))
	})
})

var _ = Describe("Conversation handlers over a kept-alive connection", func() {
	var (
		store   *inmemory.Driver
		server  *Server
		client  *http.Client
		baseURL string
	)

	BeforeEach(func() {
		store = inmemory.NewDriver()
		server = NewServer(Config{}, store, nil, logger.Nop())

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		baseURL = "http://" + ln.Addr().String()

		go func() {
			defer GinkgoRecover()
			_ = server.app.Listener(ln)
		}()

		// one connection, so every request reuses the same fasthttp buffers
		client = &http.Client{Transport: &http.Transport{MaxConnsPerHost: 1}}
	})

	AfterEach(func() {
		client.CloseIdleConnections()
		Expect(server.Shutdown()).To(Succeed())
	})

	post := func(path string, params url.Values) conversation.Envelope {
		resp, err := client.Post(baseURL+path+"?"+params.Encode(), "text/plain", nil)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		var env conversation.Envelope
		Expect(json.NewDecoder(resp.Body).Decode(&env)).To(Succeed())
		Expect(env.Success).To(BeTrue())
		return env
	}

	It("keeps stored titles and messages intact across later requests", func() {
		env := post("/api/conversations", url.Values{"title": {"Trip planning"}})
		var c conversation.Conversation
		Expect(json.Unmarshal(env.Data, &c)).To(Succeed())

		post("/api/conversations/messages", url.Values{
			"conversationId": {c.ID},
			"role":           {"user"},
			"content":        {"hello there"},
		})

		for range 20 {
			post("/api/conversations", url.Values{"title": {strings.Repeat("X", len("Trip planning"))}})
		}

		ctx := context.Background()
		got, err := store.Get(ctx, c.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Title).To(Equal("Trip planning"))

		msgs, err := store.Messages(ctx, c.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs).To(HaveLen(1))
		Expect(msgs[0].Role).To(Equal("user"))
		Expect(msgs[0].Content).To(Equal("hello there"))
	})
})
