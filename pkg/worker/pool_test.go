package worker

import (
	"bytes"
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/llmcli/streamchat/pkg/conversation"
	"github.com/llmcli/streamchat/pkg/conversation/inmemory"
	"github.com/llmcli/streamchat/pkg/eventstream"
	"github.com/llmcli/streamchat/pkg/logger"
	"github.com/llmcli/streamchat/pkg/transcript"
	testutils "github.com/llmcli/streamchat/pkg/utils/test"
)

// replyFailingStore stores user messages but rejects assistant replies.
type replyFailingStore struct {
	*inmemory.Driver
}

func (s replyFailingStore) AppendMessage(ctx context.Context, conversationID, role, content string) (*conversation.Message, error) {
	if role == string(transcript.RoleAssistant) {
		return nil, errors.New("disk full")
	}
	return s.Driver.AppendMessage(ctx, conversationID, role, content)
}

func testJob(convID, question, answer string) Job {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return Job{
		ConversationID: convID,
		User:           transcript.NewMessage(transcript.RoleUser, question),
		Assistant:      transcript.NewMessage(transcript.RoleAssistant, answer),
		Phase:          transcript.PhaseDone,
		StartedAt:      start,
		CompletedAt:    start.Add(1500 * time.Millisecond),
	}
}

var _ = Describe("Worker Pool", func() {
	var (
		wp        *Pool
		store     *inmemory.Driver
		publisher *testutils.MockPublisher
		ctx       context.Context
	)

	// Callers should "wp.Close()" to drain enqueued jobs before asserting state.
	BeforeEach(func() {
		ctx = context.Background()
		store = inmemory.NewDriver()
		publisher = testutils.NewMockPublisher()

		var err error
		wp, err = NewPool(&Config{
			Store:     store,
			Publisher: publisher,
			Source:    eventstream.EventSource{Client: "streamchat", APITarget: "http://localhost:3002"},
			Logger:    logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		wp.Close()
	})

	Describe("Enqueue", func() {
		It("returns true when the queue has capacity", func() {
			Expect(wp.Enqueue(testJob("", "hello", "hi"))).To(BeTrue())
		})

		It("returns false when the queue is full", func() {
			full := &Pool{queue: make(chan Job), logger: logger.Nop()}
			Expect(full.Enqueue(testJob("", "hello", "hi"))).To(BeFalse())
		})
	})

	Describe("recording a turn whose reply cannot be stored", func() {
		It("keeps the user message and logs the partial turn", func() {
			var logs bytes.Buffer
			failing := replyFailingStore{Driver: inmemory.NewDriver()}
			conv, err := failing.Create(ctx, "")
			Expect(err).NotTo(HaveOccurred())

			partial, err := NewPool(&Config{
				Store:     failing,
				Publisher: testutils.NewMockPublisher(),
				Logger:    logger.New(logger.WithJSON(true), logger.WithWriter(&logs)),
			})
			Expect(err).NotTo(HaveOccurred())

			partial.Enqueue(testJob(conv.ID, "question", "answer"))
			partial.Close()

			msgs, err := failing.Messages(ctx, conv.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(HaveLen(1))
			Expect(msgs[0].Role).To(Equal("user"))

			got, err := failing.Get(ctx, conv.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Preview).To(BeEmpty())

			Expect(logs.String()).To(ContainSubstring("turn stored partially"))
			Expect(logs.String()).To(ContainSubstring(conv.ID))
			Expect(logs.String()).To(ContainSubstring("disk full"))
		})
	})

	Describe("recording a turn", func() {
		var conv *conversation.Conversation

		BeforeEach(func() {
			var err error
			conv, err = store.Create(ctx, "")
			Expect(err).NotTo(HaveOccurred())
		})

		It("appends both messages in order", func() {
			wp.Enqueue(testJob(conv.ID, "What is 2+2?", "4"))
			wp.Close()

			msgs, err := store.Messages(ctx, conv.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(HaveLen(2))
			Expect(msgs[0].Role).To(Equal("user"))
			Expect(msgs[0].Content).To(Equal("What is 2+2?"))
			Expect(msgs[1].Role).To(Equal("assistant"))
			Expect(msgs[1].Content).To(Equal("4"))
		})

		It("titles the conversation after the first question and sets the preview", func() {
			wp.Enqueue(testJob(conv.ID, "What is the weather like tomorrow in Lisbon?", "Sunny with a light breeze all day long."))
			wp.Close()

			got, err := store.Get(ctx, conv.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Title).To(Equal(conversation.TitleFor("What is the weather like tomorrow in Lisbon?")))
			Expect(got.Preview).To(Equal(conversation.PreviewFor("Sunny with a light breeze all day long.")))
			Expect(got.MessageCount).To(Equal(2))
		})

		It("keeps the title from the first turn", func() {
			wp.Enqueue(testJob(conv.ID, "first question", "first answer"))
			wp.Enqueue(testJob(conv.ID, "second question", "second answer"))
			wp.Close()

			got, err := store.Get(ctx, conv.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Title).To(Equal("first question"))
			Expect(got.Preview).To(Equal("second answer"))
			Expect(got.MessageCount).To(Equal(4))
		})

		It("keeps an explicit title", func() {
			titled, err := store.Create(ctx, "Named")
			Expect(err).NotTo(HaveOccurred())

			wp.Enqueue(testJob(titled.ID, "question", "answer"))
			wp.Close()

			got, err := store.Get(ctx, titled.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Title).To(Equal("Named"))
		})

		It("publishes a turn event", func() {
			wp.Enqueue(testJob(conv.ID, "hello", "hi"))
			wp.Close()

			events := publisher.Events()
			Expect(events).To(HaveLen(1))
			ev := events[0]
			Expect(ev.SchemaVersion).To(Equal(eventstream.SchemaVersionV1))
			Expect(ev.EventType).To(Equal(eventstream.EventTypeTurnCompleted))
			Expect(ev.EventID).To(HavePrefix("evt_"))
			Expect(ev.Source.Client).To(Equal("streamchat"))
			Expect(ev.Conversation.ID).To(Equal(conv.ID))
			Expect(ev.Conversation.Title).To(Equal("hello"))
			Expect(ev.Timing.DurationMs).To(Equal(int64(1500)))
			Expect(ev.Turn.Phase).To(Equal("done"))
			Expect(ev.Turn.Assistant.Content).To(Equal("hi"))
		})

		It("carries the failure of a failed turn", func() {
			job := testJob(conv.ID, "hello", "partial"+transcript.ErrorNoticePrefix+"boom")
			job.Phase = transcript.PhaseFailed
			job.Err = errors.New("boom")
			wp.Enqueue(job)
			wp.Close()

			events := publisher.Events()
			Expect(events).To(HaveLen(1))
			Expect(events[0].Turn.Phase).To(Equal("failed"))
			Expect(events[0].Turn.Error).To(Equal("boom"))
		})
	})

	It("still publishes when the conversation is unknown", func() {
		wp.Enqueue(testJob("conv_missing", "hello", "hi"))
		wp.Close()

		events := publisher.Events()
		Expect(events).To(HaveLen(1))
		Expect(events[0].Conversation.Title).To(BeEmpty())
	})

	It("only publishes when no conversation is given", func() {
		wp.Enqueue(testJob("", "hello", "hi"))
		wp.Close()

		list, err := store.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(list).To(BeEmpty())
		Expect(publisher.Events()).To(HaveLen(1))
	})

	It("survives publisher failures", func() {
		publisher.Err = errors.New("broker down")
		conv, err := store.Create(ctx, "")
		Expect(err).NotTo(HaveOccurred())

		wp.Enqueue(testJob(conv.ID, "hello", "hi"))
		wp.Close()

		msgs, err := store.Messages(ctx, conv.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs).To(HaveLen(2))
	})

	It("can be closed twice", func() {
		wp.Close()
		wp.Close()
	})
})
