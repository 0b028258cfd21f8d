package testutils

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/llmcli/streamchat/pkg/conversation"
)

// ConversationStoreBehavior registers the tests every conversation.Store
// driver must pass. newStore is called before each test with a clock the
// store must use for ids and timestamps.
func ConversationStoreBehavior(newStore func(now func() time.Time) conversation.Store) {
	var (
		store conversation.Store
		ctx   context.Context
	)

	BeforeEach(func() {
		store = nil
		ctx = context.Background()
		clock := NewStepClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
		store = newStore(clock.Now)
	})

	AfterEach(func() {
		if store != nil {
			Expect(store.Close()).To(Succeed())
		}
	})

	Describe("Create", func() {
		It("stores a conversation with a generated id", func() {
			c, err := store.Create(ctx, "Weather")
			Expect(err).NotTo(HaveOccurred())
			Expect(c.ID).To(HavePrefix("conv_"))
			Expect(c.Title).To(Equal("Weather"))
			Expect(c.MessageCount).To(BeZero())
			Expect(c.CreateTime).To(Equal(c.UpdateTime))

			got, err := store.Get(ctx, c.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(c))
		})

		It("uses the default title when none is given", func() {
			c, err := store.Create(ctx, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(c.Title).To(Equal(conversation.DefaultTitle))
		})
	})

	Describe("List", func() {
		It("returns an empty list for an empty store", func() {
			list, err := store.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(BeEmpty())
		})

		It("orders by most recent update", func() {
			first, _ := store.Create(ctx, "first")
			second, _ := store.Create(ctx, "second")

			list, err := store.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(HaveLen(2))
			Expect(list[0].ID).To(Equal(second.ID))

			_, err = store.AppendMessage(ctx, first.ID, "user", "bump")
			Expect(err).NotTo(HaveOccurred())

			list, err = store.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(list[0].ID).To(Equal(first.ID))
		})
	})

	Describe("Update", func() {
		It("changes only the given fields", func() {
			c, _ := store.Create(ctx, "old")
			title := "new"

			updated, err := store.Update(ctx, c.ID, conversation.Update{Title: &title})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Title).To(Equal("new"))
			Expect(updated.Preview).To(BeEmpty())
			Expect(updated.UpdateTime).To(BeNumerically(">", c.UpdateTime))

			preview := "hello"
			updated, err = store.Update(ctx, c.ID, conversation.Update{Preview: &preview})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Title).To(Equal("new"))
			Expect(updated.Preview).To(Equal("hello"))
		})

		It("rejects an empty update", func() {
			c, _ := store.Create(ctx, "x")
			_, err := store.Update(ctx, c.ID, conversation.Update{})
			Expect(err).To(HaveOccurred())
		})

		It("reports unknown ids", func() {
			title := "x"
			_, err := store.Update(ctx, "conv_missing", conversation.Update{Title: &title})
			Expect(errors.Is(err, conversation.NotFoundError{})).To(BeTrue())
		})
	})

	Describe("Delete", func() {
		It("removes the conversation and its messages", func() {
			c, _ := store.Create(ctx, "doomed")
			_, err := store.AppendMessage(ctx, c.ID, "user", "hi")
			Expect(err).NotTo(HaveOccurred())

			Expect(store.Delete(ctx, c.ID)).To(Succeed())

			_, err = store.Get(ctx, c.ID)
			Expect(errors.Is(err, conversation.NotFoundError{})).To(BeTrue())
			_, err = store.Messages(ctx, c.ID)
			Expect(errors.Is(err, conversation.NotFoundError{})).To(BeTrue())
		})

		It("reports unknown ids", func() {
			err := store.Delete(ctx, "conv_missing")
			Expect(errors.Is(err, conversation.NotFoundError{})).To(BeTrue())
		})
	})

	Describe("AppendMessage", func() {
		It("keeps messages in order and counts them", func() {
			c, _ := store.Create(ctx, "chat")

			user, err := store.AppendMessage(ctx, c.ID, "user", "question")
			Expect(err).NotTo(HaveOccurred())
			Expect(user.ID).To(HavePrefix("msg_"))
			_, err = store.AppendMessage(ctx, c.ID, "assistant", "answer")
			Expect(err).NotTo(HaveOccurred())

			msgs, err := store.Messages(ctx, c.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(HaveLen(2))
			Expect(msgs[0].Role).To(Equal("user"))
			Expect(msgs[0].Content).To(Equal("question"))
			Expect(msgs[1].Role).To(Equal("assistant"))
			Expect(msgs[1].ConversationID).To(Equal(c.ID))

			got, err := store.Get(ctx, c.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.MessageCount).To(Equal(2))
			Expect(got.UpdateTime).To(Equal(msgs[1].Timestamp))
		})

		It("reports unknown conversations", func() {
			_, err := store.AppendMessage(ctx, "conv_missing", "user", "hi")
			Expect(errors.Is(err, conversation.NotFoundError{})).To(BeTrue())
		})

		It("returns an empty list for a conversation without messages", func() {
			c, _ := store.Create(ctx, "quiet")
			msgs, err := store.Messages(ctx, c.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(BeEmpty())
		})
	})
}
