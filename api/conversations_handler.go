package api

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/llmcli/streamchat/pkg/conversation"
)

// param reads a request parameter from the query string, falling back to a
// form-encoded body.
func param(c *fiber.Ctx, name string) string {
	if v := c.Query(name); v != "" {
		return v
	}
	return c.FormValue(name)
}

func (s *Server) ok(c *fiber.Ctx, data any) error {
	env, err := conversation.OK(data)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(env)
}

// fail maps a store error onto a status code and a failed envelope.
func (s *Server) fail(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, conversation.NotFoundError{}):
		status = fiber.StatusNotFound
	case errors.Is(err, conversation.ErrNoUpdate):
		status = fiber.StatusBadRequest
	default:
		s.logger.Error("conversation store error", "path", c.Path(), "error", err)
	}
	return c.Status(status).JSON(conversation.Fail(err.Error()))
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(conversation.Fail(msg))
}

func (s *Server) handleListConversations(c *fiber.Ctx) error {
	list, err := s.store.List(c.Context())
	if err != nil {
		return s.fail(c, err)
	}
	return s.ok(c, list)
}

func (s *Server) handleCreateConversation(c *fiber.Ctx) error {
	conv, err := s.store.Create(c.Context(), param(c, "title"))
	if err != nil {
		return s.fail(c, err)
	}
	return s.ok(c, conv)
}

func (s *Server) handleUpdateConversation(c *fiber.Ctx) error {
	id := param(c, "id")
	if id == "" {
		return badRequest(c, "id parameter required")
	}

	var u conversation.Update
	if c.Context().QueryArgs().Has("title") {
		title := c.Query("title")
		u.Title = &title
	}
	if c.Context().QueryArgs().Has("preview") {
		preview := c.Query("preview")
		u.Preview = &preview
	}
	if raw := c.Query("messageCount"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return badRequest(c, "messageCount must be a non-negative integer")
		}
		u.MessageCount = &n
	}

	conv, err := s.store.Update(c.Context(), id, u)
	if err != nil {
		return s.fail(c, err)
	}
	return s.ok(c, conv)
}

// handleDeleteConversation reports an unknown id as {"success": false}
// inside a successful envelope.
func (s *Server) handleDeleteConversation(c *fiber.Ctx) error {
	id := param(c, "id")
	if id == "" {
		return badRequest(c, "id parameter required")
	}

	err := s.store.Delete(c.Context(), id)
	switch {
	case errors.Is(err, conversation.NotFoundError{}):
		return s.ok(c, conversation.DeleteResult{Success: false})
	case err != nil:
		return s.fail(c, err)
	}
	return s.ok(c, conversation.DeleteResult{Success: true})
}

func (s *Server) handleListMessages(c *fiber.Ctx) error {
	id := param(c, "conversationId")
	if id == "" {
		return badRequest(c, "conversationId parameter required")
	}

	msgs, err := s.store.Messages(c.Context(), id)
	if err != nil {
		return s.fail(c, err)
	}
	return s.ok(c, conversation.MessagesPage{ConversationID: id, Messages: msgs})
}

func (s *Server) handleAppendMessage(c *fiber.Ctx) error {
	id := param(c, "conversationId")
	role := param(c, "role")
	content := param(c, "content")
	if id == "" || role == "" {
		return badRequest(c, "conversationId and role parameters required")
	}

	msg, err := s.store.AppendMessage(c.Context(), id, role, content)
	if err != nil {
		return s.fail(c, err)
	}
	return s.ok(c, msg)
}
