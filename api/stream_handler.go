package api

import (
	"bufio"
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/llmcli/streamchat/pkg/conversation"
)

// ErrEmptyMessage is the error text for a chat request without a message.
const ErrEmptyMessage = "Message cannot be empty"

type chatRequest struct {
	Message string `json:"message"`
}

// handleChatStream streams the current script as an event stream. The
// message comes from the "message" query parameter, or from a JSON body
// on POST.
func (s *Server) handleChatStream(c *fiber.Ctx) error {
	message := chatMessage(c)
	if strings.TrimSpace(message) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(conversation.Fail(ErrEmptyMessage))
	}

	script := s.scripts.Current()
	frames := script.Render(message, s.config.StepDelay)

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	log := s.logger.With("script", script.Name, "frames", len(frames))
	log.Info("streaming reply", "message_len", len(message))

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		for i, f := range frames {
			if f.Delay > 0 {
				time.Sleep(f.Delay)
			}
			if err := f.WriteTo(w); err != nil {
				log.Warn("writing frame", "index", i, "error", err)
				return
			}
			// A failed flush means the client went away.
			if err := w.Flush(); err != nil {
				log.Debug("client disconnected", "index", i, "error", err)
				return
			}
		}
	}))

	return nil
}

func chatMessage(c *fiber.Ctx) string {
	if m := c.Query("message"); m != "" {
		return m
	}
	if c.Method() != fiber.MethodPost || len(c.Body()) == 0 {
		return ""
	}

	var req chatRequest
	if err := json.Unmarshal(c.Body(), &req); err == nil {
		return req.Message
	}
	return c.FormValue("message")
}
