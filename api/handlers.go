package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Timestamp int64  `json:"timestamp"`
}

// Tool describes a tool the mock assistant claims to have.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Tools is the fixed tool list served by the tools endpoint.
var Tools = []Tool{
	{Name: "bash", Description: "Run a shell command"},
	{Name: "calculator", Description: "Evaluate an arithmetic expression"},
	{Name: "datetime", Description: "Report the current date and time"},
	{Name: "read_file", Description: "Read a file from the workspace"},
	{Name: "skill", Description: "Invoke a named skill"},
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:    "ok",
		Version:   Version,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (s *Server) handleTools(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"tools": Tools})
}
