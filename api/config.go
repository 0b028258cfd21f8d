// Package api provides the mock chat backend: a scripted streaming chat
// endpoint, a tool listing and the conversations API.
package api

import "time"

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":3002")
	ListenAddr string

	// StepDelay is the pause before each scripted stream step that does not
	// set its own delay.
	StepDelay time.Duration

	// AllowOrigins is the CORS allow-origin list. Defaults to "*".
	AllowOrigins string
}
