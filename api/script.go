package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"

	"github.com/llmcli/streamchat/pkg/logger"
)

// messagePlaceholder is replaced by the user's message in step data.
const messagePlaceholder = "{{message}}"

// Step is one scripted stream record.
type Step struct {
	Event   string `toml:"event"`
	Data    string `toml:"data"`
	DelayMs int    `toml:"delay_ms"`
}

// Script is the reply the mock server streams for every message.
//
// Example file:
//
//	name = "weather"
//	fail_on = "explode"
//
//	[[steps]]
//	event = "thinking"
//	data = "Looking up the forecast"
//
//	[[steps]]
//	event = "content"
//	data = "You asked: {{message}}"
type Script struct {
	Name string `toml:"name"`

	// FailOn makes messages containing it end with an error record.
	FailOn string `toml:"fail_on"`

	Steps []Step `toml:"steps"`
}

// Frame is one rendered record ready to be written to the wire.
type Frame struct {
	Event string
	Data  string
	Delay time.Duration
}

// WriteTo writes the frame as "event: X\ndata: Y\n\n". Data spanning several
// lines is sent as a JSON string so the newlines survive the line framing,
// and so is data that is itself a JSON string literal, which clients would
// otherwise unquote.
func (f Frame) WriteTo(w *bufio.Writer) error {
	data := f.Data
	if needsQuoting(data) {
		quoted, err := json.Marshal(data)
		if err != nil {
			return err
		}
		data = string(quoted)
	}

	if data == "" {
		_, err := fmt.Fprintf(w, "event: %s\ndata:\n\n", f.Event)
		return err
	}
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", f.Event, data)
	return err
}

func needsQuoting(data string) bool {
	if strings.ContainsAny(data, "\r\n") {
		return true
	}
	trimmed := strings.TrimSpace(data)
	return strings.HasPrefix(trimmed, `"`) && json.Valid([]byte(trimmed))
}

// DefaultScript returns the built-in reply: a short reasoning phase, one tool
// round trip and an echo of the message.
func DefaultScript() *Script {
	return &Script{
		Name:   "default",
		FailOn: "/fail",
		Steps: []Step{
			{Event: "thinking", Data: "Reading the question"},
			{Event: "tool_call", Data: `{"name":"datetime","arguments":{}}`},
			{Event: "tool_result", Data: `{"name":"datetime","result":"ok"}`},
			{Event: "content", Data: `Hello! I received: "` + messagePlaceholder + `"`},
			{Event: "content", Data: " This is a simulated streaming reply."},
			{Event: "content", Data: " The mock server is working."},
		},
	}
}

// Validate reports whether the script can be streamed.
func (s *Script) Validate() error {
	if len(s.Steps) == 0 {
		return errors.New("script has no steps")
	}
	for i, step := range s.Steps {
		if strings.TrimSpace(step.Event) == "" {
			return fmt.Errorf("step %d has no event", i+1)
		}
		if strings.ContainsAny(step.Event, "\r\n") {
			return fmt.Errorf("step %d event contains a newline", i+1)
		}
		if step.DelayMs < 0 {
			return fmt.Errorf("step %d has a negative delay", i+1)
		}
	}
	return nil
}

// Render produces the frames streamed for message. Every reply ends with a
// done record; a message matching FailOn gets an error record first.
func (s *Script) Render(message string, defaultDelay time.Duration) []Frame {
	frames := make([]Frame, 0, len(s.Steps)+2)

	for _, step := range s.Steps {
		delay := defaultDelay
		if step.DelayMs > 0 {
			delay = time.Duration(step.DelayMs) * time.Millisecond
		}
		frames = append(frames, Frame{
			Event: step.Event,
			Data:  strings.ReplaceAll(step.Data, messagePlaceholder, message),
			Delay: delay,
		})
	}

	if s.FailOn != "" && strings.Contains(message, s.FailOn) {
		payload, _ := json.Marshal(map[string]string{"message": "scripted failure"})
		frames = append(frames, Frame{Event: "error", Data: string(payload), Delay: defaultDelay})
	}

	return append(frames, Frame{Event: "done", Delay: defaultDelay})
}

// LoadScript reads a TOML script file.
func LoadScript(path string) (*Script, error) {
	var s Script
	if _, err := toml.DecodeFile(path, &s); err != nil {
		return nil, fmt.Errorf("decoding script %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid script %s: %w", path, err)
	}
	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return &s, nil
}

// ScriptSource holds the script currently served and can reload it from
// disk.
type ScriptSource struct {
	mu     sync.RWMutex
	script *Script
	logger *slog.Logger
}

// NewScriptSource returns a source serving s, or DefaultScript when s is nil.
func NewScriptSource(s *Script, l *slog.Logger) *ScriptSource {
	if s == nil {
		s = DefaultScript()
	}
	if l == nil {
		l = logger.Nop()
	}
	return &ScriptSource{script: s, logger: l}
}

// Current returns the script in use.
func (s *ScriptSource) Current() *Script {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.script
}

// Set replaces the script in use.
func (s *ScriptSource) Set(script *Script) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = script
}

// Load replaces the script with the contents of path.
func (s *ScriptSource) Load(path string) error {
	script, err := LoadScript(path)
	if err != nil {
		return err
	}
	s.Set(script)
	s.logger.Info("script loaded", "path", path, "name", script.Name, "steps", len(script.Steps))
	return nil
}

// Watch reloads path whenever it is written or recreated, until ctx ends.
// An invalid edit is logged and the previous script stays in use. The
// directory is watched so editors that replace the file are picked up.
func (s *ScriptSource) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating script watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watching script dir: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := s.Load(path); err != nil {
				s.logger.Warn("script reload failed, keeping previous script", "path", path, "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("script watcher error: %w", err)
		}
	}
}
