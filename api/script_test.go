package api

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/llmcli/streamchat/pkg/logger"
)

const weatherScript = `
name = "weather"
fail_on = "explode"

[[steps]]
event = "thinking"
data = "Looking up the forecast"

[[steps]]
event = "content"
data = "You asked: {{message}}"
delay_ms = 5
`

var _ = Describe("Script", func() {
	Describe("Render", func() {
		It("substitutes the message and appends done", func() {
			frames := DefaultScript().Render("hi", 10*time.Millisecond)
			Expect(frames).To(HaveLen(7))
			Expect(frames[3].Data).To(Equal(`Hello! I received: "hi"`))
			Expect(frames[6].Event).To(Equal("done"))
			Expect(frames[6].Data).To(BeEmpty())
			Expect(frames[0].Delay).To(Equal(10 * time.Millisecond))
		})

		It("prefers a step's own delay", func() {
			s := &Script{Steps: []Step{{Event: "content", Data: "x", DelayMs: 25}}}
			frames := s.Render("", time.Millisecond)
			Expect(frames[0].Delay).To(Equal(25 * time.Millisecond))
		})
	})

	Describe("Frame.WriteTo", func() {
		write := func(f Frame) string {
			var buf bytes.Buffer
			w := bufio.NewWriter(&buf)
			Expect(f.WriteTo(w)).To(Succeed())
			Expect(w.Flush()).To(Succeed())
			return buf.String()
		}

		It("writes event and data lines followed by a blank line", func() {
			Expect(write(Frame{Event: "content", Data: "Hello"})).To(Equal("event: content\ndata: Hello\n\n"))
		})

		It("writes an empty data line for empty data", func() {
			Expect(write(Frame{Event: "done"})).To(Equal("event: done\ndata:\n\n"))
		})

		It("quotes data that is a JSON string literal", func() {
			Expect(write(Frame{Event: "content", Data: `"quoted"`})).To(Equal("event: content\ndata: \"\\\"quoted\\\"\"\n\n"))
		})

		It("leaves JSON objects and plain text unquoted", func() {
			Expect(write(Frame{Event: "tool_call", Data: `{"name":"datetime"}`})).To(Equal("event: tool_call\ndata: {\"name\":\"datetime\"}\n\n"))
			Expect(write(Frame{Event: "content", Data: `say "hi"`})).To(Equal("event: content\ndata: say \"hi\"\n\n"))
		})

		It("quotes data that spans lines", func() {
			Expect(write(Frame{Event: "content", Data: "a\nb"})).To(Equal("event: content\ndata: \"a\\nb\"\n\n"))
		})
	})

	Describe("Validate", func() {
		It("accepts the default script", func() {
			Expect(DefaultScript().Validate()).To(Succeed())
		})

		It("rejects a script without steps", func() {
			Expect((&Script{}).Validate()).To(MatchError(ContainSubstring("no steps")))
		})

		It("rejects a step without an event", func() {
			s := &Script{Steps: []Step{{Data: "x"}}}
			Expect(s.Validate()).To(MatchError(ContainSubstring("step 1 has no event")))
		})

		It("rejects negative delays", func() {
			s := &Script{Steps: []Step{{Event: "content", DelayMs: -1}}}
			Expect(s.Validate()).To(HaveOccurred())
		})
	})

	Describe("LoadScript", func() {
		var dir string

		BeforeEach(func() {
			dir = GinkgoT().TempDir()
		})

		It("decodes a TOML script", func() {
			path := filepath.Join(dir, "weather.toml")
			Expect(os.WriteFile(path, []byte(weatherScript), 0o600)).To(Succeed())

			s, err := LoadScript(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Name).To(Equal("weather"))
			Expect(s.FailOn).To(Equal("explode"))
			Expect(s.Steps).To(HaveLen(2))
			Expect(s.Steps[1].DelayMs).To(Equal(5))
		})

		It("names an unnamed script after its file", func() {
			path := filepath.Join(dir, "quick.toml")
			Expect(os.WriteFile(path, []byte("[[steps]]\nevent = \"content\"\ndata = \"hi\"\n"), 0o600)).To(Succeed())

			s, err := LoadScript(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Name).To(Equal("quick"))
		})

		It("fails on malformed TOML", func() {
			path := filepath.Join(dir, "bad.toml")
			Expect(os.WriteFile(path, []byte("[[steps"), 0o600)).To(Succeed())

			_, err := LoadScript(path)
			Expect(err).To(MatchError(ContainSubstring("decoding script")))
		})

		It("fails on an invalid script", func() {
			path := filepath.Join(dir, "empty.toml")
			Expect(os.WriteFile(path, []byte("name = \"empty\"\n"), 0o600)).To(Succeed())

			_, err := LoadScript(path)
			Expect(err).To(MatchError(ContainSubstring("invalid script")))
		})
	})

	Describe("ScriptSource", func() {
		It("serves the default script when given none", func() {
			src := NewScriptSource(nil, nil)
			Expect(src.Current().Name).To(Equal("default"))
		})

		It("reloads the script when the file changes", func() {
			dir := GinkgoT().TempDir()
			path := filepath.Join(dir, "live.toml")
			Expect(os.WriteFile(path, []byte(weatherScript), 0o600)).To(Succeed())

			src := NewScriptSource(nil, logger.Nop())
			Expect(src.Load(path)).To(Succeed())
			Expect(src.Current().Name).To(Equal("weather"))

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() {
				defer GinkgoRecover()
				done <- src.Watch(ctx, path)
			}()
			DeferCleanup(func() {
				cancel()
				Eventually(done).Should(Receive(BeNil()))
			})

			updated := "name = \"updated\"\n[[steps]]\nevent = \"content\"\ndata = \"new\"\n"
			Eventually(func() string {
				// Rewrite until the watcher has been registered and sees it.
				_ = os.WriteFile(path, []byte(updated), 0o600)
				return src.Current().Name
			}).WithTimeout(5 * time.Second).WithPolling(50 * time.Millisecond).Should(Equal("updated"))
		})

		It("keeps the previous script when a reload is invalid", func() {
			dir := GinkgoT().TempDir()
			path := filepath.Join(dir, "live.toml")
			Expect(os.WriteFile(path, []byte(weatherScript), 0o600)).To(Succeed())

			src := NewScriptSource(nil, logger.Nop())
			Expect(src.Load(path)).To(Succeed())

			Expect(os.WriteFile(path, []byte("[[steps"), 0o600)).To(Succeed())
			Expect(src.Load(path)).NotTo(Succeed())
			Expect(src.Current().Name).To(Equal("weather"))
		})
	})
})
