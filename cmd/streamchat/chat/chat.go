// Package chatcmder provides the chat command: an interactive session that
// streams replies from a chat backend into a local transcript.
package chatcmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/llmcli/streamchat/pkg/chat"
	"github.com/llmcli/streamchat/pkg/cliui"
	"github.com/llmcli/streamchat/pkg/config"
	"github.com/llmcli/streamchat/pkg/conversation"
	"github.com/llmcli/streamchat/pkg/conversation/httpstore"
	"github.com/llmcli/streamchat/pkg/dotdir"
	"github.com/llmcli/streamchat/pkg/eventstream"
	"github.com/llmcli/streamchat/pkg/eventstream/kafka"
	"github.com/llmcli/streamchat/pkg/eventstream/nop"
	"github.com/llmcli/streamchat/pkg/logger"
	"github.com/llmcli/streamchat/pkg/sse"
	"github.com/llmcli/streamchat/pkg/stream"
	"github.com/llmcli/streamchat/pkg/transcript"
	"github.com/llmcli/streamchat/pkg/utils"
	"github.com/llmcli/streamchat/pkg/worker"
)

var (
	userPrompt      = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true).Render("you> ")
	assistantPrompt = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render("assistant> ")
	logPrefix       = cliui.DimStyle.Render("  ·")
)

// clientName is stamped on published turn events.
const clientName = "streamchat-cli"

type chatCommander struct {
	cfg *config.Config

	configDir string
	dump      string
	record    bool
	resume    bool
	markdown  bool
	debug     bool

	in  io.Reader
	out io.Writer

	logger *slog.Logger
}

// flags this command binds to viper
var chatFlags = []string{
	config.FlagAPITarget,
	config.FlagStreamPath,
	config.FlagMethod,
	config.FlagTimeout,
	config.FlagFraming,
	config.FlagEmitTrailing,
	config.FlagEventsProvider,
	config.FlagEventsBrokers,
	config.FlagEventsTopic,
	config.FlagLogLevel,
}

const chatLongDesc string = `Start an interactive chat session against a streaming chat backend.

Each message opens a stream to the backend's chat endpoint. Reasoning and
tool activity is shown as it arrives and the reply text is printed as it
streams in. Press Ctrl+C to abort a reply in flight.

With --record, every finished turn is appended to a conversation on the
backend and, when an event provider is configured, published as a turn
event. --resume continues the conversation recorded by the last session.

Commands inside the session:
  /clear    Start a new transcript
  /history  Show the transcript so far
  /exit     Leave the session

Examples:
  streamchat chat
  streamchat chat --api-target http://localhost:3002 --method POST
  streamchat chat --record --resume
  streamchat chat --framing per_line --dump raw.txt`

const chatShortDesc string = "Interactive streaming chat"

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{cfg: &config.Config{}}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Registry, chatFlags)
			cmder.cfg = config.FromViper(v)
			return cmder.validate(v)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			cmder.in = cmd.InOrStdin()
			cmder.out = cmd.OutOrStdout()
			return cmder.run(cmd.Context())
		},
	}

	var (
		apiTarget, streamPath, method, timeout, framing string
		provider, brokers, topic, level                 string
		emitTrailing                                    bool
	)
	config.AddStringFlag(cmd, config.Registry, config.FlagAPITarget, &apiTarget)
	config.AddStringFlag(cmd, config.Registry, config.FlagStreamPath, &streamPath)
	config.AddStringFlag(cmd, config.Registry, config.FlagMethod, &method)
	config.AddStringFlag(cmd, config.Registry, config.FlagTimeout, &timeout)
	config.AddStringFlag(cmd, config.Registry, config.FlagFraming, &framing)
	config.AddBoolFlag(cmd, config.Registry, config.FlagEmitTrailing, &emitTrailing)
	config.AddStringFlag(cmd, config.Registry, config.FlagEventsProvider, &provider)
	config.AddStringFlag(cmd, config.Registry, config.FlagEventsBrokers, &brokers)
	config.AddStringFlag(cmd, config.Registry, config.FlagEventsTopic, &topic)
	config.AddStringFlag(cmd, config.Registry, config.FlagLogLevel, &level)

	cmd.Flags().StringVar(&cmder.dump, "dump", "", "Append the raw stream bytes of every reply to this file")
	cmd.Flags().BoolVar(&cmder.record, "record", false, "Record turns into a conversation on the backend")
	cmd.Flags().BoolVar(&cmder.resume, "resume", false, "Continue the conversation recorded by the last session (implies --record)")
	cmd.Flags().BoolVar(&cmder.markdown, "markdown", false, "Render each finished reply as markdown instead of streaming raw text")

	return cmd
}

// validate checks the resolved values a typo in a flag or env var could
// break.
func (c *chatCommander) validate(v *viper.Viper) error {
	if _, err := sse.ParsePolicy(c.cfg.Stream.Framing); err != nil {
		return err
	}
	if c.cfg.Client.Method != http.MethodGet && c.cfg.Client.Method != http.MethodPost {
		return fmt.Errorf("unsupported method %q (allowed: GET, POST)", v.GetString("client.method"))
	}
	if _, err := time.ParseDuration(c.cfg.Client.Timeout); err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}
	if c.resume {
		c.record = true
	}
	return nil
}

func (c *chatCommander) run(ctx context.Context) error {
	level := logger.ParseLevel(c.cfg.Log.Level)
	if c.debug {
		level = slog.LevelDebug
	}
	c.logger = logger.New(
		logger.WithPretty(true),
		logger.WithLevel(level),
		logger.WithWriter(os.Stderr),
	)

	if ctx == nil {
		ctx = context.Background()
	}

	policy, _ := sse.ParsePolicy(c.cfg.Stream.Framing)
	transport := stream.NewHTTPTransport(c.cfg.Client.APITarget,
		stream.WithHeader("User-Agent", "streamchat/"+utils.Version),
	)
	dispatcher := stream.NewDispatcher(transport,
		stream.WithLogger(c.logger),
		stream.WithReaderOptions(
			sse.WithPolicy(policy),
			sse.WithTrailingLine(c.cfg.Stream.EmitTrailingLine),
		),
	)

	opts := []chat.Option{
		chat.WithStreamPath(c.cfg.Client.StreamPath),
		chat.WithMethod(c.cfg.Client.Method),
		chat.WithLogger(c.logger),
	}

	if c.dump != "" {
		f, err := os.OpenFile(c.dump, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("opening dump file: %w", err)
		}
		defer f.Close()
		opts = append(opts, chat.WithReaderOptions(sse.WithTee(f)))
	}

	if c.record {
		pool, conversationID, err := c.startRecorder(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()
		opts = append(opts, chat.WithRecorder(pool), chat.WithConversation(conversationID))
	}

	client := chat.NewClient(dispatcher, opts...)
	return c.loop(ctx, client, transport.BaseURL()+c.cfg.Client.StreamPath)
}

// startRecorder resolves the conversation turns are recorded under and
// starts the worker pool that stores and publishes them.
func (c *chatCommander) startRecorder(ctx context.Context) (*worker.Pool, string, error) {
	timeout, _ := time.ParseDuration(c.cfg.Client.Timeout)
	store := httpstore.New(c.cfg.Client.APITarget, httpstore.WithHTTPClient(&http.Client{Timeout: timeout}))

	conv, err := c.resolveConversation(ctx, store)
	if err != nil {
		return nil, "", err
	}

	publisher, err := c.newPublisher()
	if err != nil {
		return nil, "", err
	}

	pool, err := worker.NewPool(&worker.Config{
		Store:     store,
		Publisher: publisher,
		Source: eventstream.EventSource{
			Client:    clientName,
			APITarget: c.cfg.Client.APITarget,
		},
		Logger: c.logger,
	})
	if err != nil {
		_ = publisher.Close()
		return nil, "", fmt.Errorf("starting recorder: %w", err)
	}

	return pool, conv.ID, nil
}

// resolveConversation returns the conversation to record into: the one
// from the last session when resuming against the same backend, otherwise
// a new one. The choice is saved as the new session state.
func (c *chatCommander) resolveConversation(ctx context.Context, store conversation.Store) (*conversation.Conversation, error) {
	ddm := dotdir.NewManager()

	var conv *conversation.Conversation
	if c.resume {
		state, err := ddm.LoadSession(c.configDir)
		if err != nil {
			return nil, fmt.Errorf("loading session: %w", err)
		}
		if state != nil && state.APITarget == c.cfg.Client.APITarget {
			conv, err = store.Get(ctx, state.ConversationID)
			switch {
			case errors.Is(err, conversation.NotFoundError{}):
				c.logger.Warn("last conversation is gone, starting a new one", "conversation_id", state.ConversationID)
			case err != nil:
				return nil, fmt.Errorf("loading conversation: %w", err)
			}
		}
	}

	if conv == nil {
		var err error
		conv, err = store.Create(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("creating conversation: %w", err)
		}
		fmt.Fprintf(c.out, "\n  %s Recording into %s\n",
			cliui.SuccessMark,
			cliui.HashStyle.Render(conv.ID),
		)
	} else {
		fmt.Fprintf(c.out, "\n  %s Resuming %s %s\n",
			cliui.SuccessMark,
			cliui.NameStyle.Render(conv.Title),
			cliui.DimStyle.Render(fmt.Sprintf("(%s, %d messages)", conv.ID, conv.MessageCount)),
		)
	}

	err := ddm.SaveSession(&dotdir.SessionState{
		ConversationID: conv.ID,
		APITarget:      c.cfg.Client.APITarget,
	}, c.configDir)
	if err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}

	return conv, nil
}

func (c *chatCommander) newPublisher() (eventstream.Publisher, error) {
	switch c.cfg.EventStream.Provider {
	case "", "none":
		return nop.NewPublisher(), nil
	case "kafka":
		p, err := kafka.NewPublisher(kafka.Config{
			Brokers: c.cfg.EventStream.BrokerList(),
			Topic:   c.cfg.EventStream.Topic,
		})
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		c.logger.Info("publishing turn events", "provider", "kafka", "topic", p.Topic())
		return p, nil
	default:
		return nil, fmt.Errorf("unknown event provider %q", c.cfg.EventStream.Provider)
	}
}

func (c *chatCommander) loop(ctx context.Context, client *chat.Client, endpoint string) error {
	fmt.Fprintf(c.out, "\n  %s %s\n",
		cliui.KeyStyle.Render("Connected to"),
		cliui.ValueStyle.Render(endpoint),
	)
	fmt.Fprintf(c.out, "  %s\n\n", cliui.DimStyle.Render("Type /exit to quit, Ctrl+C aborts a reply."))

	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(c.out, userPrompt)
		if !scanner.Scan() {
			fmt.Fprintln(c.out)
			return scanner.Err()
		}

		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/clear":
			if err := client.Clear(); err != nil {
				fmt.Fprintf(c.out, "  %s %v\n\n", cliui.FailMark, err)
				continue
			}
			fmt.Fprintf(c.out, "  %s Transcript cleared\n\n", cliui.SuccessMark)
			continue
		case "/history":
			c.printHistory(client.Messages())
			continue
		}

		c.turn(ctx, client, input)
	}
}

// turn streams one reply. Ctrl+C cancels only the reply in flight.
func (c *chatCommander) turn(ctx context.Context, client *chat.Client, input string) {
	turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	fmt.Fprint(c.out, assistantPrompt)

	view := &replyView{out: c.out, markdown: c.markdown}
	start := time.Now()
	final, _, err := client.StreamMessage(turnCtx, input, view.observe)
	elapsed := time.Since(start)

	if c.markdown && final != nil {
		rendered, rerr := cliui.RenderMarkdown(final.Content)
		if rerr != nil {
			c.logger.Debug("markdown rendering failed", "error", rerr)
		}
		fmt.Fprint(c.out, "\n"+rendered)
	}

	switch state := client.State(); {
	case errors.Is(err, stream.ErrAborted):
		fmt.Fprintf(c.out, "\n  %s %s\n\n", cliui.FailMark, cliui.DimStyle.Render("aborted"))
	case state.Error != nil:
		fmt.Fprintf(c.out, "\n  %s %v\n\n", cliui.FailMark, state.Error)
	default:
		fmt.Fprintf(c.out, "\n  %s\n\n", cliui.StepStyle.Render(cliui.FormatDuration(elapsed)))
	}
}

func (c *chatCommander) printHistory(msgs []transcript.Message) {
	if len(msgs) == 0 {
		fmt.Fprintf(c.out, "  %s\n\n", cliui.DimStyle.Render("No messages yet."))
		return
	}

	width := cliui.Width(c.out) - 16
	for _, m := range msgs {
		fmt.Fprintf(c.out, "  %s %s %s\n",
			cliui.DimStyle.Render(m.Timestamp.Format(time.TimeOnly)),
			cliui.KeyStyle.Render(fmt.Sprintf("%-9s", m.Role)),
			cliui.TruncateLine(m.Content, width),
		)
	}
	fmt.Fprintln(c.out)
}

// replyView prints a reply as its records arrive: logged events as dim
// lines, content as it grows.
type replyView struct {
	out      io.Writer
	markdown bool

	printed  int
	logCount int
	midLine  bool
}

func (v *replyView) observe(rec sse.Record, msg transcript.Message) {
	for _, entry := range msg.ThinkingLog[v.logCount:] {
		if v.midLine {
			fmt.Fprintln(v.out)
			v.midLine = false
		}
		fmt.Fprintf(v.out, "\n%s %s %s", logPrefix,
			cliui.DimStyle.Render(entry.EventType+":"),
			cliui.DimStyle.Render(utils.Truncate(strings.ReplaceAll(entry.RawData, "\n", " "), 120)),
		)
	}
	if n := len(msg.ThinkingLog); n > v.logCount {
		v.logCount = n
		fmt.Fprintln(v.out)
	}

	if v.markdown || rec.Type == transcript.EventError {
		return
	}
	if len(msg.Content) > v.printed {
		fmt.Fprint(v.out, msg.Content[v.printed:])
		v.printed = len(msg.Content)
		v.midLine = true
	}
}
