// Package servecmder provides the serve command, which runs the mock chat
// backend: the scripted chat stream plus the conversations API.
package servecmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/llmcli/streamchat/api"
	"github.com/llmcli/streamchat/pkg/config"
	"github.com/llmcli/streamchat/pkg/conversation"
	"github.com/llmcli/streamchat/pkg/conversation/inmemory"
	"github.com/llmcli/streamchat/pkg/conversation/sqlstore"
	"github.com/llmcli/streamchat/pkg/logger"
)

type ServeCommander struct {
	cfg   *config.Config
	debug   bool
	json    bool
	logFile string

	logger *slog.Logger
}

// flags this command binds to viper
var serveFlags = []string{
	config.FlagListen,
	config.FlagScript,
	config.FlagDelay,
	config.FlagStorageDriver,
	config.FlagSQLite,
	config.FlagPostgresDSN,
	config.FlagLogLevel,
}

const serveLongDesc string = `Run the mock chat backend.

The server streams a scripted reply to every message on /api/chat/stream
and serves the conversations API used by "streamchat chat --record" and
"streamchat conversations".

The reply comes from a TOML script (--script). The file is watched and
reloaded on every save; an invalid edit keeps the previous script. Without
a script a built-in reply is streamed. Messages containing "/fail" end in
an error record.

Conversations are kept in memory by default, or in SQLite or PostgreSQL
with --storage.

Examples:
  streamchat serve
  streamchat serve --listen :8080 --delay 20
  streamchat serve --script reply.toml
  streamchat serve --log-file serve.log
  streamchat serve --storage sqlite --sqlite ./chat.db
  streamchat serve --storage postgres --postgres-dsn postgres://localhost/streamchat`

const serveShortDesc string = "Run the mock chat backend"

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{cfg: &config.Config{}}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Registry, serveFlags)
			cmder.cfg = config.FromViper(v)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}
			return cmder.run()
		},
	}

	var listen, script, driver, sqlitePath, dsn, level string
	var delay uint
	config.AddStringFlag(cmd, config.Registry, config.FlagListen, &listen)
	config.AddStringFlag(cmd, config.Registry, config.FlagScript, &script)
	config.AddUintFlag(cmd, config.Registry, config.FlagDelay, &delay)
	config.AddStringFlag(cmd, config.Registry, config.FlagStorageDriver, &driver)
	config.AddStringFlag(cmd, config.Registry, config.FlagSQLite, &sqlitePath)
	config.AddStringFlag(cmd, config.Registry, config.FlagPostgresDSN, &dsn)
	config.AddStringFlag(cmd, config.Registry, config.FlagLogLevel, &level)
	cmd.Flags().BoolVar(&cmder.json, "json-logs", false, "Write logs as JSON")
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also append JSON logs to this file")

	return cmd
}

func (c *ServeCommander) run() error {
	var closer io.Closer
	var err error
	c.logger, closer, err = c.newLogger(os.Stdout)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := c.newStorageDriver(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	scripts, err := c.newScriptSource()
	if err != nil {
		return err
	}

	server := api.NewServer(api.Config{
		ListenAddr: c.cfg.Server.Listen,
		StepDelay:  time.Duration(c.cfg.Server.DelayMs) * time.Millisecond,
	}, store, scripts, c.logger)

	// Channel to capture errors from goroutines
	errChan := make(chan error, 2)

	if c.cfg.Server.Script != "" {
		go func() {
			if err := scripts.Watch(ctx, c.cfg.Server.Script); err != nil {
				errChan <- fmt.Errorf("script watcher error: %w", err)
			}
		}()
	}

	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
		return server.Shutdown()
	}
}

// newLogger builds the terminal logger. With --log-file set, records are
// also appended to the file as JSON with source locations, and the returned
// closer closes the file.
func (c *ServeCommander) newLogger(w io.Writer) (*slog.Logger, io.Closer, error) {
	level := logger.ParseLevel(c.cfg.Log.Level)
	if c.debug {
		level = slog.LevelDebug
	}

	console := logger.New(
		logger.WithLevel(level),
		logger.WithPretty(!c.json),
		logger.WithJSON(c.json),
		logger.WithWriter(w),
	)
	if c.logFile == "" {
		return console, nil, nil
	}

	f, err := os.OpenFile(c.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	file := logger.New(
		logger.WithLevel(level),
		logger.WithJSON(true),
		logger.WithSource(true),
		logger.WithWriter(f),
	)
	return logger.Multi(console, file), f, nil
}

func (c *ServeCommander) newScriptSource() (*api.ScriptSource, error) {
	scripts := api.NewScriptSource(nil, c.logger)
	if c.cfg.Server.Script == "" {
		return scripts, nil
	}
	if err := scripts.Load(c.cfg.Server.Script); err != nil {
		return nil, err
	}
	return scripts, nil
}

func (c *ServeCommander) newStorageDriver(ctx context.Context) (conversation.Store, error) {
	switch c.cfg.Storage.Driver {
	case "sqlite":
		driver, err := sqlstore.NewSQLiteDriver(ctx, c.cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite store: %w", err)
		}
		c.logger.Info("using SQLite storage", "path", c.cfg.Storage.SQLitePath)
		return driver, nil

	case "postgres":
		if c.cfg.Storage.PostgresDSN == "" {
			return nil, errors.New("storage driver postgres requires --postgres-dsn")
		}
		driver, err := sqlstore.NewPostgresDriver(ctx, c.cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL store: %w", err)
		}
		c.logger.Info("using PostgreSQL storage")
		return driver, nil

	case "", "memory":
		c.logger.Info("using in-memory storage")
		return inmemory.NewDriver(), nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q (allowed: memory, sqlite, postgres)", c.cfg.Storage.Driver)
	}
}
