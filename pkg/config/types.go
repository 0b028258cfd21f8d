package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/llmcli/streamchat/pkg/sse"
)

// Config represents the persistent streamchat configuration stored as
// config.toml in the .streamchat/ directory. The TOML layout uses sections
// for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Client      ClientConfig      `toml:"client"`
	Stream      StreamConfig      `toml:"stream"`
	Server      ServerConfig      `toml:"server"`
	Storage     StorageConfig     `toml:"storage"`
	EventStream EventStreamConfig `toml:"eventstream"`
	Log         LogConfig         `toml:"log"`
}

// ClientConfig holds settings for CLI commands that connect to a running
// chat backend (e.g. streamchat chat, streamchat conversations).
// APITarget is a full URL (scheme + host + port).
type ClientConfig struct {
	APITarget  string `toml:"api_target,omitempty"`
	StreamPath string `toml:"stream_path,omitempty"`
	Method     string `toml:"method,omitempty"`

	// Timeout bounds non-streaming API calls, as a Go duration string.
	Timeout string `toml:"timeout,omitempty"`
}

// StreamConfig holds stream decoding settings.
type StreamConfig struct {
	// Framing is "buffered" or "per_line".
	Framing          string `toml:"framing,omitempty"`
	EmitTrailingLine bool   `toml:"emit_trailing_line,omitempty"`
}

// ServerConfig holds mock server settings.
type ServerConfig struct {
	Listen  string `toml:"listen,omitempty"`
	Script  string `toml:"script,omitempty"`
	DelayMs uint   `toml:"delay_ms,omitempty"`
}

// StorageConfig holds conversation storage settings used by the server.
type StorageConfig struct {
	// Driver is "memory", "sqlite" or "postgres".
	Driver      string `toml:"driver,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// EventStreamConfig holds turn event publishing settings.
type EventStreamConfig struct {
	// Provider is "none" or "kafka".
	Provider string `toml:"provider,omitempty"`

	// Brokers is a comma separated host:port list.
	Brokers string `toml:"brokers,omitempty"`
	Topic   string `toml:"topic,omitempty"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `toml:"level,omitempty"`
}

// BrokerList splits Brokers into its entries.
func (e EventStreamConfig) BrokerList() []string {
	var out []string
	for _, b := range strings.Split(e.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func oneOf(key, v string, allowed ...string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return fmt.Errorf("invalid value for %s: %q (allowed: %s)", key, v, strings.Join(allowed, ", "))
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"client.api_target": {
		get: func(c *Config) string { return c.Client.APITarget },
		set: func(c *Config, v string) error { c.Client.APITarget = v; return nil },
	},
	"client.stream_path": {
		get: func(c *Config) string { return c.Client.StreamPath },
		set: func(c *Config, v string) error { c.Client.StreamPath = v; return nil },
	},
	"client.method": {
		get: func(c *Config) string { return c.Client.Method },
		set: func(c *Config, v string) error {
			v = strings.ToUpper(v)
			if err := oneOf("client.method", v, "GET", "POST"); err != nil {
				return err
			}
			c.Client.Method = v
			return nil
		},
	},
	"client.timeout": {
		get: func(c *Config) string { return c.Client.Timeout },
		set: func(c *Config, v string) error {
			if _, err := time.ParseDuration(v); err != nil {
				return fmt.Errorf("invalid value for client.timeout: %w", err)
			}
			c.Client.Timeout = v
			return nil
		},
	},
	"stream.framing": {
		get: func(c *Config) string { return c.Stream.Framing },
		set: func(c *Config, v string) error {
			p, err := sse.ParsePolicy(v)
			if err != nil {
				return fmt.Errorf("invalid value for stream.framing: %w", err)
			}
			c.Stream.Framing = p.String()
			return nil
		},
	},
	"stream.emit_trailing_line": {
		get: func(c *Config) string { return strconv.FormatBool(c.Stream.EmitTrailingLine) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for stream.emit_trailing_line: %w", err)
			}
			c.Stream.EmitTrailingLine = b
			return nil
		},
	},
	"server.listen": {
		get: func(c *Config) string { return c.Server.Listen },
		set: func(c *Config, v string) error { c.Server.Listen = v; return nil },
	},
	"server.script": {
		get: func(c *Config) string { return c.Server.Script },
		set: func(c *Config, v string) error { c.Server.Script = v; return nil },
	},
	"server.delay_ms": {
		get: func(c *Config) string { return strconv.FormatUint(uint64(c.Server.DelayMs), 10) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for server.delay_ms: %w", err)
			}
			c.Server.DelayMs = uint(n)
			return nil
		},
	},
	"storage.driver": {
		get: func(c *Config) string { return c.Storage.Driver },
		set: func(c *Config, v string) error {
			if err := oneOf("storage.driver", v, "memory", "sqlite", "postgres"); err != nil {
				return err
			}
			c.Storage.Driver = v
			return nil
		},
	},
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"storage.postgres_dsn": {
		get: func(c *Config) string { return c.Storage.PostgresDSN },
		set: func(c *Config, v string) error { c.Storage.PostgresDSN = v; return nil },
	},
	"eventstream.provider": {
		get: func(c *Config) string { return c.EventStream.Provider },
		set: func(c *Config, v string) error {
			if err := oneOf("eventstream.provider", v, "none", "kafka"); err != nil {
				return err
			}
			c.EventStream.Provider = v
			return nil
		},
	},
	"eventstream.brokers": {
		get: func(c *Config) string { return c.EventStream.Brokers },
		set: func(c *Config, v string) error { c.EventStream.Brokers = v; return nil },
	},
	"eventstream.topic": {
		get: func(c *Config) string { return c.EventStream.Topic },
		set: func(c *Config, v string) error { c.EventStream.Topic = v; return nil },
	},
	"log.level": {
		get: func(c *Config) string { return c.Log.Level },
		set: func(c *Config, v string) error {
			v = strings.ToLower(v)
			if err := oneOf("log.level", v, "debug", "info", "warn", "error"); err != nil {
				return err
			}
			c.Log.Level = v
			return nil
		},
	},
}
