package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/llmcli/streamchat/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the STREAMCHAT_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (STREAMCHAT_CLIENT_API_TARGET, STREAMCHAT_SERVER_LISTEN, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: STREAMCHAT_SERVER_LISTEN, STREAMCHAT_STORAGE_SQLITE_PATH, etc.
	v.SetEnvPrefix("STREAMCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Client
	v.SetDefault("client.api_target", d.Client.APITarget)
	v.SetDefault("client.stream_path", d.Client.StreamPath)
	v.SetDefault("client.method", d.Client.Method)
	v.SetDefault("client.timeout", d.Client.Timeout)

	// Stream
	v.SetDefault("stream.framing", d.Stream.Framing)
	v.SetDefault("stream.emit_trailing_line", d.Stream.EmitTrailingLine)

	// Server
	v.SetDefault("server.listen", d.Server.Listen)
	v.SetDefault("server.script", d.Server.Script)
	v.SetDefault("server.delay_ms", d.Server.DelayMs)

	// Storage
	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)

	// Event stream
	v.SetDefault("eventstream.provider", d.EventStream.Provider)
	v.SetDefault("eventstream.brokers", d.EventStream.Brokers)
	v.SetDefault("eventstream.topic", d.EventStream.Topic)

	// Log
	v.SetDefault("log.level", d.Log.Level)
}

// FromViper assembles a Config from the resolved viper values, so flags and
// environment variables take part.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Version: v.GetInt("version"),
		Client: ClientConfig{
			APITarget:  v.GetString("client.api_target"),
			StreamPath: v.GetString("client.stream_path"),
			Method:     strings.ToUpper(v.GetString("client.method")),
			Timeout:    v.GetString("client.timeout"),
		},
		Stream: StreamConfig{
			Framing:          v.GetString("stream.framing"),
			EmitTrailingLine: v.GetBool("stream.emit_trailing_line"),
		},
		Server: ServerConfig{
			Listen:  v.GetString("server.listen"),
			Script:  v.GetString("server.script"),
			DelayMs: v.GetUint("server.delay_ms"),
		},
		Storage: StorageConfig{
			Driver:      v.GetString("storage.driver"),
			SQLitePath:  v.GetString("storage.sqlite_path"),
			PostgresDSN: v.GetString("storage.postgres_dsn"),
		},
		EventStream: EventStreamConfig{
			Provider: v.GetString("eventstream.provider"),
			Brokers:  v.GetString("eventstream.brokers"),
			Topic:    v.GetString("eventstream.topic"),
		},
		Log: LogConfig{
			Level: v.GetString("log.level"),
		},
	}
}
