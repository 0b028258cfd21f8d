package config

const (
	defaultAPITarget  = "http://localhost:3002"
	defaultStreamPath = "/api/chat/stream"
	defaultMethod     = "GET"
	defaultTimeout    = "30s"

	defaultFraming = "buffered"

	defaultServerListen = ":3002"
	defaultDelayMs      = 100

	defaultStorageDriver = "memory"
	defaultSQLitePath    = "streamchat.db"

	defaultEventProvider = "none"
	defaultEventTopic    = "streamchat.turns"

	defaultLogLevel = "info"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Client: ClientConfig{
			APITarget:  defaultAPITarget,
			StreamPath: defaultStreamPath,
			Method:     defaultMethod,
			Timeout:    defaultTimeout,
		},
		Stream: StreamConfig{
			Framing: defaultFraming,
		},
		Server: ServerConfig{
			Listen:  defaultServerListen,
			DelayMs: defaultDelayMs,
		},
		Storage: StorageConfig{
			Driver:     defaultStorageDriver,
			SQLitePath: defaultSQLitePath,
		},
		EventStream: EventStreamConfig{
			Provider: defaultEventProvider,
			Topic:    defaultEventTopic,
		},
		Log: LogConfig{
			Level: defaultLogLevel,
		},
	}
}
