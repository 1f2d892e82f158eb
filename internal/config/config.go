package config

import "time"

// Config is the root configuration for a realtime agent.
type Config struct {
	App     AppConfig     `yaml:"app"`
	API     APIConfig     `yaml:"api"`
	Socket  SocketConfig  `yaml:"socket"`
	Poller  PollerConfig  `yaml:"poller"`
	Journal JournalConfig `yaml:"journal"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// AppConfig identifies this agent and the user it runs for.
type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	UserID      string `yaml:"user_id"` // Overrides the token's user id claim
}

// APIConfig holds REST collaborator settings.
type APIConfig struct {
	RestURL    string        `yaml:"rest_url"`
	Token      string        `yaml:"token"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RateLimit  float64       `yaml:"rate_limit"` // Requests per second, 0 disables
	RateBurst  int           `yaml:"rate_burst"`
}

// SocketConfig holds realtime connection settings.
type SocketConfig struct {
	URL              string          `yaml:"url"`
	Path             string          `yaml:"path"`
	HandshakeTimeout time.Duration   `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration   `yaml:"write_timeout"`
	PingTimeout      time.Duration   `yaml:"ping_timeout"` // Used when the server advertises none
	BufferSize       int             `yaml:"buffer_size"`
	Reconnect        ReconnectConfig `yaml:"reconnect"`
}

// ReconnectConfig holds backoff settings.
type ReconnectConfig struct {
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// PollerConfig holds fallback poller settings.
type PollerConfig struct {
	NotificationInterval  time.Duration `yaml:"notification_interval"`
	UnreadInterval        time.Duration `yaml:"unread_interval"`
	Timeout               time.Duration `yaml:"timeout"`
	NotificationsAlwaysOn bool          `yaml:"notifications_always_on"`
}

// JournalConfig holds the optional event journal.
type JournalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Database      DBConfig      `yaml:"database"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// MetricsConfig holds the agent's HTTP surface settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level     string `yaml:"level"`  // debug, info, warn, error
	Format    string `yaml:"format"` // json, text
	AddSource bool   `yaml:"add_source"`
}
