package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultAppName              = "realtime-agent"
	DefaultEnvironment          = "development"
	DefaultAPITimeout           = 30 * time.Second
	DefaultMaxRetries           = 3
	DefaultSocketPath           = "/socket.io/"
	DefaultHandshakeTimeout     = 10 * time.Second
	DefaultWriteTimeout         = 5 * time.Second
	DefaultPingTimeout          = 60 * time.Second
	DefaultSocketBufferSize     = 256
	DefaultReconnectBaseDelay   = 1 * time.Second
	DefaultReconnectMaxDelay    = 10 * time.Second
	DefaultReconnectMaxAttempts = 5
	DefaultNotificationInterval = 10 * time.Second
	DefaultUnreadInterval       = 30 * time.Second
	DefaultPollTimeout          = 10 * time.Second
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 4
	DefaultMinConns             = 1
	DefaultJournalBatchSize     = 100
	DefaultJournalFlush         = 2 * time.Second
	DefaultJournalBufferSize    = 1000
	DefaultMetricsPort          = 9090
	DefaultMetricsPath          = "/metrics"
	DefaultLogLevel             = "info"
	DefaultLogFormat            = "json"
)

func (c *Config) applyDefaults() {
	// App defaults
	if c.App.Name == "" {
		c.App.Name = DefaultAppName
	}
	if c.App.Environment == "" {
		c.App.Environment = DefaultEnvironment
	}

	// API defaults
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}
	if c.API.RateLimit > 0 && c.API.RateBurst == 0 {
		c.API.RateBurst = 1
	}

	// Socket defaults
	if c.Socket.Path == "" {
		c.Socket.Path = DefaultSocketPath
	}
	if c.Socket.HandshakeTimeout == 0 {
		c.Socket.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Socket.WriteTimeout == 0 {
		c.Socket.WriteTimeout = DefaultWriteTimeout
	}
	if c.Socket.PingTimeout == 0 {
		c.Socket.PingTimeout = DefaultPingTimeout
	}
	if c.Socket.BufferSize == 0 {
		c.Socket.BufferSize = DefaultSocketBufferSize
	}
	if c.Socket.Reconnect.BaseDelay == 0 {
		c.Socket.Reconnect.BaseDelay = DefaultReconnectBaseDelay
	}
	if c.Socket.Reconnect.MaxDelay == 0 {
		c.Socket.Reconnect.MaxDelay = DefaultReconnectMaxDelay
	}
	if c.Socket.Reconnect.MaxAttempts == 0 {
		c.Socket.Reconnect.MaxAttempts = DefaultReconnectMaxAttempts
	}

	// Poller defaults
	if c.Poller.NotificationInterval == 0 {
		c.Poller.NotificationInterval = DefaultNotificationInterval
	}
	if c.Poller.UnreadInterval == 0 {
		c.Poller.UnreadInterval = DefaultUnreadInterval
	}
	if c.Poller.Timeout == 0 {
		c.Poller.Timeout = DefaultPollTimeout
	}

	// Journal defaults
	applyDBDefaults(&c.Journal.Database)
	if c.Journal.BatchSize == 0 {
		c.Journal.BatchSize = DefaultJournalBatchSize
	}
	if c.Journal.FlushInterval == 0 {
		c.Journal.FlushInterval = DefaultJournalFlush
	}
	if c.Journal.BufferSize == 0 {
		c.Journal.BufferSize = DefaultJournalBufferSize
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
