package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.API.RestURL == "" {
		return errors.New("api.rest_url is required")
	}
	if err := validateURL("api.rest_url", c.API.RestURL, "http", "https"); err != nil {
		return err
	}
	if c.API.Token == "" && c.App.UserID == "" {
		return errors.New("api.token or app.user_id is required")
	}
	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must be >= 0")
	}
	if c.API.RateLimit < 0 {
		return errors.New("api.rate_limit must be >= 0")
	}

	if c.Socket.URL == "" {
		return errors.New("socket.url is required")
	}
	if err := validateURL("socket.url", c.Socket.URL, "http", "https", "ws", "wss"); err != nil {
		return err
	}
	if c.Socket.BufferSize < 1 {
		return errors.New("socket.buffer_size must be >= 1")
	}
	r := c.Socket.Reconnect
	if r.MaxAttempts < 1 {
		return errors.New("socket.reconnect.max_attempts must be >= 1")
	}
	if r.BaseDelay <= 0 {
		return errors.New("socket.reconnect.base_delay must be > 0")
	}
	if r.MaxDelay < r.BaseDelay {
		return fmt.Errorf("socket.reconnect.max_delay (%v) cannot be less than base_delay (%v)", r.MaxDelay, r.BaseDelay)
	}

	if c.Poller.NotificationInterval <= 0 {
		return errors.New("poller.notification_interval must be > 0")
	}
	if c.Poller.UnreadInterval <= 0 {
		return errors.New("poller.unread_interval must be > 0")
	}

	if c.Journal.Enabled {
		if err := c.Journal.Database.validate("journal.database"); err != nil {
			return err
		}
		if c.Journal.BatchSize < 1 {
			return errors.New("journal.batch_size must be >= 1")
		}
		if c.Journal.BufferSize < c.Journal.BatchSize {
			return fmt.Errorf("journal.buffer_size (%d) cannot be less than batch_size (%d)", c.Journal.BufferSize, c.Journal.BatchSize)
		}
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format)
	}

	return nil
}

func validateURL(field, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", field, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s must be an absolute %v URL, got %q", field, schemes, raw)
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
