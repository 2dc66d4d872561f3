package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Session.SenderCompID == "" {
		return errors.New("session.sender_comp_id is required")
	}
	if c.Session.TargetCompID == "" {
		return errors.New("session.target_comp_id is required")
	}
	if c.Session.HeartbeatInterval < 0 {
		return errors.New("session.heartbeat_interval must be >= 0")
	}

	if len(c.Instruments) == 0 {
		return errors.New("instruments must not be empty")
	}
	for i, s := range c.Instruments {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("instruments[%d] is empty", i)
		}
	}

	switch c.Subscription.Kind {
	case "updates", "snapshot":
	default:
		return fmt.Errorf("subscription.kind must be updates or snapshot, got %q", c.Subscription.Kind)
	}

	if c.Connection.Host == "" {
		return errors.New("connection.host is required")
	}
	if c.Connection.Port < 1 || c.Connection.Port > 65535 {
		return fmt.Errorf("connection.port must be between 1 and 65535, got %d", c.Connection.Port)
	}

	switch c.MarketData.GroupMode {
	case "nested", "positional":
	default:
		return fmt.Errorf("market_data.group_mode must be nested or positional, got %q", c.MarketData.GroupMode)
	}
	if c.MarketData.HistoryLimit < 0 {
		return errors.New("market_data.history_limit must be >= 0")
	}
	if c.MarketData.StaleThreshold <= 0 {
		return errors.New("market_data.stale_threshold must be > 0")
	}

	if c.Database.Enabled {
		if err := c.Database.DBConfig.validate("database"); err != nil {
			return err
		}
		if c.Writers.BatchSize < 1 {
			return errors.New("writers.batch_size must be >= 1")
		}
	}

	if c.Publish.Kafka.Enabled && len(c.Publish.Kafka.Brokers) == 0 {
		return errors.New("publish.kafka.brokers is required when kafka is enabled")
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}

	return nil
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
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
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
