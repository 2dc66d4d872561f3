package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultBeginString       = "FIX.4.4"
	DefaultHeartbeatInterval = 20 * time.Second
	DefaultLogonTimeout      = 30 * time.Second
	DefaultLogoutWait        = 500 * time.Millisecond
	DefaultInstrument        = "EUR/USD"
	DefaultSubscriptionKind  = "updates"
	DefaultRequestSpacing    = 300 * time.Millisecond
	DefaultSummaryDelay      = 5 * time.Second
	DefaultHost              = "localhost"
	DefaultPort              = 14508
	DefaultDialTimeout       = 10 * time.Second
	DefaultReadTimeout       = 1 * time.Second
	DefaultWriteTimeout      = 5 * time.Second
	DefaultGroupMode         = "nested"
	DefaultStaleThreshold    = 2 * time.Second
	DefaultStaleInterval     = 1 * time.Second
	DefaultStaleLogEvery     = 5 * time.Second
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultMaxConns          = 10
	DefaultMinConns          = 2
	DefaultBatchSize         = 500
	DefaultFlushInterval     = 1 * time.Second
	DefaultPublishTimeout    = 2 * time.Second
	DefaultWebSocketAddr     = ":8081"
	DefaultWebSocketPath     = "/quotes"
	DefaultRedisAddr         = "localhost:6379"
	DefaultRedisChannel      = "quotes"
	DefaultKafkaTopic        = "quotes"
	DefaultMetricsPort       = 9090
	DefaultMetricsPath       = "/metrics"
	DefaultLogLevel          = "info"
	DefaultLogMaxSizeMB      = 100
	DefaultLogMaxBackups     = 5
	DefaultLogMaxAgeDays     = 14
)

func (c *Config) applyDefaults() {
	// Session defaults
	if c.Session.BeginString == "" {
		c.Session.BeginString = DefaultBeginString
	}
	if c.Session.HeartbeatInterval == 0 {
		c.Session.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Session.LogonTimeout == 0 {
		c.Session.LogonTimeout = DefaultLogonTimeout
	}
	if c.Session.LogoutWait == 0 {
		c.Session.LogoutWait = DefaultLogoutWait
	}

	if len(c.Instruments) == 0 {
		c.Instruments = []string{DefaultInstrument}
	}

	// Subscription defaults
	if c.Subscription.Kind == "" {
		c.Subscription.Kind = DefaultSubscriptionKind
	}
	if c.Subscription.RequestSpacing == 0 {
		c.Subscription.RequestSpacing = DefaultRequestSpacing
	}
	if c.Subscription.SummaryDelay == 0 {
		c.Subscription.SummaryDelay = DefaultSummaryDelay
	}

	// Connection defaults
	if c.Connection.Host == "" {
		c.Connection.Host = DefaultHost
	}
	if c.Connection.Port == 0 {
		c.Connection.Port = DefaultPort
	}
	if c.Connection.DialTimeout == 0 {
		c.Connection.DialTimeout = DefaultDialTimeout
	}
	if c.Connection.ReadTimeout == 0 {
		c.Connection.ReadTimeout = DefaultReadTimeout
	}
	if c.Connection.WriteTimeout == 0 {
		c.Connection.WriteTimeout = DefaultWriteTimeout
	}

	// Market data defaults
	if c.MarketData.GroupMode == "" {
		c.MarketData.GroupMode = DefaultGroupMode
	}
	if c.MarketData.StaleThreshold == 0 {
		c.MarketData.StaleThreshold = DefaultStaleThreshold
	}
	if c.MarketData.StaleInterval == 0 {
		c.MarketData.StaleInterval = DefaultStaleInterval
	}
	if c.MarketData.StaleLogEvery == 0 {
		c.MarketData.StaleLogEvery = DefaultStaleLogEvery
	}

	applyDBDefaults(&c.Database.DBConfig)

	// Writers defaults
	if c.Writers.BatchSize == 0 {
		c.Writers.BatchSize = DefaultBatchSize
	}
	if c.Writers.FlushInterval == 0 {
		c.Writers.FlushInterval = DefaultFlushInterval
	}

	// Publish defaults
	if c.Publish.PublishTimeout == 0 {
		c.Publish.PublishTimeout = DefaultPublishTimeout
	}
	if c.Publish.WebSocket.Addr == "" {
		c.Publish.WebSocket.Addr = DefaultWebSocketAddr
	}
	if c.Publish.WebSocket.Path == "" {
		c.Publish.WebSocket.Path = DefaultWebSocketPath
	}
	if c.Publish.Redis.Addr == "" {
		c.Publish.Redis.Addr = DefaultRedisAddr
	}
	if c.Publish.Redis.Channel == "" {
		c.Publish.Redis.Channel = DefaultRedisChannel
	}
	if c.Publish.Kafka.Topic == "" {
		c.Publish.Kafka.Topic = DefaultKafkaTopic
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
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = DefaultLogMaxSizeMB
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = DefaultLogMaxBackups
	}
	if c.Logging.MaxAgeDays == 0 {
		c.Logging.MaxAgeDays = DefaultLogMaxAgeDays
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
