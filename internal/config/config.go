package config

import "time"

// Config is the root configuration for a quote feed instance.
type Config struct {
	Session      SessionConfig      `yaml:"session"`
	Instruments  []string           `yaml:"instruments"`
	Subscription SubscriptionConfig `yaml:"subscription"`
	Connection   ConnectionConfig   `yaml:"connection"`
	MarketData   MarketDataConfig   `yaml:"market_data"`
	Database     DatabaseConfig     `yaml:"database"`
	Writers      WritersConfig      `yaml:"writers"`
	Publish      PublishConfig      `yaml:"publish"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// SessionConfig holds FIX session identity and timers.
type SessionConfig struct {
	BeginString       string        `yaml:"begin_string"`
	SenderCompID      string        `yaml:"sender_comp_id"`
	TargetCompID      string        `yaml:"target_comp_id"`
	SenderSubID       string        `yaml:"sender_sub_id"`
	DeliverToCompID   string        `yaml:"deliver_to_comp_id"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	ResetSeqNum       *bool         `yaml:"reset_seq_num"` // nil means true
	LogonTimeout      time.Duration `yaml:"logon_timeout"`
	LogoutWait        time.Duration `yaml:"logout_wait"`
}

// SubscriptionConfig controls how market data requests are sent.
type SubscriptionConfig struct {
	Kind           string        `yaml:"kind"` // "updates" or "snapshot"
	RequestSpacing time.Duration `yaml:"request_spacing"`
	SummaryDelay   time.Duration `yaml:"summary_delay"`
}

// ConnectionConfig holds transport settings.
type ConnectionConfig struct {
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	TLS                bool          `yaml:"tls"`
	ServerName         string        `yaml:"server_name"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	DialTimeout        time.Duration `yaml:"dial_timeout"`
	ReadTimeout        time.Duration `yaml:"read_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
}

// MarketDataConfig holds snapshot processing and staleness settings.
type MarketDataConfig struct {
	GroupMode      string        `yaml:"group_mode"`    // "nested" or "positional"
	HistoryLimit   int           `yaml:"history_limit"` // 0 keeps every tick
	StaleThreshold time.Duration `yaml:"stale_threshold"`
	StaleInterval  time.Duration `yaml:"stale_interval"`
	StaleLogEvery  time.Duration `yaml:"stale_log_every"`
}

// DatabaseConfig holds the optional TimescaleDB/Postgres target for ticks.
type DatabaseConfig struct {
	Enabled  bool `yaml:"enabled"`
	DBConfig `yaml:",inline"`
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

// WritersConfig holds batch writer settings.
type WritersConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// PublishConfig selects the event outputs. Stdout is on unless disabled.
type PublishConfig struct {
	Stdout         *bool           `yaml:"stdout"`
	PublishTimeout time.Duration   `yaml:"publish_timeout"`
	WebSocket      WebSocketConfig `yaml:"websocket"`
	Redis          RedisConfig     `yaml:"redis"`
	Kafka          KafkaConfig     `yaml:"kafka"`
}

// WebSocketConfig configures the broadcast server.
type WebSocketConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// RedisConfig configures the Redis PUBLISH output.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// KafkaConfig configures the Kafka output.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// MetricsConfig holds Prometheus metrics and health endpoint settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// LoggingConfig holds log level and rotation settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// StdoutEnabled reports whether events are written to stdout.
func (p PublishConfig) StdoutEnabled() bool {
	return p.Stdout == nil || *p.Stdout
}

// ResetSeqNumFlag reports whether Logon carries 141=Y.
func (s SessionConfig) ResetSeqNumFlag() bool {
	return s.ResetSeqNum == nil || *s.ResetSeqNum
}
