package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Postgres    PostgresConfig    `yaml:"postgres"`
	Redis       RedisConfig       `yaml:"redis"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Worker      WorkerConfig      `yaml:"worker"`
	Leaderboard LeaderboardConfig `yaml:"leaderboard"`
	Limits      LimitsConfig      `yaml:"limits"`
	RateLimit   RateLimitConfig   `yaml:"ratelimit"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	MaxRequestBody int64         `yaml:"max_request_body"`
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxConnections  int           `yaml:"max_connections"`
	MinConnections  int           `yaml:"min_connections"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
}

// ConnectionString returns the PostgreSQL connection string
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslMode,
	)
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// KafkaConfig holds Kafka connection configuration
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	GroupID      string        `yaml:"group_id"`
	Enabled      bool          `yaml:"enabled"`
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

// WorkerConfig holds cache refresher configuration
type WorkerConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Interval       time.Duration `yaml:"interval"`
	ActiveWindow   time.Duration `yaml:"active_window"`
	RefreshTimeout time.Duration `yaml:"refresh_timeout"`
}

// LeaderboardConfig holds leaderboard query configuration
type LeaderboardConfig struct {
	DefaultLimit int           `yaml:"default_limit"`
	MaxLimit     int           `yaml:"max_limit"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	Timezone     string        `yaml:"timezone"`
}

// LimitsConfig bounds client-supplied input
type LimitsConfig struct {
	MaxPlayerNameLength  int   `yaml:"max_player_name_length"`
	MaxGameNameLength    int   `yaml:"max_game_name_length"`
	MaxDescriptionLength int   `yaml:"max_description_length"`
	MaxScoreValue        int64 `yaml:"max_score_value"`
	MaxMetadataBytes     int   `yaml:"max_metadata_bytes"`
}

// Rate is a fixed-window rate limit
type Rate struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// RateLimitConfig holds per-endpoint rate limits
type RateLimitConfig struct {
	Enabled     bool `yaml:"enabled"`
	CreateGame  Rate `yaml:"create_game"`
	SubmitScore Rate `yaml:"submit_score"`
	Leaderboard Rate `yaml:"leaderboard"`
	PlayerStats Rate `yaml:"player_stats"`
	Default     Rate `yaml:"default"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 5 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120 * time.Second
	}
	if c.Server.MaxRequestBody == 0 {
		c.Server.MaxRequestBody = 1 << 20
	}

	// PostgreSQL defaults
	if c.Postgres.Host == "" {
		c.Postgres.Host = "localhost"
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.MaxConnections == 0 {
		c.Postgres.MaxConnections = 50
	}
	if c.Postgres.MinConnections == 0 {
		c.Postgres.MinConnections = 5
	}
	if c.Postgres.MaxConnLifetime == 0 {
		c.Postgres.MaxConnLifetime = 1 * time.Hour
	}
	if c.Postgres.MaxConnIdleTime == 0 {
		c.Postgres.MaxConnIdleTime = 30 * time.Minute
	}
	if c.Postgres.QueryTimeout == 0 {
		c.Postgres.QueryTimeout = 5 * time.Second
	}

	// Redis defaults
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 100
	}
	if c.Redis.MinIdleConns == 0 {
		c.Redis.MinIdleConns = 10
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = 5 * time.Second
	}
	if c.Redis.ReadTimeout == 0 {
		c.Redis.ReadTimeout = 3 * time.Second
	}
	if c.Redis.WriteTimeout == 0 {
		c.Redis.WriteTimeout = 3 * time.Second
	}

	// Kafka defaults
	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{"localhost:9092"}
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "highscore-submissions"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "highscore-ingest"
	}
	if c.Kafka.BatchSize == 0 {
		c.Kafka.BatchSize = 100
	}
	if c.Kafka.BatchTimeout == 0 {
		c.Kafka.BatchTimeout = 1 * time.Second
	}

	// Worker defaults
	if c.Worker.Interval == 0 {
		c.Worker.Interval = 30 * time.Second
	}
	if c.Worker.ActiveWindow == 0 {
		c.Worker.ActiveWindow = 10 * time.Minute
	}
	if c.Worker.RefreshTimeout == 0 {
		c.Worker.RefreshTimeout = 10 * time.Second
	}

	// Leaderboard defaults
	if c.Leaderboard.DefaultLimit == 0 {
		c.Leaderboard.DefaultLimit = 10
	}
	if c.Leaderboard.MaxLimit == 0 {
		c.Leaderboard.MaxLimit = 100
	}
	if c.Leaderboard.CacheTTL == 0 {
		c.Leaderboard.CacheTTL = 5 * time.Second
	}
	if c.Leaderboard.Timezone == "" {
		c.Leaderboard.Timezone = "UTC"
	}

	// Input limit defaults
	if c.Limits.MaxPlayerNameLength == 0 {
		c.Limits.MaxPlayerNameLength = 50
	}
	if c.Limits.MaxGameNameLength == 0 {
		c.Limits.MaxGameNameLength = 100
	}
	if c.Limits.MaxDescriptionLength == 0 {
		c.Limits.MaxDescriptionLength = 500
	}
	if c.Limits.MaxScoreValue == 0 {
		c.Limits.MaxScoreValue = 999999999
	}
	if c.Limits.MaxMetadataBytes == 0 {
		c.Limits.MaxMetadataBytes = 10240
	}

	// Rate limit defaults
	if c.RateLimit.CreateGame.Requests == 0 {
		c.RateLimit.CreateGame = Rate{Requests: 5, Window: time.Hour}
	}
	if c.RateLimit.SubmitScore.Requests == 0 {
		c.RateLimit.SubmitScore = Rate{Requests: 100, Window: time.Minute}
	}
	if c.RateLimit.Leaderboard.Requests == 0 {
		c.RateLimit.Leaderboard = Rate{Requests: 60, Window: time.Minute}
	}
	if c.RateLimit.PlayerStats.Requests == 0 {
		c.RateLimit.PlayerStats = Rate{Requests: 60, Window: time.Minute}
	}
	if c.RateLimit.Default.Requests == 0 {
		c.RateLimit.Default = Rate{Requests: 100, Window: time.Minute}
	}
}

// DefaultConfig returns a configuration with all defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.Worker.Enabled = true
	cfg.RateLimit.Enabled = true
	return cfg
}
