package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env    string
	Server ServerConfig
	Redis  RedisConfig
	Lineup LineupConfig
	JWT    JWTConfig
	Log    LogConfig
	Kafka  KafkaConfig
}

type ServerConfig struct {
	HTTPPort     int
	GRpcPort     int
	ReadTimeout  time.Duration
	IdleTimeout  time.Duration
	// Push connections are long-lived, so there is no write timeout on the HTTP server.
	ShutdownTimeout time.Duration
}

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	MaxRetries   int
	PoolSize     int
	MinIdleConns int
}

type LineupConfig struct {
	HeartbeatInterval     time.Duration
	HeartbeatTimeout      time.Duration
	ConnectionMaxLifetime time.Duration
	ConnectionBuffer      int
	BroadcastWorkers      int
	SendTimeout           time.Duration
	StreamPingInterval    time.Duration
	DefaultMaxGroupSize   int
}

type KafkaConfig struct {
	Brokers              []string
	ProducerRetryMax     int
	ProducerRequiredAcks int
	Enabled              bool
	ConsumerGroupID      string
}

type JWTConfig struct {
	Secret string
}

type LogConfig struct {
	Level    string
	Mode     string
	Encoding string
}

func Load() (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	cfg := &Config{
		Env: getEnv("ENV", "development"),
		Server: ServerConfig{
			HTTPPort:        getEnvAsInt("SERVER_HTTP_PORT", 8080),
			GRpcPort:        getEnvAsInt("SERVER_GRPC_PORT", 50057),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			IdleTimeout:     getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Redis: RedisConfig{
			Addr:         getEnv("REDIS_ADDR", "localhost:6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			MaxRetries:   getEnvAsInt("REDIS_MAX_RETRIES", 3),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 5),
		},
		Lineup: LineupConfig{
			HeartbeatInterval:     getEnvAsDuration("LINEUP_HEARTBEAT_INTERVAL", 5*time.Second),
			HeartbeatTimeout:      getEnvAsDuration("LINEUP_HEARTBEAT_TIMEOUT", 15*time.Second),
			ConnectionMaxLifetime: getEnvAsDuration("LINEUP_CONNECTION_MAX_LIFETIME", 30*time.Minute),
			ConnectionBuffer:      getEnvAsInt("LINEUP_CONNECTION_BUFFER", 16),
			BroadcastWorkers:      getEnvAsInt("LINEUP_BROADCAST_WORKERS", 64),
			SendTimeout:           getEnvAsDuration("LINEUP_SEND_TIMEOUT", 2*time.Second),
			StreamPingInterval:    getEnvAsDuration("LINEUP_STREAM_PING_INTERVAL", 0),
			DefaultMaxGroupSize:   getEnvAsInt("LINEUP_DEFAULT_MAX_GROUP_SIZE", 4),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "jwt-secret"),
		},
		Log: LogConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			Mode:     getEnv("LOG_MODE", "development"),
			Encoding: getEnv("LOG_ENCODING", "console"),
		},
		Kafka: KafkaConfig{
			Brokers:              getEnvAsSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			ProducerRetryMax:     getEnvAsInt("KAFKA_PRODUCER_RETRY_MAX", 3),
			ProducerRequiredAcks: getEnvAsInt("KAFKA_PRODUCER_REQUIRED_ACKS", 1),
			Enabled:              getEnvAsBool("KAFKA_ENABLED", true),
			ConsumerGroupID:      getEnv("KAFKA_CONSUMER_GROUP_ID", "lineup-service"),
		},
	}

	// WebSocket pongs refresh liveness, so pings must land well inside the timeout.
	if cfg.Lineup.StreamPingInterval <= 0 {
		cfg.Lineup.StreamPingInterval = cfg.Lineup.HeartbeatTimeout / 3
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid http port: %d", c.Server.HTTPPort)
	}

	if c.Server.GRpcPort <= 0 || c.Server.GRpcPort > 65535 {
		return fmt.Errorf("invalid grpc port: %d", c.Server.GRpcPort)
	}

	if c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}

	if c.Lineup.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive")
	}

	// A timeout shorter than one sweep would expire members between two heartbeats.
	if c.Lineup.HeartbeatTimeout < c.Lineup.HeartbeatInterval {
		return fmt.Errorf("heartbeat timeout %s is shorter than interval %s",
			c.Lineup.HeartbeatTimeout, c.Lineup.HeartbeatInterval)
	}

	if c.Lineup.StreamPingInterval <= 0 {
		return fmt.Errorf("stream ping interval must be positive")
	}

	// A pong answering the last ping must be seen before a sweep can expire the member.
	if c.Lineup.StreamPingInterval+c.Lineup.HeartbeatInterval >= c.Lineup.HeartbeatTimeout {
		return fmt.Errorf("stream ping interval %s plus heartbeat interval %s must be shorter than heartbeat timeout %s",
			c.Lineup.StreamPingInterval, c.Lineup.HeartbeatInterval, c.Lineup.HeartbeatTimeout)
	}

	if c.Lineup.BroadcastWorkers <= 0 {
		return fmt.Errorf("broadcast workers must be positive: %d", c.Lineup.BroadcastWorkers)
	}

	if c.Lineup.ConnectionBuffer <= 0 {
		return fmt.Errorf("connection buffer must be positive: %d", c.Lineup.ConnectionBuffer)
	}

	if c.Lineup.DefaultMaxGroupSize <= 0 {
		return fmt.Errorf("default max group size must be positive: %d", c.Lineup.DefaultMaxGroupSize)
	}

	if c.JWT.Secret == "" || c.JWT.Secret == "jwt-secret" {
		if c.Env == "production" {
			return fmt.Errorf("JWT secret must be set in production")
		}
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return defaultValue
	}

	return result
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
