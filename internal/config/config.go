package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"hanna-engine/common/config"
)

// Outbound delivery modes
const (
	OutboundLine   = "line"
	OutboundStream = "stream"
)

// Config engine configuration, read from the environment.
type Config struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig

	DBEnabled bool
	DBMigrate bool
	// DemoChannelUserID seeds one active patient when DB is disabled.
	DemoChannelUserID string

	MQTTEnabled         bool
	MQTTSupervisorTopic string

	Line struct {
		APIBase           string
		ChannelToken      string
		SupervisorGroupID string
	}
	OutboundMode string

	HTTP struct {
		Addr string
	}

	Timezone string
	Location *time.Location

	Engine struct {
		CriticalTaskCap int
		DedupWindow     time.Duration
		MessageLogSize  int
		MessageLogTTL   time.Duration
		NotifyTimeout   time.Duration
	}

	Schedule struct {
		SweepAt           string
		MorningCheckInAt  string
		EveningReminderAt string
	}

	Streams struct {
		Inbound       string
		Outbound      string
		ConsumerGroup string
		ConsumerName  string
		BatchSize     int64
	}

	Log struct {
		Level  string
		Format string
	}
}

func Load() (*Config, error) {
	cfg := &Config{}

	cfg.DBEnabled = parseBool(getEnv("DB_ENABLED", "true"), true)
	cfg.DBMigrate = parseBool(getEnv("DB_MIGRATE", "false"), false)
	cfg.DemoChannelUserID = getEnv("DEMO_CHANNEL_USER_ID", "")
	cfg.Database = config.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "hanna",
		SSLMode:  "disable",
		MaxConns: 20,
	}
	cfg.Database.LoadFromEnv("DB")
	if cfg.Database.MaxIdle == 0 {
		cfg.Database.MaxIdle = cfg.Database.MaxConns / 2
	}

	cfg.Redis = config.RedisConfig{Addr: "localhost:6379"}
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTTEnabled = parseBool(getEnv("MQTT_ENABLED", "false"), false)
	cfg.MQTT = config.MQTTConfig{Broker: "tcp://localhost:1883", ClientID: "hanna-engine", QoS: 1}
	cfg.MQTT.LoadFromEnv("MQTT")
	cfg.MQTTSupervisorTopic = getEnv("MQTT_SUPERVISOR_TOPIC", "hanna/supervisor/alerts")

	cfg.Line.APIBase = getEnv("LINE_API_BASE", "https://api.line.me")
	cfg.Line.ChannelToken = getEnv("LINE_CHANNEL_TOKEN", "")
	cfg.Line.SupervisorGroupID = getEnv("LINE_SUPERVISOR_GROUP_ID", "")
	cfg.OutboundMode = strings.ToLower(getEnv("OUTBOUND_MODE", OutboundStream))

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Timezone = getEnv("TIMEZONE", "Asia/Bangkok")

	cfg.Engine.CriticalTaskCap = parseInt(getEnv("CRITICAL_TASK_CAP", "15"), 15)
	cfg.Engine.DedupWindow = parseDuration(getEnv("DEDUP_WINDOW", "4h"), 4*time.Hour)
	cfg.Engine.MessageLogSize = parseInt(getEnv("MESSAGE_LOG_SIZE", "20"), 20)
	cfg.Engine.MessageLogTTL = parseDuration(getEnv("MESSAGE_LOG_TTL", "720h"), 720*time.Hour)
	cfg.Engine.NotifyTimeout = parseDuration(getEnv("NOTIFY_TIMEOUT", "5s"), 5*time.Second)

	cfg.Schedule.SweepAt = getEnv("SWEEP_AT", "10:00")
	cfg.Schedule.MorningCheckInAt = getEnv("MORNING_CHECKIN_AT", "08:00")
	cfg.Schedule.EveningReminderAt = getEnv("EVENING_REMINDER_AT", "19:00")

	cfg.Streams.Inbound = getEnv("INBOUND_STREAM", "hanna:inbound")
	cfg.Streams.Outbound = getEnv("OUTBOUND_STREAM", "hanna:outbound")
	cfg.Streams.ConsumerGroup = getEnv("CONSUMER_GROUP", "hanna-engine")
	cfg.Streams.ConsumerName = getEnv("CONSUMER_NAME", defaultConsumerName())
	cfg.Streams.BatchSize = int64(parseInt(getEnv("CONSUMER_BATCH_SIZE", "10"), 10))

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	c.Location = loc

	switch c.OutboundMode {
	case OutboundLine:
		if c.Line.ChannelToken == "" {
			return fmt.Errorf("LINE_CHANNEL_TOKEN is required when OUTBOUND_MODE=line")
		}
	case OutboundStream:
	default:
		return fmt.Errorf("invalid OUTBOUND_MODE %q, want line or stream", c.OutboundMode)
	}

	if c.Engine.CriticalTaskCap <= 0 {
		return fmt.Errorf("CRITICAL_TASK_CAP must be positive, got %d", c.Engine.CriticalTaskCap)
	}
	if c.Engine.MessageLogSize <= 0 {
		return fmt.Errorf("MESSAGE_LOG_SIZE must be positive, got %d", c.Engine.MessageLogSize)
	}
	return nil
}

func defaultConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "hanna-engine-1"
	}
	return "hanna-engine-" + host
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(s string, defaultValue int) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return defaultValue
	}
	return v
}

func parseBool(s string, defaultValue bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return defaultValue
	}
	return v
}

func parseDuration(s string, defaultValue time.Duration) time.Duration {
	v, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || v <= 0 {
		return defaultValue
	}
	return v
}
