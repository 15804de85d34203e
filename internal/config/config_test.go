package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.DBEnabled)
	assert.False(t, cfg.DBMigrate)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "hanna", cfg.Database.Database)
	assert.Equal(t, 10, cfg.Database.MaxIdle)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.False(t, cfg.MQTTEnabled)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
	assert.Equal(t, OutboundStream, cfg.OutboundMode)
	assert.Equal(t, "Asia/Bangkok", cfg.Location.String())
	assert.Equal(t, 15, cfg.Engine.CriticalTaskCap)
	assert.Equal(t, 4*time.Hour, cfg.Engine.DedupWindow)
	assert.Equal(t, 20, cfg.Engine.MessageLogSize)
	assert.Equal(t, 5*time.Second, cfg.Engine.NotifyTimeout)
	assert.Equal(t, "10:00", cfg.Schedule.SweepAt)
	assert.Equal(t, "08:00", cfg.Schedule.MorningCheckInAt)
	assert.Equal(t, "19:00", cfg.Schedule.EveningReminderAt)
	assert.Equal(t, "hanna:inbound", cfg.Streams.Inbound)
	assert.Equal(t, int64(10), cfg.Streams.BatchSize)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DB_ENABLED", "false")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_MAX_CONNS", "8")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("MQTT_QOS", "2")
	t.Setenv("CRITICAL_TASK_CAP", "3")
	t.Setenv("DEDUP_WINDOW", "90m")
	t.Setenv("NOTIFY_TIMEOUT", "soon")
	t.Setenv("OUTBOUND_MODE", "LINE")
	t.Setenv("LINE_CHANNEL_TOKEN", "tok")
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("MQTT_ENABLED", "1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.DBEnabled)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, 4, cfg.Database.MaxIdle)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, byte(2), cfg.MQTT.QoS)
	assert.Equal(t, 3, cfg.Engine.CriticalTaskCap)
	assert.Equal(t, 90*time.Minute, cfg.Engine.DedupWindow)
	assert.Equal(t, 5*time.Second, cfg.Engine.NotifyTimeout)
	assert.Equal(t, OutboundLine, cfg.OutboundMode)
	assert.Equal(t, time.UTC, cfg.Location)
	assert.True(t, cfg.MQTTEnabled)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad timezone", map[string]string{"TIMEZONE": "Mars/Olympus"}},
		{"line without token", map[string]string{"OUTBOUND_MODE": "line"}},
		{"unknown mode", map[string]string{"OUTBOUND_MODE": "sms"}},
		{"zero cap", map[string]string{"CRITICAL_TASK_CAP": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
