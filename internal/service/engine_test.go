package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"hanna-engine/internal/config"
	"hanna-engine/internal/models"
	"hanna-engine/internal/notifier"
)

func memoryConfig(t *testing.T, redisAddr string) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.DBEnabled = false
	cfg.DemoChannelUserID = "U-demo"
	cfg.Redis.Addr = redisAddr
	cfg.OutboundMode = config.OutboundStream
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.Location = time.UTC
	cfg.Engine.CriticalTaskCap = 15
	cfg.Engine.DedupWindow = 4 * time.Hour
	cfg.Engine.MessageLogSize = 20
	cfg.Engine.MessageLogTTL = time.Hour
	cfg.Engine.NotifyTimeout = time.Second
	cfg.Schedule.SweepAt = "10:00"
	cfg.Schedule.MorningCheckInAt = "08:00"
	cfg.Schedule.EveningReminderAt = "19:00"
	cfg.Streams.Inbound = "hanna:inbound"
	cfg.Streams.Outbound = "hanna:outbound"
	cfg.Streams.ConsumerGroup = "hanna-engine"
	cfg.Streams.ConsumerName = "test"
	return cfg
}

func TestNewEngineService_MemoryMode(t *testing.T) {
	mr := miniredis.RunT(t)
	svc, err := NewEngineService(memoryConfig(t, mr.Addr()), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(svc.closeClients)

	ctx := context.Background()
	msg, err := svc.Flow.Start(ctx, "demo-patient", "")
	require.NoError(t, err)
	assert.Equal(t, models.MessageTypeButtons, msg.Type)

	entries, err := mr.Stream("hanna:outbound")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	var data string
	for i := 0; i+1 < len(entries[0].Values); i += 2 {
		if entries[0].Values[i] == "data" {
			data = entries[0].Values[i+1]
		}
	}
	var out notifier.OutboundEvent
	require.NoError(t, json.Unmarshal([]byte(data), &out))
	assert.Equal(t, "U-demo", out.To)

	history, err := svc.Outbox.History(ctx, "demo-patient", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.DirectionOutbound, history[0].Direction)
}

func TestNewEngineService_BadSchedule(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := memoryConfig(t, mr.Addr())
	cfg.Schedule.SweepAt = "25:00"

	_, err := NewEngineService(cfg, zap.NewNop())
	assert.ErrorContains(t, err, "SWEEP_AT")
}

func TestNewEngineService_RedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewEngineService(memoryConfig(t, addr), zap.NewNop())
	assert.ErrorContains(t, err, "redis")
}
