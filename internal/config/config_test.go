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

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Empty(t, cfg.MongoURI)
	assert.Equal(t, "SmartUmbrellaDB", cfg.MongoDatabase)
	assert.Equal(t, "predictions", cfg.MongoCollection)
	assert.Equal(t, "rain_predictor.json", cfg.BundlePath)
	assert.Equal(t, "Asia/Kolkata", cfg.Timezone)
	assert.Equal(t, 5*time.Hour+30*time.Minute, cfg.PresentationShift)
	assert.Equal(t, 10, cfg.HistoryLimit)
	assert.True(t, cfg.CompatErrors)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, 2*time.Second, cfg.PublishTimeout)
	assert.Equal(t, "seq:", cfg.RedisKeyPrefix)
	assert.Equal(t, "UMBRELLA_7CFA12B3", cfg.Traffic.DeviceID)
	assert.Equal(t, 5, cfg.Traffic.Count)
	assert.Equal(t, 3*time.Second, cfg.Traffic.Interval)
	assert.Zero(t, cfg.Traffic.Schedule)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("PRESENTATION_SHIFT", "0s")
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("HISTORY_LIMIT", "25")
	t.Setenv("COMPAT_ERRORS", "false")
	t.Setenv("KAFKA_BROKERS", "broker1:9092, broker2:9092")
	t.Setenv("PUBLISH_TIMEOUT", "750ms")
	t.Setenv("DEVICE_URL", "http://umbrella.local:5000/")
	t.Setenv("TRAFFIC_SCHEDULE", "15m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "mongodb://localhost:27017", cfg.MongoURI)
	assert.Zero(t, cfg.PresentationShift)
	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, 25, cfg.HistoryLimit)
	assert.False(t, cfg.CompatErrors)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 750*time.Millisecond, cfg.PublishTimeout)
	assert.Equal(t, "http://umbrella.local:5000", cfg.Traffic.DeviceURL)
	assert.Equal(t, 15*time.Minute, cfg.Traffic.Schedule)
}

func TestLoad_LegacyDeviceIP(t *testing.T) {
	t.Setenv("DEVICE_IP", "192.168.1.40")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://192.168.1.40:5000", cfg.Traffic.DeviceURL)
}

func TestLoad_InvalidPresentationShift(t *testing.T) {
	t.Setenv("PRESENTATION_SHIFT", "five hours")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PRESENTATION_SHIFT")
}

func TestLoad_InvalidTimezone(t *testing.T) {
	t.Setenv("TIMEZONE", "Mars/Olympus_Mons")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TIMEZONE")
}

func TestLoad_NonPositiveHistoryLimit(t *testing.T) {
	t.Setenv("HISTORY_LIMIT", "0")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HISTORY_LIMIT")
}

func TestLoad_NegativeTrafficInterval(t *testing.T) {
	t.Setenv("TRAFFIC_INTERVAL", "-1s")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TRAFFIC_INTERVAL")
}
