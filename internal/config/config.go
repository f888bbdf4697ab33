package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	Port            string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Event store. An empty MongoURI selects the in-memory store.
	MongoURI        string
	MongoDatabase   string
	MongoCollection string
	MongoTimeout    time.Duration

	// Model artifact. ModelPath overrides the bundle's model_path when set.
	BundlePath string
	ModelPath  string
	S3         S3Config

	// Presentation of stored timestamps.
	Timezone          string
	PresentationShift time.Duration
	HistoryLimit      int

	// CompatErrors flattens every ingest failure into a 200 {"error": ...} payload.
	CompatErrors bool

	// Sequencer. An empty RedisAddr selects the in-memory sequencer.
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisKeyPrefix string

	// Publisher. Empty KafkaBrokers disables publishing.
	KafkaBrokers   []string
	KafkaTopic     string
	PublishTimeout time.Duration

	Traffic TrafficConfig
}

// S3Config holds object storage credentials used for s3:// artifact paths.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// TrafficConfig controls the synthetic traffic generator.
type TrafficConfig struct {
	DeviceURL   string
	DeviceID    string
	Count       int
	Interval    time.Duration
	Schedule    time.Duration // 0 disables periodic runs
	HTTPTimeout time.Duration
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using process environment", "error", err)
	}
	cfg := &AppConfig{
		Port:            getenvDefault("PORT", "8080"),
		LogLevel:        getenvDefault("LOG_LEVEL", "info"),
		LogFormat:       getenvDefault("LOG_FORMAT", "json"),
		MongoURI:        os.Getenv("MONGO_URI"),
		MongoDatabase:   getenvDefault("MONGO_DATABASE", "SmartUmbrellaDB"),
		MongoCollection: getenvDefault("MONGO_COLLECTION", "predictions"),
		BundlePath:      getenvDefault("BUNDLE_PATH", "rain_predictor.json"),
		ModelPath:       os.Getenv("MODEL_PATH"),
		S3: S3Config{
			Endpoint:  os.Getenv("S3_ENDPOINT"),
			AccessKey: os.Getenv("S3_ACCESS_KEY"),
			SecretKey: os.Getenv("S3_SECRET_KEY"),
			UseSSL:    getenvBool("S3_USE_SSL", false),
		},
		Timezone:       getenvDefault("TIMEZONE", "Asia/Kolkata"),
		HistoryLimit:   getenvInt("HISTORY_LIMIT", 10),
		CompatErrors:   getenvBool("COMPAT_ERRORS", true),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        getenvInt("REDIS_DB", 0),
		RedisKeyPrefix: getenvDefault("REDIS_KEY_PREFIX", "seq:"),
		KafkaBrokers:   parseList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:     getenvDefault("KAFKA_TOPIC", "umbrella-predictions"),
	}

	var err error
	if cfg.ShutdownTimeout, err = getenvDuration("SHUTDOWN_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	if cfg.MongoTimeout, err = getenvDuration("MONGO_TIMEOUT", "5s"); err != nil {
		return nil, err
	}
	if cfg.PresentationShift, err = getenvDuration("PRESENTATION_SHIFT", "5h30m"); err != nil {
		return nil, err
	}
	if cfg.PublishTimeout, err = getenvDuration("PUBLISH_TIMEOUT", "2s"); err != nil {
		return nil, err
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	if cfg.HistoryLimit <= 0 {
		return nil, fmt.Errorf("invalid HISTORY_LIMIT: must be positive")
	}

	traffic, err := loadTraffic()
	if err != nil {
		return nil, err
	}
	cfg.Traffic = traffic

	return cfg, nil
}

func loadTraffic() (TrafficConfig, error) {
	t := TrafficConfig{
		DeviceURL: os.Getenv("DEVICE_URL"),
		DeviceID:  getenvDefault("TRAFFIC_DEVICE_ID", "UMBRELLA_7CFA12B3"),
		Count:     getenvInt("TRAFFIC_COUNT", 5),
	}
	// DEVICE_IP is the legacy way of pointing the generator at a device.
	if t.DeviceURL == "" {
		if ip := os.Getenv("DEVICE_IP"); ip != "" {
			t.DeviceURL = "http://" + ip + ":5000"
		}
	}
	t.DeviceURL = strings.TrimRight(t.DeviceURL, "/")

	var err error
	if t.Interval, err = getenvDuration("TRAFFIC_INTERVAL", "3s"); err != nil {
		return t, err
	}
	if t.Schedule, err = getenvDuration("TRAFFIC_SCHEDULE", "0s"); err != nil {
		return t, err
	}
	if t.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "10s"); err != nil {
		return t, err
	}
	if t.Count <= 0 {
		return t, fmt.Errorf("invalid TRAFFIC_COUNT: must be positive")
	}
	return t, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return d, nil
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
