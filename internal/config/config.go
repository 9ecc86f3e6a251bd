// Package config reads service settings from the environment and the
// operator's watch-list file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/couchcryptid/noaa-alert-relay/internal/domain"
)

// defaultUserAgent identifies the relay to the NWS API when the operator has
// not configured one. The API rejects anonymous clients.
const defaultUserAgent = "noaa-alert-relay/1.0 (https://github.com/couchcryptid/noaa-alert-relay)"

// testCounty is appended to the watch-list when TEST_MESSAGE is enabled.
// NWS issues routine test alerts against MDC031.
var testCounty = domain.County{UGC: "MDC031", Name: "TEST MESSAGES", State: "NA"}

// TemplateOptions are the presentation toggles handed to the detail-page
// renderer.
type TemplateOptions struct {
	ShowEventInfo           bool
	ShowExpiration          bool
	ConditionalInstructions bool
	ColorCoding             bool
	ShowMapLink             bool
	MobileResponsive        bool
	ShowSocialSharing       bool
}

// Config holds all service settings, populated from environment variables.
type Config struct {
	NOAAAPIURL     string
	PushoverAPIURL string
	PushoverToken  string
	PushoverUser   string
	UserAgent      string
	BaseURL        string // optional host for rendered detail pages

	CountiesFile  string
	IgnoredEvents []string
	PushDisabled  bool
	TestMessage   bool

	DBPath    string
	OutputDir string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	FetchInterval   time.Duration
	CleanupInterval time.Duration
	VacuumInterval  time.Duration

	HTTPTimeout time.Duration

	Template TemplateOptions

	// Matched-alert export (feature-flagged via KAFKA_ENABLED).
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := durationOrDefault("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	fetchInterval, err := durationOrDefault("FETCH_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	cleanupInterval, err := durationOrDefault("CLEANUP_INTERVAL", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	vacuumInterval, err := durationOrDefault("VACUUM_INTERVAL", 168*time.Hour)
	if err != nil {
		return nil, err
	}
	httpTimeout, err := durationOrDefault("HTTP_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		NOAAAPIURL:     envOrDefault("NOAA_API_URL", "https://api.weather.gov/alerts"),
		PushoverAPIURL: envOrDefault("PUSHOVER_API_URL", "https://api.pushover.net/1/messages.json"),
		PushoverToken:  os.Getenv("PUSHOVER_TOKEN"),
		PushoverUser:   os.Getenv("PUSHOVER_USER"),
		UserAgent:      envOrDefault("USER_AGENT", defaultUserAgent),
		BaseURL:        strings.TrimSuffix(os.Getenv("BASE_URL"), "/"),

		CountiesFile:  envOrDefault("COUNTIES_FILE", "counties.json"),
		IgnoredEvents: splitList(os.Getenv("IGNORED_EVENTS")),
		PushDisabled:  boolEnv("PUSH_DISABLED"),
		TestMessage:   boolEnv("TEST_MESSAGE"),

		DBPath:    envOrDefault("DB_PATH", "data/alerts.db"),
		OutputDir: envOrDefault("OUTPUT_DIR", "output"),

		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		FetchInterval:   fetchInterval,
		CleanupInterval: cleanupInterval,
		VacuumInterval:  vacuumInterval,
		HTTPTimeout:     httpTimeout,

		Template: TemplateOptions{
			ShowEventInfo:           boolEnv("TEMPLATE_SHOW_EVENT_INFO"),
			ShowExpiration:          boolEnv("TEMPLATE_SHOW_EXPIRATION"),
			ConditionalInstructions: boolEnv("TEMPLATE_CONDITIONAL_INSTRUCTIONS"),
			ColorCoding:             boolEnv("TEMPLATE_COLOR_CODING"),
			ShowMapLink:             boolEnv("TEMPLATE_SHOW_MAP_LINK"),
			MobileResponsive:        boolEnv("TEMPLATE_MOBILE_RESPONSIVE"),
			ShowSocialSharing:       boolEnv("TEMPLATE_SHOW_SOCIAL_SHARING"),
		},

		KafkaEnabled: boolEnv("KAFKA_ENABLED"),
		KafkaBrokers: splitList(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   envOrDefault("KAFKA_TOPIC", "matched-weather-alerts"),
	}

	if !cfg.PushDisabled {
		if cfg.PushoverToken == "" {
			return nil, errors.New("PUSHOVER_TOKEN is required unless PUSH_DISABLED is true")
		}
		if cfg.PushoverUser == "" {
			return nil, errors.New("PUSHOVER_USER is required unless PUSH_DISABLED is true")
		}
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is empty")
		}
		if cfg.KafkaTopic == "" {
			return nil, errors.New("KAFKA_ENABLED is true but KAFKA_TOPIC is empty")
		}
	}

	return cfg, nil
}

// Counties loads the watch-list from the configured file. Entries with
// malformed codes are logged as warnings and kept. When test messages are
// enabled, the MDC031 test county is appended unless already watched.
func (c *Config) Counties(logger *slog.Logger) ([]domain.County, error) {
	data, err := os.ReadFile(c.CountiesFile)
	if err != nil {
		return nil, fmt.Errorf("read counties file: %w", err)
	}

	var counties []domain.County
	if err := json.Unmarshal(data, &counties); err != nil {
		return nil, fmt.Errorf("parse counties file %s: %w", c.CountiesFile, err)
	}

	for _, county := range counties {
		if err := county.Validate(); err != nil {
			logger.Warn("county validation warning", "error", err)
		}
	}

	if c.TestMessage && !watchesUGC(counties, testCounty.UGC) {
		counties = append(counties, testCounty)
		logger.Info("test messages enabled", "ugc", testCounty.UGC)
	}

	return counties, nil
}

func watchesUGC(counties []domain.County, ugc string) bool {
	for _, c := range counties {
		if c.UGC == ugc {
			return true
		}
	}
	return false
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func boolEnv(key string) bool {
	return os.Getenv(key) == "true"
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func durationOrDefault(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return d, nil
}
