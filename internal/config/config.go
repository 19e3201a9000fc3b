package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	DBFile       string
	BaseURL      string
	APIAddr      string
	CoachEmail   string
	PollInterval time.Duration
	// VAPID keys for the demo backend's webpush delivery. Optional:
	// without them push delivery is disabled, the widget still works.
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string
}

func Load() (*Config, error) {
	pollInterval, err := time.ParseDuration(getEnv("POLL_INTERVAL", "3s"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DBFile:          getEnv("BOOSTCHAT_DB", "boostchat.db"),
		BaseURL:         getEnv("BASE_URL", "http://localhost:8080/api"),
		APIAddr:         getEnv("API_ADDR", ":8080"),
		CoachEmail:      getEnv("COACH_EMAIL", "coach@boostchat.local"),
		PollInterval:    pollInterval,
		VAPIDPublicKey:  os.Getenv("VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("VAPID_PRIVATE_KEY"),
		VAPIDSubject:    getEnv("VAPID_SUBJECT", "mailto:coach@boostchat.local"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.CoachEmail == "" {
		return fmt.Errorf("COACH_EMAIL is required")
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be greater than 0")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
