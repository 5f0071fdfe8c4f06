package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
)

type AppConfig struct {
	ListenAddr string

	RedisURL string

	ChallengeDir string

	// Object store (S3/R2 compatible) for challenge artifacts.
	StoreAccountID    string
	StoreAccessKey    string
	StoreAccessSecret string
	StoreBucket       string
	StoreEndpoint     string
	StoreCDNBaseURL   string

	// Optional directory of YAML overrides for user-facing messages.
	MessageDir string

	QueueStatusEnabled bool
	EgressBuffer       int
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:         ":5001",
		ChallengeDir:       "challenges",
		QueueStatusEnabled: true,
		EgressBuffer:       32,
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))

	if v := strings.TrimSpace(os.Getenv("CHALLENGE_DIR")); v != "" {
		cfg.ChallengeDir = v
	}

	cfg.StoreAccountID = strings.TrimSpace(os.Getenv("STORE_ACCOUNT_ID"))
	cfg.StoreAccessKey = strings.TrimSpace(os.Getenv("STORE_ACCESS_KEY_ID"))
	cfg.StoreAccessSecret = strings.TrimSpace(os.Getenv("STORE_ACCESS_KEY_SECRET"))
	cfg.StoreBucket = strings.TrimSpace(os.Getenv("STORE_BUCKET"))
	cfg.StoreEndpoint = strings.TrimSpace(os.Getenv("STORE_ENDPOINT"))
	cfg.StoreCDNBaseURL = strings.TrimSpace(os.Getenv("STORE_CDN_BASE_URL"))

	cfg.MessageDir = strings.TrimSpace(os.Getenv("MESSAGE_DIR"))

	if v := strings.TrimSpace(os.Getenv("QUEUE_STATUS_ENABLED")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.QueueStatusEnabled = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("EGRESS_BUFFER")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.EgressBuffer = n
		}
	}

	var missing []string
	if cfg.RedisURL == "" {
		missing = append(missing, "REDIS_URL")
	}
	if cfg.StoreBucket == "" {
		missing = append(missing, "STORE_BUCKET")
	}
	if cfg.StoreAccessKey == "" {
		missing = append(missing, "STORE_ACCESS_KEY_ID")
	}
	if cfg.StoreAccessSecret == "" {
		missing = append(missing, "STORE_ACCESS_KEY_SECRET")
	}
	if len(missing) > 0 {
		return nil, errors.New("missing required environment: " + strings.Join(missing, ", "))
	}

	return cfg, nil
}
