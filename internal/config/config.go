package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Telegram
	APIID      int64
	APIHash    string
	BotToken   string
	AdminID    int64
	APIBaseURL string

	// Database
	DatabaseURL string

	// Sweep
	SweepInterval       time.Duration
	InviteSweepInterval time.Duration
	InviteTTL           time.Duration
	WarnLead            time.Duration

	// Cleanup
	ProcessedRetentionDays int

	// Send
	SendRate         float64
	SendBurst        int
	RetryMaxAttempts int

	// Poll
	PollTimeout time.Duration

	// Server
	ServerPort string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	apiID := os.Getenv("API_ID")
	if apiID == "" {
		missing = append(missing, "API_ID")
	}

	cfg.APIHash = os.Getenv("API_HASH")
	if cfg.APIHash == "" {
		missing = append(missing, "API_HASH")
	}

	cfg.BotToken = os.Getenv("BOT_TOKEN")
	if cfg.BotToken == "" {
		missing = append(missing, "BOT_TOKEN")
	}

	adminID := os.Getenv("ADMIN_ID")
	if adminID == "" {
		missing = append(missing, "ADMIN_ID")
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	var err error
	cfg.APIID, err = strconv.ParseInt(apiID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("API_ID must be an integer: %w", err)
	}

	cfg.AdminID, err = strconv.ParseInt(adminID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("ADMIN_ID must be an integer: %w", err)
	}

	// Optional fields with defaults
	cfg.APIBaseURL = getEnvString("API_BASE_URL", "https://api.telegram.org")
	cfg.SweepInterval = getEnvDuration("SWEEP_INTERVAL", 60*time.Second)
	cfg.InviteSweepInterval = getEnvDuration("INVITE_SWEEP_INTERVAL", 600*time.Second)
	cfg.InviteTTL = getEnvDuration("INVITE_TTL", time.Hour)
	cfg.WarnLead = getEnvDuration("WARN_LEAD", 24*time.Hour)
	cfg.ProcessedRetentionDays = getEnvInt("PROCESSED_RETENTION_DAYS", 7)
	cfg.SendRate = getEnvFloat("SEND_RATE", 30)
	cfg.SendBurst = getEnvInt("SEND_BURST", 30)
	cfg.RetryMaxAttempts = getEnvInt("RETRY_MAX_ATTEMPTS", 5)
	cfg.PollTimeout = getEnvDuration("POLL_TIMEOUT", 30*time.Second)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
