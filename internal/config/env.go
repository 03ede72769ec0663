package config

import (
	"time"

	"github.com/caarlos0/env"
)

// envConfig mirrors Config with environment tags. Only variables that are
// actually set override the value from the previous layers.
type envConfig struct {
	TelegramToken     string        `env:"TELEGRAM_TOKEN"`
	DatabaseDSN       string        `env:"DATABASE_DSN"`
	MasterSecret      string        `env:"MASTER_SECRET"`
	AutoLockThreshold time.Duration `env:"AUTO_LOCK_THRESHOLD"`
	FlowTimeout       time.Duration `env:"FLOW_TIMEOUT"`
	SweepInterval     time.Duration `env:"SWEEP_INTERVAL"`
	LogLevel          string        `env:"LOG_LEVEL"`
	S3RootUser        string        `env:"S3_ROOT_USER"`
	S3RootPassword    string        `env:"S3_ROOT_PASSWORD"`
	S3Bucket          string        `env:"S3_BUCKET"`
	S3Region          string        `env:"S3_REGION"`
	S3BaseEndpoint    string        `env:"S3_BASE_ENDPOINT"`
	GeminiAPIKey      string        `env:"GEMINI_API_KEY"`
	GeminiModel       string        `env:"GEMINI_MODEL"`
}

func parseEnv(config *Config) error {
	e := &envConfig{}
	if err := env.Parse(e); err != nil {
		return err
	}

	if e.TelegramToken != "" {
		config.TelegramToken = e.TelegramToken
	}
	if e.DatabaseDSN != "" {
		config.DatabaseDSN = e.DatabaseDSN
	}
	if e.MasterSecret != "" {
		config.MasterSecret = e.MasterSecret
	}
	if e.AutoLockThreshold != 0 {
		config.AutoLockThreshold = e.AutoLockThreshold
	}
	if e.FlowTimeout != 0 {
		config.FlowTimeout = e.FlowTimeout
	}
	if e.SweepInterval != 0 {
		config.SweepInterval = e.SweepInterval
	}
	if e.LogLevel != "" {
		config.LogLevel = e.LogLevel
	}
	if e.S3RootUser != "" {
		config.S3RootUser = e.S3RootUser
	}
	if e.S3RootPassword != "" {
		config.S3RootPassword = e.S3RootPassword
	}
	if e.S3Bucket != "" {
		config.S3Bucket = e.S3Bucket
	}
	if e.S3Region != "" {
		config.S3Region = e.S3Region
	}
	if e.S3BaseEndpoint != "" {
		config.S3BaseEndpoint = e.S3BaseEndpoint
	}
	if e.GeminiAPIKey != "" {
		config.GeminiAPIKey = e.GeminiAPIKey
	}
	if e.GeminiModel != "" {
		config.GeminiModel = e.GeminiModel
	}
	return nil
}
