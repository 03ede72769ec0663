package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/quiksafe/quiksafebot/internal/flagx"
	"github.com/quiksafe/quiksafebot/internal/timex"
)

// JsonConfig is an intermediate DTO used only for reading JSON
// configuration files. It uses timex.Duration for interval fields, which
// allows parsing both string values such as "10m" and integer nanoseconds.
// Only keys present in the file override the runtime Config; absent keys
// keep the values of the previous layers.
type JsonConfig struct {
	TelegramToken     string         `json:"telegram_token"`
	DatabaseDSN       string         `json:"database_dsn"`
	MasterSecret      string         `json:"master_secret"`
	AutoLockThreshold timex.Duration `json:"auto_lock_threshold"`
	FlowTimeout       timex.Duration `json:"flow_timeout"`
	SweepInterval     timex.Duration `json:"sweep_interval"`
	LogLevel          string         `json:"log_level"`
	S3RootUser        string         `json:"s3_root_user"`
	S3RootPassword    string         `json:"s3_root_password"`
	S3Bucket          string         `json:"s3_bucket"`
	S3Region          string         `json:"s3_region"`
	S3BaseEndpoint    string         `json:"s3_base_endpoint"`
	GeminiAPIKey      string         `json:"gemini_api_key"`
	GeminiModel       string         `json:"gemini_model"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance. The file path comes from the -c or -config flags; when
// neither is set, no JSON file is loaded. An unreadable or invalid file
// panics, start-up must not continue on a half-applied config.
func parseJson(config *Config) {

	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	if c.TelegramToken != "" {
		config.TelegramToken = c.TelegramToken
	}
	if c.DatabaseDSN != "" {
		config.DatabaseDSN = c.DatabaseDSN
	}
	if c.MasterSecret != "" {
		config.MasterSecret = c.MasterSecret
	}
	if c.AutoLockThreshold.Duration != 0 {
		config.AutoLockThreshold = time.Duration(c.AutoLockThreshold.Duration)
	}
	if c.FlowTimeout.Duration != 0 {
		config.FlowTimeout = time.Duration(c.FlowTimeout.Duration)
	}
	if c.SweepInterval.Duration != 0 {
		config.SweepInterval = time.Duration(c.SweepInterval.Duration)
	}
	if c.LogLevel != "" {
		config.LogLevel = c.LogLevel
	}
	if c.S3RootUser != "" {
		config.S3RootUser = c.S3RootUser
	}
	if c.S3RootPassword != "" {
		config.S3RootPassword = c.S3RootPassword
	}
	if c.S3Bucket != "" {
		config.S3Bucket = c.S3Bucket
	}
	if c.S3Region != "" {
		config.S3Region = c.S3Region
	}
	if c.S3BaseEndpoint != "" {
		config.S3BaseEndpoint = c.S3BaseEndpoint
	}
	if c.GeminiAPIKey != "" {
		config.GeminiAPIKey = c.GeminiAPIKey
	}
	if c.GeminiModel != "" {
		config.GeminiModel = c.GeminiModel
	}
}
