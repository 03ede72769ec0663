package config

import (
	"flag"
	"os"
	"time"

	"github.com/quiksafe/quiksafebot/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-t string   Telegram bot API token
//	-d string   PostgreSQL DSN
//	-m string   base64-encoded deployment master secret
//	-a int      auto-lock threshold, minutes
//	-f int      flow timeout, minutes
//	-l string   log level (debug/info/warn/error)
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-k string   Gemini API key
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components. Duration
// flags are accepted as integers in minutes and then converted to
// time.Duration values.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-t", "-d", "-m", "-a", "-f", "-l", "-u", "-p", "-b", "-g", "-e", "-k"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.TelegramToken, "t", config.TelegramToken, "telegram bot token")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.MasterSecret, "m", config.MasterSecret, "deployment master secret (base64)")

	autoLock := fs.Int("a", int(config.AutoLockThreshold.Minutes()), "auto-lock threshold (in minutes)")
	flowTimeout := fs.Int("f", int(config.FlowTimeout.Minutes()), "flow timeout (in minutes)")

	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.GeminiAPIKey, "k", config.GeminiAPIKey, "Gemini API key")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AutoLockThreshold = time.Duration(*autoLock) * time.Minute
	config.FlowTimeout = time.Duration(*flowTimeout) * time.Minute
}
