package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// parseEnv overlays Config with environment variables, loading a .env file
// from the working directory first when one exists. Real environment
// variables win over .env entries (godotenv does not overwrite).
//
// Recognized variables:
//
//	DELIVD_DATABASE_DSN
//	DELIVD_KEY_PASSPHRASE
//	DELIVD_S3_ACCESS_KEY / DELIVD_S3_SECRET_KEY
//	DELIVD_S3_REGION / DELIVD_S3_ENDPOINT
//	DELIVD_DEFAULT_DEADLINE_DAYS (integer)
//	DELIVD_EXPIRE_SWEEP_INTERVAL / DELIVD_ARCHIVE_SWEEP_INTERVAL
//	  (time.ParseDuration format, e.g. "30m")
func parseEnv(config *Config) {
	_ = godotenv.Load()

	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	setString("DELIVD_DATABASE_DSN", &config.DatabaseDSN)
	setString("DELIVD_KEY_PASSPHRASE", &config.KeyPassphrase)
	setString("DELIVD_S3_ACCESS_KEY", &config.S3AccessKey)
	setString("DELIVD_S3_SECRET_KEY", &config.S3SecretKey)
	setString("DELIVD_S3_REGION", &config.S3Region)
	setString("DELIVD_S3_ENDPOINT", &config.S3BaseEndpoint)

	if v, ok := os.LookupEnv("DELIVD_DEFAULT_DEADLINE_DAYS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			config.DefaultDeadlineDays = n
		}
	}
	if v, ok := os.LookupEnv("DELIVD_EXPIRE_SWEEP_INTERVAL"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			config.ExpireSweepInterval = d
		}
	}
	if v, ok := os.LookupEnv("DELIVD_ARCHIVE_SWEEP_INTERVAL"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			config.ArchiveSweepInterval = d
		}
	}
}
