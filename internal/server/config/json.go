package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dcarleson/delivd/internal/flagx"
	"github.com/dcarleson/delivd/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "30m" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files. After unmarshalling, its fields are copied into the
// runtime Config struct which uses time.Duration.
type JsonConfig struct {
	DatabaseDSN          string         `json:"database_dsn"`
	KeyPassphrase        string         `json:"key_passphrase"`
	S3AccessKey          string         `json:"s3_access_key"`
	S3SecretKey          string         `json:"s3_secret_key"`
	S3Region             string         `json:"s3_region"`
	S3BaseEndpoint       string         `json:"s3_base_endpoint"`
	DefaultDeadlineDays  int            `json:"default_deadline_days"`
	ExpireSweepInterval  timex.Duration `json:"expire_sweep_interval"`
	ArchiveSweepInterval timex.Duration `json:"archive_sweep_interval"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file path is taken from the -c or -config command-line flags; if
// neither is set, no JSON file is loaded. If the file cannot be read or
// contains invalid JSON, the function panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	config.DatabaseDSN = c.DatabaseDSN
	config.KeyPassphrase = c.KeyPassphrase
	config.S3AccessKey = c.S3AccessKey
	config.S3SecretKey = c.S3SecretKey
	config.S3Region = c.S3Region
	config.S3BaseEndpoint = c.S3BaseEndpoint
	config.DefaultDeadlineDays = c.DefaultDeadlineDays
	config.ExpireSweepInterval = time.Duration(c.ExpireSweepInterval.Duration)
	config.ArchiveSweepInterval = time.Duration(c.ArchiveSweepInterval.Duration)
}
