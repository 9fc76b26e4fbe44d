package config

import (
	"flag"
	"os"
	"time"

	"github.com/dcarleson/delivd/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   PostgreSQL DSN
//	-k string   passphrase protecting project private keys
//	-u string   S3 access key
//	-p string   S3 secret key
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-l int      default availability deadline, days
//	-x int      expire sweep interval, minutes
//	-y int      archive sweep interval, minutes
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes
//     using flagx.FilterArgs, avoiding collisions with other components.
//   - Interval flags are accepted as integers in minutes and then converted
//     to time.Duration values.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-k", "-u", "-p", "-g", "-e", "-l", "-x", "-y"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.KeyPassphrase, "k", config.KeyPassphrase, "project key passphrase")
	fs.StringVar(&config.S3AccessKey, "u", config.S3AccessKey, "S3 access key")
	fs.StringVar(&config.S3SecretKey, "p", config.S3SecretKey, "S3 secret key")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.IntVar(&config.DefaultDeadlineDays, "l", config.DefaultDeadlineDays, "default deadline (in days)")

	expireSweepInterval := fs.Int("x", int(config.ExpireSweepInterval.Minutes()), "expire sweep interval (in minutes)")
	archiveSweepInterval := fs.Int("y", int(config.ArchiveSweepInterval.Minutes()), "archive sweep interval (in minutes)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.ExpireSweepInterval = time.Duration(*expireSweepInterval) * time.Minute
	config.ArchiveSweepInterval = time.Duration(*archiveSweepInterval) * time.Minute
}
