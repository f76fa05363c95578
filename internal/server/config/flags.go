package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/flasky/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-a string      gRPC health endpoint bind address (e.g., ":50051")
//	-d string      PostgreSQL DSN
//	-s string      token signing secret
//	-admin string  administrator email
//	-url string    external base URL for email links
//	-t int         confirmation token validity, minutes
//	-r int         password reset token validity, minutes
//	-m int         email change token validity, minutes
//	-mail string   SMTP server host
//	-mail-port int SMTP port
//	-b string      S3 bucket name
//	-g string      S3 region
//	-e string      S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-log string    log backend: slog or zap
//	-debug         debug logging (use -debug=true when other flags follow)
//
// Only the flags above are kept from os.Args (see flagx.FilterArgs), so the
// manage tool can put its own subcommands and flags alongside them.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-d", "-s", "-admin", "-url", "-t", "-r", "-m",
		"-mail", "-mail-port", "-b", "-g", "-e", "-log", "-debug",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port of the gRPC health endpoint")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.AdminEmail, "admin", config.AdminEmail, "administrator email")
	fs.StringVar(&config.ExternalURL, "url", config.ExternalURL, "external base URL")

	confirmTTL := fs.Int("t", int(config.ConfirmationTokenTTL.Minutes()), "confirmation token validity (in minutes)")
	resetTTL := fs.Int("r", int(config.ResetTokenTTL.Minutes()), "password reset token validity (in minutes)")
	emailChangeTTL := fs.Int("m", int(config.EmailChangeTokenTTL.Minutes()), "email change token validity (in minutes)")

	fs.StringVar(&config.MailServer, "mail", config.MailServer, "SMTP server")
	fs.IntVar(&config.MailPort, "mail-port", config.MailPort, "SMTP port")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 avatar bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.LogBackend, "log", config.LogBackend, "log backend (slog|zap)")
	fs.BoolVar(&config.Debug, "debug", config.Debug, "debug logging")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	// minute flags only override when given, so finer JSON/env values survive
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "t":
			config.ConfirmationTokenTTL = time.Duration(*confirmTTL) * time.Minute
		case "r":
			config.ResetTokenTTL = time.Duration(*resetTTL) * time.Minute
		case "m":
			config.EmailChangeTokenTTL = time.Duration(*emailChangeTTL) * time.Minute
		}
	})
}
