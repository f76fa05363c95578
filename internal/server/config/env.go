package config

import (
	"os"
	"strconv"
	"time"

	"github.com/dmitrijs2005/flasky/internal/flagx"
	"github.com/joho/godotenv"
)

// loadDotEnv is a test seam for godotenv.Load.
var loadDotEnv = godotenv.Load

// parseEnv overlays values from the process environment. When a dotenv
// file is named with -ef/-env-file it is loaded first; otherwise a ".env"
// in the working directory is loaded if present. Variables already set in
// the environment win over the file.
//
// Recognised variables:
//
//	FLASKY_GRPC_ADDR, DATABASE_URL, SECRET_KEY, FLASKY_ADMIN, FLASKY_EXTERNAL_URL,
//	FLASKY_CONFIRM_TTL, FLASKY_RESET_TTL, FLASKY_EMAIL_CHANGE_TTL,
//	MAIL_SERVER, MAIL_PORT, MAIL_USE_TLS, MAIL_USERNAME, MAIL_PASSWORD,
//	FLASKY_MAIL_SENDER, FLASKY_MAIL_SUBJECT_PREFIX, FLASKY_MAIL_WORKERS,
//	FLASKY_MAIL_QUEUE_SIZE, MAIL_SUPPRESS_SEND,
//	S3_ROOT_USER, S3_ROOT_PASSWORD, S3_BUCKET, S3_REGION, S3_BASE_ENDPOINT,
//	FLASKY_LOG_BACKEND, FLASKY_DEBUG.
//
// Values that fail to parse are ignored.
func parseEnv(config *Config) {
	if file := flagx.EnvFileFlags(); file != "" {
		if err := loadDotEnv(file); err != nil {
			panic(err)
		}
	} else {
		_ = loadDotEnv()
	}

	envString(&config.EndpointAddrGRPC, "FLASKY_GRPC_ADDR")
	envString(&config.DatabaseDSN, "DATABASE_URL")
	envString(&config.SecretKey, "SECRET_KEY")
	envString(&config.AdminEmail, "FLASKY_ADMIN")
	envString(&config.ExternalURL, "FLASKY_EXTERNAL_URL")

	envDuration(&config.ConfirmationTokenTTL, "FLASKY_CONFIRM_TTL")
	envDuration(&config.ResetTokenTTL, "FLASKY_RESET_TTL")
	envDuration(&config.EmailChangeTokenTTL, "FLASKY_EMAIL_CHANGE_TTL")

	envString(&config.MailServer, "MAIL_SERVER")
	envInt(&config.MailPort, "MAIL_PORT")
	envBool(&config.MailUseTLS, "MAIL_USE_TLS")
	envString(&config.MailUsername, "MAIL_USERNAME")
	envString(&config.MailPassword, "MAIL_PASSWORD")
	envString(&config.MailSender, "FLASKY_MAIL_SENDER")
	envString(&config.MailSubjectPrefix, "FLASKY_MAIL_SUBJECT_PREFIX")
	envInt(&config.MailWorkers, "FLASKY_MAIL_WORKERS")
	envInt(&config.MailQueueSize, "FLASKY_MAIL_QUEUE_SIZE")
	envBool(&config.MailSuppressSend, "MAIL_SUPPRESS_SEND")

	envString(&config.S3RootUser, "S3_ROOT_USER")
	envString(&config.S3RootPassword, "S3_ROOT_PASSWORD")
	envString(&config.S3Bucket, "S3_BUCKET")
	envString(&config.S3Region, "S3_REGION")
	envString(&config.S3BaseEndpoint, "S3_BASE_ENDPOINT")

	envString(&config.LogBackend, "FLASKY_LOG_BACKEND")
	envBool(&config.Debug, "FLASKY_DEBUG")
}

func envString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envDuration(dst *time.Duration, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
