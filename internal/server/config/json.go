package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/flasky/internal/flagx"
	"github.com/dmitrijs2005/flasky/internal/timex"
)

// JsonConfig is the on-disk shape of the JSON config file. Durations use
// timex.Duration so both "1h" strings and integer nanoseconds are accepted.
type JsonConfig struct {
	EndpointAddrGRPC     string         `json:"endpoint_addr_grpc"`
	DatabaseDSN          string         `json:"database_dsn"`
	SecretKey            string         `json:"secret_key"`
	AdminEmail           string         `json:"admin_email"`
	ExternalURL          string         `json:"external_url"`
	ConfirmationTokenTTL timex.Duration `json:"confirmation_token_ttl"`
	ResetTokenTTL        timex.Duration `json:"reset_token_ttl"`
	EmailChangeTokenTTL  timex.Duration `json:"email_change_token_ttl"`
	MailServer           string         `json:"mail_server"`
	MailPort             int            `json:"mail_port"`
	MailUseTLS           bool           `json:"mail_use_tls"`
	MailUsername         string         `json:"mail_username"`
	MailPassword         string         `json:"mail_password"`
	MailSender           string         `json:"mail_sender"`
	MailSubjectPrefix    string         `json:"mail_subject_prefix"`
	MailWorkers          int            `json:"mail_workers"`
	MailQueueSize        int            `json:"mail_queue_size"`
	MailSuppressSend     bool           `json:"mail_suppress_send"`
	S3RootUser           string         `json:"s3_root_user"`
	S3RootPassword       string         `json:"s3_root_password"`
	S3Bucket             string         `json:"s3_bucket"`
	S3Region             string         `json:"s3_region"`
	S3BaseEndpoint       string         `json:"s3_base_endpoint"`
	LogBackend           string         `json:"log_backend"`
	Debug                bool           `json:"debug"`
}

// parseJson loads the JSON file named by -c or -config over config. Keys
// missing from the file keep their current values. An unreadable file or
// invalid JSON panics: a misconfigured server must not start.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := toJson(config)
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	fromJson(c, config)
}

func toJson(c *Config) *JsonConfig {
	return &JsonConfig{
		EndpointAddrGRPC:     c.EndpointAddrGRPC,
		DatabaseDSN:          c.DatabaseDSN,
		SecretKey:            c.SecretKey,
		AdminEmail:           c.AdminEmail,
		ExternalURL:          c.ExternalURL,
		ConfirmationTokenTTL: timex.Duration{Duration: c.ConfirmationTokenTTL},
		ResetTokenTTL:        timex.Duration{Duration: c.ResetTokenTTL},
		EmailChangeTokenTTL:  timex.Duration{Duration: c.EmailChangeTokenTTL},
		MailServer:           c.MailServer,
		MailPort:             c.MailPort,
		MailUseTLS:           c.MailUseTLS,
		MailUsername:         c.MailUsername,
		MailPassword:         c.MailPassword,
		MailSender:           c.MailSender,
		MailSubjectPrefix:    c.MailSubjectPrefix,
		MailWorkers:          c.MailWorkers,
		MailQueueSize:        c.MailQueueSize,
		MailSuppressSend:     c.MailSuppressSend,
		S3RootUser:           c.S3RootUser,
		S3RootPassword:       c.S3RootPassword,
		S3Bucket:             c.S3Bucket,
		S3Region:             c.S3Region,
		S3BaseEndpoint:       c.S3BaseEndpoint,
		LogBackend:           c.LogBackend,
		Debug:                c.Debug,
	}
}

func fromJson(j *JsonConfig, c *Config) {
	c.EndpointAddrGRPC = j.EndpointAddrGRPC
	c.DatabaseDSN = j.DatabaseDSN
	c.SecretKey = j.SecretKey
	c.AdminEmail = j.AdminEmail
	c.ExternalURL = j.ExternalURL
	c.ConfirmationTokenTTL = j.ConfirmationTokenTTL.Duration
	c.ResetTokenTTL = j.ResetTokenTTL.Duration
	c.EmailChangeTokenTTL = j.EmailChangeTokenTTL.Duration
	c.MailServer = j.MailServer
	c.MailPort = j.MailPort
	c.MailUseTLS = j.MailUseTLS
	c.MailUsername = j.MailUsername
	c.MailPassword = j.MailPassword
	c.MailSender = j.MailSender
	c.MailSubjectPrefix = j.MailSubjectPrefix
	c.MailWorkers = j.MailWorkers
	c.MailQueueSize = j.MailQueueSize
	c.MailSuppressSend = j.MailSuppressSend
	c.S3RootUser = j.S3RootUser
	c.S3RootPassword = j.S3RootPassword
	c.S3Bucket = j.S3Bucket
	c.S3Region = j.S3Region
	c.S3BaseEndpoint = j.S3BaseEndpoint
	c.LogBackend = j.LogBackend
	c.Debug = j.Debug
}
