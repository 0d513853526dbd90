/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Database backend selection for the action journal.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from an optional YAML
// file and environment variables. Environment values win over the file.
type Config struct {
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"log_level"`

	// Remote reporting site
	LoginURL   string `yaml:"login_url"`
	StaffID    string `yaml:"staff_id"`
	Password   string `yaml:"password"`
	TenantText string `yaml:"tenant_text"`
	Timezone   string `yaml:"timezone"` // IANA name or "Local"

	// Shift timing
	TargetMinute         int           `yaml:"target_minute"`
	ToleranceMinutes     int           `yaml:"tolerance_minutes"`
	ClockOutHour         int           `yaml:"clock_out_hour"`
	ClockOutMinute       int           `yaml:"clock_out_minute"`
	ClockOutRolloverHour int           `yaml:"clock_out_rollover_hour"`
	MaxRetries           int           `yaml:"max_retries"`
	StepTimeout          time.Duration `yaml:"step_timeout"`
	RetryBackoff         time.Duration `yaml:"retry_backoff"`
	MarkerPollInterval   time.Duration `yaml:"marker_poll_interval"`

	// Browser
	BrowserBin string `yaml:"browser_bin"` // empty lets rod download or locate a browser
	Headless   bool   `yaml:"headless"`

	// LINE Messaging API push
	LINEChannelAccessToken string `yaml:"line_channel_access_token"`
	LINEUserID             string `yaml:"line_user_id"`
	LINEEndpoint           string `yaml:"line_endpoint"`

	// SMTP alerts
	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPUsername string `yaml:"smtp_username"`
	SMTPPassword string `yaml:"smtp_password"`
	SMTPFrom     string `yaml:"smtp_from"`
	SMTPTo       string `yaml:"smtp_to"` // comma separated

	// NATS alerts
	NATSURL     string `yaml:"nats_url"`
	NATSSubject string `yaml:"nats_subject"`

	// Generic webhook alerts
	WebhookURL    string `yaml:"webhook_url"`
	WebhookSecret string `yaml:"webhook_secret"`

	// Action journal
	DBBackend DatabaseBackend `yaml:"db_backend"`
	DBDSN     string          `yaml:"db_dsn"`

	// Failure evidence (screenshots)
	EvidenceDir       string `yaml:"evidence_dir"`
	S3Bucket          string `yaml:"s3_bucket"`
	S3Region          string `yaml:"s3_region"`
	S3Endpoint        string `yaml:"s3_endpoint"` // For S3-compatible services (MinIO, etc.)
	S3AccessKeyID     string `yaml:"s3_access_key_id"`
	S3SecretAccessKey string `yaml:"s3_secret_access_key"`
	S3UsePathStyle    bool   `yaml:"s3_use_path_style"`
	S3Prefix          string `yaml:"s3_prefix"`

	// Single-run lock
	LockEnabled   bool          `yaml:"lock_enabled"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	LockTTL       time.Duration `yaml:"lock_ttl"`

	// Status server
	StatusBind string `yaml:"status_bind"`

	// Tracing configuration
	TracingEnabled    bool    `yaml:"tracing_enabled"`
	OTLPEndpoint      string  `yaml:"otlp_endpoint"`
	TracingSampleRate float64 `yaml:"tracing_sample_rate"`

	LegacyEnvWarnings []string `yaml:"-"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Environment:          "production",
		LogLevel:             "info",
		LoginURL:             "https://www.d-round.co.jp/adams/",
		TenantText:           "C",
		Timezone:             "Local",
		TargetMinute:         20,
		ToleranceMinutes:     3,
		ClockOutHour:         9,
		ClockOutMinute:       5,
		ClockOutRolloverHour: 10,
		MaxRetries:           3,
		StepTimeout:          60 * time.Second,
		RetryBackoff:         5 * time.Second,
		MarkerPollInterval:   500 * time.Millisecond,
		Headless:             true,
		LINEEndpoint:         "https://api.line.me/v2/bot/message/push",
		SMTPPort:             587,
		NATSSubject:          "nightshift.alerts",
		DBBackend:            DatabaseSQLite,
		S3Region:             "us-east-1",
		S3Prefix:             "evidence/",
		RedisAddr:            "localhost:6379",
		LockTTL:              30 * time.Second,
		OTLPEndpoint:         "localhost:4317",
		TracingSampleRate:    1.0,
	}
}

// Load reads the optional YAML file named by NIGHTSHIFT_CONFIG_FILE, then
// applies environment variables. It does not validate; call Validate
// before starting a run.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := getEnvAny([]string{"NIGHTSHIFT_CONFIG_FILE"}, ""); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.Environment = getEnvAny([]string{"NIGHTSHIFT_ENV"}, cfg.Environment)
	cfg.LogLevel = getEnvAny([]string{"NIGHTSHIFT_LOG_LEVEL"}, cfg.LogLevel)

	cfg.LoginURL = getEnvAny([]string{"NIGHTSHIFT_LOGIN_URL", "LOGIN_URL"}, cfg.LoginURL)
	cfg.StaffID = getEnvAny([]string{"NIGHTSHIFT_STAFF_ID", "STAFF_ID"}, cfg.StaffID)
	cfg.Password = getEnvAny([]string{"NIGHTSHIFT_PASSWORD", "PASSWORD"}, cfg.Password)
	cfg.TenantText = getEnvAny([]string{"NIGHTSHIFT_TENANT_TEXT", "TENANT_TEXT"}, cfg.TenantText)
	cfg.Timezone = getEnvAny([]string{"NIGHTSHIFT_TIMEZONE", "TZ"}, cfg.Timezone)

	cfg.TargetMinute = getEnvIntAny([]string{"NIGHTSHIFT_TARGET_MINUTE"}, cfg.TargetMinute)
	cfg.ToleranceMinutes = getEnvIntAny([]string{"NIGHTSHIFT_TOLERANCE_MINUTES"}, cfg.ToleranceMinutes)
	cfg.ClockOutHour = getEnvIntAny([]string{"NIGHTSHIFT_CLOCK_OUT_HOUR"}, cfg.ClockOutHour)
	cfg.ClockOutMinute = getEnvIntAny([]string{"NIGHTSHIFT_CLOCK_OUT_MINUTE"}, cfg.ClockOutMinute)
	cfg.ClockOutRolloverHour = getEnvIntAny([]string{"NIGHTSHIFT_CLOCK_OUT_ROLLOVER_HOUR"}, cfg.ClockOutRolloverHour)
	cfg.MaxRetries = getEnvIntAny([]string{"NIGHTSHIFT_MAX_RETRIES"}, cfg.MaxRetries)
	cfg.StepTimeout = getEnvDurationAny([]string{"NIGHTSHIFT_STEP_TIMEOUT"}, cfg.StepTimeout)
	cfg.RetryBackoff = getEnvDurationAny([]string{"NIGHTSHIFT_RETRY_BACKOFF"}, cfg.RetryBackoff)
	cfg.MarkerPollInterval = getEnvDurationAny([]string{"NIGHTSHIFT_MARKER_POLL_INTERVAL"}, cfg.MarkerPollInterval)

	cfg.BrowserBin = getEnvAny([]string{"NIGHTSHIFT_BROWSER_BIN"}, cfg.BrowserBin)
	cfg.Headless = getEnvBoolAny([]string{"NIGHTSHIFT_HEADLESS"}, cfg.Headless)

	cfg.LINEChannelAccessToken = getEnvAny([]string{"NIGHTSHIFT_LINE_CHANNEL_ACCESS_TOKEN", "LINE_CHANNEL_ACCESS_TOKEN"}, cfg.LINEChannelAccessToken)
	cfg.LINEUserID = getEnvAny([]string{"NIGHTSHIFT_LINE_USER_ID", "LINE_USER_ID"}, cfg.LINEUserID)
	cfg.LINEEndpoint = getEnvAny([]string{"NIGHTSHIFT_LINE_ENDPOINT"}, cfg.LINEEndpoint)

	cfg.SMTPHost = getEnvAny([]string{"NIGHTSHIFT_SMTP_HOST"}, cfg.SMTPHost)
	cfg.SMTPPort = getEnvIntAny([]string{"NIGHTSHIFT_SMTP_PORT"}, cfg.SMTPPort)
	cfg.SMTPUsername = getEnvAny([]string{"NIGHTSHIFT_SMTP_USERNAME"}, cfg.SMTPUsername)
	cfg.SMTPPassword = getEnvAny([]string{"NIGHTSHIFT_SMTP_PASSWORD"}, cfg.SMTPPassword)
	cfg.SMTPFrom = getEnvAny([]string{"NIGHTSHIFT_SMTP_FROM"}, cfg.SMTPFrom)
	cfg.SMTPTo = getEnvAny([]string{"NIGHTSHIFT_SMTP_TO"}, cfg.SMTPTo)

	cfg.NATSURL = getEnvAny([]string{"NIGHTSHIFT_NATS_URL"}, cfg.NATSURL)
	cfg.NATSSubject = getEnvAny([]string{"NIGHTSHIFT_NATS_SUBJECT"}, cfg.NATSSubject)

	cfg.WebhookURL = getEnvAny([]string{"NIGHTSHIFT_WEBHOOK_URL"}, cfg.WebhookURL)
	cfg.WebhookSecret = getEnvAny([]string{"NIGHTSHIFT_WEBHOOK_SECRET"}, cfg.WebhookSecret)

	cfg.DBBackend = DatabaseBackend(getEnvAny([]string{"NIGHTSHIFT_DB_BACKEND"}, string(cfg.DBBackend)))
	cfg.DBDSN = getEnvAny([]string{"NIGHTSHIFT_DB_DSN"}, cfg.DBDSN)

	cfg.EvidenceDir = getEnvAny([]string{"NIGHTSHIFT_EVIDENCE_DIR"}, cfg.EvidenceDir)
	cfg.S3Bucket = getEnvAny([]string{"NIGHTSHIFT_S3_BUCKET", "S3_BUCKET"}, cfg.S3Bucket)
	cfg.S3Region = getEnvAny([]string{"NIGHTSHIFT_S3_REGION", "AWS_REGION"}, cfg.S3Region)
	cfg.S3Endpoint = getEnvAny([]string{"NIGHTSHIFT_S3_ENDPOINT", "S3_ENDPOINT"}, cfg.S3Endpoint)
	cfg.S3AccessKeyID = getEnvAny([]string{"NIGHTSHIFT_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, cfg.S3AccessKeyID)
	cfg.S3SecretAccessKey = getEnvAny([]string{"NIGHTSHIFT_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, cfg.S3SecretAccessKey)
	cfg.S3UsePathStyle = getEnvBoolAny([]string{"NIGHTSHIFT_S3_USE_PATH_STYLE", "S3_USE_PATH_STYLE"}, cfg.S3UsePathStyle)
	cfg.S3Prefix = getEnvAny([]string{"NIGHTSHIFT_S3_PREFIX"}, cfg.S3Prefix)

	cfg.LockEnabled = getEnvBoolAny([]string{"NIGHTSHIFT_LOCK_ENABLED"}, cfg.LockEnabled)
	cfg.RedisAddr = getEnvAny([]string{"NIGHTSHIFT_REDIS_ADDR"}, cfg.RedisAddr)
	cfg.RedisPassword = getEnvAny([]string{"NIGHTSHIFT_REDIS_PASSWORD"}, cfg.RedisPassword)
	cfg.RedisDB = getEnvIntAny([]string{"NIGHTSHIFT_REDIS_DB"}, cfg.RedisDB)
	cfg.LockTTL = getEnvDurationAny([]string{"NIGHTSHIFT_LOCK_TTL"}, cfg.LockTTL)

	cfg.StatusBind = getEnvAny([]string{"NIGHTSHIFT_STATUS_BIND"}, cfg.StatusBind)

	cfg.TracingEnabled = getEnvBoolAny([]string{"NIGHTSHIFT_TRACING_ENABLED"}, cfg.TracingEnabled)
	cfg.OTLPEndpoint = getEnvAny([]string{"NIGHTSHIFT_OTLP_ENDPOINT"}, cfg.OTLPEndpoint)
	cfg.TracingSampleRate = getEnvFloatAny([]string{"NIGHTSHIFT_TRACING_SAMPLE_RATE"}, cfg.TracingSampleRate)

	cfg.LoginURL = strings.TrimSpace(cfg.LoginURL)
	cfg.StaffID = strings.TrimSpace(cfg.StaffID)
	cfg.Password = strings.TrimSpace(cfg.Password)
	cfg.TenantText = strings.TrimSpace(cfg.TenantText)

	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

// Validate checks required values and ranges. It returns a
// *ConfigurationError listing every problem found.
func (c *Config) Validate() error {
	var problems []string

	if c.StaffID == "" || c.Password == "" {
		problems = append(problems, "NIGHTSHIFT_STAFF_ID and NIGHTSHIFT_PASSWORD (or STAFF_ID and PASSWORD) must be provided")
	}
	if c.LoginURL == "" {
		problems = append(problems, "login URL must not be empty")
	}
	if c.TargetMinute < 0 || c.TargetMinute > 59 {
		problems = append(problems, fmt.Sprintf("target minute %d out of range 0-59", c.TargetMinute))
	}
	if c.ToleranceMinutes < 0 || c.ToleranceMinutes > 59 {
		problems = append(problems, fmt.Sprintf("tolerance %d out of range 0-59", c.ToleranceMinutes))
	}
	if c.ClockOutHour < 0 || c.ClockOutHour > 23 || c.ClockOutMinute < 0 || c.ClockOutMinute > 59 {
		problems = append(problems, fmt.Sprintf("clock-out time %02d:%02d is invalid", c.ClockOutHour, c.ClockOutMinute))
	}
	if c.ClockOutRolloverHour < 0 || c.ClockOutRolloverHour > 24 {
		problems = append(problems, fmt.Sprintf("clock-out rollover hour %d out of range 0-24", c.ClockOutRolloverHour))
	}
	if c.MaxRetries < 1 {
		problems = append(problems, fmt.Sprintf("max retries must be at least 1, got %d", c.MaxRetries))
	}
	if c.StepTimeout <= 0 {
		problems = append(problems, "step timeout must be positive")
	}
	if c.RetryBackoff < 0 {
		problems = append(problems, "retry backoff must not be negative")
	}
	if c.MarkerPollInterval <= 0 {
		problems = append(problems, "marker poll interval must be positive")
	}
	if c.DBDSN != "" && c.DBBackend != DatabasePostgres && c.DBBackend != DatabaseMySQL && c.DBBackend != DatabaseSQLite {
		problems = append(problems, fmt.Sprintf("unsupported database backend %q", c.DBBackend))
	}
	if _, err := c.Location(); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return &ConfigurationError{Problems: problems}
	}
	return nil
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Tolerance returns the due-window and jitter tolerance as a duration.
func (c *Config) Tolerance() time.Duration {
	return time.Duration(c.ToleranceMinutes) * time.Minute
}

// SMTPRecipients splits SMTPTo into addresses.
func (c *Config) SMTPRecipients() []string {
	var out []string
	for _, addr := range strings.Split(c.SMTPTo, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"LOGIN_URL":                 "use NIGHTSHIFT_LOGIN_URL",
		"STAFF_ID":                  "use NIGHTSHIFT_STAFF_ID",
		"PASSWORD":                  "use NIGHTSHIFT_PASSWORD",
		"TENANT_TEXT":               "use NIGHTSHIFT_TENANT_TEXT",
		"LINE_CHANNEL_ACCESS_TOKEN": "use NIGHTSHIFT_LINE_CHANNEL_ACCESS_TOKEN",
		"LINE_USER_ID":              "use NIGHTSHIFT_LINE_USER_ID",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvDurationAny accepts Go duration strings ("90s") or bare seconds ("90").
func getEnvDurationAny(keys []string, def time.Duration) time.Duration {
	for _, k := range keys {
		v := strings.TrimSpace(os.Getenv(k))
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return def
}
