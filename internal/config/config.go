// Package config centralizes how RegiDesk reads its settings and exposes them
// as strongly typed Go values. Values come from defaults, then an optional
// YAML file, then environment variables prefixed with REGIDESK_.
package config

import (
	"errors"
	"fmt"
	"net/mail"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents runtime configuration for the service.
type Config struct {
	Address      string `mapstructure:"address"`
	OutputDir    string `mapstructure:"output_dir"`
	LedgerPath   string `mapstructure:"ledger_path"`
	TemplateDir  string `mapstructure:"template_dir"`
	FrontendDir  string `mapstructure:"frontend_dir"`
	MaxBodyBytes int64  `mapstructure:"max_body_bytes"`
	Workers      int    `mapstructure:"workers"`
	DatabaseURL  string `mapstructure:"database_url"`
	// ShutdownTimeout bounds the optional final flush and component teardown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	Log       LogConfig       `mapstructure:"log"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	Mail      MailConfig      `mapstructure:"mail"`
	Flush     FlushConfig     `mapstructure:"flush"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Admin     AdminConfig     `mapstructure:"admin"`
	PDF       PDFConfig       `mapstructure:"pdf"`
	S3        S3Config        `mapstructure:"s3"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SMTPConfig describes the outgoing mail server shared by both notifiers.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	// TLS is one of mandatory, opportunistic, none.
	TLS string `mapstructure:"tls"`
}

type MailConfig struct {
	StaffRecipient   string `mapstructure:"staff_recipient"`
	ApplicantName    string `mapstructure:"applicant_sender_name"`
	StaffSenderName  string `mapstructure:"staff_sender_name"`
	ApplicantSubject string `mapstructure:"applicant_subject"`
}

// FlushConfig holds the staff batch schedule. Times are "HH:MM" wall-clock
// values or five-field cron expressions, evaluated in Timezone.
type FlushConfig struct {
	Times      []string `mapstructure:"times"`
	Timezone   string   `mapstructure:"timezone"`
	Backend    string   `mapstructure:"backend"`
	OnShutdown bool     `mapstructure:"on_shutdown"`
	// Timeout bounds one scheduled drain. Zero leaves it unbounded; a deadline
	// hit after the mail server accepted the batch means a duplicate send.
	Timeout time.Duration `mapstructure:"timeout"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type RateLimitConfig struct {
	Backend  string        `mapstructure:"backend"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// AdminConfig enables the signed admin endpoints when Secret is non-empty.
type AdminConfig struct {
	Secret   string        `mapstructure:"secret"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

type PDFConfig struct {
	ChromePath string        `mapstructure:"chrome_path"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// S3Config enables the artifact archive when Endpoint is set.
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
}

// TracingConfig selects the span exporter: none, stdout or file.
type TracingConfig struct {
	Exporter    string `mapstructure:"exporter"`
	FilePath    string `mapstructure:"file_path"`
	ServiceName string `mapstructure:"service_name"`
}

const (
	defaultAddress      = ":5000"
	defaultOutputDir    = "output"
	defaultLedgerFile   = "registrations.xlsx"
	defaultMaxBodyBytes = 10 << 20 // 10 MiB, photos arrive inline
	defaultWorkerCount  = 2
	defaultFlushTimes   = "10:42,10:44"
	defaultTimezone     = "Asia/Kolkata"
	defaultRateRequests = 30
	defaultRateWindow   = time.Minute
	defaultTokenTTL     = 5 * time.Minute
	defaultPDFTimeout   = 60 * time.Second
	defaultShutdown     = 2 * time.Minute

	BackendCron   = "cron"
	BackendAsynq  = "asynq"
	LimiterMemory = "memory"
	LimiterRedis  = "redis"
	LimiterNone   = "none"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "REGIDESK"

// Load reads configuration falling back to defaults. path may be empty, in
// which case only defaults and the environment are consulted.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The original deployment used bare variable names; keep honouring them.
	_ = v.BindEnv("smtp.username", EnvPrefix+"_SMTP_USERNAME", "EMAIL_USER")
	_ = v.BindEnv("smtp.password", EnvPrefix+"_SMTP_PASSWORD", "EMAIL_PASS")
	_ = v.BindEnv("mail.staff_recipient", EnvPrefix+"_MAIL_STAFF_RECIPIENT", "FACULTY_EMAIL")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Flush.Times = splitTimes(cfg.Flush.Times)
	if cfg.LedgerPath == "" {
		cfg.LedgerPath = filepath.Join(cfg.OutputDir, defaultLedgerFile)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkerCount
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("address", defaultAddress)
	v.SetDefault("output_dir", defaultOutputDir)
	v.SetDefault("ledger_path", "")
	v.SetDefault("template_dir", "")
	v.SetDefault("frontend_dir", "")
	v.SetDefault("max_body_bytes", defaultMaxBodyBytes)
	v.SetDefault("workers", defaultWorkerCount)
	v.SetDefault("database_url", "")
	v.SetDefault("shutdown_timeout", defaultShutdown)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("smtp.host", "smtp.gmail.com")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.tls", "mandatory")

	v.SetDefault("mail.staff_recipient", "")
	v.SetDefault("mail.applicant_sender_name", "CITD Hyderabad")
	v.SetDefault("mail.staff_sender_name", "CITD Registration System")
	v.SetDefault("mail.applicant_subject", "Application Received - CITD Short Term Course")

	v.SetDefault("flush.times", defaultFlushTimes)
	v.SetDefault("flush.timezone", defaultTimezone)
	v.SetDefault("flush.backend", BackendCron)
	v.SetDefault("flush.on_shutdown", false)
	v.SetDefault("flush.timeout", time.Duration(0))

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("rate_limit.backend", LimiterMemory)
	v.SetDefault("rate_limit.requests", defaultRateRequests)
	v.SetDefault("rate_limit.window", defaultRateWindow)

	v.SetDefault("admin.secret", "")
	v.SetDefault("admin.token_ttl", defaultTokenTTL)

	v.SetDefault("pdf.chrome_path", "")
	v.SetDefault("pdf.timeout", defaultPDFTimeout)

	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.use_ssl", false)
	v.SetDefault("s3.bucket", "regidesk")

	v.SetDefault("tracing.exporter", "none")
	v.SetDefault("tracing.file_path", "")
	v.SetDefault("tracing.service_name", "regidesk")
}

// splitTimes accepts both a list and a single comma separated entry, which is
// what an environment variable produces.
func splitTimes(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Location resolves the flush time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Flush.Timezone)
	if err != nil {
		return nil, fmt.Errorf("flush timezone %q: %w", c.Flush.Timezone, err)
	}
	return loc, nil
}

// Validate checks that the configuration can run the service.
func (c *Config) Validate() error {
	var errs []error
	if c.Address == "" {
		errs = append(errs, errors.New("address must not be empty"))
	}
	if c.OutputDir == "" {
		errs = append(errs, errors.New("output_dir must not be empty"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if len(c.Flush.Times) == 0 {
		errs = append(errs, errors.New("flush.times must list at least one time"))
	}
	for _, t := range c.Flush.Times {
		if _, err := CronSpec(t); err != nil {
			errs = append(errs, err)
		}
	}
	switch c.Flush.Backend {
	case BackendCron, BackendAsynq:
	default:
		errs = append(errs, fmt.Errorf("flush.backend %q must be %s or %s", c.Flush.Backend, BackendCron, BackendAsynq))
	}
	switch c.RateLimit.Backend {
	case LimiterMemory, LimiterRedis, LimiterNone:
	default:
		errs = append(errs, fmt.Errorf("rate_limit.backend %q must be memory, redis or none", c.RateLimit.Backend))
	}
	if c.RateLimit.Backend != LimiterNone && (c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0) {
		errs = append(errs, errors.New("rate_limit.requests and rate_limit.window must be positive"))
	}
	if c.Mail.StaffRecipient == "" {
		errs = append(errs, errors.New("mail.staff_recipient must be set"))
	} else if _, err := mail.ParseAddress(c.Mail.StaffRecipient); err != nil {
		errs = append(errs, fmt.Errorf("mail.staff_recipient: %w", err))
	}
	if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("smtp.port %d out of range", c.SMTP.Port))
	}
	if c.Flush.Timeout < 0 {
		errs = append(errs, errors.New("flush.timeout must not be negative"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdown_timeout must be positive"))
	}
	if c.PDF.Timeout <= 0 {
		errs = append(errs, errors.New("pdf.timeout must be positive"))
	}
	return errors.Join(errs...)
}

// CronSpec converts a flush time into a five-field cron expression. "HH:MM"
// becomes "MM HH * * *"; anything with five fields is passed through.
func CronSpec(t string) (string, error) {
	t = strings.TrimSpace(t)
	if len(strings.Fields(t)) == 5 {
		return t, nil
	}
	parsed, err := time.Parse("15:04", t)
	if err != nil {
		return "", fmt.Errorf("flush time %q: want HH:MM or a cron expression", t)
	}
	return fmt.Sprintf("%d %d * * *", parsed.Minute(), parsed.Hour()), nil
}
