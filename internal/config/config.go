package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Wikid82/bastion/internal/ratelimit"
	"github.com/Wikid82/bastion/internal/securitylog"
)

// WAF modes understood by the request inspector.
const (
	WAFDisabled = "disabled"
	WAFMonitor  = "monitor"
	WAFBlock    = "block"
)

// Config captures runtime configuration sourced from environment variables
// and an optional YAML file.
type Config struct {
	Environment  string
	HTTPPort     string
	DatabasePath string
	LogDir       string
	Debug        bool
	JWTSecret    string
	TokenTTL     time.Duration
	WAFMode      string
	ConfigFile   string

	Limits   ratelimit.LimitsConfig
	Security SecurityConfig
	Mail     MailConfig
}

// SMTP encryption modes.
const (
	MailEncryptionNone     = "none"
	MailEncryptionSSL      = "ssl"
	MailEncryptionSTARTTLS = "starttls"
)

// MailConfig describes the SMTP relay used for password reset mail. An empty
// Host disables delivery.
type MailConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	FromAddress string `yaml:"from_address"`
	Encryption  string `yaml:"encryption"`
	// ResetURL is the page that accepts a reset token, e.g. https://example.com/reset.
	ResetURL string `yaml:"reset_url"`
}

// Enabled reports whether enough is set to attempt delivery.
func (m MailConfig) Enabled() bool {
	return m.Host != "" && m.FromAddress != ""
}

// SecurityConfig controls the security event logger and the sinks attached to it.
type SecurityConfig struct {
	MinSeverity          securitylog.Severity `yaml:"min_severity"`
	IncludeSensitiveData bool                 `yaml:"include_sensitive_data"`
	Console              bool                 `yaml:"console"`
	File                 bool                 `yaml:"file"`
	FilePath             string               `yaml:"file_path"`
	Database             bool                 `yaml:"database"`
	BufferSize           int                  `yaml:"buffer_size"`
	FlushInterval        time.Duration        `yaml:"flush_interval"`
	Retention            time.Duration        `yaml:"retention"`
	AlertURLs            []string             `yaml:"alert_urls"`
}

// LoggerConfig derives the event logger settings.
func (s SecurityConfig) LoggerConfig() securitylog.Config {
	cfg := securitylog.DefaultConfig()
	cfg.MinSeverity = s.MinSeverity
	cfg.IncludeSensitiveData = s.IncludeSensitiveData
	cfg.Console = s.Console
	cfg.BufferSize = s.BufferSize
	return cfg
}

// fileConfig is the subset of settings the YAML file may override.
type fileConfig struct {
	Limits   *ratelimit.LimitsConfig `yaml:"limits"`
	Security *SecurityConfig         `yaml:"security"`
	Mail     *MailConfig             `yaml:"mail"`
	WAFMode  string                  `yaml:"waf_mode"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Environment:  "development",
		HTTPPort:     "8080",
		DatabasePath: filepath.Join("data", "bastion.db"),
		LogDir:       filepath.Join("data", "logs"),
		TokenTTL:     24 * time.Hour,
		WAFMode:      WAFMonitor,
		Limits:       ratelimit.DefaultLimits(),
		Security: SecurityConfig{
			MinSeverity:   securitylog.SeverityLow,
			Console:       true,
			File:          true,
			Database:      true,
			BufferSize:    100,
			FlushInterval: 30 * time.Second,
			Retention:     90 * 24 * time.Hour,
		},
		Mail: MailConfig{
			Port:       587,
			Encryption: MailEncryptionSTARTTLS,
		},
	}
}

// Load reads env vars and falls back to defaults so the server can boot with
// zero configuration. Limiter and logger settings are validated here: a
// misconfigured limiter is a security defect, so Load fails rather than
// guessing.
func Load() (Config, error) {
	cfg := Defaults()

	cfg.ConfigFile = getEnv("BASTION_CONFIG_FILE", "")
	if cfg.ConfigFile != "" {
		if err := cfg.applyFile(cfg.ConfigFile); err != nil {
			return Config{}, err
		}
	}

	var errs []error
	cfg.Environment = getEnv("BASTION_ENV", cfg.Environment)
	cfg.HTTPPort = getEnv("BASTION_HTTP_PORT", cfg.HTTPPort)
	cfg.DatabasePath = getEnv("BASTION_DB_PATH", cfg.DatabasePath)
	cfg.LogDir = getEnv("BASTION_LOG_DIR", cfg.LogDir)
	cfg.JWTSecret = getEnv("BASTION_JWT_SECRET", cfg.JWTSecret)
	cfg.WAFMode = strings.ToLower(getEnv("BASTION_WAF_MODE", cfg.WAFMode))
	cfg.Debug = getEnvBool("BASTION_DEBUG", cfg.Debug, &errs)
	cfg.TokenTTL = getEnvDuration("BASTION_TOKEN_TTL", cfg.TokenTTL, &errs)

	sec := &cfg.Security
	if v := getEnv("BASTION_SECURITY_MIN_SEVERITY", ""); v != "" {
		sev, err := securitylog.ParseSeverity(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("BASTION_SECURITY_MIN_SEVERITY: %w", err))
		} else {
			sec.MinSeverity = sev
		}
	}
	sec.IncludeSensitiveData = getEnvBool("BASTION_SECURITY_INCLUDE_SENSITIVE", sec.IncludeSensitiveData, &errs)
	sec.Console = getEnvBool("BASTION_SECURITY_CONSOLE", sec.Console, &errs)
	sec.File = getEnvBool("BASTION_SECURITY_FILE", sec.File, &errs)
	sec.Database = getEnvBool("BASTION_SECURITY_DATABASE", sec.Database, &errs)
	sec.BufferSize = getEnvInt("BASTION_SECURITY_BUFFER_SIZE", sec.BufferSize, &errs)
	sec.FlushInterval = getEnvDuration("BASTION_SECURITY_FLUSH_INTERVAL", sec.FlushInterval, &errs)
	sec.Retention = getEnvDuration("BASTION_SECURITY_RETENTION", sec.Retention, &errs)
	if v := getEnv("BASTION_ALERT_URLS", ""); v != "" {
		sec.AlertURLs = splitList(v)
	}
	if sec.FilePath == "" {
		sec.FilePath = filepath.Join(cfg.LogDir, "security.log")
	}

	mail := &cfg.Mail
	mail.Host = getEnv("BASTION_SMTP_HOST", mail.Host)
	mail.Port = getEnvInt("BASTION_SMTP_PORT", mail.Port, &errs)
	mail.Username = getEnv("BASTION_SMTP_USERNAME", mail.Username)
	mail.Password = getEnv("BASTION_SMTP_PASSWORD", mail.Password)
	mail.FromAddress = getEnv("BASTION_SMTP_FROM", mail.FromAddress)
	mail.Encryption = strings.ToLower(getEnv("BASTION_SMTP_ENCRYPTION", mail.Encryption))
	mail.ResetURL = getEnv("BASTION_RESET_URL", mail.ResetURL)

	applyLimiterEnv("BASTION_LOGIN", &cfg.Limits.Login, &errs)
	applyLimiterEnv("BASTION_API", &cfg.Limits.API, &errs)
	applyLimiterEnv("BASTION_RESET", &cfg.Limits.PasswordReset, &errs)

	if err := errors.Join(errs...); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		return Config{}, fmt.Errorf("ensure data directory: %w", err)
	}

	return cfg, nil
}

// Validate rejects settings the server cannot run safely with.
func (c Config) Validate() error {
	if err := c.Limits.Validate(); err != nil {
		return fmt.Errorf("rate limits: %w", err)
	}
	if err := c.Security.LoggerConfig().Validate(); err != nil {
		return fmt.Errorf("security log: %w", err)
	}
	switch c.WAFMode {
	case WAFDisabled, WAFMonitor, WAFBlock:
	default:
		return fmt.Errorf("unknown WAF mode %q", c.WAFMode)
	}
	switch c.Mail.Encryption {
	case MailEncryptionNone, MailEncryptionSSL, MailEncryptionSTARTTLS:
	default:
		return fmt.Errorf("unknown smtp encryption %q", c.Mail.Encryption)
	}
	if c.Mail.Enabled() && (c.Mail.Port <= 0 || c.Mail.Port > 65535) {
		return fmt.Errorf("smtp port out of range: %d", c.Mail.Port)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token ttl must be positive, got %s", c.TokenTTL)
	}
	if c.IsProduction() && c.JWTSecret == "" {
		return errors.New("BASTION_JWT_SECRET is required in production")
	}
	return nil
}

// IsProduction reports whether the environment is production.
func (c Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	fc := fileConfig{Limits: &c.Limits, Security: &c.Security, Mail: &c.Mail, WAFMode: c.WAFMode}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	c.WAFMode = fc.WAFMode
	return nil
}

func applyLimiterEnv(prefix string, cfg *ratelimit.Config, errs *[]error) {
	cfg.Window = getEnvDuration(prefix+"_WINDOW", cfg.Window, errs)
	cfg.MaxAttempts = getEnvInt(prefix+"_MAX", cfg.MaxAttempts, errs)
	cfg.BlockDuration = getEnvDuration(prefix+"_BLOCK", cfg.BlockDuration, errs)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return fallback
}

func getEnvBool(key string, fallback bool, errs *[]error) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return b
}

func getEnvInt(key string, fallback int, errs *[]error) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
