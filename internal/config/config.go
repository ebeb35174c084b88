package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Log         LogConfig         `mapstructure:"log"`
	Transport   TransportConfig   `mapstructure:"transport"`
	SMTP        SMTPConfig        `mapstructure:"smtp"`
	IMAP        IMAPConfig        `mapstructure:"imap"`
	Gmail       GmailConfig       `mapstructure:"gmail"`
	Pacing      PacingConfig      `mapstructure:"pacing"`
	Checkpoint  CheckpointConfig  `mapstructure:"checkpoint"`
	Redis       RedisConfig       `mapstructure:"redis"`
	SQLite      SQLiteConfig      `mapstructure:"sqlite"`
	History     HistoryConfig     `mapstructure:"history"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Sheets      SheetsConfig      `mapstructure:"sheets"`
	Template    TemplateConfig    `mapstructure:"template"`
	Tracking    TrackingConfig    `mapstructure:"tracking"`
	Report      ReportConfig      `mapstructure:"report"`
	S3          S3Config          `mapstructure:"s3"`
	Server      ServerConfig      `mapstructure:"server"`
	Suppression SuppressionConfig `mapstructure:"suppression"`
}

// ServerConfig holds the tracking server configuration
type ServerConfig struct {
	Host         string          `mapstructure:"host"`
	Port         int             `mapstructure:"port"`
	RateLimiting RateLimitConfig `mapstructure:"rate_limiting"`
}

// RateLimitConfig holds per-client request limits; counters live in Redis
type RateLimitConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Limit   int           `mapstructure:"limit"`
	Window  time.Duration `mapstructure:"window"`
}

// SuppressionConfig holds the unsubscribe list configuration
type SuppressionConfig struct {
	// Backend is "file" or "redis"
	Backend string `mapstructure:"backend"`
	File    string `mapstructure:"file"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TransportConfig selects the email provider
type TransportConfig struct {
	// Provider is "smtp" or "gmail"
	Provider string `mapstructure:"provider"`
}

// SMTPConfig holds SMTP submission configuration
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	// From defaults to Username when empty
	From     string        `mapstructure:"from"`
	FromName string        `mapstructure:"from_name"`
	StartTLS bool          `mapstructure:"starttls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Addr returns the SMTP server address
func (c SMTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Sender returns the envelope sender address
func (c SMTPConfig) Sender() string {
	if c.From != "" {
		return c.From
	}
	return c.Username
}

// IMAPConfig holds configuration for archiving sent copies over IMAP.
// Credentials are shared with SMTP.
type IMAPConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	SentMailbox string `mapstructure:"sent_mailbox"`
}

// Addr returns the IMAP server address
func (c IMAPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GmailConfig holds Gmail API configuration
type GmailConfig struct {
	// CredentialsJSON is the service account credentials JSON content
	CredentialsJSON string `mapstructure:"credentials_json"`
	// ClientID for OAuth2 token-based auth (alternative to service account)
	ClientID string `mapstructure:"client_id"`
	// ClientSecret for OAuth2 token-based auth
	ClientSecret string `mapstructure:"client_secret"`
	// RefreshToken for OAuth2 token-based auth
	RefreshToken string `mapstructure:"refresh_token"`
	// SenderAddress is the "From" email address
	SenderAddress string `mapstructure:"sender_address"`
	// SenderName is the display name for the sender
	SenderName string `mapstructure:"sender_name"`
	// ArchiveLabel is a label ID applied to every sent message; empty disables it
	ArchiveLabel string `mapstructure:"archive_label"`
}

// PacingConfig controls how fast a campaign is sent
type PacingConfig struct {
	// Mode is "concurrent" or "sequential"
	Mode     string        `mapstructure:"mode"`
	Workers  int           `mapstructure:"workers"`
	MinDelay time.Duration `mapstructure:"min_delay"`
	MaxDelay time.Duration `mapstructure:"max_delay"`
}

// CheckpointConfig holds resume state storage configuration
type CheckpointConfig struct {
	// Backend is "file", "redis" or "sqlite"
	Backend string `mapstructure:"backend"`
	Dir     string `mapstructure:"dir"`
	// PruneCompleted removes checkpoints of finished campaigns
	PruneCompleted bool `mapstructure:"prune_completed"`
	// MaxSnapshots caps the retained checkpoints; 0 keeps all
	MaxSnapshots int `mapstructure:"max_snapshots"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// Addr returns the Redis address
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SQLiteConfig holds SQLite configuration
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// HistoryConfig selects where campaign summaries are recorded
type HistoryConfig struct {
	// Backends lists "file", "sheets" and/or "postgres"; the first one is read from
	Backends []string `mapstructure:"backends"`
	File     string   `mapstructure:"file"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Name           string `mapstructure:"name"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	SSLMode        string `mapstructure:"ssl_mode"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// DSN returns the PostgreSQL connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// URL returns the PostgreSQL connection URL used by migrations
func (c DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode,
	)
}

// SheetsConfig holds Google Sheets history configuration
type SheetsConfig struct {
	CredentialsJSON string `mapstructure:"credentials_json"`
	SpreadsheetID   string `mapstructure:"spreadsheet_id"`
	SheetName       string `mapstructure:"sheet_name"`
}

// TemplateConfig holds message template locations
type TemplateConfig struct {
	// Dir is a directory with the body template and layouts; empty uses the built-in template
	Dir    string `mapstructure:"dir"`
	Body   string `mapstructure:"body"`
	Layout string `mapstructure:"layout"`
}

// TrackingConfig holds open/click tracking and unsubscribe link settings
type TrackingConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	UnsubscribeURL string        `mapstructure:"unsubscribe_url"`
	SigningKey     string        `mapstructure:"signing_key"`
	LinkTTL        time.Duration `mapstructure:"link_ttl"`
}

// ReportConfig holds delivery report settings
type ReportConfig struct {
	Dir string `mapstructure:"dir"`
	// EmailTo receives the CSV report as an attachment; empty disables it
	EmailTo string `mapstructure:"email_to"`
}

// S3Config holds S3-compatible report upload configuration
type S3Config struct {
	Enabled   bool   `mapstructure:"enabled"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
	PathStyle bool   `mapstructure:"path_style"`
}

// Load reads configuration from file and environment variables.
// An empty path searches the default locations.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/mailrun")
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("MAILRUN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// Transport defaults
	v.SetDefault("transport.provider", "smtp")

	v.SetDefault("smtp.host", "localhost")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "")
	v.SetDefault("smtp.from_name", "")
	v.SetDefault("smtp.starttls", true)
	v.SetDefault("smtp.timeout", "30s")

	v.SetDefault("imap.enabled", false)
	v.SetDefault("imap.host", "localhost")
	v.SetDefault("imap.port", 993)
	v.SetDefault("imap.sent_mailbox", "INBOX.Sent")

	v.SetDefault("gmail.credentials_json", "")
	v.SetDefault("gmail.client_id", "")
	v.SetDefault("gmail.client_secret", "")
	v.SetDefault("gmail.refresh_token", "")
	v.SetDefault("gmail.sender_address", "")
	v.SetDefault("gmail.sender_name", "")
	v.SetDefault("gmail.archive_label", "")

	// Pacing defaults
	v.SetDefault("pacing.mode", "concurrent")
	v.SetDefault("pacing.workers", 10)
	v.SetDefault("pacing.min_delay", "5s")
	v.SetDefault("pacing.max_delay", "12s")

	// Checkpoint defaults
	v.SetDefault("checkpoint.backend", "file")
	v.SetDefault("checkpoint.dir", "campaign_resume")
	v.SetDefault("checkpoint.prune_completed", false)
	v.SetDefault("checkpoint.max_snapshots", 0)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "mailrun:")

	v.SetDefault("sqlite.path", "mailrun.db")

	// History defaults
	v.SetDefault("history.backends", []string{"file"})
	v.SetDefault("history.file", "campaigns.json")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "mailrun")
	v.SetDefault("database.user", "mailrun")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 5)

	v.SetDefault("sheets.credentials_json", "")
	v.SetDefault("sheets.spreadsheet_id", "")
	v.SetDefault("sheets.sheet_name", "Sheet1")

	// Template defaults
	v.SetDefault("template.dir", "")
	v.SetDefault("template.body", "campaign.md")
	v.SetDefault("template.layout", "base.html")

	v.SetDefault("tracking.base_url", "")
	v.SetDefault("tracking.unsubscribe_url", "")
	v.SetDefault("tracking.signing_key", "")
	v.SetDefault("tracking.link_ttl", "2160h")

	// Report defaults
	v.SetDefault("report.dir", "campaign_results")
	v.SetDefault("report.email_to", "")

	v.SetDefault("s3.enabled", false)
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("s3.prefix", "reports/")
	v.SetDefault("s3.path_style", false)

	// Tracking server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limiting.enabled", false)
	v.SetDefault("server.rate_limiting.limit", 120)
	v.SetDefault("server.rate_limiting.window", "1m")

	v.SetDefault("suppression.backend", "file")
	v.SetDefault("suppression.file", "unsubscribed.json")
}
