package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Site      SiteConfig      `yaml:"site"`
	Mailchimp MailchimpConfig `yaml:"mailchimp"`
	Storage   StorageConfig   `yaml:"storage"`
	Cache     CacheConfig     `yaml:"cache"`
	Notify    NotifyConfig    `yaml:"notify"`
	Activity  ActivityConfig  `yaml:"activity"`
	Content   ContentConfig   `yaml:"content"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	PublicURL      string   `yaml:"public_url"` // base for webhook callback URLs
	AllowedOrigins []string `yaml:"allowed_origins"`
	AdminToken     string   `yaml:"admin_token"` // bearer token for /campaignpress/v1; empty disables the check
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// Addr is host:port for net/http.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.Port)
}

// SiteConfig describes the publishing site the campaigns belong to.
type SiteConfig struct {
	Name          string `yaml:"name"`
	AdminEmail    string `yaml:"admin_email"`
	Timezone      string `yaml:"timezone"`        // IANA label
	TimezoneOffset string `yaml:"timezone_offset"` // fallback, e.g. "-05:00"
}

// MailchimpConfig holds Mailchimp API configuration
type MailchimpConfig struct {
	APIKey           string `yaml:"api_key"`
	Server           string `yaml:"server"` // datacenter, e.g. "us21"; derived from the key when empty
	BaseURL          string `yaml:"base_url"`
	OAuthAccessToken string `yaml:"oauth_access_token"`
	TimeoutSeconds   int    `yaml:"timeout_seconds"`
	ReadRetries      int    `yaml:"read_retries"`
	FromName         string `yaml:"from_name"`
	FromEmail        string `yaml:"from_email"`
}

// Timeout returns the HTTP timeout.
func (c MailchimpConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DataCenter returns the API datacenter.
func (c MailchimpConfig) DataCenter() string {
	if c.Server != "" {
		return c.Server
	}
	if _, dc, ok := strings.Cut(c.APIKey, "-"); ok {
		return dc
	}
	return ""
}

// Endpoint returns the API root URL.
func (c MailchimpConfig) Endpoint() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	dc := c.DataCenter()
	if dc == "" {
		return ""
	}
	return "https://" + dc + ".api.mailchimp.com/3.0"
}

// Configured reports whether any credentials are present.
func (c MailchimpConfig) Configured() bool {
	return c.APIKey != "" || c.OAuthAccessToken != ""
}

// StorageConfig selects where settings records live.
type StorageConfig struct {
	Type          string `yaml:"type"` // memory, local, postgres, sqlite, dynamodb, s3
	LocalPath     string `yaml:"local_path"`
	DatabaseURL   string `yaml:"database_url"`
	SQLitePath    string `yaml:"sqlite_path"`
	Table         string `yaml:"table"`
	DynamoDBTable string `yaml:"dynamodb_table"`
	S3Bucket      string `yaml:"s3_bucket"`
	S3Prefix      string `yaml:"s3_prefix"`
	AWSRegion     string `yaml:"aws_region"`
	AWSProfile    string `yaml:"aws_profile"` // Empty string uses default credential chain
	// Static keys and a custom endpoint, for S3-compatible stores and
	// local DynamoDB.
	AWSAccessKeyID     string `yaml:"aws_access_key_id"`
	AWSSecretAccessKey string `yaml:"aws_secret_access_key"`
	AWSEndpoint        string `yaml:"aws_endpoint"`
}

// GetAWSProfile returns the AWS profile, with environment variable override
func (c StorageConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// CacheConfig controls provider read caches.
type CacheConfig struct {
	Type       string `yaml:"type"` // memory, redis
	RedisURL   string `yaml:"redis_url"`
	KeyPrefix  string `yaml:"key_prefix"`
	TTLMinutes int    `yaml:"ttl_minutes"`
}

// TTL is the bucket length.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// NotifyConfig selects where campaign events are published.
type NotifyConfig struct {
	Type         string `yaml:"type"` // log, amqp, redis, none
	AMQPURL      string `yaml:"amqp_url"`
	Exchange     string `yaml:"exchange"`
	RedisURL     string `yaml:"redis_url"`
	RedisChannel string `yaml:"redis_channel"`
}

// ActivityConfig controls the activity log.
type ActivityConfig struct {
	Enabled bool   `yaml:"enabled"`
	Driver  string `yaml:"driver"` // postgres, sqlite
	DSN     string `yaml:"dsn"`
	Keep    int    `yaml:"keep"`
}

// ContentConfig points at the site feed editors pick content from.
type ContentConfig struct {
	FeedURL string `yaml:"feed_url"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Redact reports whether PII redaction is on (default true).
func (c LogConfig) Redact() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a config with only defaults applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Site.Timezone == "" && cfg.Site.TimezoneOffset == "" {
		cfg.Site.Timezone = "UTC"
	}
	if cfg.Mailchimp.TimeoutSeconds == 0 {
		cfg.Mailchimp.TimeoutSeconds = 30
	}
	if cfg.Mailchimp.ReadRetries == 0 {
		cfg.Mailchimp.ReadRetries = 2
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "local"
	}
	if cfg.Storage.LocalPath == "" {
		cfg.Storage.LocalPath = "./data"
	}
	if cfg.Storage.Table == "" {
		cfg.Storage.Table = "campaignsync_options"
	}
	if cfg.Storage.AWSRegion == "" {
		cfg.Storage.AWSRegion = "us-west-2"
	}
	if cfg.Cache.Type == "" {
		cfg.Cache.Type = "memory"
	}
	if cfg.Cache.KeyPrefix == "" {
		cfg.Cache.KeyPrefix = "campaignsync:cache:"
	}
	if cfg.Cache.TTLMinutes == 0 {
		cfg.Cache.TTLMinutes = 60
	}
	if cfg.Notify.Type == "" {
		cfg.Notify.Type = "log"
	}
	if cfg.Notify.Exchange == "" {
		cfg.Notify.Exchange = "campaignsync.events"
	}
	if cfg.Notify.RedisChannel == "" {
		cfg.Notify.RedisChannel = "campaignsync:events"
	}
	if cfg.Activity.Keep == 0 {
		cfg.Activity.Keep = 200
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) first. A missing config file is not
// an error; defaults and the environment are used instead.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = Default(), nil
	}
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("MAILCHIMP_API_KEY"); v != "" {
		cfg.Mailchimp.APIKey = v
	}
	if v := os.Getenv("MAILCHIMP_SERVER"); v != "" {
		cfg.Mailchimp.Server = v
	}
	if v := os.Getenv("MAILCHIMP_BASE_URL"); v != "" {
		cfg.Mailchimp.BaseURL = v
	}
	if v := os.Getenv("MAILCHIMP_OAUTH_TOKEN"); v != "" {
		cfg.Mailchimp.OAuthAccessToken = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Storage.DatabaseURL = v
		if cfg.Activity.DSN == "" {
			cfg.Activity.DSN = v
		}
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.RedisURL = v
		if cfg.Notify.RedisURL == "" {
			cfg.Notify.RedisURL = v
		}
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.Notify.AMQPURL = v
	}
	if v := os.Getenv("ADMIN_TOKEN"); v != "" {
		cfg.Server.AdminToken = v
	}
	if v := os.Getenv("PUBLIC_URL"); v != "" {
		cfg.Server.PublicURL = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SITE_TIMEZONE"); v != "" {
		cfg.Site.Timezone = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	return cfg, nil
}
