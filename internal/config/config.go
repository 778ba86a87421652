package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the automation engine
type Config struct {
	Server     ServerConfig    `yaml:"server"`
	Database   DatabaseConfig  `yaml:"database"`
	Redis      RedisConfig     `yaml:"redis"`
	RabbitMQ   RabbitMQConfig  `yaml:"rabbitmq"`
	Storage    StorageConfig   `yaml:"storage"`
	Scheduler  SchedulerConfig `yaml:"scheduler"`
	Triggers   TriggerConfig   `yaml:"triggers"`
	Providers  ProvidersConfig `yaml:"providers"`
	RateLimits map[string]int  `yaml:"rate_limits"` // provider name -> messages per second
	Retry      RetryConfig     `yaml:"retry"`
	Logging    LoggingConfig   `yaml:"logging"`
	Delivery   DeliveryConfig  `yaml:"delivery"`
	Events     EventsConfig    `yaml:"events"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

func (c ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

type DatabaseConfig struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
	URL      string `yaml:"url"` // overrides the individual fields when set
}

// DSN returns the PostgreSQL connection string.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Enabled is false when no address is configured; the engine then uses
// in-process limiting and locking.
func (c RedisConfig) Enabled() bool { return c.Addr != "" }

type RabbitMQConfig struct {
	URL string `yaml:"url"`
}

func (c RabbitMQConfig) Enabled() bool { return c.URL != "" }

// StorageConfig selects the repository implementation: "postgres" or "memory".
type StorageConfig struct {
	Driver string `yaml:"driver"`
}

type SchedulerConfig struct {
	Enabled             bool   `yaml:"enabled"`
	Hour                int    `yaml:"hour"`
	Timezone            string `yaml:"timezone"`
	Workers             int    `yaml:"workers"`
	CampaignConcurrency int    `yaml:"campaign_concurrency"`
	LockTTLSeconds      int    `yaml:"lock_ttl_seconds"`
	TickSeconds         int    `yaml:"tick_seconds"`
}

// Location resolves the scheduler timezone, falling back to UTC.
func (c SchedulerConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c SchedulerConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

func (c SchedulerConfig) Tick() time.Duration {
	return time.Duration(c.TickSeconds) * time.Second
}

type TriggerConfig struct {
	WinBackDays      int `yaml:"win_back_days"`
	AnniversaryYears int `yaml:"anniversary_years"`
}

type ProvidersConfig struct {
	// SMSOrder lists SMS backends in fallback order.
	SMSOrder []string       `yaml:"sms_order"`
	GenericA GenericAConfig `yaml:"generic_a"`
	GenericB GenericBConfig `yaml:"generic_b"`
	Regional RegionalConfig `yaml:"regional"`
	WhatsApp WhatsAppConfig `yaml:"whatsapp"`
	SES      SESConfig      `yaml:"ses"`
}

// GenericAConfig is a Twilio-style messages API account.
type GenericAConfig struct {
	Enabled        bool    `yaml:"enabled"`
	BaseURL        string  `yaml:"base_url"`
	AccountSID     string  `yaml:"account_sid"`
	APIKey         string  `yaml:"api_key"`
	APISecret      string  `yaml:"api_secret"`
	From           string  `yaml:"from"`
	CostPerSegment float64 `yaml:"cost_per_segment"`
}

// GenericBConfig is a Vonage-style SMS API account.
type GenericBConfig struct {
	Enabled   bool   `yaml:"enabled"`
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	From      string `yaml:"from"`
}

// RegionalConfig is the UAE SMS gateway.
type RegionalConfig struct {
	Enabled        bool    `yaml:"enabled"`
	BaseURL        string  `yaml:"base_url"`
	APIKey         string  `yaml:"api_key"`
	SenderID       string  `yaml:"sender_id"`
	CostPerSegment float64 `yaml:"cost_per_segment"`
}

type WhatsAppConfig struct {
	Enabled       bool   `yaml:"enabled"`
	BaseURL       string `yaml:"base_url"`
	APIVersion    string `yaml:"api_version"`
	PhoneNumberID string `yaml:"phone_number_id"`
	AccessToken   string `yaml:"access_token"`
	VerifyToken   string `yaml:"verify_token"`
	// AppSecret signs webhook deliveries (X-Hub-Signature-256).
	AppSecret string `yaml:"app_secret"`
}

type SESConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	FromEmail string `yaml:"from_email"`
	FromName  string `yaml:"from_name"`
}

type RetryConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
	MaxRetries     int `yaml:"max_retries"`
	BackoffMillis  int `yaml:"backoff_millis"`
}

func (c RetryConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c RetryConfig) Backoff() time.Duration {
	return time.Duration(c.BackoffMillis) * time.Millisecond
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type DeliveryConfig struct {
	PollSeconds int `yaml:"poll_seconds"`
	BatchSize   int `yaml:"batch_size"`
}

func (c DeliveryConfig) PollInterval() time.Duration {
	return time.Duration(c.PollSeconds) * time.Second
}

// EventsConfig controls the execution event stream. Events are only
// published when enabled; the worker consumes them into the audit log.
type EventsConfig struct {
	Enabled bool `yaml:"enabled"`
	// MaxQueued caps the broker queue; the oldest events are dropped first.
	MaxQueued int `yaml:"max_queued"`
}

// Load reads and parses the configuration file. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}
	cfg.setDefaults()
	return &cfg, nil
}

func (cfg *Config) setDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "postgres"
	}
	if cfg.Scheduler.Timezone == "" {
		cfg.Scheduler.Timezone = "Asia/Dubai"
	}
	if cfg.Scheduler.Hour == 0 {
		cfg.Scheduler.Hour = 9
	}
	if cfg.Scheduler.Workers == 0 {
		cfg.Scheduler.Workers = 10
	}
	if cfg.Scheduler.CampaignConcurrency == 0 {
		cfg.Scheduler.CampaignConcurrency = 2
	}
	if cfg.Scheduler.LockTTLSeconds == 0 {
		cfg.Scheduler.LockTTLSeconds = 3600
	}
	if cfg.Scheduler.TickSeconds == 0 {
		cfg.Scheduler.TickSeconds = 60
	}
	if cfg.Triggers.WinBackDays == 0 {
		cfg.Triggers.WinBackDays = 90
	}
	if cfg.Triggers.AnniversaryYears == 0 {
		cfg.Triggers.AnniversaryYears = 1
	}
	if len(cfg.Providers.SMSOrder) == 0 {
		cfg.Providers.SMSOrder = []string{"regional", "generic_a", "generic_b"}
	}
	if cfg.Providers.GenericA.BaseURL == "" {
		cfg.Providers.GenericA.BaseURL = "https://api.twilio.com"
	}
	if cfg.Providers.GenericB.BaseURL == "" {
		cfg.Providers.GenericB.BaseURL = "https://rest.nexmo.com"
	}
	if cfg.Providers.WhatsApp.BaseURL == "" {
		cfg.Providers.WhatsApp.BaseURL = "https://graph.facebook.com"
	}
	if cfg.Providers.WhatsApp.APIVersion == "" {
		cfg.Providers.WhatsApp.APIVersion = "v19.0"
	}
	if cfg.Providers.SES.Region == "" {
		cfg.Providers.SES.Region = "me-central-1"
	}
	if cfg.RateLimits == nil {
		cfg.RateLimits = map[string]int{}
	}
	if cfg.Retry.TimeoutSeconds == 0 {
		cfg.Retry.TimeoutSeconds = 10
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry.MaxRetries = 1
	}
	if cfg.Retry.BackoffMillis == 0 {
		cfg.Retry.BackoffMillis = 500
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Delivery.PollSeconds == 0 {
		cfg.Delivery.PollSeconds = 300
	}
	if cfg.Delivery.BatchSize == 0 {
		cfg.Delivery.BatchSize = 200
	}
	if cfg.Events.MaxQueued == 0 {
		cfg.Events.MaxQueued = 100000
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// A .env file is read first when present.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	setString(&cfg.Database.User, "DB_USER")
	setString(&cfg.Database.Password, "DB_PASSWORD")
	setString(&cfg.Database.Host, "DB_HOST")
	setInt(&cfg.Database.Port, "DB_PORT")
	setString(&cfg.Database.Name, "DB_NAME")
	setString(&cfg.Database.URL, "DATABASE_URL")
	setInt(&cfg.Server.Port, "PORT")
	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setString(&cfg.RabbitMQ.URL, "RABBITMQ_URL")
	setString(&cfg.Storage.Driver, "STORAGE_DRIVER")
	setString(&cfg.Scheduler.Timezone, "SCHEDULER_TIMEZONE")
	setInt(&cfg.Scheduler.Hour, "SCHEDULER_HOUR")
	setBool(&cfg.Scheduler.Enabled, "SCHEDULER_ENABLED")
	setBool(&cfg.Events.Enabled, "EVENTS_ENABLED")
	setInt(&cfg.Events.MaxQueued, "EVENTS_MAX_QUEUED")
	setString(&cfg.Logging.Level, "LOG_LEVEL")

	if v := os.Getenv("SMS_PROVIDER_ORDER"); v != "" {
		cfg.Providers.SMSOrder = splitList(v)
	}
	setString(&cfg.Providers.GenericA.AccountSID, "GENERIC_A_ACCOUNT_SID")
	setString(&cfg.Providers.GenericA.APIKey, "GENERIC_A_API_KEY")
	setString(&cfg.Providers.GenericA.APISecret, "GENERIC_A_API_SECRET")
	setString(&cfg.Providers.GenericB.APIKey, "GENERIC_B_API_KEY")
	setString(&cfg.Providers.GenericB.APISecret, "GENERIC_B_API_SECRET")
	setString(&cfg.Providers.Regional.APIKey, "REGIONAL_SMS_API_KEY")
	setString(&cfg.Providers.WhatsApp.AccessToken, "WHATSAPP_ACCESS_TOKEN")
	setString(&cfg.Providers.WhatsApp.PhoneNumberID, "WHATSAPP_PHONE_NUMBER_ID")
	setString(&cfg.Providers.WhatsApp.VerifyToken, "WHATSAPP_VERIFY_TOKEN")
	setString(&cfg.Providers.WhatsApp.AppSecret, "WHATSAPP_APP_SECRET")
	setString(&cfg.Providers.SES.AccessKey, "AWS_SES_ACCESS_KEY")
	setString(&cfg.Providers.SES.SecretKey, "AWS_SES_SECRET_KEY")
	setString(&cfg.Providers.SES.Region, "AWS_SES_REGION")

	return cfg, nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
