package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone = "UTC"

	configPathEnv         = "MDMWATCH_CONFIG"
	graphTenantEnv        = "GRAPH_TENANT_ID"
	graphClientIDEnv      = "GRAPH_CLIENT_ID"
	graphClientSecretEnv  = "GRAPH_CLIENT_SECRET"
	databaseDSNEnv        = "DATABASE_DSN"
	redisAddrEnv          = "REDIS_ADDR"
	redisPasswordEnv      = "REDIS_PASSWORD"
	telegramTokenEnv      = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv     = "TELEGRAM_CHAT_ID"
	webhookURLEnv         = "WEBHOOK_URL"
	natsURLEnv            = "NATS_URL"
	mailSenderEnv         = "MAIL_SENDER"
	logLevelEnv           = "LOG_LEVEL"
	defaultGraphBaseURL   = "https://graph.microsoft.com/v1.0"
	defaultGraphAuthority = "https://login.microsoftonline.com"
)

// Check names become state keys and NATS subject tokens, so they are kept to
// characters both accept verbatim.
var checkNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// State backends.
const (
	BackendFile     = "file"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendS3       = "s3"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging" toml:"logging"`
	Graph         GraphConfig        `yaml:"graph" toml:"graph"`
	Fetch         FetchConfig        `yaml:"fetch" toml:"fetch"`
	State         StateConfig        `yaml:"state" toml:"state"`
	Notifications NotificationConfig `yaml:"notifications" toml:"notifications"`
	Scheduler     SchedulerConfig    `yaml:"scheduler" toml:"scheduler"`
	Checks        []CheckConfig      `yaml:"checks" toml:"checks"`
}

// LoggingConfig selects level, console format and an optional JSON log file.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
	File   string `yaml:"file" toml:"file"`
}

// GraphConfig describes the app registration and API endpoint.
type GraphConfig struct {
	TenantID     string        `yaml:"tenant_id" toml:"tenant_id"`
	ClientID     string        `yaml:"client_id" toml:"client_id"`
	ClientSecret string        `yaml:"client_secret" toml:"client_secret"`
	Authority    string        `yaml:"authority" toml:"authority"`
	BaseURL      string        `yaml:"base_url" toml:"base_url"`
	Timeout      time.Duration `yaml:"timeout" toml:"timeout"`
}

// FetchConfig tunes pagination pacing and rate-limit retries.
type FetchConfig struct {
	PageDelay time.Duration `yaml:"page_delay" toml:"page_delay"`
	UserAgent string        `yaml:"user_agent" toml:"user_agent"`
	Retry     RetryConfig   `yaml:"retry" toml:"retry"`
}

// RetryConfig mirrors paging.RetryPolicy. MaxAttempts 0 retries forever.
type RetryConfig struct {
	Initial         time.Duration `yaml:"initial" toml:"initial"`
	Multiplier      float64       `yaml:"multiplier" toml:"multiplier"`
	Max             time.Duration `yaml:"max" toml:"max"`
	Jitter          float64       `yaml:"jitter" toml:"jitter"`
	MaxAttempts     int           `yaml:"max_attempts" toml:"max_attempts"`
	HonorRetryAfter *bool         `yaml:"honor_retry_after" toml:"honor_retry_after"`
}

// StateConfig selects where notification state is persisted.
type StateConfig struct {
	Backend  string         `yaml:"backend" toml:"backend"`
	Dir      string         `yaml:"dir" toml:"dir"`
	Redis    RedisConfig    `yaml:"redis" toml:"redis"`
	Postgres PostgresConfig `yaml:"postgres" toml:"postgres"`
	S3       S3Config       `yaml:"s3" toml:"s3"`
}

// RedisConfig describes the Redis state backend.
type RedisConfig struct {
	Addr     string        `yaml:"addr" toml:"addr"`
	Password string        `yaml:"password" toml:"password"`
	DB       int           `yaml:"db" toml:"db"`
	Prefix   string        `yaml:"prefix" toml:"prefix"`
	TTL      time.Duration `yaml:"ttl" toml:"ttl"`
}

// PostgresConfig describes Postgres connection details.
type PostgresConfig struct {
	DSN string `yaml:"dsn" toml:"dsn"`
}

// S3Config describes the object storage backend.
type S3Config struct {
	Bucket   string `yaml:"bucket" toml:"bucket"`
	Prefix   string `yaml:"prefix" toml:"prefix"`
	Region   string `yaml:"region" toml:"region"`
	Endpoint string `yaml:"endpoint" toml:"endpoint"`
}

// NotificationConfig encapsulates outbound channels. Every configured
// channel receives every alert.
type NotificationConfig struct {
	Mail     MailConfig     `yaml:"mail" toml:"mail"`
	Telegram TelegramConfig `yaml:"telegram" toml:"telegram"`
	Webhook  WebhookConfig  `yaml:"webhook" toml:"webhook"`
	NATS     NATSConfig     `yaml:"nats" toml:"nats"`
}

// MailConfig sends through Graph sendMail from a shared mailbox.
type MailConfig struct {
	Sender     string   `yaml:"sender" toml:"sender"`
	Recipients []string `yaml:"recipients" toml:"recipients"`
}

// Enabled reports whether mail delivery is configured.
func (m MailConfig) Enabled() bool {
	return m.Sender != "" && len(m.Recipients) > 0
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token" toml:"bot_token"`
	ChatID   string `yaml:"chat_id" toml:"chat_id"`
	APIBase  string `yaml:"api_base" toml:"api_base"`
}

// Enabled reports whether Telegram delivery is configured.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// WebhookConfig posts JSON alerts to an HTTP endpoint.
type WebhookConfig struct {
	URL     string        `yaml:"url" toml:"url"`
	Token   string        `yaml:"token" toml:"token"`
	Timeout time.Duration `yaml:"timeout" toml:"timeout"`
}

// NATSConfig publishes alerts on a subject hierarchy.
type NATSConfig struct {
	URL     string `yaml:"url" toml:"url"`
	Subject string `yaml:"subject" toml:"subject"`
}

// SchedulerConfig defines how often watch mode runs.
type SchedulerConfig struct {
	Interval time.Duration  `yaml:"interval" toml:"interval"`
	Timezone string         `yaml:"timezone" toml:"timezone"`
	location *time.Location `yaml:"-" toml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// CheckConfig describes one monitored collection and its alert channel.
type CheckConfig struct {
	Name              string   `yaml:"name" toml:"name"`
	Title             string   `yaml:"title" toml:"title"`
	URI               string   `yaml:"uri" toml:"uri"`
	Classifier        string   `yaml:"classifier" toml:"classifier"`
	TimeField         string   `yaml:"time_field" toml:"time_field"`
	ThresholdHours    float64  `yaml:"threshold_hours" toml:"threshold_hours"`
	ExpiringSoonHours float64  `yaml:"expiring_soon_hours" toml:"expiring_soon_hours"`
	Field             string   `yaml:"field" toml:"field"`
	Values            []string `yaml:"values" toml:"values"`
	UrgentHours       float64  `yaml:"urgent_hours" toml:"urgent_hours"`
	EscalationHours   float64  `yaml:"escalation_hours" toml:"escalation_hours"`
	LabelField        string   `yaml:"label_field" toml:"label_field"`
	IDField           string   `yaml:"id_field" toml:"id_field"`
	ForceNotification bool     `yaml:"force_notification" toml:"force_notification"`
}

// Hours converts a fractional hour count from configuration.
func Hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

// Path returns the configuration file named by MDMWATCH_CONFIG.
func Path() string {
	return os.Getenv(configPathEnv)
}

// Load reads YAML or TOML configuration (if path is set) and applies
// environment overrides. An empty path yields defaults plus environment.
func Load(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		fileCfg, err := readFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg = mergeConfig(cfg, fileCfg)
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	if len(cfg.Checks) == 0 {
		cfg.Checks = defaultConfig().Checks
	}

	return cfg, nil
}

func readFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var fileCfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(raw), &fileCfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	return fileCfg, nil
}

func (c *Config) applyEnvOverrides() {
	setFromEnv(&c.Graph.TenantID, graphTenantEnv)
	setFromEnv(&c.Graph.ClientID, graphClientIDEnv)
	setFromEnv(&c.Graph.ClientSecret, graphClientSecretEnv)
	setFromEnv(&c.State.Postgres.DSN, databaseDSNEnv)
	setFromEnv(&c.State.Redis.Addr, redisAddrEnv)
	setFromEnv(&c.State.Redis.Password, redisPasswordEnv)
	setFromEnv(&c.Notifications.Telegram.BotToken, telegramTokenEnv)
	setFromEnv(&c.Notifications.Telegram.ChatID, telegramChatIDEnv)
	setFromEnv(&c.Notifications.Webhook.URL, webhookURLEnv)
	setFromEnv(&c.Notifications.NATS.URL, natsURLEnv)
	setFromEnv(&c.Notifications.Mail.Sender, mailSenderEnv)
	setFromEnv(&c.Logging.Level, logLevelEnv)
}

func setFromEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc, _ = time.LoadLocation(defaultTimezone)
		c.Scheduler.Timezone = defaultTimezone
	}
	c.Scheduler.location = loc
}

// Validate rejects settings the application cannot start with. hasClassifier
// reports whether a classifier rule name is registered.
func (c Config) Validate(hasClassifier func(string) bool) error {
	var errs []error

	switch c.State.Backend {
	case BackendFile:
		if c.State.Dir == "" {
			errs = append(errs, errors.New("state.dir is required for the file backend"))
		}
	case BackendMemory:
	case BackendRedis:
		if c.State.Redis.Addr == "" {
			errs = append(errs, errors.New("state.redis.addr is required for the redis backend"))
		}
	case BackendPostgres:
		if c.State.Postgres.DSN == "" {
			errs = append(errs, errors.New("state.postgres.dsn is required for the postgres backend"))
		}
	case BackendS3:
		if c.State.S3.Bucket == "" {
			errs = append(errs, errors.New("state.s3.bucket is required for the s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown state backend %q", c.State.Backend))
	}

	if c.Scheduler.Interval < 0 {
		errs = append(errs, errors.New("scheduler.interval must not be negative"))
	}
	if c.Notifications.Mail.Sender != "" && len(c.Notifications.Mail.Recipients) == 0 {
		errs = append(errs, errors.New("notifications.mail.recipients is required when a sender is set"))
	}

	if len(c.Checks) == 0 {
		errs = append(errs, errors.New("at least one check is required"))
	}
	seen := map[string]bool{}
	for i, check := range c.Checks {
		label := check.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i+1)
			errs = append(errs, fmt.Errorf("check %s: name is required", label))
		} else if !checkNamePattern.MatchString(check.Name) {
			errs = append(errs, fmt.Errorf("check %q: name must match %s", check.Name, checkNamePattern))
		}
		if seen[check.Name] {
			errs = append(errs, fmt.Errorf("check %s: duplicate name", label))
		}
		seen[check.Name] = true
		if check.URI == "" {
			errs = append(errs, fmt.Errorf("check %s: uri is required", label))
		}
		if hasClassifier != nil && !hasClassifier(check.Classifier) {
			errs = append(errs, fmt.Errorf("check %s: unknown classifier %q", label, check.Classifier))
		}
		if check.UrgentHours < 0 || check.EscalationHours < 0 || check.ThresholdHours < 0 {
			errs = append(errs, fmt.Errorf("check %s: hour thresholds must not be negative", label))
		}
	}

	return errors.Join(errs...)
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}
	if override.Logging.File != "" {
		base.Logging.File = override.Logging.File
	}

	mergeString(&base.Graph.TenantID, override.Graph.TenantID)
	mergeString(&base.Graph.ClientID, override.Graph.ClientID)
	mergeString(&base.Graph.ClientSecret, override.Graph.ClientSecret)
	mergeString(&base.Graph.Authority, override.Graph.Authority)
	mergeString(&base.Graph.BaseURL, override.Graph.BaseURL)
	if override.Graph.Timeout > 0 {
		base.Graph.Timeout = override.Graph.Timeout
	}

	if override.Fetch.PageDelay > 0 {
		base.Fetch.PageDelay = override.Fetch.PageDelay
	}
	mergeString(&base.Fetch.UserAgent, override.Fetch.UserAgent)
	base.Fetch.Retry = mergeRetry(base.Fetch.Retry, override.Fetch.Retry)

	mergeString(&base.State.Backend, override.State.Backend)
	mergeString(&base.State.Dir, override.State.Dir)
	if override.State.Redis.Addr != "" {
		base.State.Redis = override.State.Redis
	}
	if override.State.Postgres.DSN != "" {
		base.State.Postgres = override.State.Postgres
	}
	if override.State.S3.Bucket != "" {
		base.State.S3 = override.State.S3
	}

	if override.Notifications.Mail.Sender != "" || len(override.Notifications.Mail.Recipients) > 0 {
		base.Notifications.Mail = override.Notifications.Mail
	}
	mergeString(&base.Notifications.Telegram.BotToken, override.Notifications.Telegram.BotToken)
	mergeString(&base.Notifications.Telegram.ChatID, override.Notifications.Telegram.ChatID)
	mergeString(&base.Notifications.Telegram.APIBase, override.Notifications.Telegram.APIBase)
	if override.Notifications.Webhook.URL != "" {
		base.Notifications.Webhook = override.Notifications.Webhook
	}
	mergeString(&base.Notifications.NATS.URL, override.Notifications.NATS.URL)
	mergeString(&base.Notifications.NATS.Subject, override.Notifications.NATS.Subject)

	if override.Scheduler.Interval > 0 {
		base.Scheduler.Interval = override.Scheduler.Interval
	}
	mergeString(&base.Scheduler.Timezone, override.Scheduler.Timezone)

	if len(override.Checks) > 0 {
		base.Checks = override.Checks
	}

	return base
}

func mergeRetry(base, override RetryConfig) RetryConfig {
	if override.Initial > 0 {
		base.Initial = override.Initial
	}
	if override.Multiplier > 0 {
		base.Multiplier = override.Multiplier
	}
	if override.Max > 0 {
		base.Max = override.Max
	}
	if override.Jitter > 0 {
		base.Jitter = override.Jitter
	}
	if override.MaxAttempts > 0 {
		base.MaxAttempts = override.MaxAttempts
	}
	if override.HonorRetryAfter != nil {
		base.HonorRetryAfter = override.HonorRetryAfter
	}
	return base
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	honor := true
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "auto"},
		Graph: GraphConfig{
			Authority: defaultGraphAuthority,
			BaseURL:   defaultGraphBaseURL,
			Timeout:   60 * time.Second,
		},
		Fetch: FetchConfig{
			PageDelay: 100 * time.Millisecond,
			Retry: RetryConfig{
				Initial:         60 * time.Second,
				Multiplier:      1,
				Max:             60 * time.Second,
				HonorRetryAfter: &honor,
			},
		},
		State:     StateConfig{Backend: BackendFile, Dir: "state"},
		Scheduler: SchedulerConfig{Interval: time.Hour, Timezone: defaultTimezone, location: tz},
		Checks: []CheckConfig{
			{
				Name:            "stale-devices",
				Title:           "Devices not synced for 30 days",
				URI:             "/deviceManagement/managedDevices?$select=id,deviceName,lastSyncDateTime,userPrincipalName",
				Classifier:      "stale",
				TimeField:       "lastSyncDateTime",
				ThresholdHours:  30 * 24,
				EscalationHours: 60 * 24,
				UrgentHours:     90 * 24,
				LabelField:      "deviceName",
			},
			{
				Name:       "noncompliant-devices",
				Title:      "Non-compliant devices",
				URI:        "/deviceManagement/managedDevices?$select=id,deviceName,complianceState,lastSyncDateTime",
				Classifier: "match",
				Field:      "complianceState",
				Values:     []string{"noncompliant"},
				TimeField:  "lastSyncDateTime",
				LabelField: "deviceName",
			},
			{
				Name:              "expiring-vpp-tokens",
				Title:             "Expiring VPP tokens",
				URI:               "/deviceAppManagement/vppTokens",
				Classifier:        "expiring",
				TimeField:         "expirationDateTime",
				ThresholdHours:    30 * 24,
				ExpiringSoonHours: 7 * 24,
				UrgentHours:       1,
				LabelField:        "organizationName",
			},
			{
				Name:       "pending-approvals",
				Title:      "Pending app consent requests",
				URI:        "/identityGovernance/appConsent/appConsentRequests",
				Classifier: "all",
				LabelField: "appDisplayName",
			},
		},
	}
}
