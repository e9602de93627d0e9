package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DBPath      string
	DatabaseURL string // when set, Postgres is used instead of SQLite
	LogPath     string
	UserAgent   string
	Scheduler   SchedulerConfig
	Fetch       FetchConfig
	Dispatch    DispatchConfig
	Twilio      TwilioConfig
	Chat        ChatConfig
	SMTP        SMTPConfig
	Snapshot    SnapshotConfig
	MockSenders bool
	Sources     map[string]*SourceConfig
}

type SchedulerConfig struct {
	Interval time.Duration
	Cron     string
}

type FetchConfig struct {
	Timeout     time.Duration
	MaxAttempts uint
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

type DispatchConfig struct {
	Workers    int
	RetryDelay time.Duration
}

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

func (c TwilioConfig) Configured() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.FromNumber != ""
}

type ChatConfig struct {
	WebhookURL string
	AuthToken  string
}

func (c ChatConfig) Configured() bool {
	return c.WebhookURL != ""
}

type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromAddress string
}

func (c SMTPConfig) Configured() bool {
	return c.Host != "" && c.Port != 0 && c.FromAddress != ""
}

// SnapshotConfig drives the optional raw-page archive to S3-compatible
// storage. Left unconfigured, snapshots are skipped entirely.
type SnapshotConfig struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

func (c SnapshotConfig) Configured() bool {
	return c.Bucket != "" && c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// SourceConfig describes one marketplace page to ingest. Loaded from
// config/sources/*.yaml so new sources don't need a rebuild.
type SourceConfig struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	URL          string `yaml:"url"`
	Handler      string `yaml:"handler"` // http (default) or browser
	WaitSelector string `yaml:"wait_selector"`
	RateLimitMS  int    `yaml:"rate_limit_ms"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBPath:      getEnv("DB_PATH", "craiseek.db"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		LogPath:     getEnv("LOG_PATH", "daemon.log"),
		UserAgent: getEnv("SCRAPER_USER_AGENT",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
		Scheduler: SchedulerConfig{
			Interval: getEnvDuration("SCRAPE_INTERVAL", 5*time.Minute),
			Cron:     os.Getenv("SCRAPE_CRON"),
		},
		Fetch: FetchConfig{
			Timeout:     getEnvDuration("REQUEST_TIMEOUT", 10*time.Second),
			MaxAttempts: uint(getEnvInt("FETCH_MAX_ATTEMPTS", 5)),
			BaseDelay:   getEnvDuration("FETCH_BASE_DELAY", 1*time.Second),
			MaxDelay:    getEnvDuration("FETCH_MAX_DELAY", 2*time.Minute),
		},
		Dispatch: DispatchConfig{
			Workers:    getEnvInt("DISPATCH_WORKERS", 4),
			RetryDelay: getEnvDuration("DISPATCH_RETRY_DELAY", 2*time.Second),
		},
		Twilio: TwilioConfig{
			AccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
			AuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
			FromNumber: os.Getenv("TWILIO_FROM_NUMBER"),
		},
		Chat: ChatConfig{
			WebhookURL: os.Getenv("CHAT_WEBHOOK_URL"),
			AuthToken:  os.Getenv("CHAT_AUTH_TOKEN"),
		},
		SMTP: SMTPConfig{
			Host:        os.Getenv("EMAIL_SMTP_HOST"),
			Port:        getEnvInt("EMAIL_SMTP_PORT", 0),
			Username:    os.Getenv("EMAIL_SMTP_USERNAME"),
			Password:    os.Getenv("EMAIL_SMTP_PASSWORD"),
			FromAddress: os.Getenv("EMAIL_FROM_ADDRESS"),
		},
		Snapshot: SnapshotConfig{
			Bucket:          os.Getenv("SNAPSHOT_S3_BUCKET"),
			Region:          getEnv("SNAPSHOT_S3_REGION", "us-east-1"),
			Endpoint:        os.Getenv("SNAPSHOT_S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("SNAPSHOT_S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("SNAPSHOT_S3_SECRET_ACCESS_KEY"),
		},
		MockSenders: os.Getenv("MOCK_SENDERS") == "true",
		Sources:     make(map[string]*SourceConfig),
	}

	if err := cfg.loadSourceConfigs(getEnv("SOURCES_DIR", "config/sources")); err != nil {
		return nil, err
	}

	// Single-source setups can skip the YAML directory entirely.
	if url := os.Getenv("TARGET_URL"); url != "" && len(cfg.Sources) == 0 {
		cfg.Sources["default"] = &SourceConfig{ID: "default", Name: "default", URL: url, Handler: "http"}
	}

	return cfg, nil
}

func (c *Config) loadSourceConfigs(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return err
		}

		var src SourceConfig
		if err := yaml.Unmarshal(data, &src); err != nil {
			return err
		}
		if src.ID == "" {
			continue
		}
		if src.Handler == "" {
			src.Handler = "http"
		}

		c.Sources[src.ID] = &src
	}

	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
