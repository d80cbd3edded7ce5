package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/mrlokans/listenwise/internal/crypto"
)

type (
	Config struct {
		HTTP
		Global
		Database
		Vault
		Audible
		Sync
		Session
		Runs
		Recommend
		Tasks
		Audit
	}

	HTTP struct {
		Enabled bool
		Port    int32
		Host    string
	}
	Global struct {
		ShutdownTimeoutInSeconds int
	}
	Database struct {
		Path string
	}
	Vault struct {
		MasterKey string // raw value; see MasterKeyBytes
	}
	Audible struct {
		APIURL      string // empty: derived from the marketplace
		AuthURL     string
		TokenURL    string
		RateLimit   float64 // requests per second per marketplace host
		RateBurst   int
		HTTPTimeout time.Duration
	}
	Sync struct {
		PageSize        int
		MaxPages        int
		PageRetries     int
		ScheduleEnabled bool
		Schedule        string // Cron format: "0 3 * * *" = daily at 03:00
		Recommend       bool   // enqueue a recommendation run after each scheduled sync
	}
	Session struct {
		OTPMaxAttempts  int
		OTPChallengeTTL time.Duration
		RefreshEnabled  bool
		RefreshMargin   time.Duration
		RefreshInterval time.Duration
	}
	Runs struct {
		StaleAfter time.Duration
	}
	Recommend struct {
		PriceThreshold float64
		LimitAuthors   int
		LimitNarrators int
		LimitSeries    int
		SearchResults  int
	}
	Tasks struct {
		Enabled         bool
		Workers         int
		ReleaseAfter    time.Duration
		CleanupInterval time.Duration
	}
	Audit struct {
		RetentionDays int
	}
)

func NewConfig() *Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("http_enabled", false)
	v.SetDefault("port", 8188)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("shutdown_timeout_in_seconds", 10)
	v.SetDefault("database_path", DefaultDatabasePath)
	v.SetDefault("audipy_master_key", "")

	v.SetDefault("audible_api_url", "")
	v.SetDefault("audible_auth_url", "")
	v.SetDefault("audible_token_url", "")
	v.SetDefault("audible_rate_limit", 1.0)
	v.SetDefault("audible_rate_burst", 3)
	v.SetDefault("audible_http_timeout", "30s")

	v.SetDefault("sync_page_size", 50)
	v.SetDefault("sync_max_pages", 100)
	v.SetDefault("sync_page_retries", 3)
	v.SetDefault("sync_schedule_enabled", false)
	v.SetDefault("sync_schedule", "0 3 * * *")
	v.SetDefault("sync_recommend", true)

	v.SetDefault("otp_max_attempts", 3)
	v.SetDefault("otp_challenge_ttl", "15m")
	v.SetDefault("session_refresh_enabled", true)
	v.SetDefault("session_refresh_margin", "5m")
	v.SetDefault("session_refresh_interval", "10m")

	v.SetDefault("run_stale_after", "30m")

	v.SetDefault("recommend_price_threshold", 12.66)
	v.SetDefault("recommend_limit_authors", 5)
	v.SetDefault("recommend_limit_narrators", 5)
	v.SetDefault("recommend_limit_series", 5)
	v.SetDefault("recommend_search_results", 20)

	v.SetDefault("tasks_enabled", true)
	v.SetDefault("tasks_workers", 2)
	v.SetDefault("tasks_release_after", "45m")
	v.SetDefault("tasks_cleanup_interval", "1h")
	v.SetDefault("audit_retention_days", 90)

	pageSize := v.GetInt("SYNC_PAGE_SIZE")
	if pageSize > 1000 {
		pageSize = 1000
	}

	return &Config{
		HTTP: HTTP{
			Enabled: v.GetBool("HTTP_ENABLED"),
			Port:    v.GetInt32("PORT"),
			Host:    v.GetString("HOST"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
		},
		Database: Database{
			Path: v.GetString("DATABASE_PATH"),
		},
		Vault: Vault{
			MasterKey: v.GetString(MasterKeyEnv),
		},
		Audible: Audible{
			APIURL:      v.GetString("AUDIBLE_API_URL"),
			AuthURL:     v.GetString("AUDIBLE_AUTH_URL"),
			TokenURL:    v.GetString("AUDIBLE_TOKEN_URL"),
			RateLimit:   v.GetFloat64("AUDIBLE_RATE_LIMIT"),
			RateBurst:   v.GetInt("AUDIBLE_RATE_BURST"),
			HTTPTimeout: v.GetDuration("AUDIBLE_HTTP_TIMEOUT"),
		},
		Sync: Sync{
			PageSize:        pageSize,
			MaxPages:        v.GetInt("SYNC_MAX_PAGES"),
			PageRetries:     v.GetInt("SYNC_PAGE_RETRIES"),
			ScheduleEnabled: v.GetBool("SYNC_SCHEDULE_ENABLED"),
			Schedule:        v.GetString("SYNC_SCHEDULE"),
			Recommend:       v.GetBool("SYNC_RECOMMEND"),
		},
		Session: Session{
			OTPMaxAttempts:  v.GetInt("OTP_MAX_ATTEMPTS"),
			OTPChallengeTTL: v.GetDuration("OTP_CHALLENGE_TTL"),
			RefreshEnabled:  v.GetBool("SESSION_REFRESH_ENABLED"),
			RefreshMargin:   v.GetDuration("SESSION_REFRESH_MARGIN"),
			RefreshInterval: v.GetDuration("SESSION_REFRESH_INTERVAL"),
		},
		Runs: Runs{
			StaleAfter: v.GetDuration("RUN_STALE_AFTER"),
		},
		Recommend: Recommend{
			PriceThreshold: v.GetFloat64("RECOMMEND_PRICE_THRESHOLD"),
			LimitAuthors:   v.GetInt("RECOMMEND_LIMIT_AUTHORS"),
			LimitNarrators: v.GetInt("RECOMMEND_LIMIT_NARRATORS"),
			LimitSeries:    v.GetInt("RECOMMEND_LIMIT_SERIES"),
			SearchResults:  v.GetInt("RECOMMEND_SEARCH_RESULTS"),
		},
		Tasks: Tasks{
			Enabled:         v.GetBool("TASKS_ENABLED"),
			Workers:         v.GetInt("TASKS_WORKERS"),
			ReleaseAfter:    v.GetDuration("TASKS_RELEASE_AFTER"),
			CleanupInterval: v.GetDuration("TASKS_CLEANUP_INTERVAL"),
		},
		Audit: Audit{
			RetentionDays: v.GetInt("AUDIT_RETENTION_DAYS"),
		},
	}
}

// MasterKeyBytes parses the vault master secret. It is required by every
// command that opens the vault.
func (c *Config) MasterKeyBytes() ([]byte, error) {
	if c.Vault.MasterKey == "" {
		return nil, fmt.Errorf("%s is not set", MasterKeyEnv)
	}
	key, err := crypto.ParseMasterKey(c.Vault.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", MasterKeyEnv, err)
	}
	return key, nil
}
