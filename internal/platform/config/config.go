// Package config loads the environment configuration and holds the mutable
// runtime settings record the dashboard can replace at runtime.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ErrInvalid marks configuration the process must not start with.
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	AppEnv      string `env:"APP_ENV" envDefault:"local"`
	PostgresDSN string `env:"POSTGRES_DSN,required"`

	BotToken      string  `env:"TELEGRAM_BOT_TOKEN,required"`
	BackupGroupID int64   `env:"BACKUP_GROUP_ID,required"`
	IgnoredChats  []int64 `env:"IGNORED_CHAT_IDS" envSeparator:","`

	SimilarityThreshold float64       `env:"SIMILARITY_THRESHOLD" envDefault:"0.85"`
	WorkerPoolSize      int           `env:"WORKER_POOL_SIZE" envDefault:"4"`
	TransportRPS        float64       `env:"TRANSPORT_RPS" envDefault:"1"`
	RetryMaxAttempts    int           `env:"RETRY_MAX_ATTEMPTS" envDefault:"5"`
	RetryBaseDelay      time.Duration `env:"RETRY_BASE_DELAY" envDefault:"1s"`
	TopicCreateTimeout  time.Duration `env:"TOPIC_CREATE_TIMEOUT" envDefault:"30s"`

	HealthPort    int    `env:"HEALTH_PORT" envDefault:"8090"`
	DashboardAddr string `env:"DASHBOARD_ADDR" envDefault:":8080"`

	// MTProto credentials for the topic lister. Optional; reconciliation
	// falls back to persisted bindings when unset.
	TGAPIID       int    `env:"TG_API_ID"`
	TGAPIHash     string `env:"TG_API_HASH"`
	TGPhone       string `env:"TG_PHONE"`
	TG2FAPassword string `env:"TG_2FA_PASSWORD"`
	TGSessionPath string `env:"TG_SESSION_PATH" envDefault:"./tg.session"`

	DBMaxConnections int32         `env:"DB_MAX_CONNECTIONS" envDefault:"10"`
	DBMinConnections int32         `env:"DB_MIN_CONNECTIONS" envDefault:"2"`
	DBMaxConnIdle    time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`
	DBMaxConnLife    time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
}

func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env file is optional, error is expected when not present

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.BotToken == "" {
		return fmt.Errorf("%w: TELEGRAM_BOT_TOKEN is empty", ErrInvalid)
	}

	if c.BackupGroupID == 0 {
		return fmt.Errorf("%w: BACKUP_GROUP_ID is zero", ErrInvalid)
	}

	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: SIMILARITY_THRESHOLD %v outside (0,1]", ErrInvalid, c.SimilarityThreshold)
	}

	if c.WorkerPoolSize < 1 {
		return fmt.Errorf("%w: WORKER_POOL_SIZE must be at least 1", ErrInvalid)
	}

	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("%w: RETRY_MAX_ATTEMPTS must be at least 1", ErrInvalid)
	}

	return nil
}

// ListerEnabled reports whether MTProto credentials are configured.
func (c *Config) ListerEnabled() bool {
	return c.TGAPIID != 0 && c.TGAPIHash != ""
}

// Runtime returns the initial runtime settings derived from the environment.
// Persisted dashboard overrides are layered on top by the app at startup.
func (c *Config) Runtime() Runtime {
	ignored := make(map[int64]struct{}, len(c.IgnoredChats))
	for _, id := range c.IgnoredChats {
		ignored[id] = struct{}{}
	}

	return Runtime{
		BackupGroupID:       c.BackupGroupID,
		SimilarityThreshold: c.SimilarityThreshold,
		IgnoredChatIDs:      ignored,
	}
}
