package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

const (
	EnvPrefix = "BEAUTYLINK"

	AppEnvDev  = "development"
	AppEnvProd = "production"

	EnvAppEnv   = "BEAUTYLINK_APP_ENV"
	EnvPort     = "BEAUTYLINK_APP_PORT"
	EnvDBDSN    = "BEAUTYLINK_DB_DSN"
	EnvDBHost   = "BEAUTYLINK_DB_HOST"
	EnvDBUser   = "BEAUTYLINK_DB_USER"
	EnvDBName   = "BEAUTYLINK_DB_NAME"
	EnvRedisURL = "BEAUTYLINK_REDIS_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Points       PointsConfig
	Ingest       IngestConfig
	Cron         CronConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Points.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"BEAUTYLINK_APP_ENV" required:"true"`
	Port         string `envconfig:"BEAUTYLINK_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"BEAUTYLINK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"BEAUTYLINK_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"BEAUTYLINK_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"BEAUTYLINK_DB_DSN"`
	Driver string `envconfig:"BEAUTYLINK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"BEAUTYLINK_DB_HOST"`
	LegacyPort     int    `envconfig:"BEAUTYLINK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"BEAUTYLINK_DB_USER"`
	LegacyPassword string `envconfig:"BEAUTYLINK_DB_PASSWORD"`
	LegacyName     string `envconfig:"BEAUTYLINK_DB_NAME"`
	LegacySSLMode  string `envconfig:"BEAUTYLINK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BEAUTYLINK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BEAUTYLINK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BEAUTYLINK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BEAUTYLINK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"BEAUTYLINK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"BEAUTYLINK_REDIS_ADDR"`
	Password     string        `envconfig:"BEAUTYLINK_REDIS_PASSWORD"`
	DB           int           `envconfig:"BEAUTYLINK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BEAUTYLINK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BEAUTYLINK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BEAUTYLINK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BEAUTYLINK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BEAUTYLINK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// PointsConfig carries the reward-policy knobs for the point ledger.
type PointsConfig struct {
	// ServiceRewardRate is the fraction of the paid amount credited back to
	// the paying user, e.g. "0.10" for 10%.
	ServiceRewardRate string `envconfig:"BEAUTYLINK_POINTS_SERVICE_REWARD_RATE" default:"0.10"`
	// ReferralRate is the fraction of the rounded service reward cascaded to
	// the referrer.
	ReferralRate string `envconfig:"BEAUTYLINK_POINTS_REFERRAL_RATE" default:"0.10"`
	// InfluencerReferralRate replaces ReferralRate when the referrer is an
	// influencer account.
	InfluencerReferralRate string `envconfig:"BEAUTYLINK_POINTS_INFLUENCER_RATE" default:"0.20"`

	// GracePeriod is how long a granted entry stays pending before it can
	// mature to available (the reservation's cancellation window).
	GracePeriod time.Duration `envconfig:"BEAUTYLINK_POINTS_GRACE_PERIOD" default:"168h"`
	// RewardValidity is how long a matured entry stays redeemable, counted
	// from its available_from instant.
	RewardValidity time.Duration `envconfig:"BEAUTYLINK_POINTS_REWARD_VALIDITY" default:"8760h"`

	SweepBatchSize int `envconfig:"BEAUTYLINK_POINTS_SWEEP_BATCH_SIZE" default:"500"`
}

func (p PointsConfig) validate() error {
	for name, raw := range map[string]string{
		"service reward rate":      p.ServiceRewardRate,
		"referral rate":            p.ReferralRate,
		"influencer referral rate": p.InfluencerReferralRate,
	} {
		rate, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, raw, err)
		}
		if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("%s %q must be within [0, 1]", name, raw)
		}
	}
	if p.GracePeriod < 0 {
		return fmt.Errorf("grace period must be non-negative")
	}
	if p.RewardValidity <= 0 {
		return fmt.Errorf("reward validity must be positive")
	}
	return nil
}

// ServiceRewardRateDecimal returns the parsed service reward rate. Call only
// after Load has validated the config.
func (p PointsConfig) ServiceRewardRateDecimal() decimal.Decimal {
	return decimal.RequireFromString(p.ServiceRewardRate)
}

// ReferralRateDecimal returns the parsed referral cascade rate.
func (p PointsConfig) ReferralRateDecimal() decimal.Decimal {
	return decimal.RequireFromString(p.ReferralRate)
}

// InfluencerRateDecimal returns the parsed influencer cascade rate.
func (p PointsConfig) InfluencerRateDecimal() decimal.Decimal {
	return decimal.RequireFromString(p.InfluencerReferralRate)
}

// IngestConfig throttles the payment-fact ingest surface.
type IngestConfig struct {
	RateLimitWindow time.Duration `envconfig:"BEAUTYLINK_INGEST_RATE_WINDOW" default:"1m"`
	RateLimitMax    int           `envconfig:"BEAUTYLINK_INGEST_RATE_MAX" default:"600"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"BEAUTYLINK_CRON_INTERVAL" default:"15m"`
	LockTTL  time.Duration `envconfig:"BEAUTYLINK_CRON_LOCK_TTL" default:"30m"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"BEAUTYLINK_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"BEAUTYLINK_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"BEAUTYLINK_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"BEAUTYLINK_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	PointsTopic        string `envconfig:"BEAUTYLINK_PUBSUB_POINTS_TOPIC" default:"bl-point-events"`
	PointsSubscription string `envconfig:"BEAUTYLINK_PUBSUB_POINTS_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"BEAUTYLINK_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"BEAUTYLINK_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"BEAUTYLINK_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
