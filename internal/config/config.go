package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/congo-pay/deposit_ledger/internal/key"
)

const envDevelopment = "development"

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string        `env:"APP_NAME"         envDefault:"DepositLedger"`
	AppEnv         string        `env:"APP_ENV"          envDefault:"development"`
	Port           string        `env:"PORT"             envDefault:"8080"`
	LogLevel       string        `env:"LOG_LEVEL"        envDefault:"info"`
	DatabaseURL    string        `env:"DATABASE_URL"`
	RedisURL       string        `env:"REDIS_URL"`
	ShutdownPeriod time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL"  envDefault:"24h"`
	SignerRate     int           `env:"SIGNER_RATE_PER_MINUTE" envDefault:"60"`

	CommitFrequency time.Duration `env:"DELEGATION_COMMIT_FREQUENCY" envDefault:"30s"`
	Validator       string        `env:"DELEGATION_VALIDATOR"`
	ExecContext     string        `env:"EXECUTION_CONTEXT"`
	ExecProgram     string        `env:"EXECUTION_PROGRAM"`

	// DevAssets are registered with the in-process asset service when no
	// external one is configured.
	DevAssets        []string `env:"DEV_ASSETS"         envSeparator:","`
	DevAssetDecimals uint8    `env:"DEV_ASSET_DECIMALS" envDefault:"6"`

	// Parsed from the string fields above by Load.
	DelegationValidator key.Key   `env:"-"`
	ExecutionContext    key.Key   `env:"-"`
	ExecutionProgram    key.Key   `env:"-"`
	DevAssetKeys        []key.Key `env:"-"`
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	var err error
	if cfg.DelegationValidator, err = optionalKey("DELEGATION_VALIDATOR", cfg.Validator); err != nil {
		return Config{}, err
	}
	if cfg.ExecutionContext, err = optionalKey("EXECUTION_CONTEXT", cfg.ExecContext); err != nil {
		return Config{}, err
	}
	if cfg.ExecutionProgram, err = optionalKey("EXECUTION_PROGRAM", cfg.ExecProgram); err != nil {
		return Config{}, err
	}
	for _, raw := range cfg.DevAssets {
		asset, err := key.Parse(strings.TrimSpace(raw))
		if err != nil {
			return Config{}, fmt.Errorf("invalid DEV_ASSETS entry %q: %w", raw, err)
		}
		cfg.DevAssetKeys = append(cfg.DevAssetKeys, asset)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error
	if c.SignerRate <= 0 {
		errs = append(errs, fmt.Errorf("SIGNER_RATE_PER_MINUTE must be positive"))
	}
	if c.CommitFrequency <= 0 {
		errs = append(errs, fmt.Errorf("DELEGATION_COMMIT_FREQUENCY must be positive"))
	}
	if !c.IsDevelopment() {
		if c.DatabaseURL == "" {
			errs = append(errs, fmt.Errorf("DATABASE_URL must be set"))
		}
		if c.RedisURL == "" {
			errs = append(errs, fmt.Errorf("REDIS_URL must be set"))
		}
		if c.ExecutionContext.IsZero() || c.ExecutionProgram.IsZero() {
			errs = append(errs, fmt.Errorf("EXECUTION_CONTEXT and EXECUTION_PROGRAM must be set"))
		}
	}
	return errors.Join(errs...)
}

// IsDevelopment reports whether in-memory backends may stand in for
// unconfigured infrastructure.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == envDevelopment
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func optionalKey(name, raw string) (key.Key, error) {
	if raw == "" {
		return key.Zero, nil
	}
	k, err := key.Parse(raw)
	if err != nil {
		return key.Zero, fmt.Errorf("invalid %s: %w", name, err)
	}
	return k, nil
}
