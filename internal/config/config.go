// Package config provides Viper-based hierarchical configuration:
// defaults, then an optional config.yaml, then BILLRECON_* environment
// variables. A .env file in the working directory is honored for local
// development.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config is the complete application configuration.
type Config struct {
	Log struct {
		Level  string `mapstructure:"level" yaml:"level"`
		Format string `mapstructure:"format" yaml:"format"`
	} `mapstructure:"log" yaml:"log"`

	Owner struct {
		// Token is the identifier the transaction source embeds in
		// merchant text for the tracked owner. Transactions without it
		// are skipped.
		Token string `mapstructure:"token" yaml:"token"`
		// CategoryKey is the ledger partition this instance reconciles.
		CategoryKey string `mapstructure:"category_key" yaml:"category_key"`
	} `mapstructure:"owner" yaml:"owner"`

	Matcher struct {
		// AmountTolerance is the relative deviation above the nominal
		// amount a payment may carry and still match. Underpayments
		// always match as partial payments.
		AmountTolerance float64 `mapstructure:"amount_tolerance" yaml:"amount_tolerance"`
	} `mapstructure:"matcher" yaml:"matcher"`

	Ledger struct {
		// Backend is "memory" or "sqlite".
		Backend    string `mapstructure:"backend" yaml:"backend"`
		SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	} `mapstructure:"ledger" yaml:"ledger"`

	Reconciler struct {
		// MaxAttempts bounds the compare-and-swap retry loop.
		MaxAttempts   int  `mapstructure:"max_attempts" yaml:"max_attempts"`
		NotifyEnabled bool `mapstructure:"notify_enabled" yaml:"notify_enabled"`
	} `mapstructure:"reconciler" yaml:"reconciler"`

	Rules struct {
		File string `mapstructure:"file" yaml:"file"`
	} `mapstructure:"rules" yaml:"rules"`

	Serve struct {
		Addr string `mapstructure:"addr" yaml:"addr"`
	} `mapstructure:"serve" yaml:"serve"`
}

// Load initializes configuration with hierarchical precedence.
func Load() (*Config, error) {
	loadDotEnv()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME/.billrecon")
	v.AddConfigPath(".billrecon")
	v.AddConfigPath(".")

	v.SetEnvPrefix("BILLRECON")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// A malformed file should not kill the process; defaults and
			// env vars still apply.
			fmt.Fprintf(os.Stderr, "warning: error reading config file %s: %v\n", v.ConfigFileUsed(), err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

func loadDotEnv() {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("owner.token", "")
	v.SetDefault("owner.category_key", "default")

	v.SetDefault("matcher.amount_tolerance", 0.10)

	v.SetDefault("ledger.backend", "memory")
	v.SetDefault("ledger.sqlite_path", "billrecon.db")

	v.SetDefault("reconciler.max_attempts", 3)
	v.SetDefault("reconciler.notify_enabled", true)

	v.SetDefault("rules.file", "")

	v.SetDefault("serve.addr", ":8080")
}

func validate(config *Config) error {
	if _, err := logrus.ParseLevel(config.Log.Level); err != nil {
		return fmt.Errorf("invalid log level: %s", config.Log.Level)
	}
	if config.Log.Format != "text" && config.Log.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be 'text' or 'json')", config.Log.Format)
	}
	if config.Matcher.AmountTolerance <= 0 || config.Matcher.AmountTolerance >= 1 {
		return fmt.Errorf("matcher.amount_tolerance must be between 0 and 1, got: %f", config.Matcher.AmountTolerance)
	}
	if config.Ledger.Backend != "memory" && config.Ledger.Backend != "sqlite" {
		return fmt.Errorf("invalid ledger backend: %s (must be 'memory' or 'sqlite')", config.Ledger.Backend)
	}
	if config.Ledger.Backend == "sqlite" && config.Ledger.SQLitePath == "" {
		return fmt.Errorf("ledger.sqlite_path required for the sqlite backend")
	}
	if config.Reconciler.MaxAttempts < 1 || config.Reconciler.MaxAttempts > 100 {
		return fmt.Errorf("reconciler.max_attempts must be between 1 and 100, got: %d", config.Reconciler.MaxAttempts)
	}
	if config.Owner.CategoryKey == "" {
		return fmt.Errorf("owner.category_key must not be empty")
	}
	return nil
}
