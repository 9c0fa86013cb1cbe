// Package config loads khaata's runtime configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/khaata-app/khaata/internal/recon"
)

// Config holds the engine tunables and runtime settings.
type Config struct {
	DBPath    string
	LogLevel  string
	LogFormat string

	// Enrichment sweep parallelism.
	EnrichWorkers int

	// Reconciliation candidate discovery.
	ReconWindowDays       int
	ReconAmountEpsilon    string
	ReconMaxCombination   int
	ReconBalanceTolerance string
}

// Load reads configuration from an optional config file and KHAATA_* env
// vars, with sensible defaults for everything.
func Load(cfgFile string) (*Config, error) {
	v := viper.GetViper()

	v.SetDefault("db.path", filepath.Join("~", ".local", "share", "khaata", "khaata.db"))
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("enrich.workers", 4)
	v.SetDefault("recon.window_days", 3)
	v.SetDefault("recon.amount_epsilon", "1")
	v.SetDefault("recon.max_combination", 4)
	v.SetDefault("recon.balance_tolerance", "0")

	v.SetEnvPrefix("KHAATA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(ExpandPath(cfgFile))
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "khaata"))
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; everything has a default.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && cfgFile != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return &Config{
		DBPath:                ExpandPath(v.GetString("db.path")),
		LogLevel:              v.GetString("logging.level"),
		LogFormat:             v.GetString("logging.format"),
		EnrichWorkers:         v.GetInt("enrich.workers"),
		ReconWindowDays:       v.GetInt("recon.window_days"),
		ReconAmountEpsilon:    v.GetString("recon.amount_epsilon"),
		ReconMaxCombination:   v.GetInt("recon.max_combination"),
		ReconBalanceTolerance: v.GetString("recon.balance_tolerance"),
	}, nil
}

// ReconOptions converts the string-typed decimal settings into engine
// options.
func (c *Config) ReconOptions() (recon.Options, error) {
	epsilon, err := decimal.NewFromString(c.ReconAmountEpsilon)
	if err != nil {
		return recon.Options{}, fmt.Errorf("invalid recon.amount_epsilon %q: %w", c.ReconAmountEpsilon, err)
	}

	return recon.Options{
		WindowDays:     c.ReconWindowDays,
		AmountEpsilon:  epsilon,
		MaxCombination: c.ReconMaxCombination,
	}, nil
}

// BalanceTolerance parses the configured balance tolerance.
func (c *Config) BalanceTolerance() (decimal.Decimal, error) {
	tol, err := decimal.NewFromString(c.ReconBalanceTolerance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid recon.balance_tolerance %q: %w", c.ReconBalanceTolerance, err)
	}
	return tol, nil
}
