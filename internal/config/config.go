// Package config loads and defaults the lnfeed daemon's configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lnfeed/lnfeed/internal/lnferr"
)

// Config holds all recognized configuration options, one nested struct per
// bracketed section in spec.md §6.
type Config struct {
	General    GeneralConfig    `yaml:"general"`
	Server     ServerConfig     `yaml:"server"`
	Store      StoreConfig      `yaml:"store"`
	Fees       FeesConfig       `yaml:"fees"`
	Autopilot  AutopilotConfig  `yaml:"autopilot"`
	Rebalancer RebalancerConfig `yaml:"rebalancer"`
	Judge      JudgeConfig      `yaml:"judge"`
}

// GeneralConfig is the [general] section.
type GeneralConfig struct {
	Enabled              bool   `yaml:"enabled"`
	DryRun               bool   `yaml:"dry_run"`
	CycleIntervalSeconds int    `yaml:"cycle_interval_seconds"`
	LogLevel             string `yaml:"log_level"`
	// StatusSocket, when non-empty, enables a local websocket status feed
	// (SPEC_FULL.md §2) broadcasting cycle and action events.
	StatusSocket string `yaml:"status_socket"`
	// OracleURL is the on-chain fee estimator polled once per cycle
	// (mempool.space API shape: fastestFee/halfHourFee/hourFee).
	OracleURL string `yaml:"oracle_url"`
}

// CycleInterval returns the configured cycle interval as a time.Duration.
func (g GeneralConfig) CycleInterval() time.Duration {
	return time.Duration(g.CycleIntervalSeconds) * time.Second
}

// ServerConfig is the [server] section: the remote node-management API.
type ServerConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKey      string `yaml:"api_key"`
	TLSCertPath string `yaml:"tls_cert_path"`
}

// StoreConfig is the [store] section.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// FeesConfig is the [fees] section.
type FeesConfig struct {
	Enabled      bool              `yaml:"enabled"`
	BasePPM      int64             `yaml:"base_ppm"`
	BaseFeeMsat  int64             `yaml:"base_fee_msat"`
	MinPPM       int64             `yaml:"min_ppm"`
	MaxPPM       int64             `yaml:"max_ppm"`
	MinBaseMsat  int64             `yaml:"min_base_msat"`
	MaxBaseMsat  int64             `yaml:"max_base_msat"`
	BalanceBins  int               `yaml:"balance_bins"`
	MinChangePPM int64             `yaml:"min_change_ppm"`
	PriceTheory  PriceTheoryConfig `yaml:"price_theory"`
}

// PriceTheoryConfig is the [fees].price_theory sub-section.
type PriceTheoryConfig struct {
	Enabled          bool `yaml:"enabled"`
	MinCyclesPerCard int  `yaml:"min_cycles_per_card"`
	MaxAge           int  `yaml:"max_age"`
}

// AutopilotConfig is the [autopilot] section.
type AutopilotConfig struct {
	Enabled            bool     `yaml:"enabled"`
	ReserveSats        int64    `yaml:"reserve_sats"`
	ReservePercent     float64  `yaml:"reserve_percent"`
	MaxProposals       int      `yaml:"max_proposals"`
	TargetChannelCount int      `yaml:"target_channel_count"`
	SeedNodes          []string `yaml:"seed_nodes"`
	CandidateAPIURL    string   `yaml:"candidate_api_url"`
}

// RebalancerConfig is the [rebalancer] section.
type RebalancerConfig struct {
	Enabled            bool    `yaml:"enabled"`
	PerOpAmountCapSats int64   `yaml:"per_op_amount_cap_sats"`
	PerOpFeeCapMsat    int64   `yaml:"per_op_fee_cap_msat"`
	PerCycleFeeCapMsat int64   `yaml:"per_cycle_fee_cap_msat"`
	LowThreshold       float64 `yaml:"low_threshold"`
	HighThreshold      float64 `yaml:"high_threshold"`
}

// JudgeConfig is the [judge] section.
type JudgeConfig struct {
	Enabled           bool  `yaml:"enabled"`
	MinChannelAgeDays int   `yaml:"min_channel_age_days"`
	ReopenCostSats    int64 `yaml:"reopen_cost_sats"`
}

// Default returns a Config with sensible defaults, matching the constants
// named throughout spec.md §4.
func Default() *Config {
	return &Config{
		General: GeneralConfig{
			Enabled:              true,
			DryRun:               false,
			CycleIntervalSeconds: 600,
			LogLevel:             "info",
			OracleURL:            "https://mempool.space/api/v1/fees/recommended",
		},
		Store: StoreConfig{
			Path: "~/.lnfeed/lnfeed.db",
		},
		Fees: FeesConfig{
			Enabled:      true,
			BasePPM:      100,
			BaseFeeMsat:  1000,
			MinPPM:       1,
			MaxPPM:       50_000,
			MinBaseMsat:  0,
			MaxBaseMsat:  5_000_000,
			BalanceBins:  20,
			MinChangePPM: 5,
			PriceTheory: PriceTheoryConfig{
				Enabled:          true,
				MinCyclesPerCard: 5,
				MaxAge:           60,
			},
		},
		Autopilot: AutopilotConfig{
			Enabled:            false,
			ReserveSats:        100_000,
			ReservePercent:     0.1,
			MaxProposals:       3,
			TargetChannelCount: 20,
		},
		Rebalancer: RebalancerConfig{
			Enabled:            false,
			PerOpAmountCapSats: 2_000_000,
			PerOpFeeCapMsat:    1_000_000,
			PerCycleFeeCapMsat: 5_000_000,
			LowThreshold:       0.25,
			HighThreshold:      0.275,
		},
		Judge: JudgeConfig{
			Enabled:           false,
			MinChannelAgeDays: 90,
			ReopenCostSats:    50_000,
		},
	}
}

// Load reads and parses the YAML config file at path, on top of Default()'s
// values. A missing file or invalid value is a ConfigError, matching
// spec.md §6/§7's exit-code-2 contract.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, lnferr.Config(fmt.Sprintf("reading config file %q", path), err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, lnferr.Config(fmt.Sprintf("parsing config file %q", path), err)
	}

	if err := cfg.validate(); err != nil {
		return nil, lnferr.Config("validating config", err)
	}

	return cfg, nil
}

// Save writes cfg to path as YAML, creating parent directories as needed.
// Mirrors the teacher's habit of persisting a generated default on first run.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return lnferr.Config("creating config directory", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return lnferr.Config("marshaling config", err)
	}

	header := []byte("# lnfeed configuration\n# Generated automatically on first run\n\n")
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return lnferr.Config("writing config file", err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}
	if c.General.CycleIntervalSeconds <= 0 {
		return fmt.Errorf("general.cycle_interval_seconds must be positive")
	}
	if c.Fees.MinPPM < 1 || c.Fees.MaxPPM > 50_000 || c.Fees.MinPPM > c.Fees.MaxPPM {
		return fmt.Errorf("fees.min_ppm/max_ppm must satisfy 1 <= min <= max <= 50000")
	}
	if c.Fees.BalanceBins <= 0 {
		return fmt.Errorf("fees.balance_bins must be positive")
	}
	return nil
}

// ExpandPath expands a leading ~ to the user's home directory, as the store
// path and any file-based config fields may use it.
func ExpandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
