// Package config loads and validates the stakingd service configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// DefaultInactivityLimitSeconds is one accrual year: accounts untouched for a
// full year are subject to forfeiture unless deployments configure otherwise.
const DefaultInactivityLimitSeconds int64 = 31_536_000

// Config is the full stakingd configuration, decoded from TOML.
type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	Env           string `toml:"Env"`
	LogFile       string `toml:"LogFile"`

	// Owner is the operator identity as a 0x-prefixed hex address. It seeds
	// the ledger on first start; afterwards ownership lives in the ledger
	// and follows TransferOwnership.
	Owner string `toml:"Owner"`

	TokenSymbol string `toml:"TokenSymbol"`
	// OwnerMint seeds the owner's token balance on a fresh ledger, expressed
	// as a decimal string.
	OwnerMint string `toml:"OwnerMint"`

	// APY is the initial annual yield in whole percentage points.
	APY uint64 `toml:"APY"`
	// InactivityLimitSeconds is the forfeiture window.
	InactivityLimitSeconds int64 `toml:"InactivityLimitSeconds"`

	Auth      AuthConfig      `toml:"Auth"`
	RateLimit RateLimitConfig `toml:"RateLimit"`
}

// AuthConfig controls the bearer-token middleware on the operations API.
type AuthConfig struct {
	Enabled    bool   `toml:"Enabled"`
	HMACSecret string `toml:"HMACSecret"`
	Issuer     string `toml:"Issuer"`
	Audience   string `toml:"Audience"`
}

// RateLimitConfig controls the per-client request budget.
type RateLimitConfig struct {
	RequestsPerMinute float64 `toml:"RequestsPerMinute"`
	Burst             int     `toml:"Burst"`
}

// Load loads the configuration from the given path, creating a commented
// default file when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddress == "" {
		c.ListenAddress = ":8551"
	}
	if c.TokenSymbol == "" {
		c.TokenSymbol = "VAI"
	}
	if c.InactivityLimitSeconds == 0 {
		c.InactivityLimitSeconds = DefaultInactivityLimitSeconds
	}
	if c.RateLimit.RequestsPerMinute == 0 {
		c.RateLimit.RequestsPerMinute = 600
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 20
	}
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		APY: 10,
	}
	cfg.applyDefaults()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("config: create directory for %s: %w", path, err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("config: create default %s: %w", path, err)
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, fmt.Errorf("config: write default %s: %w", path, err)
	}
	// The default file has no Owner, so it can never pass validation. Fail
	// here so the operator is pointed at the file instead of a later crash.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w (default written to %s, fill it in)", err, path)
	}
	return cfg, nil
}
