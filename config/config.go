package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Variant selects which collateralization policy the engine runs with.
const (
	VariantPool       = "pool"
	VariantCreditLine = "creditline"
)

// Config captures the runtime configuration for the loan ledger service. Ratio
// fields are decimal wei strings at the 1e18 fixed-point scale (e.g.
// "250000000000000000" for 0.25).
type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	LogFile       string `toml:"LogFile"`
	Env           string `toml:"Env"`

	Variant                 string `toml:"Variant"`
	CollateralRatioWad      string `toml:"CollateralRatioWad"`
	LoanToValueWad          string `toml:"LoanToValueWad"`
	LiquidationThresholdWad string `toml:"LiquidationThresholdWad"`
	MinEligibilityScore     uint64 `toml:"MinEligibilityScore"`

	Owner           string `toml:"Owner"`
	AssetVault      string `toml:"AssetVault"`
	CollateralVault string `toml:"CollateralVault"`
	Attester        string `toml:"Attester"`

	Paused bool `toml:"Paused"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		ListenAddress:           ":8663",
		Env:                     "dev",
		Variant:                 VariantPool,
		CollateralRatioWad:      "250000000000000000",
		LoanToValueWad:          "800000000000000000",
		LiquidationThresholdWad: "1100000000000000000",
	}
}

// Load reads the TOML file at path, applying defaults for unset fields.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	switch strings.TrimSpace(c.Variant) {
	case VariantPool, VariantCreditLine:
	default:
		return fmt.Errorf("config: unknown variant %q", c.Variant)
	}
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("config: listen address must not be empty")
	}
	for _, field := range []struct {
		name  string
		value string
	}{
		{"CollateralRatioWad", c.CollateralRatioWad},
		{"LoanToValueWad", c.LoanToValueWad},
		{"LiquidationThresholdWad", c.LiquidationThresholdWad},
	} {
		if _, err := parseWad(field.value); err != nil {
			return fmt.Errorf("config: %s: %w", field.name, err)
		}
	}
	return nil
}

// RatioWad returns the parsed pool collateral ratio.
func (c *Config) RatioWad() *big.Int {
	v, _ := parseWad(c.CollateralRatioWad)
	return v
}

// LoanToValue returns the parsed credit-line loan-to-value fraction.
func (c *Config) LoanToValue() *big.Int {
	v, _ := parseWad(c.LoanToValueWad)
	return v
}

// LiquidationThreshold returns the parsed credit-line liquidation floor.
func (c *Config) LiquidationThreshold() *big.Int {
	v, _ := parseWad(c.LiquidationThresholdWad)
	return v
}

func parseWad(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || parsed.Sign() < 0 {
		return nil, fmt.Errorf("invalid wad value %q", value)
	}
	return parsed, nil
}
