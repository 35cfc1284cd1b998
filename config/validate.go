package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Validate checks the configuration for values the service cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("config: ListenAddress is required")
	}
	if c.APY == 0 {
		return fmt.Errorf("config: APY must be positive")
	}
	if c.InactivityLimitSeconds <= 0 {
		return fmt.Errorf("config: InactivityLimitSeconds must be positive")
	}
	if _, err := c.OwnerAddress(); err != nil {
		return err
	}
	if c.OwnerMint != "" {
		if _, err := c.OwnerMintAmount(); err != nil {
			return err
		}
	}
	if c.Auth.Enabled && strings.TrimSpace(c.Auth.HMACSecret) == "" {
		return fmt.Errorf("config: Auth.HMACSecret is required when auth is enabled")
	}
	return nil
}

// OwnerAddress parses the configured owner identity.
func (c *Config) OwnerAddress() ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimSpace(c.Owner)
	if trimmed == "" {
		return addr, fmt.Errorf("config: Owner address is required")
	}
	if !common.IsHexAddress(trimmed) {
		return addr, fmt.Errorf("config: Owner %q is not a valid hex address", c.Owner)
	}
	return common.HexToAddress(trimmed), nil
}

// OwnerMintAmount parses the genesis mint for the owner's token balance.
func (c *Config) OwnerMintAmount() (*big.Int, error) {
	trimmed := strings.TrimSpace(c.OwnerMint)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("config: OwnerMint %q is not a valid amount", c.OwnerMint)
	}
	return amount, nil
}
