package config

import (
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadParsesFullConfig(t *testing.T) {
	path := writeConfig(t, `
ListenAddress = ":9000"
DataDir = "/var/lib/stakingd"
Env = "prod"
Owner = "0x00000000000000000000000000000000000000aa"
TokenSymbol = "VAI"
OwnerMint = "1000000"
APY = 12
InactivityLimitSeconds = 63072000

[Auth]
Enabled = true
HMACSecret = "secret"
Issuer = "ops"

[RateLimit]
RequestsPerMinute = 120.0
Burst = 5
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":9000" || cfg.APY != 12 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.InactivityLimitSeconds != 63_072_000 {
		t.Fatalf("expected two-year window, got %d", cfg.InactivityLimitSeconds)
	}
	owner, err := cfg.OwnerAddress()
	if err != nil {
		t.Fatalf("owner address: %v", err)
	}
	if owner[19] != 0xaa {
		t.Fatalf("unexpected owner %x", owner)
	}
	mint, err := cfg.OwnerMintAmount()
	if err != nil {
		t.Fatalf("owner mint: %v", err)
	}
	if mint.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("expected mint 1000000, got %s", mint)
	}
	if !cfg.Auth.Enabled || cfg.Auth.HMACSecret != "secret" {
		t.Fatalf("unexpected auth config: %+v", cfg.Auth)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
Owner = "0x00000000000000000000000000000000000000aa"
APY = 10
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":8551" {
		t.Fatalf("expected default listen address, got %q", cfg.ListenAddress)
	}
	if cfg.InactivityLimitSeconds != DefaultInactivityLimitSeconds {
		t.Fatalf("expected default inactivity limit, got %d", cfg.InactivityLimitSeconds)
	}
	if cfg.TokenSymbol != "VAI" {
		t.Fatalf("expected default token symbol, got %q", cfg.TokenSymbol)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{
			name: "missing owner",
			body: "APY = 10\n",
		},
		{
			name: "zero apy",
			body: "Owner = \"0x00000000000000000000000000000000000000aa\"\nAPY = 0\n",
		},
		{
			name: "malformed owner",
			body: "Owner = \"not-an-address\"\nAPY = 10\n",
		},
		{
			name: "malformed mint",
			body: "Owner = \"0x00000000000000000000000000000000000000aa\"\nAPY = 10\nOwnerMint = \"12x\"\n",
		},
		{
			name: "auth without secret",
			body: "Owner = \"0x00000000000000000000000000000000000000aa\"\nAPY = 10\n[Auth]\nEnabled = true\n",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.body)); err == nil {
				t.Fatal("expected a validation error")
			}
		})
	}
}

func TestLoadCreatesDefaultFileAndRejectsIt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	_, err := Load(path)
	if err == nil {
		t.Fatal("the default config has no owner and must not validate")
	}
	if !strings.Contains(err.Error(), "Owner") {
		t.Fatalf("error must point at the missing owner, got %v", err)
	}
	if !strings.Contains(err.Error(), path) {
		t.Fatalf("error must point at the written file, got %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected default file to be written: %v", err)
	}

	// Once the operator fills in the owner, the same path loads cleanly.
	body := "Owner = \"0x00000000000000000000000000000000000000aa\"\nAPY = 10\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load filled-in config: %v", err)
	}
	if cfg.ListenAddress != ":8551" {
		t.Fatalf("expected default listen address, got %q", cfg.ListenAddress)
	}
}
