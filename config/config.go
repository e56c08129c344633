package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"creditvault/crypto"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"
)

type Config struct {
	DataDir        string    `toml:"DataDir"`
	MetricsAddress string    `toml:"MetricsAddress"`
	Protocol       Protocol  `toml:"protocol"`
	Storage        Storage   `toml:"storage"`
	Archive        Archive   `toml:"archive"`
	Keeper         Keeper    `toml:"keeper"`
	Telemetry      Telemetry `toml:"telemetry"`
	Log            Log       `toml:"log"`
	Vaults         []Vault   `toml:"vaults"`
}

// Default returns the configuration written for a fresh data directory.
func Default() *Config {
	return &Config{
		DataDir:        "./creditvault-data",
		MetricsAddress: "127.0.0.1:9464",
		Storage: Storage{
			Backend: BackendLevelDB,
			Path:    "state",
		},
		Keeper: Keeper{
			Enabled:  true,
			Schedule: "@every 1h",
			NAVPath:  "nav.db",
		},
		Telemetry: Telemetry{
			Endpoint: "localhost:4318",
			Insecure: true,
		},
		Log: Log{
			Env:        "local",
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
	}
}

// Load reads the configuration at path. A missing file is created with
// defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s: unknown key %s", path, undecoded[0])
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	c.Archive.Driver = strings.ToLower(strings.TrimSpace(c.Archive.Driver))
	for i := range c.Vaults {
		v := &c.Vaults[i]
		v.Asset = strings.ToUpper(strings.TrimSpace(v.Asset))
		if v.ShareDecimals == 0 {
			v.ShareDecimals = v.AssetDecimals
		}
		if strings.TrimSpace(v.WithdrawPolicy) == "" {
			v.WithdrawPolicy = WithdrawDefault
		}
		if strings.TrimSpace(v.Transfers) == "" {
			v.Transfers = TransfersAllow
		}
	}
}

// ResolvePath anchors a relative path at DataDir.
func (c *Config) ResolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.DataDir, path)
}

// TreasuryAddress decodes the protocol treasury.
func (c *Config) TreasuryAddress() (crypto.Address, error) {
	return crypto.DecodeAddress(strings.TrimSpace(c.Protocol.Treasury))
}

// MaxSizeUnits converts MaxSize into base units of the asset.
func (v Vault) MaxSizeUnits() (*big.Int, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(v.MaxSize))
	if err != nil {
		return nil, fmt.Errorf("vault %q: max size: %w", v.Name, err)
	}
	scaled := amount.Shift(int32(v.AssetDecimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("vault %q: max size has more than %d decimals", v.Name, v.AssetDecimals)
	}
	return scaled.BigInt(), nil
}

// DurationSeconds parses Duration with ParseSeconds.
func (v Vault) DurationSeconds() (int64, error) {
	seconds, err := ParseSeconds(v.Duration)
	if err != nil {
		return 0, fmt.Errorf("vault %q: %w", v.Name, err)
	}
	return seconds, nil
}

// ParseSeconds accepts Go durations plus a "d" suffix for whole days.
func ParseSeconds(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if days, ok := strings.CutSuffix(raw, "d"); ok {
		n, err := decimal.NewFromString(days)
		if err != nil || !n.IsInteger() {
			return 0, fmt.Errorf("invalid duration %q", raw)
		}
		return n.IntPart() * 24 * 60 * 60, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	return int64(d / time.Second), nil
}

// BeneficiaryAddress decodes the manager fee beneficiary.
func (v Vault) BeneficiaryAddress() (crypto.Address, error) {
	return crypto.DecodeAddress(strings.TrimSpace(v.Beneficiary))
}

func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
