package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// MaxFeeRateBps bounds every configured fee rate.
const MaxFeeRateBps = 10_000

// Validate checks the decoded configuration. It does not touch the filesystem.
func (c *Config) Validate() error {
	if c.Protocol.FeeRateBps > MaxFeeRateBps {
		return fmt.Errorf("protocol: fee_rate_bps %d exceeds %d", c.Protocol.FeeRateBps, MaxFeeRateBps)
	}
	if c.Protocol.FeeRateBps > 0 && strings.TrimSpace(c.Protocol.Treasury) == "" {
		return errors.New("protocol: treasury required when a protocol fee is set")
	}
	if strings.TrimSpace(c.Protocol.Treasury) != "" {
		if _, err := c.TreasuryAddress(); err != nil {
			return fmt.Errorf("protocol: treasury: %w", err)
		}
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendLevelDB, BackendBolt:
		if strings.TrimSpace(c.Storage.Path) == "" {
			return fmt.Errorf("storage: path required for %s backend", c.Storage.Backend)
		}
	default:
		return fmt.Errorf("storage: unknown backend %q", c.Storage.Backend)
	}

	switch c.Archive.Driver {
	case "":
	case ArchiveSQLite, ArchivePostgres:
		if strings.TrimSpace(c.Archive.DSN) == "" {
			return fmt.Errorf("archive: dsn required for %s driver", c.Archive.Driver)
		}
	default:
		return fmt.Errorf("archive: unknown driver %q", c.Archive.Driver)
	}

	if c.Keeper.Enabled {
		if _, err := cron.ParseStandard(c.Keeper.Schedule); err != nil {
			return fmt.Errorf("keeper: schedule: %w", err)
		}
	}

	if (c.Telemetry.Traces || c.Telemetry.Metrics) && strings.TrimSpace(c.Telemetry.Endpoint) == "" {
		return errors.New("telemetry: endpoint required when an exporter is enabled")
	}

	seen := make(map[string]struct{}, len(c.Vaults))
	for _, v := range c.Vaults {
		if err := v.validate(); err != nil {
			return err
		}
		key := strings.ToLower(v.Name)
		if _, ok := seen[key]; ok {
			return fmt.Errorf("vault %q: duplicate name", v.Name)
		}
		seen[key] = struct{}{}
	}
	return nil
}

func (v Vault) validate() error {
	if strings.TrimSpace(v.Name) == "" {
		return errors.New("vault: name required")
	}
	if v.Asset == "" {
		return fmt.Errorf("vault %q: asset required", v.Name)
	}
	if v.AssetDecimals > 36 || v.ShareDecimals > 36 {
		return fmt.Errorf("vault %q: decimals above 36", v.Name)
	}
	maxSize, err := v.MaxSizeUnits()
	if err != nil {
		return err
	}
	if maxSize.Sign() <= 0 {
		return fmt.Errorf("vault %q: max size must be positive", v.Name)
	}
	duration, err := v.DurationSeconds()
	if err != nil {
		return err
	}
	if duration <= 0 {
		return fmt.Errorf("vault %q: duration must be positive", v.Name)
	}
	if v.ManagerFeeBps > MaxFeeRateBps || v.EntryFeeBps > MaxFeeRateBps {
		return fmt.Errorf("vault %q: fee rate exceeds %d", v.Name, MaxFeeRateBps)
	}
	if _, err := v.BeneficiaryAddress(); err != nil {
		return fmt.Errorf("vault %q: beneficiary: %w", v.Name, err)
	}
	switch v.WithdrawPolicy {
	case WithdrawDefault, WithdrawClosed:
	default:
		return fmt.Errorf("vault %q: unknown withdraw policy %q", v.Name, v.WithdrawPolicy)
	}
	switch v.Transfers {
	case TransfersAllow, TransfersBlock:
	default:
		return fmt.Errorf("vault %q: unknown transfer mode %q", v.Name, v.Transfers)
	}
	return nil
}
