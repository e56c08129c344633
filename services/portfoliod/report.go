package portfoliod

import (
	"context"
	"math/big"

	"creditvault/services/portfoliod/navstore"

	"github.com/shopspring/decimal"
)

type vaultReport struct {
	totalAssets *big.Int
	liquidity   *big.Int
	supply      *big.Int
	sharePrice  *big.Int
	protocolFee *big.Int
	managerFee  *big.Int
	endDate     int64
	closed      bool
}

// Report is a human-readable view of one vault, amounts in whole units.
type Report struct {
	Vault          string          `json:"vault" yaml:"vault"`
	Address        string          `json:"address" yaml:"address"`
	Asset          string          `json:"asset" yaml:"asset"`
	TotalAssets    decimal.Decimal `json:"totalAssets" yaml:"totalAssets"`
	Liquidity      decimal.Decimal `json:"liquidity" yaml:"liquidity"`
	TotalSupply    decimal.Decimal `json:"totalSupply" yaml:"totalSupply"`
	SharePrice     decimal.Decimal `json:"sharePrice" yaml:"sharePrice"`
	ProtocolFeeDue decimal.Decimal `json:"protocolFeeDue" yaml:"protocolFeeDue"`
	ManagerFeeDue  decimal.Decimal `json:"managerFeeDue" yaml:"managerFeeDue"`
	EndDate        int64           `json:"endDate" yaml:"endDate"`
	Closed         bool            `json:"closed" yaml:"closed"`
}

// Units renders a base-unit amount as a decimal of whole units.
func Units(amount *big.Int, decimals uint8) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -int32(decimals))
}

// BaseUnits parses a whole-unit amount such as "12.5" into base units,
// truncating digits beyond decimals.
func BaseUnits(amount string, decimals uint8) (*big.Int, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, err
	}
	return d.Shift(int32(decimals)).Truncate(0).BigInt(), nil
}

func (rt *Runtime) report(v *Vault) (*vaultReport, error) {
	engine := v.Engine
	record, err := engine.Vault()
	if err != nil {
		return nil, err
	}
	total, err := engine.TotalAssets()
	if err != nil {
		return nil, err
	}
	protocolFee, managerFee, err := engine.GetFees()
	if err != nil {
		return nil, err
	}
	oneShare := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(v.Shares)), nil)
	price, err := engine.ConvertToAssets(oneShare)
	if err != nil {
		price = big.NewInt(0)
	}
	return &vaultReport{
		totalAssets: total,
		liquidity:   record.VirtualLiquidity,
		supply:      record.TotalSupply,
		sharePrice:  price,
		protocolFee: protocolFee,
		managerFee:  managerFee,
		endDate:     record.EndDate,
		closed:      record.Closed(engine.Now()),
	}, nil
}

// Report summarizes the named vault.
func (rt *Runtime) Report(name string) (Report, error) {
	v, err := rt.Vault(name)
	if err != nil {
		return Report{}, err
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	r, err := rt.report(v)
	if err != nil {
		return Report{}, err
	}
	record, err := v.Engine.Vault()
	if err != nil {
		return Report{}, err
	}
	return Report{
		Vault:          v.Name,
		Address:        v.Address.String(),
		Asset:          record.Asset,
		TotalAssets:    Units(r.totalAssets, v.Decimals),
		Liquidity:      Units(r.liquidity, v.Decimals),
		TotalSupply:    Units(r.supply, v.Shares),
		SharePrice:     Units(r.sharePrice, v.Decimals),
		ProtocolFeeDue: Units(r.protocolFee, v.Decimals),
		ManagerFeeDue:  Units(r.managerFee, v.Decimals),
		EndDate:        r.endDate,
		Closed:         r.closed,
	}, nil
}

// RecordNAV stores a NAV snapshot of the named vault when a NAV store is
// configured.
func (rt *Runtime) RecordNAV(ctx context.Context, name string) error {
	if rt.nav == nil {
		return nil
	}
	v, err := rt.Vault(name)
	if err != nil {
		return err
	}
	rt.mu.Lock()
	r, err := rt.report(v)
	rt.mu.Unlock()
	if err != nil {
		return err
	}
	_, err = rt.nav.Record(ctx, navstore.Snapshot{
		Vault:       v.Name,
		TakenAt:     rt.nowFn(),
		TotalAssets: r.totalAssets,
		TotalSupply: r.supply,
		Liquidity:   r.liquidity,
		SharePrice:  r.sharePrice,
	})
	return err
}

// NAVHistory returns recorded snapshots of the named vault, newest first.
func (rt *Runtime) NAVHistory(ctx context.Context, name string, limit int) ([]navstore.Snapshot, error) {
	if rt.nav == nil {
		return nil, nil
	}
	v, err := rt.Vault(name)
	if err != nil {
		return nil, err
	}
	return rt.nav.History(ctx, v.Name, limit)
}
