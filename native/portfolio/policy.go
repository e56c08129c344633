package portfolio

import (
	"math/big"

	"creditvault/crypto"
)

// View is the read-only side of a vault handed to policy hooks.
type View interface {
	Address() crypto.Address
	Now() int64
	Vault() (*Vault, error)
	TotalAssets() (*big.Int, error)
	LiquidAssets() (*big.Int, error)
	ConvertToShares(assets *big.Int) (*big.Int, error)
	ConvertToAssets(shares *big.Int) (*big.Int, error)
	BalanceOf(holder crypto.Address) (*big.Int, error)
}

// DepositPolicy decides how many shares a deposit buys and what it costs.
// Values returned by OnDeposit and OnMint are authoritative.
type DepositPolicy interface {
	PreviewDeposit(v View, assets *big.Int) (*big.Int, error)
	PreviewMint(v View, shares *big.Int) (*big.Int, error)
	OnDeposit(v View, caller crypto.Address, assets *big.Int, receiver crypto.Address) (shares, fee *big.Int, err error)
	OnMint(v View, caller crypto.Address, shares *big.Int, receiver crypto.Address) (assets, fee *big.Int, err error)
	MaxDeposit(v View, receiver crypto.Address) (*big.Int, error)
	MaxMint(v View, receiver crypto.Address) (*big.Int, error)
}

// WithdrawPolicy is the exit counterpart of DepositPolicy.
type WithdrawPolicy interface {
	PreviewWithdraw(v View, assets *big.Int) (*big.Int, error)
	PreviewRedeem(v View, shares *big.Int) (*big.Int, error)
	OnWithdraw(v View, caller crypto.Address, assets *big.Int, receiver, owner crypto.Address) (shares, fee *big.Int, err error)
	OnRedeem(v View, caller crypto.Address, shares *big.Int, receiver, owner crypto.Address) (assets, fee *big.Int, err error)
	MaxWithdraw(v View, owner crypto.Address) (*big.Int, error)
	MaxRedeem(v View, owner crypto.Address) (*big.Int, error)
}

// TransferPolicy gates share transfers between holders.
type TransferPolicy interface {
	IsTransferAllowed(v View, caller, from, to crypto.Address, amount *big.Int) bool
}

// FeeSource supplies the manager fee rate in basis points.
type FeeSource interface {
	ManagerFeeRate() uint32
}

// ProtocolConfig is the configuration shared by every vault.
type ProtocolConfig interface {
	ProtocolFeeRate() uint32
	ProtocolTreasury() crypto.Address
	PauserAuthority() crypto.Address
}

// StaticFeeSource charges a fixed manager rate.
type StaticFeeSource uint32

func (s StaticFeeSource) ManagerFeeRate() uint32 { return uint32(s) }

// Protocol is a mutable ProtocolConfig. Vaults hold the pointer, so updates
// reach every vault on its next settlement.
type Protocol struct {
	FeeRate  uint32
	Treasury crypto.Address
	Pauser   crypto.Address
}

func (p *Protocol) ProtocolFeeRate() uint32 {
	if p == nil {
		return 0
	}
	return p.FeeRate
}

func (p *Protocol) ProtocolTreasury() crypto.Address {
	if p == nil {
		return crypto.Address{}
	}
	return p.Treasury
}

func (p *Protocol) PauserAuthority() crypto.Address {
	if p == nil {
		return crypto.Address{}
	}
	return p.Pauser
}

// DefaultPreviewMint rounds the asset cost of shares up.
func DefaultPreviewMint(v View, shares *big.Int) (*big.Int, error) {
	vault, err := v.Vault()
	if err != nil {
		return nil, err
	}
	if isZero(vault.TotalSupply) {
		return scaleDecimals(shares, vault.ShareDecimals, vault.AssetDecimals, true), nil
	}
	total, err := v.TotalAssets()
	if err != nil {
		return nil, err
	}
	return mulDivUp(shares, total, vault.TotalSupply)
}

// DefaultPreviewWithdraw rounds the shares burned for assets up.
func DefaultPreviewWithdraw(v View, assets *big.Int) (*big.Int, error) {
	vault, err := v.Vault()
	if err != nil {
		return nil, err
	}
	if isZero(vault.TotalSupply) {
		return scaleDecimals(assets, vault.AssetDecimals, vault.ShareDecimals, true), nil
	}
	total, err := v.TotalAssets()
	if err != nil {
		return nil, err
	}
	if total.Sign() == 0 {
		return nil, ErrInfiniteValue
	}
	return mulDivUp(assets, vault.TotalSupply, total)
}

// DefaultDepositPolicy converts at the vault rate and charges nothing.
type DefaultDepositPolicy struct{}

func (DefaultDepositPolicy) PreviewDeposit(v View, assets *big.Int) (*big.Int, error) {
	return v.ConvertToShares(assets)
}

func (DefaultDepositPolicy) PreviewMint(v View, shares *big.Int) (*big.Int, error) {
	return DefaultPreviewMint(v, shares)
}

func (p DefaultDepositPolicy) OnDeposit(v View, _ crypto.Address, assets *big.Int, _ crypto.Address) (*big.Int, *big.Int, error) {
	shares, err := p.PreviewDeposit(v, assets)
	if err != nil {
		return nil, nil, err
	}
	return shares, big.NewInt(0), nil
}

func (p DefaultDepositPolicy) OnMint(v View, _ crypto.Address, shares *big.Int, _ crypto.Address) (*big.Int, *big.Int, error) {
	assets, err := p.PreviewMint(v, shares)
	if err != nil {
		return nil, nil, err
	}
	return assets, big.NewInt(0), nil
}

func (DefaultDepositPolicy) MaxDeposit(View, crypto.Address) (*big.Int, error) {
	return new(big.Int).Set(Unlimited), nil
}

func (DefaultDepositPolicy) MaxMint(View, crypto.Address) (*big.Int, error) {
	return new(big.Int).Set(Unlimited), nil
}

// FeeDepositPolicy charges a flat entry fee in basis points. On deposit the
// fee is taken out of the assets; on mint it is charged on top.
type FeeDepositPolicy struct {
	DefaultDepositPolicy
	FeeRate uint32
}

func (p FeeDepositPolicy) fee(assets *big.Int) (*big.Int, error) {
	return mulDivDown(assets, big.NewInt(int64(p.FeeRate)), basisPoints)
}

func (p FeeDepositPolicy) PreviewDeposit(v View, assets *big.Int) (*big.Int, error) {
	fee, err := p.fee(assets)
	if err != nil {
		return nil, err
	}
	return v.ConvertToShares(floorSub(assets, fee))
}

func (p FeeDepositPolicy) PreviewMint(v View, shares *big.Int) (*big.Int, error) {
	assets, err := DefaultPreviewMint(v, shares)
	if err != nil {
		return nil, err
	}
	fee, err := p.fee(assets)
	if err != nil {
		return nil, err
	}
	return assets.Add(assets, fee), nil
}

func (p FeeDepositPolicy) OnDeposit(v View, _ crypto.Address, assets *big.Int, _ crypto.Address) (*big.Int, *big.Int, error) {
	fee, err := p.fee(assets)
	if err != nil {
		return nil, nil, err
	}
	shares, err := v.ConvertToShares(floorSub(assets, fee))
	if err != nil {
		return nil, nil, err
	}
	return shares, fee, nil
}

func (p FeeDepositPolicy) OnMint(v View, _ crypto.Address, shares *big.Int, _ crypto.Address) (*big.Int, *big.Int, error) {
	assets, err := DefaultPreviewMint(v, shares)
	if err != nil {
		return nil, nil, err
	}
	fee, err := p.fee(assets)
	if err != nil {
		return nil, nil, err
	}
	return assets, fee, nil
}

// DefaultWithdrawPolicy converts at the vault rate and charges nothing.
type DefaultWithdrawPolicy struct{}

func (DefaultWithdrawPolicy) PreviewWithdraw(v View, assets *big.Int) (*big.Int, error) {
	return DefaultPreviewWithdraw(v, assets)
}

func (DefaultWithdrawPolicy) PreviewRedeem(v View, shares *big.Int) (*big.Int, error) {
	return v.ConvertToAssets(shares)
}

func (p DefaultWithdrawPolicy) OnWithdraw(v View, _ crypto.Address, assets *big.Int, _, _ crypto.Address) (*big.Int, *big.Int, error) {
	shares, err := p.PreviewWithdraw(v, assets)
	if err != nil {
		return nil, nil, err
	}
	return shares, big.NewInt(0), nil
}

func (p DefaultWithdrawPolicy) OnRedeem(v View, _ crypto.Address, shares *big.Int, _, _ crypto.Address) (*big.Int, *big.Int, error) {
	assets, err := p.PreviewRedeem(v, shares)
	if err != nil {
		return nil, nil, err
	}
	return assets, big.NewInt(0), nil
}

func (DefaultWithdrawPolicy) MaxWithdraw(View, crypto.Address) (*big.Int, error) {
	return new(big.Int).Set(Unlimited), nil
}

func (DefaultWithdrawPolicy) MaxRedeem(View, crypto.Address) (*big.Int, error) {
	return new(big.Int).Set(Unlimited), nil
}

// ClosedVaultWithdrawPolicy lets lenders exit only once the vault end date
// has passed. Before that every exit reports zero and is rejected.
type ClosedVaultWithdrawPolicy struct {
	DefaultWithdrawPolicy
}

func closed(v View) (bool, error) {
	vault, err := v.Vault()
	if err != nil {
		return false, err
	}
	return vault.Closed(v.Now()), nil
}

func (p ClosedVaultWithdrawPolicy) OnWithdraw(v View, caller crypto.Address, assets *big.Int, receiver, owner crypto.Address) (*big.Int, *big.Int, error) {
	if ok, err := closed(v); err != nil || !ok {
		return big.NewInt(0), big.NewInt(0), err
	}
	return p.DefaultWithdrawPolicy.OnWithdraw(v, caller, assets, receiver, owner)
}

func (p ClosedVaultWithdrawPolicy) OnRedeem(v View, caller crypto.Address, shares *big.Int, receiver, owner crypto.Address) (*big.Int, *big.Int, error) {
	if ok, err := closed(v); err != nil || !ok {
		return big.NewInt(0), big.NewInt(0), err
	}
	return p.DefaultWithdrawPolicy.OnRedeem(v, caller, shares, receiver, owner)
}

func (ClosedVaultWithdrawPolicy) MaxWithdraw(v View, _ crypto.Address) (*big.Int, error) {
	if ok, err := closed(v); err != nil || !ok {
		return big.NewInt(0), err
	}
	return new(big.Int).Set(Unlimited), nil
}

func (ClosedVaultWithdrawPolicy) MaxRedeem(v View, _ crypto.Address) (*big.Int, error) {
	if ok, err := closed(v); err != nil || !ok {
		return big.NewInt(0), err
	}
	return new(big.Int).Set(Unlimited), nil
}

// AllowAllTransfers permits every share transfer.
type AllowAllTransfers struct{}

func (AllowAllTransfers) IsTransferAllowed(View, crypto.Address, crypto.Address, crypto.Address, *big.Int) bool {
	return true
}

// BlockAllTransfers makes shares non-transferable.
type BlockAllTransfers struct{}

func (BlockAllTransfers) IsTransferAllowed(View, crypto.Address, crypto.Address, crypto.Address, *big.Int) bool {
	return false
}
