package portfolio

import (
	"errors"
	"math/big"

	"creditvault/crypto"
)

// TotalAssets is liquidity plus instrument value minus every accrued fee,
// floored at zero. It has no side effects.
func (e *Engine) TotalAssets() (*big.Int, error) {
	v, err := e.loadVault()
	if err != nil {
		return nil, err
	}
	return e.totalAssets(v)
}

// LiquidAssets is virtual liquidity minus every accrued fee, floored at zero.
func (e *Engine) LiquidAssets() (*big.Int, error) {
	v, err := e.loadVault()
	if err != nil {
		return nil, err
	}
	return e.liquidAssets(v)
}

func (e *Engine) convertToShares(v *Vault, assets *big.Int) (*big.Int, error) {
	if isZero(v.TotalSupply) {
		return scaleDecimals(assets, v.AssetDecimals, v.ShareDecimals, false), nil
	}
	total, err := e.totalAssets(v)
	if err != nil {
		return nil, err
	}
	if total.Sign() == 0 {
		return nil, ErrInfiniteValue
	}
	return mulDivDown(assets, v.TotalSupply, total)
}

func (e *Engine) convertToAssets(v *Vault, shares *big.Int) (*big.Int, error) {
	if isZero(v.TotalSupply) {
		return scaleDecimals(shares, v.ShareDecimals, v.AssetDecimals, false), nil
	}
	total, err := e.totalAssets(v)
	if err != nil {
		return nil, err
	}
	return mulDivDown(shares, total, v.TotalSupply)
}

// ConvertToShares rounds down. It fails with ErrInfiniteValue when shares
// exist but the vault is worth nothing.
func (e *Engine) ConvertToShares(assets *big.Int) (*big.Int, error) {
	v, err := e.loadVault()
	if err != nil {
		return nil, err
	}
	return e.convertToShares(v, assets)
}

// ConvertToAssets rounds down.
func (e *Engine) ConvertToAssets(shares *big.Int) (*big.Int, error) {
	v, err := e.loadVault()
	if err != nil {
		return nil, err
	}
	return e.convertToAssets(v, shares)
}

func (e *Engine) PreviewDeposit(assets *big.Int) (*big.Int, error) {
	return e.deposits.PreviewDeposit(e, assets)
}

func (e *Engine) PreviewMint(shares *big.Int) (*big.Int, error) {
	return e.deposits.PreviewMint(e, shares)
}

func (e *Engine) PreviewWithdraw(assets *big.Int) (*big.Int, error) {
	return e.withdrawals.PreviewWithdraw(e, assets)
}

func (e *Engine) PreviewRedeem(shares *big.Int) (*big.Int, error) {
	return e.withdrawals.PreviewRedeem(e, shares)
}

func (e *Engine) remainingSize(v *Vault) (*big.Int, error) {
	total, err := e.totalAssets(v)
	if err != nil {
		return nil, err
	}
	return floorSub(v.MaxSize, total), nil
}

// MaxDeposit is zero while paused or closed, otherwise the room left under
// MaxSize capped by the deposit policy.
func (e *Engine) MaxDeposit(receiver crypto.Address) (*big.Int, error) {
	v, err := e.loadVault()
	if err != nil {
		return nil, err
	}
	if e.paused() || v.Closed(e.Now()) {
		return big.NewInt(0), nil
	}
	remaining, err := e.remainingSize(v)
	if err != nil {
		return nil, err
	}
	limit, err := e.deposits.MaxDeposit(e, receiver)
	if err != nil {
		return nil, err
	}
	return minBig(remaining, limit), nil
}

// limitShares converts a limit to shares. A worthless vault has no share
// limit to offer, so it reports zero instead of ErrInfiniteValue.
func (e *Engine) limitShares(v *Vault, assets *big.Int) (*big.Int, error) {
	shares, err := e.convertToShares(v, assets)
	if errors.Is(err, ErrInfiniteValue) {
		return big.NewInt(0), nil
	}
	return shares, err
}

// MaxMint is MaxDeposit expressed in shares.
func (e *Engine) MaxMint(receiver crypto.Address) (*big.Int, error) {
	v, err := e.loadVault()
	if err != nil {
		return nil, err
	}
	if e.paused() || v.Closed(e.Now()) {
		return big.NewInt(0), nil
	}
	remaining, err := e.remainingSize(v)
	if err != nil {
		return nil, err
	}
	shares, err := e.limitShares(v, remaining)
	if err != nil {
		return nil, err
	}
	limit, err := e.deposits.MaxMint(e, receiver)
	if err != nil {
		return nil, err
	}
	return minBig(shares, limit), nil
}

// MaxWithdraw is bounded by the owner's position and by liquid assets.
func (e *Engine) MaxWithdraw(owner crypto.Address) (*big.Int, error) {
	v, err := e.loadVault()
	if err != nil {
		return nil, err
	}
	if e.paused() {
		return big.NewInt(0), nil
	}
	balance, err := e.state.SharesGet(e.address, owner)
	if err != nil {
		return nil, err
	}
	if balance.Sign() == 0 {
		return big.NewInt(0), nil
	}
	position, err := e.convertToAssets(v, balance)
	if err != nil {
		return nil, err
	}
	liquid, err := e.liquidAssets(v)
	if err != nil {
		return nil, err
	}
	limit, err := e.withdrawals.MaxWithdraw(e, owner)
	if err != nil {
		return nil, err
	}
	return minBig(limit, position, liquid), nil
}

// MaxRedeem is bounded by the owner's shares and by liquid assets.
func (e *Engine) MaxRedeem(owner crypto.Address) (*big.Int, error) {
	v, err := e.loadVault()
	if err != nil {
		return nil, err
	}
	if e.paused() {
		return big.NewInt(0), nil
	}
	balance, err := e.state.SharesGet(e.address, owner)
	if err != nil {
		return nil, err
	}
	liquid, err := e.liquidAssets(v)
	if err != nil {
		return nil, err
	}
	if balance.Sign() == 0 || liquid.Sign() == 0 {
		return big.NewInt(0), nil
	}
	liquidShares, err := e.limitShares(v, liquid)
	if err != nil {
		return nil, err
	}
	limit, err := e.withdrawals.MaxRedeem(e, owner)
	if err != nil {
		return nil, err
	}
	return minBig(limit, balance, liquidShares), nil
}
