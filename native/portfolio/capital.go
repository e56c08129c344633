package portfolio

import (
	"math/big"

	"creditvault/crypto"
)

// prepareEntry runs the checks shared by Deposit and Mint and settles fees.
func (e *Engine) prepareEntry(amount *big.Int, receiver crypto.Address) (*Vault, error) {
	if err := e.guardPaused(); err != nil {
		return nil, err
	}
	if err := validAmount(amount); err != nil {
		return nil, err
	}
	if receiver.Equal(e.address) {
		return nil, ErrWrongReceiver
	}
	v, err := e.loadVault()
	if err != nil {
		return nil, err
	}
	if v.Closed(e.Now()) {
		return nil, ErrPortfolioClosed
	}
	if amount.Sign() == 0 {
		return nil, ErrOperationNotAllowed
	}
	if err := e.settleFees(v); err != nil {
		return nil, err
	}
	return v, nil
}

func (e *Engine) checkSize(v *Vault, incoming *big.Int) error {
	total, err := e.totalAssets(v)
	if err != nil {
		return err
	}
	if total.Add(total, incoming).Cmp(v.MaxSize) > 0 {
		return ErrPortfolioFull
	}
	return nil
}

// Deposit pulls assets from caller and mints shares to receiver. An entry fee
// charged by the deposit policy goes to the manager and does not count
// toward MaxSize.
func (e *Engine) Deposit(caller crypto.Address, assets *big.Int, receiver crypto.Address) (*big.Int, error) {
	var minted *big.Int
	err := e.atomic(func() error {
		v, err := e.prepareEntry(assets, receiver)
		if err != nil {
			return err
		}
		shares, fee, err := e.deposits.OnDeposit(e, caller, assets, receiver)
		if err != nil {
			return err
		}
		if isZero(shares) {
			return ErrOperationNotAllowed
		}
		fee = nonNil(fee)
		if fee.Cmp(assets) > 0 {
			return ErrFeeExceedsAssets
		}
		net := new(big.Int).Sub(assets, fee)
		if err := e.checkSize(v, net); err != nil {
			return err
		}
		if err := e.transfer(v.Asset, caller, e.address, assets); err != nil {
			return err
		}
		if err := e.mintShares(v, receiver, shares); err != nil {
			return err
		}
		if err := e.payFee(v, e.address, fee); err != nil {
			return err
		}
		v.VirtualLiquidity = new(big.Int).Add(v.VirtualLiquidity, net)
		if err := e.storeVault(v); err != nil {
			return err
		}
		e.emit(NewDepositEvent(e.address, caller, receiver, assets, shares))
		minted = shares
		return nil
	})
	if err != nil {
		return nil, err
	}
	return minted, nil
}

// Mint issues exactly shares to receiver and returns what caller paid,
// including the entry fee.
func (e *Engine) Mint(caller crypto.Address, shares *big.Int, receiver crypto.Address) (*big.Int, error) {
	var paid *big.Int
	err := e.atomic(func() error {
		v, err := e.prepareEntry(shares, receiver)
		if err != nil {
			return err
		}
		assets, fee, err := e.deposits.OnMint(e, caller, shares, receiver)
		if err != nil {
			return err
		}
		if isZero(assets) {
			return ErrOperationNotAllowed
		}
		fee = nonNil(fee)
		if err := e.checkSize(v, assets); err != nil {
			return err
		}
		if err := e.transfer(v.Asset, caller, e.address, assets); err != nil {
			return err
		}
		if err := e.mintShares(v, receiver, shares); err != nil {
			return err
		}
		if err := e.payFee(v, caller, fee); err != nil {
			return err
		}
		v.VirtualLiquidity = new(big.Int).Add(v.VirtualLiquidity, assets)
		if err := e.storeVault(v); err != nil {
			return err
		}
		e.emit(NewDepositEvent(e.address, caller, receiver, assets, shares))
		paid = new(big.Int).Add(assets, fee)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}

// prepareExit runs the checks shared by Withdraw and Redeem and settles fees.
// Exits stay open after the end date.
func (e *Engine) prepareExit(amount *big.Int, receiver, owner crypto.Address) (*Vault, error) {
	if err := e.guardPaused(); err != nil {
		return nil, err
	}
	if err := validAmount(amount); err != nil {
		return nil, err
	}
	if receiver.Equal(e.address) || owner.Equal(e.address) {
		return nil, ErrWrongReceiver
	}
	v, err := e.loadVault()
	if err != nil {
		return nil, err
	}
	if amount.Sign() == 0 {
		return nil, ErrOperationNotAllowed
	}
	if err := e.settleFees(v); err != nil {
		return nil, err
	}
	return v, nil
}

// exit burns shares of owner and pays assets to receiver plus the exit fee
// to the manager, all out of virtual liquidity.
func (e *Engine) exit(v *Vault, caller, receiver, owner crypto.Address, assets, shares, fee *big.Int) error {
	outflow := new(big.Int).Add(assets, fee)
	if outflow.Cmp(v.VirtualLiquidity) > 0 {
		return ErrInsufficientLiquidity
	}
	if !caller.Equal(owner) {
		if err := e.spendAllowance(owner, caller, shares); err != nil {
			return err
		}
	}
	if err := e.burnShares(v, owner, shares); err != nil {
		return err
	}
	if err := e.transfer(v.Asset, e.address, receiver, assets); err != nil {
		return err
	}
	if err := e.payFee(v, e.address, fee); err != nil {
		return err
	}
	v.VirtualLiquidity = new(big.Int).Sub(v.VirtualLiquidity, outflow)
	if err := e.storeVault(v); err != nil {
		return err
	}
	e.emit(NewWithdrawEvent(e.address, caller, receiver, owner, assets, shares))
	return nil
}

// Withdraw pays exactly assets to receiver and returns the shares burned from
// owner. A caller other than owner spends its allowance.
func (e *Engine) Withdraw(caller crypto.Address, assets *big.Int, receiver, owner crypto.Address) (*big.Int, error) {
	var burned *big.Int
	err := e.atomic(func() error {
		v, err := e.prepareExit(assets, receiver, owner)
		if err != nil {
			return err
		}
		shares, fee, err := e.withdrawals.OnWithdraw(e, caller, assets, receiver, owner)
		if err != nil {
			return err
		}
		if isZero(shares) {
			return ErrOperationNotAllowed
		}
		if err := e.exit(v, caller, receiver, owner, assets, shares, nonNil(fee)); err != nil {
			return err
		}
		burned = shares
		return nil
	})
	if err != nil {
		return nil, err
	}
	return burned, nil
}

// Redeem burns exactly shares of owner and returns the assets paid to
// receiver.
func (e *Engine) Redeem(caller crypto.Address, shares *big.Int, receiver, owner crypto.Address) (*big.Int, error) {
	var paid *big.Int
	err := e.atomic(func() error {
		v, err := e.prepareExit(shares, receiver, owner)
		if err != nil {
			return err
		}
		assets, fee, err := e.withdrawals.OnRedeem(e, caller, shares, receiver, owner)
		if err != nil {
			return err
		}
		if isZero(assets) {
			return ErrOperationNotAllowed
		}
		if err := e.exit(v, caller, receiver, owner, assets, shares, nonNil(fee)); err != nil {
			return err
		}
		paid = assets
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}
