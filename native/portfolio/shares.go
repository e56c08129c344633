package portfolio

import (
	"fmt"
	"math/big"

	"creditvault/crypto"
)

// BalanceOf returns the share balance of holder.
func (e *Engine) BalanceOf(holder crypto.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.SharesGet(e.address, holder)
}

// Allowance returns how many of owner's shares spender may move.
func (e *Engine) Allowance(owner, spender crypto.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.AllowanceGet(e.address, owner, spender)
}

// TotalSupply returns the number of outstanding shares.
func (e *Engine) TotalSupply() (*big.Int, error) {
	v, err := e.loadVault()
	if err != nil {
		return nil, err
	}
	return nonNil(v.TotalSupply), nil
}

func (e *Engine) mintShares(v *Vault, to crypto.Address, amount *big.Int) error {
	balance, err := e.state.SharesGet(e.address, to)
	if err != nil {
		return err
	}
	if err := e.state.SharesPut(e.address, to, balance.Add(balance, amount)); err != nil {
		return err
	}
	v.TotalSupply = new(big.Int).Add(nonNil(v.TotalSupply), amount)
	return nil
}

func (e *Engine) burnShares(v *Vault, from crypto.Address, amount *big.Int) error {
	balance, err := e.state.SharesGet(e.address, from)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientShares, from, balance, amount)
	}
	if err := e.state.SharesPut(e.address, from, balance.Sub(balance, amount)); err != nil {
		return err
	}
	v.TotalSupply = new(big.Int).Sub(nonNil(v.TotalSupply), amount)
	return nil
}

func (e *Engine) moveShares(from, to crypto.Address, amount *big.Int) error {
	fromBalance, err := e.state.SharesGet(e.address, from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientShares, from, fromBalance, amount)
	}
	if from.Equal(to) {
		return nil
	}
	toBalance, err := e.state.SharesGet(e.address, to)
	if err != nil {
		return err
	}
	if err := e.state.SharesPut(e.address, from, fromBalance.Sub(fromBalance, amount)); err != nil {
		return err
	}
	return e.state.SharesPut(e.address, to, toBalance.Add(toBalance, amount))
}

func (e *Engine) spendAllowance(owner, spender crypto.Address, amount *big.Int) error {
	allowance, err := e.state.AllowanceGet(e.address, owner, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s may spend %s, needs %s", ErrAllowanceExceeded, spender, allowance, amount)
	}
	return e.state.AllowancePut(e.address, owner, spender, allowance.Sub(allowance, amount))
}

func validAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Transfer moves caller's shares to another holder.
func (e *Engine) Transfer(caller, to crypto.Address, amount *big.Int) error {
	return e.transferShares(caller, caller, to, amount, false)
}

// TransferFrom moves shares on behalf of from, spending caller's allowance.
func (e *Engine) TransferFrom(caller, from, to crypto.Address, amount *big.Int) error {
	return e.transferShares(caller, from, to, amount, true)
}

func (e *Engine) transferShares(caller, from, to crypto.Address, amount *big.Int, delegated bool) error {
	return e.atomic(func() error {
		if err := e.guardPaused(); err != nil {
			return err
		}
		if err := validAmount(amount); err != nil {
			return err
		}
		if !e.transfers.IsTransferAllowed(e, caller, from, to, amount) {
			return ErrTransferNotAllowed
		}
		if delegated {
			if err := e.spendAllowance(from, caller, amount); err != nil {
				return err
			}
		}
		if err := e.moveShares(from, to, amount); err != nil {
			return err
		}
		e.emit(NewTransferEvent(e.address, from, to, amount))
		return nil
	})
}

// Approve lets spender move up to amount of owner's shares.
func (e *Engine) Approve(owner, spender crypto.Address, amount *big.Int) error {
	return e.atomic(func() error {
		if err := validAmount(amount); err != nil {
			return err
		}
		if err := e.state.AllowancePut(e.address, owner, spender, amount); err != nil {
			return err
		}
		e.emit(NewApprovalEvent(e.address, owner, spender, amount))
		return nil
	})
}
