package portfoliod

import (
	"context"
	"math/big"

	"creditvault/crypto"
	"creditvault/native/loans"
	"creditvault/native/portfolio"
)

// Fund mints asset to account on the built-in ledger. It exists for local
// networks and scenario replay.
func (rt *Runtime) Fund(ctx context.Context, asset string, account crypto.Address, amount *big.Int) error {
	return rt.Do(ctx, "fund_account", func() error {
		return rt.ledger.Mint(asset, account, amount)
	})
}

func (rt *Runtime) Deposit(ctx context.Context, vault string, caller crypto.Address, assets *big.Int, receiver crypto.Address) (*big.Int, error) {
	v, err := rt.Vault(vault)
	if err != nil {
		return nil, err
	}
	var shares *big.Int
	err = rt.Do(ctx, "deposit", func() error {
		var err error
		shares, err = v.Engine.Deposit(caller, assets, receiver)
		return err
	})
	if err == nil {
		rt.logAccount("deposit", v, receiver)
	}
	return shares, err
}

func (rt *Runtime) Mint(ctx context.Context, vault string, caller crypto.Address, shares *big.Int, receiver crypto.Address) (*big.Int, error) {
	v, err := rt.Vault(vault)
	if err != nil {
		return nil, err
	}
	var assets *big.Int
	err = rt.Do(ctx, "mint", func() error {
		var err error
		assets, err = v.Engine.Mint(caller, shares, receiver)
		return err
	})
	if err == nil {
		rt.logAccount("mint", v, receiver)
	}
	return assets, err
}

func (rt *Runtime) Withdraw(ctx context.Context, vault string, caller crypto.Address, assets *big.Int, receiver, owner crypto.Address) (*big.Int, error) {
	v, err := rt.Vault(vault)
	if err != nil {
		return nil, err
	}
	var shares *big.Int
	err = rt.Do(ctx, "withdraw", func() error {
		var err error
		shares, err = v.Engine.Withdraw(caller, assets, receiver, owner)
		return err
	})
	if err == nil {
		rt.logAccount("withdraw", v, owner)
	}
	return shares, err
}

func (rt *Runtime) Redeem(ctx context.Context, vault string, caller crypto.Address, shares *big.Int, receiver, owner crypto.Address) (*big.Int, error) {
	v, err := rt.Vault(vault)
	if err != nil {
		return nil, err
	}
	var assets *big.Int
	err = rt.Do(ctx, "redeem", func() error {
		var err error
		assets, err = v.Engine.Redeem(caller, shares, receiver, owner)
		return err
	})
	if err == nil {
		rt.logAccount("redeem", v, owner)
	}
	return assets, err
}

// AddInstrument issues a loan owned by the vault. Terms decide the kind.
func (rt *Runtime) AddInstrument(ctx context.Context, vault string, caller crypto.Address, terms loans.IssueRequest) (portfolio.InstrumentRef, error) {
	v, err := rt.Vault(vault)
	if err != nil {
		return portfolio.InstrumentRef{}, err
	}
	var ref portfolio.InstrumentRef
	err = rt.Do(ctx, "add_instrument", func() error {
		var err error
		ref, err = v.Engine.AddInstrument(caller, terms)
		return err
	})
	return ref, err
}

// AcceptInstrument records the borrower's acceptance where the kind requires
// one. Other kinds accept implicitly.
func (rt *Runtime) AcceptInstrument(ctx context.Context, ref portfolio.InstrumentRef, borrower crypto.Address) error {
	if ref.Kind != rt.fiols.Kind() {
		return nil
	}
	return rt.Do(ctx, "accept_instrument", func() error {
		return rt.fiols.AcceptLoan(borrower, ref.ID)
	})
}

func (rt *Runtime) FundInstrument(ctx context.Context, vault string, caller crypto.Address, ref portfolio.InstrumentRef) error {
	return rt.vaultCall(ctx, vault, "fund_instrument", func(e *portfolio.Engine) error {
		return e.FundInstrument(caller, ref)
	})
}

func (rt *Runtime) Repay(ctx context.Context, vault string, caller crypto.Address, ref portfolio.InstrumentRef, amount *big.Int) error {
	return rt.vaultCall(ctx, vault, "repay", func(e *portfolio.Engine) error {
		return e.Repay(caller, ref, amount)
	})
}

func (rt *Runtime) CancelInstrument(ctx context.Context, vault string, caller crypto.Address, ref portfolio.InstrumentRef) error {
	return rt.vaultCall(ctx, vault, "cancel_instrument", func(e *portfolio.Engine) error {
		return e.CancelInstrument(caller, ref)
	})
}

func (rt *Runtime) MarkDefaulted(ctx context.Context, vault string, caller crypto.Address, ref portfolio.InstrumentRef) error {
	return rt.vaultCall(ctx, vault, "mark_defaulted", func(e *portfolio.Engine) error {
		return e.MarkInstrumentAsDefaulted(caller, ref)
	})
}

func (rt *Runtime) UpdateInstrument(ctx context.Context, vault string, caller crypto.Address, ref portfolio.InstrumentRef, gracePeriod int64) error {
	return rt.vaultCall(ctx, vault, "update_instrument", func(e *portfolio.Engine) error {
		return e.UpdateInstrument(caller, ref, gracePeriod)
	})
}

// SettleFees runs UpdateAndPayFee on the named vault.
func (rt *Runtime) SettleFees(ctx context.Context, vault string) error {
	return rt.vaultCall(ctx, vault, "update_and_pay_fee", func(e *portfolio.Engine) error {
		return e.UpdateAndPayFee()
	})
}

func (rt *Runtime) vaultCall(ctx context.Context, vault, method string, fn func(*portfolio.Engine) error) error {
	v, err := rt.Vault(vault)
	if err != nil {
		return err
	}
	return rt.Do(ctx, method, func() error { return fn(v.Engine) })
}
