package state

import (
	"errors"
	"fmt"
	"math/big"

	"creditvault/crypto"
)

var (
	ErrInsufficientBalance = errors.New("state: transfer amount exceeds balance")
	errInvalidAmount       = errors.New("state: amount must be positive")
)

// Ledger moves reference-asset balances between accounts. It is the custody
// side of the vault: the portfolio engine calls it for every inbound and
// outbound value movement.
type Ledger struct {
	m *Manager
}

// NewLedger binds a ledger to the manager's journaled balances.
func NewLedger(m *Manager) *Ledger {
	return &Ledger{m: m}
}

// Balance returns the balance of addr in asset.
func (l *Ledger) Balance(asset string, addr crypto.Address) (*big.Int, error) {
	return l.m.Balance(addr.Bytes(), asset)
}

// Transfer debits from and credits to. A zero amount is a no-op.
func (l *Ledger) Transfer(asset string, from, to crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return errInvalidAmount
	}
	if from.Equal(to) {
		return nil
	}
	fromBal, err := l.m.Balance(from.Bytes(), asset)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from, fromBal, amount)
	}
	toBal, err := l.m.Balance(to.Bytes(), asset)
	if err != nil {
		return err
	}
	if err := l.m.SetBalance(from.Bytes(), asset, new(big.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	return l.m.SetBalance(to.Bytes(), asset, new(big.Int).Add(toBal, amount))
}

// Mint credits amount to addr and grows the asset supply. Used to seed
// balances.
func (l *Ledger) Mint(asset string, to crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	bal, err := l.m.Balance(to.Bytes(), asset)
	if err != nil {
		return err
	}
	if err := l.m.SetBalance(to.Bytes(), asset, new(big.Int).Add(bal, amount)); err != nil {
		return err
	}
	_, err = l.m.AdjustTokenSupply(asset, amount)
	return err
}

// Supply returns the total amount of asset minted through the ledger.
func (l *Ledger) Supply(asset string) (*big.Int, error) {
	return l.m.TokenSupply(asset)
}
