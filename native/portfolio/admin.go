package portfolio

import (
	"math/big"

	"creditvault/crypto"
	"creditvault/native/loans"
)

// AllowInstrument toggles whether the vault may issue instruments of kind.
func (e *Engine) AllowInstrument(kind string, allowed bool) error {
	return e.atomic(func() error {
		if _, err := e.loadVault(); err != nil {
			return err
		}
		if err := e.state.SetInstrumentAllowed(e.address, kind, allowed); err != nil {
			return err
		}
		e.emit(NewAllowedInstrumentChangedEvent(e.address, kind, allowed))
		return nil
	})
}

// SetMaxSize changes the size cap. It does not affect existing deposits.
func (e *Engine) SetMaxSize(maxSize *big.Int) error {
	return e.atomic(func() error {
		if !loans.IsPositive(maxSize) {
			return ErrMissingMaxSize
		}
		v, err := e.loadVault()
		if err != nil {
			return err
		}
		if v.MaxSize.Cmp(maxSize) == 0 {
			return ErrMaxSizeUnchanged
		}
		v.MaxSize = new(big.Int).Set(maxSize)
		if err := e.storeVault(v); err != nil {
			return err
		}
		e.emit(NewMaxSizeChangedEvent(e.address, maxSize))
		return nil
	})
}

// SetEndDate brings the end date forward. It cannot move past funded
// instruments or into the past, and a closed vault stays closed.
func (e *Engine) SetEndDate(endDate int64) error {
	return e.atomic(func() error {
		v, err := e.loadVault()
		if err != nil {
			return err
		}
		now := e.Now()
		switch {
		case v.Closed(now):
			return ErrPortfolioClosed
		case endDate >= v.EndDate:
			return ErrEndDateNotLowered
		case endDate < now:
			return ErrEndDateInPast
		case endDate < v.HighestInstrumentEndDate:
			return ErrEndDateBeforeInstruments
		}
		v.EndDate = endDate
		if err := e.storeVault(v); err != nil {
			return err
		}
		e.emit(NewEndDateChangedEvent(e.address, endDate))
		return nil
	})
}

// SetManagerFeeBeneficiary redirects manager fees. Unpaid fees follow.
func (e *Engine) SetManagerFeeBeneficiary(beneficiary crypto.Address) error {
	return e.atomic(func() error {
		if beneficiary.IsZero() {
			return ErrMissingBeneficiary
		}
		v, err := e.loadVault()
		if err != nil {
			return err
		}
		v.ManagerFeeBeneficiary = beneficiary
		if err := e.storeVault(v); err != nil {
			return err
		}
		e.emit(NewBeneficiaryChangedEvent(e.address, beneficiary))
		return nil
	})
}
