package portfolio

import (
	"fmt"
	"math/big"
	"strings"

	"creditvault/crypto"
	"creditvault/native/loans"
)

func (e *Engine) addedInstrument(ref InstrumentRef) (Instrument, error) {
	inst, err := e.instrument(ref.Kind)
	if err != nil {
		return nil, err
	}
	added, err := e.state.InstrumentAdded(e.address, ref)
	if err != nil {
		return nil, err
	}
	if !added {
		return nil, fmt.Errorf("%w: %s", ErrInstrumentNotAdded, ref)
	}
	return inst, nil
}

func (e *Engine) notifyFunded(ref InstrumentRef) error {
	if e.valuation == nil {
		return errNilValuation
	}
	return e.valuation.OnInstrumentFunded(e.address, ref.Kind, ref.ID)
}

func (e *Engine) notifyUpdated(ref InstrumentRef) error {
	if e.valuation == nil {
		return errNilValuation
	}
	return e.valuation.OnInstrumentUpdated(e.address, ref.Kind, ref.ID)
}

// AddInstrument issues a new instrument owned by the vault. The kind must be
// allowed and the instrument asset must be the vault asset.
func (e *Engine) AddInstrument(caller crypto.Address, req loans.IssueRequest) (InstrumentRef, error) {
	var ref InstrumentRef
	err := e.atomic(func() error {
		if err := e.guardPaused(); err != nil {
			return err
		}
		if req == nil {
			return loans.ErrWrongTerms
		}
		v, err := e.loadVault()
		if err != nil {
			return err
		}
		kind := req.InstrumentKind()
		allowed, err := e.state.InstrumentAllowed(e.address, kind)
		if err != nil {
			return err
		}
		if !allowed {
			return fmt.Errorf("%w: %q", ErrInstrumentNotAllowed, kind)
		}
		inst, err := e.instrument(kind)
		if err != nil {
			return err
		}
		id, err := inst.Issue(e.address, req)
		if err != nil {
			return err
		}
		asset, err := inst.Asset(id)
		if err != nil {
			return err
		}
		if !strings.EqualFold(asset, v.Asset) {
			return fmt.Errorf("%w: %s != %s", ErrTokenMismatch, asset, v.Asset)
		}
		ref = InstrumentRef{Kind: kind, ID: id}
		if err := e.state.SetInstrumentAdded(e.address, ref, true); err != nil {
			return err
		}
		e.emit(NewInstrumentAddedEvent(e.address, ref))
		return nil
	})
	if err != nil {
		return InstrumentRef{}, err
	}
	return ref, nil
}

// FundInstrument starts an added instrument and sends its principal to the
// recipient. The instrument may not outlive the vault.
func (e *Engine) FundInstrument(caller crypto.Address, ref InstrumentRef) error {
	return e.atomic(func() error {
		if err := e.guardPaused(); err != nil {
			return err
		}
		inst, err := e.addedInstrument(ref)
		if err != nil {
			return err
		}
		v, err := e.loadVault()
		if err != nil {
			return err
		}
		if err := e.settleFees(v); err != nil {
			return err
		}
		principal, err := inst.Principal(ref.ID)
		if err != nil {
			return err
		}
		if principal.Cmp(v.VirtualLiquidity) > 0 {
			return ErrInsufficientLiquidity
		}
		if err := inst.Start(e.address, ref.ID); err != nil {
			return err
		}
		endDate, err := inst.EndDate(ref.ID)
		if err != nil {
			return err
		}
		if endDate > v.EndDate {
			return ErrInstrumentEndDate
		}
		if endDate > v.HighestInstrumentEndDate {
			v.HighestInstrumentEndDate = endDate
		}
		recipient, err := inst.Recipient(ref.ID)
		if err != nil {
			return err
		}
		v.VirtualLiquidity = new(big.Int).Sub(v.VirtualLiquidity, principal)
		if err := e.storeVault(v); err != nil {
			return err
		}
		if err := e.transfer(v.Asset, e.address, recipient, principal); err != nil {
			return err
		}
		if err := e.notifyFunded(ref); err != nil {
			return err
		}
		e.emit(NewInstrumentFundedEvent(e.address, ref, principal))
		return nil
	})
}

// Repay takes amount from the instrument recipient and applies it to the
// instrument.
func (e *Engine) Repay(caller crypto.Address, ref InstrumentRef, amount *big.Int) error {
	return e.atomic(func() error {
		if !loans.IsPositive(amount) {
			return ErrZeroAmount
		}
		if err := e.guardPaused(); err != nil {
			return err
		}
		inst, err := e.addedInstrument(ref)
		if err != nil {
			return err
		}
		recipient, err := inst.Recipient(ref.ID)
		if err != nil {
			return err
		}
		if !recipient.Equal(caller) {
			return ErrWrongRecipient
		}
		v, err := e.loadVault()
		if err != nil {
			return err
		}
		if err := e.settleFees(v); err != nil {
			return err
		}
		if err := e.transfer(v.Asset, caller, e.address, amount); err != nil {
			return err
		}
		v.VirtualLiquidity = new(big.Int).Add(v.VirtualLiquidity, amount)
		if err := e.storeVault(v); err != nil {
			return err
		}
		principalPart, interestPart, err := inst.Repay(e.address, ref.ID, amount)
		if err != nil {
			return err
		}
		if err := e.notifyUpdated(ref); err != nil {
			return err
		}
		e.emit(NewInstrumentRepaidEvent(e.address, ref, amount, principalPart, interestPart))
		return nil
	})
}

// CancelInstrument cancels an added instrument that was never funded.
func (e *Engine) CancelInstrument(caller crypto.Address, ref InstrumentRef) error {
	return e.atomic(func() error {
		if err := e.guardPaused(); err != nil {
			return err
		}
		inst, err := e.addedInstrument(ref)
		if err != nil {
			return err
		}
		if err := inst.Cancel(e.address, ref.ID); err != nil {
			return err
		}
		e.emit(NewInstrumentCancelledEvent(e.address, ref))
		return nil
	})
}

// MarkInstrumentAsDefaulted defaults an instrument and drops its value.
func (e *Engine) MarkInstrumentAsDefaulted(caller crypto.Address, ref InstrumentRef) error {
	return e.atomic(func() error {
		if err := e.guardPaused(); err != nil {
			return err
		}
		inst, err := e.addedInstrument(ref)
		if err != nil {
			return err
		}
		if err := inst.MarkAsDefaulted(e.address, ref.ID); err != nil {
			return err
		}
		if err := e.notifyUpdated(ref); err != nil {
			return err
		}
		e.emit(NewInstrumentDefaultedEvent(e.address, ref))
		return nil
	})
}

// UpdateInstrument extends the grace period of an instrument that supports it.
func (e *Engine) UpdateInstrument(caller crypto.Address, ref InstrumentRef, gracePeriod int64) error {
	return e.atomic(func() error {
		if err := e.guardPaused(); err != nil {
			return err
		}
		inst, err := e.addedInstrument(ref)
		if err != nil {
			return err
		}
		updater, ok := inst.(GracePeriodUpdater)
		if !ok {
			return fmt.Errorf("%w: %s cannot be updated", ErrOperationNotAllowed, ref.Kind)
		}
		if err := updater.UpdateInstrument(e.address, ref.ID, gracePeriod); err != nil {
			return err
		}
		e.emit(NewInstrumentUpdatedEvent(e.address, ref, gracePeriod))
		return nil
	})
}
