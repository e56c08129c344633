package portfolio

import (
	"math/big"
	"strconv"

	"creditvault/core/types"
	"creditvault/crypto"
)

const (
	EventTypeInitialized              = "portfolio.initialized"
	EventTypeDeposit                  = "portfolio.deposit"
	EventTypeWithdraw                 = "portfolio.withdraw"
	EventTypeFeePaid                  = "portfolio.fee_paid"
	EventTypeInstrumentAdded          = "portfolio.instrument_added"
	EventTypeInstrumentFunded         = "portfolio.instrument_funded"
	EventTypeInstrumentRepaid         = "portfolio.instrument_repaid"
	EventTypeInstrumentCancelled      = "portfolio.instrument_cancelled"
	EventTypeInstrumentDefaulted      = "portfolio.instrument_defaulted"
	EventTypeInstrumentUpdated        = "portfolio.instrument_updated"
	EventTypeAllowedInstrumentChanged = "portfolio.allowed_instrument_changed"
	EventTypeMaxSizeChanged           = "portfolio.max_size_changed"
	EventTypeEndDateChanged           = "portfolio.end_date_changed"
	EventTypeBeneficiaryChanged       = "portfolio.beneficiary_changed"
	EventTypeTransfer                 = "portfolio.transfer"
	EventTypeApproval                 = "portfolio.approval"
)

func newVaultEvent(eventType string, vault crypto.Address, attrs map[string]string) *types.Event {
	if attrs == nil {
		attrs = make(map[string]string)
	}
	attrs["vault"] = vault.String()
	return &types.Event{Type: eventType, Attributes: attrs}
}

// NewInitializedEvent describes a freshly created vault.
func NewInitializedEvent(v *Vault) *types.Event {
	return newVaultEvent(EventTypeInitialized, v.Address, map[string]string{
		"asset":       v.Asset,
		"maxSize":     v.MaxSize.String(),
		"endDate":     strconv.FormatInt(v.EndDate, 10),
		"beneficiary": v.ManagerFeeBeneficiary.String(),
	})
}

// NewDepositEvent is emitted by Deposit and Mint.
func NewDepositEvent(vault, caller, receiver crypto.Address, assets, shares *big.Int) *types.Event {
	return newVaultEvent(EventTypeDeposit, vault, map[string]string{
		"caller":   caller.String(),
		"receiver": receiver.String(),
		"assets":   assets.String(),
		"shares":   shares.String(),
	})
}

// NewWithdrawEvent is emitted by Withdraw and Redeem.
func NewWithdrawEvent(vault, caller, receiver, owner crypto.Address, assets, shares *big.Int) *types.Event {
	return newVaultEvent(EventTypeWithdraw, vault, map[string]string{
		"caller":   caller.String(),
		"receiver": receiver.String(),
		"owner":    owner.String(),
		"assets":   assets.String(),
		"shares":   shares.String(),
	})
}

// NewFeePaidEvent records a fee transfer out of the vault.
func NewFeePaidEvent(vault, to crypto.Address, amount *big.Int) *types.Event {
	return newVaultEvent(EventTypeFeePaid, vault, map[string]string{
		"to":     to.String(),
		"amount": amount.String(),
	})
}

func newInstrumentEvent(eventType string, vault crypto.Address, ref InstrumentRef) *types.Event {
	return newVaultEvent(eventType, vault, map[string]string{
		"kind": ref.Kind,
		"id":   strconv.FormatUint(ref.ID, 10),
	})
}

func NewInstrumentAddedEvent(vault crypto.Address, ref InstrumentRef) *types.Event {
	return newInstrumentEvent(EventTypeInstrumentAdded, vault, ref)
}

func NewInstrumentFundedEvent(vault crypto.Address, ref InstrumentRef, principal *big.Int) *types.Event {
	evt := newInstrumentEvent(EventTypeInstrumentFunded, vault, ref)
	evt.Attributes["principal"] = principal.String()
	return evt
}

func NewInstrumentRepaidEvent(vault crypto.Address, ref InstrumentRef, amount, principalPart, interestPart *big.Int) *types.Event {
	evt := newInstrumentEvent(EventTypeInstrumentRepaid, vault, ref)
	evt.Attributes["amount"] = amount.String()
	evt.Attributes["principal"] = principalPart.String()
	evt.Attributes["interest"] = interestPart.String()
	return evt
}

func NewInstrumentCancelledEvent(vault crypto.Address, ref InstrumentRef) *types.Event {
	return newInstrumentEvent(EventTypeInstrumentCancelled, vault, ref)
}

func NewInstrumentDefaultedEvent(vault crypto.Address, ref InstrumentRef) *types.Event {
	return newInstrumentEvent(EventTypeInstrumentDefaulted, vault, ref)
}

func NewInstrumentUpdatedEvent(vault crypto.Address, ref InstrumentRef, gracePeriod int64) *types.Event {
	evt := newInstrumentEvent(EventTypeInstrumentUpdated, vault, ref)
	evt.Attributes["gracePeriod"] = strconv.FormatInt(gracePeriod, 10)
	return evt
}

func NewAllowedInstrumentChangedEvent(vault crypto.Address, kind string, allowed bool) *types.Event {
	return newVaultEvent(EventTypeAllowedInstrumentChanged, vault, map[string]string{
		"kind":    kind,
		"allowed": strconv.FormatBool(allowed),
	})
}

func NewMaxSizeChangedEvent(vault crypto.Address, maxSize *big.Int) *types.Event {
	return newVaultEvent(EventTypeMaxSizeChanged, vault, map[string]string{"maxSize": maxSize.String()})
}

func NewEndDateChangedEvent(vault crypto.Address, endDate int64) *types.Event {
	return newVaultEvent(EventTypeEndDateChanged, vault, map[string]string{"endDate": strconv.FormatInt(endDate, 10)})
}

func NewBeneficiaryChangedEvent(vault, beneficiary crypto.Address) *types.Event {
	return newVaultEvent(EventTypeBeneficiaryChanged, vault, map[string]string{"beneficiary": beneficiary.String()})
}

func NewTransferEvent(vault, from, to crypto.Address, amount *big.Int) *types.Event {
	return newVaultEvent(EventTypeTransfer, vault, map[string]string{
		"from":   from.String(),
		"to":     to.String(),
		"amount": amount.String(),
	})
}

func NewApprovalEvent(vault, owner, spender crypto.Address, amount *big.Int) *types.Event {
	return newVaultEvent(EventTypeApproval, vault, map[string]string{
		"owner":   owner.String(),
		"spender": spender.String(),
		"amount":  amount.String(),
	})
}
