package bullet

import (
	"math/big"
	"strconv"

	"creditvault/core/types"
)

const (
	EventTypeLoanCreated       = "bullet.created"
	EventTypeLoanStatusChanged = "bullet.status_changed"
	EventTypeLoanRepaid        = "bullet.repaid"
)

// NewCreatedEvent returns the canonical payload for a newly created loan.
func NewCreatedEvent(l *Loan) *types.Event {
	evt := newLoanEvent(EventTypeLoanCreated, l)
	evt.Attributes["principal"] = l.Principal.String()
	evt.Attributes["totalDebt"] = l.TotalDebt.String()
	evt.Attributes["duration"] = strconv.FormatInt(l.Duration, 10)
	return evt
}

// NewStatusChangedEvent returns the payload emitted on every transition.
func NewStatusChangedEvent(l *Loan) *types.Event {
	return newLoanEvent(EventTypeLoanStatusChanged, l)
}

// NewRepaidEvent records a repayment of amount against the loan.
func NewRepaidEvent(l *Loan, amount *big.Int) *types.Event {
	evt := newLoanEvent(EventTypeLoanRepaid, l)
	evt.Attributes["amount"] = amount.String()
	evt.Attributes["amountRepaid"] = l.AmountRepaid.String()
	return evt
}

func newLoanEvent(eventType string, l *Loan) *types.Event {
	attrs := map[string]string{
		"id":     strconv.FormatUint(l.ID, 10),
		"status": l.Status.String(),
		"asset":  l.Asset,
	}
	if !l.Owner.IsZero() {
		attrs["owner"] = l.Owner.String()
	}
	if !l.Recipient.IsZero() {
		attrs["recipient"] = l.Recipient.String()
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
