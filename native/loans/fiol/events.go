package fiol

import (
	"math/big"
	"strconv"

	"creditvault/core/types"
)

const (
	EventTypeLoanIssued         = "fiol.issued"
	EventTypeLoanStatusChanged  = "fiol.status_changed"
	EventTypeLoanRepaid         = "fiol.repaid"
	EventTypeGracePeriodUpdated = "fiol.grace_period_updated"
)

func NewIssuedEvent(l *Loan) *types.Event {
	evt := newLoanEvent(EventTypeLoanIssued, l)
	evt.Attributes["principal"] = l.Principal.String()
	evt.Attributes["periodPayment"] = l.PeriodPayment.String()
	evt.Attributes["periodCount"] = strconv.FormatUint(l.PeriodCount, 10)
	evt.Attributes["periodDuration"] = strconv.FormatInt(l.PeriodDuration, 10)
	return evt
}

func NewStatusChangedEvent(l *Loan) *types.Event {
	return newLoanEvent(EventTypeLoanStatusChanged, l)
}

func NewRepaidEvent(l *Loan, amount *big.Int) *types.Event {
	evt := newLoanEvent(EventTypeLoanRepaid, l)
	evt.Attributes["amount"] = amount.String()
	evt.Attributes["periodsRepaid"] = strconv.FormatUint(l.PeriodsRepaid, 10)
	return evt
}

func NewGracePeriodUpdatedEvent(l *Loan) *types.Event {
	evt := newLoanEvent(EventTypeGracePeriodUpdated, l)
	evt.Attributes["gracePeriod"] = strconv.FormatInt(l.GracePeriod, 10)
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
