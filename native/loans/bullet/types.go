package bullet

import (
	"math/big"
	"strings"

	"creditvault/crypto"
	"creditvault/native/loans"
)

// Kind identifies bullet loans in instrument references and the valuation
// dispatcher.
const Kind = "bullet"

// Status enumerates the lifecycle of a bullet loan.
type Status uint8

const (
	StatusCreated Status = iota
	StatusStarted
	StatusFullyRepaid
	StatusDefaulted
	StatusResolved
	StatusCancelled
)

// Valid reports whether the status is a known lifecycle value.
func (s Status) Valid() bool {
	return s <= StatusCancelled
}

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusStarted:
		return "started"
	case StatusFullyRepaid:
		return "fully_repaid"
	case StatusDefaulted:
		return "defaulted"
	case StatusResolved:
		return "resolved"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Settled reports whether the loan value can no longer change.
func (s Status) Settled() bool {
	return s == StatusFullyRepaid || s == StatusDefaulted || s == StatusResolved
}

// Loan is a single-repayment debt owed by Recipient to Owner.
type Loan struct {
	ID            uint64
	Asset         string
	Status        Status
	Duration      int64
	RepaymentDate int64
	Recipient     crypto.Address
	Owner         crypto.Address
	Principal     *big.Int
	TotalDebt     *big.Int
	AmountRepaid  *big.Int
}

// Clone returns a deep copy of the loan.
func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	clone := *l
	clone.Principal = loans.CloneBigInt(l.Principal)
	clone.TotalDebt = loans.CloneBigInt(l.TotalDebt)
	clone.AmountRepaid = loans.CloneBigInt(l.AmountRepaid)
	return &clone
}

// UnpaidDebt returns TotalDebt minus AmountRepaid.
func (l *Loan) UnpaidDebt() *big.Int {
	return new(big.Int).Sub(loans.CloneBigInt(l.TotalDebt), loans.CloneBigInt(l.AmountRepaid))
}

// StartDate is the timestamp at which the loan was started. Zero before start.
func (l *Loan) StartDate() int64 {
	if l.RepaymentDate == 0 {
		return 0
	}
	return l.RepaymentDate - l.Duration
}

// Terms describe a bullet loan to be created.
type Terms struct {
	Asset     string
	Principal *big.Int
	TotalDebt *big.Int
	Duration  int64
	Recipient crypto.Address
}

// InstrumentKind implements loans.IssueRequest.
func (Terms) InstrumentKind() string { return Kind }

func normalizeAsset(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}
